// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/mwmerge/builder"
	"github.com/btcsuite/mwmerge/commitment"
	"github.com/btcsuite/mwmerge/coordinator"
	"github.com/btcsuite/mwmerge/curve"
	"github.com/btcsuite/mwmerge/cutthrough"
	"github.com/btcsuite/mwmerge/mwtx"
	"github.com/btcsuite/mwmerge/pkg/mwunit"
	"github.com/btcsuite/mwmerge/validate"
	"github.com/davecgh/go-spew/spew"
	flags "github.com/jessevdk/go-flags"
)

var (
	errMissingArgs = errors.New("missing arguments")
)

// registerCommands adds every mwmerge command to parser.
func registerCommands(parser *flags.Parser, cfg *config, out io.Writer) error {
	commands := []struct {
		name, short, long string
		data              flags.Commander
	}{
		{
			name:  "build",
			short: "Build a signed partial transaction",
			long: "Build a partial transaction spending the given " +
				"openings and paying the given amounts. Prints the " +
				"transaction followed by the openings of its outputs.",
			data: &buildCommand{cfg: cfg, out: out},
		},
		{
			name:  "merge",
			short: "Merge partial transactions",
			long: "Merge hex encoded partial transactions, cutting " +
				"through outputs spent within the set, and print " +
				"the result.",
			data: &mergeCommand{cfg: cfg, out: out},
		},
		{
			name:  "validate",
			short: "Validate a transaction against the utxo db",
			long:  "Validate a hex encoded transaction against the utxo db.",
			data:  &validateCommand{cfg: cfg, out: out},
		},
		{
			name:  "aggregate",
			short: "Merge, validate and accept partial transactions",
			long: "Merge hex encoded partial transactions, validate the " +
				"result against the utxo db, enforce the minimum fee " +
				"rate and apply it to the db.",
			data: &aggregateCommand{cfg: cfg, out: out},
		},
		{
			name:  "decode",
			short: "Dump a transaction",
			long:  "Decode a hex encoded transaction and dump it.",
			data:  &decodeCommand{out: out},
		},
		{
			name:  "addutxo",
			short: "Add unspent commitments to the utxo db",
			long:  "Add hex encoded commitments to the utxo db as unspent.",
			data:  &addUtxoCommand{cfg: cfg},
		},
		{
			name:  "listutxos",
			short: "List unspent commitments in the utxo db",
			long:  "List unspent commitments in the utxo db.",
			data:  &listUtxosCommand{cfg: cfg, out: out},
		},
	}

	for _, c := range commands {
		_, err := parser.AddCommand(c.name, c.short, c.long, c.data)
		if err != nil {
			return err
		}
	}

	return nil
}

// decodeTxns decodes hex encoded transactions.
func decodeTxns(args []string) ([]*mwtx.Transaction, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: expected hex transactions",
			errMissingArgs)
	}

	txns := make([]*mwtx.Transaction, 0, len(args))
	for i, arg := range args {
		tx, err := mwtx.FromHex(strings.TrimSpace(arg))
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		txns = append(txns, tx)
	}

	return txns, nil
}

// parseOpening parses "<satoshis>:<blinding hex>".
func parseOpening(s string) (builder.Opening, error) {
	value, blinding, ok := strings.Cut(s, ":")
	if !ok {
		return builder.Opening{}, fmt.Errorf("opening %q must be of "+
			"the form <satoshis>:<blinding hex>", s)
	}

	amt, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return builder.Opening{}, fmt.Errorf("opening %q: %w", s, err)
	}

	r, err := curve.ParseScalarHex(blinding)
	if err != nil {
		return builder.Opening{}, fmt.Errorf("opening %q: %w", s, err)
	}

	return builder.Opening{Value: btcutil.Amount(amt), Blinding: r}, nil
}

// formatOpening is the inverse of parseOpening.
func formatOpening(o builder.Opening) string {
	return fmt.Sprintf("%d:%v", int64(o.Value), o.Blinding)
}

// buildCommand builds a partial transaction.
type buildCommand struct {
	cfg *config
	out io.Writer

	Spend      []string `long:"spend" description:"Opening to spend as <satoshis>:<blinding hex>"`
	Pay        []int64  `long:"pay" description:"Amount in satoshis of an output to create"`
	Fee        int64    `long:"fee" description:"Fee in satoshis"`
	LockHeight uint32   `long:"lockheight" description:"Lock height of the kernel"`
}

func (c *buildCommand) Execute(_ []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	req := builder.Request{
		Fee:        btcutil.Amount(c.Fee),
		LockHeight: c.LockHeight,
	}
	for _, s := range c.Spend {
		o, err := parseOpening(s)
		if err != nil {
			return err
		}
		req.Spend = append(req.Spend, o)
	}
	for _, amt := range c.Pay {
		req.Pay = append(req.Pay, btcutil.Amount(amt))
	}

	b := builder.New(builder.Config{RangeProofBits: c.cfg.RangeProofBits})
	p, err := b.Build(ctx, req)
	if err != nil {
		return err
	}

	txHex, err := p.Tx.Hex()
	if err != nil {
		return err
	}

	fmt.Fprintln(c.out, txHex)
	for _, o := range p.Outputs {
		fmt.Fprintln(c.out, formatOpening(o))
	}

	return nil
}

// mergeCommand merges partial transactions without consulting the db.
type mergeCommand struct {
	cfg *config
	out io.Writer

	Check bool `long:"check" description:"Check every partial before merging"`
}

func (c *mergeCommand) Execute(args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	txns, err := decodeTxns(args)
	if err != nil {
		return err
	}

	if c.Check {
		v := validate.New(validate.Config{
			RangeProofBits: c.cfg.RangeProofBits,
		})
		for i, tx := range txns {
			if err := v.ValidatePartial(ctx, tx); err != nil {
				return fmt.Errorf("partial %d: %w", i, err)
			}
		}
	}

	merged, err := cutthrough.Merge(txns)
	if err != nil {
		return err
	}

	txHex, err := merged.Hex()
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, txHex)

	return nil
}

// validateCommand validates transactions against the utxo db.
type validateCommand struct {
	cfg *config
	out io.Writer
}

func (c *validateCommand) Execute(args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	txns, err := decodeTxns(args)
	if err != nil {
		return err
	}

	store, err := c.cfg.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	v := validate.New(validate.Config{RangeProofBits: c.cfg.RangeProofBits})

	var failed int
	for i, err := range v.ValidateBatch(ctx, txns, store) {
		if err != nil {
			failed++
			fmt.Fprintf(c.out, "%v invalid: %v\n", txns[i].TxHash(), err)

			continue
		}
		fmt.Fprintf(c.out, "%v valid\n", txns[i].TxHash())
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d transactions invalid", failed,
			len(txns))
	}

	return nil
}

// aggregateCommand merges, validates and accepts partial transactions.
type aggregateCommand struct {
	cfg *config
	out io.Writer

	Label string `long:"label" description:"Label logged with the accepted transaction"`
}

func (c *aggregateCommand) Execute(args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	txns, err := decodeTxns(args)
	if err != nil {
		return err
	}

	store, err := c.cfg.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	coord, err := coordinator.New(coordinator.Config{
		Validator: validate.New(validate.Config{
			RangeProofBits: c.cfg.RangeProofBits,
		}),
		View: store,
		Broadcaster: &coordinator.LedgerBroadcaster{
			Ledger: store,
			Out:    c.out,
		},
		MinFeeRate: c.cfg.minFeeRate(),
	})
	if err != nil {
		return err
	}

	_, err = coord.Aggregate(ctx, txns, c.Label)

	return err
}

// decodeCommand dumps transactions.
type decodeCommand struct {
	out io.Writer
}

func (c *decodeCommand) Execute(args []string) error {
	txns, err := decodeTxns(args)
	if err != nil {
		return err
	}

	for _, tx := range txns {
		size := mwunit.TxSize(tx.SerializeSize())
		rate := mwunit.CalcSatPerKByte(tx.TotalFee(), size)

		fmt.Fprintf(c.out, "hash: %v\nsize: %v\nfee: %v (%v, %v)\n"+
			"balanced: %v\n", tx.TxHash(), size, tx.TotalFee(), rate,
			rate.ToSatPerByte(), mwtx.CheckLocalBalance(tx))
		spew.Fdump(c.out, tx)
	}

	return nil
}

// addUtxoCommand seeds the utxo db.
type addUtxoCommand struct {
	cfg *config
}

func (c *addUtxoCommand) Execute(args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	if len(args) == 0 {
		return fmt.Errorf("%w: expected hex commitments",
			errMissingArgs)
	}

	commitments := make([]commitment.Commitment, 0, len(args))
	for _, arg := range args {
		cm, err := commitment.ParseHex(arg)
		if err != nil {
			return err
		}
		commitments = append(commitments, cm)
	}

	store, err := c.cfg.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	for _, cm := range commitments {
		if err := store.AddUnspent(ctx, cm); err != nil {
			return err
		}
		log.Infof("Added unspent commitment %v", cm)
	}

	return nil
}

// listUtxosCommand lists the unspent commitments of the utxo db.
type listUtxosCommand struct {
	cfg *config
	out io.Writer
}

func (c *listUtxosCommand) Execute(_ []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	store, err := c.cfg.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	unspent, err := store.Unspent(ctx)
	if err != nil {
		return err
	}

	for _, cm := range unspent {
		fmt.Fprintln(c.out, cm)
	}

	return nil
}
