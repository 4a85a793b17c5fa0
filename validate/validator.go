// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package validate decides whether a transaction may be accepted: its
// commitments are unique, its inputs are unspent, it balances, its kernels
// are signed and its outputs carry valid range proofs.
package validate

import (
	"context"
	"fmt"

	"github.com/btcsuite/mwmerge/mwtx"
	"github.com/btcsuite/mwmerge/rangeproof"
	"github.com/btcsuite/mwmerge/utxo"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchWorkers bounds the number of transactions ValidateBatch checks
// at once.
const DefaultBatchWorkers = 8

// Config holds the validator configuration.
type Config struct {
	// RangeProofBits is the bit width output range proofs must prove.
	RangeProofBits uint8

	// BatchWorkers bounds the concurrency of ValidateBatch.
	BatchWorkers int
}

// DefaultConfig returns the default validator configuration.
func DefaultConfig() Config {
	return Config{
		RangeProofBits: rangeproof.DefaultBits,
		BatchWorkers:   DefaultBatchWorkers,
	}
}

// Validator checks transactions. It holds no state besides its
// configuration and is safe for concurrent use.
type Validator struct {
	cfg Config
}

// New returns a validator. Zero fields of cfg take their defaults.
func New(cfg Config) *Validator {
	def := DefaultConfig()
	if cfg.RangeProofBits == 0 {
		cfg.RangeProofBits = def.RangeProofBits
	}
	if cfg.BatchWorkers <= 0 {
		cfg.BatchWorkers = def.BatchWorkers
	}

	return &Validator{cfg: cfg}
}

// defaultValidator backs the package level Validate.
var defaultValidator = New(DefaultConfig())

// Validate checks tx against view with the default configuration.
func Validate(ctx context.Context, tx *mwtx.Transaction, view utxo.View) error {
	return defaultValidator.Validate(ctx, tx, view)
}

// Validate checks, in order and stopping at the first failure, that
//
//  1. no commitment is created twice or spent twice,
//  2. every input is unspent in view,
//  3. the transaction balances and passes no value through,
//  4. every kernel signature verifies,
//  5. every output range proof verifies.
//
// The returned error matches the mwtx error code of the failed check.
func (v *Validator) Validate(ctx context.Context, tx *mwtx.Transaction,
	view utxo.View) error {

	if tx == nil {
		return mwtx.NewError(mwtx.ErrMalformedTx, "nil transaction", nil)
	}

	if err := mwtx.CheckUnique(tx); err != nil {
		return err
	}

	if err := v.checkInputs(ctx, tx, view); err != nil {
		return err
	}

	if err := checkBalance(tx, true); err != nil {
		return err
	}

	if err := checkKernels(tx); err != nil {
		return err
	}

	if err := v.checkRangeProofs(ctx, tx); err != nil {
		return err
	}

	log.Tracef("Transaction %v is valid", tx.TxHash())

	return nil
}

// ValidatePartial checks a partial transaction before it is merged: the
// same checks as Validate except that inputs are not looked up and a
// declared surplus is allowed.
func (v *Validator) ValidatePartial(ctx context.Context,
	tx *mwtx.Transaction) error {

	if tx == nil {
		return mwtx.NewError(mwtx.ErrMalformedTx, "nil transaction", nil)
	}

	if err := mwtx.CheckUnique(tx); err != nil {
		return err
	}

	if err := checkBalance(tx, false); err != nil {
		return err
	}

	if err := checkKernels(tx); err != nil {
		return err
	}

	return v.checkRangeProofs(ctx, tx)
}

// ValidateBatch validates independent transactions concurrently. The
// returned slice holds the result for each transaction at the same index.
// Once ctx is done the remaining transactions report its error.
func (v *Validator) ValidateBatch(ctx context.Context,
	txns []*mwtx.Transaction, view utxo.View) []error {

	results := make([]error, len(txns))

	var g errgroup.Group
	g.SetLimit(v.cfg.BatchWorkers)

	for i, tx := range txns {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = err
				return nil
			}

			results[i] = v.Validate(ctx, tx, view)

			return nil
		})
	}

	// Failures are reported per transaction, never through the group.
	_ = g.Wait()

	var failed int
	for _, err := range results {
		if err != nil {
			failed++
		}
	}
	log.Debugf("Validated batch of %d transactions, %d failed", len(txns),
		failed)

	return results
}

// checkInputs requires every input to be an unspent output of view.
func (v *Validator) checkInputs(ctx context.Context, tx *mwtx.Transaction,
	view utxo.View) error {

	if len(tx.Inputs) > 0 && view == nil {
		return mwtx.NewError(mwtx.ErrUnknownOrSpentInput,
			"no utxo view to resolve inputs", nil)
	}

	for i, in := range tx.Inputs {
		state, err := view.LookupCommitment(ctx, in.Commitment)
		if err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}

		if state != utxo.StateUnspent {
			return mwtx.NewError(mwtx.ErrUnknownOrSpentInput,
				fmt.Sprintf("input %d (%v) is %v", i,
					in.Commitment, state), nil)
		}
	}

	return nil
}

// checkBalance verifies the balance equation. Final transactions must not
// pass any value through.
func checkBalance(tx *mwtx.Transaction, final bool) error {
	if !mwtx.CheckLocalBalance(tx) {
		return mwtx.NewError(mwtx.ErrUnbalancedTransaction,
			fmt.Sprintf("residual %v is not zero",
				mwtx.BalanceResidual(tx)), nil)
	}

	if final && tx.Surplus != 0 {
		return mwtx.NewError(mwtx.ErrUnbalancedTransaction,
			fmt.Sprintf("surplus of %v left unclaimed", tx.Surplus),
			nil)
	}

	return nil
}

// checkKernels verifies every kernel signature and fee.
func checkKernels(tx *mwtx.Transaction) error {
	for i := range tx.Kernels {
		k := &tx.Kernels[i]
		if k.Fee < 0 {
			return mwtx.NewError(mwtx.ErrInvalidFee, fmt.Sprintf(
				"kernel %d has negative fee %v", i, k.Fee), nil)
		}

		if err := k.VerifySignature(); err != nil {
			return fmt.Errorf("kernel %d: %w", i, err)
		}
	}

	return nil
}

// checkRangeProofs verifies every output range proof.
func (v *Validator) checkRangeProofs(ctx context.Context,
	tx *mwtx.Transaction) error {

	for i := range tx.Outputs {
		if err := ctx.Err(); err != nil {
			return err
		}

		out := &tx.Outputs[i]
		err := rangeproof.Verify(
			out.RangeProof, out.Commitment, v.cfg.RangeProofBits,
		)
		if err != nil {
			return mwtx.NewError(mwtx.ErrInvalidRangeProof,
				fmt.Sprintf("output %d (%v)", i, out.Commitment),
				err)
		}
	}

	return nil
}
