// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package coordinator turns a set of partial transactions into one accepted
// transaction: it merges them, has the missing kernels signed, validates the
// result, applies the fee policy and broadcasts it.
package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/mwmerge/cutthrough"
	"github.com/btcsuite/mwmerge/mwtx"
	"github.com/btcsuite/mwmerge/pkg/mwunit"
	"github.com/btcsuite/mwmerge/utxo"
	"github.com/davecgh/go-spew/spew"
)

var (
	// ErrNoValidator is returned by New when no validator is configured.
	ErrNoValidator = errors.New("no validator configured")
)

// Signer signs the unsigned kernels of a transaction in place.
type Signer interface {
	SignKernels(ctx context.Context, tx *mwtx.Transaction) error
}

// Broadcaster publishes an accepted transaction.
type Broadcaster interface {
	Broadcast(ctx context.Context, tx *mwtx.Transaction, label string) error
}

// Validator checks a final transaction against the chain state.
type Validator interface {
	Validate(ctx context.Context, tx *mwtx.Transaction,
		view utxo.View) error
}

// Config holds the collaborators of a Coordinator.
type Config struct {
	// Validator checks the merged transaction. Required.
	Validator Validator

	// View resolves the inputs of the merged transaction.
	View utxo.View

	// Signer signs kernels left unsigned by their partials. Optional if
	// every partial arrives signed.
	Signer Signer

	// Broadcaster publishes the result. Optional.
	Broadcaster Broadcaster

	// MinFeeRate is the lowest fee rate accepted.
	MinFeeRate mwunit.SatPerKByte
}

// Coordinator aggregates partial transactions.
type Coordinator struct {
	cfg Config
}

// New returns a coordinator for cfg.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Validator == nil {
		return nil, ErrNoValidator
	}

	return &Coordinator{cfg: cfg}, nil
}

// Aggregate merges partials into one transaction and, once it is signed,
// valid and pays at least the minimum fee rate, broadcasts it under label.
// Nothing is returned unless every step succeeds.
func (c *Coordinator) Aggregate(ctx context.Context,
	partials []*mwtx.Transaction, label string) (*mwtx.Transaction, error) {

	// Pinpoint a partial that does not balance on its own before its
	// defect is hidden in the merged equation.
	for i, p := range partials {
		if p != nil && !mwtx.CheckLocalBalance(p) {
			return nil, mwtx.NewError(mwtx.ErrUnbalancedTransaction,
				fmt.Sprintf("partial %d does not balance", i), nil)
		}
	}

	merged, stats, err := cutthrough.MergeWithStats(partials)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	if err := c.signMissing(ctx, merged); err != nil {
		return nil, err
	}

	if err := c.cfg.Validator.Validate(ctx, merged, c.cfg.View); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	if err := c.checkFeeRate(merged); err != nil {
		return nil, err
	}

	log.Infof("Aggregated %v into %v (%v)", stats, merged.TxHash(), label)
	log.Tracef("Aggregated transaction: %v", newLogClosure(func() string {
		return spew.Sdump(merged)
	}))

	if c.cfg.Broadcaster != nil {
		err := c.cfg.Broadcaster.Broadcast(ctx, merged, label)
		if err != nil {
			log.Errorf("%v: broadcast failed: %v", merged.TxHash(),
				err)

			return nil, fmt.Errorf("broadcast: %w", err)
		}
	}

	return merged, nil
}

// signMissing has the signer sign every unsigned kernel.
func (c *Coordinator) signMissing(ctx context.Context,
	tx *mwtx.Transaction) error {

	var unsigned int
	for i := range tx.Kernels {
		if !tx.Kernels[i].IsSigned() {
			unsigned++
		}
	}

	if unsigned == 0 {
		return nil
	}

	if c.cfg.Signer == nil {
		return mwtx.NewError(mwtx.ErrInvalidKernelSignature,
			fmt.Sprintf("%d unsigned kernels and no signer",
				unsigned), nil)
	}

	log.Debugf("Signing %d unsigned kernels", unsigned)

	if err := c.cfg.Signer.SignKernels(ctx, tx); err != nil {
		return fmt.Errorf("sign kernels: %w", err)
	}

	return nil
}

// checkFeeRate enforces the minimum fee rate over the serialized size.
func (c *Coordinator) checkFeeRate(tx *mwtx.Transaction) error {
	size := mwunit.TxSize(tx.SerializeSize())
	rate := mwunit.CalcSatPerKByte(tx.TotalFee(), size)

	if !rate.GreaterThanOrEqual(c.cfg.MinFeeRate) {
		required := c.cfg.MinFeeRate.FeeForSizeRoundUp(size)

		return mwtx.NewError(mwtx.ErrInsufficientFee, fmt.Sprintf(
			"fee %v for %v is %v, below minimum %v (requires at "+
				"least %v)", tx.TotalFee(), size, rate,
			c.cfg.MinFeeRate, required), nil)
	}

	return nil
}
