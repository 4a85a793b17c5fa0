// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package builder is a wallet-side helper that turns plaintext amounts and
// known openings into blinded, signed partial transactions ready to be
// merged.
package builder

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/mwmerge/commitment"
	"github.com/btcsuite/mwmerge/curve"
	"github.com/btcsuite/mwmerge/mwtx"
	"github.com/btcsuite/mwmerge/rangeproof"
)

// Opening is the secret behind a commitment: its value and blinding factor.
type Opening struct {
	Value    btcutil.Amount
	Blinding curve.Scalar
}

// NewOpening returns an opening of value under a fresh random blinding
// factor.
func NewOpening(value btcutil.Amount) (Opening, error) {
	if value < 0 || value > btcutil.MaxSatoshi {
		return Opening{}, mwtx.NewError(mwtx.ErrMalformedTx,
			fmt.Sprintf("amount %v out of range", value), nil)
	}

	r, err := curve.RandomScalar()
	if err != nil {
		return Opening{}, err
	}

	return Opening{Value: value, Blinding: r}, nil
}

// Commitment returns the Pedersen commitment the opening opens.
func (o Opening) Commitment() commitment.Commitment {
	return commitment.Commit(uint64(o.Value), o.Blinding)
}

// Request describes a partial transaction to build.
type Request struct {
	// Spend lists the openings of the outputs being spent.
	Spend []Opening

	// Pay lists the amounts of the outputs to create.
	Pay []btcutil.Amount

	// Fee is the fee paid by this partial's kernel.
	Fee btcutil.Amount

	// LockHeight is committed to by the kernel signature.
	LockHeight uint32

	// DeferSigning leaves the kernel unsigned. The excess secret is kept
	// in the returned Partial so that a Signer can sign after merging.
	DeferSigning bool
}

// Partial is a built partial transaction together with the secrets its
// creator must keep.
type Partial struct {
	// Tx is the partial transaction.
	Tx *mwtx.Transaction

	// Outputs holds the openings of Tx.Outputs, in the same order.
	Outputs []Opening

	excess curve.Scalar
}

// ExcessSecret returns the discrete log of the kernel excess.
func (p *Partial) ExcessSecret() curve.Scalar {
	return p.excess
}

// ExcessKey returns the kernel excess secret as a private key.
func (p *Partial) ExcessKey() *btcec.PrivateKey {
	b := p.excess.Bytes()
	priv, _ := btcec.PrivKeyFromBytes(b[:])

	return priv
}

// Config holds the builder configuration.
type Config struct {
	// RangeProofBits is the bit width of the output range proofs.
	RangeProofBits uint8
}

// Builder builds partial transactions.
type Builder struct {
	cfg Config
}

// New returns a builder. A zero RangeProofBits selects the default width.
func New(cfg Config) *Builder {
	if cfg.RangeProofBits == 0 {
		cfg.RangeProofBits = rangeproof.DefaultBits
	}

	return &Builder{cfg: cfg}
}

// Build creates a locally balanced partial transaction from req. The
// difference between what is spent and what is paid out, fee included,
// becomes the partial's surplus.
func (b *Builder) Build(ctx context.Context, req Request) (*Partial, error) {
	if req.Fee < 0 || req.Fee > btcutil.MaxSatoshi {
		return nil, mwtx.NewError(mwtx.ErrInvalidFee,
			fmt.Sprintf("fee %v out of range", req.Fee), nil)
	}

	var (
		tx       mwtx.Transaction
		blinding curve.Scalar
		surplus  = -req.Fee
	)

	for _, in := range req.Spend {
		if in.Value < 0 || in.Value > btcutil.MaxSatoshi {
			return nil, mwtx.NewError(mwtx.ErrMalformedTx,
				fmt.Sprintf("spent amount %v out of range",
					in.Value), nil)
		}

		tx.Inputs = append(tx.Inputs, mwtx.Input{
			Commitment: in.Commitment(),
		})
		blinding = blinding.Sub(in.Blinding)
		surplus += in.Value
	}

	openings := make([]Opening, 0, len(req.Pay))
	for _, amt := range req.Pay {
		// Range proofs dominate the cost of building.
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out, err := NewOpening(amt)
		if err != nil {
			return nil, err
		}

		proof, err := rangeproof.Prove(
			uint64(amt), out.Blinding, b.cfg.RangeProofBits,
		)
		if err != nil {
			return nil, fmt.Errorf("prove output of %v: %w", amt, err)
		}

		tx.Outputs = append(tx.Outputs, mwtx.Output{
			Commitment: out.Commitment(),
			RangeProof: proof,
		})
		openings = append(openings, out)
		blinding = blinding.Add(out.Blinding)
		surplus -= amt
	}

	offset, err := curve.RandomScalar()
	if err != nil {
		return nil, err
	}
	excess := blinding.Sub(offset)

	kernel := mwtx.Kernel{
		Excess:     commitment.FromExcess(excess),
		Fee:        req.Fee,
		LockHeight: req.LockHeight,
	}
	if !req.DeferSigning {
		if err := kernel.Sign(excess); err != nil {
			return nil, err
		}
	}

	tx.Kernels = []mwtx.Kernel{kernel}
	tx.Offset = offset
	tx.Surplus = surplus

	log.Debugf("Built partial with %d inputs, %d outputs, fee %v, "+
		"surplus %v", len(tx.Inputs), len(tx.Outputs), req.Fee, surplus)

	return &Partial{Tx: &tx, Outputs: openings, excess: excess}, nil
}
