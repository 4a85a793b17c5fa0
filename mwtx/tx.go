// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package mwtx defines confidential transactions: inputs and outputs that
// hide their amounts behind Pedersen commitments, kernels that carry the fee
// and a signature proving the transaction is balanced, and a kernel offset.
//
// A transaction is balanced when
//
//	sum(outputs) - sum(inputs) + (sum(fees) + surplus)*H
//	    == sum(kernel excesses) + offset*G
//
// The surplus is zero for final transactions. Partial transactions built by
// independent wallets may release value for another partial of the same
// merge to claim (a positive surplus) or claim such value (a negative
// surplus); merging sums the surpluses.
package mwtx

import (
	"bytes"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/mwmerge/commitment"
	"github.com/btcsuite/mwmerge/curve"
)

// OutputFeatures are flags describing an output.
type OutputFeatures uint8

const (
	// FeaturePlain marks an ordinary output.
	FeaturePlain OutputFeatures = 0

	// FeatureCoinbase marks an output created by a block reward.
	FeatureCoinbase OutputFeatures = 1
)

// String returns a human-readable name for the features.
func (f OutputFeatures) String() string {
	switch f {
	case FeaturePlain:
		return "plain"
	case FeatureCoinbase:
		return "coinbase"
	default:
		return "unknown"
	}
}

// Input spends a previously created output, identified by its commitment.
type Input struct {
	Commitment commitment.Commitment
}

// Output creates a new unspent output.
type Output struct {
	Commitment commitment.Commitment
	RangeProof []byte
	Features   OutputFeatures
}

// Kernel is the signed, fee carrying statement of a transaction. Its
// signature proves knowledge of the discrete log of Excess over the message
// (Fee, LockHeight). Kernels survive cut-through unchanged.
type Kernel struct {
	Excess     commitment.Commitment
	Fee        btcutil.Amount
	LockHeight uint32

	// Signature is the 64-byte Schnorr signature, or empty while the
	// kernel is unsigned.
	Signature []byte
}

// IsSigned reports whether the kernel carries a signature.
func (k *Kernel) IsSigned() bool {
	return len(k.Signature) != 0
}

// Transaction is a confidential transaction. Inputs and outputs are sets:
// their order carries no meaning. Kernels keep the order in which they were
// added.
type Transaction struct {
	Inputs  []Input
	Outputs []Output
	Kernels []Kernel
	Offset  curve.Scalar

	// Surplus is the declared pass-through value of a partial
	// transaction. It must be zero once all partials have been merged.
	Surplus btcutil.Amount
}

// TotalFee returns the sum of all kernel fees.
func (tx *Transaction) TotalFee() btcutil.Amount {
	var total btcutil.Amount
	for i := range tx.Kernels {
		total += tx.Kernels[i].Fee
	}

	return total
}

// InputCommitments returns the input commitments in order.
func (tx *Transaction) InputCommitments() []commitment.Commitment {
	cs := make([]commitment.Commitment, 0, len(tx.Inputs))
	for _, in := range tx.Inputs {
		cs = append(cs, in.Commitment)
	}

	return cs
}

// OutputCommitments returns the output commitments in order.
func (tx *Transaction) OutputCommitments() []commitment.Commitment {
	cs := make([]commitment.Commitment, 0, len(tx.Outputs))
	for _, out := range tx.Outputs {
		cs = append(cs, out.Commitment)
	}

	return cs
}

// KernelExcesses returns the kernel excesses in order.
func (tx *Transaction) KernelExcesses() []commitment.Commitment {
	cs := make([]commitment.Commitment, 0, len(tx.Kernels))
	for _, k := range tx.Kernels {
		cs = append(cs, k.Excess)
	}

	return cs
}

// Copy returns a deep copy of the transaction.
func (tx *Transaction) Copy() *Transaction {
	out := &Transaction{
		Offset:  tx.Offset,
		Surplus: tx.Surplus,
	}

	if tx.Inputs != nil {
		out.Inputs = make([]Input, len(tx.Inputs))
		copy(out.Inputs, tx.Inputs)
	}

	if tx.Outputs != nil {
		out.Outputs = make([]Output, len(tx.Outputs))
		for i, o := range tx.Outputs {
			o.RangeProof = bytes.Clone(o.RangeProof)
			out.Outputs[i] = o
		}
	}

	if tx.Kernels != nil {
		out.Kernels = make([]Kernel, len(tx.Kernels))
		for i, k := range tx.Kernels {
			k.Signature = bytes.Clone(k.Signature)
			out.Kernels[i] = k
		}
	}

	return out
}

// Equal reports whether both transactions have the same inputs, outputs and
// kernels in the same order, and the same offset and surplus.
func (tx *Transaction) Equal(other *Transaction) bool {
	if len(tx.Inputs) != len(other.Inputs) ||
		len(tx.Outputs) != len(other.Outputs) ||
		len(tx.Kernels) != len(other.Kernels) {

		return false
	}

	for i := range tx.Inputs {
		if !tx.Inputs[i].Commitment.Equals(other.Inputs[i].Commitment) {
			return false
		}
	}

	for i := range tx.Outputs {
		a, b := &tx.Outputs[i], &other.Outputs[i]
		if !a.Commitment.Equals(b.Commitment) ||
			a.Features != b.Features ||
			!bytes.Equal(a.RangeProof, b.RangeProof) {

			return false
		}
	}

	for i := range tx.Kernels {
		a, b := &tx.Kernels[i], &other.Kernels[i]
		if !a.Excess.Equals(b.Excess) || a.Fee != b.Fee ||
			a.LockHeight != b.LockHeight ||
			!bytes.Equal(a.Signature, b.Signature) {

			return false
		}
	}

	return tx.Offset.Equals(other.Offset) && tx.Surplus == other.Surplus
}

// TxHash returns the double SHA-256 of the serialized transaction.
func (tx *Transaction) TxHash() chainhash.Hash {
	// Encoding only fails for transactions that could not be decoded
	// either, such as ones with oversized range proofs.
	var buf bytes.Buffer
	_ = tx.Serialize(&buf)

	return chainhash.DoubleHashH(buf.Bytes())
}
