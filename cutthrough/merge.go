// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package cutthrough merges independently built partial transactions into a
// single transaction, removing every output that is spent by an input of the
// same merge.
package cutthrough

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/mwmerge/commitment"
	"github.com/btcsuite/mwmerge/curve"
	"github.com/btcsuite/mwmerge/mwtx"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Stats describes what a merge did.
type Stats struct {
	// Transactions is the number of merged transactions.
	Transactions int

	// Inputs and Outputs count the entries before cut-through.
	Inputs  int
	Outputs int

	// Canceled is the number of commitments removed from both sides.
	Canceled int

	// Kernels is the number of kernels carried over.
	Kernels int
}

// String returns a summary of the merge statistics.
func (s Stats) String() string {
	return fmt.Sprintf("txns=%d inputs=%d outputs=%d canceled=%d "+
		"kernels=%d", s.Transactions, s.Inputs, s.Outputs, s.Canceled,
		s.Kernels)
}

// Merge combines txns into one transaction. Inputs and outputs are unioned,
// kernels are concatenated in the order given, offsets and surpluses are
// summed, and any commitment present both as an output and as an input of
// the merge set is removed from both sides.
//
// A commitment may not be created twice, nor spent twice, anywhere in the
// set. Merge does not verify balance or signatures and never modifies its
// arguments.
func Merge(txns []*mwtx.Transaction) (*mwtx.Transaction, error) {
	merged, _, err := MergeWithStats(txns)
	return merged, err
}

// MergeWithStats is Merge that also reports what was merged.
func MergeWithStats(txns []*mwtx.Transaction) (*mwtx.Transaction, Stats,
	error) {

	var stats Stats

	if len(txns) == 0 {
		return nil, stats, mwtx.NewError(mwtx.ErrEmptyMergeSet,
			"nothing to merge", nil)
	}

	for i, tx := range txns {
		if tx == nil {
			return nil, stats, mwtx.NewError(mwtx.ErrMalformedTx,
				fmt.Sprintf("transaction %d is nil", i), nil)
		}

		stats.Inputs += len(tx.Inputs)
		stats.Outputs += len(tx.Outputs)
		stats.Kernels += len(tx.Kernels)
	}
	stats.Transactions = len(txns)

	// A single transaction is returned as is, including any commitment
	// it both creates and spends.
	if len(txns) == 1 {
		if err := mwtx.CheckUnique(txns[0]); err != nil {
			return nil, stats, err
		}

		return txns[0].Copy(), stats, nil
	}

	created, spent, err := indexCommitments(txns)
	if err != nil {
		return nil, stats, err
	}

	canceled := created.Intersect(spent)
	stats.Canceled = len(canceled)

	merged := &mwtx.Transaction{}
	offsets := make([]curve.Scalar, 0, len(txns))

	var surplus btcutil.Amount
	for _, tx := range txns {
		for _, in := range tx.Inputs {
			if canceled.Contains(in.Commitment.Key()) {
				continue
			}
			merged.Inputs = append(merged.Inputs, in)
		}

		for _, out := range tx.Outputs {
			if canceled.Contains(out.Commitment.Key()) {
				continue
			}

			out.RangeProof = bytes.Clone(out.RangeProof)
			merged.Outputs = append(merged.Outputs, out)
		}

		for _, k := range tx.Kernels {
			k.Signature = bytes.Clone(k.Signature)
			merged.Kernels = append(merged.Kernels, k)
		}

		offsets = append(offsets, tx.Offset)
		surplus += tx.Surplus
	}

	merged.Offset = curve.SumScalars(offsets...)
	merged.Surplus = surplus

	log.Debugf("Merged transactions: %v", stats)

	return merged, stats, nil
}

// indexCommitments collects the created and spent commitments of the merge
// set, rejecting any commitment created twice or spent twice.
func indexCommitments(txns []*mwtx.Transaction) (fn.Set[commitment.Key],
	fn.Set[commitment.Key], error) {

	created := fn.NewSet[commitment.Key]()
	spent := fn.NewSet[commitment.Key]()

	for i, tx := range txns {
		for _, out := range tx.Outputs {
			key := out.Commitment.Key()
			if created.Contains(key) {
				return nil, nil, mwtx.NewError(
					mwtx.ErrDuplicateCommitment,
					fmt.Sprintf("output %v of transaction "+
						"%d already created", key, i), nil,
				)
			}
			created.Add(key)
		}

		for _, in := range tx.Inputs {
			key := in.Commitment.Key()
			if spent.Contains(key) {
				return nil, nil, mwtx.NewError(
					mwtx.ErrDuplicateCommitment,
					fmt.Sprintf("input %v of transaction "+
						"%d already spent", key, i), nil,
				)
			}
			spent.Add(key)
		}
	}

	return created, spent, nil
}
