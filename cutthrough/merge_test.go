// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cutthrough

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/mwmerge/builder"
	"github.com/btcsuite/mwmerge/commitment"
	"github.com/btcsuite/mwmerge/curve"
	"github.com/btcsuite/mwmerge/mwtx"
	"github.com/stretchr/testify/require"
)

// testBuilder keeps range proofs small; 2^40 sat covers every amount used
// here.
var testBuilder = builder.New(builder.Config{RangeProofBits: 40})

func btc(t *testing.T, f float64) btcutil.Amount {
	t.Helper()

	amt, err := btcutil.NewAmount(f)
	require.NoError(t, err)

	return amt
}

func opening(t *testing.T, value btcutil.Amount) builder.Opening {
	t.Helper()

	o, err := builder.NewOpening(value)
	require.NoError(t, err)

	return o
}

func build(t *testing.T, req builder.Request) *builder.Partial {
	t.Helper()

	p, err := testBuilder.Build(context.Background(), req)
	require.NoError(t, err)

	return p
}

func keys(cs []commitment.Commitment) []commitment.Key {
	out := make([]commitment.Key, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Key())
	}

	return out
}

// TestMergeEmpty checks that there is nothing to merge in an empty set.
func TestMergeEmpty(t *testing.T) {
	t.Parallel()

	_, err := Merge(nil)
	require.ErrorIs(t, err, mwtx.ErrEmptyMergeSet)

	_, err = Merge([]*mwtx.Transaction{})
	require.ErrorIs(t, err, mwtx.ErrEmptyMergeSet)

	p := build(t, builder.Request{Pay: []btcutil.Amount{1}})
	_, err = Merge([]*mwtx.Transaction{p.Tx, nil})
	require.ErrorIs(t, err, mwtx.ErrMalformedTx)
}

// TestMergeSingle checks that merging one transaction returns an equal but
// independent copy of it.
func TestMergeSingle(t *testing.T) {
	t.Parallel()

	x := opening(t, 1000)
	p := build(t, builder.Request{
		Spend: []builder.Opening{x},
		Pay:   []btcutil.Amount{500, 400},
		Fee:   100,
	})

	merged, err := Merge([]*mwtx.Transaction{p.Tx})
	require.NoError(t, err)
	require.True(t, merged.Equal(p.Tx))
	require.NotSame(t, p.Tx, merged)

	merged.Outputs[0].RangeProof[1] ^= 0xff
	merged.Kernels[0].Signature[0] ^= 0xff
	require.NoError(t, p.Tx.Kernels[0].VerifySignature())
	require.False(t, merged.Equal(p.Tx))

	// A commitment created and spent by the same transaction is kept.
	self := p.Tx.Copy()
	self.Inputs = append(self.Inputs, mwtx.Input{
		Commitment: self.Outputs[0].Commitment,
	})
	merged, err = Merge([]*mwtx.Transaction{self})
	require.NoError(t, err)
	require.True(t, merged.Equal(self))

	dup := p.Tx.Copy()
	dup.Outputs = append(dup.Outputs, dup.Outputs[0])
	_, err = Merge([]*mwtx.Transaction{dup})
	require.ErrorIs(t, err, mwtx.ErrDuplicateCommitment)
}

// TestMergeScenario merges a partial that spends X into Y and passes its
// remainder on with a partial that claims the remainder for Z. No output of
// one is spent by the other so nothing cancels.
func TestMergeScenario(t *testing.T) {
	t.Parallel()

	x := opening(t, btc(t, 1.5))
	a := build(t, builder.Request{
		Spend: []builder.Opening{x},
		Pay:   []btcutil.Amount{btc(t, 0.4)},
		Fee:   btc(t, 0.05),
	})
	require.Equal(t, btc(t, 1.05), a.Tx.Surplus)

	b := build(t, builder.Request{
		Pay: []btcutil.Amount{btc(t, 1.0)},
		Fee: btc(t, 0.05),
	})
	require.Equal(t, -btc(t, 1.05), b.Tx.Surplus)

	merged, stats, err := MergeWithStats([]*mwtx.Transaction{a.Tx, b.Tx})
	require.NoError(t, err)
	require.Zero(t, stats.Canceled)
	require.Equal(t, 2, stats.Transactions)

	require.Equal(t,
		[]commitment.Key{x.Commitment().Key()},
		keys(merged.InputCommitments()),
	)
	require.Equal(t, []commitment.Key{
		a.Outputs[0].Commitment().Key(),
		b.Outputs[0].Commitment().Key(),
	}, keys(merged.OutputCommitments()))

	require.Len(t, merged.Kernels, 2)
	require.Equal(t, a.Tx.Kernels[0], merged.Kernels[0])
	require.Equal(t, b.Tx.Kernels[0], merged.Kernels[1])
	require.Equal(t, btc(t, 0.10), merged.TotalFee())
	require.Zero(t, merged.Surplus)
	require.True(t, mwtx.CheckLocalBalance(merged))

	for i := range merged.Kernels {
		require.NoError(t, merged.Kernels[i].VerifySignature())
	}
}

// TestMergeCutThrough merges the partial creating Y with a partial spending
// Y and checks that Y disappears from both sides.
func TestMergeCutThrough(t *testing.T) {
	t.Parallel()

	x := opening(t, btc(t, 1.5))
	a := build(t, builder.Request{
		Spend: []builder.Opening{x},
		Pay:   []btcutil.Amount{btc(t, 0.4)},
		Fee:   btc(t, 0.05),
	})
	y := a.Outputs[0]

	c := build(t, builder.Request{
		Spend: []builder.Opening{y},
		Pay:   []btcutil.Amount{btc(t, 0.25)},
		Fee:   btc(t, 0.025),
	})
	require.Equal(t, btc(t, 0.125), c.Tx.Surplus)

	merged, stats, err := MergeWithStats([]*mwtx.Transaction{a.Tx, c.Tx})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Canceled)
	require.Equal(t, 2, stats.Inputs)
	require.Equal(t, 2, stats.Outputs)

	for _, in := range merged.Inputs {
		require.False(t, in.Commitment.Equals(y.Commitment()))
	}
	for _, out := range merged.Outputs {
		require.False(t, out.Commitment.Equals(y.Commitment()))
	}

	require.Equal(t,
		[]commitment.Key{x.Commitment().Key()},
		keys(merged.InputCommitments()),
	)
	require.Equal(t,
		[]commitment.Key{c.Outputs[0].Commitment().Key()},
		keys(merged.OutputCommitments()),
	)
	require.Equal(t, []mwtx.Kernel{a.Tx.Kernels[0], c.Tx.Kernels[0]},
		merged.Kernels)
	require.Equal(t, btc(t, 0.075), merged.TotalFee())
	require.Equal(t, a.Tx.Surplus+c.Tx.Surplus, merged.Surplus)
	require.True(t, mwtx.CheckLocalBalance(merged))

	// Order of the merge set does not matter for cancellation.
	reversed, err := Merge([]*mwtx.Transaction{c.Tx, a.Tx})
	require.NoError(t, err)
	require.Len(t, reversed.Inputs, 1)
	require.Len(t, reversed.Outputs, 1)
	require.True(t, mwtx.CheckLocalBalance(reversed))
}

// TestMergeFullCancellation checks that every input and output may cancel,
// leaving a transaction of kernels only.
func TestMergeFullCancellation(t *testing.T) {
	t.Parallel()

	create := build(t, builder.Request{
		Pay: []btcutil.Amount{1000},
		Fee: 10,
	})
	spend := build(t, builder.Request{
		Spend: []builder.Opening{create.Outputs[0]},
		Fee:   10,
	})

	merged, err := Merge([]*mwtx.Transaction{create.Tx, spend.Tx})
	require.NoError(t, err)
	require.Empty(t, merged.Inputs)
	require.Empty(t, merged.Outputs)
	require.Len(t, merged.Kernels, 2)
	require.Equal(t, btcutil.Amount(-20), merged.Surplus)
	require.True(t, mwtx.CheckLocalBalance(merged))
}

// TestMergeDuplicates checks that a commitment created twice or spent twice
// in the merge set is refused.
func TestMergeDuplicates(t *testing.T) {
	t.Parallel()

	x := opening(t, 1000)
	p := build(t, builder.Request{
		Spend: []builder.Opening{x},
		Pay:   []btcutil.Amount{990},
		Fee:   10,
	})

	_, err := Merge([]*mwtx.Transaction{p.Tx, p.Tx})
	require.ErrorIs(t, err, mwtx.ErrDuplicateCommitment)

	// Two partials spending the same output.
	doubleSpend := build(t, builder.Request{
		Spend: []builder.Opening{x},
		Pay:   []btcutil.Amount{900},
		Fee:   100,
	})
	_, err = Merge([]*mwtx.Transaction{p.Tx, doubleSpend.Tx})
	require.ErrorIs(t, err, mwtx.ErrDuplicateCommitment)

	// A duplicate is reported even if the commitment would also cancel.
	spendOut := build(t, builder.Request{
		Spend: []builder.Opening{p.Outputs[0]},
		Fee:   990,
	})
	_, err = Merge([]*mwtx.Transaction{p.Tx, spendOut.Tx, spendOut.Tx})
	require.ErrorIs(t, err, mwtx.ErrDuplicateCommitment)
}

// TestMergeBalanceAndOffset checks that merging locally balanced partials
// yields a locally balanced transaction whose offset is the sum of the
// offsets, and that merging leaves its arguments untouched.
func TestMergeBalanceAndOffset(t *testing.T) {
	t.Parallel()

	var (
		txns      []*mwtx.Transaction
		snapshots []*mwtx.Transaction
		offsets   []curve.Scalar
		surplus   btcutil.Amount
		fees      btcutil.Amount
	)

	prev := opening(t, 100_000)
	for i := 0; i < 5; i++ {
		p := build(t, builder.Request{
			Spend: []builder.Opening{prev},
			Pay: []btcutil.Amount{
				btcutil.Amount(50_000 - i*1000),
				btcutil.Amount(10 + i),
			},
			Fee:        btcutil.Amount(100 * (i + 1)),
			LockHeight: uint32(i),
		})
		prev = p.Outputs[0]

		txns = append(txns, p.Tx)
		snapshots = append(snapshots, p.Tx.Copy())
		offsets = append(offsets, p.Tx.Offset)
		surplus += p.Tx.Surplus
		fees += p.Tx.TotalFee()
	}

	merged, stats, err := MergeWithStats(txns)
	require.NoError(t, err)
	require.Equal(t, 4, stats.Canceled)
	require.Len(t, merged.Inputs, 1)
	require.Len(t, merged.Outputs, 6)
	require.Len(t, merged.Kernels, 5)

	require.True(t, merged.Offset.Equals(curve.SumScalars(offsets...)))
	require.Equal(t, surplus, merged.Surplus)
	require.Equal(t, fees, merged.TotalFee())
	require.True(t, mwtx.CheckLocalBalance(merged))

	for i, tx := range txns {
		require.True(t, tx.Equal(snapshots[i]))
		require.Equal(t, tx.Kernels[0], merged.Kernels[i])
	}

	// Merging the merged result with nothing else changes nothing.
	again, err := Merge([]*mwtx.Transaction{merged})
	require.NoError(t, err)
	require.True(t, again.Equal(merged))

	// Merging is associative up to input and output order.
	left, err := Merge(txns[:2])
	require.NoError(t, err)
	right, err := Merge(txns[2:])
	require.NoError(t, err)
	nested, err := Merge([]*mwtx.Transaction{left, right})
	require.NoError(t, err)
	require.ElementsMatch(t, keys(merged.InputCommitments()),
		keys(nested.InputCommitments()))
	require.ElementsMatch(t, keys(merged.OutputCommitments()),
		keys(nested.OutputCommitments()))
	require.Equal(t, merged.Kernels, nested.Kernels)
	require.True(t, merged.Offset.Equals(nested.Offset))
}
