// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package validate

import (
	"context"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/mwmerge/builder"
	"github.com/btcsuite/mwmerge/commitment"
	"github.com/btcsuite/mwmerge/cutthrough"
	"github.com/btcsuite/mwmerge/curve"
	"github.com/btcsuite/mwmerge/mwtx"
	"github.com/btcsuite/mwmerge/utxo"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testBits = 40

var (
	testBuilder = builder.New(builder.Config{RangeProofBits: testBits})

	errLookup = errors.New("lookup failed")
)

// mockView is a mock implementation of utxo.View.
type mockView struct {
	mock.Mock
}

var _ utxo.View = (*mockView)(nil)

func (m *mockView) LookupCommitment(ctx context.Context,
	c commitment.Commitment) (utxo.State, error) {

	args := m.Called(ctx, c)
	return args.Get(0).(utxo.State), args.Error(1)
}

// onLookup sets up the mock to answer for c.
func (m *mockView) onLookup(c commitment.Commitment, state utxo.State,
	err error) *mock.Call {

	return m.On("LookupCommitment", mock.Anything,
		mock.MatchedBy(func(other commitment.Commitment) bool {
			return other.Equals(c)
		}),
	).Return(state, err)
}

func btc(t *testing.T, f float64) btcutil.Amount {
	t.Helper()

	amt, err := btcutil.NewAmount(f)
	require.NoError(t, err)

	return amt
}

// scenario holds two partials: one spends x into y and passes the rest on,
// the other claims it for z.
type scenario struct {
	x      builder.Opening
	a, b   *builder.Partial
	merged *mwtx.Transaction
}

func newScenario(t *testing.T) *scenario {
	t.Helper()

	ctx := context.Background()

	x, err := builder.NewOpening(btc(t, 1.5))
	require.NoError(t, err)

	a, err := testBuilder.Build(ctx, builder.Request{
		Spend: []builder.Opening{x},
		Pay:   []btcutil.Amount{btc(t, 0.4)},
		Fee:   btc(t, 0.05),
	})
	require.NoError(t, err)

	b, err := testBuilder.Build(ctx, builder.Request{
		Pay: []btcutil.Amount{btc(t, 1.0)},
		Fee: btc(t, 0.05),
	})
	require.NoError(t, err)

	merged, err := cutthrough.Merge([]*mwtx.Transaction{a.Tx, b.Tx})
	require.NoError(t, err)

	return &scenario{x: x, a: a, b: b, merged: merged}
}

// TestValidateScenario checks that the merged scenario validates against a
// view in which x is unspent and that every input is looked up.
func TestValidateScenario(t *testing.T) {
	t.Parallel()

	s := newScenario(t)
	v := New(Config{RangeProofBits: testBits})

	view := &mockView{}
	view.onLookup(s.x.Commitment(), utxo.StateUnspent, nil).Once()

	require.NoError(t, v.Validate(context.Background(), s.merged, view))
	view.AssertExpectations(t)

	// The same holds against a real ledger.
	require.NoError(t, v.Validate(
		context.Background(), s.merged, utxo.NewMemView(s.x.Commitment()),
	))
}

// TestValidateFailures checks which error each kind of defect produces.
func TestValidateFailures(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string

		// mutate alters the merged scenario transaction.
		mutate func(t *testing.T, s *scenario, tx *mwtx.Transaction)

		// state is what the view reports for x.
		state     utxo.State
		lookupErr error

		expected error
	}{
		{
			name: "duplicate output",
			mutate: func(_ *testing.T, _ *scenario,
				tx *mwtx.Transaction) {

				tx.Outputs = append(tx.Outputs, tx.Outputs[0])
			},
			state:    utxo.StateUnspent,
			expected: mwtx.ErrDuplicateCommitment,
		},
		{
			name:     "input never created",
			state:    utxo.StateAbsent,
			expected: mwtx.ErrUnknownOrSpentInput,
		},
		{
			name:     "input already spent",
			state:    utxo.StateSpent,
			expected: mwtx.ErrUnknownOrSpentInput,
		},
		{
			name:      "lookup failure",
			state:     utxo.StateAbsent,
			lookupErr: errLookup,
			expected:  errLookup,
		},
		{
			name: "output commitment replaced",
			mutate: func(t *testing.T, _ *scenario,
				tx *mwtx.Transaction) {

				r, err := curve.RandomScalar()
				require.NoError(t, err)

				tx.Outputs[0].Commitment = commitment.Commit(
					uint64(btc(t, 0.4)), r,
				)
			},
			state:    utxo.StateUnspent,
			expected: mwtx.ErrUnbalancedTransaction,
		},
		{
			name: "value passed through",
			mutate: func(_ *testing.T, s *scenario,
				tx *mwtx.Transaction) {

				*tx = *s.a.Tx.Copy()
			},
			state:    utxo.StateUnspent,
			expected: mwtx.ErrUnbalancedTransaction,
		},
		{
			name: "fee moved between kernels",
			mutate: func(_ *testing.T, _ *scenario,
				tx *mwtx.Transaction) {

				// The total fee and so the balance are kept.
				tx.Kernels[0].Fee += 1000
				tx.Kernels[1].Fee -= 1000
			},
			state:    utxo.StateUnspent,
			expected: mwtx.ErrInvalidKernelSignature,
		},
		{
			name: "unsigned kernel",
			mutate: func(_ *testing.T, _ *scenario,
				tx *mwtx.Transaction) {

				tx.Kernels[1].Signature = nil
			},
			state:    utxo.StateUnspent,
			expected: mwtx.ErrInvalidKernelSignature,
		},
		{
			name: "corrupted range proof",
			mutate: func(_ *testing.T, _ *scenario,
				tx *mwtx.Transaction) {

				tx.Outputs[1].RangeProof[50] ^= 0x01
			},
			state:    utxo.StateUnspent,
			expected: mwtx.ErrInvalidRangeProof,
		},
		{
			name: "missing range proof",
			mutate: func(_ *testing.T, _ *scenario,
				tx *mwtx.Transaction) {

				tx.Outputs[0].RangeProof = nil
			},
			state:    utxo.StateUnspent,
			expected: mwtx.ErrInvalidRangeProof,
		},
	}

	v := New(Config{RangeProofBits: testBits})

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := newScenario(t)
			tx := s.merged.Copy()
			if tc.mutate != nil {
				tc.mutate(t, s, tx)
			}

			view := &mockView{}
			view.onLookup(s.x.Commitment(), tc.state, tc.lookupErr)

			err := v.Validate(context.Background(), tx, view)
			require.ErrorIs(t, err, tc.expected)
		})
	}
}

// TestValidateRangeProofWidth checks that proofs narrower than required are
// refused.
func TestValidateRangeProofWidth(t *testing.T) {
	t.Parallel()

	s := newScenario(t)
	view := utxo.NewMemView(s.x.Commitment())

	err := Validate(context.Background(), s.merged, view)
	require.ErrorIs(t, err, mwtx.ErrInvalidRangeProof)

	err = New(Config{RangeProofBits: testBits}).Validate(
		context.Background(), s.merged, view,
	)
	require.NoError(t, err)
}

// TestValidateNilArguments checks handling of a nil transaction and a
// missing view.
func TestValidateNilArguments(t *testing.T) {
	t.Parallel()

	v := New(Config{})
	ctx := context.Background()

	require.ErrorIs(t, v.Validate(ctx, nil, nil), mwtx.ErrMalformedTx)
	require.ErrorIs(t, v.ValidatePartial(ctx, nil), mwtx.ErrMalformedTx)

	s := newScenario(t)
	require.ErrorIs(t, v.Validate(ctx, s.merged, nil),
		mwtx.ErrUnknownOrSpentInput)
}

// TestValidatePartial checks that partials are vetted without a view and
// with their surplus allowed.
func TestValidatePartial(t *testing.T) {
	t.Parallel()

	s := newScenario(t)
	v := New(Config{RangeProofBits: testBits})
	ctx := context.Background()

	require.NotZero(t, s.a.Tx.Surplus)
	require.NoError(t, v.ValidatePartial(ctx, s.a.Tx))
	require.NoError(t, v.ValidatePartial(ctx, s.b.Tx))

	tampered := s.a.Tx.Copy()
	tampered.Surplus++
	require.ErrorIs(t, v.ValidatePartial(ctx, tampered),
		mwtx.ErrUnbalancedTransaction)

	tampered = s.b.Tx.Copy()
	tampered.Kernels[0].Signature = nil
	require.ErrorIs(t, v.ValidatePartial(ctx, tampered),
		mwtx.ErrInvalidKernelSignature)
}

// TestValidateBatch checks that batch results line up with their
// transactions.
func TestValidateBatch(t *testing.T) {
	t.Parallel()

	v := New(Config{RangeProofBits: testBits, BatchWorkers: 2})
	ctx := context.Background()

	var (
		txns     []*mwtx.Transaction
		expected []error
		view     = utxo.NewMemView()
	)
	for i := 0; i < 5; i++ {
		s := newScenario(t)

		tx := s.merged
		var want error
		switch i {
		case 1:
			// x is not added to the view.
			want = mwtx.ErrUnknownOrSpentInput

		case 3:
			tx = s.a.Tx
			view.AddUnspent(s.x.Commitment())
			want = mwtx.ErrUnbalancedTransaction

		default:
			view.AddUnspent(s.x.Commitment())
		}

		txns = append(txns, tx)
		expected = append(expected, want)
	}

	results := v.ValidateBatch(ctx, txns, view)
	require.Len(t, results, len(txns))
	for i, err := range results {
		if expected[i] == nil {
			require.NoError(t, err, "tx %d", i)
			continue
		}
		require.ErrorIs(t, err, expected[i], "tx %d", i)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	for _, err := range v.ValidateBatch(canceled, txns, view) {
		require.ErrorIs(t, err, context.Canceled)
	}
}
