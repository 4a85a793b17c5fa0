// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coordinator

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/mwmerge/builder"
	"github.com/btcsuite/mwmerge/mwtx"
	"github.com/btcsuite/mwmerge/pkg/mwunit"
	"github.com/btcsuite/mwmerge/utxo"
	"github.com/btcsuite/mwmerge/validate"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testBits = 40

var (
	testBuilder = builder.New(builder.Config{RangeProofBits: testBits})

	testValidator = validate.New(validate.Config{RangeProofBits: testBits})

	errBroadcast = errors.New("broadcast failed")
	errSign      = errors.New("signing failed")
)

// mockBroadcaster is a mock implementation of Broadcaster.
type mockBroadcaster struct {
	mock.Mock
}

func (m *mockBroadcaster) Broadcast(ctx context.Context,
	tx *mwtx.Transaction, label string) error {

	args := m.Called(ctx, tx, label)
	return args.Error(0)
}

// mockSigner is a mock implementation of Signer.
type mockSigner struct {
	mock.Mock
}

func (m *mockSigner) SignKernels(ctx context.Context,
	tx *mwtx.Transaction) error {

	args := m.Called(ctx, tx)
	return args.Error(0)
}

var (
	_ Broadcaster = (*mockBroadcaster)(nil)
	_ Signer      = (*mockSigner)(nil)
)

// testHarness holds the partials of one payment: a signed partial spending
// x and a partial with a deferred signature claiming the remainder.
type testHarness struct {
	x      builder.Opening
	a, b   *builder.Partial
	signer *builder.KeySigner
	view   *utxo.MemView
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	ctx := context.Background()

	x, err := builder.NewOpening(150_000_000)
	require.NoError(t, err)

	a, err := testBuilder.Build(ctx, builder.Request{
		Spend: []builder.Opening{x},
		Pay:   []btcutil.Amount{40_000_000},
		Fee:   5_000_000,
	})
	require.NoError(t, err)

	b, err := testBuilder.Build(ctx, builder.Request{
		Pay:          []btcutil.Amount{100_000_000},
		Fee:          5_000_000,
		DeferSigning: true,
	})
	require.NoError(t, err)

	signer := builder.NewKeySigner()
	signer.AddPartial(b)

	return &testHarness{
		x:      x,
		a:      a,
		b:      b,
		signer: signer,
		view:   utxo.NewMemView(x.Commitment()),
	}
}

func (h *testHarness) partials() []*mwtx.Transaction {
	return []*mwtx.Transaction{h.a.Tx, h.b.Tx}
}

// TestNew checks that a validator is required.
func TestNew(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.ErrorIs(t, err, ErrNoValidator)

	c, err := New(Config{Validator: testValidator})
	require.NoError(t, err)
	require.NotNil(t, c)
}

// TestAggregate checks the successful path: the merged transaction is
// signed, valid and broadcast exactly once.
func TestAggregate(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	broadcaster := &mockBroadcaster{}
	broadcaster.On("Broadcast", mock.Anything,
		mock.AnythingOfType("*mwtx.Transaction"), "payment",
	).Return(nil).Once()

	c, err := New(Config{
		Validator:   testValidator,
		View:        h.view,
		Signer:      h.signer,
		Broadcaster: broadcaster,
		MinFeeRate:  mwunit.NewSatPerKByte(1000),
	})
	require.NoError(t, err)

	tx, err := c.Aggregate(context.Background(), h.partials(), "payment")
	require.NoError(t, err)
	broadcaster.AssertExpectations(t)

	require.Len(t, tx.Inputs, 1)
	require.Len(t, tx.Outputs, 2)
	require.Len(t, tx.Kernels, 2)
	require.Zero(t, tx.Surplus)
	for i := range tx.Kernels {
		require.NoError(t, tx.Kernels[i].VerifySignature())
	}

	// The partial itself was not signed in place.
	require.False(t, h.b.Tx.Kernels[0].IsSigned())
}

// TestAggregateFailures checks that every failing step aborts before
// broadcasting.
func TestAggregateFailures(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string

		// setup adjusts the harness, the configuration and the
		// partials.
		setup func(h *testHarness, cfg *Config) []*mwtx.Transaction

		broadcast error
		expected  error
	}{
		{
			name: "empty",
			setup: func(_ *testHarness, _ *Config) []*mwtx.Transaction {
				return nil
			},
			expected: mwtx.ErrEmptyMergeSet,
		},
		{
			name: "unbalanced partial",
			setup: func(h *testHarness, _ *Config) []*mwtx.Transaction {
				a := h.a.Tx.Copy()
				a.Surplus--

				return []*mwtx.Transaction{a, h.b.Tx}
			},
			expected: mwtx.ErrUnbalancedTransaction,
		},
		{
			name: "duplicate partial",
			setup: func(h *testHarness, _ *Config) []*mwtx.Transaction {
				return []*mwtx.Transaction{h.a.Tx, h.a.Tx}
			},
			expected: mwtx.ErrDuplicateCommitment,
		},
		{
			name: "no signer",
			setup: func(h *testHarness, cfg *Config) []*mwtx.Transaction {
				cfg.Signer = nil
				return h.partials()
			},
			expected: mwtx.ErrInvalidKernelSignature,
		},
		{
			name: "signer without the secret",
			setup: func(h *testHarness, cfg *Config) []*mwtx.Transaction {
				cfg.Signer = builder.NewKeySigner()
				return h.partials()
			},
			expected: mwtx.ErrInvalidKernelSignature,
		},
		{
			name: "signer failure",
			setup: func(h *testHarness, cfg *Config) []*mwtx.Transaction {
				signer := &mockSigner{}
				signer.On("SignKernels", mock.Anything,
					mock.Anything).Return(errSign)
				cfg.Signer = signer

				return h.partials()
			},
			expected: errSign,
		},
		{
			name: "input already spent",
			setup: func(h *testHarness, _ *Config) []*mwtx.Transaction {
				_ = h.view.MarkSpent(h.x.Commitment())
				return h.partials()
			},
			expected: mwtx.ErrUnknownOrSpentInput,
		},
		{
			name: "remainder unclaimed",
			setup: func(h *testHarness, _ *Config) []*mwtx.Transaction {
				return []*mwtx.Transaction{h.a.Tx}
			},
			expected: mwtx.ErrUnbalancedTransaction,
		},
		{
			name: "fee rate too low",
			setup: func(h *testHarness, cfg *Config) []*mwtx.Transaction {
				cfg.MinFeeRate = mwunit.NewSatPerKByte(
					btcutil.MaxSatoshi,
				)
				return h.partials()
			},
			expected: mwtx.ErrInsufficientFee,
		},
		{
			name: "broadcast failure",
			setup: func(h *testHarness, _ *Config) []*mwtx.Transaction {
				return h.partials()
			},
			broadcast: errBroadcast,
			expected:  errBroadcast,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)

			broadcaster := &mockBroadcaster{}
			broadcaster.On("Broadcast", mock.Anything, mock.Anything,
				mock.Anything).Return(tc.broadcast)

			cfg := Config{
				Validator:   testValidator,
				View:        h.view,
				Signer:      h.signer,
				Broadcaster: broadcaster,
			}
			partials := tc.setup(h, &cfg)

			c, err := New(cfg)
			require.NoError(t, err)

			tx, err := c.Aggregate(
				context.Background(), partials, "payment",
			)
			require.ErrorIs(t, err, tc.expected)
			require.Nil(t, tx)

			if tc.broadcast == nil {
				broadcaster.AssertNotCalled(t, "Broadcast",
					mock.Anything, mock.Anything,
					mock.Anything)
			}
		})
	}
}

// TestLedgerBroadcaster checks that accepted transactions advance the
// ledger and are written out, and that a double spend is refused.
func TestLedgerBroadcaster(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	var out bytes.Buffer
	c, err := New(Config{
		Validator: testValidator,
		View:      h.view,
		Signer:    h.signer,
		Broadcaster: &LedgerBroadcaster{
			Ledger: h.view,
			Out:    &out,
		},
	})
	require.NoError(t, err)

	tx, err := c.Aggregate(ctx, h.partials(), "payment")
	require.NoError(t, err)

	decoded, err := mwtx.FromHex(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	require.True(t, decoded.Equal(tx))

	state, err := h.view.LookupCommitment(ctx, h.x.Commitment())
	require.NoError(t, err)
	require.Equal(t, utxo.StateSpent, state)

	for _, o := range tx.Outputs {
		state, err := h.view.LookupCommitment(ctx, o.Commitment)
		require.NoError(t, err)
		require.Equal(t, utxo.StateUnspent, state)
	}

	// Aggregating the same partials again spends x twice.
	_, err = c.Aggregate(ctx, h.partials(), "again")
	require.ErrorIs(t, err, mwtx.ErrUnknownOrSpentInput)
}

// TestCheckFeeRate checks the boundary of the fee rate policy and that a
// rejection names the smallest fee that would have been accepted.
func TestCheckFeeRate(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	tx := h.a.Tx
	fee := tx.TotalFee()
	size := mwunit.TxSize(tx.SerializeSize())

	// A rate exactly met by the transaction is accepted.
	c := &Coordinator{cfg: Config{
		MinFeeRate: mwunit.CalcSatPerKByte(fee, size),
	}}
	require.NoError(t, c.checkFeeRate(tx))

	// One satoshi more over the same size is not.
	c.cfg.MinFeeRate = mwunit.CalcSatPerKByte(fee+1, size)
	err := c.checkFeeRate(tx)
	require.ErrorIs(t, err, mwtx.ErrInsufficientFee)
	require.Contains(t, err.Error(), "requires at least "+
		(fee + 1).String())
}
