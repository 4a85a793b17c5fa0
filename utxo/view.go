// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package utxo tracks which commitments are unspent outputs of the chain.
// The validator consults a View to decide whether the inputs of a
// transaction may be spent.
package utxo

import (
	"context"

	"github.com/btcsuite/mwmerge/commitment"
	"github.com/btcsuite/mwmerge/mwtx"
)

// State is the chain state of a commitment.
type State uint8

const (
	// StateAbsent means the commitment was never created.
	StateAbsent State = iota

	// StateUnspent means the commitment is an unspent output.
	StateUnspent

	// StateSpent means the commitment was created and later spent.
	StateSpent
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateUnspent:
		return "unspent"
	case StateSpent:
		return "spent"
	default:
		return "unknown"
	}
}

// View answers whether a commitment is an unspent output.
type View interface {
	// LookupCommitment returns the state of c.
	LookupCommitment(ctx context.Context, c commitment.Commitment) (State,
		error)
}

// Ledger is a View that can be advanced by accepted transactions.
type Ledger interface {
	View

	// ApplyTransaction marks the inputs of tx spent and adds its outputs
	// as unspent. It fails, changing nothing, if an input is not unspent
	// or an output already exists.
	ApplyTransaction(ctx context.Context, tx *mwtx.Transaction) error
}

// spendError reports an input that cannot be spent.
func spendError(c commitment.Commitment, state State) error {
	return mwtx.NewError(mwtx.ErrUnknownOrSpentInput,
		"input "+c.String()+" is "+state.String(), nil)
}

// createError reports an output that already exists.
func createError(c commitment.Commitment, state State) error {
	return mwtx.NewError(mwtx.ErrDuplicateCommitment,
		"output "+c.String()+" already "+state.String(), nil)
}
