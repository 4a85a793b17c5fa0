// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package utxo

import (
	"context"
	"sync"

	"github.com/btcsuite/mwmerge/commitment"
	"github.com/btcsuite/mwmerge/mwtx"
)

// MemView is an in-memory Ledger. It is safe for concurrent use.
type MemView struct {
	mu     sync.RWMutex
	states map[commitment.Key]State
}

// A compile-time assertion to ensure that MemView implements Ledger.
var _ Ledger = (*MemView)(nil)

// NewMemView returns a view in which the given commitments are unspent.
func NewMemView(unspent ...commitment.Commitment) *MemView {
	v := &MemView{states: make(map[commitment.Key]State, len(unspent))}
	for _, c := range unspent {
		v.states[c.Key()] = StateUnspent
	}

	return v
}

// LookupCommitment returns the state of c.
func (v *MemView) LookupCommitment(ctx context.Context,
	c commitment.Commitment) (State, error) {

	if err := ctx.Err(); err != nil {
		return StateAbsent, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.states[c.Key()], nil
}

// AddUnspent records c as an unspent output, overriding any previous state.
func (v *MemView) AddUnspent(c commitment.Commitment) {
	v.mu.Lock()
	v.states[c.Key()] = StateUnspent
	v.mu.Unlock()
}

// MarkSpent records c as spent. It fails if c is not unspent.
func (v *MemView) MarkSpent(c commitment.Commitment) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if state := v.states[c.Key()]; state != StateUnspent {
		return spendError(c, state)
	}
	v.states[c.Key()] = StateSpent

	return nil
}

// ApplyTransaction marks the inputs of tx spent and adds its outputs.
func (v *MemView) ApplyTransaction(ctx context.Context,
	tx *mwtx.Transaction) error {

	if err := ctx.Err(); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	// Check everything before touching the map so a failure leaves the
	// view unchanged.
	for _, in := range tx.Inputs {
		if state := v.states[in.Commitment.Key()]; state != StateUnspent {
			return spendError(in.Commitment, state)
		}
	}
	for _, out := range tx.Outputs {
		if state := v.states[out.Commitment.Key()]; state != StateAbsent {
			return createError(out.Commitment, state)
		}
	}

	for _, in := range tx.Inputs {
		v.states[in.Commitment.Key()] = StateSpent
	}
	for _, out := range tx.Outputs {
		v.states[out.Commitment.Key()] = StateUnspent
	}

	log.Debugf("Applied transaction with %d inputs and %d outputs to "+
		"memory view", len(tx.Inputs), len(tx.Outputs))

	return nil
}
