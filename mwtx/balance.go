// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mwtx

import (
	"fmt"

	"github.com/btcsuite/mwmerge/commitment"
	"github.com/btcsuite/mwmerge/curve"
)

// publicValue returns the publicly known value moved onto the output side of
// the balance equation: the fees plus the surplus. It is computed in the
// scalar field so that sums of many kernels cannot overflow.
func publicValue(tx *Transaction) curve.Scalar {
	value := curve.ScalarFromInt64(int64(tx.Surplus))
	for i := range tx.Kernels {
		value = value.Add(curve.ScalarFromInt64(int64(tx.Kernels[i].Fee)))
	}

	return value
}

// BalanceResidual returns
//
//	sum(outputs) - sum(inputs) + (fees + surplus)*H - sum(excesses) - offset*G
//
// which is the identity exactly when the transaction balances.
func BalanceResidual(tx *Transaction) commitment.Commitment {
	outputs := commitment.Combine(tx.OutputCommitments()...)
	inputs := commitment.Combine(tx.InputCommitments()...)
	excesses := commitment.Combine(tx.KernelExcesses()...)

	return commitment.Combine(
		outputs,
		commitment.Negate(inputs),
		commitment.ValueTerm(publicValue(tx)),
		commitment.Negate(excesses),
		commitment.Negate(commitment.FromExcess(tx.Offset)),
	)
}

// CheckLocalBalance recomputes the balance equation of a standalone
// transaction. It does not consult any chain state.
func CheckLocalBalance(tx *Transaction) bool {
	return commitment.IsZero(BalanceResidual(tx))
}

// CheckUnique enforces that no output commitment and no input commitment
// appears twice.
func CheckUnique(tx *Transaction) error {
	outputs := make(map[commitment.Key]struct{}, len(tx.Outputs))
	for i := range tx.Outputs {
		key := tx.Outputs[i].Commitment.Key()
		if _, ok := outputs[key]; ok {
			return NewError(ErrDuplicateCommitment, fmt.Sprintf(
				"output %v created twice", key), nil)
		}
		outputs[key] = struct{}{}
	}

	inputs := make(map[commitment.Key]struct{}, len(tx.Inputs))
	for i := range tx.Inputs {
		key := tx.Inputs[i].Commitment.Key()
		if _, ok := inputs[key]; ok {
			return NewError(ErrDuplicateCommitment, fmt.Sprintf(
				"input %v spent twice", key), nil)
		}
		inputs[key] = struct{}{}
	}

	return nil
}
