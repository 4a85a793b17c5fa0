// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mwtx

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a kind of error. An ErrorCode is itself an error so
// callers can match on it with errors.Is:
//
//	if errors.Is(err, mwtx.ErrUnbalancedTransaction) { ... }
//
// None of the errors are transient; retrying the same call with the same
// input yields the same error.
type ErrorCode int

// These constants are used to identify a specific Error.
const (
	// ErrInvalidPoint indicates bytes that do not encode a curve point.
	ErrInvalidPoint ErrorCode = iota

	// ErrInvalidScalar indicates bytes that do not encode a scalar
	// reduced modulo the group order.
	ErrInvalidScalar

	// ErrDuplicateCommitment indicates the same commitment used twice as
	// an output, or twice as an input.
	ErrDuplicateCommitment

	// ErrEmptyMergeSet indicates a merge over zero transactions.
	ErrEmptyMergeSet

	// ErrUnknownOrSpentInput indicates an input that does not reference
	// an unspent output.
	ErrUnknownOrSpentInput

	// ErrUnbalancedTransaction indicates the balance equation does not
	// hold, or that value is still being passed through.
	ErrUnbalancedTransaction

	// ErrInvalidKernelSignature indicates a missing or bad kernel
	// signature.
	ErrInvalidKernelSignature

	// ErrInvalidRangeProof indicates an output range proof that does not
	// verify.
	ErrInvalidRangeProof

	// ErrInvalidFee indicates a negative or out of range fee.
	ErrInvalidFee

	// ErrMalformedTx indicates a transaction that cannot be decoded or is
	// structurally unusable.
	ErrMalformedTx

	// ErrInsufficientFee indicates a transaction paying less than the
	// configured minimum fee rate.
	ErrInsufficientFee
)

// errorCodeStrings maps error codes to their names.
var errorCodeStrings = map[ErrorCode]string{
	ErrInvalidPoint:           "ErrInvalidPoint",
	ErrInvalidScalar:          "ErrInvalidScalar",
	ErrDuplicateCommitment:    "ErrDuplicateCommitment",
	ErrEmptyMergeSet:          "ErrEmptyMergeSet",
	ErrUnknownOrSpentInput:    "ErrUnknownOrSpentInput",
	ErrUnbalancedTransaction:  "ErrUnbalancedTransaction",
	ErrInvalidKernelSignature: "ErrInvalidKernelSignature",
	ErrInvalidRangeProof:      "ErrInvalidRangeProof",
	ErrInvalidFee:             "ErrInvalidFee",
	ErrMalformedTx:            "ErrMalformedTx",
	ErrInsufficientFee:        "ErrInsufficientFee",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}

	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error satisfies the error interface.
func (e ErrorCode) Error() string {
	return e.String()
}

// Error identifies a transaction error. It has an error code, a descriptive
// message and optionally the underlying cause.
type Error struct {
	Code ErrorCode
	Desc string
	Err  error
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", e.Code, e.Desc, e.Err)
	}

	return fmt.Sprintf("%v: %s", e.Code, e.Desc)
}

// Unwrap returns the underlying error, if any.
func (e Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is this error's code.
func (e Error) Is(target error) bool {
	code, ok := target.(ErrorCode)
	return ok && code == e.Code
}

// NewError creates an Error given a set of arguments.
func NewError(c ErrorCode, desc string, err error) Error {
	return Error{Code: c, Desc: desc, Err: err}
}

// IsErrorCode returns whether err is an Error with the given code.
func IsErrorCode(err error, c ErrorCode) bool {
	var e Error
	return errors.As(err, &e) && e.Code == c
}
