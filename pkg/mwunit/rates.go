// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package mwunit provides size and fee rate units for confidential
// transactions.
package mwunit

import (
	"log/slog"
	"math"
	"math/big"

	"github.com/btcsuite/btcd/btcutil"
)

const (
	// kilo is a generic multiplier for kilo units.
	kilo = 1000

	// floatStringPrecision is the number of decimal places used when a fee
	// rate is formatted.
	floatStringPrecision = 3
)

// baseFeeRate stores the canonical representation of a fee rate, satoshis
// per kilobyte, as an exact rational.
type baseFeeRate struct {
	satsPerKB *big.Rat
}

// newBaseFeeRate returns the rate numerator/denominator sat/kB. A zero
// denominator yields a zero rate.
func newBaseFeeRate(numerator btcutil.Amount, denominator uint64) baseFeeRate {
	if denominator == 0 {
		return baseFeeRate{satsPerKB: big.NewRat(0, 1)}
	}

	return baseFeeRate{satsPerKB: big.NewRat(
		int64(numerator), safeUint64ToInt64(denominator),
	)}
}

// rate returns the rational, treating the zero value as a zero rate.
func (f baseFeeRate) rate() *big.Rat {
	if f.satsPerKB == nil {
		return big.NewRat(0, 1)
	}

	return f.satsPerKB
}

// ToSatPerByte converts the fee rate to sat/B.
func (f baseFeeRate) ToSatPerByte() SatPerByte {
	return SatPerByte{f}
}

// feeRat returns the exact fee for the given size.
func (f baseFeeRate) feeRat(size Bytes) *big.Rat {
	fee := big.NewRat(0, 1)
	return fee.Mul(
		f.rate(), big.NewRat(safeUint64ToInt64(size.bytes), kilo),
	)
}

// FeeForSizeRoundUp returns the fee this rate charges for size, rounded up
// to the next whole satoshi.
func (f baseFeeRate) FeeForSizeRoundUp(size Bytes) btcutil.Amount {
	fee := f.feeRat(size)

	// (numerator + denominator - 1) / denominator.
	result := big.NewInt(0)
	result.Add(fee.Num(), fee.Denom())
	result.Sub(result, big.NewInt(1))
	result.Div(result, fee.Denom())

	return btcutil.Amount(result.Int64())
}

func (f baseFeeRate) cmp(other baseFeeRate) int {
	return f.rate().Cmp(other.rate())
}

// SatPerByte is a fee rate in satoshis per byte.
type SatPerByte struct {
	baseFeeRate
}

// String returns a human-readable string of the fee rate.
func (s SatPerByte) String() string {
	r := big.NewRat(0, 1)
	r.Mul(s.rate(), big.NewRat(1, kilo))

	return r.FloatString(floatStringPrecision) + " sat/B"
}

// SatPerKByte is a fee rate in satoshis per kilobyte.
type SatPerKByte struct {
	baseFeeRate
}

// NewSatPerKByte creates a new fee rate in sat/kB.
func NewSatPerKByte(rate btcutil.Amount) SatPerKByte {
	return CalcSatPerKByte(rate, NewKBytes(1).ToBytes())
}

// CalcSatPerKByte returns the rate paid by fee over size.
func CalcSatPerKByte(fee btcutil.Amount, size Bytes) SatPerKByte {
	return SatPerKByte{newBaseFeeRate(fee*kilo, size.bytes)}
}

// String returns a human-readable string of the fee rate.
func (s SatPerKByte) String() string {
	return s.rate().FloatString(floatStringPrecision) + " sat/kB"
}

// Equal returns true if the fee rate is equal to the other fee rate.
func (s SatPerKByte) Equal(other SatPerKByte) bool {
	return s.cmp(other.baseFeeRate) == 0
}

// GreaterThanOrEqual returns true if the fee rate is greater than or equal to
// the other fee rate.
func (s SatPerKByte) GreaterThanOrEqual(other SatPerKByte) bool {
	return s.cmp(other.baseFeeRate) >= 0
}

// safeUint64ToInt64 converts a uint64 to an int64, capping at math.MaxInt64.
func safeUint64ToInt64(u uint64) int64 {
	if u > math.MaxInt64 {
		slog.Warn("Capping uint64 value to math.MaxInt64",
			slog.Uint64("old", u), slog.Int64("new", math.MaxInt64))

		return math.MaxInt64
	}

	return int64(u)
}
