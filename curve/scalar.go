// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package curve wraps the secp256k1 scalar field and group operations used by
// the commitment scheme. All values have value semantics: operations return
// new values and never modify their receivers.
package curve

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// ScalarSize is the size of a serialized scalar.
const ScalarSize = 32

var (
	// ErrInvalidScalar is returned when a byte string does not encode a
	// scalar reduced modulo the group order.
	ErrInvalidScalar = errors.New("invalid scalar")
)

// Scalar is an integer modulo the secp256k1 group order. The zero value is
// the scalar zero.
type Scalar struct {
	s secp256k1.ModNScalar
}

// ParseScalar parses a 32-byte big-endian scalar. Encodings that are not
// reduced modulo the group order are rejected rather than silently reduced.
func ParseScalar(b []byte) (Scalar, error) {
	if len(b) != ScalarSize {
		return Scalar{}, fmt.Errorf("%w: expected %d bytes, got %d",
			ErrInvalidScalar, ScalarSize, len(b))
	}

	var s Scalar
	if overflow := s.s.SetByteSlice(b); overflow {
		return Scalar{}, fmt.Errorf("%w: value exceeds group order",
			ErrInvalidScalar)
	}

	return s, nil
}

// ParseScalarHex parses a hex encoded scalar.
func ParseScalarHex(s string) (Scalar, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Scalar{}, fmt.Errorf("%w: %v", ErrInvalidScalar, err)
	}

	return ParseScalar(b)
}

// ScalarFromUint64 returns the scalar with the given integer value.
func ScalarFromUint64(v uint64) Scalar {
	var b [ScalarSize]byte
	for i := 0; i < 8; i++ {
		b[ScalarSize-1-i] = byte(v >> (8 * i))
	}

	var s Scalar
	s.s.SetBytes(&b)

	return s
}

// ScalarFromInt64 returns the scalar with the given signed integer value,
// mapping negative values to their additive inverse.
func ScalarFromInt64(v int64) Scalar {
	if v >= 0 {
		return ScalarFromUint64(uint64(v))
	}

	// Two's complement negation also covers math.MinInt64.
	return ScalarFromUint64(uint64(-(v + 1)) + 1).Negate()
}

// ScalarFromModN wraps an already reduced secp256k1 scalar.
func ScalarFromModN(s *secp256k1.ModNScalar) Scalar {
	var out Scalar
	out.s.Set(s)

	return out
}

// HashToScalar reduces a 32-byte digest modulo the group order. Unlike
// ParseScalar, overflowing digests are accepted and reduced.
func HashToScalar(digest []byte) Scalar {
	var s Scalar
	s.s.SetByteSlice(digest)

	return s
}

// RandomScalar returns a uniformly random non-zero scalar read from the
// system CSPRNG.
func RandomScalar() (Scalar, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return Scalar{}, fmt.Errorf("generate scalar: %w", err)
	}

	return ScalarFromModN(&priv.Key), nil
}

// Add returns s + other mod n.
func (s Scalar) Add(other Scalar) Scalar {
	var out Scalar
	out.s.Add2(&s.s, &other.s)

	return out
}

// Sub returns s - other mod n.
func (s Scalar) Sub(other Scalar) Scalar {
	return s.Add(other.Negate())
}

// Mul returns s * other mod n.
func (s Scalar) Mul(other Scalar) Scalar {
	var out Scalar
	out.s.Mul2(&s.s, &other.s)

	return out
}

// Negate returns -s mod n.
func (s Scalar) Negate() Scalar {
	var out Scalar
	out.s.NegateVal(&s.s)

	return out
}

// IsZero reports whether the scalar is zero.
func (s Scalar) IsZero() bool {
	return s.s.IsZero()
}

// Equals reports whether both scalars are the same value.
func (s Scalar) Equals(other Scalar) bool {
	return s.s.Equals(&other.s)
}

// Bytes returns the 32-byte big-endian encoding of the scalar.
func (s Scalar) Bytes() [ScalarSize]byte {
	return s.s.Bytes()
}

// ModN returns a copy of the underlying secp256k1 scalar.
func (s Scalar) ModN() secp256k1.ModNScalar {
	return s.s
}

// String returns the hex encoding of the scalar.
func (s Scalar) String() string {
	b := s.Bytes()
	return fmt.Sprintf("%x", b[:])
}

// SumScalars returns the modular sum of the given scalars.
func SumScalars(scalars ...Scalar) Scalar {
	var sum Scalar
	for _, s := range scalars {
		sum = sum.Add(s)
	}

	return sum
}
