// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package commitment implements Pedersen commitments over secp256k1.
//
// A commitment to value v with blinding factor r is the point v*H + r*G,
// where G is the secp256k1 generator and H is a second generator whose
// discrete logarithm with respect to G is unknown. Commitments are additively
// homomorphic:
//
//	Commit(v1, r1) + Commit(v2, r2) == Commit(v1+v2, r1+r2)
//
// which is what allows transactions to prove that they neither create nor
// destroy value without revealing any amounts.
package commitment

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/mwmerge/curve"
)

// Size is the size of a serialized commitment.
const Size = curve.PointSize

// hGeneratorX is the x coordinate of the value generator H. It is the
// SHA-256 digest of the uncompressed encoding of G, so nobody knows its
// discrete logarithm. H is the point with this x coordinate and even y.
const hGeneratorX = "50929b74c1a04954b78b4b6035e97a5e078a5a0f28ec96d547bfee9ace803ac0"

var (
	// generatorG is the blinding generator.
	generatorG = curve.BasePoint()

	// generatorH is the value generator.
	generatorH = mustParseH()
)

// mustParseH decodes the value generator.
func mustParseH() curve.Point {
	x, err := hex.DecodeString(hGeneratorX)
	if err != nil {
		panic(err)
	}

	h, err := curve.ParsePoint(append([]byte{0x02}, x...))
	if err != nil {
		panic(fmt.Sprintf("invalid value generator: %v", err))
	}

	return h
}

// Generators returns the blinding generator G and the value generator H.
func Generators() (curve.Point, curve.Point) {
	return generatorG, generatorH
}

// Key is a comparable form of a commitment, suitable as a map key.
type Key [Size]byte

// String returns the hex encoding of the key.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// Commitment is a Pedersen commitment. The zero value commits to zero with a
// zero blinding factor and is the group identity.
type Commitment struct {
	p curve.Point
}

// FromPoint wraps a curve point as a commitment.
func FromPoint(p curve.Point) Commitment {
	return Commitment{p: p}
}

// Parse decodes a serialized commitment, returning curve.ErrInvalidPoint if
// the bytes do not encode a point on the curve.
func Parse(b []byte) (Commitment, error) {
	p, err := curve.ParsePoint(b)
	if err != nil {
		return Commitment{}, err
	}

	return Commitment{p: p}, nil
}

// ParseHex decodes a hex encoded commitment.
func ParseHex(s string) (Commitment, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Commitment{}, fmt.Errorf("%w: %v", curve.ErrInvalidPoint,
			err)
	}

	return Parse(b)
}

// Commit returns value*H + blinding*G.
func Commit(value uint64, blinding curve.Scalar) Commitment {
	return CommitScalar(curve.ScalarFromUint64(value), blinding)
}

// CommitScalar is Commit for a value that is already a scalar, such as a
// signed amount mapped into the scalar field.
func CommitScalar(value, blinding curve.Scalar) Commitment {
	return Commitment{
		p: generatorH.ScalarMult(value).Add(curve.ScalarBaseMult(blinding)),
	}
}

// FromExcess returns the commitment to zero with the given blinding factor,
// which is the public excess of a kernel whose secret key is excess.
func FromExcess(excess curve.Scalar) Commitment {
	return Commitment{p: curve.ScalarBaseMult(excess)}
}

// ValueTerm returns value*H for a scalar value.
func ValueTerm(value curve.Scalar) Commitment {
	return Commitment{p: generatorH.ScalarMult(value)}
}

// Point returns the underlying curve point.
func (c Commitment) Point() curve.Point {
	return c.p
}

// Bytes returns the serialized commitment.
func (c Commitment) Bytes() [Size]byte {
	return c.p.Bytes()
}

// Key returns the commitment in its comparable form.
func (c Commitment) Key() Key {
	return Key(c.p.Bytes())
}

// Equals reports whether both commitments are the same point.
func (c Commitment) Equals(other Commitment) bool {
	return c.p.Equals(other.p)
}

// String returns the hex encoding of the commitment.
func (c Commitment) String() string {
	return c.p.String()
}

// Add returns c + other.
func (c Commitment) Add(other Commitment) Commitment {
	return Commitment{p: c.p.Add(other.p)}
}

// Sub returns c - other.
func (c Commitment) Sub(other Commitment) Commitment {
	return Commitment{p: c.p.Sub(other.p)}
}

// Combine returns the point-wise sum of the commitments. The sum of no
// commitments is the identity.
func Combine(cs ...Commitment) Commitment {
	sum := curve.Identity()
	for _, c := range cs {
		sum = sum.Add(c.p)
	}

	return Commitment{p: sum}
}

// Negate returns the additive inverse of c.
func Negate(c Commitment) Commitment {
	return Commitment{p: c.p.Negate()}
}

// IsZero reports whether c is the group identity.
func IsZero(c Commitment) bool {
	return c.p.IsIdentity()
}
