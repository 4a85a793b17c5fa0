// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package curve

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// PointSize is the size of a serialized point. Points use the compressed
// SEC1 encoding; the identity is encoded as PointSize zero bytes.
const PointSize = 33

var (
	// ErrInvalidPoint is returned when a byte string does not encode a
	// point on the secp256k1 curve.
	ErrInvalidPoint = errors.New("invalid point")

	// identityBytes is the encoding of the group identity.
	identityBytes [PointSize]byte
)

// Point is an element of the secp256k1 group. The zero value is the group
// identity.
type Point struct {
	// p is kept in affine form (Z == 1) and is only meaningful when
	// valid is set.
	p     secp256k1.JacobianPoint
	valid bool
}

// Identity returns the group identity.
func Identity() Point {
	return Point{}
}

// BasePoint returns the secp256k1 generator G.
func BasePoint() Point {
	var one secp256k1.ModNScalar
	one.SetInt(1)

	var g secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&one, &g)

	return fromJacobian(&g)
}

// ParsePoint parses a 33-byte compressed point, or the all-zero encoding of
// the identity.
func ParsePoint(b []byte) (Point, error) {
	if len(b) != PointSize {
		return Point{}, fmt.Errorf("%w: expected %d bytes, got %d",
			ErrInvalidPoint, PointSize, len(b))
	}

	if bytes.Equal(b, identityBytes[:]) {
		return Identity(), nil
	}

	if b[0] != secp256k1.PubKeyFormatCompressedEven &&
		b[0] != secp256k1.PubKeyFormatCompressedOdd {

		return Point{}, fmt.Errorf("%w: unknown prefix %#x",
			ErrInvalidPoint, b[0])
	}

	pub, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return Point{}, fmt.Errorf("%w: %v", ErrInvalidPoint, err)
	}

	var j secp256k1.JacobianPoint
	pub.AsJacobian(&j)

	return fromJacobian(&j), nil
}

// isInfinity reports whether the jacobian point is the point at infinity.
func isInfinity(j *secp256k1.JacobianPoint) bool {
	x, y, z := j.X, j.Y, j.Z
	x.Normalize()
	y.Normalize()
	z.Normalize()

	return z.IsZero() || (x.IsZero() && y.IsZero())
}

// fromJacobian converts the result of a group operation into a Point.
func fromJacobian(j *secp256k1.JacobianPoint) Point {
	if isInfinity(j) {
		return Identity()
	}

	out := Point{valid: true}
	out.p.Set(j)
	out.p.ToAffine()

	return out
}

// jacobian returns the point in jacobian form. The identity maps to the
// all-zero point, which the secp256k1 routines treat as infinity.
func (p Point) jacobian() secp256k1.JacobianPoint {
	var j secp256k1.JacobianPoint
	if p.IsIdentity() {
		return j
	}

	j.Set(&p.p)

	return j
}

// IsIdentity reports whether the point is the group identity.
func (p Point) IsIdentity() bool {
	return !p.valid
}

// Add returns p + other.
func (p Point) Add(other Point) Point {
	switch {
	case p.IsIdentity():
		return other
	case other.IsIdentity():
		return p
	}

	a, b := p.jacobian(), other.jacobian()

	var sum secp256k1.JacobianPoint
	secp256k1.AddNonConst(&a, &b, &sum)

	return fromJacobian(&sum)
}

// Sub returns p - other.
func (p Point) Sub(other Point) Point {
	return p.Add(other.Negate())
}

// Negate returns -p.
func (p Point) Negate() Point {
	if p.IsIdentity() {
		return p
	}

	out := p
	out.p.Y.Normalize()
	out.p.Y.Negate(1).Normalize()

	return out
}

// ScalarMult returns k * p.
func (p Point) ScalarMult(k Scalar) Point {
	if p.IsIdentity() || k.IsZero() {
		return Identity()
	}

	j := p.jacobian()
	modN := k.ModN()

	var out secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(&modN, &j, &out)

	return fromJacobian(&out)
}

// ScalarBaseMult returns k * G.
func ScalarBaseMult(k Scalar) Point {
	if k.IsZero() {
		return Identity()
	}

	modN := k.ModN()

	var out secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&modN, &out)

	return fromJacobian(&out)
}

// Bytes returns the 33-byte encoding of the point.
func (p Point) Bytes() [PointSize]byte {
	if p.IsIdentity() {
		return identityBytes
	}

	x, y := p.p.X, p.p.Y
	x.Normalize()
	y.Normalize()

	var out [PointSize]byte
	copy(out[:], secp256k1.NewPublicKey(&x, &y).SerializeCompressed())

	return out
}

// Equals reports whether both points are the same group element.
func (p Point) Equals(other Point) bool {
	return p.Bytes() == other.Bytes()
}

// PublicKey returns the point as a secp256k1 public key. The identity has no
// public key representation.
func (p Point) PublicKey() (*secp256k1.PublicKey, error) {
	if p.IsIdentity() {
		return nil, fmt.Errorf("%w: identity has no public key",
			ErrInvalidPoint)
	}

	x, y := p.p.X, p.p.Y
	x.Normalize()
	y.Normalize()

	return secp256k1.NewPublicKey(&x, &y), nil
}

// String returns the hex encoding of the point.
func (p Point) String() string {
	b := p.Bytes()
	return fmt.Sprintf("%x", b[:])
}

// SumPoints returns the sum of the given points, or the identity if none are
// given.
func SumPoints(points ...Point) Point {
	sum := Identity()
	for _, p := range points {
		sum = sum.Add(p)
	}

	return sum
}
