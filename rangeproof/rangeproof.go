// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package rangeproof proves that a Pedersen commitment hides a value in
// [0, 2^bits) without revealing it.
//
// The value is decomposed into bits. For every bit i the prover publishes a
// commitment C_i = r_i*G + b_i*2^i*H together with a two-key ring signature
// showing that C_i is a commitment either to 0 or to 2^i. The blinding
// factors are chosen so that the bit commitments sum to the output
// commitment, which the verifier checks.
//
// Proof layout:
//
//	bits (1 byte) || bits * (C_i (33) || e0 (32) || s0 (32) || s1 (32))
package rangeproof

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/mwmerge/commitment"
	"github.com/btcsuite/mwmerge/curve"
)

const (
	// MaxBits is the widest supported range.
	MaxBits = 64

	// DefaultBits is the range width used unless configured otherwise.
	DefaultBits = 64

	// bitProofSize is the size of a single bit's commitment and ring
	// signature.
	bitProofSize = commitment.Size + 3*curve.ScalarSize
)

var (
	// ErrInvalidRangeProof is returned when a proof does not verify.
	ErrInvalidRangeProof = errors.New("invalid range proof")

	// ErrValueOutOfRange is returned when asked to prove a value that
	// does not fit in the requested number of bits.
	ErrValueOutOfRange = errors.New("value out of range")

	// ErrInvalidBitWidth is returned for a bit width outside [1, MaxBits].
	ErrInvalidBitWidth = errors.New("invalid range proof bit width")

	// ringTag domain-separates the ring signature challenges.
	ringTag = []byte("MWMerge/rangeproof")
)

// ProofSize returns the size of a proof for the given bit width.
func ProofSize(bits uint8) int {
	return 1 + int(bits)*bitProofSize
}

// checkBits validates a bit width.
func checkBits(bits uint8) error {
	if bits == 0 || bits > MaxBits {
		return fmt.Errorf("%w: %d", ErrInvalidBitWidth, bits)
	}

	return nil
}

// bitValue returns 2^i as a scalar.
func bitValue(i int) curve.Scalar {
	return curve.ScalarFromUint64(uint64(1) << uint(i))
}

// challenge derives the ring challenge for the given ring position from the
// output commitment, the bit index and the nonce point.
func challenge(msg [commitment.Size]byte, bit int, pos byte,
	r curve.Point) curve.Scalar {

	rb := r.Bytes()
	h := chainhash.TaggedHash(
		ringTag, msg[:], []byte{byte(bit), pos}, rb[:],
	)

	return curve.HashToScalar(h[:])
}

// bitProof is a decoded per-bit proof.
type bitProof struct {
	c      commitment.Commitment
	e0     curve.Scalar
	s0, s1 curve.Scalar
}

// Prove creates a range proof that Commit(value, blinding) hides a value in
// [0, 2^bits).
func Prove(value uint64, blinding curve.Scalar, bits uint8) ([]byte, error) {
	if err := checkBits(bits); err != nil {
		return nil, err
	}
	if bits < MaxBits && value>>bits != 0 {
		return nil, fmt.Errorf("%w: %d does not fit in %d bits",
			ErrValueOutOfRange, value, bits)
	}

	_, h := commitment.Generators()
	msg := commitment.Commit(value, blinding).Bytes()

	// Pick random blinding factors for all bits but the last, which takes
	// whatever is left so the bit commitments add up to the output.
	blinds := make([]curve.Scalar, bits)
	remaining := blinding
	for i := 0; i < int(bits)-1; i++ {
		r, err := curve.RandomScalar()
		if err != nil {
			return nil, err
		}

		blinds[i] = r
		remaining = remaining.Sub(r)
	}
	blinds[bits-1] = remaining

	proof := make([]byte, 0, ProofSize(bits))
	proof = append(proof, bits)

	for i := 0; i < int(bits); i++ {
		bit := (value >> uint(i)) & 1

		c := commitment.Commit(0, blinds[i])
		if bit == 1 {
			c = c.Add(commitment.FromPoint(h.ScalarMult(bitValue(i))))
		}

		bp, err := signBit(msg, i, c, blinds[i], bit == 1)
		if err != nil {
			return nil, err
		}

		proof = appendBitProof(proof, bp)
	}

	return proof, nil
}

// signBit produces the ring signature over the keys {C, C - 2^i*H}, knowing
// the discrete log of the key selected by isOne.
func signBit(msg [commitment.Size]byte, i int, c commitment.Commitment,
	secret curve.Scalar, isOne bool) (bitProof, error) {

	_, h := commitment.Generators()
	p0 := c.Point()
	p1 := p0.Sub(h.ScalarMult(bitValue(i)))

	k, err := curve.RandomScalar()
	if err != nil {
		return bitProof{}, err
	}
	decoy, err := curve.RandomScalar()
	if err != nil {
		return bitProof{}, err
	}

	bp := bitProof{c: c}

	if !isOne {
		// Known key is p0: start the ring at position 1.
		e1 := challenge(msg, i, 1, curve.ScalarBaseMult(k))
		bp.s1 = decoy
		r1 := curve.ScalarBaseMult(decoy).Sub(p1.ScalarMult(e1))
		bp.e0 = challenge(msg, i, 0, r1)
		bp.s0 = k.Add(bp.e0.Mul(secret))

		return bp, nil
	}

	// Known key is p1: start the ring at position 0.
	bp.e0 = challenge(msg, i, 0, curve.ScalarBaseMult(k))
	bp.s0 = decoy
	r0 := curve.ScalarBaseMult(decoy).Sub(p0.ScalarMult(bp.e0))
	e1 := challenge(msg, i, 1, r0)
	bp.s1 = k.Add(e1.Mul(secret))

	return bp, nil
}

// appendBitProof serializes a bit proof onto buf.
func appendBitProof(buf []byte, bp bitProof) []byte {
	c := bp.c.Bytes()
	e0 := bp.e0.Bytes()
	s0 := bp.s0.Bytes()
	s1 := bp.s1.Bytes()

	buf = append(buf, c[:]...)
	buf = append(buf, e0[:]...)
	buf = append(buf, s0[:]...)
	buf = append(buf, s1[:]...)

	return buf
}

// parseBitProof decodes a single bit proof.
func parseBitProof(b []byte) (bitProof, error) {
	var (
		bp  bitProof
		err error
	)

	bp.c, err = commitment.Parse(b[:commitment.Size])
	if err != nil {
		return bp, err
	}
	b = b[commitment.Size:]

	scalars := []*curve.Scalar{&bp.e0, &bp.s0, &bp.s1}
	for _, s := range scalars {
		*s, err = curve.ParseScalar(b[:curve.ScalarSize])
		if err != nil {
			return bp, err
		}
		b = b[curve.ScalarSize:]
	}

	return bp, nil
}

// Verify checks that proof shows c commits to a value in [0, 2^bits). Every
// failure wraps ErrInvalidRangeProof.
func Verify(proof []byte, c commitment.Commitment, bits uint8) error {
	if err := checkBits(bits); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRangeProof, err)
	}

	if len(proof) != ProofSize(bits) {
		return fmt.Errorf("%w: expected %d bytes for %d bits, got %d",
			ErrInvalidRangeProof, ProofSize(bits), bits, len(proof))
	}
	if proof[0] != bits {
		return fmt.Errorf("%w: proof covers %d bits, want %d",
			ErrInvalidRangeProof, proof[0], bits)
	}

	_, h := commitment.Generators()
	msg := c.Bytes()

	sum := commitment.Combine()
	body := proof[1:]
	for i := 0; i < int(bits); i++ {
		bp, err := parseBitProof(body[i*bitProofSize:])
		if err != nil {
			return fmt.Errorf("%w: bit %d: %v", ErrInvalidRangeProof,
				i, err)
		}

		p0 := bp.c.Point()
		p1 := p0.Sub(h.ScalarMult(bitValue(i)))

		r0 := curve.ScalarBaseMult(bp.s0).Sub(p0.ScalarMult(bp.e0))
		e1 := challenge(msg, i, 1, r0)
		r1 := curve.ScalarBaseMult(bp.s1).Sub(p1.ScalarMult(e1))

		if !challenge(msg, i, 0, r1).Equals(bp.e0) {
			return fmt.Errorf("%w: ring signature for bit %d does "+
				"not verify", ErrInvalidRangeProof, i)
		}

		sum = sum.Add(bp.c)
	}

	if !sum.Equals(c) {
		return fmt.Errorf("%w: bit commitments do not sum to the "+
			"output commitment", ErrInvalidRangeProof)
	}

	return nil
}
