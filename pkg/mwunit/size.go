// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mwunit

import "fmt"

// baseSize stores the canonical representation of a transaction size, which
// is bytes of the serialized transaction. Confidential transactions carry no
// witness discount so every byte weighs the same.
type baseSize struct {
	bytes uint64
}

// ToBytes converts the size to a Bytes value.
func (b baseSize) ToBytes() Bytes {
	return Bytes{b}
}

// Bytes expresses a transaction size in bytes.
type Bytes struct {
	baseSize
}

// NewBytes creates a new Bytes size.
func NewBytes(val uint64) Bytes {
	return Bytes{baseSize{bytes: val}}
}

// TxSize returns the size of a transaction whose serialization is n bytes
// long.
func TxSize(n int) Bytes {
	if n < 0 {
		n = 0
	}

	return NewBytes(uint64(n))
}

// String returns the string representation of the size.
func (b Bytes) String() string {
	return fmt.Sprintf("%d B", b.bytes)
}

// KBytes expresses a transaction size in kilobytes.
type KBytes struct {
	baseSize
}

// NewKBytes creates a new KBytes size.
func NewKBytes(val uint64) KBytes {
	return KBytes{baseSize{bytes: val * kilo}}
}
