// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mwtx

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/mwmerge/commitment"
	"github.com/btcsuite/mwmerge/curve"
	"github.com/lightningnetwork/lnd/tlv"
)

const (
	// TxVersion is the serialization version written by Serialize.
	TxVersion uint8 = 1

	// MaxRangeProofSize is the largest range proof accepted when decoding.
	MaxRangeProofSize = 16 * 1024

	// MaxTxSize bounds each blob record of a decoded transaction.
	MaxTxSize = 4_000_000

	// maxEntries bounds the number of inputs, outputs or kernels read
	// from a single blob.
	maxEntries = 1 << 16

	// Smallest encodings of an input, an output and a kernel.
	minInputSize  = commitment.Size
	minOutputSize = 1 + commitment.Size + 1
	minKernelSize = commitment.Size + 12 + 1

	// pver is the wire protocol version passed to the btcd var-int
	// helpers, which ignore it.
	pver = 0
)

// TLV types of the top-level transaction stream.
const (
	typeVersion tlv.Type = 0
	typeInputs  tlv.Type = 1
	typeOutputs tlv.Type = 2
	typeKernels tlv.Type = 3
	typeOffset  tlv.Type = 4
	typeSurplus tlv.Type = 5
)

// Serialize writes the transaction as a TLV stream of the version, an inputs
// blob, an outputs blob, a kernels blob, the offset and the surplus.
func (tx *Transaction) Serialize(w io.Writer) error {
	inputs, err := encodeInputs(tx.Inputs)
	if err != nil {
		return err
	}
	outputs, err := encodeOutputs(tx.Outputs)
	if err != nil {
		return err
	}
	kernels, err := encodeKernels(tx.Kernels)
	if err != nil {
		return err
	}

	version := TxVersion
	offset := tx.Offset.Bytes()
	surplus := uint64(tx.Surplus)

	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typeVersion, &version),
		tlv.MakePrimitiveRecord(typeInputs, &inputs),
		tlv.MakePrimitiveRecord(typeOutputs, &outputs),
		tlv.MakePrimitiveRecord(typeKernels, &kernels),
		tlv.MakePrimitiveRecord(typeOffset, &offset),
		tlv.MakePrimitiveRecord(typeSurplus, &surplus),
	)
	if err != nil {
		return err
	}

	return stream.Encode(w)
}

// decodeBlob returns a var-bytes decoder refusing records longer than limit
// before allocating them.
func decodeBlob(limit uint64) tlv.Decoder {
	return func(r io.Reader, val interface{}, buf *[8]byte,
		l uint64) error {

		if l > limit {
			return fmt.Errorf("record of %d bytes exceeds limit of "+
				"%d bytes", l, limit)
		}

		return tlv.DVarBytes(r, val, buf, l)
	}
}

// blobRecord is a var-bytes record whose decoded length is bounded by limit.
func blobRecord(typ tlv.Type, blob *[]byte, limit uint64) tlv.Record {
	return tlv.MakeDynamicRecord(typ, blob, func() uint64 {
		return uint64(len(*blob))
	}, tlv.EVarBytes, decodeBlob(limit))
}

// Deserialize decodes a transaction written by Serialize into the receiver.
// Points, scalars and fees are validated while decoding. Blob records are
// bounded by MaxTxSize, and by the unread length when r reports one, as a
// bytes.Reader does.
func (tx *Transaction) Deserialize(r io.Reader) error {
	var (
		version                  uint8
		inputs, outputs, kernels []byte
		offset                   [curve.ScalarSize]byte
		surplus                  uint64
	)

	limit := uint64(MaxTxSize)
	if lr, ok := r.(interface{ Len() int }); ok &&
		uint64(lr.Len()) < limit {

		limit = uint64(lr.Len())
	}

	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typeVersion, &version),
		blobRecord(typeInputs, &inputs, limit),
		blobRecord(typeOutputs, &outputs, limit),
		blobRecord(typeKernels, &kernels, limit),
		tlv.MakePrimitiveRecord(typeOffset, &offset),
		tlv.MakePrimitiveRecord(typeSurplus, &surplus),
	)
	if err != nil {
		return err
	}

	parsed, err := stream.DecodeWithParsedTypes(r)
	if err != nil {
		return NewError(ErrMalformedTx, "unable to decode tlv stream",
			err)
	}

	if _, ok := parsed[typeVersion]; !ok {
		return NewError(ErrMalformedTx, "missing version", nil)
	}
	if version != TxVersion {
		return NewError(ErrMalformedTx, fmt.Sprintf("unsupported "+
			"version %d", version), nil)
	}

	var decoded Transaction

	decoded.Inputs, err = decodeInputs(inputs)
	if err != nil {
		return err
	}
	decoded.Outputs, err = decodeOutputs(outputs)
	if err != nil {
		return err
	}
	decoded.Kernels, err = decodeKernels(kernels)
	if err != nil {
		return err
	}

	decoded.Offset, err = curve.ParseScalar(offset[:])
	if err != nil {
		return NewError(ErrInvalidScalar, "invalid offset", err)
	}

	decoded.Surplus = btcutil.Amount(int64(surplus))
	if decoded.Surplus > btcutil.MaxSatoshi ||
		decoded.Surplus < -btcutil.MaxSatoshi {

		return NewError(ErrMalformedTx, fmt.Sprintf("surplus %v out "+
			"of range", decoded.Surplus), nil)
	}

	*tx = decoded

	return nil
}

// SerializeSize returns the number of bytes Serialize writes.
func (tx *Transaction) SerializeSize() int {
	b, err := tx.Bytes()
	if err != nil {
		return 0
	}

	return len(b)
}

// Bytes returns the serialized transaction.
func (tx *Transaction) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Hex returns the hex encoded serialized transaction.
func (tx *Transaction) Hex() (string, error) {
	b, err := tx.Bytes()
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

// FromBytes decodes a serialized transaction.
func FromBytes(b []byte) (*Transaction, error) {
	r := bytes.NewReader(b)

	var tx Transaction
	if err := tx.Deserialize(r); err != nil {
		return nil, err
	}

	return &tx, nil
}

// FromHex decodes a hex encoded serialized transaction.
func FromHex(s string) (*Transaction, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, NewError(ErrMalformedTx, "invalid hex", err)
	}

	return FromBytes(b)
}

// readCommitment reads and validates a serialized commitment.
func readCommitment(r io.Reader) (commitment.Commitment, error) {
	var b [commitment.Size]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return commitment.Commitment{}, NewError(ErrMalformedTx,
			"short commitment", err)
	}

	c, err := commitment.Parse(b[:])
	if err != nil {
		return commitment.Commitment{}, NewError(ErrInvalidPoint,
			"invalid commitment", err)
	}

	return c, nil
}

// writeCommitment writes a serialized commitment.
func writeCommitment(w io.Writer, c commitment.Commitment) error {
	b := c.Bytes()
	_, err := w.Write(b[:])

	return err
}

// readCount reads an entry count and bounds it by maxEntries and by the
// number of entries of at least minSize bytes the rest of r can hold.
func readCount(r *bytes.Reader, what string, minSize int) (uint64, error) {
	count, err := wire.ReadVarInt(r, pver)
	if err != nil {
		return 0, NewError(ErrMalformedTx, "unable to read "+what+
			" count", err)
	}
	if count > maxEntries {
		return 0, NewError(ErrMalformedTx, fmt.Sprintf("too many %s: "+
			"%d", what, count), nil)
	}
	if count > uint64(r.Len()/minSize) {
		return 0, NewError(ErrMalformedTx, fmt.Sprintf("%d %s do not "+
			"fit in %d bytes", count, what, r.Len()), nil)
	}

	return count, nil
}

// checkTrailing fails if bytes remain after a blob was decoded.
func checkTrailing(r *bytes.Reader, what string) error {
	if r.Len() != 0 {
		return NewError(ErrMalformedTx, fmt.Sprintf("%d trailing "+
			"bytes after %s", r.Len(), what), nil)
	}

	return nil
}

func encodeInputs(inputs []Input) ([]byte, error) {
	var buf bytes.Buffer

	err := wire.WriteVarInt(&buf, pver, uint64(len(inputs)))
	if err != nil {
		return nil, err
	}

	for i := range inputs {
		err := writeCommitment(&buf, inputs[i].Commitment)
		if err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func decodeInputs(blob []byte) ([]Input, error) {
	if len(blob) == 0 {
		return nil, nil
	}

	r := bytes.NewReader(blob)

	count, err := readCount(r, "inputs", minInputSize)
	if err != nil {
		return nil, err
	}

	inputs := make([]Input, 0, count)
	for i := uint64(0); i < count; i++ {
		c, err := readCommitment(r)
		if err != nil {
			return nil, err
		}

		inputs = append(inputs, Input{Commitment: c})
	}

	return inputs, checkTrailing(r, "inputs")
}

func encodeOutputs(outputs []Output) ([]byte, error) {
	var buf bytes.Buffer

	err := wire.WriteVarInt(&buf, pver, uint64(len(outputs)))
	if err != nil {
		return nil, err
	}

	for i := range outputs {
		out := &outputs[i]
		if len(out.RangeProof) > MaxRangeProofSize {
			return nil, NewError(ErrInvalidRangeProof, fmt.Sprintf(
				"range proof of %d bytes exceeds limit",
				len(out.RangeProof)), nil)
		}

		if err := buf.WriteByte(byte(out.Features)); err != nil {
			return nil, err
		}
		if err := writeCommitment(&buf, out.Commitment); err != nil {
			return nil, err
		}

		err := wire.WriteVarBytes(&buf, pver, out.RangeProof)
		if err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func decodeOutputs(blob []byte) ([]Output, error) {
	if len(blob) == 0 {
		return nil, nil
	}

	r := bytes.NewReader(blob)

	count, err := readCount(r, "outputs", minOutputSize)
	if err != nil {
		return nil, err
	}

	outputs := make([]Output, 0, count)
	for i := uint64(0); i < count; i++ {
		features, err := r.ReadByte()
		if err != nil {
			return nil, NewError(ErrMalformedTx, "short output", err)
		}

		c, err := readCommitment(r)
		if err != nil {
			return nil, err
		}

		proof, err := wire.ReadVarBytes(
			r, pver, MaxRangeProofSize, "rangeproof",
		)
		if err != nil {
			return nil, NewError(ErrMalformedTx, "unable to read "+
				"range proof", err)
		}

		outputs = append(outputs, Output{
			Commitment: c,
			RangeProof: proof,
			Features:   OutputFeatures(features),
		})
	}

	return outputs, checkTrailing(r, "outputs")
}

func encodeKernels(kernels []Kernel) ([]byte, error) {
	var buf bytes.Buffer

	err := wire.WriteVarInt(&buf, pver, uint64(len(kernels)))
	if err != nil {
		return nil, err
	}

	var scratch [8]byte
	for i := range kernels {
		k := &kernels[i]
		if k.Fee < 0 {
			return nil, NewError(ErrInvalidFee, fmt.Sprintf(
				"negative fee %v", k.Fee), nil)
		}

		if err := writeCommitment(&buf, k.Excess); err != nil {
			return nil, err
		}

		binary.LittleEndian.PutUint64(scratch[:], uint64(k.Fee))
		buf.Write(scratch[:])

		binary.LittleEndian.PutUint32(scratch[:4], k.LockHeight)
		buf.Write(scratch[:4])

		err := wire.WriteVarBytes(&buf, pver, k.Signature)
		if err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func decodeKernels(blob []byte) ([]Kernel, error) {
	if len(blob) == 0 {
		return nil, nil
	}

	r := bytes.NewReader(blob)

	count, err := readCount(r, "kernels", minKernelSize)
	if err != nil {
		return nil, err
	}

	kernels := make([]Kernel, 0, count)
	for i := uint64(0); i < count; i++ {
		excess, err := readCommitment(r)
		if err != nil {
			return nil, err
		}

		var fixed [12]byte
		if _, err := io.ReadFull(r, fixed[:]); err != nil {
			return nil, NewError(ErrMalformedTx, "short kernel", err)
		}

		fee := btcutil.Amount(binary.LittleEndian.Uint64(fixed[:8]))
		if fee < 0 || fee > btcutil.MaxSatoshi {
			return nil, NewError(ErrInvalidFee, fmt.Sprintf("fee %d "+
				"out of range", binary.LittleEndian.Uint64(
				fixed[:8])), nil)
		}

		sig, err := wire.ReadVarBytes(r, pver, 64, "signature")
		if err != nil {
			return nil, NewError(ErrMalformedTx, "unable to read "+
				"kernel signature", err)
		}
		if len(sig) == 0 {
			sig = nil
		}

		kernels = append(kernels, Kernel{
			Excess:     excess,
			Fee:        fee,
			LockHeight: binary.LittleEndian.Uint32(fixed[8:]),
			Signature:  sig,
		})
	}

	return kernels, checkTrailing(r, "kernels")
}
