// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mwtx

import (
	"encoding/binary"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/mwmerge/commitment"
	"github.com/btcsuite/mwmerge/curve"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

var (
	// kernelSigTag is the BIP-340 tag of the kernel signature message.
	kernelSigTag = []byte("MWMerge/kernel")
)

// SigHash returns the message a kernel signature commits to: a tagged hash
// of the fee and lock height. The excess is committed to by the signature
// scheme itself since it is the public key.
func (k *Kernel) SigHash() chainhash.Hash {
	var fee [8]byte
	binary.LittleEndian.PutUint64(fee[:], uint64(k.Fee))

	var lockHeight [4]byte
	binary.LittleEndian.PutUint32(lockHeight[:], k.LockHeight)

	return *chainhash.TaggedHash(kernelSigTag, fee[:], lockHeight[:])
}

// Sign signs the kernel with the secret behind its excess, replacing any
// existing signature.
func (k *Kernel) Sign(secret curve.Scalar) error {
	if !commitment.FromExcess(secret).Equals(k.Excess) {
		return NewError(ErrInvalidKernelSignature,
			"secret does not match kernel excess", nil)
	}

	modN := secret.ModN()
	privKey := secp256k1.NewPrivateKey(&modN)

	hash := k.SigHash()
	sig, err := schnorr.Sign(privKey, hash[:])
	if err != nil {
		return NewError(ErrInvalidKernelSignature, "unable to sign "+
			"kernel", err)
	}

	k.Signature = sig.Serialize()

	return nil
}

// VerifySignature checks the kernel signature against its excess.
//
// NOTE: BIP-340 binds only the x coordinate of the excess, so the signature
// still verifies after the excess is negated. The balance equation is what
// rejects a negated excess; VerifySignature alone does not pin the sign.
func (k *Kernel) VerifySignature() error {
	if !k.IsSigned() {
		return NewError(ErrInvalidKernelSignature, "kernel is unsigned",
			nil)
	}

	pubKey, err := k.Excess.Point().PublicKey()
	if err != nil {
		return NewError(ErrInvalidKernelSignature, "kernel excess is "+
			"not a valid public key", err)
	}

	sig, err := schnorr.ParseSignature(k.Signature)
	if err != nil {
		return NewError(ErrInvalidKernelSignature, "malformed kernel "+
			"signature", err)
	}

	hash := k.SigHash()
	if !sig.Verify(hash[:], pubKey) {
		return NewError(ErrInvalidKernelSignature, "kernel signature "+
			"does not verify", nil)
	}

	return nil
}
