// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package builder

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/mwmerge/commitment"
	"github.com/btcsuite/mwmerge/curve"
	"github.com/btcsuite/mwmerge/mwtx"
)

// KeySigner signs kernels whose excess secret it has been given. It is safe
// for concurrent use.
type KeySigner struct {
	mu      sync.Mutex
	secrets map[commitment.Key]curve.Scalar
}

// NewKeySigner returns an empty KeySigner.
func NewKeySigner() *KeySigner {
	return &KeySigner{
		secrets: make(map[commitment.Key]curve.Scalar),
	}
}

// AddSecret registers a kernel excess secret.
func (s *KeySigner) AddSecret(secret curve.Scalar) {
	key := commitment.FromExcess(secret).Key()

	s.mu.Lock()
	s.secrets[key] = secret
	s.mu.Unlock()
}

// AddKey registers a kernel excess secret given as a private key.
func (s *KeySigner) AddKey(priv *btcec.PrivateKey) {
	s.AddSecret(curve.ScalarFromModN(&priv.Key))
}

// AddPartial registers the kernel excess secret of a built partial.
func (s *KeySigner) AddPartial(p *Partial) {
	s.AddSecret(p.ExcessSecret())
}

// SignKernels signs every unsigned kernel of tx in place. Kernels that are
// already signed are left untouched. It fails if the secret of an unsigned
// kernel is unknown.
func (s *KeySigner) SignKernels(ctx context.Context,
	tx *mwtx.Transaction) error {

	s.mu.Lock()
	defer s.mu.Unlock()

	var signed int
	for i := range tx.Kernels {
		if err := ctx.Err(); err != nil {
			return err
		}

		k := &tx.Kernels[i]
		if k.IsSigned() {
			continue
		}

		secret, ok := s.secrets[k.Excess.Key()]
		if !ok {
			return mwtx.NewError(mwtx.ErrInvalidKernelSignature,
				"no secret for kernel excess "+
					k.Excess.String(), nil)
		}

		if err := k.Sign(secret); err != nil {
			return err
		}
		signed++
	}

	log.Debugf("Signed %d of %d kernels", signed, len(tx.Kernels))

	return nil
}
