// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package utxo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcwallet/walletdb"

	// Register the bolt backed walletdb driver.
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
	"github.com/btcsuite/mwmerge/commitment"
	"github.com/btcsuite/mwmerge/mwtx"
)

const (
	// DefaultDBTimeout is how long OpenStore waits for the database lock.
	DefaultDBTimeout = 10 * time.Second
)

var (
	// utxoBucketKey is the top-level bucket holding one entry per
	// commitment, keyed by its compressed encoding.
	utxoBucketKey = []byte("utxo")

	// ErrMissingBucket is returned when the database has not been
	// initialized.
	ErrMissingBucket = errors.New("missing utxo bucket")

	// ErrCorruptEntry is returned for an entry that does not decode.
	ErrCorruptEntry = errors.New("corrupt utxo entry")
)

// Store is a Ledger persisted in a walletdb database.
type Store struct {
	db walletdb.DB
}

// A compile-time assertion to ensure that Store implements Ledger.
var _ Ledger = (*Store)(nil)

// NewStore wraps an open database, creating the utxo bucket if needed.
func NewStore(db walletdb.DB) (*Store, error) {
	err := walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		_, err := tx.CreateTopLevelBucket(utxoBucketKey)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create utxo bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// OpenStore opens the bolt database at path, creating it and its parent
// directory if they do not exist.
func OpenStore(path string, timeout time.Duration) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}

	var (
		db  walletdb.DB
		err error
	)
	if _, statErr := os.Stat(path); statErr == nil {
		db, err = walletdb.Open(BackendBolt, path, true, timeout, false)
	} else {
		db, err = walletdb.Create(BackendBolt, path, true, timeout, false)
	}
	if err != nil {
		return nil, fmt.Errorf("open utxo db %s: %w", path, err)
	}

	s, err := NewStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Infof("Opened utxo db %s", path)

	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// decodeState parses a stored entry.
func decodeState(v []byte) (State, error) {
	if v == nil {
		return StateAbsent, nil
	}

	if len(v) != 1 {
		return StateAbsent, fmt.Errorf("%w: length %d", ErrCorruptEntry,
			len(v))
	}

	switch state := State(v[0]); state {
	case StateUnspent, StateSpent:
		return state, nil
	default:
		return StateAbsent, fmt.Errorf("%w: state %d", ErrCorruptEntry,
			v[0])
	}
}

func lookup(b walletdb.ReadBucket, c commitment.Commitment) (State, error) {
	key := c.Bytes()
	return decodeState(b.Get(key[:]))
}

func put(b walletdb.ReadWriteBucket, c commitment.Commitment,
	state State) error {

	key := c.Bytes()
	return b.Put(key[:], []byte{byte(state)})
}

// LookupCommitment returns the state of c.
func (s *Store) LookupCommitment(ctx context.Context,
	c commitment.Commitment) (State, error) {

	if err := ctx.Err(); err != nil {
		return StateAbsent, err
	}

	var state State
	err := walletdb.View(s.db, func(tx walletdb.ReadTx) error {
		b := tx.ReadBucket(utxoBucketKey)
		if b == nil {
			return ErrMissingBucket
		}

		var err error
		state, err = lookup(b, c)

		return err
	})
	if err != nil {
		return StateAbsent, fmt.Errorf("lookup %v: %w", c, err)
	}

	return state, nil
}

// update runs f against the utxo bucket in a read-write transaction.
func (s *Store) update(ctx context.Context,
	f func(b walletdb.ReadWriteBucket) error) error {

	if err := ctx.Err(); err != nil {
		return err
	}

	return walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		b := tx.ReadWriteBucket(utxoBucketKey)
		if b == nil {
			return ErrMissingBucket
		}

		return f(b)
	})
}

// AddUnspent records c as an unspent output, overriding any previous state.
func (s *Store) AddUnspent(ctx context.Context, c commitment.Commitment) error {
	return s.update(ctx, func(b walletdb.ReadWriteBucket) error {
		return put(b, c, StateUnspent)
	})
}

// MarkSpent records c as spent. It fails if c is not unspent.
func (s *Store) MarkSpent(ctx context.Context, c commitment.Commitment) error {
	return s.update(ctx, func(b walletdb.ReadWriteBucket) error {
		state, err := lookup(b, c)
		if err != nil {
			return err
		}
		if state != StateUnspent {
			return spendError(c, state)
		}

		return put(b, c, StateSpent)
	})
}

// ApplyTransaction marks the inputs of tx spent and adds its outputs in a
// single database transaction.
func (s *Store) ApplyTransaction(ctx context.Context,
	tx *mwtx.Transaction) error {

	err := s.update(ctx, func(b walletdb.ReadWriteBucket) error {
		for _, in := range tx.Inputs {
			state, err := lookup(b, in.Commitment)
			if err != nil {
				return err
			}
			if state != StateUnspent {
				return spendError(in.Commitment, state)
			}

			if err := put(b, in.Commitment, StateSpent); err != nil {
				return err
			}
		}

		for _, out := range tx.Outputs {
			state, err := lookup(b, out.Commitment)
			if err != nil {
				return err
			}
			if state != StateAbsent {
				return createError(out.Commitment, state)
			}

			if err := put(b, out.Commitment, StateUnspent); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	log.Debugf("Applied transaction %v with %d inputs and %d outputs",
		tx.TxHash(), len(tx.Inputs), len(tx.Outputs))

	return nil
}

// Unspent returns every unspent commitment.
func (s *Store) Unspent(ctx context.Context) ([]commitment.Commitment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var unspent []commitment.Commitment
	err := walletdb.View(s.db, func(tx walletdb.ReadTx) error {
		b := tx.ReadBucket(utxoBucketKey)
		if b == nil {
			return ErrMissingBucket
		}

		return b.ForEach(func(k, v []byte) error {
			state, err := decodeState(v)
			if err != nil {
				return err
			}
			if state != StateUnspent {
				return nil
			}

			c, err := commitment.Parse(k)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrCorruptEntry, err)
			}
			unspent = append(unspent, c)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return unspent, nil
}
