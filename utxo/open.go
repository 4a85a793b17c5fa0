// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package utxo

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/mwmerge/commitment"
)

const (
	// BackendBolt stores the utxo set in a bolt backed walletdb.
	BackendBolt = "bdb"

	// BackendSQLite stores the utxo set in a sqlite database.
	BackendSQLite = "sqlite"
)

// Database is a Ledger kept in persistent storage.
type Database interface {
	Ledger

	// AddUnspent records c as an unspent output.
	AddUnspent(ctx context.Context, c commitment.Commitment) error

	// MarkSpent records c as spent. It fails if c is not unspent.
	MarkSpent(ctx context.Context, c commitment.Commitment) error

	// Unspent returns every unspent commitment.
	Unspent(ctx context.Context) ([]commitment.Commitment, error)

	// Close releases the database.
	Close() error
}

// A compile-time assertion to ensure that both stores implement Database.
var (
	_ Database = (*Store)(nil)
	_ Database = (*SQLStore)(nil)
)

// Open opens the utxo database at path with the named backend.
func Open(backend, path string, timeout time.Duration) (Database, error) {
	var (
		db  Database
		err error
	)
	switch backend {
	case BackendBolt:
		db, err = OpenStore(path, timeout)

	case BackendSQLite:
		db, err = OpenSQLStore(path)

	default:
		return nil, fmt.Errorf("unknown utxo db backend %q", backend)
	}
	if err != nil {
		return nil, err
	}

	return db, nil
}
