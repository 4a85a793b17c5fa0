// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package utxo

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/mwmerge/commitment"
	"github.com/btcsuite/mwmerge/mwtx"
	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// Register the pure Go sqlite driver with database/sql.
	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

var (
	// ErrNilDB is returned when a nil database handle is passed in.
	ErrNilDB = errors.New("nil database")
)

const (
	// sqliteBusyTimeoutMs is how long sqlite retries a locked database
	// before returning SQLITE_BUSY.
	sqliteBusyTimeoutMs = 5000

	lookupStateQuery = `SELECT state FROM utxos WHERE commitment = ?`

	putStateQuery = `INSERT INTO utxos (commitment, state) VALUES (?, ?)
ON CONFLICT (commitment) DO UPDATE SET state = excluded.state`

	unspentQuery = `SELECT commitment FROM utxos WHERE state = ?
ORDER BY commitment`
)

// SQLStore is a Ledger persisted in a sqlite database.
type SQLStore struct {
	db *sql.DB
}

// A compile-time assertion to ensure that SQLStore implements Ledger.
var _ Ledger = (*SQLStore)(nil)

// applySQLiteMigrations brings the schema of db up to date.
func applySQLiteMigrations(db *sql.DB) error {
	source, err := iofs.New(sqliteMigrations, "migrations/sqlite")
	if err != nil {
		return fmt.Errorf("create source driver: %w", err)
	}

	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// NewSQLStore wraps an open sqlite database, applying any pending schema
// migrations.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	if db == nil {
		return nil, ErrNilDB
	}

	if err := applySQLiteMigrations(db); err != nil {
		return nil, err
	}

	return &SQLStore{db: db}, nil
}

// OpenSQLStore opens the sqlite database at path, creating it and its parent
// directory if they do not exist.
func OpenSQLStore(path string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode=WAL"+
		"&_pragma=busy_timeout=%d&_txlock=immediate", path,
		sqliteBusyTimeoutMs)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open utxo db %s: %w", path, err)
	}

	s, err := NewSQLStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Infof("Opened sqlite utxo db %s", path)

	return s, nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string,
		args ...any) *sql.Row
	ExecContext(ctx context.Context, query string,
		args ...any) (sql.Result, error)
}

func lookupSQL(ctx context.Context, q queryer,
	c commitment.Commitment) (State, error) {

	key := c.Bytes()

	var state int64
	err := q.QueryRowContext(ctx, lookupStateQuery, key[:]).Scan(&state)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return StateAbsent, nil

	case err != nil:
		return StateAbsent, err
	}

	switch s := State(state); s {
	case StateUnspent, StateSpent:
		return s, nil
	default:
		return StateAbsent, fmt.Errorf("%w: state %d", ErrCorruptEntry,
			state)
	}
}

func putSQL(ctx context.Context, q queryer, c commitment.Commitment,
	state State) error {

	key := c.Bytes()
	_, err := q.ExecContext(ctx, putStateQuery, key[:], int64(state))

	return err
}

// execInTx runs f in a database transaction, committing on success and
// rolling back on error.
func (s *SQLStore) execInTx(ctx context.Context, f func(*sql.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	// Rollback is a no-op once the transaction has been committed.
	defer func() {
		_ = tx.Rollback()
	}()

	if err := f(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// LookupCommitment returns the state of c.
func (s *SQLStore) LookupCommitment(ctx context.Context,
	c commitment.Commitment) (State, error) {

	if err := ctx.Err(); err != nil {
		return StateAbsent, err
	}

	state, err := lookupSQL(ctx, s.db, c)
	if err != nil {
		return StateAbsent, fmt.Errorf("lookup %v: %w", c, err)
	}

	return state, nil
}

// AddUnspent records c as an unspent output, overriding any previous state.
func (s *SQLStore) AddUnspent(ctx context.Context,
	c commitment.Commitment) error {

	return putSQL(ctx, s.db, c, StateUnspent)
}

// MarkSpent records c as spent. It fails if c is not unspent.
func (s *SQLStore) MarkSpent(ctx context.Context,
	c commitment.Commitment) error {

	return s.execInTx(ctx, func(tx *sql.Tx) error {
		state, err := lookupSQL(ctx, tx, c)
		if err != nil {
			return err
		}
		if state != StateUnspent {
			return spendError(c, state)
		}

		return putSQL(ctx, tx, c, StateSpent)
	})
}

// ApplyTransaction marks the inputs of tx spent and adds its outputs in a
// single database transaction.
func (s *SQLStore) ApplyTransaction(ctx context.Context,
	tx *mwtx.Transaction) error {

	err := s.execInTx(ctx, func(dbTx *sql.Tx) error {
		for _, in := range tx.Inputs {
			state, err := lookupSQL(ctx, dbTx, in.Commitment)
			if err != nil {
				return err
			}
			if state != StateUnspent {
				return spendError(in.Commitment, state)
			}

			err = putSQL(ctx, dbTx, in.Commitment, StateSpent)
			if err != nil {
				return err
			}
		}

		for _, out := range tx.Outputs {
			state, err := lookupSQL(ctx, dbTx, out.Commitment)
			if err != nil {
				return err
			}
			if state != StateAbsent {
				return createError(out.Commitment, state)
			}

			err = putSQL(ctx, dbTx, out.Commitment, StateUnspent)
			if err != nil {
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

// Unspent returns every unspent commitment ordered by encoding.
func (s *SQLStore) Unspent(ctx context.Context) ([]commitment.Commitment,
	error) {

	rows, err := s.db.QueryContext(ctx, unspentQuery, int64(StateUnspent))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var unspent []commitment.Commitment
	for rows.Next() {
		var key []byte
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}

		c, err := commitment.Parse(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptEntry, err)
		}
		unspent = append(unspent, c)
	}

	return unspent, rows.Err()
}
