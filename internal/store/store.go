// Package store is the node's single persistence boundary: a SQLite
// database reached exclusively through database/sql, wrapping every write
// in a transaction to honor the single-writer invariant of spec section 5.
// Grounded on certenIO-certen-validator's liteclient/storage/sqlite package
// (Config/Open shape, schema-as-constant, PRAGMA tuning) and adapted to
// axiomd's Fact/Block/FactLink domain.
package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/axiom-network/axiomd/internal/axiomerr"
)

// Config controls how the store opens its underlying SQLite file.
type Config struct {
	// Path is the SQLite database file path. ":memory:" is accepted for
	// tests but loses all data once the process exits.
	Path string
}

func DefaultConfig() Config {
	return Config{Path: "axiom.db"}
}

// Store is the node's persistence handle. All writes go through WithTx,
// which additionally serializes writers with writeMu: SQLite allows one
// writer at a time regardless, but serializing in-process avoids churning
// through SQLITE_BUSY retries under the WAL busy_timeout.
type Store struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// Open opens (creating if absent) the SQLite file at cfg.Path, applies the
// pragmas, and ensures the schema exists.
func Open(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", axiomerr.ErrCannotOpenStore, err)
	}
	// SQLite has no real benefit from a connection pool and WAL writers
	// must be serialized anyway; a single connection keeps the driver's
	// internal locking simple.
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: pragma %q: %v", axiomerr.ErrCannotOpenStore, p, err)
		}
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: apply schema: %v", axiomerr.ErrCannotOpenStore, err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying *sql.DB for read-only queries from other
// packages (the verification API and sync's reconciliation reads). Writers
// must go through WithTx.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside a single transaction: begin, run fn, commit on
// success or rollback on error/panic. Writers are serialized in-process by
// writeMu so concurrent callers queue rather than contend on SQLITE_BUSY.
func (s *Store) WithTx(fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// View runs fn against the shared *sql.DB for read-only queries; it does
// not take writeMu. The store holds a single connection, so a read still
// waits while a WithTx transaction is open.
func (s *Store) View(fn func(db *sql.DB) error) error {
	return fn(s.db)
}
