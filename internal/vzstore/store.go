// Package vzstore implements the VZFS store primitives (P): thin,
// single-transaction wrappers over a key-value-shaped database engine,
// standing in for the browser's indexed, transactional, per-origin
// object-store engine spec.md places out of scope.
//
// modernc.org/sqlite backs this: its UNIQUE constraint violation is the
// distinguishable "constraint error" kind §4.2 calls for, and an
// ORDER BY path range scan stands in for IndexedDB cursor iteration over
// a key range.
package vzstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS entity (
	path TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	is_leaf INTEGER NOT NULL,
	parent_path TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS entity_name_idx ON entity(name);
CREATE INDEX IF NOT EXISTS entity_parent_idx ON entity(parent_path);
CREATE INDEX IF NOT EXISTS entity_created_idx ON entity(created_at);
CREATE INDEX IF NOT EXISTS entity_updated_idx ON entity(updated_at);
CREATE UNIQUE INDEX IF NOT EXISTS entity_parent_name_idx ON entity(parent_path, name);

CREATE TABLE IF NOT EXISTS content (
	leaf_path TEXT PRIMARY KEY,
	content BLOB
);

CREATE TABLE IF NOT EXISTS lock (
	path_prefix TEXT PRIMARY KEY,
	expiry INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS lock_expiry_idx ON lock(expiry);
CREATE INDEX IF NOT EXISTS lock_created_idx ON lock(created_at);
`

// Store wraps a single VZFS filesystem database: the entity, content
// and lock object stores and their indexes, per spec §3.
type Store struct {
	Name string
	db   *sql.DB
}

// Open opens (creating if necessary) the sqlite file backing the named
// filesystem and ensures the three object stores and their indexes
// exist -- the "initializing" state of Lifecycle (C).
func Open(name, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errorf("vzstore.Open", "opening %q: %v", dsn, err)
	}
	db.SetMaxOpenConns(1) // sqlite: one writer at a time within this process.
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errorf("vzstore.Open", "migrating schema: %v", err)
	}
	log.WithField("filesystem", name).WithField("dsn", dsn).Debug("vzstore: opened")
	return &Store{Name: name, db: db}, nil
}

// Close releases the database handle. Lifecycle's "close" command.
func (s *Store) Close() error {
	return s.db.Close()
}

// txn runs fn inside exactly one transaction, committing on success and
// rolling back on any error fn returns -- the single-transaction
// discipline every P primitive follows (§4.2).
func (s *Store) txn(readonly bool, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(context.Background(), &sql.TxOptions{ReadOnly: readonly})
	if err != nil {
		return errorf("vzstore.txn", "begin: %v", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errorf("vzstore.txn", "commit: %v", err)
	}
	return nil
}

// isConstraintError reports whether err is a unique-index violation,
// the "ConstraintError" kind §4.2 requires callers be able to
// distinguish from any other store failure.
func isConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}

// ConstraintError wraps a unique-index violation so that callers can
// recognize it with errors.As without depending on sqlite error shapes.
type ConstraintError struct {
	Err error
}

func (e *ConstraintError) Error() string { return fmt.Sprintf("constraint violation: %v", e.Err) }
func (e *ConstraintError) Unwrap() error { return e.Err }

// classify turns a raw driver error into a ConstraintError when it is
// one, leaving every other error (the "StoreError" bucket, §7) as is.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isConstraintError(err) {
		return &ConstraintError{Err: err}
	}
	return err
}

func errorf(typeMethod, format string, a ...interface{}) error {
	return fmt.Errorf("github.com/dvanderweele/vzfs/internal/vzstore."+typeMethod+": "+format, a...)
}
