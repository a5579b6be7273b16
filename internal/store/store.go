// Package store provides SQLite-backed persistence for owner-scoped links.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/linkpage/internal/apperr"
	"github.com/starford/linkpage/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS links (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	ord        INTEGER NOT NULL,
	attributes TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_links_owner_ord ON links(owner_id, ord);
`

// Tx is the set of link operations available both on the store and inside
// a transaction. It performs no authorization.
type Tx interface {
	Get(ctx context.Context, id string) (*models.Link, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Link, error)
	// LastOrder returns the highest order held by ownerID. ok is false when
	// the owner has no links.
	LastOrder(ctx context.Context, ownerID string) (order int, ok bool, err error)
	Create(ctx context.Context, ownerID string, attributes json.RawMessage, order int) (*models.Link, error)
	UpdateAttributes(ctx context.Context, id string, attributes json.RawMessage) (*models.Link, error)
	UpdateOrder(ctx context.Context, id string, order int) (*models.Link, error)
	Delete(ctx context.Context, id string) error
	// ParkOrders negates every order of ownerID so that a full renumbering
	// can proceed without tripping the (owner_id, ord) unique index.
	ParkOrders(ctx context.Context, ownerID string) error
	// ShiftDown decrements every order of ownerID greater than after.
	ShiftDown(ctx context.Context, ownerID string, after int) error
}

// Store is a transactional link store.
type Store interface {
	Tx
	// Transaction runs fn inside a single database transaction. Writes made
	// through tx are committed together when fn returns nil and rolled back
	// otherwise. Calls sharing the same non-empty ownerID are serialized.
	Transaction(ctx context.Context, ownerID string, fn func(tx Tx) error) error
	Close() error
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps a sql.DB with link-specific operations.
type DB struct {
	conn  *sql.DB
	locks *ownerLocks
	links
}

var _ Store = (*DB)(nil)

// Open opens (or creates) the SQLite database and applies the schema.
//
// Transactions are started with BEGIN IMMEDIATE so that reading the last
// order and inserting after it cannot interleave with another writer.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn, locks: newOwnerLocks(), links: links{q: conn}}, nil
}

// Conn exposes the underlying connection to sibling repositories sharing the database.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Transaction implements Store.
func (db *DB) Transaction(ctx context.Context, ownerID string, fn func(tx Tx) error) error {
	if ownerID != "" {
		unlock := db.locks.lock(ownerID)
		defer unlock()
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(links{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("store: %s: %w: %w", op, apperr.ErrStorage, err)
}
