// Package store opens the client's local SQLite mirror and vends the
// repositories bound to it or to one of its transactions.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/vaultsync/internal/client/migrations"
	"github.com/dmitrijs2005/vaultsync/internal/client/repositories/blobs"
	"github.com/dmitrijs2005/vaultsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/vaultsync/internal/client/repositories/vaults"
	"github.com/dmitrijs2005/vaultsync/internal/client/repositories/versions"
	"github.com/dmitrijs2005/vaultsync/internal/dbx"
	"github.com/dmitrijs2005/vaultsync/internal/filex"

	_ "modernc.org/sqlite"
)

// Memory opens a private in-memory database instead of a file.
const Memory = ":memory:"

type Store struct {
	db *sql.DB
}

// Open creates the database file and its directory if needed and applies
// the migrations. The store uses a single connection: SQLite has one writer
// and concurrent reconciliation would otherwise hit SQLITE_BUSY.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := Memory
	if path != Memory {
		abs, err := filex.EnsureFileDir(path)
		if err != nil {
			return nil, err
		}
		dsn = abs + "?_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := migrations.Up(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn in a transaction. Repositories used inside fn must be
// bound to tx; the pool has a single connection.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	return dbx.WithTx(ctx, s.db, nil, fn)
}

func (s *Store) Metadata(db dbx.DBTX) metadata.Repository {
	return metadata.NewSQLiteRepository(db)
}

func (s *Store) Vaults(db dbx.DBTX) vaults.Repository {
	return vaults.NewSQLiteRepository(db)
}

func (s *Store) Versions(db dbx.DBTX) versions.Repository {
	return versions.NewSQLiteRepository(db)
}

func (s *Store) Blobs(db dbx.DBTX) blobs.Repository {
	return blobs.NewSQLiteRepository(db)
}
