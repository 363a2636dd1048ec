package blobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Put stores data once; the same hash always seals to the same bytes.
func (r *SQLiteRepository) Put(ctx context.Context, vaultID, hash string, data []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chunk_blobs (vault_id, hash, data) VALUES (?, ?, ?)
		ON CONFLICT(vault_id, hash) DO NOTHING
	`, vaultID, hash, data)
	if err != nil {
		return fmt.Errorf("failed to store chunk %s: %w", hash, err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, vaultID, hash string) ([]byte, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT data FROM chunk_blobs WHERE vault_id = ? AND hash = ?`, vaultID, hash).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk %s: %w", hash, err)
	}
	return data, nil
}

func (r *SQLiteRepository) Has(ctx context.Context, vaultID, hash string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunk_blobs WHERE vault_id = ? AND hash = ?`, vaultID, hash).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to look up chunk %s: %w", hash, err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, vaultID, hash string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM chunk_blobs WHERE vault_id = ? AND hash = ?`, vaultID, hash); err != nil {
		return fmt.Errorf("failed to delete chunk %s: %w", hash, err)
	}
	return nil
}
