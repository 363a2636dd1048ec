// Package chunks tracks content-addressed chunks per vault. A row exists
// once a chunk was announced; is_stored flips to true only after the
// object store confirmed the bytes.
package chunks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/dbx"
	"github.com/dmitrijs2005/vaultsync/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const unreferenced = `NOT EXISTS (
	SELECT 1 FROM files_chunks fc WHERE fc.vault_id = c.vault_id AND fc.chunk_hash = c.hash)`

func (r *PostgresRepository) Get(ctx context.Context, vaultID, hash string) (*models.Chunk, error) {
	c := &models.Chunk{}
	err := r.db.QueryRowContext(ctx, `
		SELECT vault_id, hash, size, is_stored, created_at, stored_at
		FROM chunks
		WHERE vault_id = $1 AND hash = $2`, vaultID, hash).
		Scan(&c.VaultID, &c.Hash, &c.Size, &c.IsStored, &c.CreatedAt, &c.StoredAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

// EnsurePending records a chunk that is expected but not yet confirmed.
// An existing row, stored or not, is left alone.
func (r *PostgresRepository) EnsurePending(ctx context.Context, vaultID, hash string, size int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chunks (vault_id, hash, size)
		VALUES ($1, $2, $3)
		ON CONFLICT (vault_id, hash) DO NOTHING`, vaultID, hash, size)
	if err != nil {
		return dbx.TranslateError(err)
	}
	return nil
}

// MarkStored performs the pending -> stored transition. It reports true
// only for the caller that actually flipped the flag, so concurrent
// confirmations of one hash yield exactly one transition.
func (r *PostgresRepository) MarkStored(ctx context.Context, vaultID, hash string, size int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO chunks AS c (vault_id, hash, size, is_stored, stored_at)
		VALUES ($1, $2, $3, true, now())
		ON CONFLICT (vault_id, hash) DO UPDATE
		SET is_stored = true, stored_at = now(), size = GREATEST(c.size, excluded.size)
		WHERE NOT c.is_stored`, vaultID, hash, size)
	if err != nil {
		return false, dbx.TranslateError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

// Unmark reverts a chunk to pending so the next request checks the object
// store again.
func (r *PostgresRepository) Unmark(ctx context.Context, vaultID, hash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chunks SET is_stored = false, stored_at = NULL WHERE vault_id = $1 AND hash = $2`, vaultID, hash)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListStored(ctx context.Context, vaultID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT hash FROM chunks WHERE vault_id = $1 AND is_stored ORDER BY hash`, vaultID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	hashes := make([]string, 0)
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		hashes = append(hashes, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return hashes, nil
}

// ListCollectable returns chunks created before the cutoff that no file
// version references.
func (r *PostgresRepository) ListCollectable(ctx context.Context, before time.Time, limit int) ([]models.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.vault_id, c.hash, c.size, c.is_stored, c.created_at
		FROM chunks c
		WHERE c.created_at < $1 AND `+unreferenced+`
		ORDER BY c.created_at
		LIMIT $2`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]models.Chunk, 0)
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(&c.VaultID, &c.Hash, &c.Size, &c.IsStored, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// DeleteIfUnreferenced removes the chunk row only if it is still old enough
// and still unreferenced at delete time.
func (r *PostgresRepository) DeleteIfUnreferenced(ctx context.Context, vaultID, hash string, before time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM chunks c
		WHERE c.vault_id = $1 AND c.hash = $2 AND c.created_at < $3 AND `+unreferenced,
		vaultID, hash, before)
	if err != nil {
		return false, dbx.TranslateError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}
