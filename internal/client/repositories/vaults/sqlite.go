package vaults

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/client/models"
	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectVault = `SELECT id, name, protected_encryption_key, protected_data, created_at, updated_at, deleted_at FROM vaults`

type scanner interface {
	Scan(dest ...any) error
}

func scanVault(row scanner) (*models.Vault, error) {
	v := &models.Vault{}
	if err := row.Scan(&v.ID, &v.Name, &v.ProtectedEncryptionKey, &v.ProtectedData,
		&v.CreatedAt, &v.UpdatedAt, &v.DeletedAt); err != nil {
		return nil, err
	}
	return v, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.Vault, error) {
	v, err := scanVault(r.db.QueryRowContext(ctx, selectVault+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to get vault %s: %w", id, err)
	}
	return v, nil
}

// Upsert writes every column of v. Timestamps are stored in UTC.
func (r *SQLiteRepository) Upsert(ctx context.Context, v *models.Vault) error {
	query := `
		INSERT INTO vaults (id, name, protected_encryption_key, protected_data, created_at, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			protected_encryption_key = excluded.protected_encryption_key,
			protected_data = excluded.protected_data,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at
	`
	_, err := r.db.ExecContext(ctx, query, v.ID, v.Name, v.ProtectedEncryptionKey, v.ProtectedData,
		v.CreatedAt.UTC(), v.UpdatedAt.UTC(), utcOrNil(v.DeletedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert vault %s: %w", v.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE vaults SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`, at.UTC(), at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete vault %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *SQLiteRepository) Purge(ctx context.Context, id string) error {
	statements := []string{
		`DELETE FROM files_chunks WHERE version_id IN (SELECT version_id FROM versions WHERE vault_id = ?)`,
		`DELETE FROM versions WHERE vault_id = ?`,
		`DELETE FROM chunk_blobs WHERE vault_id = ?`,
		`DELETE FROM vaults WHERE id = ?`,
	}
	for _, q := range statements {
		if _, err := r.db.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("failed to purge vault %s: %w", id, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) Query(ctx context.Context, includeDeleted bool) ([]*models.Vault, error) {
	query := selectVault
	if !includeDeleted {
		query += ` WHERE deleted_at IS NULL`
	}
	query += ` ORDER BY name, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select vaults: %w", err)
	}
	defer rows.Close()

	var result []*models.Vault
	for rows.Next() {
		v, err := scanVault(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vault: %w", err)
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func utcOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
