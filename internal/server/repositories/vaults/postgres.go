// Package vaults persists vault rows. Vaults are soft-deleted: a deleted row
// keeps its data and gets deleted_at set.
package vaults

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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

const vaultColumns = `id, owner_id, name, protected_encryption_key, protected_data, created_at, updated_at, deleted_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanVault(s scanner) (*models.Vault, error) {
	v := &models.Vault{}
	err := s.Scan(&v.ID, &v.OwnerID, &v.Name, &v.ProtectedEncryptionKey, &v.ProtectedData,
		&v.CreatedAt, &v.UpdatedAt, &v.DeletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, dbx.TranslateError(err)
	}
	return v, nil
}

func (r *PostgresRepository) Create(ctx context.Context, v *models.Vault) (*models.Vault, error) {
	query := `
		INSERT INTO vaults (id, owner_id, name, protected_encryption_key, protected_data)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + vaultColumns

	return scanVault(r.db.QueryRowContext(ctx, query,
		v.ID, v.OwnerID, v.Name, v.ProtectedEncryptionKey, v.ProtectedData))
}

// Get returns the vault with id, including soft-deleted ones.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Vault, error) {
	return scanVault(r.db.QueryRowContext(ctx, `SELECT `+vaultColumns+` FROM vaults WHERE id = $1`, id))
}

// Update applies the non-nil fields of patch to a live vault and bumps
// updated_at.
func (r *PostgresRepository) Update(ctx context.Context, id string, patch models.VaultPatch) (*models.Vault, error) {
	query := `
		UPDATE vaults SET
			name = COALESCE($2, name),
			protected_encryption_key = COALESCE($3, protected_encryption_key),
			protected_data = COALESCE($4, protected_data),
			updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING ` + vaultColumns

	return scanVault(r.db.QueryRowContext(ctx, query,
		id, patch.Name, patch.ProtectedEncryptionKey, patch.ProtectedData))
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE vaults SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

// Touch bumps updated_at so snapshot pre-checks notice a change.
func (r *PostgresRepository) Touch(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE vaults SET updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

// Query lists live vaults, optionally restricted to one owner, and returns
// the total count before paging.
func (r *PostgresRepository) Query(ctx context.Context, f models.VaultFilters) ([]*models.Vault, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM vaults WHERE deleted_at IS NULL AND ($1 = '' OR owner_id::text = $1)`,
		f.OwnerID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+vaultColumns+` FROM vaults
		WHERE deleted_at IS NULL AND ($1 = '' OR owner_id::text = $1)
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3`, f.OwnerID, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Vault, 0)
	for rows.Next() {
		v, err := scanVault(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}
	return result, total, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
