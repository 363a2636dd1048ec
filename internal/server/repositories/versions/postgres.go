// Package versions persists the append-only version chains of items and
// files. Rows are never updated in place except for the commit marker of
// file versions.
package versions

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

const versionColumns = `v.version_id, v.previous_version_id, v.id, v.vault_id, v.type, v.protected_data,
	v.created_at, v.created_by, v.deleted_at, v.committed_at`

// leafCondition keeps versions that nothing has superseded yet.
const leafCondition = `NOT EXISTS (SELECT 1 FROM versions c WHERE c.previous_version_id = v.version_id)`

type scanner interface {
	Scan(dest ...any) error
}

func scanVersion(s scanner) (*models.Version, error) {
	v := &models.Version{}
	err := s.Scan(&v.VersionID, &v.PreviousVersionID, &v.ID, &v.VaultID, &v.Type, &v.ProtectedData,
		&v.CreatedAt, &v.CreatedBy, &v.DeletedAt, &v.CommittedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, dbx.TranslateError(err)
	}
	return v, nil
}

// Create inserts a version. Replaying an existing version id fails with
// ResourceNotUnique; a dangling vault or parent with
// ResourceRelationshipInvalid.
func (r *PostgresRepository) Create(ctx context.Context, v *models.Version) (*models.Version, error) {
	query := `
		INSERT INTO versions AS v (version_id, previous_version_id, id, vault_id, type, protected_data, created_by, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + versionColumns

	return scanVersion(r.db.QueryRowContext(ctx, query,
		v.VersionID, v.PreviousVersionID, v.ID, v.VaultID, v.Type, v.ProtectedData, v.CreatedBy, v.DeletedAt))
}

func (r *PostgresRepository) GetVersion(ctx context.Context, versionID string) (*models.Version, error) {
	return scanVersion(r.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM versions v WHERE v.version_id = $1`, versionID))
}

// GetCurrent returns the newest leaf of group id. When concurrent writers
// left several sibling leaves, the most recently created one wins.
func (r *PostgresRepository) GetCurrent(ctx context.Context, id string) (*models.Version, error) {
	return scanVersion(r.db.QueryRowContext(ctx, `
		SELECT `+versionColumns+` FROM versions v
		WHERE v.id = $1 AND `+leafCondition+`
		ORDER BY v.created_at DESC, v.version_id DESC
		LIMIT 1`, id))
}

func (r *PostgresRepository) HasChildren(ctx context.Context, versionID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM versions WHERE previous_version_id = $1)`, versionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

// liveLeaves selects the leaves of vault $1 whose group is live, i.e. whose
// newest leaf, the one GetCurrent returns, is not a tombstone. Live siblings
// of a live group are all kept.
const liveLeaves = `
	WITH leaves AS (
		SELECT ` + versionColumns + ` FROM versions v
		WHERE v.vault_id = $1 AND ` + leafCondition + `
	), heads AS (
		SELECT DISTINCT ON (id) id, deleted_at FROM leaves
		ORDER BY id, created_at DESC, version_id DESC
	)`

const liveLeavesWhere = `
	FROM leaves v JOIN heads h ON h.id = v.id
	WHERE h.deleted_at IS NULL AND v.deleted_at IS NULL AND ($2 = '' OR v.type::text = $2)`

// Query pages through the live leaves of a vault, optionally by type.
func (r *PostgresRepository) Query(ctx context.Context, f models.VersionFilters) ([]*models.Version, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, liveLeaves+` SELECT count(*)`+liveLeavesWhere,
		f.VaultID, string(f.Type)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, liveLeaves+` SELECT `+versionColumns+liveLeavesWhere+`
		ORDER BY v.created_at, v.version_id
		LIMIT $3 OFFSET $4`, f.VaultID, string(f.Type), f.Limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Version, 0)
	for rows.Next() {
		v, err := scanVersion(rows)
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

// Summaries lists every version of a vault without payloads.
func (r *PostgresRepository) Summaries(ctx context.Context, vaultID string) ([]models.VersionSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT version_id, previous_version_id, id, type, deleted_at
		FROM versions
		WHERE vault_id = $1`, vaultID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]models.VersionSummary, 0)
	for rows.Next() {
		var s models.VersionSummary
		if err := rows.Scan(&s.VersionID, &s.PreviousVersionID, &s.ID, &s.Type, &s.DeletedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) LinkChunks(ctx context.Context, versionID, vaultID string, chunks []models.FileChunk) error {
	query := `
		INSERT INTO files_chunks (version_id, vault_id, chunk_hash, file_position)
		VALUES ($1, $2, $3, $4)`
	for _, c := range chunks {
		if _, err := r.db.ExecContext(ctx, query, versionID, vaultID, c.Hash, c.Position); err != nil {
			return dbx.TranslateError(err)
		}
	}
	return nil
}

// ListChunks returns the chunks of a file version in position order.
func (r *PostgresRepository) ListChunks(ctx context.Context, versionID string) ([]models.FileChunk, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT fc.chunk_hash, fc.file_position, c.size
		FROM files_chunks fc
		JOIN chunks c ON c.vault_id = fc.vault_id AND c.hash = fc.chunk_hash
		WHERE fc.version_id = $1
		ORDER BY fc.file_position`, versionID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]models.FileChunk, 0)
	for rows.Next() {
		var c models.FileChunk
		if err := rows.Scan(&c.Hash, &c.Position, &c.Size); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// Commit marks a file version as fully uploaded. Committing twice keeps the
// first timestamp.
func (r *PostgresRepository) Commit(ctx context.Context, versionID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE versions SET committed_at = COALESCE(committed_at, $2) WHERE version_id = $1`, versionID, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
