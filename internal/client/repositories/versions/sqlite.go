package versions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
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

const selectVersion = `SELECT version_id, previous_version_id, id, vault_id, type, protected_data,
	created_at, created_by, deleted_at, committed_at FROM versions`

type scanner interface {
	Scan(dest ...any) error
}

func scanVersion(row scanner) (*models.Version, error) {
	v := &models.Version{}
	err := row.Scan(&v.VersionID, &v.PreviousVersionID, &v.ID, &v.VaultID, &v.Type, &v.ProtectedData,
		&v.CreatedAt, &v.CreatedBy, &v.DeletedAt, &v.CommittedAt)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (r *SQLiteRepository) Create(ctx context.Context, v *models.Version) error {
	query := `
		INSERT INTO versions (version_id, previous_version_id, id, vault_id, type, protected_data,
			created_at, created_by, deleted_at, committed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(version_id) DO UPDATE SET
			created_at = excluded.created_at,
			committed_at = COALESCE(versions.committed_at, excluded.committed_at)
	`
	_, err := r.db.ExecContext(ctx, query, v.VersionID, v.PreviousVersionID, v.ID, v.VaultID, v.Type,
		v.ProtectedData, v.CreatedAt.UTC(), v.CreatedBy, utcOrNil(v.DeletedAt), utcOrNil(v.CommittedAt))
	if err != nil {
		return fmt.Errorf("failed to insert version %s: %w", v.VersionID, err)
	}

	for _, c := range v.Chunks {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO files_chunks (version_id, chunk_hash, file_position, size)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(version_id, file_position) DO NOTHING
		`, v.VersionID, c.Hash, c.Position, c.Size)
		if err != nil {
			return fmt.Errorf("failed to link chunk %s: %w", c.Hash, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) GetVersion(ctx context.Context, versionID string) (*models.Version, error) {
	v, err := scanVersion(r.db.QueryRowContext(ctx, selectVersion+` WHERE version_id = ?`, versionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to get version %s: %w", versionID, err)
	}

	if v.Type == models.VersionTypeFile {
		if v.Chunks, err = r.Chunks(ctx, versionID); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (r *SQLiteRepository) list(ctx context.Context, where string, args ...any) ([]*models.Version, error) {
	rows, err := r.db.QueryContext(ctx, selectVersion+` WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select versions: %w", err)
	}
	defer rows.Close()

	var result []*models.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Current(ctx context.Context, groupID string) (*models.Version, error) {
	group, err := r.list(ctx, `id = ?`, groupID)
	if err != nil {
		return nil, err
	}
	current := newestLeaf(group)
	if current == nil {
		return nil, common.ErrorNotFound
	}
	if current.Type == models.VersionTypeFile {
		if current.Chunks, err = r.Chunks(ctx, current.VersionID); err != nil {
			return nil, err
		}
	}
	return current, nil
}

func (r *SQLiteRepository) Query(ctx context.Context, vaultID string, typ models.VersionType) ([]*models.Version, error) {
	where, args := `vault_id = ?`, []any{vaultID}
	if typ != "" {
		where += ` AND type = ?`
		args = append(args, typ)
	}
	all, err := r.list(ctx, where, args...)
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]*models.Version)
	for _, v := range all {
		groups[v.ID] = append(groups[v.ID], v)
	}

	var result []*models.Version
	for _, g := range groups {
		if c := newestLeaf(g); c != nil && !c.Tombstone() {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r *SQLiteRepository) Snapshot(ctx context.Context, vaultID string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT version_id, deleted_at IS NOT NULL FROM versions WHERE vault_id = ?`, vaultID)
	if err != nil {
		return nil, fmt.Errorf("failed to select snapshot: %w", err)
	}
	defer rows.Close()

	snapshot := make(map[string]bool)
	for rows.Next() {
		var id string
		var deleted bool
		if err := rows.Scan(&id, &deleted); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		snapshot[id] = deleted
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (r *SQLiteRepository) Chunks(ctx context.Context, versionID string) ([]models.FileChunk, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT chunk_hash, file_position, size FROM files_chunks
		WHERE version_id = ? ORDER BY file_position
	`, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to select chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.FileChunk
	for rows.Next() {
		var c models.FileChunk
		if err := rows.Scan(&c.Hash, &c.Position, &c.Size); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *SQLiteRepository) Uncommitted(ctx context.Context, vaultID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT version_id FROM versions
		WHERE vault_id = ? AND type = 'file' AND deleted_at IS NULL AND committed_at IS NULL
		ORDER BY created_at, version_id
	`, vaultID)
	if err != nil {
		return nil, fmt.Errorf("failed to select uncommitted versions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan version id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *SQLiteRepository) Compact(ctx context.Context, groupID string) error {
	if _, err := r.db.ExecContext(ctx, `
		DELETE FROM files_chunks WHERE version_id IN (SELECT version_id FROM versions WHERE id = ?)
	`, groupID); err != nil {
		return fmt.Errorf("failed to unlink chunks of %s: %w", groupID, err)
	}
	if _, err := r.db.ExecContext(ctx,
		`UPDATE versions SET protected_data = '' WHERE id = ? AND deleted_at IS NULL`, groupID); err != nil {
		return fmt.Errorf("failed to compact %s: %w", groupID, err)
	}
	return nil
}

// newestLeaf returns the version of group that no other version of the
// group follows, preferring the latest created_at and then the greatest
// version id so every replica picks the same one.
func newestLeaf(group []*models.Version) *models.Version {
	parents := make(map[string]struct{}, len(group))
	for _, v := range group {
		if v.PreviousVersionID != nil {
			parents[*v.PreviousVersionID] = struct{}{}
		}
	}

	var best *models.Version
	for _, v := range group {
		if _, superseded := parents[v.VersionID]; superseded {
			continue
		}
		if best == nil || v.CreatedAt.After(best.CreatedAt) ||
			(v.CreatedAt.Equal(best.CreatedAt) && v.VersionID > best.VersionID) {
			best = v
		}
	}
	return best
}

func utcOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
