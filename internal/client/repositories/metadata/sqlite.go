package metadata

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

func opError(op, key string, err error) error {
	return fmt.Errorf("metadata %s %q: %w", op, key, err)
}

// Get returns common.ErrorNotFound for a missing key.
func (r *SQLiteRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	switch err := r.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value); {
	case errors.Is(err, sql.ErrNoRows):
		return "", common.ErrorNotFound
	case err != nil:
		return "", opError("get", key, err)
	}
	return value, nil
}

func (r *SQLiteRepository) Set(ctx context.Context, key string, value string) error {
	const q = `INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := r.db.ExecContext(ctx, q, key, value); err != nil {
		return opError("set", key, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM metadata WHERE key = ?`, key); err != nil {
		return opError("delete", key, err)
	}
	return nil
}

// DeletePrefix compares with substr rather than LIKE so "_" and "%" in
// vault ids are matched literally.
func (r *SQLiteRepository) DeletePrefix(ctx context.Context, prefix string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM metadata WHERE substr(key, 1, ?) = ?`, len(prefix), prefix)
	if err != nil {
		return opError("delete", prefix+"*", err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	return r.DeletePrefix(ctx, "")
}

func (r *SQLiteRepository) Scan(ctx context.Context, prefix string) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT key, value FROM metadata WHERE substr(key, 1, ?) = ? ORDER BY key`, len(prefix), prefix)
	if err != nil {
		return nil, opError("scan", prefix+"*", err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, opError("scan", prefix+"*", err)
		}
		result[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, opError("scan", prefix+"*", err)
	}
	return result, nil
}

// IsSet reports whether key is present.
func IsSet(ctx context.Context, r Repository, key string) (bool, error) {
	_, err := r.Get(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, common.ErrorNotFound):
		return false, nil
	default:
		return false, err
	}
}
