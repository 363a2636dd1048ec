// Package settings stores server-wide settings in Postgres. Rows are
// append-only; the newest one is in force.
package settings

import (
	"context"
	"database/sql"
	"errors"

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

func (r *PostgresRepository) Latest(ctx context.Context) (*models.Settings, error) {
	query := `SELECT registration_enabled, created_at FROM settings ORDER BY id DESC LIMIT 1`

	s := &models.Settings{}
	err := r.db.QueryRowContext(ctx, query).Scan(&s.RegistrationEnabled, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, dbx.TranslateError(err)
	}
	return s, nil
}

// Save appends s as the settings in force and fills CreatedAt.
func (r *PostgresRepository) Save(ctx context.Context, s *models.Settings) (*models.Settings, error) {
	query := `INSERT INTO settings (registration_enabled) VALUES ($1) RETURNING created_at`

	out := *s
	if err := r.db.QueryRowContext(ctx, query, s.RegistrationEnabled).Scan(&out.CreatedAt); err != nil {
		return nil, dbx.TranslateError(err)
	}
	return &out, nil
}
