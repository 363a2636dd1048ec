// Package sessions provides a PostgreSQL-backed repository for login
// sessions. Rows are keyed by their bearer token.
package sessions

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

// Create inserts s and fills CreatedAt.
func (r *PostgresRepository) Create(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO sessions (token, id, user_id, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	if err := r.db.QueryRowContext(ctx, query, s.Token, s.ID, s.UserID, s.ExpiresAt).Scan(&s.CreatedAt); err != nil {
		return dbx.TranslateError(err)
	}
	return nil
}

// Find returns the session for token, or common.ErrorNotFound.
func (r *PostgresRepository) Find(ctx context.Context, token string) (*models.Session, error) {
	query := `
		SELECT token, id, user_id, created_at, expires_at
		FROM sessions
		WHERE token = $1
	`
	s := &models.Session{}
	if err := r.db.QueryRowContext(ctx, query, token).Scan(&s.Token, &s.ID, &s.UserID, &s.CreatedAt, &s.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

// Delete removes the session for token. Deleting a missing session is not
// an error.
func (r *PostgresRepository) Delete(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// DeleteExpired removes every session whose expiry is not after now and
// returns the removed rows.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) ([]models.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		DELETE FROM sessions WHERE expires_at <= $1
		RETURNING token, id, user_id, created_at, expires_at`, now)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var removed []models.Session
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(&s.Token, &s.ID, &s.UserID, &s.CreatedAt, &s.ExpiresAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		removed = append(removed, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return removed, nil
}
