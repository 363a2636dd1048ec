package dbx

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE codes that carry meaning for callers.
const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
)

// TranslateError maps constraint violations reported by Postgres onto the
// client-visible error kinds and wraps everything else as a db error.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return common.ErrResourceNotUnique.Wrap(err)
		case pgForeignKeyViolation:
			return common.ErrResourceRelationshipInvalid.Wrap(err)
		case pgCheckViolation:
			return common.ErrRequestInvalid.Wrap(err)
		}
	}

	return fmt.Errorf("db error: %w", err)
}
