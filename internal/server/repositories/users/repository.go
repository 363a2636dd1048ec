package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/server/models"
)

// Repository persists accounts. Lookups return common.ErrorNotFound for a
// missing user; Create reports a duplicate email as common.ErrResourceNotUnique.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	// MarkVerified keeps the first verification time if called again.
	MarkVerified(ctx context.Context, id string, at time.Time) error
	// Update applies the non-nil fields of patch. A taken email is
	// common.ErrResourceNotUnique.
	Update(ctx context.Context, id string, patch models.UserPatch) (*models.User, error)
	// Delete removes the account; sessions and vaults go with it.
	Delete(ctx context.Context, id string) error
}
