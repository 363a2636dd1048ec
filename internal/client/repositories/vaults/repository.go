// Package vaults persists the local copy of the user's vaults.
package vaults

import (
	"context"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/client/models"
)

type Repository interface {
	// Get returns the vault even when it is soft-deleted.
	Get(ctx context.Context, id string) (*models.Vault, error)
	Upsert(ctx context.Context, v *models.Vault) error
	Delete(ctx context.Context, id string, at time.Time) error
	// Purge removes the vault and everything stored under it.
	Purge(ctx context.Context, id string) error
	Query(ctx context.Context, includeDeleted bool) ([]*models.Vault, error)
}
