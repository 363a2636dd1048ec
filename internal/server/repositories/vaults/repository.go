package vaults

import (
	"context"

	"github.com/dmitrijs2005/vaultsync/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, v *models.Vault) (*models.Vault, error)
	Get(ctx context.Context, id string) (*models.Vault, error)
	Update(ctx context.Context, id string, patch models.VaultPatch) (*models.Vault, error)
	SoftDelete(ctx context.Context, id string) error
	Touch(ctx context.Context, id string) error
	Query(ctx context.Context, f models.VaultFilters) ([]*models.Vault, int, error)
}
