package settings

import (
	"context"

	"github.com/dmitrijs2005/vaultsync/internal/server/models"
)

// Repository keeps the history of server settings. Latest returns
// common.ErrorNotFound until the first Save.
type Repository interface {
	Latest(ctx context.Context) (*models.Settings, error)
	Save(ctx context.Context, s *models.Settings) (*models.Settings, error)
}
