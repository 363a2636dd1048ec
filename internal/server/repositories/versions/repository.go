package versions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, v *models.Version) (*models.Version, error)
	GetVersion(ctx context.Context, versionID string) (*models.Version, error)
	GetCurrent(ctx context.Context, id string) (*models.Version, error)
	HasChildren(ctx context.Context, versionID string) (bool, error)
	Query(ctx context.Context, f models.VersionFilters) ([]*models.Version, int, error)
	Summaries(ctx context.Context, vaultID string) ([]models.VersionSummary, error)
	LinkChunks(ctx context.Context, versionID, vaultID string, chunks []models.FileChunk) error
	ListChunks(ctx context.Context, versionID string) ([]models.FileChunk, error)
	Commit(ctx context.Context, versionID string, at time.Time) error
}
