package chunks

import (
	"context"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context, vaultID, hash string) (*models.Chunk, error)
	EnsurePending(ctx context.Context, vaultID, hash string, size int64) error
	MarkStored(ctx context.Context, vaultID, hash string, size int64) (bool, error)
	Unmark(ctx context.Context, vaultID, hash string) error
	ListStored(ctx context.Context, vaultID string) ([]string, error)
	ListCollectable(ctx context.Context, before time.Time, limit int) ([]models.Chunk, error)
	DeleteIfUnreferenced(ctx context.Context, vaultID, hash string, before time.Time) (bool, error)
}
