package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, s *models.Session) error
	Find(ctx context.Context, token string) (*models.Session, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context, now time.Time) ([]models.Session, error)
}
