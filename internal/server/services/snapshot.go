package services

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/vaultsync/internal/access"
	"github.com/dmitrijs2005/vaultsync/internal/server/models"
	"github.com/dmitrijs2005/vaultsync/internal/server/repositories/repomanager"
)

// SnapshotService summarises a vault for one-round-trip reconciliation.
type SnapshotService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewSnapshotService(db *sql.DB, m repomanager.RepositoryManager) *SnapshotService {
	return &SnapshotService{db: db, repomanager: m}
}

// Get returns the vault's updatedAt and every known version id with its
// tombstone flag. Payloads are never included.
func (s *SnapshotService) Get(ctx context.Context, user access.RequestingUser, vaultID string) (*models.Snapshot, error) {
	v, err := loadVault(ctx, s.repomanager.Vaults(s.db), user, vaultID,
		perms(access.VaultsRetrieve), perms(access.VaultsRetrieveAll))
	if err != nil {
		return nil, err
	}

	summaries, err := s.repomanager.Versions(s.db).Summaries(ctx, vaultID)
	if err != nil {
		return nil, err
	}

	snap := &models.Snapshot{
		Vault:    models.SnapshotVault{UpdatedAt: v.UpdatedAt},
		Versions: make(map[string]bool, len(summaries)),
	}
	for _, sum := range summaries {
		snap.Versions[sum.VersionID] = sum.DeletedAt != nil
	}
	return snap, nil
}
