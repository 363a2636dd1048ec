// Package versions persists the local copy of version chains and the chunk
// lists of file versions.
//
// Rows are never rewritten once stored: an update is a new version whose
// previous_version_id points at its parent and a delete is a tombstone
// version. Several leaves may exist in a group after concurrent offline
// edits; Current picks the newest of them by created_at.
package versions

import (
	"context"

	"github.com/dmitrijs2005/vaultsync/internal/client/models"
)

type Repository interface {
	// Create stores v and its chunks. Storing a known version again only
	// fills in committed_at and adopts the given created_at.
	Create(ctx context.Context, v *models.Version) error
	GetVersion(ctx context.Context, versionID string) (*models.Version, error)
	// Current returns the newest leaf of the group, tombstones included.
	Current(ctx context.Context, groupID string) (*models.Version, error)
	// Query returns the current version of every live group in the vault.
	Query(ctx context.Context, vaultID string, typ models.VersionType) ([]*models.Version, error)
	// Snapshot maps every version id of the vault to its tombstone flag.
	Snapshot(ctx context.Context, vaultID string) (map[string]bool, error)
	Chunks(ctx context.Context, versionID string) ([]models.FileChunk, error)
	// Uncommitted lists the ids of live file versions of the vault that
	// have no committed_at yet.
	Uncommitted(ctx context.Context, vaultID string) ([]string, error)
	// Compact drops the payload and chunk links of a deleted group's
	// versions while keeping their ids.
	Compact(ctx context.Context, groupID string) error
}
