package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/access"
	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/events"
	"github.com/dmitrijs2005/vaultsync/internal/server/objectstore"
	"github.com/dmitrijs2005/vaultsync/internal/server/repositories/repomanager"
)

var errSigning = common.ErrSystem.WithMessage("Could not sign the transfer URL, please retry")

// ChunkService hands out presigned transfer URLs for content-addressed
// chunks. A chunk becomes stored only after the object store confirms the
// bytes; client claims are never trusted.
type ChunkService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       ObjectStore
	bus         Publisher
	now         func() time.Time
}

func NewChunkService(db *sql.DB, m repomanager.RepositoryManager, store ObjectStore, bus Publisher) *ChunkService {
	return &ChunkService{db: db, repomanager: m, store: store, bus: publisherOrNop(bus), now: nowUTC}
}

// RequestUpload returns a write-only URL for the chunk. If the vault already
// holds the bytes it fails with ResourceNotUnique, which callers treat as
// "skip this upload".
func (s *ChunkService) RequestUpload(ctx context.Context, user access.RequestingUser, vaultID, hash string, size int64) (string, error) {
	if err := validateHash(hash); err != nil {
		return "", err
	}
	if size < 0 {
		return "", common.ErrRequestInvalid.WithMessage("size must not be negative")
	}
	if _, err := loadVault(ctx, s.repomanager.Vaults(s.db), user, vaultID,
		perms(access.ChunksUpload), perms(access.ChunksUploadAll)); err != nil {
		return "", err
	}

	repo := s.repomanager.Chunks(s.db)
	c, err := repo.Get(ctx, vaultID, hash)
	switch {
	case err == nil && c.IsStored:
		return "", common.ErrResourceNotUnique.WithMessage("chunk %s is already stored", hash)
	case err != nil && !errors.Is(err, common.ErrorNotFound):
		return "", err
	}

	stored, err := s.confirm(ctx, repo, user.SessionID, vaultID, hash, size)
	if err != nil {
		return "", err
	}
	if stored {
		return "", common.ErrResourceNotUnique.WithMessage("chunk %s is already stored", hash)
	}

	if err := repo.EnsurePending(ctx, vaultID, hash, size); err != nil {
		return "", err
	}

	url, err := s.store.PresignPut(ctx, objectstore.ChunkKey(vaultID, hash), hash)
	if err != nil {
		return "", errSigning.Wrap(err)
	}
	return url, nil
}

// RequestDownload returns a read-only URL for a stored chunk.
func (s *ChunkService) RequestDownload(ctx context.Context, user access.RequestingUser, vaultID, hash string) (string, error) {
	if err := validateHash(hash); err != nil {
		return "", err
	}
	if _, err := loadVault(ctx, s.repomanager.Vaults(s.db), user, vaultID,
		perms(access.ChunksDownload), perms(access.ChunksDownloadAll)); err != nil {
		return "", err
	}

	repo := s.repomanager.Chunks(s.db)
	c, err := repo.Get(ctx, vaultID, hash)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrResourceNotFound.WithMessage("chunk %s not found", hash)
		}
		return "", err
	}

	if !c.IsStored {
		stored, err := s.confirm(ctx, repo, user.SessionID, vaultID, hash, c.Size)
		if err != nil {
			return "", err
		}
		if !stored {
			return "", common.ErrResourceNotFound.WithMessage("chunk %s not found", hash)
		}
	}

	url, err := s.store.PresignGet(ctx, objectstore.ChunkKey(vaultID, hash))
	if err != nil {
		return "", errSigning.Wrap(err)
	}
	return url, nil
}

// ListStored returns every stored chunk hash of the vault, for the client's
// dedup pre-check.
func (s *ChunkService) ListStored(ctx context.Context, user access.RequestingUser, vaultID string) ([]string, error) {
	if _, err := loadVault(ctx, s.repomanager.Vaults(s.db), user, vaultID,
		perms(access.ChunksDownload), perms(access.ChunksDownloadAll)); err != nil {
		return nil, err
	}
	return s.repomanager.Chunks(s.db).ListStored(ctx, vaultID)
}

// confirm checks the object store and, if the bytes are there, performs the
// stored transition. It reports whether the chunk is stored.
func (s *ChunkService) confirm(ctx context.Context, repo chunkMarker, sessionID, vaultID, hash string, size int64) (bool, error) {
	ok, err := s.store.Exists(ctx, objectstore.ChunkKey(vaultID, hash))
	if err != nil {
		return false, common.ErrSystem.Wrap(err)
	}
	if !ok {
		return false, nil
	}

	transitioned, err := repo.MarkStored(ctx, vaultID, hash, size)
	if err != nil {
		return false, err
	}
	if transitioned {
		s.bus.Publish(events.Event{Type: events.ChunkStored, SessionID: sessionID, VaultID: vaultID, EntityID: hash, At: s.now()})
	}
	return true, nil
}

type chunkMarker interface {
	MarkStored(ctx context.Context, vaultID, hash string, size int64) (bool, error)
}

// CollectGarbage removes up to limit chunks that no file version references
// and that are older than grace. The row is deleted first under a
// NOT EXISTS guard, so a chunk re-linked meanwhile survives; the object is
// removed afterwards. If a new upload re-registered the hash in between,
// the row is reverted to pending so the next request checks again.
func (s *ChunkService) CollectGarbage(ctx context.Context, grace time.Duration, limit int) (int, error) {
	cutoff := s.now().Add(-grace)
	repo := s.repomanager.Chunks(s.db)

	candidates, err := repo.ListCollectable(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		deleted, err := repo.DeleteIfUnreferenced(ctx, c.VaultID, c.Hash, cutoff)
		if err != nil {
			return removed, err
		}
		if !deleted {
			continue
		}

		if err := s.store.Delete(ctx, objectstore.ChunkKey(c.VaultID, c.Hash)); err != nil {
			return removed, err
		}
		removed++

		if err := s.reviveIfReRegistered(ctx, c.VaultID, c.Hash); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (s *ChunkService) reviveIfReRegistered(ctx context.Context, vaultID, hash string) error {
	repo := s.repomanager.Chunks(s.db)
	c, err := repo.Get(ctx, vaultID, hash)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return err
	}
	if !c.IsStored {
		return nil
	}
	return repo.Unmark(ctx, vaultID, hash)
}
