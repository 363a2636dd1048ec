package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/access"
	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/dbx"
	"github.com/dmitrijs2005/vaultsync/internal/events"
	"github.com/dmitrijs2005/vaultsync/internal/server/models"
	"github.com/dmitrijs2005/vaultsync/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// VersionCreate is one client-authored version. Deleted marks it as a
// tombstone, which is how offline deletes reach the server.
type VersionCreate struct {
	VersionID         string             `json:"versionId"`
	PreviousVersionID *string            `json:"previousVersionId"`
	ID                string             `json:"id"`
	Type              models.VersionType `json:"type"`
	ProtectedData     string             `json:"protectedData"`
	Deleted           bool               `json:"deleted"`
	Chunks            []models.FileChunk `json:"chunks"`
}

type VersionQuery struct {
	Type   models.VersionType
	Offset int
	Limit  int
}

// VersionService persists append-only version chains of items and files.
type VersionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	chunks      *ChunkService
	paging      Paging
	bus         Publisher
	now         func() time.Time
}

func NewVersionService(db *sql.DB, m repomanager.RepositoryManager, chunks *ChunkService, paging Paging, bus Publisher) *VersionService {
	return &VersionService{db: db, repomanager: m, chunks: chunks, paging: paging, bus: publisherOrNop(bus), now: nowUTC}
}

func (dto *VersionCreate) validate() error {
	if err := validateUUID("versionId", dto.VersionID); err != nil {
		return err
	}
	if err := validateUUID("id", dto.ID); err != nil {
		return err
	}
	if dto.PreviousVersionID != nil {
		if err := validateUUID("previousVersionId", *dto.PreviousVersionID); err != nil {
			return err
		}
		if *dto.PreviousVersionID == dto.VersionID {
			return common.ErrRequestInvalid.WithMessage("a version cannot follow itself")
		}
	}
	if !dto.Type.Valid() {
		return common.ErrRequestInvalid.WithMessage("type must be item or file")
	}
	if !dto.Deleted && dto.ProtectedData == "" {
		return common.ErrRequestInvalid.WithMessage("protectedData must not be empty")
	}
	if len(dto.Chunks) > 0 && dto.Type != models.VersionTypeFile {
		return common.ErrRequestInvalid.WithMessage("only file versions carry chunks")
	}

	positions := make(map[int]struct{}, len(dto.Chunks))
	for _, c := range dto.Chunks {
		if err := validateHash(c.Hash); err != nil {
			return err
		}
		if c.Position < 0 {
			return common.ErrRequestInvalid.WithMessage("chunk positions must not be negative")
		}
		if c.Size < 0 {
			return common.ErrRequestInvalid.WithMessage("chunk sizes must not be negative")
		}
		if _, dup := positions[c.Position]; dup {
			return common.ErrRequestInvalid.WithMessage("duplicate chunk position %d", c.Position)
		}
		positions[c.Position] = struct{}{}
	}
	return nil
}

// Create appends a version to a chain. A replayed versionId fails with
// ResourceNotUnique so sync can treat it as already applied; a missing vault
// or parent fails with ResourceRelationshipInvalid.
func (s *VersionService) Create(ctx context.Context, user access.RequestingUser, vaultID string, dto VersionCreate) (*models.Version, error) {
	if err := dto.validate(); err != nil {
		return nil, err
	}

	var created *models.Version
	var ownerID string
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		vault, err := loadVault(ctx, s.repomanager.Vaults(tx), user, vaultID,
			perms(access.VersionsCreate), perms(access.VersionsCreateAll))
		if err != nil {
			if errors.Is(err, common.ErrResourceNotFound) {
				return common.ErrResourceRelationshipInvalid.WithMessage("vault %s does not exist", vaultID)
			}
			return err
		}
		ownerID = vault.OwnerID

		repo := s.repomanager.Versions(tx)
		if dto.PreviousVersionID != nil {
			if err := checkParent(ctx, repo, vaultID, dto); err != nil {
				return err
			}
		}

		v := &models.Version{
			VersionID:         dto.VersionID,
			PreviousVersionID: dto.PreviousVersionID,
			ID:                dto.ID,
			VaultID:           vaultID,
			Type:              dto.Type,
			ProtectedData:     dto.ProtectedData,
			CreatedBy:         user.ID,
		}
		if dto.Deleted {
			at := s.now()
			v.DeletedAt = &at
		}

		created, err = repo.Create(ctx, v)
		if err != nil {
			return err
		}

		if len(dto.Chunks) > 0 {
			chunkRepo := s.repomanager.Chunks(tx)
			for _, c := range dto.Chunks {
				if err := chunkRepo.EnsurePending(ctx, vaultID, c.Hash, c.Size); err != nil {
					return err
				}
			}
			if err := repo.LinkChunks(ctx, created.VersionID, vaultID, dto.Chunks); err != nil {
				return err
			}
			created.Chunks = dto.Chunks
		}

		return s.repomanager.Vaults(tx).Touch(ctx, vaultID)
	})
	if err != nil {
		return nil, err
	}

	evType := events.VersionCreate
	if created.Tombstone() {
		evType = events.VersionDelete
	}
	// Events are keyed by the vault owner so the owner's devices learn of
	// writes made by an admin.
	s.bus.Publish(events.Event{Type: evType, SessionID: user.SessionID, UserID: ownerID,
		VaultID: vaultID, EntityID: created.ID, VersionID: created.VersionID, At: s.now()})
	return created, nil
}

type parentReader interface {
	GetVersion(ctx context.Context, versionID string) (*models.Version, error)
}

func checkParent(ctx context.Context, repo parentReader, vaultID string, dto VersionCreate) error {
	parent, err := repo.GetVersion(ctx, *dto.PreviousVersionID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrResourceRelationshipInvalid.WithMessage("previous version %s does not exist", *dto.PreviousVersionID)
		}
		return err
	}
	if parent.ID != dto.ID || parent.VaultID != vaultID {
		return common.ErrResourceRelationshipInvalid.WithMessage("previous version %s belongs to another entity", parent.VersionID)
	}
	if parent.Type != dto.Type {
		return common.ErrResourceRelationshipInvalid.WithMessage("previous version %s has type %s", parent.VersionID, parent.Type)
	}
	if parent.Tombstone() {
		return common.ErrResourceRelationshipInvalid.WithMessage("previous version %s is deleted", parent.VersionID)
	}
	return nil
}

// Get returns the current version of entity id: the newest live leaf.
// A deleted entity is reported as not found.
func (s *VersionService) Get(ctx context.Context, user access.RequestingUser, id string) (*models.Version, error) {
	if err := validateUUID("id", id); err != nil {
		return nil, err
	}

	repo := s.repomanager.Versions(s.db)
	v, err := repo.GetCurrent(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrResourceNotFound.WithMessage("entity %s not found", id)
		}
		return nil, err
	}

	if _, err := loadVault(ctx, s.repomanager.Vaults(s.db), user, v.VaultID,
		perms(access.VersionsRetrieve), perms(access.VersionsRetrieveAll)); err != nil {
		return nil, err
	}
	if v.Tombstone() {
		return nil, common.ErrResourceNotFound.WithMessage("entity %s not found", id)
	}

	return s.withChunks(ctx, v)
}

// GetVersion returns one version by versionId, tombstones included.
func (s *VersionService) GetVersion(ctx context.Context, user access.RequestingUser, versionID string) (*models.Version, error) {
	v, err := s.readVersion(ctx, user, versionID, perms(access.VersionsRetrieve), perms(access.VersionsRetrieveAll))
	if err != nil {
		return nil, err
	}
	return s.withChunks(ctx, v)
}

func (s *VersionService) readVersion(ctx context.Context, user access.RequestingUser, versionID string,
	scoped, unscoped []access.Permission) (*models.Version, error) {

	if err := validateUUID("versionId", versionID); err != nil {
		return nil, err
	}

	v, err := s.repomanager.Versions(s.db).GetVersion(ctx, versionID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrResourceNotFound.WithMessage("version %s not found", versionID)
		}
		return nil, err
	}

	if _, err := loadVault(ctx, s.repomanager.Vaults(s.db), user, v.VaultID, scoped, unscoped); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *VersionService) withChunks(ctx context.Context, v *models.Version) (*models.Version, error) {
	if v.Type != models.VersionTypeFile {
		return v, nil
	}
	list, err := s.repomanager.Versions(s.db).ListChunks(ctx, v.VersionID)
	if err != nil {
		return nil, err
	}
	v.Chunks = list
	return v, nil
}

// Delete appends a tombstone as a child of the current version.
func (s *VersionService) Delete(ctx context.Context, user access.RequestingUser, id string) (*models.Version, error) {
	if err := validateUUID("id", id); err != nil {
		return nil, err
	}

	var tombstone *models.Version
	var ownerID string
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Versions(tx)

		current, err := repo.GetCurrent(ctx, id)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrResourceNotFound.WithMessage("entity %s not found", id)
			}
			return err
		}

		vault, err := loadVault(ctx, s.repomanager.Vaults(tx), user, current.VaultID,
			perms(access.VersionsDelete), perms(access.VersionsDeleteAll))
		if err != nil {
			return err
		}
		ownerID = vault.OwnerID
		if current.Tombstone() {
			return common.ErrResourceNotFound.WithMessage("entity %s not found", id)
		}

		at := s.now()
		tombstone, err = repo.Create(ctx, &models.Version{
			VersionID:         uuid.NewString(),
			PreviousVersionID: &current.VersionID,
			ID:                current.ID,
			VaultID:           current.VaultID,
			Type:              current.Type,
			ProtectedData:     "",
			CreatedBy:         user.ID,
			DeletedAt:         &at,
		})
		if err != nil {
			return err
		}

		return s.repomanager.Vaults(tx).Touch(ctx, current.VaultID)
	})
	if err != nil {
		return nil, err
	}

	s.bus.Publish(events.Event{Type: events.VersionDelete, SessionID: user.SessionID, UserID: ownerID,
		VaultID: tombstone.VaultID, EntityID: tombstone.ID, VersionID: tombstone.VersionID, At: s.now()})
	return tombstone, nil
}

// Query lists the current versions of a vault's live entities. Access to the
// vault is checked once, not per row.
func (s *VersionService) Query(ctx context.Context, user access.RequestingUser, vaultID string, q VersionQuery) (*models.Page[*models.Version], error) {
	if q.Type != "" && !q.Type.Valid() {
		return nil, common.ErrRequestInvalid.WithMessage("type must be item or file")
	}
	limit, err := s.paging.validate(q.Offset, q.Limit)
	if err != nil {
		return nil, err
	}

	if _, err := loadVault(ctx, s.repomanager.Vaults(s.db), user, vaultID,
		perms(access.VersionsRetrieve), perms(access.VersionsRetrieveAll)); err != nil {
		return nil, err
	}

	list, total, err := s.repomanager.Versions(s.db).Query(ctx, models.VersionFilters{
		VaultID: vaultID,
		Type:    q.Type,
		Offset:  q.Offset,
		Limit:   limit,
	})
	if err != nil {
		return nil, err
	}

	return &models.Page[*models.Version]{
		Meta:    models.PageMeta{Results: len(list), Total: total, Limit: limit, Offset: q.Offset},
		Results: list,
	}, nil
}

// CommitFile confirms every chunk of a file version against the object store
// and then marks the version committed. Missing chunks fail the commit with
// RequestInvalid naming them, so the client knows what to re-upload.
func (s *VersionService) CommitFile(ctx context.Context, user access.RequestingUser, versionID string) (*models.Version, error) {
	v, err := s.readVersion(ctx, user, versionID, perms(access.VersionsCreate), perms(access.VersionsCreateAll))
	if err != nil {
		return nil, err
	}
	if v.Type != models.VersionTypeFile {
		return nil, common.ErrRequestInvalid.WithMessage("version %s is not a file", versionID)
	}

	v, err = s.withChunks(ctx, v)
	if err != nil {
		return nil, err
	}
	if v.CommittedAt != nil {
		return v, nil
	}

	chunkRepo := s.repomanager.Chunks(s.db)
	var missing []string
	for _, c := range v.Chunks {
		existing, err := chunkRepo.Get(ctx, v.VaultID, c.Hash)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		if existing != nil && existing.IsStored {
			continue
		}

		stored, err := s.chunks.confirm(ctx, chunkRepo, user.SessionID, v.VaultID, c.Hash, c.Size)
		if err != nil {
			return nil, err
		}
		if !stored {
			missing = append(missing, c.Hash)
		}
	}
	if len(missing) > 0 {
		return nil, common.ErrRequestInvalid.WithMessage("missing chunks: %s", strings.Join(missing, ","))
	}

	at := s.now()
	if err := s.repomanager.Versions(s.db).Commit(ctx, versionID, at); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrResourceNotFound.WithMessage("version %s not found", versionID)
		}
		return nil, err
	}
	v.CommittedAt = &at
	return v, nil
}

// ListChunks returns the ordered chunk list used to reassemble a file.
func (s *VersionService) ListChunks(ctx context.Context, user access.RequestingUser, versionID string) ([]models.FileChunk, error) {
	v, err := s.readVersion(ctx, user, versionID, perms(access.VersionsRetrieve), perms(access.VersionsRetrieveAll))
	if err != nil {
		return nil, err
	}
	if v.Type != models.VersionTypeFile {
		return nil, common.ErrRequestInvalid.WithMessage("version %s is not a file", versionID)
	}
	return s.repomanager.Versions(s.db).ListChunks(ctx, versionID)
}
