package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/access"
	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/events"
	"github.com/dmitrijs2005/vaultsync/internal/server/models"
	"github.com/dmitrijs2005/vaultsync/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const maxVaultNameLength = 100

// VaultCreate is the input of VaultService.Create. ID may be chosen by the
// client so a vault created offline keeps its identity.
type VaultCreate struct {
	ID                     string  `json:"id"`
	Name                   string  `json:"name"`
	ProtectedEncryptionKey string  `json:"protectedEncryptionKey"`
	ProtectedData          *string `json:"protectedData"`
}

type VaultQuery struct {
	OwnerID string
	Offset  int
	Limit   int
}

type VaultService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	paging      Paging
	bus         Publisher
	now         func() time.Time
}

func NewVaultService(db *sql.DB, m repomanager.RepositoryManager, paging Paging, bus Publisher) *VaultService {
	return &VaultService{db: db, repomanager: m, paging: paging, bus: publisherOrNop(bus), now: nowUTC}
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" || len(name) > maxVaultNameLength {
		return common.ErrRequestInvalid.WithMessage("name must be 1 to %d characters", maxVaultNameLength)
	}
	return nil
}

func (s *VaultService) Create(ctx context.Context, user access.RequestingUser, dto VaultCreate) (*models.Vault, error) {
	if err := access.Validate(access.Rules{
		User:          user,
		TargetOwnerID: user.ID,
		UserScoped:    perms(access.VaultsCreate),
	}); err != nil {
		return nil, err
	}

	if dto.ID == "" {
		dto.ID = uuid.NewString()
	} else if err := validateUUID("id", dto.ID); err != nil {
		return nil, err
	}
	if err := validateName(dto.Name); err != nil {
		return nil, err
	}
	if dto.ProtectedEncryptionKey == "" {
		return nil, common.ErrRequestInvalid.WithMessage("protectedEncryptionKey must not be empty")
	}

	v, err := s.repomanager.Vaults(s.db).Create(ctx, &models.Vault{
		ID:                     dto.ID,
		OwnerID:                user.ID,
		Name:                   dto.Name,
		ProtectedEncryptionKey: dto.ProtectedEncryptionKey,
		ProtectedData:          dto.ProtectedData,
	})
	if err != nil {
		return nil, err
	}

	s.bus.Publish(events.Event{Type: events.VaultCreate, SessionID: user.SessionID, UserID: v.OwnerID, VaultID: v.ID, At: s.now()})
	return v, nil
}

func (s *VaultService) Get(ctx context.Context, user access.RequestingUser, id string) (*models.Vault, error) {
	return loadVault(ctx, s.repomanager.Vaults(s.db), user, id,
		perms(access.VaultsRetrieve), perms(access.VaultsRetrieveAll))
}

// Update changes name, protected data or the wrapped key. Rotating the vault
// password only rewraps the key, so content versions are untouched.
func (s *VaultService) Update(ctx context.Context, user access.RequestingUser, id string, patch models.VaultPatch) (*models.Vault, error) {
	if patch.Name == nil && patch.ProtectedData == nil && patch.ProtectedEncryptionKey == nil {
		return nil, common.ErrRequestInvalid.WithMessage("nothing to update")
	}
	if patch.Name != nil {
		if err := validateName(*patch.Name); err != nil {
			return nil, err
		}
	}
	if patch.ProtectedEncryptionKey != nil && *patch.ProtectedEncryptionKey == "" {
		return nil, common.ErrRequestInvalid.WithMessage("protectedEncryptionKey must not be empty")
	}

	repo := s.repomanager.Vaults(s.db)
	if _, err := loadVault(ctx, repo, user, id, perms(access.VaultsUpdate), perms(access.VaultsUpdateAll)); err != nil {
		return nil, err
	}

	v, err := repo.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrResourceNotFound.WithMessage("vault %s not found", id)
		}
		return nil, err
	}

	s.bus.Publish(events.Event{Type: events.VaultUpdate, SessionID: user.SessionID, UserID: v.OwnerID, VaultID: v.ID, At: s.now()})
	return v, nil
}

// Delete soft-deletes the vault. Its versions and chunks stay in place.
func (s *VaultService) Delete(ctx context.Context, user access.RequestingUser, id string) error {
	repo := s.repomanager.Vaults(s.db)
	v, err := loadVault(ctx, repo, user, id, perms(access.VaultsDelete), perms(access.VaultsDeleteAll))
	if err != nil {
		return err
	}

	if err := repo.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrResourceNotFound.WithMessage("vault %s not found", id)
		}
		return err
	}

	s.bus.Publish(events.Event{Type: events.VaultDelete, SessionID: user.SessionID, UserID: v.OwnerID, VaultID: v.ID, At: s.now()})
	return nil
}

// Query lists vaults. Without an owner filter it lists the caller's own
// vaults, whatever the role; holders of vaults:retrieve:all may name
// another owner explicitly.
func (s *VaultService) Query(ctx context.Context, user access.RequestingUser, q VaultQuery) (*models.Page[*models.Vault], error) {
	limit, err := s.paging.validate(q.Offset, q.Limit)
	if err != nil {
		return nil, err
	}

	owner := q.OwnerID
	if owner == "" {
		owner = user.ID
	}
	if err := access.Validate(access.Rules{
		User:          user,
		TargetOwnerID: owner,
		UserScoped:    perms(access.VaultsRetrieve),
		Unscoped:      perms(access.VaultsRetrieveAll),
	}); err != nil {
		return nil, err
	}

	list, total, err := s.repomanager.Vaults(s.db).Query(ctx, models.VaultFilters{OwnerID: owner, Offset: q.Offset, Limit: limit})
	if err != nil {
		return nil, err
	}

	return &models.Page[*models.Vault]{
		Meta:    models.PageMeta{Results: len(list), Total: total, Limit: limit, Offset: q.Offset},
		Results: list,
	}, nil
}
