package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/vaultsync/internal/client/models"
	"github.com/dmitrijs2005/vaultsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/vaultsync/internal/client/store"
	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/cryptox"
	"github.com/dmitrijs2005/vaultsync/internal/dbx"
	"github.com/dmitrijs2005/vaultsync/internal/events"
)

// VaultService manages vaults in the local mirror. Each vault has its own
// password; the vault key never leaves the process unwrapped.
type VaultService struct {
	store *store.Store
	announcer
}

func NewVaultService(st *store.Store, p Publisher, origin string) *VaultService {
	return &VaultService{store: st, announcer: newAnnouncer(p, origin)}
}

func (s *VaultService) Create(ctx context.Context, name, password string) (*models.Vault, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, common.ErrRequestInvalid.WithMessage("vault name is required")
	}
	if password == "" {
		return nil, common.ErrRequestInvalid.WithMessage("vault password is required")
	}

	key, pek, err := cryptox.CreateProtectedEncryptionKey(password)
	if err != nil {
		return nil, err
	}
	common.WipeByteArray(key)

	at := s.now()
	v := &models.Vault{ID: uuid.NewString(), Name: name, ProtectedEncryptionKey: pek, CreatedAt: at, UpdatedAt: at}
	err = s.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.store.Vaults(tx).Upsert(ctx, v); err != nil {
			return err
		}
		return markDirty(ctx, s.store, tx, v.ID)
	})
	if err != nil {
		return nil, err
	}

	s.announce(events.VaultCreate, v.ID, "", "")
	return v, nil
}

func (s *VaultService) List(ctx context.Context) ([]*models.Vault, error) {
	return s.store.Vaults(s.store.DB()).Query(ctx, false)
}

// Resolve finds a live vault by id, or else by name. A name shared by
// several vaults is rejected.
func (s *VaultService) Resolve(ctx context.Context, ref string) (*models.Vault, error) {
	ref = strings.TrimSpace(ref)
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	var byName []*models.Vault
	for _, v := range all {
		if v.ID == ref {
			return v, nil
		}
		if v.Name == ref {
			byName = append(byName, v)
		}
	}
	switch len(byName) {
	case 0:
		return nil, common.ErrResourceNotFound.WithMessage("vault %q not found", ref)
	case 1:
		return byName[0], nil
	default:
		return nil, common.ErrRequestInvalid.WithMessage("vault name %q is ambiguous, use its id", ref)
	}
}

// Unlock returns the vault and its raw key. The caller wipes the key.
func (s *VaultService) Unlock(ctx context.Context, ref, password string) (*models.Vault, []byte, error) {
	v, err := s.Resolve(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	key, err := cryptox.DecryptProtectedEncryptionKey(v.ProtectedEncryptionKey, password)
	if err != nil {
		return nil, nil, err
	}
	return v, key, nil
}

// RotatePassword re-wraps the vault key under a new password. Content is
// untouched since the key itself stays the same.
func (s *VaultService) RotatePassword(ctx context.Context, ref, oldPassword, newPassword string) error {
	if newPassword == "" {
		return common.ErrRequestInvalid.WithMessage("new password is required")
	}
	v, err := s.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	key, pek, err := cryptox.UpdateProtectedEncryptionKey(v.ProtectedEncryptionKey, oldPassword, newPassword)
	if err != nil {
		return err
	}
	common.WipeByteArray(key)

	v.ProtectedEncryptionKey = pek
	return s.patch(ctx, v)
}

func (s *VaultService) Rename(ctx context.Context, ref, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return common.ErrRequestInvalid.WithMessage("vault name is required")
	}
	v, err := s.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	v.Name = name
	return s.patch(ctx, v)
}

// patch stores v locally and queues its fields for the next sync.
func (s *VaultService) patch(ctx context.Context, v *models.Vault) error {
	v.UpdatedAt = s.now()
	err := s.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.store.Vaults(tx).Upsert(ctx, v); err != nil {
			return err
		}
		if err := s.store.Metadata(tx).Set(ctx, metadata.VaultPatchKey(v.ID), "1"); err != nil {
			return err
		}
		return markDirty(ctx, s.store, tx, v.ID)
	})
	if err != nil {
		return err
	}
	s.announce(events.VaultUpdate, v.ID, "", "")
	return nil
}

// Delete marks the vault deleted. The next sync deletes it on the server
// and then drops it from the mirror.
func (s *VaultService) Delete(ctx context.Context, ref string) error {
	v, err := s.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	err = s.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.store.Vaults(tx).Delete(ctx, v.ID, s.now()); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrResourceNotFound.WithMessage("vault %q not found", ref)
			}
			return err
		}
		return markDirty(ctx, s.store, tx, v.ID)
	})
	if err != nil {
		return err
	}
	s.announce(events.VaultDelete, v.ID, "", "")
	return nil
}
