package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/vaultsync/internal/client/models"
	"github.com/dmitrijs2005/vaultsync/internal/client/store"
	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/cryptox"
	"github.com/dmitrijs2005/vaultsync/internal/dbx"
	"github.com/dmitrijs2005/vaultsync/internal/events"
)

// ChunkAPI fetches chunks the local cache does not hold.
type ChunkAPI interface {
	RequestDownload(ctx context.Context, vaultID, hash string) (string, error)
	Download(ctx context.Context, signed string) ([]byte, error)
}

// Entity is the decrypted current version of an item or a file.
type Entity struct {
	ID        string
	VersionID string
	Type      models.VersionType
	CreatedAt time.Time
	Envelope  models.Envelope
}

// EntityService reads and writes items and files of unlocked vaults. Every
// write is a new version appended to the group's chain.
type EntityService struct {
	store  *store.Store
	chunks ChunkAPI
	announcer
}

func NewEntityService(st *store.Store, chunks ChunkAPI, p Publisher, origin string) *EntityService {
	return &EntityService{store: st, chunks: chunks, announcer: newAnnouncer(p, origin)}
}

func (s *EntityService) AddItem(ctx context.Context, vaultID string, key []byte, env models.Envelope) (*Entity, error) {
	v := &models.Version{VersionID: uuid.NewString(), ID: uuid.NewString(), VaultID: vaultID, Type: models.VersionTypeItem}
	return s.write(ctx, v, key, env)
}

// UpdateItem appends a version after the group's current one.
func (s *EntityService) UpdateItem(ctx context.Context, vaultID, id string, key []byte, env models.Envelope) (*Entity, error) {
	current, err := s.current(ctx, vaultID, id)
	if err != nil {
		return nil, err
	}
	if current.Type != models.VersionTypeItem {
		return nil, common.ErrRequestInvalid.WithMessage("%s is a file, upload a new one instead", id)
	}
	v := &models.Version{
		VersionID:         uuid.NewString(),
		PreviousVersionID: &current.VersionID,
		ID:                id,
		VaultID:           vaultID,
		Type:              models.VersionTypeItem,
	}
	return s.write(ctx, v, key, env)
}

func (s *EntityService) write(ctx context.Context, v *models.Version, key []byte, env models.Envelope) (*Entity, error) {
	if err := env.Validate(); err != nil {
		return nil, common.ErrRequestInvalid.Wrap(err)
	}
	sealed, err := cryptox.Encrypt(key, env)
	if err != nil {
		return nil, err
	}
	v.ProtectedData = sealed
	v.CreatedAt = s.now()

	err = s.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.store.Versions(tx).Create(ctx, v); err != nil {
			return err
		}
		return markDirty(ctx, s.store, tx, v.VaultID)
	})
	if err != nil {
		return nil, err
	}

	s.announce(events.VersionCreate, v.VaultID, v.ID, v.VersionID)
	return entity(v, env), nil
}

func (s *EntityService) Get(ctx context.Context, vaultID, id string, key []byte) (*Entity, error) {
	v, err := s.current(ctx, vaultID, id)
	if err != nil {
		return nil, err
	}
	return s.open(v, key)
}

// List decrypts the current version of every live group of the vault,
// optionally only items or only files.
func (s *EntityService) List(ctx context.Context, vaultID string, key []byte, typ models.VersionType) ([]*Entity, error) {
	list, err := s.store.Versions(s.store.DB()).Query(ctx, vaultID, typ)
	if err != nil {
		return nil, err
	}
	out := make([]*Entity, 0, len(list))
	for _, v := range list {
		e, err := s.open(v, key)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Delete appends a tombstone to the group.
func (s *EntityService) Delete(ctx context.Context, vaultID, id string) error {
	current, err := s.current(ctx, vaultID, id)
	if err != nil {
		return err
	}

	at := s.now()
	ts := &models.Version{
		VersionID:         uuid.NewString(),
		PreviousVersionID: &current.VersionID,
		ID:                id,
		VaultID:           vaultID,
		Type:              current.Type,
		CreatedAt:         at,
		DeletedAt:         &at,
	}
	err = s.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.store.Versions(tx).Create(ctx, ts); err != nil {
			return err
		}
		return markDirty(ctx, s.store, tx, vaultID)
	})
	if err != nil {
		return err
	}

	s.announce(events.VersionDelete, vaultID, id, ts.VersionID)
	return nil
}

func (s *EntityService) current(ctx context.Context, vaultID, id string) (*models.Version, error) {
	v, err := s.store.Versions(s.store.DB()).Current(ctx, id)
	if errors.Is(err, common.ErrorNotFound) || (err == nil && (v.VaultID != vaultID || v.Tombstone())) {
		return nil, common.ErrResourceNotFound.WithMessage("entry %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *EntityService) open(v *models.Version, key []byte) (*Entity, error) {
	var env models.Envelope
	if err := cryptox.Decrypt(key, v.ProtectedData, &env); err != nil {
		return nil, err
	}
	return entity(v, env), nil
}

func entity(v *models.Version, env models.Envelope) *Entity {
	return &Entity{ID: v.ID, VersionID: v.VersionID, Type: v.Type, CreatedAt: v.CreatedAt, Envelope: env}
}
