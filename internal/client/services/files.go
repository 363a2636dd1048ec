package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/vaultsync/internal/client/chunking"
	"github.com/dmitrijs2005/vaultsync/internal/client/models"
	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/cryptox"
	"github.com/dmitrijs2005/vaultsync/internal/dbx"
	"github.com/dmitrijs2005/vaultsync/internal/events"
)

// PutFile chunks r, seals every chunk into the local blob cache and
// records a file version listing them. Nothing is uploaded here; the
// reconciler pushes the chunks before it pushes the version.
func (s *EntityService) PutFile(ctx context.Context, vaultID string, key []byte, title, name string, md []models.Metadata, r io.Reader) (*Entity, error) {
	if title == "" {
		title = name
	}

	v := &models.Version{VersionID: uuid.NewString(), ID: uuid.NewString(), VaultID: vaultID, Type: models.VersionTypeFile}
	var env models.Envelope

	err := s.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		blobs := s.store.Blobs(tx)
		seal := func(plain []byte) ([]byte, error) { return cryptox.SealChunk(key, plain) }

		size, err := chunking.Split(r, seal, func(c chunking.Chunk) error {
			if err := blobs.Put(ctx, vaultID, c.Hash, c.Sealed); err != nil {
				return err
			}
			v.Chunks = append(v.Chunks, c.FileChunk)
			return nil
		})
		if err != nil {
			return err
		}

		env, err = models.Wrap(models.EntryTypeFile, title, md, models.FileInfo{Name: name, Size: size})
		if err != nil {
			return err
		}
		if err := env.Validate(); err != nil {
			return common.ErrRequestInvalid.Wrap(err)
		}
		if v.ProtectedData, err = cryptox.Encrypt(key, env); err != nil {
			return err
		}
		v.CreatedAt = s.now()

		if err := s.store.Versions(tx).Create(ctx, v); err != nil {
			return err
		}
		return markDirty(ctx, s.store, tx, vaultID)
	})
	if err != nil {
		return nil, err
	}

	s.announce(events.VersionCreate, vaultID, v.ID, v.VersionID)
	return entity(v, env), nil
}

// GetFile writes the plaintext of file id to w. Chunks missing from the
// cache are downloaded and cached on the way.
func (s *EntityService) GetFile(ctx context.Context, vaultID, id string, key []byte, w io.Writer) (*Entity, error) {
	v, err := s.current(ctx, vaultID, id)
	if err != nil {
		return nil, err
	}
	if v.Type != models.VersionTypeFile {
		return nil, common.ErrRequestInvalid.WithMessage("%s is not a file", id)
	}
	e, err := s.open(v, key)
	if err != nil {
		return nil, err
	}

	fetch := func(hash string) ([]byte, error) { return s.chunk(ctx, vaultID, hash) }
	openChunk := func(sealed []byte) ([]byte, error) { return cryptox.OpenChunk(key, sealed) }
	if err := chunking.Reassemble(w, v.Chunks, fetch, openChunk); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *EntityService) chunk(ctx context.Context, vaultID, hash string) ([]byte, error) {
	blobs := s.store.Blobs(s.store.DB())
	sealed, err := blobs.Get(ctx, vaultID, hash)
	if err == nil {
		return sealed, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	signed, err := s.chunks.RequestDownload(ctx, vaultID, hash)
	if err != nil {
		return nil, err
	}
	if sealed, err = s.chunks.Download(ctx, signed); err != nil {
		return nil, err
	}
	if err := chunking.Verify(hash, sealed); err != nil {
		return nil, fmt.Errorf("download %s: %w", hash, err)
	}
	if err := blobs.Put(ctx, vaultID, hash, sealed); err != nil {
		return nil, err
	}
	return sealed, nil
}
