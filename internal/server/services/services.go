// Package services contains server-side business logic. Every operation
// takes the requesting user explicitly and runs the access check before it
// reads or mutates anything the user does not unconditionally own.
package services

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/access"
	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/events"
	"github.com/dmitrijs2005/vaultsync/internal/server/models"
	"github.com/dmitrijs2005/vaultsync/internal/server/repositories/vaults"
	"github.com/google/uuid"
)

// ObjectStore is the part of objectstore.Store the services use.
type ObjectStore interface {
	PresignPut(ctx context.Context, key, digest string) (string, error)
	PresignGet(ctx context.Context, key string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// Publisher receives domain events. *events.Bus satisfies it.
type Publisher interface {
	Publish(ev events.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(events.Event) {}

func publisherOrNop(p Publisher) Publisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}

var hashPattern = regexp.MustCompile(`^[0-9a-f]{1,128}$`)

func validateHash(hash string) error {
	if !hashPattern.MatchString(hash) {
		return common.ErrRequestInvalid.WithMessage("hash must be 1 to 128 lowercase hex characters")
	}
	return nil
}

func validateUUID(field, value string) error {
	if _, err := uuid.Parse(value); err != nil {
		return common.ErrRequestInvalid.WithMessage("%s must be a UUID", field)
	}
	return nil
}

// Paging bounds list endpoints. A zero limit means "use the default"; any
// larger request is clamped to Max.
type Paging struct {
	Default int
	Max     int
}

func (p Paging) limit(requested int) int {
	switch {
	case requested <= 0:
		return p.Default
	case requested > p.Max:
		return p.Max
	default:
		return requested
	}
}

func (p Paging) validate(offset, limit int) (int, error) {
	if offset < 0 || limit < 0 {
		return 0, common.ErrRequestInvalid.WithMessage("offset and limit must not be negative")
	}
	return p.limit(limit), nil
}

// loadVault fetches a live vault and checks the caller against the given
// permissions. A soft-deleted vault is reported as not found.
func loadVault(ctx context.Context, repo vaults.Repository, user access.RequestingUser, id string,
	scoped, unscoped []access.Permission) (*models.Vault, error) {

	if err := validateUUID("vaultId", id); err != nil {
		return nil, err
	}

	v, err := repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrResourceNotFound.WithMessage("vault %s not found", id)
		}
		return nil, err
	}

	if err := access.Validate(access.Rules{
		User:          user,
		TargetOwnerID: v.OwnerID,
		UserScoped:    scoped,
		Unscoped:      unscoped,
	}); err != nil {
		return nil, err
	}

	if v.DeletedAt != nil {
		return nil, common.ErrResourceNotFound.WithMessage("vault %s not found", id)
	}
	return v, nil
}

func perms(p ...access.Permission) []access.Permission { return p }

func nowUTC() time.Time { return time.Now().UTC() }
