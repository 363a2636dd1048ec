package services

import (
	"context"
	"database/sql"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/access"
	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/events"
	"github.com/dmitrijs2005/vaultsync/internal/server/models"
	"github.com/dmitrijs2005/vaultsync/internal/server/repositories/repomanager"
)

const maxDisplayNameLength = 100

// UserService reads and edits accounts. A user manages their own account;
// admins may manage any.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	bus         Publisher
	now         func() time.Time
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, bus Publisher) *UserService {
	return &UserService{db: db, repomanager: m, bus: publisherOrNop(bus), now: nowUTC}
}

func userNotFound(id string) error {
	return common.ErrResourceNotFound.WithMessage("user %s not found", id)
}

func (s *UserService) authorize(user access.RequestingUser, id string, scoped, unscoped access.Permission) error {
	if err := validateUUID("userId", id); err != nil {
		return err
	}
	return access.Validate(access.Rules{
		User:          user,
		TargetOwnerID: id,
		UserScoped:    perms(scoped),
		Unscoped:      perms(unscoped),
	})
}

func (s *UserService) Get(ctx context.Context, user access.RequestingUser, id string) (*models.User, error) {
	if err := s.authorize(user, id, access.UsersRetrieve, access.UsersRetrieveAll); err != nil {
		return nil, err
	}

	u, err := s.repomanager.Users(s.db).GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, userNotFound(id)
		}
		return nil, err
	}
	return u, nil
}

// Update changes the email or display name. Emails are normalised the same
// way registration does.
func (s *UserService) Update(ctx context.Context, user access.RequestingUser, id string, patch models.UserPatch) (*models.User, error) {
	if patch.Email == nil && patch.DisplayName == nil {
		return nil, common.ErrRequestInvalid.WithMessage("nothing to update")
	}
	if patch.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*patch.Email))
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, common.ErrRequestInvalid.WithMessage("email is not valid")
		}
		patch.Email = &email
	}
	if patch.DisplayName != nil {
		name := strings.TrimSpace(*patch.DisplayName)
		if name == "" || len(name) > maxDisplayNameLength {
			return nil, common.ErrRequestInvalid.WithMessage("displayName must be 1 to %d characters", maxDisplayNameLength)
		}
		patch.DisplayName = &name
	}

	if err := s.authorize(user, id, access.UsersUpdate, access.UsersUpdateAll); err != nil {
		return nil, err
	}

	u, err := s.repomanager.Users(s.db).Update(ctx, id, patch)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrorNotFound):
			return nil, userNotFound(id)
		case errors.Is(err, common.ErrResourceNotUnique):
			return nil, common.ErrResourceNotUnique.WithMessage("email is already registered")
		}
		return nil, err
	}

	s.bus.Publish(events.Event{Type: events.UserUpdate, SessionID: user.SessionID, UserID: u.ID, At: s.now()})
	return u, nil
}

// Delete removes the account together with its sessions and vaults.
// TODO: remove the bucket objects of the deleted vaults' chunks; the cascade
// only drops their rows, so the chunk collector never sees them.
func (s *UserService) Delete(ctx context.Context, user access.RequestingUser, id string) error {
	if err := s.authorize(user, id, access.UsersDelete, access.UsersDeleteAll); err != nil {
		return err
	}

	if err := s.repomanager.Users(s.db).Delete(ctx, id); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return userNotFound(id)
		}
		return err
	}

	s.bus.Publish(events.Event{Type: events.UserDelete, SessionID: user.SessionID, UserID: id, At: s.now()})
	return nil
}
