package services

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrijs2005/vaultsync/internal/client/api"
	"github.com/dmitrijs2005/vaultsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/vaultsync/internal/client/store"
	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/dbx"
)

// AuthAPI is the part of the server client that authentication needs.
type AuthAPI interface {
	Register(ctx context.Context, email, displayName, password string) (*api.Registration, error)
	Verify(ctx context.Context, token string) error
	Login(ctx context.Context, email, password string) (*api.Session, error)
	Logout(ctx context.Context) error
	SetToken(token string)
}

var ErrNotLoggedIn = common.ErrAccessUnauthorized.WithMessage("Not logged in, run login first")

// AuthService talks to the auth endpoints and keeps the session token in
// the local metadata table so later invocations reuse it.
type AuthService struct {
	api   AuthAPI
	store *store.Store
}

func NewAuthService(a AuthAPI, st *store.Store) *AuthService {
	return &AuthService{api: a, store: st}
}

func (s *AuthService) Register(ctx context.Context, email, displayName, password string) (*api.Registration, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, common.ErrRequestInvalid.WithMessage("email and password are required")
	}
	return s.api.Register(ctx, email, strings.TrimSpace(displayName), password)
}

func (s *AuthService) Verify(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return common.ErrRequestInvalid.WithMessage("verification token is required")
	}
	return s.api.Verify(ctx, token)
}

// Login opens a session and persists it. Logging in as another user wipes
// the local mirror first: vaults of one account are never shown to another.
func (s *AuthService) Login(ctx context.Context, email, password string) (*api.Session, error) {
	email = strings.TrimSpace(email)
	sess, err := s.api.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	meta := s.store.Metadata(s.store.DB())
	previous, err := meta.Get(ctx, metadata.KeyEmail)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}
	switchingUser := err == nil && !strings.EqualFold(previous, email)

	err = s.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if switchingUser {
			if err := s.wipe(ctx, tx); err != nil {
				return err
			}
		}
		m := s.store.Metadata(tx)
		for k, v := range map[string]string{
			metadata.KeySessionToken: sess.Token,
			metadata.KeySessionID:    sess.SessionID,
			metadata.KeyEmail:        email,
		} {
			if err := m.Set(ctx, k, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *AuthService) wipe(ctx context.Context, tx dbx.DBTX) error {
	all, err := s.store.Vaults(tx).Query(ctx, true)
	if err != nil {
		return err
	}
	for _, v := range all {
		if err := s.store.Vaults(tx).Purge(ctx, v.ID); err != nil {
			return err
		}
	}
	return s.store.Metadata(tx).Clear(ctx)
}

// Restore loads a saved session token into the API client. It fails with
// ErrNotLoggedIn when there is none.
func (s *AuthService) Restore(ctx context.Context) (string, error) {
	meta := s.store.Metadata(s.store.DB())
	token, err := meta.Get(ctx, metadata.KeySessionToken)
	if errors.Is(err, common.ErrorNotFound) {
		return "", ErrNotLoggedIn
	}
	if err != nil {
		return "", err
	}
	s.api.SetToken(token)

	email, err := meta.Get(ctx, metadata.KeyEmail)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return "", err
	}
	return email, nil
}

// Logout ends the session. The local token is dropped even when the server
// cannot be reached or already forgot the session; the mirror is kept so
// the next login of the same user starts warm.
func (s *AuthService) Logout(ctx context.Context) error {
	if _, err := s.Restore(ctx); err != nil {
		return err
	}

	err := s.api.Logout(ctx)
	if err != nil && !errors.Is(err, api.ErrUnavailable) && !errors.Is(err, common.ErrAccessUnauthorized) {
		return err
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		m := s.store.Metadata(tx)
		if err := m.Delete(ctx, metadata.KeySessionToken); err != nil {
			return err
		}
		return m.Delete(ctx, metadata.KeySessionID)
	})
	if err != nil {
		return err
	}
	s.api.SetToken("")
	return nil
}
