package services

import (
	"context"
	"database/sql"
	"errors"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/access"
	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/cryptox"
	"github.com/dmitrijs2005/vaultsync/internal/events"
	"github.com/dmitrijs2005/vaultsync/internal/server/auth"
	"github.com/dmitrijs2005/vaultsync/internal/server/config"
	"github.com/dmitrijs2005/vaultsync/internal/server/models"
	"github.com/dmitrijs2005/vaultsync/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const minPasswordLength = 8

var errInvalidCredentials = common.ErrAccessUnauthorized.WithMessage("Invalid email or password")

// dummyHash is verified against when the email is unknown, so a failed
// login costs the same whether or not the account exists.
var dummyHash = sync.OnceValue(func() string {
	return cryptox.HashPassword("vaultsync-login-timing")
})

var errRegistrationDisabled = common.ErrAccessForbidden.WithMessage("User registration is currently disabled")

// RegistrationGate reports whether new accounts may be created.
// *ServerService satisfies it.
type RegistrationGate interface {
	RegistrationEnabled(ctx context.Context) (bool, error)
}

// AuthService handles registration, email verification and session
// lifecycle.
type AuthService struct {
	db                   *sql.DB
	repomanager          repomanager.RepositoryManager
	secret               []byte
	sessionValidity      time.Duration
	verificationValidity time.Duration
	bus                  Publisher
	registration         RegistrationGate
	now                  func() time.Time
}

func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, bus Publisher) *AuthService {
	return &AuthService{
		db:                   db,
		repomanager:          m,
		secret:               []byte(cfg.SecretKey),
		sessionValidity:      cfg.SessionValidityDuration,
		verificationValidity: cfg.VerificationTokenValidityDuration,
		bus:                  publisherOrNop(bus),
		now:                  nowUTC,
	}
}

// WithRegistrationGate makes Register consult g. Without a gate
// registration is always open.
func (s *AuthService) WithRegistrationGate(g RegistrationGate) *AuthService {
	s.registration = g
	return s
}

// Register creates an unverified user and returns it with a verification
// token. Delivering the token is the caller's concern.
func (s *AuthService) Register(ctx context.Context, email, displayName, password string) (*models.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, "", common.ErrRequestInvalid.WithMessage("email is not valid")
	}
	if len(password) < minPasswordLength {
		return nil, "", common.ErrRequestInvalid.WithMessage("password must be at least %d characters", minPasswordLength)
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = email
	}

	if s.registration != nil {
		open, err := s.registration.RegistrationEnabled(ctx)
		if err != nil {
			return nil, "", err
		}
		if !open {
			return nil, "", errRegistrationDisabled
		}
	}

	u, err := s.repomanager.Users(s.db).Create(ctx, &models.User{
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: cryptox.HashPassword(password),
		Role:         access.RoleUser,
	})
	if err != nil {
		if errors.Is(err, common.ErrResourceNotUnique) {
			return nil, "", common.ErrResourceNotUnique.WithMessage("email is already registered")
		}
		return nil, "", err
	}

	token, err := auth.GenerateActionToken(u.ID, auth.PurposeVerifyEmail, s.secret, s.verificationValidity)
	if err != nil {
		return nil, "", err
	}

	s.bus.Publish(events.Event{Type: events.UserCreate, UserID: u.ID, At: s.now()})
	return u, token, nil
}

// Verify marks the account named by a verification token as verified.
// Verifying twice keeps the first timestamp.
func (s *AuthService) Verify(ctx context.Context, token string) error {
	userID, err := auth.ParseActionToken(token, auth.PurposeVerifyEmail, s.secret)
	if err != nil {
		return err
	}

	if err := s.repomanager.Users(s.db).MarkVerified(ctx, userID, s.now()); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrResourceNotFound.WithMessage("user not found")
		}
		return err
	}

	s.bus.Publish(events.Event{Type: events.UserVerify, UserID: userID, At: s.now()})
	return nil
}

// Login checks the password and opens a new session.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	u, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			cryptox.VerifyPassword(dummyHash(), password)
			return nil, errInvalidCredentials
		}
		return nil, err
	}
	if !cryptox.VerifyPassword(u.PasswordHash, password) {
		return nil, errInvalidCredentials
	}

	token, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, common.ErrSystem.Wrap(err)
	}

	now := s.now()
	session := &models.Session{
		Token:     token,
		ID:        uuid.NewString(),
		UserID:    u.ID,
		ExpiresAt: now.Add(s.sessionValidity),
	}
	if err := s.repomanager.Sessions(s.db).Create(ctx, session); err != nil {
		return nil, err
	}

	s.bus.Publish(events.Event{Type: events.AuthLogin, UserID: u.ID, SessionID: session.ID, At: now})
	return session, nil
}

// Logout destroys the session behind token.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	repo := s.repomanager.Sessions(s.db)

	session, err := repo.Find(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrAccessUnauthorized
		}
		return err
	}
	if err := repo.Delete(ctx, token); err != nil {
		return err
	}

	s.bus.Publish(events.Event{Type: events.AuthLogout, UserID: session.UserID, SessionID: session.ID, At: s.now()})
	return nil
}

// Authenticate resolves a bearer token to the requesting user. Expired
// sessions are deleted on sight.
func (s *AuthService) Authenticate(ctx context.Context, token string) (access.RequestingUser, error) {
	if token == "" {
		return access.RequestingUser{}, common.ErrAccessUnauthorized
	}

	repo := s.repomanager.Sessions(s.db)
	session, err := repo.Find(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return access.RequestingUser{}, common.ErrAccessUnauthorized
		}
		return access.RequestingUser{}, err
	}

	if session.Expired(s.now()) {
		if err := repo.Delete(ctx, token); err != nil {
			return access.RequestingUser{}, err
		}
		s.bus.Publish(events.Event{Type: events.AuthLogout, UserID: session.UserID, SessionID: session.ID, At: s.now()})
		return access.RequestingUser{}, common.ErrAccessUnauthorized.WithMessage("The session has expired")
	}

	u, err := s.repomanager.Users(s.db).GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return access.RequestingUser{}, common.ErrAccessUnauthorized
		}
		return access.RequestingUser{}, err
	}

	return access.RequestingUser{
		ID:         u.ID,
		SessionID:  session.ID,
		Role:       u.Role,
		VerifiedAt: u.VerifiedAt,
	}, nil
}

// SweepExpiredSessions deletes every session that expired before now and
// announces each one as a logout, so per-session state elsewhere is dropped.
func (s *AuthService) SweepExpiredSessions(ctx context.Context) (int64, error) {
	now := s.now()
	removed, err := s.repomanager.Sessions(s.db).DeleteExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	for _, session := range removed {
		s.bus.Publish(events.Event{Type: events.AuthLogout, UserID: session.UserID, SessionID: session.ID, At: now})
	}
	return int64(len(removed)), nil
}
