package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/vaultsync/internal/access"
	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/events"
	"github.com/dmitrijs2005/vaultsync/internal/server/auth"
	"github.com/dmitrijs2005/vaultsync/internal/server/config"
	"github.com/dmitrijs2005/vaultsync/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthService(t *testing.T) (*AuthService, *memDB, *recordingBus) {
	t.Helper()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mem := newMemDB()
	bus := &recordingBus{}
	cfg := &config.Config{
		SecretKey:                         "k",
		SessionValidityDuration:           time.Hour,
		VerificationTokenValidityDuration: time.Hour,
	}
	return NewAuthService(db, &fakeRepoManager{m: mem}, cfg, bus), mem, bus
}

func TestRegisterVerifyLogin(t *testing.T) {
	s, mem, bus := newAuthService(t)
	ctx := context.Background()

	u, token, err := s.Register(ctx, " Alice@Example.com ", "Alice", "correct-password-1234")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, access.RoleUser, u.Role)
	assert.NotEqual(t, "correct-password-1234", u.PasswordHash)

	session, err := s.Login(ctx, "alice@example.com", "correct-password-1234")
	require.NoError(t, err)
	assert.Len(t, session.Token, 64)

	ru, err := s.Authenticate(ctx, session.Token)
	require.NoError(t, err)
	assert.False(t, ru.Verified())
	assert.Equal(t, session.ID, ru.SessionID)

	require.NoError(t, s.Verify(ctx, token))
	require.NoError(t, s.Verify(ctx, token))
	assert.NotNil(t, mem.users[u.ID].VerifiedAt)

	ru, err = s.Authenticate(ctx, session.Token)
	require.NoError(t, err)
	assert.True(t, ru.Verified())

	assert.Equal(t, []events.Type{events.UserCreate, events.AuthLogin, events.UserVerify, events.UserVerify}, bus.types())
}

func TestRegister_Validation(t *testing.T) {
	s, _, _ := newAuthService(t)
	ctx := context.Background()

	_, _, err := s.Register(ctx, "not-an-email", "x", "correct-password-1234")
	assert.ErrorIs(t, err, common.ErrRequestInvalid)

	_, _, err = s.Register(ctx, "bob@example.com", "x", "short")
	assert.ErrorIs(t, err, common.ErrRequestInvalid)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	s, _, _ := newAuthService(t)
	ctx := context.Background()

	_, _, err := s.Register(ctx, "bob@example.com", "Bob", "correct-password-1234")
	require.NoError(t, err)

	_, _, err = s.Register(ctx, "BOB@example.com", "Bob", "correct-password-1234")
	assert.ErrorIs(t, err, common.ErrResourceNotUnique)
}

type staticGate struct {
	open bool
	err  error
}

func (g staticGate) RegistrationEnabled(context.Context) (bool, error) { return g.open, g.err }

func TestRegister_Gate(t *testing.T) {
	s, mem, bus := newAuthService(t)
	ctx := context.Background()

	s.WithRegistrationGate(staticGate{open: false})
	_, _, err := s.Register(ctx, "frank@example.com", "Frank", "correct-password-1234")
	assert.ErrorIs(t, err, common.ErrAccessForbidden)
	assert.Empty(t, mem.users)
	assert.Empty(t, bus.events)

	s.WithRegistrationGate(staticGate{err: common.ErrSystem})
	_, _, err = s.Register(ctx, "frank@example.com", "Frank", "correct-password-1234")
	assert.ErrorIs(t, err, common.ErrSystem)

	s.WithRegistrationGate(staticGate{open: true})
	_, _, err = s.Register(ctx, "frank@example.com", "Frank", "correct-password-1234")
	require.NoError(t, err)
}

func TestRegister_GateFollowsServerSettings(t *testing.T) {
	s, mem, _ := newAuthService(t)
	ctx := context.Background()
	server := NewServerService(s.db, &fakeRepoManager{m: mem}, &config.Config{RegistrationEnabled: true})
	s.WithRegistrationGate(server)

	_, _, err := s.Register(ctx, "gina@example.com", "Gina", "correct-password-1234")
	require.NoError(t, err)

	_, err = server.UpdateSettings(ctx, verifiedUser(access.RoleAdmin), models.SettingsPatch{RegistrationEnabled: ptr(false)})
	require.NoError(t, err)

	_, _, err = s.Register(ctx, "hank@example.com", "Hank", "correct-password-1234")
	assert.ErrorIs(t, err, common.ErrAccessForbidden)
}

func TestLogin_Failures(t *testing.T) {
	s, _, _ := newAuthService(t)
	ctx := context.Background()

	_, _, err := s.Register(ctx, "carol@example.com", "Carol", "correct-password-1234")
	require.NoError(t, err)

	_, err = s.Login(ctx, "carol@example.com", "wrong-password")
	assert.ErrorIs(t, err, common.ErrAccessUnauthorized)

	_, err = s.Login(ctx, "nobody@example.com", "correct-password-1234")
	assert.ErrorIs(t, err, common.ErrAccessUnauthorized)
}

func TestVerify_BadToken(t *testing.T) {
	s, _, _ := newAuthService(t)

	other, err := auth.GenerateActionToken("u", auth.PurposeVerifyEmail, []byte("other-secret"), time.Hour)
	require.NoError(t, err)

	assert.ErrorIs(t, s.Verify(context.Background(), other), common.ErrAccessUnauthorized)
}

func TestAuthenticate_UnknownAndExpired(t *testing.T) {
	s, mem, bus := newAuthService(t)
	ctx := context.Background()

	_, err := s.Authenticate(ctx, "")
	assert.ErrorIs(t, err, common.ErrAccessUnauthorized)

	_, err = s.Authenticate(ctx, "deadbeef")
	assert.ErrorIs(t, err, common.ErrAccessUnauthorized)

	_, _, err = s.Register(ctx, "dave@example.com", "Dave", "correct-password-1234")
	require.NoError(t, err)
	session, err := s.Login(ctx, "dave@example.com", "correct-password-1234")
	require.NoError(t, err)

	s.now = func() time.Time { return session.ExpiresAt.Add(time.Second) }

	_, err = s.Authenticate(ctx, session.Token)
	assert.ErrorIs(t, err, common.ErrAccessUnauthorized)
	assert.NotContains(t, mem.sessions, session.Token)

	last := bus.events[len(bus.events)-1]
	assert.Equal(t, events.AuthLogout, last.Type)
	assert.Equal(t, session.ID, last.SessionID)
}

func TestLogout(t *testing.T) {
	s, mem, bus := newAuthService(t)
	ctx := context.Background()

	_, _, err := s.Register(ctx, "erin@example.com", "Erin", "correct-password-1234")
	require.NoError(t, err)
	session, err := s.Login(ctx, "erin@example.com", "correct-password-1234")
	require.NoError(t, err)

	require.NoError(t, s.Logout(ctx, session.Token))
	assert.Empty(t, mem.sessions)
	assert.Contains(t, bus.types(), events.AuthLogout)

	assert.ErrorIs(t, s.Logout(ctx, session.Token), common.ErrAccessUnauthorized)
}

func TestSweepExpiredSessions(t *testing.T) {
	s, _, bus := newAuthService(t)
	ctx := context.Background()

	_, _, err := s.Register(ctx, "frank@example.com", "Frank", "correct-password-1234")
	require.NoError(t, err)
	first, err := s.Login(ctx, "frank@example.com", "correct-password-1234")
	require.NoError(t, err)
	second, err := s.Login(ctx, "frank@example.com", "correct-password-1234")
	require.NoError(t, err)

	n, err := s.SweepExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	n, err = s.SweepExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var swept []string
	for _, ev := range bus.events {
		if ev.Type == events.AuthLogout {
			swept = append(swept, ev.SessionID)
		}
	}
	assert.ElementsMatch(t, []string{first.ID, second.ID}, swept)
}
