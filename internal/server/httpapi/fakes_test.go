package httpapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/access"
	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/logging"
	"github.com/dmitrijs2005/vaultsync/internal/server/healthcheck"
	"github.com/dmitrijs2005/vaultsync/internal/server/models"
	"github.com/dmitrijs2005/vaultsync/internal/server/services"
)

const (
	testToken   = "tok-123"
	testUserID  = "11111111-1111-1111-1111-111111111111"
	testSession = "22222222-2222-2222-2222-222222222222"
	testVaultID = "33333333-3333-3333-3333-333333333333"
)

var verifiedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testUser() access.RequestingUser {
	return access.RequestingUser{ID: testUserID, SessionID: testSession, Role: access.RoleUser, VerifiedAt: &verifiedAt}
}

type fakeAuth struct {
	AuthService

	registerErr error
	loginErr    error
	verifyErr   error
	verified    string
	loggedOut   string
}

func (f *fakeAuth) Authenticate(_ context.Context, token string) (access.RequestingUser, error) {
	if token != testToken {
		return access.RequestingUser{}, common.ErrAccessUnauthorized
	}
	return testUser(), nil
}

func (f *fakeAuth) Register(_ context.Context, email, displayName, _ string) (*models.User, string, error) {
	if f.registerErr != nil {
		return nil, "", f.registerErr
	}
	return &models.User{ID: testUserID, Email: email, DisplayName: displayName}, "verify-token", nil
}

func (f *fakeAuth) Verify(_ context.Context, token string) error {
	f.verified = token
	return f.verifyErr
}

func (f *fakeAuth) Login(_ context.Context, _, _ string) (*models.Session, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &models.Session{Token: testToken, ID: testSession, UserID: testUserID, ExpiresAt: verifiedAt.Add(time.Hour)}, nil
}

func (f *fakeAuth) Logout(_ context.Context, token string) error {
	f.loggedOut = token
	return nil
}

type fakeVaults struct {
	VaultService

	created services.VaultCreate
	query   services.VaultQuery
	patch   models.VaultPatch
	deleted string
	err     error
	panics  bool
}

func (f *fakeVaults) Create(_ context.Context, u access.RequestingUser, dto services.VaultCreate) (*models.Vault, error) {
	f.created = dto
	if f.err != nil {
		return nil, f.err
	}
	return &models.Vault{ID: testVaultID, OwnerID: u.ID, Name: dto.Name, ProtectedEncryptionKey: dto.ProtectedEncryptionKey}, nil
}

func (f *fakeVaults) Get(_ context.Context, u access.RequestingUser, id string) (*models.Vault, error) {
	if f.panics {
		panic("nil map write in vault lookup")
	}
	if f.err != nil {
		return nil, f.err
	}
	return &models.Vault{ID: id, OwnerID: u.ID, Name: "home"}, nil
}

func (f *fakeVaults) Update(_ context.Context, _ access.RequestingUser, id string, patch models.VaultPatch) (*models.Vault, error) {
	f.patch = patch
	return &models.Vault{ID: id, Name: *patch.Name}, nil
}

func (f *fakeVaults) Delete(_ context.Context, _ access.RequestingUser, id string) error {
	f.deleted = id
	return f.err
}

func (f *fakeVaults) Query(_ context.Context, _ access.RequestingUser, q services.VaultQuery) (*models.Page[*models.Vault], error) {
	f.query = q
	return &models.Page[*models.Vault]{
		Meta:    models.PageMeta{Results: 1, Total: 1, Limit: 50, Offset: q.Offset},
		Results: []*models.Vault{{ID: testVaultID}},
	}, nil
}

type fakeVersions struct {
	VersionService

	vaultID string
	created services.VersionCreate
	query   services.VersionQuery
	chunks  []models.FileChunk
	err     error
}

func (f *fakeVersions) Create(_ context.Context, u access.RequestingUser, vaultID string, dto services.VersionCreate) (*models.Version, error) {
	f.vaultID = vaultID
	f.created = dto
	if f.err != nil {
		return nil, f.err
	}
	return &models.Version{VersionID: dto.VersionID, ID: dto.ID, VaultID: vaultID, Type: dto.Type, CreatedBy: u.ID}, nil
}

func (f *fakeVersions) Get(_ context.Context, _ access.RequestingUser, id string) (*models.Version, error) {
	return &models.Version{VersionID: "current", ID: id}, f.err
}

func (f *fakeVersions) GetVersion(_ context.Context, _ access.RequestingUser, versionID string) (*models.Version, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Version{VersionID: versionID}, nil
}

func (f *fakeVersions) Delete(_ context.Context, _ access.RequestingUser, id string) (*models.Version, error) {
	at := verifiedAt
	return &models.Version{VersionID: "tomb", ID: id, DeletedAt: &at}, nil
}

func (f *fakeVersions) Query(_ context.Context, _ access.RequestingUser, vaultID string, q services.VersionQuery) (*models.Page[*models.Version], error) {
	f.vaultID = vaultID
	f.query = q
	return &models.Page[*models.Version]{Results: []*models.Version{}}, nil
}

func (f *fakeVersions) CommitFile(_ context.Context, _ access.RequestingUser, versionID string) (*models.Version, error) {
	if f.err != nil {
		return nil, f.err
	}
	at := verifiedAt
	return &models.Version{VersionID: versionID, CommittedAt: &at}, nil
}

func (f *fakeVersions) ListChunks(context.Context, access.RequestingUser, string) ([]models.FileChunk, error) {
	return f.chunks, f.err
}

type fakeChunks struct {
	ChunkService

	vaultID string
	hash    string
	size    int64
	stored  []string
	err     error
}

func (f *fakeChunks) RequestUpload(_ context.Context, _ access.RequestingUser, vaultID, hash string, size int64) (string, error) {
	f.vaultID, f.hash, f.size = vaultID, hash, size
	if f.err != nil {
		return "", f.err
	}
	return "https://s3.local/put/" + hash, nil
}

func (f *fakeChunks) RequestDownload(_ context.Context, _ access.RequestingUser, vaultID, hash string) (string, error) {
	f.vaultID, f.hash = vaultID, hash
	if f.err != nil {
		return "", f.err
	}
	return "https://s3.local/get/" + hash, nil
}

func (f *fakeChunks) ListStored(context.Context, access.RequestingUser, string) ([]string, error) {
	return f.stored, f.err
}

type fakeSnapshots struct {
	SnapshotService
}

func (fakeSnapshots) Get(context.Context, access.RequestingUser, string) (*models.Snapshot, error) {
	return &models.Snapshot{
		Vault:    models.SnapshotVault{UpdatedAt: verifiedAt},
		Versions: map[string]bool{"v1": false, "v2": true},
	}, nil
}

type fakePending struct {
	userID, sessionID string
}

func (f *fakePending) Pending(userID, sessionID string) []string {
	f.userID, f.sessionID = userID, sessionID
	return []string{testVaultID}
}

type fakeUsers struct {
	patch   models.UserPatch
	deleted string
	err     error
}

func (f *fakeUsers) Get(_ context.Context, _ access.RequestingUser, id string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.User{ID: id, Email: "alice@example.com", DisplayName: "Alice", PasswordHash: "secret-hash",
		Role: access.RoleUser, VerifiedAt: &verifiedAt, CreatedAt: verifiedAt}, nil
}

func (f *fakeUsers) Update(_ context.Context, _ access.RequestingUser, id string, patch models.UserPatch) (*models.User, error) {
	f.patch = patch
	if f.err != nil {
		return nil, f.err
	}
	return &models.User{ID: id, Email: "alice@example.com", DisplayName: *patch.DisplayName, PasswordHash: "secret-hash"}, nil
}

func (f *fakeUsers) Delete(_ context.Context, _ access.RequestingUser, id string) error {
	f.deleted = id
	return f.err
}

type fakeServer struct {
	settings models.Settings
	user     access.RequestingUser
	err      error
}

func (f *fakeServer) Info(context.Context) (*models.ServerInfo, error) {
	return &models.ServerInfo{Version: "v1", RegistrationEnabled: f.settings.RegistrationEnabled,
		Limits: models.ServerLimits{MaxPageLimit: 500, PresignExpirySeconds: 900}}, nil
}

func (f *fakeServer) Settings(_ context.Context, u access.RequestingUser) (*models.Settings, error) {
	f.user = u
	if f.err != nil {
		return nil, f.err
	}
	s := f.settings
	return &s, nil
}

func (f *fakeServer) UpdateSettings(_ context.Context, u access.RequestingUser, p models.SettingsPatch) (*models.Settings, error) {
	f.user = u
	if f.err != nil {
		return nil, f.err
	}
	f.settings.RegistrationEnabled = *p.RegistrationEnabled
	s := f.settings
	return &s, nil
}

type fakeHealth struct {
	report healthcheck.Report
}

func (f *fakeHealth) Check(context.Context) healthcheck.Report { return f.report }

type fixture struct {
	auth     *fakeAuth
	vaults   *fakeVaults
	versions *fakeVersions
	chunks   *fakeChunks
	pending  *fakePending
	users    *fakeUsers
	server   *fakeServer
	health   *fakeHealth
	router   http.Handler
}

func newFixture() *fixture {
	f := &fixture{
		auth:     &fakeAuth{},
		vaults:   &fakeVaults{},
		versions: &fakeVersions{},
		chunks:   &fakeChunks{},
		pending:  &fakePending{},
		users:    &fakeUsers{},
		server:   &fakeServer{settings: models.Settings{RegistrationEnabled: true, CreatedAt: verifiedAt}},
		health:   &fakeHealth{report: healthcheck.Report{Status: healthcheck.StatusOK}},
	}
	f.router = NewRouter(Services{
		Auth:      f.auth,
		Vaults:    f.vaults,
		Versions:  f.versions,
		Chunks:    f.chunks,
		Snapshots: fakeSnapshots{},
		Pending:   f.pending,
		Users:     f.users,
		Server:    f.server,
		Health:    f.health,
	}, logging.Nop())
	return f
}

// do sends an authenticated request; pass an empty token to omit the header.
func (f *fixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}
