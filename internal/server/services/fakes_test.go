package services

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/vaultsync/internal/access"
	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/dbx"
	"github.com/dmitrijs2005/vaultsync/internal/events"
	"github.com/dmitrijs2005/vaultsync/internal/server/models"
	"github.com/dmitrijs2005/vaultsync/internal/server/repositories/chunks"
	"github.com/dmitrijs2005/vaultsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/vaultsync/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/vaultsync/internal/server/repositories/settings"
	"github.com/dmitrijs2005/vaultsync/internal/server/repositories/users"
	"github.com/dmitrijs2005/vaultsync/internal/server/repositories/vaults"
	"github.com/dmitrijs2005/vaultsync/internal/server/repositories/versions"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var errDuplicate = common.ErrResourceNotUnique.Wrap(errors.New("duplicate key"))

// memDB is an in-memory stand-in for the Postgres repositories.
type memDB struct {
	mu       sync.Mutex
	clock    time.Time
	users    map[string]*models.User
	sessions map[string]*models.Session
	vaults   map[string]*models.Vault
	versions map[string]*models.Version
	chunks   map[string]*models.Chunk
	links    map[string][]models.FileChunk
	settings []models.Settings
}

func newMemDB() *memDB {
	return &memDB{
		clock:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		users:    map[string]*models.User{},
		sessions: map[string]*models.Session{},
		vaults:   map[string]*models.Vault{},
		versions: map[string]*models.Version{},
		chunks:   map[string]*models.Chunk{},
		links:    map[string][]models.FileChunk{},
	}
}

func (m *memDB) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func chunkID(vaultID, hash string) string { return vaultID + "/" + hash }

type memUsers struct {
	users.Repository
	m *memDB
}

func (r *memUsers) Create(ctx context.Context, u *models.User) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.users {
		if existing.Email == u.Email {
			return nil, errDuplicate
		}
	}
	c := *u
	c.ID = uuid.NewString()
	c.CreatedAt = r.m.tick()
	r.m.users[c.ID] = &c
	return &c, nil
}

func (r *memUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, u := range r.m.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *u
	return &c, nil
}

func (r *memUsers) MarkVerified(ctx context.Context, id string, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	if u.VerifiedAt == nil {
		u.VerifiedAt = &at
	}
	return nil
}

func (r *memUsers) Update(ctx context.Context, id string, p models.UserPatch) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if p.Email != nil {
		for _, other := range r.m.users {
			if other.ID != id && other.Email == *p.Email {
				return nil, errDuplicate
			}
		}
		u.Email = *p.Email
	}
	if p.DisplayName != nil {
		u.DisplayName = *p.DisplayName
	}
	c := *u
	return &c, nil
}

// Delete cascades to sessions and vaults like the foreign keys do.
func (r *memUsers) Delete(ctx context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.users[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.m.users, id)
	for token, s := range r.m.sessions {
		if s.UserID == id {
			delete(r.m.sessions, token)
		}
	}
	for vid, v := range r.m.vaults {
		if v.OwnerID == id {
			delete(r.m.vaults, vid)
		}
	}
	return nil
}

type memSettings struct {
	settings.Repository
	m *memDB
}

func (r *memSettings) Latest(ctx context.Context) (*models.Settings, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if len(r.m.settings) == 0 {
		return nil, common.ErrorNotFound
	}
	c := r.m.settings[len(r.m.settings)-1]
	return &c, nil
}

func (r *memSettings) Save(ctx context.Context, s *models.Settings) (*models.Settings, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c := *s
	c.CreatedAt = r.m.tick()
	r.m.settings = append(r.m.settings, c)
	return &c, nil
}

type memSessions struct {
	sessions.Repository
	m *memDB
}

func (r *memSessions) Create(ctx context.Context, s *models.Session) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.sessions[s.Token]; ok {
		return errDuplicate
	}
	s.CreatedAt = r.m.tick()
	c := *s
	r.m.sessions[s.Token] = &c
	return nil
}

func (r *memSessions) Find(ctx context.Context, token string) (*models.Session, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.sessions[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *s
	return &c, nil
}

func (r *memSessions) Delete(ctx context.Context, token string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.sessions, token)
	return nil
}

func (r *memSessions) DeleteExpired(ctx context.Context, now time.Time) ([]models.Session, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var removed []models.Session
	for token, s := range r.m.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(r.m.sessions, token)
			removed = append(removed, *s)
		}
	}
	return removed, nil
}

type memVaults struct {
	vaults.Repository
	m *memDB
}

func (r *memVaults) Create(ctx context.Context, v *models.Vault) (*models.Vault, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.vaults[v.ID]; ok {
		return nil, errDuplicate
	}
	c := *v
	c.CreatedAt = r.m.tick()
	c.UpdatedAt = c.CreatedAt
	r.m.vaults[c.ID] = &c
	out := c
	return &out, nil
}

func (r *memVaults) Get(ctx context.Context, id string) (*models.Vault, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	v, ok := r.m.vaults[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *v
	return &c, nil
}

func (r *memVaults) Update(ctx context.Context, id string, p models.VaultPatch) (*models.Vault, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	v, ok := r.m.vaults[id]
	if !ok || v.DeletedAt != nil {
		return nil, common.ErrorNotFound
	}
	if p.Name != nil {
		v.Name = *p.Name
	}
	if p.ProtectedEncryptionKey != nil {
		v.ProtectedEncryptionKey = *p.ProtectedEncryptionKey
	}
	if p.ProtectedData != nil {
		v.ProtectedData = p.ProtectedData
	}
	v.UpdatedAt = r.m.tick()
	c := *v
	return &c, nil
}

func (r *memVaults) SoftDelete(ctx context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	v, ok := r.m.vaults[id]
	if !ok || v.DeletedAt != nil {
		return common.ErrorNotFound
	}
	at := r.m.tick()
	v.DeletedAt = &at
	v.UpdatedAt = at
	return nil
}

func (r *memVaults) Touch(ctx context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	v, ok := r.m.vaults[id]
	if !ok {
		return common.ErrorNotFound
	}
	v.UpdatedAt = r.m.tick()
	return nil
}

func (r *memVaults) Query(ctx context.Context, f models.VaultFilters) ([]*models.Vault, int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var all []*models.Vault
	for _, v := range r.m.vaults {
		if v.DeletedAt == nil && (f.OwnerID == "" || v.OwnerID == f.OwnerID) {
			c := *v
			all = append(all, &c)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	total := len(all)
	if f.Offset >= total {
		return []*models.Vault{}, total, nil
	}
	end := f.Offset + f.Limit
	if end > total {
		end = total
	}
	return all[f.Offset:end], total, nil
}

type memVersions struct {
	versions.Repository
	m *memDB
}

func (r *memVersions) Create(ctx context.Context, v *models.Version) (*models.Version, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.versions[v.VersionID]; ok {
		return nil, errDuplicate
	}
	c := *v
	c.Chunks = nil
	c.CreatedAt = r.m.tick()
	r.m.versions[c.VersionID] = &c
	out := c
	return &out, nil
}

func (r *memVersions) GetVersion(ctx context.Context, id string) (*models.Version, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	v, ok := r.m.versions[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *v
	return &c, nil
}

func (r *memVersions) isLeaf(versionID string) bool {
	for _, v := range r.m.versions {
		if v.PreviousVersionID != nil && *v.PreviousVersionID == versionID {
			return false
		}
	}
	return true
}

func newer(a, b *models.Version) bool {
	return a.CreatedAt.After(b.CreatedAt) || (a.CreatedAt.Equal(b.CreatedAt) && a.VersionID > b.VersionID)
}

// head returns the newest leaf of group id; the caller holds the lock.
func (r *memVersions) head(id string) *models.Version {
	var best *models.Version
	for _, v := range r.m.versions {
		if v.ID != id || !r.isLeaf(v.VersionID) {
			continue
		}
		if best == nil || newer(v, best) {
			best = v
		}
	}
	return best
}

func (r *memVersions) GetCurrent(ctx context.Context, id string) (*models.Version, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	best := r.head(id)
	if best == nil {
		return nil, common.ErrorNotFound
	}
	c := *best
	return &c, nil
}

func (r *memVersions) Query(ctx context.Context, f models.VersionFilters) ([]*models.Version, int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var all []*models.Version
	for _, v := range r.m.versions {
		if v.VaultID != f.VaultID || v.DeletedAt != nil || !r.isLeaf(v.VersionID) {
			continue
		}
		if r.head(v.ID).DeletedAt != nil {
			continue
		}
		if f.Type != "" && v.Type != f.Type {
			continue
		}
		c := *v
		all = append(all, &c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	total := len(all)
	if f.Offset >= total {
		return []*models.Version{}, total, nil
	}
	end := f.Offset + f.Limit
	if end > total {
		end = total
	}
	return all[f.Offset:end], total, nil
}

func (r *memVersions) Summaries(ctx context.Context, vaultID string) ([]models.VersionSummary, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []models.VersionSummary
	for _, v := range r.m.versions {
		if v.VaultID == vaultID {
			out = append(out, models.VersionSummary{VersionID: v.VersionID, PreviousVersionID: v.PreviousVersionID,
				ID: v.ID, Type: v.Type, DeletedAt: v.DeletedAt})
		}
	}
	return out, nil
}

func (r *memVersions) LinkChunks(ctx context.Context, versionID, vaultID string, list []models.FileChunk) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, c := range list {
		if _, ok := r.m.chunks[chunkID(vaultID, c.Hash)]; !ok {
			return common.ErrResourceRelationshipInvalid
		}
	}
	r.m.links[versionID] = append(r.m.links[versionID], list...)
	return nil
}

func (r *memVersions) ListChunks(ctx context.Context, versionID string) ([]models.FileChunk, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	v := r.m.versions[versionID]
	out := make([]models.FileChunk, 0)
	for _, l := range r.m.links[versionID] {
		c := l
		if ch, ok := r.m.chunks[chunkID(v.VaultID, l.Hash)]; ok {
			c.Size = ch.Size
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r *memVersions) Commit(ctx context.Context, versionID string, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	v, ok := r.m.versions[versionID]
	if !ok {
		return common.ErrorNotFound
	}
	if v.CommittedAt == nil {
		v.CommittedAt = &at
	}
	return nil
}

type memChunks struct {
	chunks.Repository
	m *memDB
}

func (r *memChunks) Get(ctx context.Context, vaultID, hash string) (*models.Chunk, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.chunks[chunkID(vaultID, hash)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	out := *c
	return &out, nil
}

func (r *memChunks) EnsurePending(ctx context.Context, vaultID, hash string, size int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.chunks[chunkID(vaultID, hash)]; !ok {
		r.m.chunks[chunkID(vaultID, hash)] = &models.Chunk{VaultID: vaultID, Hash: hash, Size: size, CreatedAt: r.m.tick()}
	}
	return nil
}

func (r *memChunks) MarkStored(ctx context.Context, vaultID, hash string, size int64) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.chunks[chunkID(vaultID, hash)]
	if !ok {
		c = &models.Chunk{VaultID: vaultID, Hash: hash, Size: size, CreatedAt: r.m.tick()}
		r.m.chunks[chunkID(vaultID, hash)] = c
	} else if c.IsStored {
		return false, nil
	}
	at := r.m.tick()
	c.IsStored = true
	c.StoredAt = &at
	return true, nil
}

func (r *memChunks) Unmark(ctx context.Context, vaultID, hash string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if c, ok := r.m.chunks[chunkID(vaultID, hash)]; ok {
		c.IsStored = false
		c.StoredAt = nil
	}
	return nil
}

func (r *memChunks) ListStored(ctx context.Context, vaultID string) ([]string, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make([]string, 0)
	for _, c := range r.m.chunks {
		if c.VaultID == vaultID && c.IsStored {
			out = append(out, c.Hash)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *memChunks) referenced(vaultID, hash string) bool {
	for versionID, list := range r.m.links {
		v := r.m.versions[versionID]
		if v == nil || v.VaultID != vaultID {
			continue
		}
		for _, l := range list {
			if l.Hash == hash {
				return true
			}
		}
	}
	return false
}

func (r *memChunks) ListCollectable(ctx context.Context, before time.Time, limit int) ([]models.Chunk, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make([]models.Chunk, 0)
	for _, c := range r.m.chunks {
		if c.CreatedAt.Before(before) && !r.referenced(c.VaultID, c.Hash) {
			out = append(out, *c)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memChunks) DeleteIfUnreferenced(ctx context.Context, vaultID, hash string, before time.Time) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.chunks[chunkID(vaultID, hash)]
	if !ok || !c.CreatedAt.Before(before) || r.referenced(vaultID, hash) {
		return false, nil
	}
	delete(r.m.chunks, chunkID(vaultID, hash))
	return true, nil
}

type fakeRepoManager struct {
	repomanager.RepositoryManager
	m *memDB
}

func (f *fakeRepoManager) Users(dbx.DBTX) users.Repository       { return &memUsers{m: f.m} }
func (f *fakeRepoManager) Sessions(dbx.DBTX) sessions.Repository { return &memSessions{m: f.m} }
func (f *fakeRepoManager) Vaults(dbx.DBTX) vaults.Repository     { return &memVaults{m: f.m} }
func (f *fakeRepoManager) Versions(dbx.DBTX) versions.Repository { return &memVersions{m: f.m} }
func (f *fakeRepoManager) Chunks(dbx.DBTX) chunks.Repository     { return &memChunks{m: f.m} }
func (f *fakeRepoManager) Settings(dbx.DBTX) settings.Repository { return &memSettings{m: f.m} }

type fakeStore struct {
	mu         sync.Mutex
	objects    map[string]bool
	digests    []string
	presignErr error
	headErr    error
	deleted    []string
}

func newFakeStore() *fakeStore { return &fakeStore{objects: map[string]bool{}} }

func (s *fakeStore) put(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = true
}

func (s *fakeStore) PresignPut(ctx context.Context, key, digest string) (string, error) {
	if s.presignErr != nil {
		return "", s.presignErr
	}
	s.mu.Lock()
	s.digests = append(s.digests, digest)
	s.mu.Unlock()
	return "https://s3.local/put/" + key, nil
}

func (s *fakeStore) PresignGet(ctx context.Context, key string) (string, error) {
	if s.presignErr != nil {
		return "", s.presignErr
	}
	return "https://s3.local/get/" + key, nil
}

func (s *fakeStore) Exists(ctx context.Context, key string) (bool, error) {
	if s.headErr != nil {
		return false, s.headErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[key], nil
}

func (s *fakeStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(ev events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *recordingBus) types() []events.Type {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]events.Type, 0, len(b.events))
	for _, ev := range b.events {
		out = append(out, ev.Type)
	}
	return out
}

// -------- helpers --------

type fixture struct {
	db       *sql.DB
	mock     sqlmock.Sqlmock
	mem      *memDB
	rm       *fakeRepoManager
	store    *fakeStore
	bus      *recordingBus
	vaults   *VaultService
	versions *VersionService
	chunks   *ChunkService
	snapshot *SnapshotService
	users    *UserService
}

var testPaging = Paging{Default: 2, Max: 3}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mem := newMemDB()
	rm := &fakeRepoManager{m: mem}
	store := newFakeStore()
	bus := &recordingBus{}
	cs := NewChunkService(db, rm, store, bus)

	return &fixture{
		db:       db,
		mock:     mock,
		mem:      mem,
		rm:       rm,
		store:    store,
		bus:      bus,
		vaults:   NewVaultService(db, rm, testPaging, bus),
		versions: NewVersionService(db, rm, cs, testPaging, bus),
		chunks:   cs,
		snapshot: NewSnapshotService(db, rm),
		users:    NewUserService(db, rm, bus),
	}
}

// expectTx registers one transaction that ends in commit or rollback.
func (f *fixture) expectTx(commit bool) {
	f.mock.ExpectBegin()
	if commit {
		f.mock.ExpectCommit()
	} else {
		f.mock.ExpectRollback()
	}
}

func verifiedUser(role access.Role) access.RequestingUser {
	at := time.Now()
	return access.RequestingUser{ID: uuid.NewString(), SessionID: uuid.NewString(), Role: role, VerifiedAt: &at}
}

func (f *fixture) newVault(t *testing.T, owner access.RequestingUser) *models.Vault {
	t.Helper()
	v, err := f.vaults.Create(context.Background(), owner, VaultCreate{Name: "personal", ProtectedEncryptionKey: "v1.salt.nonce.ct"})
	require.NoError(t, err)
	return v
}

// newAccount stores a verified user and returns it as a requesting user.
func (f *fixture) newAccount(t *testing.T, email string, role access.Role) access.RequestingUser {
	t.Helper()
	u, err := f.rm.Users(f.db).Create(context.Background(), &models.User{Email: email, DisplayName: email, Role: role})
	require.NoError(t, err)
	ru := verifiedUser(role)
	ru.ID = u.ID
	return ru
}

func ptr[T any](v T) *T { return &v }
