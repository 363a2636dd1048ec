package sync

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/client/api"
	"github.com/dmitrijs2005/vaultsync/internal/client/models"
	"github.com/dmitrijs2005/vaultsync/internal/common"
)

var base = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

// fakeServer is an in-memory stand-in for the HTTP API with the server's
// rules for replays, parents, chunks and commits.
type fakeServer struct {
	mu       sync.Mutex
	clock    time.Time
	vaults   map[string]*models.Vault
	versions map[string]*models.Version
	stored   map[string]map[string][]byte
	calls    map[string]int

	// failCreate and failCommit are returned by the next calls of
	// CreateVersion and CommitFile; a nil entry lets the call through.
	failCreate []error
	failCommit []error
	// hideStored makes ListStoredChunks report nothing.
	hideStored bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		clock:    base,
		vaults:   map[string]*models.Vault{},
		versions: map[string]*models.Version{},
		stored:   map[string]map[string][]byte{},
		calls:    map[string]int{},
	}
}

func (f *fakeServer) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeServer) called(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeServer) liveVault(id string) (*models.Vault, error) {
	v, ok := f.vaults[id]
	if !ok || v.DeletedAt != nil {
		return nil, common.ErrResourceNotFound.WithMessage("vault %s not found", id)
	}
	return v, nil
}

func (f *fakeServer) AllVaults(ctx context.Context) ([]*models.Vault, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["AllVaults"]++
	var out []*models.Vault
	for _, v := range f.vaults {
		if v.DeletedAt == nil {
			c := *v
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeServer) GetVault(ctx context.Context, id string) (*models.Vault, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GetVault"]++
	v, err := f.liveVault(id)
	if err != nil {
		return nil, err
	}
	c := *v
	return &c, nil
}

func (f *fakeServer) CreateVault(ctx context.Context, dto api.VaultCreate) (*models.Vault, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["CreateVault"]++
	if _, ok := f.vaults[dto.ID]; ok {
		return nil, common.ErrResourceNotUnique
	}
	at := f.tick()
	v := &models.Vault{ID: dto.ID, Name: dto.Name, ProtectedEncryptionKey: dto.ProtectedEncryptionKey,
		ProtectedData: dto.ProtectedData, CreatedAt: at, UpdatedAt: at}
	f.vaults[v.ID] = v
	c := *v
	return &c, nil
}

func (f *fakeServer) UpdateVault(ctx context.Context, id string, patch models.VaultPatch) (*models.Vault, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["UpdateVault"]++
	v, err := f.liveVault(id)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		v.Name = *patch.Name
	}
	if patch.ProtectedEncryptionKey != nil {
		v.ProtectedEncryptionKey = *patch.ProtectedEncryptionKey
	}
	if patch.ProtectedData != nil {
		v.ProtectedData = patch.ProtectedData
	}
	v.UpdatedAt = f.tick()
	c := *v
	return &c, nil
}

func (f *fakeServer) DeleteVault(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["DeleteVault"]++
	v, err := f.liveVault(id)
	if err != nil {
		return err
	}
	at := f.tick()
	v.DeletedAt = &at
	v.UpdatedAt = at
	return nil
}

func (f *fakeServer) Snapshot(ctx context.Context, vaultID string) (*models.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Snapshot"]++
	v, err := f.liveVault(vaultID)
	if err != nil {
		return nil, err
	}
	s := &models.Snapshot{Vault: models.SnapshotVault{UpdatedAt: v.UpdatedAt}, Versions: map[string]bool{}}
	for id, ver := range f.versions {
		if ver.VaultID == vaultID {
			s.Versions[id] = ver.Tombstone()
		}
	}
	return s, nil
}

func (f *fakeServer) GetVersion(ctx context.Context, versionID string) (*models.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GetVersion"]++
	v, ok := f.versions[versionID]
	if !ok {
		return nil, common.ErrResourceNotFound
	}
	c := *v
	c.Chunks = nil
	return &c, nil
}

func (f *fakeServer) ListVersionChunks(ctx context.Context, versionID string) ([]models.FileChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ListVersionChunks"]++
	v, ok := f.versions[versionID]
	if !ok {
		return nil, common.ErrResourceNotFound
	}
	return v.Chunks, nil
}

func (f *fakeServer) CreateVersion(ctx context.Context, vaultID string, dto api.VersionCreate) (*models.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["CreateVersion"]++
	if len(f.failCreate) > 0 {
		err := f.failCreate[0]
		f.failCreate = f.failCreate[1:]
		if err != nil {
			return nil, err
		}
	}
	vault, err := f.liveVault(vaultID)
	if err != nil {
		return nil, common.ErrResourceRelationshipInvalid
	}
	if _, ok := f.versions[dto.VersionID]; ok {
		return nil, common.ErrResourceNotUnique
	}
	if dto.PreviousVersionID != nil {
		parent, ok := f.versions[*dto.PreviousVersionID]
		if !ok {
			return nil, common.ErrResourceRelationshipInvalid.WithMessage("parent missing")
		}
		if parent.Tombstone() {
			return nil, common.ErrRequestInvalid.WithMessage("parent is a tombstone")
		}
	}
	at := f.tick()
	v := &models.Version{VersionID: dto.VersionID, PreviousVersionID: dto.PreviousVersionID, ID: dto.ID,
		VaultID: vaultID, Type: dto.Type, ProtectedData: dto.ProtectedData, CreatedAt: at, CreatedBy: "u1",
		Chunks: dto.Chunks}
	if dto.Deleted {
		v.DeletedAt = &at
	}
	f.versions[v.VersionID] = v
	vault.UpdatedAt = at
	c := *v
	return &c, nil
}

func (f *fakeServer) CommitFile(ctx context.Context, versionID string) (*models.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["CommitFile"]++
	if len(f.failCommit) > 0 {
		err := f.failCommit[0]
		f.failCommit = f.failCommit[1:]
		if err != nil {
			return nil, err
		}
	}
	v, ok := f.versions[versionID]
	if !ok {
		return nil, common.ErrResourceNotFound
	}
	var missing []string
	for _, c := range v.Chunks {
		if _, ok := f.stored[v.VaultID][c.Hash]; !ok {
			missing = append(missing, c.Hash)
		}
	}
	if len(missing) > 0 {
		return nil, common.ErrRequestInvalid.WithMessage("missing chunks: %s", strings.Join(missing, ","))
	}
	if v.CommittedAt == nil {
		at := f.tick()
		v.CommittedAt = &at
	}
	c := *v
	return &c, nil
}

func (f *fakeServer) ListStoredChunks(ctx context.Context, vaultID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ListStoredChunks"]++
	var out []string
	if f.hideStored {
		return out, nil
	}
	for h := range f.stored[vaultID] {
		out = append(out, h)
	}
	return out, nil
}

func (f *fakeServer) RequestUpload(ctx context.Context, vaultID, hash string, size int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["RequestUpload"]++
	if _, ok := f.stored[vaultID][hash]; ok {
		return "", common.ErrResourceNotUnique
	}
	return "put:" + vaultID + ":" + hash, nil
}

func (f *fakeServer) Upload(ctx context.Context, signed string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Upload"]++
	parts := strings.Split(signed, ":")
	if f.stored[parts[1]] == nil {
		f.stored[parts[1]] = map[string][]byte{}
	}
	f.stored[parts[1]][parts[2]] = data
	return nil
}

// putStored places chunk bytes on the server as if another device had
// uploaded them.
func (f *fakeServer) putStored(vaultID, hash string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stored[vaultID] == nil {
		f.stored[vaultID] = map[string][]byte{}
	}
	f.stored[vaultID][hash] = data
}
