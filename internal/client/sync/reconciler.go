package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/vaultsync/internal/client/api"
	"github.com/dmitrijs2005/vaultsync/internal/client/models"
	"github.com/dmitrijs2005/vaultsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/vaultsync/internal/client/store"
	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/dbx"
	"github.com/dmitrijs2005/vaultsync/internal/events"
	"github.com/dmitrijs2005/vaultsync/internal/logging"
)

// API is the part of the server client the reconciler needs.
type API interface {
	AllVaults(ctx context.Context) ([]*models.Vault, error)
	GetVault(ctx context.Context, id string) (*models.Vault, error)
	CreateVault(ctx context.Context, dto api.VaultCreate) (*models.Vault, error)
	UpdateVault(ctx context.Context, id string, patch models.VaultPatch) (*models.Vault, error)
	DeleteVault(ctx context.Context, id string) error
	Snapshot(ctx context.Context, vaultID string) (*models.Snapshot, error)
	GetVersion(ctx context.Context, versionID string) (*models.Version, error)
	ListVersionChunks(ctx context.Context, versionID string) ([]models.FileChunk, error)
	CreateVersion(ctx context.Context, vaultID string, dto api.VersionCreate) (*models.Version, error)
	CommitFile(ctx context.Context, versionID string) (*models.Version, error)
	ListStoredChunks(ctx context.Context, vaultID string) ([]string, error)
	RequestUpload(ctx context.Context, vaultID, hash string, size int64) (string, error)
	Upload(ctx context.Context, signed string, data []byte) error
}

type Publisher interface {
	Publish(ev events.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(events.Event) {}

// Origin is the SessionID stamped on events the reconciler publishes.
const Origin = "sync"

const (
	defaultConcurrency = 4
	defaultRetries     = 2
)

// Result reports what one vault's reconciliation did.
type Result struct {
	VaultID string
	// Skipped means the vault was unchanged on both sides.
	Skipped bool
	Created bool
	Removed bool
	Pulled  int
	Pushed  int
	Purged  int
}

type Reconciler struct {
	api         API
	store       *store.Store
	logger      logging.Logger
	publisher   Publisher
	concurrency int
	retries     int
}

func NewReconciler(a API, st *store.Store, logger logging.Logger) *Reconciler {
	return &Reconciler{
		api:         a,
		store:       st,
		logger:      logger.With("module", "sync"),
		publisher:   nopPublisher{},
		concurrency: defaultConcurrency,
		retries:     defaultRetries,
	}
}

// WithPublisher makes the reconciler announce pulled changes and removed
// vaults on p.
func (r *Reconciler) WithPublisher(p Publisher) *Reconciler {
	r.publisher = p
	return r
}

// SyncAll discovers vaults that exist only on the server and then
// reconciles every known vault, several at a time. Results are ordered by
// vault name.
func (r *Reconciler) SyncAll(ctx context.Context) ([]Result, error) {
	remote, err := r.api.AllVaults(ctx)
	if err != nil {
		return nil, err
	}

	vaults := r.store.Vaults(r.store.DB())
	for _, v := range remote {
		_, err := vaults.Get(ctx, v.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		if err := vaults.Upsert(ctx, v); err != nil {
			return nil, err
		}
		r.logger.Info(ctx, "discovered vault", "vault_id", v.ID)
	}

	local, err := vaults.Query(ctx, true)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(local))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, v := range local {
		g.Go(func() error {
			res, err := r.SyncVault(gctx, v.ID)
			results[i] = res
			if err != nil {
				return fmt.Errorf("vault %s: %w", v.ID, err)
			}
			return nil
		})
	}
	return results, g.Wait()
}

// SyncVault reconciles one vault: vault-level create, delete and patch
// first, then a snapshot round of pulls and pushes. A failed round is
// retried from a fresh snapshot.
func (r *Reconciler) SyncVault(ctx context.Context, id string) (Result, error) {
	res := Result{VaultID: id}
	db := r.store.DB()
	meta := r.store.Metadata(db)

	local, err := r.store.Vaults(db).Get(ctx, id)
	if errors.Is(err, common.ErrorNotFound) {
		local = nil
	} else if err != nil {
		return res, err
	}

	remote, err := r.api.GetVault(ctx, id)
	if errors.Is(err, common.ErrResourceNotFound) {
		return r.reconcileMissing(ctx, local, res)
	}
	if err != nil {
		return res, err
	}

	if local != nil && local.DeletedAt != nil {
		if err := r.api.DeleteVault(ctx, id); err != nil && !errors.Is(err, common.ErrResourceNotFound) {
			return res, err
		}
		res.Removed = true
		return res, r.purge(ctx, id)
	}

	if local != nil {
		pending, err := metadata.IsSet(ctx, meta, metadata.VaultPatchKey(id))
		if err != nil {
			return res, err
		}
		if pending {
			remote, err = r.api.UpdateVault(ctx, id, models.VaultPatch{
				Name:                   &local.Name,
				ProtectedEncryptionKey: &local.ProtectedEncryptionKey,
				ProtectedData:          local.ProtectedData,
			})
			if err != nil {
				return res, err
			}
			if err := meta.Delete(ctx, metadata.VaultPatchKey(id)); err != nil {
				return res, err
			}
		}
	}

	dirty, err := metadata.IsSet(ctx, meta, metadata.VaultDirtyKey(id))
	if err != nil {
		return res, err
	}
	if !dirty && local != nil {
		if seen, ok := r.lastSeen(ctx, id); ok && seen.Equal(remote.UpdatedAt) {
			res.Skipped = true
			return res, nil
		}
	}

	if err := r.store.Vaults(db).Upsert(ctx, remote); err != nil {
		return res, err
	}

	log := r.logger.With("vault_id", id)
	var seen time.Time
	for attempt := 0; ; attempt++ {
		seen, err = r.round(ctx, id, &res)
		if err == nil {
			break
		}
		if attempt >= r.retries || !retryable(err) {
			return res, err
		}
		log.Warn(ctx, "sync round failed, retrying with a fresh snapshot", "attempt", attempt+1, "error", err)
	}

	// The snapshot time, not the time after our pushes: writes by others
	// that landed in between must not be hidden by the pre-check.
	if err := meta.Set(ctx, metadata.VaultLastSeenKey(id), seen.UTC().Format(time.RFC3339Nano)); err != nil {
		return res, err
	}
	if err := meta.Delete(ctx, metadata.VaultDirtyKey(id)); err != nil {
		return res, err
	}

	if res.Pulled > 0 {
		r.publisher.Publish(events.Event{Type: events.VaultUpdate, SessionID: Origin, VaultID: id, At: time.Now().UTC()})
	}
	log.Info(ctx, "vault synced", "pulled", res.Pulled, "pushed", res.Pushed, "purged", res.Purged)
	return res, nil
}

func (r *Reconciler) reconcileMissing(ctx context.Context, local *models.Vault, res Result) (Result, error) {
	if local == nil {
		return res, nil
	}

	_, seenErr := r.store.Metadata(r.store.DB()).Get(ctx, metadata.VaultLastSeenKey(local.ID))
	if seenErr != nil && !errors.Is(seenErr, common.ErrorNotFound) {
		return res, seenErr
	}
	if seenErr == nil || local.DeletedAt != nil {
		// Deleted on the server, or created and deleted before it ever
		// got there.
		res.Removed = true
		return res, r.purge(ctx, local.ID)
	}

	if _, err := r.api.CreateVault(ctx, api.VaultCreate{
		ID:                     local.ID,
		Name:                   local.Name,
		ProtectedEncryptionKey: local.ProtectedEncryptionKey,
		ProtectedData:          local.ProtectedData,
	}); err != nil {
		return res, err
	}
	r.logger.Info(ctx, "vault created on server", "vault_id", local.ID)

	next, err := r.SyncVault(ctx, local.ID)
	next.Created = true
	return next, err
}

func (r *Reconciler) round(ctx context.Context, vaultID string, res *Result) (time.Time, error) {
	snap, err := r.api.Snapshot(ctx, vaultID)
	if err != nil {
		return time.Time{}, err
	}
	local, err := r.store.Versions(r.store.DB()).Snapshot(ctx, vaultID)
	if err != nil {
		return time.Time{}, err
	}

	var push []string
	for _, a := range PlanActions(snap.Versions, local) {
		switch a.Kind {
		case ActionDownload, ActionDeleteLocal:
			if err := r.pull(ctx, a.VersionID); err != nil {
				return time.Time{}, fmt.Errorf("pull version %s: %w", a.VersionID, err)
			}
			res.Pulled++
		case ActionPurge:
			compacted, err := r.compact(ctx, a.VersionID)
			if err != nil {
				return time.Time{}, err
			}
			if compacted {
				res.Purged++
			}
		case ActionUpload, ActionDeleteServer:
			push = append(push, a.VersionID)
		}
	}

	resume, err := r.resumable(ctx, vaultID, snap.Versions)
	if err != nil {
		return time.Time{}, err
	}
	push = append(push, resume...)

	if err := r.push(ctx, vaultID, push, res); err != nil {
		return time.Time{}, err
	}
	return snap.Vault.UpdatedAt, nil
}

// resumable returns file versions the server already knows but that were
// never committed, when every chunk is still held locally. Those are
// uploads an earlier run did not finish.
func (r *Reconciler) resumable(ctx context.Context, vaultID string, server map[string]bool) ([]string, error) {
	db := r.store.DB()
	ids, err := r.store.Versions(db).Uncommitted(ctx, vaultID)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, id := range ids {
		if deleted, known := server[id]; !known || deleted {
			continue
		}
		chunks, err := r.store.Versions(db).Chunks(ctx, id)
		if err != nil {
			return nil, err
		}
		complete := true
		for _, c := range chunks {
			has, err := r.store.Blobs(db).Has(ctx, vaultID, c.Hash)
			if err != nil {
				return nil, err
			}
			if !has {
				complete = false
				break
			}
		}
		if complete {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *Reconciler) pull(ctx context.Context, versionID string) error {
	v, err := r.api.GetVersion(ctx, versionID)
	if err != nil {
		return err
	}
	if v.Type == models.VersionTypeFile && !v.Tombstone() && len(v.Chunks) == 0 {
		if v.Chunks, err = r.api.ListVersionChunks(ctx, versionID); err != nil {
			return err
		}
	}
	return r.store.Versions(r.store.DB()).Create(ctx, v)
}

// compact drops the payload of a group once both sides hold the tombstone
// and the tombstone is still the group's current version.
func (r *Reconciler) compact(ctx context.Context, tombstoneID string) (bool, error) {
	repo := r.store.Versions(r.store.DB())
	ts, err := repo.GetVersion(ctx, tombstoneID)
	if err != nil {
		return false, err
	}
	current, err := repo.Current(ctx, ts.ID)
	if err != nil {
		return false, err
	}
	if !current.Tombstone() {
		return false, nil
	}
	return true, repo.Compact(ctx, ts.ID)
}

func (r *Reconciler) push(ctx context.Context, vaultID string, ids []string, res *Result) error {
	if len(ids) == 0 {
		return nil
	}

	repo := r.store.Versions(r.store.DB())
	pending := make([]*models.Version, 0, len(ids))
	for _, id := range ids {
		v, err := repo.GetVersion(ctx, id)
		if err != nil {
			return err
		}
		pending = append(pending, v)
	}

	var stored map[string]bool
	for _, v := range parentsFirst(pending) {
		isFile := v.Type == models.VersionTypeFile && !v.Tombstone()
		if isFile {
			if stored == nil {
				hashes, err := r.api.ListStoredChunks(ctx, vaultID)
				if err != nil {
					return err
				}
				stored = make(map[string]bool, len(hashes))
				for _, h := range hashes {
					stored[h] = true
				}
			}
			if err := r.uploadChunks(ctx, v, stored); err != nil {
				return err
			}
		}

		created, err := r.api.CreateVersion(ctx, vaultID, api.NewVersionCreate(v))
		switch {
		case errors.Is(err, common.ErrResourceNotUnique):
			// pushed by an earlier attempt
		case err != nil:
			return fmt.Errorf("push version %s: %w", v.VersionID, err)
		default:
			v.CreatedAt = created.CreatedAt
		}

		if isFile {
			committed, err := r.api.CommitFile(ctx, v.VersionID)
			if err != nil {
				return fmt.Errorf("commit version %s: %w", v.VersionID, err)
			}
			v.CommittedAt = committed.CommittedAt
		}

		// adopt the server's timestamps
		if err := repo.Create(ctx, v); err != nil {
			return err
		}
		res.Pushed++
	}
	return nil
}

func (r *Reconciler) uploadChunks(ctx context.Context, v *models.Version, stored map[string]bool) error {
	blobs := r.store.Blobs(r.store.DB())
	for _, c := range v.Chunks {
		if stored[c.Hash] {
			continue
		}
		data, err := blobs.Get(ctx, v.VaultID, c.Hash)
		if err != nil {
			return fmt.Errorf("chunk %s of version %s: %w", c.Hash, v.VersionID, err)
		}

		signed, err := r.api.RequestUpload(ctx, v.VaultID, c.Hash, c.Size)
		if errors.Is(err, common.ErrResourceNotUnique) {
			stored[c.Hash] = true
			continue
		}
		if err != nil {
			return err
		}
		if err := r.api.Upload(ctx, signed, data); err != nil {
			return err
		}
		stored[c.Hash] = true
	}
	return nil
}

func (r *Reconciler) purge(ctx context.Context, vaultID string) error {
	err := r.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := r.store.Vaults(tx).Purge(ctx, vaultID); err != nil {
			return err
		}
		return r.store.Metadata(tx).DeletePrefix(ctx, metadata.VaultPrefix(vaultID))
	})
	if err != nil {
		return err
	}
	r.logger.Info(ctx, "vault removed locally", "vault_id", vaultID)
	r.publisher.Publish(events.Event{Type: events.VaultDelete, SessionID: Origin, VaultID: vaultID, At: time.Now().UTC()})
	return nil
}

func (r *Reconciler) lastSeen(ctx context.Context, vaultID string) (time.Time, bool) {
	s, err := r.store.Metadata(r.store.DB()).Get(ctx, metadata.VaultLastSeenKey(vaultID))
	if err != nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// retryable reports whether a fresh snapshot may fix err: a parent that
// raced with us, chunks the store lost, or a server hiccup.
func retryable(err error) bool {
	return errors.Is(err, common.ErrResourceRelationshipInvalid) ||
		errors.Is(err, common.ErrRequestInvalid) ||
		errors.Is(err, common.ErrSystem)
}

// parentsFirst orders versions so each one follows its parent when both
// are being pushed; otherwise by creation time.
func parentsFirst(list []*models.Version) []*models.Version {
	sorted := make([]*models.Version, len(list))
	copy(sorted, list)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].VersionID < sorted[j].VersionID
	})

	byID := make(map[string]*models.Version, len(sorted))
	for _, v := range sorted {
		byID[v.VersionID] = v
	}

	out := make([]*models.Version, 0, len(sorted))
	visited := make(map[string]bool, len(sorted))
	var visit func(v *models.Version)
	visit = func(v *models.Version) {
		if visited[v.VersionID] {
			return
		}
		visited[v.VersionID] = true
		if v.PreviousVersionID != nil {
			if parent, ok := byID[*v.PreviousVersionID]; ok {
				visit(parent)
			}
		}
		out = append(out, v)
	}
	for _, v := range sorted {
		visit(v)
	}
	return out
}
