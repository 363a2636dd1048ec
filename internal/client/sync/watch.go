package sync

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/client/api"
	"github.com/dmitrijs2005/vaultsync/internal/events"
	"github.com/dmitrijs2005/vaultsync/internal/logging"
)

// PendingSource reports vaults other sessions changed since the last call.
type PendingSource interface {
	Pending(ctx context.Context) ([]string, error)
}

// Syncer is what the watcher drives; *Reconciler implements it.
type Syncer interface {
	SyncAll(ctx context.Context) ([]Result, error)
	SyncVault(ctx context.Context, id string) (Result, error)
}

// Watcher keeps the local store in step with the server while the CLI
// stays open. It polls the pending-events endpoint and reacts to local
// writes announced on a broadcast subscription. Losing the server flips it
// offline; the first successful poll after that runs a full sync.
type Watcher struct {
	syncer   Syncer
	pending  PendingSource
	local    *events.Subscription
	interval time.Duration
	logger   logging.Logger

	online atomic.Bool
}

func NewWatcher(s Syncer, p PendingSource, local *events.Subscription, interval time.Duration, l logging.Logger) *Watcher {
	return &Watcher{syncer: s, pending: p, local: local, interval: interval, logger: l.With("module", "watcher")}
}

func (w *Watcher) Online() bool {
	return w.online.Load()
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	w.syncAll(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var localEvents <-chan events.Event
	if w.local != nil {
		localEvents = w.local.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		case ev, ok := <-localEvents:
			if !ok {
				localEvents = nil
				continue
			}
			if ev.VaultID == "" || !w.Online() {
				continue
			}
			w.syncVault(ctx, ev.VaultID)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	if !w.Online() {
		w.syncAll(ctx)
		return
	}

	ids, err := w.pending.Pending(ctx)
	if err != nil {
		w.fail(ctx, err)
		return
	}
	for _, id := range ids {
		w.syncVault(ctx, id)
	}
}

func (w *Watcher) syncAll(ctx context.Context) {
	if _, err := w.syncer.SyncAll(ctx); err != nil {
		w.fail(ctx, err)
		return
	}
	if !w.online.Swap(true) {
		w.logger.Info(ctx, "online")
	}
}

func (w *Watcher) syncVault(ctx context.Context, id string) {
	if _, err := w.syncer.SyncVault(ctx, id); err != nil {
		w.fail(ctx, err)
	}
}

func (w *Watcher) fail(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	if errors.Is(err, api.ErrUnavailable) {
		if w.online.Swap(false) {
			w.logger.Warn(ctx, "server unreachable, working offline", "error", err)
		}
		return
	}
	w.logger.Error(ctx, "sync failed", "error", err)
}
