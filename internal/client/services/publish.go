package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/vaultsync/internal/client/store"
	"github.com/dmitrijs2005/vaultsync/internal/dbx"
	"github.com/dmitrijs2005/vaultsync/internal/events"
)

type Publisher interface {
	Publish(ev events.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(events.Event) {}

// announcer stamps local writes with the origin of the running process so
// the broadcast does not echo them back to it.
type announcer struct {
	publisher Publisher
	origin    string
	now       func() time.Time
}

func newAnnouncer(p Publisher, origin string) announcer {
	if p == nil {
		p = nopPublisher{}
	}
	return announcer{publisher: p, origin: origin, now: func() time.Time { return time.Now().UTC() }}
}

func (a announcer) announce(t events.Type, vaultID, entityID, versionID string) {
	a.publisher.Publish(events.Event{
		Type:      t,
		SessionID: a.origin,
		VaultID:   vaultID,
		EntityID:  entityID,
		VersionID: versionID,
		At:        a.now(),
	})
}

func markDirty(ctx context.Context, st *store.Store, tx dbx.DBTX, vaultID string) error {
	return st.Metadata(tx).Set(ctx, metadata.VaultDirtyKey(vaultID), "1")
}
