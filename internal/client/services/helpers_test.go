package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/vaultsync/internal/client/models"
	"github.com/dmitrijs2005/vaultsync/internal/client/store"
	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/cryptox"
	"github.com/dmitrijs2005/vaultsync/internal/events"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), store.Memory)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) last() events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return events.Event{}
	}
	return r.events[len(r.events)-1]
}

// seedVault stores a vault row directly and returns a random key for it.
func seedVault(t *testing.T, st *store.Store, id string) []byte {
	t.Helper()
	at := time.Now().UTC()
	v := &models.Vault{ID: id, Name: "vault " + id, ProtectedEncryptionKey: "pek", CreatedAt: at, UpdatedAt: at}
	require.NoError(t, st.Vaults(st.DB()).Upsert(context.Background(), v))
	return common.GenerateRandByteArray(cryptox.KeySize)
}

func isSet(t *testing.T, st *store.Store, key string) bool {
	t.Helper()
	_, err := st.Metadata(st.DB()).Get(context.Background(), key)
	if err != nil {
		require.ErrorIs(t, err, common.ErrorNotFound)
		return false
	}
	return true
}
