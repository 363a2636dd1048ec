// Package events carries domain events between components. Bus is the
// in-process channel; LocalBroadcast fans events out to other local contexts
// (other windows or processes of one device) and skips the originator.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

type Type string

const (
	AuthLogin     Type = "auth-login"
	AuthLogout    Type = "auth-logout"
	UserCreate    Type = "user-create"
	UserVerify    Type = "user-verify"
	UserUpdate    Type = "user-update"
	UserDelete    Type = "user-delete"
	VaultCreate   Type = "vault-create"
	VaultUpdate   Type = "vault-update"
	VaultDelete   Type = "vault-delete"
	VersionCreate Type = "version-create"
	VersionDelete Type = "version-delete"
	ChunkStored   Type = "chunk-stored"
)

// Event is one domain event. SessionID identifies the session whose write
// produced it, which is what echo suppression keys on.
type Event struct {
	Type      Type
	SessionID string
	UserID    string
	VaultID   string
	EntityID  string
	VersionID string
	At        time.Time
}

// Subscription receives events on C until Unsubscribe is called, after which
// C is closed.
type Subscription struct {
	C <-chan Event

	bus  *Bus
	id   uint64
	once sync.Once
}

func (s *Subscription) Unsubscribe() {
	s.once.Do(func() { s.bus.remove(s.id) })
}

type subscriber struct {
	ch    chan Event
	types map[Type]struct{}
}

func (s *subscriber) wants(t Type) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Bus is an in-process publish/subscribe channel. Publish never blocks: a
// subscriber whose buffer is full misses the event and Dropped is bumped.
type Bus struct {
	mu      sync.RWMutex
	nextID  uint64
	subs    map[uint64]*subscriber
	buffer  int
	dropped atomic.Int64
}

// NewBus returns a Bus whose subscriptions buffer up to buffer events.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{subs: make(map[uint64]*subscriber), buffer: buffer}
}

// Subscribe registers for the given event types; no types means all.
func (b *Bus) Subscribe(types ...Type) *Subscription {
	s := &subscriber{ch: make(chan Event, b.buffer), types: make(map[Type]struct{}, len(types))}
	for _, t := range types {
		s.types[t] = struct{}{}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = s
	b.mu.Unlock()

	return &Subscription{C: s.ch, bus: b, id: id}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(s.ch)
	}
}

// Publish delivers ev to every interested subscriber.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !s.wants(ev.Type) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns how many deliveries were skipped because of full buffers.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close unsubscribes everyone.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, s := range b.subs {
		delete(b.subs, id)
		close(s.ch)
	}
}
