package events

import "sync"

// Broadcaster relays events between local contexts of one device.
type Broadcaster interface {
	// Join registers a context and returns the events other contexts send.
	Join(contextID string) *Subscription
	// Send delivers ev to every joined context except originID.
	Send(originID string, ev Event)
}

// LocalBroadcast is an in-memory Broadcaster. Each context gets its own Bus
// subscription so one slow reader cannot stall the others.
type LocalBroadcast struct {
	mu      sync.RWMutex
	members map[string]*Bus
	buffer  int
}

func NewLocalBroadcast(buffer int) *LocalBroadcast {
	return &LocalBroadcast{members: make(map[string]*Bus), buffer: buffer}
}

func (l *LocalBroadcast) Join(contextID string) *Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()

	if old, ok := l.members[contextID]; ok {
		old.Close()
	}
	bus := NewBus(l.buffer)
	l.members[contextID] = bus
	return bus.Subscribe()
}

// Leave drops contextID and closes its subscription.
func (l *LocalBroadcast) Leave(contextID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if bus, ok := l.members[contextID]; ok {
		bus.Close()
		delete(l.members, contextID)
	}
}

func (l *LocalBroadcast) Send(originID string, ev Event) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for id, bus := range l.members {
		if id == originID {
			continue
		}
		bus.Publish(ev)
	}
}

// Relay forwards every event published on bus to the broadcaster, using the
// event's SessionID as origin. It returns when the subscription closes.
func Relay(sub *Subscription, b Broadcaster) {
	for ev := range sub.C {
		b.Send(ev.SessionID, ev)
	}
}
