package events

import (
	"sort"
	"sync"
)

// Notifier tracks, per session, the vaults changed by other sessions of the
// same user. A session never sees its own writes, so a client can use
// Pending as a cheap "should I sync" check. Every way a session ends
// (logout, expiry on use, the expiry sweep) publishes AuthLogout, which is
// what keeps the maps bounded by the number of live sessions.
type Notifier struct {
	mu sync.Mutex
	// userID -> sessionID -> changed vault ids
	pending map[string]map[string]map[string]struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{pending: make(map[string]map[string]map[string]struct{})}
}

// Track starts recording changes for a session.
func (n *Notifier) Track(userID, sessionID string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	sessions, ok := n.pending[userID]
	if !ok {
		sessions = make(map[string]map[string]struct{})
		n.pending[userID] = sessions
	}
	if _, ok := sessions[sessionID]; !ok {
		sessions[sessionID] = make(map[string]struct{})
	}
}

// Forget stops tracking a session.
func (n *Notifier) Forget(userID, sessionID string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if sessions, ok := n.pending[userID]; ok {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(n.pending, userID)
		}
	}
}

// ForgetUser drops every session of a user.
func (n *Notifier) ForgetUser(userID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.pending, userID)
}

// Observe records ev for every tracked peer session of ev.UserID.
func (n *Notifier) Observe(ev Event) {
	if ev.VaultID == "" {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	for sessionID, vaults := range n.pending[ev.UserID] {
		if sessionID == ev.SessionID {
			continue
		}
		vaults[ev.VaultID] = struct{}{}
	}
}

// Pending returns and clears the vault ids changed by peers of sessionID.
// The session is tracked from this call on if it was not before.
func (n *Notifier) Pending(userID, sessionID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	sessions, ok := n.pending[userID]
	if !ok {
		sessions = make(map[string]map[string]struct{})
		n.pending[userID] = sessions
	}
	vaults, ok := sessions[sessionID]
	sessions[sessionID] = make(map[string]struct{})
	if !ok {
		return []string{}
	}

	out := make([]string, 0, len(vaults))
	for id := range vaults {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Run feeds the notifier from sub until the subscription closes. Login and
// logout events start and stop tracking; deleting a user drops all of its
// sessions.
func (n *Notifier) Run(sub *Subscription) {
	for ev := range sub.C {
		switch ev.Type {
		case AuthLogin:
			n.Track(ev.UserID, ev.SessionID)
		case AuthLogout:
			n.Forget(ev.UserID, ev.SessionID)
		case UserDelete:
			n.ForgetUser(ev.UserID)
		default:
			n.Observe(ev)
		}
	}
}
