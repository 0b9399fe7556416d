// Package presence tracks which identities are currently online and which
// session carries which identity. It holds no durable state.
package presence

import (
	"sync"
)

type set map[string]struct{}

// Registry is the concurrent set of online identities plus the
// session→identity binding established by addUser events.
// Safe for concurrent use by many connection-handling goroutines.
type Registry struct {
	mu       sync.RWMutex
	online   set
	sessions map[string]string // session id -> username
}

func NewRegistry() *Registry {
	return &Registry{
		online:   make(set),
		sessions: make(map[string]string),
	}
}

// AddUser marks an identity online. Adding an already-present identity
// is a no-op.
func (r *Registry) AddUser(username string) {
	if username == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.online[username] = struct{}{}
}

// RemoveUser marks an identity offline. Removing an absent identity
// is a no-op.
func (r *Registry) RemoveUser(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.online, username)
}

func (r *Registry) IsOnline(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.online[username]
	return ok
}

// ListOnline returns a snapshot copy so callers never observe mutation
// while iterating.
func (r *Registry) ListOnline() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]string, 0, len(r.online))
	for u := range r.online {
		users = append(users, u)
	}
	return users
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.online)
}

// BindSession associates a transport session with an identity so the
// disconnect side-channel can resolve who just left.
func (r *Registry) BindSession(sessionID, username string) {
	if sessionID == "" || username == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = username
}

// UnbindSession removes the binding and reports the identity it carried.
func (r *Registry) UnbindSession(sessionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	username, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	return username, ok
}

func (r *Registry) IdentityFor(sessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	username, ok := r.sessions[sessionID]
	return username, ok
}
