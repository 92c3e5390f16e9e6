package session

import (
	"sync"

	"github.com/you/courier/internal/domain"
	"github.com/you/courier/internal/provider"
)

// State is the in-memory lifecycle view of a live session.
type State struct {
	Status domain.SessionStatus
	JID    string
}

type handle struct {
	client provider.Client
	state  State
}

// Registry owns all live connection handles, keyed by session id. Insert and
// Remove are explicit on every exit path; nothing is removed implicitly on
// connection teardown.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]*handle
}

func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*handle)}
}

// Reserve creates an empty slot for a session if none exists, so state
// transitions observed while the connection is still being dialed land on a
// handle instead of being dropped. Existing handles are left untouched.
func (r *Registry) Reserve(sessionID string) {
	r.mu.Lock()
	if _, ok := r.handles[sessionID]; !ok {
		r.handles[sessionID] = &handle{}
	}
	r.mu.Unlock()
}

// Insert attaches a client to the session's slot, creating it if needed and
// replacing any previous client. The accumulated state is preserved so a
// reconnect keeps its RECONNECTING status until the provider reports progress.
func (r *Registry) Insert(sessionID string, client provider.Client) {
	r.mu.Lock()
	h, ok := r.handles[sessionID]
	if !ok {
		h = &handle{}
		r.handles[sessionID] = h
	}
	h.client = client
	r.mu.Unlock()
}

// Lookup returns the live client for a session. Reserved slots without an
// attached client report absent.
func (r *Registry) Lookup(sessionID string) (provider.Client, bool) {
	r.mu.RLock()
	h, ok := r.handles[sessionID]
	r.mu.RUnlock()
	if !ok || h.client == nil {
		return nil, false
	}
	return h.client, true
}

// State returns the in-memory lifecycle state for a session, if present.
func (r *Registry) State(sessionID string) (State, bool) {
	r.mu.RLock()
	h, ok := r.handles[sessionID]
	r.mu.RUnlock()
	if !ok {
		return State{}, false
	}
	return h.state, true
}

// SetState updates the lifecycle state for a live session. No-op if the
// handle has already been removed.
func (r *Registry) SetState(sessionID string, status domain.SessionStatus, jid string) {
	r.mu.Lock()
	if h, ok := r.handles[sessionID]; ok {
		h.state = State{Status: status, JID: jid}
	}
	r.mu.Unlock()
}

// Remove drops the handle for a session. The caller is responsible for
// closing the client first if needed.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	delete(r.handles, sessionID)
	r.mu.Unlock()
}
