package mcp

import "sync"

// SessionRegistry maps subscriber IDs to MCP session IDs.
// Populated when a tool call carries subscriber_id.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]string // subscriberID → sessionID
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]string)}
}

// Register associates a subscriber ID with a session ID.
// An existing mapping is overwritten (reconnect).
func (r *SessionRegistry) Register(subscriberID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[subscriberID] = sessionID
}

// SessionFor returns the session ID for the given subscriber, if connected.
func (r *SessionRegistry) SessionFor(subscriberID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.sessions[subscriberID]
	return sid, ok
}

// Remove deletes all subscriber mappings for the given session ID.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sub, sid := range r.sessions {
		if sid == sessionID {
			delete(r.sessions, sub)
		}
	}
}

// WatchRegistry records which subscribers follow which executions.
type WatchRegistry struct {
	mu      sync.RWMutex
	watches map[string]map[string]struct{} // executionID → subscriber set
}

// NewWatchRegistry creates a new empty WatchRegistry.
func NewWatchRegistry() *WatchRegistry {
	return &WatchRegistry{watches: make(map[string]map[string]struct{})}
}

// Watch subscribes subscriberID to the events of executionID.
func (r *WatchRegistry) Watch(executionID, subscriberID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs, ok := r.watches[executionID]
	if !ok {
		subs = make(map[string]struct{})
		r.watches[executionID] = subs
	}
	subs[subscriberID] = struct{}{}
}

// Subscribers returns who watches executionID.
func (r *WatchRegistry) Subscribers(executionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.watches[executionID]))
	for sub := range r.watches[executionID] {
		out = append(out, sub)
	}
	return out
}

// Forget drops every watch on executionID.
func (r *WatchRegistry) Forget(executionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.watches, executionID)
}
