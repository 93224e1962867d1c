package mcp

import "sync"

// SessionRegistry maps debug session IDs to the MCP client session that
// started them. Populated by flowgraph.debug.start.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]string // debugSessionID → clientSessionID
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]string)}
}

// Register associates a debug session with a client session.
// A later registration for the same debug session overwrites the owner.
func (r *SessionRegistry) Register(debugSessionID, clientSessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[debugSessionID] = clientSessionID
}

// SessionFor returns the client session owning the debug session, if any.
func (r *SessionRegistry) SessionFor(debugSessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.sessions[debugSessionID]
	return sid, ok
}

// Forget drops the mapping of one debug session.
func (r *SessionRegistry) Forget(debugSessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, debugSessionID)
}

// Remove deletes every debug session mapped to the given client session.
// Called when a client disconnects.
func (r *SessionRegistry) Remove(clientSessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for did, sid := range r.sessions {
		if sid == clientSessionID {
			delete(r.sessions, did)
		}
	}
}

// Len returns the number of tracked debug sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
