package mcp

import (
	"sort"
	"sync"
)

// SessionRegistry maps scene IDs to the MCP sessions watching them.
// Populated automatically when a tool call touches a scene.
type SessionRegistry struct {
	mu       sync.RWMutex
	watchers map[string]map[string]struct{} // sceneID → sessionIDs
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{watchers: make(map[string]map[string]struct{})}
}

// Register adds a session to the watchers of a scene. Registering twice is a no-op.
func (r *SessionRegistry) Register(sceneID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.watchers[sceneID]
	if !ok {
		set = make(map[string]struct{})
		r.watchers[sceneID] = set
	}
	set[sessionID] = struct{}{}
}

// SessionsFor returns the sessions watching a scene, sorted.
func (r *SessionRegistry) SessionsFor(sceneID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.watchers[sceneID]
	out := make([]string, 0, len(set))
	for sid := range set {
		out = append(out, sid)
	}
	sort.Strings(out)
	return out
}

// Remove deletes every scene mapping of the given session ID.
// Called when a session disconnects.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sceneID, set := range r.watchers {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(r.watchers, sceneID)
		}
	}
}

// Forget drops every watcher of a scene.
func (r *SessionRegistry) Forget(sceneID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.watchers, sceneID)
}
