package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gsd-build/gsd-relay/internal/identity"
	"github.com/gsd-build/gsd-relay/internal/types"
)

// Registry is the single source of truth for connected front-end sessions.
// All state is in memory and rebuilt from zero on every daemon start.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session // session ID -> session
	byClient map[string]string   // client ID -> session ID

	// counters holds the next label sequence number per prefix. Prefixes are
	// stable for the daemon's lifetime and numbers are never reused.
	counters map[string]int

	events types.Sink
}

// NewRegistry creates an empty session registry. The sink may be nil.
func NewRegistry(events types.Sink) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		byClient: make(map[string]string),
		counters: make(map[string]int),
		events:   events,
	}
}

// Register creates a session for a newly connected client and returns a copy
// of it. The label is the project-derived prefix plus the next sequence
// number for that prefix, e.g. "myproj/2".
func (r *Registry) Register(clientID, projectRoot string) Session {
	r.mu.Lock()

	prefix := labelPrefix(projectRoot)
	r.counters[prefix]++
	seq := r.counters[prefix]

	s := &Session{
		ID:          identity.GenerateSessionID(),
		ClientID:    clientID,
		Label:       fmt.Sprintf("%s/%d", prefix, seq),
		ProjectRoot: projectRoot,
		Status:      StatusIdle,
		ConnectedAt: time.Now().UTC(),
	}
	r.sessions[s.ID] = s
	r.byClient[clientID] = s.ID
	copied := *s
	r.mu.Unlock()

	r.emit(types.SessionConnectedEvent{
		Type:        "session.connected",
		Timestamp:   copied.ConnectedAt.Format(time.RFC3339Nano),
		SessionID:   copied.ID,
		Label:       copied.Label,
		ProjectRoot: copied.ProjectRoot,
	})
	return copied
}

// Unregister removes a session. Returns the removed session and true, or a
// zero session and false if it was not registered. A missing session is
// normal (double-unregister on racing disconnects), not an error.
func (r *Registry) Unregister(sessionID string) (Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return Session{}, false
	}
	delete(r.sessions, sessionID)
	delete(r.byClient, s.ClientID)
	copied := *s
	r.mu.Unlock()

	r.emit(types.SessionDisconnectedEvent{
		Type:      "session.disconnected",
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		SessionID: copied.ID,
		Label:     copied.Label,
	})
	return copied, true
}

// UnregisterClient removes the session owned by the given client connection.
// Used by the IPC server's disconnect hook.
func (r *Registry) UnregisterClient(clientID string) (Session, bool) {
	r.mu.RLock()
	sessionID, ok := r.byClient[clientID]
	r.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	return r.Unregister(sessionID)
}

// UpdateStatus mutates a session's status in place. The question title is
// retained only while the session is waiting. An unknown session ID is a
// caller bug and returns an error.
func (r *Registry) UpdateStatus(sessionID string, status Status, questionTitle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}

	s.Status = status
	if status == StatusWaiting {
		s.QuestionTitle = questionTitle
	} else {
		s.QuestionTitle = ""
	}
	return nil
}

// Get returns a copy of the session with the given ID.
func (r *Registry) Get(sessionID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// GetByClient returns a copy of the session owned by the given client
// connection.
func (r *Registry) GetByClient(clientID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessionID, ok := r.byClient[clientID]
	if !ok {
		return Session{}, false
	}
	s, ok := r.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// List returns copies of all active sessions ordered by connection time.
func (r *Registry) List() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// Count returns the number of active sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) emit(event types.Event) {
	if r.events != nil {
		r.events.Emit(event)
	}
}
