package session

import "sync"

// Registry is the single source of truth for which calls are live. It is the
// only state shared across sessions; everything else is session-private.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create builds and registers a session for callSID. Exactly one concurrent
// caller wins; the rest get ErrDuplicateCall.
func (r *Registry) Create(callSID string, transport TransportConn, caller CallerIdentity, opts Options) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[callSID]; ok {
		return nil, ErrDuplicateCall
	}

	sess := newSession(callSID, transport, caller, opts)
	r.sessions[callSID] = sess
	return sess, nil
}

// Get returns the session for callSID, or nil if the call is not live.
func (r *Registry) Get(callSID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[callSID]
}

// Remove drops the registry entry. Idempotent.
func (r *Registry) Remove(callSID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, callSID)
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// All returns a snapshot of live sessions, for shutdown sweeps.
func (r *Registry) All() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess)
	}
	return out
}
