package call

import (
	"errors"
	"log"
	"sync"
)

var ErrNotFound = errors.New("call not found")

// Registry is the sole authority mapping call connection ids to sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create inserts a new session in its initial state. A duplicate id is logged
// and overwritten with a fresh session: the provider retries webhook delivery
// and a restarted process may race its own recovery, so rejecting the event
// would strand the call.
func (r *Registry) Create(callID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[callID]; ok {
		log.Printf("call %s already registered, overwriting with fresh session", callID)
		r.dropLocked(callID)
	}
	s := newSession(callID)
	r.sessions[callID] = s
	r.order = append(r.order, callID)
	return s
}

// Get is a pure lookup.
func (r *Registry) Get(callID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[callID]
	return s, ok
}

// GetOrRecover returns the session for callID, synthesizing a fresh one when
// it is missing. Recovery loses the prior in-memory history (the transcript
// store still has it) but keeps the call alive across a process restart.
func (r *Registry) GetOrRecover(callID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[callID]; ok {
		return s
	}
	log.Printf("unknown call connection %s, recreating session", callID)
	s := newSession(callID)
	r.sessions[callID] = s
	r.order = append(r.order, callID)
	return s
}

// Remove deletes the session on disconnect. Removing an absent id is a no-op
// so duplicate CallDisconnected deliveries are safe.
func (r *Registry) Remove(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropLocked(callID)
}

// Latest returns the most recently created live session. Supervisor input
// that names no call id falls back to this.
func (r *Registry) Latest() (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.order) == 0 {
		return nil, false
	}
	s, ok := r.sessions[r.order[len(r.order)-1]]
	return s, ok
}

// ActiveCount reports how many calls are currently registered.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) dropLocked(callID string) {
	if _, ok := r.sessions[callID]; !ok {
		return
	}
	delete(r.sessions, callID)
	for i := len(r.order) - 1; i >= 0; i-- {
		if r.order[i] == callID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
