package wweb

import (
	"sync"

	"relaybot/internal/domain"
)

// Registry is the single-slot holder for the process's active web session.
// Replacement is last-writer-wins: SetActive never closes what it replaces,
// and whoever sets nil is responsible for prior cleanup. Session activation
// is an operational event (login/gateway commands), so no stronger ordering
// guarantee is provided.
type Registry struct {
	mu     sync.Mutex
	active domain.ActiveSession
}

func NewRegistry() *Registry {
	return &Registry{}
}

// SetActive replaces the slot unconditionally. Pass nil to clear it.
func (r *Registry) SetActive(s domain.ActiveSession) {
	r.mu.Lock()
	r.active = s
	r.mu.Unlock()
}

// Active returns the current holder, or nil when no session is registered.
func (r *Registry) Active() domain.ActiveSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}
