package breaker

import (
	"sync"

	"github.com/kart-io/deliverycore/pkg/logger"
)

// Registry is a keyed store of circuit breakers. It is an explicit object
// constructed once at process start and passed to every component that needs
// breaker lookup; there is no hidden package-level instance.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	logger   logger.Logger
}

// NewRegistry creates an empty breaker registry.
func NewRegistry(log logger.Logger) *Registry {
	if log == nil {
		log = logger.Discard
	}
	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
		logger:   log,
	}
}

// GetOrCreate returns the breaker registered under name, constructing one
// with the given config if absent. This is the only path by which concurrent
// callers share a breaker for the same logical target.
func (r *Registry) GetOrCreate(name string, config Config) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	cb = New(name, config, r.logger)
	r.breakers[name] = cb
	r.logger.Debug("Circuit breaker created", "name", name)
	return cb
}

// Get returns the breaker registered under name, if any.
func (r *Registry) Get(name string) (*CircuitBreaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cb, ok := r.breakers[name]
	return cb, ok
}

// Names returns the names of all registered breakers.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	return names
}

// AllStatus returns a snapshot of every registered breaker keyed by name.
func (r *Registry) AllStatus() map[string]Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	statuses := make(map[string]Status, len(r.breakers))
	for name, cb := range r.breakers {
		statuses[name] = cb.Status()
	}
	return statuses
}

// ResetAll forces every registered breaker back to CLOSED.
func (r *Registry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cb := range r.breakers {
		cb.Reset()
	}
}

// Clear removes all breakers from the registry. Intended for test isolation.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakers = make(map[string]*CircuitBreaker)
}
