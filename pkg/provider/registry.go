package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/kart-io/deliverycore/pkg/logger"
)

// Registry manages named provider instances. Like the breaker registry it is
// an explicit object with no hidden package state, so tests can construct a
// fresh one per case.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	logger    logger.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(log logger.Logger) *Registry {
	if log == nil {
		log = logger.Discard
	}
	return &Registry{
		providers: make(map[string]Provider),
		logger:    log,
	}
}

// Register adds a provider under its own name.
func (r *Registry) Register(p Provider) error {
	if p == nil {
		return fmt.Errorf("provider cannot be nil")
	}
	name := p.Name()
	if name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.providers[name] = p
	r.logger.Info("Provider registered", "provider", name)
	return nil
}

// Resolve returns the provider registered under name.
func (r *Registry) Resolve(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not registered", name)
	}
	return p, nil
}

// Has reports whether a provider is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[name]
	return ok
}

// Names returns the names of all registered providers.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// ConnectAll connects every registered provider, returning the first error.
func (r *Registry) ConnectAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, p := range r.providers {
		if err := p.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect provider %q: %w", name, err)
		}
	}
	return nil
}

// Close disconnects every registered provider and clears the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for name, p := range r.providers {
		if err := p.Disconnect(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to disconnect provider %q: %w", name, err)
		}
	}
	r.providers = make(map[string]Provider)
	return firstErr
}
