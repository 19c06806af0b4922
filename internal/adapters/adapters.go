// Package adapters defines the protocol adapter boundary. An adapter
// exposes one or more simulated devices over a transport (TCP stream,
// MQTT) and talks to them only through the locked device operations, so
// protocol traffic can never observe a device mid-cycle.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Sentinel errors for adapter lifecycle.
var (
	// ErrBind indicates an adapter could not claim its transport endpoint,
	// typically a port already in use.
	ErrBind = errors.New("adapters: bind failed")

	// ErrUnknownProtocol indicates a request for an unregistered adapter
	// factory.
	ErrUnknownProtocol = errors.New("adapters: unknown protocol")

	// ErrDuplicateProtocol indicates two factories registered one name.
	ErrDuplicateProtocol = errors.New("adapters: duplicate protocol")
)

// Adapter is a running protocol frontend. Start blocks until the context
// is cancelled or the transport fails; Stop asks it to drain in-flight
// requests and release the transport.
type Adapter interface {
	// Name identifies the adapter for logging and status reporting.
	Name() string

	// Start binds the transport and serves until ctx is cancelled.
	Start(ctx context.Context) error

	// Stop releases the transport. Safe to call after Start returns.
	Stop() error
}

// Registry maps protocol names to adapter factories. The zero value is
// not usable; call NewRegistry.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// Factory builds an adapter from protocol-specific configuration.
type Factory func() (Adapter, error)

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under the given protocol name.
func (r *Registry) Register(protocol string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[protocol]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateProtocol, protocol)
	}
	r.factories[protocol] = f
	return nil
}

// New builds an adapter for the named protocol.
func (r *Registry) New(protocol string) (Adapter, error) {
	r.mu.RLock()
	f, ok := r.factories[protocol]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProtocol, protocol)
	}
	return f()
}

// Protocols returns registered protocol names, sorted.
func (r *Registry) Protocols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
