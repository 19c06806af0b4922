// Package devices holds the catalogue of built-in device models.
//
// A model is a named builder that assembles a device: its state machine,
// parameters and commands. Instances are created from configuration, so one
// model can back any number of named devices.
package devices

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/gray-sim-core/internal/device"
	"github.com/nerrad567/gray-sim-core/internal/infrastructure/config"
)

var (
	// ErrUnknownModel indicates a configured device referenced a model the
	// catalogue does not contain.
	ErrUnknownModel = errors.New("devices: unknown model")

	// ErrDuplicateModel indicates a model name was registered twice.
	ErrDuplicateModel = errors.New("devices: duplicate model")
)

// Builder assembles a device instance for a model.
type Builder func(name string) (*device.Device, error)

// Catalogue maps model names to builders.
type Catalogue struct {
	mu     sync.RWMutex
	models map[string]Builder
}

// NewCatalogue returns a catalogue pre-loaded with the built-in models.
func NewCatalogue() *Catalogue {
	c := &Catalogue{models: make(map[string]Builder)}

	// Built-in registration cannot collide.
	//nolint:errcheck
	c.Register("tempcontrol", newTempControl)
	//nolint:errcheck
	c.Register("chopper", newChopper)
	//nolint:errcheck
	c.Register("valve", newValve)

	return c
}

// Register adds a model to the catalogue.
func (c *Catalogue) Register(model string, b Builder) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.models[model]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateModel, model)
	}
	c.models[model] = b
	return nil
}

// Models returns the registered model names in sorted order.
func (c *Catalogue) Models() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.models))
	for name := range c.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build creates a device instance from its configuration and applies the
// configured setup overrides.
func (c *Catalogue) Build(cfg config.DeviceConfig) (*device.Device, error) {
	c.mu.RLock()
	builder, ok := c.models[cfg.Model]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, cfg.Model)
	}

	d, err := builder(cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("building device %q: %w", cfg.Name, err)
	}

	if len(cfg.Setup) > 0 {
		if err := d.ApplySetup(cfg.Setup); err != nil {
			return nil, fmt.Errorf("applying setup for %q: %w", cfg.Name, err)
		}
	}

	return d, nil
}
