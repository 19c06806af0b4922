package device

import (
	"fmt"
	"sync"

	"github.com/nerrad567/gray-sim-core/internal/statemachine"
)

// Validator checks a proposed parameter value before it is stored.
// Returning an error rejects the write and leaves the stored value unchanged.
type Validator func(value float64) error

// ChangeHook is invoked after a parameter write changed the stored value.
// It runs under the device lock, so it may mutate other parameters through
// SetValue but must not block or touch the network.
type ChangeHook func(old, new float64)

// Command is a named side effect exposed to protocol adapters. It runs under
// the device lock with the model quiescent between cycles.
type Command func(args []float64) (float64, error)

// Parameter describes one externally visible value of a device model.
// Validate and OnChange are optional.
type Parameter struct {
	Name     string
	Initial  float64
	Validate Validator
	OnChange ChangeHook
}

type param struct {
	value    float64
	validate Validator
	onChange ChangeHook
}

// Device couples a state machine with a parameter store behind a single
// mutex. Get, Set, Call and Process serialise against each other, so
// adapters on any goroutine observe the model only between cycles and
// never mid-transition.
type Device struct {
	name  string
	model string

	mu         sync.Mutex
	machine    *statemachine.Machine
	params     map[string]*param
	paramOrder []string
	commands   map[string]Command
	connected  bool
}

// New creates a device around the given state machine. The device starts
// connected with no parameters or commands registered.
func New(name, model string, m *statemachine.Machine) (*Device, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: device name", ErrEmptyName)
	}
	if m == nil {
		return nil, ErrNilMachine
	}
	return &Device{
		name:      name,
		model:     model,
		machine:   m,
		params:    make(map[string]*param),
		commands:  make(map[string]Command),
		connected: true,
	}, nil
}

// Name returns the device's instance name.
func (d *Device) Name() string { return d.name }

// Model returns the device's model identifier.
func (d *Device) Model() string { return d.model }

// AddParameter registers a parameter. Registration happens during device
// construction, before the engine starts processing cycles.
func (d *Device) AddParameter(p Parameter) error {
	if p.Name == "" {
		return fmt.Errorf("%w: parameter", ErrEmptyName)
	}
	if _, exists := d.params[p.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateParameter, p.Name)
	}
	d.params[p.Name] = &param{
		value:    p.Initial,
		validate: p.Validate,
		onChange: p.OnChange,
	}
	d.paramOrder = append(d.paramOrder, p.Name)
	return nil
}

// AddCommand registers a named command.
func (d *Device) AddCommand(name string, fn Command) error {
	if name == "" {
		return fmt.Errorf("%w: command", ErrEmptyName)
	}
	if _, exists := d.commands[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateCommand, name)
	}
	d.commands[name] = fn
	return nil
}

// ParameterNames returns parameter names in registration order.
func (d *Device) ParameterNames() []string {
	names := make([]string, len(d.paramOrder))
	copy(names, d.paramOrder)
	return names
}

// Get returns the current value of a parameter.
func (d *Device) Get(name string) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.params[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	return p.value, nil
}

// Set validates and stores a new parameter value. The validate, store and
// change-hook sequence is atomic with respect to Get, Call and Process. A
// rejected write leaves the stored value untouched and fires no hook.
func (d *Device) Set(name string, value float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setLocked(name, value, true)
}

func (d *Device) setLocked(name string, value float64, notify bool) error {
	p, ok := d.params[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	if p.validate != nil {
		if err := p.validate(value); err != nil {
			return fmt.Errorf("%w: %q: %w", ErrValidation, name, err)
		}
	}
	old := p.value
	p.value = value
	if notify && p.onChange != nil && old != value {
		p.onChange(old, value)
	}
	return nil
}

// Call invokes a registered command under the device lock.
func (d *Device) Call(name string, args ...float64) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	fn, ok := d.commands[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	return fn(args)
}

// Process advances the device's state machine by delta seconds of
// simulated time. Exactly one call per engine cycle.
func (d *Device) Process(delta float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.machine.EvaluateAndDispatch(delta)
}

// State returns the machine's current state.
func (d *Device) State() statemachine.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.machine.Current()
}

// Snapshot returns a copy of every parameter value, taken atomically
// between cycles.
func (d *Device) Snapshot() map[string]float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]float64, len(d.params))
	for name, p := range d.params {
		out[name] = p.value
	}
	return out
}

// Connected reports whether protocol adapters should answer for this
// device. Disconnecting a device silences its adapters while the
// simulation keeps running.
func (d *Device) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// SetConnected flips the device's adapter visibility.
func (d *Device) SetConnected(connected bool) {
	d.mu.Lock()
	d.connected = connected
	d.mu.Unlock()
}

// ApplySetup overrides initial parameter values from configuration.
// Writes are validated but fire no change hooks, since the device has not
// started yet.
func (d *Device) ApplySetup(values map[string]float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for name, v := range values {
		if err := d.setLocked(name, v, false); err != nil {
			return err
		}
	}
	return nil
}

// SetObserver installs an observer on the underlying state machine.
// Install before the engine starts; the observer runs inside Process
// under the device lock.
func (d *Device) SetObserver(fn statemachine.Observer) {
	d.mu.Lock()
	d.machine.SetObserver(fn)
	d.mu.Unlock()
}

// Value reads a parameter without taking the device lock. It exists for
// state handlers and guards, which already run under the lock via
// Process. It panics on an unknown name, which is a registration bug.
func (d *Device) Value(name string) float64 {
	p, ok := d.params[name]
	if !ok {
		panic(fmt.Sprintf("device %q: no parameter %q", d.name, name))
	}
	return p.value
}

// SetValue writes a parameter without taking the device lock and without
// running the validator or change hook. Handler context only: this is the
// model mutating its own state, not an external write.
func (d *Device) SetValue(name string, value float64) {
	p, ok := d.params[name]
	if !ok {
		panic(fmt.Sprintf("device %q: no parameter %q", d.name, name))
	}
	p.value = value
}
