package statemachine

import (
	"errors"
	"fmt"
)

// HandlerSet is implemented by device models that declare their complete
// handler table in one place. Bind() expands the returned map through the
// same validated registration path as the other construction styles, so a
// model-supplied table is checked at build time rather than discovered by
// name at runtime.
type HandlerSet interface {
	// StateHandlers returns the full per-state handler table.
	StateHandlers() map[State]Handlers
}

// Builder assembles a Machine from state, handler and transition
// registrations. All three registration styles (per-state Handlers
// bundles, individually bound functions, and a model's HandlerSet) feed
// the same internal table; the finished Machine does not know which style
// was used.
//
// Registration problems are collected and reported together by Build().
// Builder is not safe for concurrent use; build machines before sharing.
type Builder struct {
	initial     State
	states      map[State]bool
	stateOrder  []State
	handlers    map[handlerKey]Handler
	transitions map[State][]Transition
	errs        []error
}

// NewBuilder creates a Builder whose machine starts in the given state.
// The initial state is registered implicitly.
func NewBuilder(initial State) *Builder {
	b := &Builder{
		initial:     initial,
		states:      make(map[State]bool),
		handlers:    make(map[handlerKey]Handler),
		transitions: make(map[State][]Transition),
	}
	if initial == "" {
		b.errs = append(b.errs, ErrNoInitialState)
		return b
	}
	b.addState(initial)
	return b
}

// AddState registers a state together with its optional handler bundle.
// Registering the same state twice is allowed as long as the handler
// slots do not collide.
func (b *Builder) AddState(name State, h Handlers) *Builder {
	b.addState(name)
	b.setHandler(name, EventEntry, h.OnEntry)
	b.setHandler(name, EventExit, h.OnExit)
	b.setHandler(name, EventInState, h.InState)
	return b
}

// OnEntry binds an entry handler to a state, registering the state if
// needed.
func (b *Builder) OnEntry(name State, h Handler) *Builder {
	b.addState(name)
	b.setHandler(name, EventEntry, h)
	return b
}

// OnExit binds an exit handler to a state, registering the state if
// needed.
func (b *Builder) OnExit(name State, h Handler) *Builder {
	b.addState(name)
	b.setHandler(name, EventExit, h)
	return b
}

// InState binds a per-cycle handler to a state, registering the state if
// needed.
func (b *Builder) InState(name State, h Handler) *Builder {
	b.addState(name)
	b.setHandler(name, EventInState, h)
	return b
}

// Bind registers every state and handler declared by a HandlerSet.
// Collisions with previously bound handlers are reported by Build().
func (b *Builder) Bind(set HandlerSet) *Builder {
	for name, h := range set.StateHandlers() {
		b.AddState(name, h)
	}
	return b
}

// Transition registers a guarded edge. Transitions out of the same state
// are evaluated in the order they were registered here; the first guard
// returning true wins the cycle.
func (b *Builder) Transition(from, to State, guard Guard) *Builder {
	if guard == nil {
		b.errs = append(b.errs, fmt.Errorf("%w: %q -> %q", ErrNilGuard, from, to))
		return b
	}
	b.transitions[from] = append(b.transitions[from], Transition{From: from, To: to, Guard: guard})
	return b
}

// Build validates the accumulated registrations and returns the Machine.
//
// Validation checks:
//   - an initial state was given
//   - every transition endpoint names a registered state
//   - no (state, event) handler slot was bound twice
//   - no transition was registered with a nil guard
//
// Returns:
//   - *Machine: ready to cycle, positioned in the initial state
//   - error: all registration problems joined into one message
func (b *Builder) Build() (*Machine, error) {
	errs := b.errs

	for from, group := range b.transitions {
		if !b.states[from] {
			errs = append(errs, fmt.Errorf("%w: transition source %q", ErrUnknownState, from))
		}
		for _, tr := range group {
			if !b.states[tr.To] {
				errs = append(errs, fmt.Errorf("%w: transition target %q", ErrUnknownState, tr.To))
			}
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("statemachine: build failed: %w", errors.Join(errs...))
	}

	// Copy tables so later Builder reuse cannot mutate a built machine.
	handlers := make(map[handlerKey]Handler, len(b.handlers))
	for k, v := range b.handlers {
		handlers[k] = v
	}
	transitions := make(map[State][]Transition, len(b.transitions))
	for from, group := range b.transitions {
		transitions[from] = append([]Transition(nil), group...)
	}
	states := make(map[State]bool, len(b.states))
	for s := range b.states {
		states[s] = true
	}

	return &Machine{
		initial:     b.initial,
		current:     b.initial,
		states:      states,
		handlers:    handlers,
		transitions: transitions,
	}, nil
}

func (b *Builder) addState(name State) {
	if name == "" {
		b.errs = append(b.errs, fmt.Errorf("%w: empty state name", ErrUnknownState))
		return
	}
	if !b.states[name] {
		b.states[name] = true
		b.stateOrder = append(b.stateOrder, name)
	}
}

func (b *Builder) setHandler(name State, kind EventKind, h Handler) {
	if h == nil {
		return
	}
	key := handlerKey{state: name, kind: kind}
	if _, exists := b.handlers[key]; exists {
		b.errs = append(b.errs, fmt.Errorf("%w: %s for state %q", ErrDuplicateHandler, kind, name))
		return
	}
	b.handlers[key] = h
}
