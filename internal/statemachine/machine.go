package statemachine

import (
	"fmt"
	"math"
)

// State identifies a state within a machine. States are unique per machine.
type State string

// EventKind classifies the three events a machine dispatches.
type EventKind int

const (
	// EventEntry fires when a state is entered (including the initial
	// state on the machine's very first cycle).
	EventEntry EventKind = iota

	// EventExit fires when a state is left.
	EventExit

	// EventInState fires exactly once per cycle, after any transition,
	// for the state the machine ends the cycle in.
	EventInState
)

// String returns the string representation of an EventKind.
func (k EventKind) String() string {
	switch k {
	case EventEntry:
		return "on_entry"
	case EventExit:
		return "on_exit"
	case EventInState:
		return "in_state"
	default:
		return "unknown"
	}
}

// Handler is a state event callback. The delta is the simulated time
// elapsed since the previous cycle, in seconds.
type Handler func(delta float64) error

// Guard decides whether a transition is eligible to fire this cycle.
// A guard returning an error aborts the cycle; the machine treats it
// the same as a failing handler.
type Guard func(delta float64) (bool, error)

// Handlers bundles the optional event callbacks for one state.
// Any field may be nil; missing handlers are simply skipped.
type Handlers struct {
	OnEntry Handler
	OnExit  Handler
	InState Handler
}

// Transition is a guarded edge between two registered states.
type Transition struct {
	From  State
	To    State
	Guard Guard
}

// Event describes one dispatched state event, delivered to the machine's
// observer in dispatch order.
type Event struct {
	Kind  EventKind
	State State
}

// Observer receives every dispatched event. Observers run synchronously
// inside the cycle and must not block.
type Observer func(Event)

// handlerKey addresses one slot in the (state, event) handler table.
type handlerKey struct {
	state State
	kind  EventKind
}

// Machine is a deterministic finite-state machine driven by discrete
// cycles. All behaviour is expressed through the handler table built by a
// Builder; the engine itself performs no I/O.
//
// Machines are not self-locking. The owning Device serialises access; see
// the device package for the locking contract.
//
// Per cycle, EvaluateAndDispatch guarantees:
//   - at most one transition fires (first true guard in registration order)
//   - exactly one in_state event is dispatched, always last
//   - handler and guard failures abort the cycle and propagate
type Machine struct {
	initial     State
	current     State
	started     bool
	states      map[State]bool
	handlers    map[handlerKey]Handler
	transitions map[State][]Transition
	observer    Observer
}

// Current returns the machine's current state.
func (m *Machine) Current() State {
	return m.current
}

// Started reports whether the machine has processed its first cycle.
func (m *Machine) Started() bool {
	return m.started
}

// SetObserver installs an event observer. Pass nil to remove it.
// Must not be called concurrently with EvaluateAndDispatch.
func (m *Machine) SetObserver(fn Observer) {
	m.observer = fn
}

// EvaluateAndDispatch advances the machine by one cycle.
//
// The sequence is:
//  1. On the first invocation ever, dispatch on_entry for the initial state.
//  2. Evaluate the current state's outgoing guards in registration order.
//  3. If one returns true, dispatch on_exit(old), switch, dispatch
//     on_entry(new); remaining guards are not evaluated this cycle.
//  4. Dispatch in_state for the (possibly new) current state.
//
// Parameters:
//   - delta: simulated seconds elapsed since the previous cycle, >= 0
//
// Returns:
//   - error: ErrInvalidDelta for a bad delta, or a wrapped
//     ErrHandlerFailed if a guard or handler fails. After a handler
//     failure the machine must not be cycled again.
func (m *Machine) EvaluateAndDispatch(delta float64) error {
	if delta < 0 || math.IsNaN(delta) {
		return fmt.Errorf("%w: %v", ErrInvalidDelta, delta)
	}

	// First cycle: enter the initial state before anything else.
	if !m.started {
		m.started = true
		if err := m.dispatch(EventEntry, m.current, delta); err != nil {
			return err
		}
	}

	for _, tr := range m.transitions[m.current] {
		eligible, err := tr.Guard(delta)
		if err != nil {
			return fmt.Errorf("%w: guard %q -> %q: %w", ErrHandlerFailed, tr.From, tr.To, err)
		}
		if !eligible {
			continue
		}

		if err := m.dispatch(EventExit, m.current, delta); err != nil {
			return err
		}
		m.current = tr.To
		if err := m.dispatch(EventEntry, m.current, delta); err != nil {
			return err
		}
		break
	}

	return m.dispatch(EventInState, m.current, delta)
}

// dispatch runs the handler for (state, kind) if one is registered, then
// notifies the observer. Events without a handler are still observable.
func (m *Machine) dispatch(kind EventKind, state State, delta float64) error {
	if h := m.handlers[handlerKey{state: state, kind: kind}]; h != nil {
		if err := h(delta); err != nil {
			return fmt.Errorf("%w: %s handler for state %q: %w", ErrHandlerFailed, kind, state, err)
		}
	}
	if m.observer != nil {
		m.observer(Event{Kind: kind, State: state})
	}
	return nil
}
