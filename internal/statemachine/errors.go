package statemachine

import "errors"

// Domain errors for the statemachine package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, statemachine.ErrHandlerFailed) {
//	    // a state handler or guard failed during dispatch
//	}
var (
	// ErrInvalidDelta is returned when EvaluateAndDispatch receives a
	// negative or non-numeric time delta.
	ErrInvalidDelta = errors.New("statemachine: invalid time delta")

	// ErrHandlerFailed wraps a failure raised by a state handler or a
	// transition guard during dispatch. The machine may be in an
	// inconsistent state and must not continue cycling.
	ErrHandlerFailed = errors.New("statemachine: handler failed")

	// ErrUnknownState is returned when a transition or handler references
	// a state that was never registered.
	ErrUnknownState = errors.New("statemachine: unknown state")

	// ErrDuplicateHandler is returned when two registrations target the
	// same (state, event) slot.
	ErrDuplicateHandler = errors.New("statemachine: duplicate handler")

	// ErrNilGuard is returned when a transition is registered without a
	// guard predicate.
	ErrNilGuard = errors.New("statemachine: nil guard")

	// ErrNoInitialState is returned when a machine is built without an
	// initial state.
	ErrNoInitialState = errors.New("statemachine: no initial state")
)
