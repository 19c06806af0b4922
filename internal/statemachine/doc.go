// Package statemachine provides the cycle-driven finite-state machine
// that expresses simulated device behaviour.
//
// A Machine holds exactly one current state and a table of guarded
// transitions. It is advanced in discrete cycles by EvaluateAndDispatch,
// which receives the simulated time elapsed since the previous cycle.
// The machine performs no I/O and keeps no clock of its own: given the
// same sequence of deltas and the same external parameter writes between
// cycles, a machine replays the same transitions and events every time.
//
// # Cycle contract
//
// Per cycle, at most one transition fires. Guards for the current state
// are evaluated in registration order and the first returning true wins;
// the rest are not evaluated that cycle. Whether or not a transition
// fired, exactly one in_state event closes the cycle. The very first
// cycle opens with on_entry for the initial state.
//
// # Construction
//
// Machines are assembled by a Builder. Handlers can be registered as
// per-state bundles, as individually bound functions, or wholesale
// through a model's HandlerSet. All three collapse into one validated
// (state, event) table:
//
//	m, err := statemachine.NewBuilder("idle").
//	    AddState("idle", statemachine.Handlers{OnEntry: d.enterIdle}).
//	    InState("heating", d.heat).
//	    Transition("idle", "heating", d.wantsHeat).
//	    Build()
//
// Failures raised by guards or handlers wrap ErrHandlerFailed and abort
// the cycle; the caller must stop cycling a failed machine.
package statemachine
