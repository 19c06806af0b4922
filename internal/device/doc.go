// Package device couples a state machine with a thread-safe parameter
// store to form one simulated hardware device.
//
// A Device owns a single mutex. Adapter-facing operations (Get, Set,
// Call) and the engine's Process all take it, so concurrent protocol
// traffic interleaves with simulation cycles instead of racing them.
// State handlers run inside Process and use the unlocked Value and
// SetValue accessors; taking the lock there would deadlock.
package device
