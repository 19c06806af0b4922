package engine

import "errors"

// Sentinel errors for engine lifecycle and control operations.
var (
	// ErrAlreadyRunning indicates Run was called while the engine was
	// already running or paused.
	ErrAlreadyRunning = errors.New("engine: already running")

	// ErrNotRunning indicates a control operation that requires a running
	// engine was called while it was stopped.
	ErrNotRunning = errors.New("engine: not running")

	// ErrNotPaused indicates Resume was called while the engine was not
	// paused.
	ErrNotPaused = errors.New("engine: not paused")

	// ErrAlreadyPaused indicates Pause was called while already paused.
	ErrAlreadyPaused = errors.New("engine: already paused")

	// ErrInvalidSpeed indicates a speed factor outside (0, +inf).
	ErrInvalidSpeed = errors.New("engine: invalid speed")

	// ErrInvalidCycleDelay indicates a negative cycle delay.
	ErrInvalidCycleDelay = errors.New("engine: invalid cycle delay")

	// ErrDuplicateDevice indicates two devices registered under one name.
	ErrDuplicateDevice = errors.New("engine: duplicate device")

	// ErrUnknownDevice indicates a lookup for a device the engine does not
	// manage.
	ErrUnknownDevice = errors.New("engine: unknown device")

	// ErrNotStopped indicates device registration was attempted after the
	// engine started.
	ErrNotStopped = errors.New("engine: not stopped")

	// ErrDeviceFailed wraps a fatal error from a device's cycle processing.
	ErrDeviceFailed = errors.New("engine: device failed")
)
