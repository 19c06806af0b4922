package device

import "errors"

// Sentinel errors for device operations.
var (
	// ErrUnknownParameter indicates a read or write named a parameter the
	// device does not expose.
	ErrUnknownParameter = errors.New("device: unknown parameter")

	// ErrUnknownCommand indicates a call named a command the device does
	// not expose.
	ErrUnknownCommand = errors.New("device: unknown command")

	// ErrValidation indicates a parameter write was rejected by the
	// parameter's validator. The stored value is unchanged.
	ErrValidation = errors.New("device: validation failed")

	// ErrDuplicateParameter indicates a parameter name was registered twice.
	ErrDuplicateParameter = errors.New("device: duplicate parameter")

	// ErrDuplicateCommand indicates a command name was registered twice.
	ErrDuplicateCommand = errors.New("device: duplicate command")

	// ErrNilMachine indicates a device was constructed without a state machine.
	ErrNilMachine = errors.New("device: nil state machine")

	// ErrEmptyName indicates a device, parameter or command was registered
	// with an empty name.
	ErrEmptyName = errors.New("device: empty name")
)
