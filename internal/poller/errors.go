package poller

import "errors"

// Domain errors for the poller package.
var (
	// ErrSetpointOutOfRange is returned when a startup setpoint cannot be
	// represented in the scaled register.
	ErrSetpointOutOfRange = errors.New("poller: setpoint out of range")

	// ErrSinkUnavailable is returned by a sink whose backend is not connected.
	ErrSinkUnavailable = errors.New("poller: sink unavailable")
)
