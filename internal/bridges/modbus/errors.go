package modbus

import "errors"

// Domain errors for the Modbus bridge package.
var (
	// ErrNotConnected is returned when the client is used before Dial or
	// after Close.
	ErrNotConnected = errors.New("modbus: not connected")

	// ErrPortOpen is returned when the serial port cannot be opened.
	ErrPortOpen = errors.New("modbus: opening serial port failed")

	// ErrShortResponse is returned when a response carries fewer bytes than
	// the request implies.
	ErrShortResponse = errors.New("modbus: short response")

	// ErrInvalidCount is returned when a register count is outside the
	// protocol limits.
	ErrInvalidCount = errors.New("modbus: invalid register count")

	// ErrInvalidSetpoint is returned when a setpoint command cannot be
	// represented in the scaled register.
	ErrInvalidSetpoint = errors.New("modbus: invalid setpoint")
)
