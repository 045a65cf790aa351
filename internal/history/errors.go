package history

import "errors"

// Domain errors for the history package.
var (
	// ErrDeviceIDRequired is returned when a reading or query has no device ID.
	ErrDeviceIDRequired = errors.New("history: device id is required")

	// ErrInvalidLimit is returned for a negative query limit.
	ErrInvalidLimit = errors.New("history: limit must not be negative")

	// ErrInvalidRetention is returned when Prune is given a non-positive age.
	ErrInvalidRetention = errors.New("history: retention must be positive")
)
