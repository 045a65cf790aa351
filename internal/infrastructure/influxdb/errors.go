package influxdb

import "errors"

var (
	// ErrConnectionFailed wraps ping failures during Connect.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	// Callers treat it as "no sink", not as a failure.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
