package device

import "errors"

// Domain errors for the device package.
//
// The register map never fails; out-of-range or unmapped addresses degrade
// to zero reads and ignored writes. The handler's unsupported-operation
// error is the only failure the device can report to a remote peer:
//
//	if errors.Is(err, device.ErrUnsupportedOperation) {
//	    // answer with an Illegal Function exception
//	}
var (
	// ErrUnsupportedOperation is returned by Handler.Handle for any request
	// kind other than read-holding, write-single and write-multiple.
	ErrUnsupportedOperation = errors.New("device: operation not supported by simulator")
)
