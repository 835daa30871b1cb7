package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrInvalidQuery) {
//	    // handle missing dtu_sn
//	}
var (
	// ErrInvalidDeviceType is returned when a device type tag is not recognised.
	ErrInvalidDeviceType = errors.New("device: invalid type")

	// ErrInvalidAction is returned when a request action is not recognised.
	ErrInvalidAction = errors.New("device: invalid request action")

	// ErrInvalidQuery is returned when a twin query lacks its dtu_sn.
	ErrInvalidQuery = errors.New("device: dtu_sn is required")

	// ErrInvalidCap is returned when a history cap is not positive.
	ErrInvalidCap = errors.New("device: max records must be positive")
)
