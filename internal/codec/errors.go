package codec

import "errors"

// Domain-specific errors for codec operations.
var (
	// ErrUnsupportedDeviceType is returned when no adapter serves a device type.
	ErrUnsupportedDeviceType = errors.New("codec: unsupported device type")

	// ErrUnsupportedAction is returned when an adapter has no encoding for an action.
	ErrUnsupportedAction = errors.New("codec: unsupported action")

	// ErrMalformedFrame is returned when a frame fails length, marker or
	// checksum validation. Pairing and recognition turn it into false.
	ErrMalformedFrame = errors.New("codec: malformed frame")

	// ErrInvalidPhysicalID is returned when a request's physical id cannot
	// be encoded as a bus address.
	ErrInvalidPhysicalID = errors.New("codec: invalid physical id")

	// ErrDuplicateAdapter is returned when two adapters claim the same device type.
	ErrDuplicateAdapter = errors.New("codec: duplicate adapter for device type")
)
