package correlation

import "errors"

var (
	// ErrTimeout is returned when no frame was accepted before the deadline.
	ErrTimeout = errors.New("correlation: no matching response before deadline")

	// ErrTransportUnavailable is returned when the request cannot be sent
	// because the transport is disconnected.
	ErrTransportUnavailable = errors.New("correlation: transport unavailable")

	// ErrInvalidExchange is returned for an exchange missing a topic,
	// a frame, a pairing predicate or a positive timeout.
	ErrInvalidExchange = errors.New("correlation: invalid exchange")
)
