package dtu

import (
	"time"

	"github.com/nerrad567/dtu-hub/internal/device"
)

// Sink receives every twin update produced by the ingest loop. Ingested
// is called on the ingest goroutine, so implementations must not block for
// long.
type Sink interface {
	Ingested(upd device.Update)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(upd device.Update)

// Ingested calls f.
func (f SinkFunc) Ingested(upd device.Update) { f(upd) }

// Request outcomes reported to an Observer.
const (
	OutcomeSuccess     = "success"
	OutcomeTimeout     = "timeout"
	OutcomeRejected    = "rejected"
	OutcomeMalformed   = "malformed"
	OutcomeUnavailable = "unavailable"
	OutcomeCancelled   = "cancelled"
)

// Observer is told about requests and ingested frames. The metrics package
// provides the Prometheus implementation.
type Observer interface {
	RequestStarted(deviceType device.DeviceType)
	RequestFinished(deviceType device.DeviceType, outcome string, took time.Duration)
	FrameRecognized(deviceType device.DeviceType)
	FrameUnrecognized()
	TwinCount(n int)
}

type noopObserver struct{}

func (noopObserver) RequestStarted(device.DeviceType)                         {}
func (noopObserver) RequestFinished(device.DeviceType, string, time.Duration) {}
func (noopObserver) FrameRecognized(device.DeviceType)                        {}
func (noopObserver) FrameUnrecognized()                                       {}
func (noopObserver) TwinCount(int)                                            {}

// Logger is the subset of logging.Logger the service uses.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
