package codec

import (
	"fmt"
	"time"

	"github.com/nerrad567/dtu-hub/internal/device"
)

// Recognition is an unsolicited frame that one adapter claimed.
type Recognition struct {
	Identity   device.Identity
	Record     device.Record
	MaxRecords int
	Adapter    Adapter
}

// Registry maps device types to adapters. It is built once at startup from
// an explicit list and is read-only afterwards.
type Registry struct {
	ordered []Adapter
	byType  map[device.DeviceType]Adapter
	now     func() time.Time
}

// NewRegistry builds a registry from adapters. Two adapters for the same
// device type is a wiring error.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{
		byType: make(map[device.DeviceType]Adapter, len(adapters)),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, a := range adapters {
		t := a.DeviceType()
		if _, dup := r.byType[t]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAdapter, t)
		}
		r.byType[t] = a
		r.ordered = append(r.ordered, a)
	}
	return r, nil
}

// Options selects behaviour of the built-in adapters.
type Options struct {
	ProbeStrictChecksum bool
}

// Default returns a registry holding every built-in adapter. Recognition
// tries them in the order probe, GPS Modbus, NMEA.
func Default(opts Options) *Registry {
	r, err := NewRegistry(
		NewProbeAdapter(WithStrictChecksum(opts.ProbeStrictChecksum)),
		NewGPSModbusAdapter(),
		NewNMEAAdapter(),
	)
	if err != nil {
		// The built-in list has one adapter per type.
		panic(err)
	}
	return r
}

// SetClock replaces the time source used to stamp recognised records.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// Resolve returns the adapter registered for exactly this device type.
func (r *Registry) Resolve(t device.DeviceType) (Adapter, error) {
	a, ok := r.byType[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDeviceType, t)
	}
	return a, nil
}

// Recognize offers an unsolicited frame to each adapter in registration
// order and returns the first claim.
func (r *Registry) Recognize(topic string, payload []byte) (Recognition, bool) {
	for _, a := range r.ordered {
		id, data, ok := a.TryRecognize(topic, payload)
		if !ok {
			continue
		}
		maxRecords := a.MaxRecords()
		if maxRecords <= 0 {
			maxRecords = DefaultMaxRecords
		}
		return Recognition{
			Identity:   id,
			Record:     device.Record{ReceivedAt: r.now(), Data: data},
			MaxRecords: maxRecords,
			Adapter:    a,
		}, true
	}
	return Recognition{}, false
}

// Adapters returns the registered adapters in registration order.
func (r *Registry) Adapters() []Adapter {
	return append([]Adapter(nil), r.ordered...)
}
