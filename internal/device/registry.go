package device

import (
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ConnState is the liveness of a device derived from its twins.
type ConnState string

const (
	StateOnline  ConnState = "Online"
	StateOffline ConnState = "Offline"
	StateUnknown ConnState = "Unknown"
)

// Query filters twins. DTUSN is required; the other fields match anything
// when empty.
type Query struct {
	DTUSN      string
	DeviceType DeviceType
	PhysicalID string
}

func (q Query) matches(id Identity) bool {
	if id.DTUSN != q.DTUSN {
		return false
	}
	if q.DeviceType != "" && id.DeviceType != q.DeviceType {
		return false
	}
	if q.PhysicalID != "" && id.PhysicalID != q.PhysicalID {
		return false
	}
	return true
}

// Update describes the effect of one Ingest call.
type Update struct {
	Identity Identity
	Record   Record
	Created  bool
	Size     int
}

// Registry holds one Twin per identity seen on the telemetry stream.
// Twins are created on the first recognised frame and live for the
// lifetime of the process.
//
// All public methods are thread-safe. Reads return deep copies.
type Registry struct {
	twins  []*Twin            // creation order
	index  map[Identity]*Twin // lookup by structural identity
	mu     sync.RWMutex
	logger Logger
}

// NewRegistry creates an empty twin registry.
func NewRegistry() *Registry {
	return &Registry{
		index:  make(map[Identity]*Twin),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Ingest appends rec to the twin for id, creating the twin if needed, and
// evicts the oldest records until at most maxRecords remain.
func (r *Registry) Ingest(id Identity, rec Record, maxRecords int) (Update, error) {
	if maxRecords <= 0 {
		return Update{}, fmt.Errorf("%w: %d", ErrInvalidCap, maxRecords)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	twin, ok := r.index[id]
	if !ok {
		twin = &Twin{Identity: id}
		r.index[id] = twin
		r.twins = append(r.twins, twin)
		r.logger.Info("digital twin created",
			"name", id.Name,
			"dtu_sn", id.DTUSN,
			"device_type", id.DeviceType,
		)
	}

	twin.Records = append(twin.Records, rec)
	if over := len(twin.Records) - maxRecords; over > 0 {
		n := copy(twin.Records, twin.Records[over:])
		clear(twin.Records[n:])
		twin.Records = twin.Records[:n]
	}
	twin.LastReceivedAt = rec.ReceivedAt

	return Update{
		Identity: id,
		Record:   rec,
		Created:  !ok,
		Size:     len(twin.Records),
	}, nil
}

// Query returns every twin matching q in creation order.
func (r *Registry) Query(q Query) ([]Twin, error) {
	if q.DTUSN == "" {
		return nil, ErrInvalidQuery
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Twin, 0)
	for _, t := range r.twins {
		if q.matches(t.Identity) {
			out = append(out, *t.DeepCopy())
		}
	}
	return out, nil
}

// Get returns the twin with exactly this identity.
func (r *Registry) Get(id Identity) (*Twin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.index[id]
	if !ok {
		return nil, false
	}
	return t.DeepCopy(), true
}

// Count returns the number of twins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.twins)
}

// State reports Online when any twin matching q heard from its device
// within staleAfter of now, Offline when matching twins exist but all are
// stale, and Unknown when nothing matches.
func (r *Registry) State(q Query, staleAfter time.Duration, now time.Time) ConnState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state := StateUnknown
	for _, t := range r.twins {
		if !q.matches(t.Identity) {
			continue
		}
		if now.Sub(t.LastReceivedAt) <= staleAfter {
			return StateOnline
		}
		state = StateOffline
	}
	return state
}
