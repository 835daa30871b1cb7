package correlation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/dtu-hub/internal/codec"
	"github.com/nerrad567/dtu-hub/internal/infrastructure/mqtt"
)

// Transport is what the engine needs from the broker connection.
// *mqtt.Client satisfies it.
type Transport interface {
	IsConnected() bool
	Publish(topic string, payload []byte, qos byte, retained bool) error
	// Subscribe must be idempotent.
	Subscribe(topic string, qos byte) error
	Listen(buffer int, filter mqtt.Filter) *mqtt.Listener
}

// PairFunc decides whether response answers request. It runs on the
// transport's delivery goroutine.
type PairFunc func(request, response []byte, pc codec.PairContext) bool

// Exchange describes one request/response round trip.
type Exchange struct {
	RequestTopic  string
	ResponseTopic string
	Frame         []byte
	Pair          PairFunc
	Timeout       time.Duration
	QoS           byte

	// LockKey serialises exchanges that share it, normally the DTU serial
	// number. Empty means no serialisation.
	LockKey string
}

// Result is a resolved exchange.
type Result struct {
	Response   []byte
	SentAt     time.Time
	ReceivedAt time.Time
}

// Engine turns publish/subscribe messaging into blocking calls.
//
// Each call owns a hub listener whose filter applies the call's pairing
// predicate, so a frame accepted by one call never completes another.
// Response topics stay subscribed after the call returns.
type Engine struct {
	transport Transport

	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewEngine creates an engine over transport.
func NewEngine(transport Transport) *Engine {
	return &Engine{
		transport: transport,
		locks:     make(map[string]chan struct{}),
	}
}

// lockFor returns the semaphore for key, creating it on first use.
func (e *Engine) lockFor(key string) chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.locks[key]
	if !ok {
		l = make(chan struct{}, 1)
		e.locks[key] = l
	}
	return l
}

// Do publishes ex.Frame and waits for the first frame on ex.ResponseTopic
// that ex.Pair accepts.
//
// Waiting for another exchange with the same LockKey does not count
// against ex.Timeout, but is abandoned when ctx ends. Errors:
//   - ErrTimeout when nothing matched within ex.Timeout
//   - ErrTransportUnavailable when the transport is disconnected
//   - ctx.Err() when the caller gives up first
func (e *Engine) Do(ctx context.Context, ex Exchange) (Result, error) {
	if ex.RequestTopic == "" || ex.ResponseTopic == "" || len(ex.Frame) == 0 || ex.Pair == nil || ex.Timeout <= 0 {
		return Result{}, ErrInvalidExchange
	}

	if ex.LockKey != "" {
		lock := e.lockFor(ex.LockKey)
		select {
		case lock <- struct{}{}:
			defer func() { <-lock }()
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}

	if !e.transport.IsConnected() {
		return Result{}, fmt.Errorf("%w: %w", ErrTransportUnavailable, mqtt.ErrNotConnected)
	}

	sentAt := time.Now()
	pc := codec.PairContext{
		RequestTopic:  ex.RequestTopic,
		ResponseTopic: ex.ResponseTopic,
		SentAt:        sentAt,
	}
	// The first accepted frame resolves the call; later duplicates are
	// refused rather than overflowing the one-slot buffer.
	var matched atomic.Bool
	listener := e.transport.Listen(1, func(m mqtt.Message) bool {
		if matched.Load() || m.Topic != ex.ResponseTopic || !ex.Pair(ex.Frame, m.Payload, pc) {
			return false
		}
		return matched.CompareAndSwap(false, true)
	})
	defer listener.Close()

	if err := e.transport.Subscribe(ex.ResponseTopic, ex.QoS); err != nil {
		return Result{}, transportError("subscribe", err)
	}
	if err := e.transport.Publish(ex.RequestTopic, ex.Frame, ex.QoS, false); err != nil {
		return Result{}, transportError("publish", err)
	}

	timer := time.NewTimer(ex.Timeout)
	defer timer.Stop()

	select {
	case m := <-listener.C:
		return Result{Response: m.Payload, SentAt: sentAt, ReceivedAt: m.ReceivedAt}, nil
	case <-timer.C:
		return Result{}, fmt.Errorf("%w: %s after %v", ErrTimeout, ex.ResponseTopic, ex.Timeout)
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func transportError(op string, err error) error {
	if errors.Is(err, mqtt.ErrNotConnected) {
		return fmt.Errorf("%w: %s: %w", ErrTransportUnavailable, op, err)
	}
	return fmt.Errorf("correlation: %s: %w", op, err)
}
