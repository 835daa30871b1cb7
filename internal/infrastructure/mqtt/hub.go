package mqtt

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultListenerBuffer is the channel size used when Listen is given none.
const DefaultListenerBuffer = 256

// Message is one frame received from the broker.
type Message struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

// Filter selects the messages a listener receives. Filters run on the
// delivery goroutine and must not block.
type Filter func(Message) bool

// Listener is one consumer's view of the hub. Messages that pass its filter
// are queued on C; when C is full the message is dropped for this
// listener only.
type Listener struct {
	C <-chan Message

	ch      chan Message
	filter  Filter
	hub     *Hub
	dropped atomic.Uint64
	once    sync.Once
}

// Dropped returns how many messages this listener lost to a full buffer.
func (l *Listener) Dropped() uint64 {
	return l.dropped.Load()
}

// Close detaches the listener from its hub and closes C. It is safe to
// call more than once.
func (l *Listener) Close() {
	l.once.Do(func() {
		l.hub.remove(l)
		close(l.ch)
	})
}

// Hub fans every inbound message out to the listeners whose filter accepts
// it. Delivery never blocks the caller of Deliver.
type Hub struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
	buffer    int
	onDrop    func(Message)
	onPanic   func(any)
}

// NewHub creates a hub whose listeners default to buffer queued messages.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultListenerBuffer
	}
	return &Hub{
		listeners: make(map[*Listener]struct{}),
		buffer:    buffer,
	}
}

// SetDropHandler installs a callback invoked, on the delivery goroutine,
// whenever a message is dropped for a slow listener.
func (h *Hub) SetDropHandler(fn func(Message)) {
	h.mu.Lock()
	h.onDrop = fn
	h.mu.Unlock()
}

// SetPanicHandler installs a callback invoked when a filter panics. The
// message is then not delivered to that listener.
func (h *Hub) SetPanicHandler(fn func(any)) {
	h.mu.Lock()
	h.onPanic = fn
	h.mu.Unlock()
}

// Listen registers a listener. buffer <= 0 uses the hub default; a nil
// filter accepts everything.
func (h *Hub) Listen(buffer int, filter Filter) *Listener {
	if buffer <= 0 {
		buffer = h.buffer
	}
	ch := make(chan Message, buffer)
	l := &Listener{C: ch, ch: ch, filter: filter, hub: h}

	h.mu.Lock()
	h.listeners[l] = struct{}{}
	h.mu.Unlock()
	return l
}

// Len returns the number of attached listeners.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Deliver offers msg to every listener.
func (h *Hub) Deliver(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for l := range h.listeners {
		if !h.accepts(l, msg) {
			continue
		}
		select {
		case l.ch <- msg:
		default:
			l.dropped.Add(1)
			if h.onDrop != nil {
				h.onDrop(msg)
			}
		}
	}
}

func (h *Hub) accepts(l *Listener, msg Message) (ok bool) {
	if l.filter == nil {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
			if h.onPanic != nil {
				h.onPanic(r)
			}
		}
	}()
	return l.filter(msg)
}

func (h *Hub) remove(l *Listener) {
	h.mu.Lock()
	delete(h.listeners, l)
	h.mu.Unlock()
}
