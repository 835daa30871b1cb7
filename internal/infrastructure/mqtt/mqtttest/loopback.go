// Package mqtttest provides a brokerless stand-in for mqtt.Client.
package mqtttest

import (
	"sync"
	"time"

	"github.com/nerrad567/dtu-hub/internal/infrastructure/mqtt"
)

// Published is one recorded Publish call.
type Published struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
	At       time.Time
}

// Responder is invoked, on its own goroutine, for every publish. It plays
// the part of the devices on the far side of the broker.
type Responder func(l *Loopback, p Published)

// Loopback delivers published frames through a real mqtt.Hub without a
// broker. Subscriptions are recorded but do not filter delivery.
type Loopback struct {
	hub *mqtt.Hub

	mu        sync.Mutex
	connected bool
	published []Published
	subs      map[string]int
	responder Responder
}

// New creates a connected loopback transport.
func New() *Loopback {
	return &Loopback{
		hub:       mqtt.NewHub(64),
		connected: true,
		subs:      make(map[string]int),
	}
}

// Hub returns the hub inbound frames are delivered to.
func (l *Loopback) Hub() *mqtt.Hub { return l.hub }

// SetConnected switches the connection state.
func (l *Loopback) SetConnected(on bool) {
	l.mu.Lock()
	l.connected = on
	l.mu.Unlock()
}

// SetResponder installs the function that answers publishes.
func (l *Loopback) SetResponder(r Responder) {
	l.mu.Lock()
	l.responder = r
	l.mu.Unlock()
}

// IsConnected implements the transport contract.
func (l *Loopback) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// Publish records the frame and hands it to the responder.
func (l *Loopback) Publish(topic string, payload []byte, qos byte, retained bool) error {
	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return mqtt.ErrNotConnected
	}
	p := Published{Topic: topic, Payload: append([]byte(nil), payload...), QoS: qos, Retained: retained, At: time.Now()}
	l.published = append(l.published, p)
	r := l.responder
	l.mu.Unlock()

	if r != nil {
		go r(l, p)
	}
	return nil
}

// Subscribe records topic. Repeated calls are counted, not rejected.
func (l *Loopback) Subscribe(topic string, _ byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs[topic]++
	return nil
}

// Listen attaches a listener to the hub.
func (l *Loopback) Listen(buffer int, filter mqtt.Filter) *mqtt.Listener {
	return l.hub.Listen(buffer, filter)
}

// Inject delivers a frame as if the broker had sent it on topic.
func (l *Loopback) Inject(topic string, payload []byte) {
	l.hub.Deliver(mqtt.Message{Topic: topic, Payload: payload, ReceivedAt: time.Now().UTC()})
}

// Published returns a copy of every recorded publish, oldest first.
func (l *Loopback) Published() []Published {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Published(nil), l.published...)
}

// Subscriptions returns how many times each topic was subscribed.
func (l *Loopback) Subscriptions() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int, len(l.subs))
	for k, v := range l.subs {
		out[k] = v
	}
	return out
}
