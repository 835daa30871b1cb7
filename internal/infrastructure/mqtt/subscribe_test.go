package mqtt

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// heldToken is a paho token that completes when the test releases it.
type heldToken struct {
	done chan struct{}
	err  error
}

func (t *heldToken) Wait() bool {
	<-t.done
	return true
}

func (t *heldToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *heldToken) Done() <-chan struct{} { return t.done }
func (t *heldToken) Error() error          { return t.err }

// heldBroker is a connected paho client whose SUBACKs are held back.
type heldBroker struct {
	pahomqtt.Client
	token *heldToken
	calls atomic.Int32
}

func (b *heldBroker) IsConnected() bool { return true }

func (b *heldBroker) Subscribe(string, byte, pahomqtt.MessageHandler) pahomqtt.Token {
	b.calls.Add(1)
	return b.token
}

func newHeldClient(t *testing.T, ackErr error) (*Client, *heldBroker) {
	t.Helper()
	broker := &heldBroker{token: &heldToken{done: make(chan struct{}), err: ackErr}}
	c := newClient(testConfig("held"), nil)
	c.client = broker
	c.setConnected(true)
	return c, broker
}

// subscribeWhileInflight starts a first Subscribe, waits until it reaches
// the broker, then starts a second one for a topic the first covers.
func subscribeWhileInflight(t *testing.T, c *Client, broker *heldBroker, first, second string) (chan error, chan error) {
	t.Helper()
	firstErr := make(chan error, 1)
	go func() { firstErr <- c.Subscribe(first, 1) }()

	deadline := time.Now().Add(2 * time.Second)
	for broker.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first Subscribe never reached the broker")
		}
		time.Sleep(time.Millisecond)
	}

	secondErr := make(chan error, 1)
	go func() { secondErr <- c.Subscribe(second, 1) }()

	select {
	case err := <-secondErr:
		t.Fatalf("second Subscribe returned %v before the broker acknowledged", err)
	case <-time.After(50 * time.Millisecond):
	}
	return firstErr, secondErr
}

func receive(t *testing.T, ch chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return")
		return nil
	}
}

func TestSubscribe_WaitsForInflightSubscription(t *testing.T) {
	tests := []struct {
		name   string
		first  string
		second string
	}{
		{"same topic", "dtu/SN001/outbox", "dtu/SN001/outbox"},
		{"topic under pending wildcard", "dtu/+/outbox", "dtu/SN001/outbox"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, broker := newHeldClient(t, nil)
			firstErr, secondErr := subscribeWhileInflight(t, c, broker, tt.first, tt.second)

			close(broker.token.done)

			if err := receive(t, firstErr); err != nil {
				t.Errorf("first Subscribe() error = %v", err)
			}
			if err := receive(t, secondErr); err != nil {
				t.Errorf("second Subscribe() error = %v", err)
			}
			if got := broker.calls.Load(); got != 1 {
				t.Errorf("broker subscribe calls = %d, want 1", got)
			}
			if !c.IsSubscribed(tt.second) {
				t.Error("IsSubscribed() = false after acknowledged subscription")
			}
		})
	}
}

func TestSubscribe_InflightFailureReachesWaiters(t *testing.T) {
	c, broker := newHeldClient(t, errors.New("not authorised"))
	firstErr, secondErr := subscribeWhileInflight(t, c, broker, "dtu/SN001/outbox", "dtu/SN001/outbox")

	close(broker.token.done)

	if err := receive(t, firstErr); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("first Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
	if err := receive(t, secondErr); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("second Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0 after rejected subscription", c.SubscriptionCount())
	}
}
