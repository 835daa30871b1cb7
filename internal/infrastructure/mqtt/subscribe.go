package mqtt

import (
	"fmt"
)

// pendingSubscribe is a subscription waiting for the broker's SUBACK.
// err is written before done is closed.
type pendingSubscribe struct {
	done chan struct{}
	err  error
}

// Subscribe asks the broker for messages matching topic. Deliveries go to
// the hub; use Listen to consume them.
//
// Subscribe is idempotent. A topic already covered by a recorded filter
// (for example dtu/SN001/outbox under dtu/+/outbox) is not subscribed
// again, so the broker never delivers one frame twice. If that filter is
// still waiting for the broker, Subscribe waits for the same outcome, so a
// nil return always means the subscription is live.
//
// While disconnected the filter is only recorded and is applied on the
// next connect; Subscribe then returns nil.
func (c *Client) Subscribe(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}

	c.subMu.Lock()
	if filter, ok := c.coveringLocked(topic); ok {
		p := c.inflight[filter]
		c.subMu.Unlock()
		if p == nil {
			return nil
		}
		<-p.done
		return p.err
	}
	c.subscriptions[topic] = qos
	if !c.IsConnected() {
		c.subMu.Unlock()
		return nil
	}
	p := &pendingSubscribe{done: make(chan struct{})}
	c.inflight[topic] = p
	c.subMu.Unlock()

	p.err = c.brokerSubscribe(topic, qos)

	c.subMu.Lock()
	delete(c.inflight, topic)
	if p.err != nil {
		delete(c.subscriptions, topic)
	}
	c.subMu.Unlock()
	close(p.done)

	return p.err
}

func (c *Client) brokerSubscribe(topic string, qos byte) error {
	token := c.client.Subscribe(topic, qos, nil)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// coveringLocked returns the recorded filter that covers topic.
func (c *Client) coveringLocked(topic string) (string, bool) {
	if _, ok := c.subscriptions[topic]; ok {
		return topic, true
	}
	for filter := range c.subscriptions {
		if MatchTopic(filter, topic) {
			return filter, true
		}
	}
	return "", false
}

// SubscriptionCount returns the number of recorded subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// IsSubscribed reports whether topic is covered by a recorded subscription.
func (c *Client) IsSubscribed(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, ok := c.coveringLocked(topic)
	return ok
}
