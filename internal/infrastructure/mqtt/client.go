package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/dtu-hub/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang for dtuhub.
//
// Every message the broker delivers, for any subscription, is handed to
// the Hub on paho's single delivery goroutine. Consumers attach with
// Listen instead of registering per-topic callbacks.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are recorded and restored on every reconnection.
type Client struct {
	client   pahomqtt.Client
	cfg      config.MQTTConfig
	clientID string
	hub      *Hub

	// subscriptions maps each recorded filter to its QoS. inflight holds
	// the filters whose SUBACK has not arrived yet.
	subscriptions map[string]byte
	inflight      map[string]*pendingSubscribe
	subMu         sync.RWMutex

	connected   bool
	connectedAt time.Time
	connMu      sync.RWMutex

	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Connect establishes a connection to the MQTT broker.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth, TLS)
//  2. Registers the offline presence document as Last Will
//  3. Routes all inbound messages to hub
//  4. Attempts initial connection with timeout
//
// On every (re)connect the client re-subscribes its recorded filters and
// publishes the online presence document.
func Connect(cfg config.MQTTConfig, hub *Hub) (*Client, error) {
	c := newClient(cfg, hub)
	opts := buildClientOptions(cfg, c.clientID)
	configureLWT(opts, cfg.Presence)

	opts.SetDefaultPublishHandler(func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.hub.Deliver(Message{
			Topic:      msg.Topic(),
			Payload:    msg.Payload(),
			ReceivedAt: time.Now().UTC(),
		})
	})
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		if logger := c.getLogger(); logger != nil {
			logger.Info("MQTT reconnecting", "client_id", c.clientID)
		}
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		// Stop the background connect-retry loop.
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect handler runs asynchronously and may not have executed
	// yet; mark connected here so IsConnected is true on return.
	c.setConnected(true)

	return c, nil
}

func newClient(cfg config.MQTTConfig, hub *Hub) *Client {
	if hub == nil {
		hub = NewHub(0)
	}
	return &Client{
		cfg:           cfg,
		clientID:      clientID(cfg),
		hub:           hub,
		subscriptions: make(map[string]byte),
		inflight:      make(map[string]*pendingSubscribe),
	}
}

func (c *Client) setConnected(on bool) {
	c.connMu.Lock()
	if on && !c.connected {
		c.connectedAt = time.Now()
	}
	c.connected = on
	c.connMu.Unlock()
}

// handleConnect is called when the connection is established.
func (c *Client) handleConnect() {
	c.setConnected(true)

	c.restoreSubscriptions()
	c.publishOnlineStatus()

	if logger := c.getLogger(); logger != nil {
		logger.Info("MQTT connected", "client_id", c.clientID, "subscriptions", c.SubscriptionCount())
	}

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleDisconnect is called when the connection is lost.
func (c *Client) handleDisconnect(err error) {
	c.setConnected(false)

	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost", "client_id", c.clientID, "error", err)
	}

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// restoreSubscriptions re-subscribes to all recorded filters after reconnect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for topic, qos := range c.subscriptions {
		// nil callback routes deliveries to the default publish handler
		c.client.Subscribe(topic, qos, nil)
	}
}

// publishOnlineStatus publishes the retained online presence document.
func (c *Client) publishOnlineStatus() {
	c.connMu.RLock()
	since := c.connectedAt
	c.connMu.RUnlock()

	c.client.Publish(PresenceTopic(c.cfg.Presence.Name), presenceQoS, true, onlinePayload(c.cfg.Presence, since))
}

// Close gracefully disconnects from the MQTT broker.
//
// It publishes the planned-offline presence document (distinct from the
// LWT crash document), waits for it, then disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.client.Publish(PresenceTopic(c.cfg.Presence.Name), presenceQoS, true,
			plannedOfflinePayload(c.cfg.Presence, time.Now()))
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.setConnected(false)

	return nil
}

// HealthCheck verifies the MQTT connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// ClientID returns the id presented to the broker.
func (c *Client) ClientID() string {
	return c.clientID
}

// Hub returns the hub inbound messages are delivered to.
func (c *Client) Hub() *Hub {
	return c.hub
}

// Listen attaches a listener to the client's hub.
func (c *Client) Listen(buffer int, filter Filter) *Listener {
	return c.hub.Listen(buffer, filter)
}

// SetOnConnect sets a callback to be invoked when connection is established.
// This is called on initial connect and on every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback to be invoked when connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for connection events and hub faults.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()

	c.hub.SetPanicHandler(func(r any) {
		logger.Error("MQTT listener filter panic recovered", "panic", r)
	})
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}
