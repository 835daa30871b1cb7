package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/dtu-hub/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// presenceQoS is used for every presence document, including the will.
	presenceQoS = 1

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Presence statuses.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// PresenceDocument is the retained status published under PresenceTopic.
type PresenceDocument struct {
	Status      string         `json:"status"`
	Name        string         `json:"name"`
	Data        map[string]any `json:"data"`
	Reason      string         `json:"reason"`
	Description string         `json:"description"`
}

// clientID returns the configured client id or derives a unique one from
// the presence name.
func clientID(cfg config.MQTTConfig) string {
	if cfg.Broker.ClientID != "" {
		return cfg.Broker.ClientID
	}
	return fmt.Sprintf("simple_mqtt_rpc_%s_%s", cfg.Presence.Name, uuid.NewString()[:8])
}

// buildClientOptions creates paho MQTT options from dtuhub config.
//
// Clean sessions are used; subscriptions are restored by the client itself
// after every reconnect. The default publish handler is set by Connect.
func buildClientOptions(cfg config.MQTTConfig, id string) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(id)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)

	// Auto-reconnect with exponential backoff
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	// One delivery goroutine, in arrival order.
	opts.SetOrderMatters(true)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts
}

// configureLWT registers the broker-delivered offline document for
// unexpected disconnects.
func configureLWT(opts *pahomqtt.ClientOptions, presence config.MQTTPresenceConfig) {
	opts.SetBinaryWill(
		PresenceTopic(presence.Name),
		presencePayload(StatusOffline, presence, "unplanned disconnected from mqtt broker"),
		presenceQoS,
		true,
	)
}

func onlinePayload(presence config.MQTTPresenceConfig, since time.Time) []byte {
	return presencePayload(StatusOnline, presence,
		"have been connected to mqtt broker since "+since.UTC().Format(time.RFC3339))
}

func plannedOfflinePayload(presence config.MQTTPresenceConfig, at time.Time) []byte {
	return presencePayload(StatusOffline, presence,
		"planned disconnected from mqtt broker at local time: "+at.Local().Format(time.RFC3339))
}

func presencePayload(status string, presence config.MQTTPresenceConfig, reason string) []byte {
	doc := PresenceDocument{
		Status:      status,
		Name:        presence.Name,
		Data:        map[string]any{},
		Reason:      reason,
		Description: presence.Description,
	}
	// A struct of strings and an empty map always marshals.
	b, _ := json.Marshal(doc) //nolint:errcheck,errchkjson
	return b
}
