package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the variable that points at the YAML file.
const EnvConfigPath = "DTUHUB_CONFIG"

// DefaultPath is used when EnvConfigPath is unset.
const DefaultPath = "configs/config.yaml"

// Config is the root configuration structure for dtuhub.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Database  DatabaseConfig  `yaml:"database"`
	Audit     AuditConfig     `yaml:"audit"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// GatewayConfig controls how requests reach DTUs and how their telemetry is kept.
type GatewayConfig struct {
	// TopicPrefix is the first topic level, as in <prefix>/<dtu_sn>/inbox.
	TopicPrefix string `yaml:"topic_prefix"`

	// RequestTimeoutMS applies when a caller does not name a timeout.
	RequestTimeoutMS int `yaml:"request_timeout_ms"`

	// MaxTimeoutMS caps caller-supplied timeouts.
	MaxTimeoutMS int `yaml:"max_timeout_ms"`

	// StaleAfter is the number of seconds without a frame after which a DTU is offline.
	StaleAfter int `yaml:"stale_after"`

	// ListenerBuffer is the per-listener channel size on the message hub.
	ListenerBuffer int `yaml:"listener_buffer"`

	// ProbeStrictChecksum enables the sum8 check on probe frames.
	ProbeStrictChecksum bool `yaml:"probe_strict_checksum"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// AuditConfig controls the request audit log.
type AuditConfig struct {
	Enabled       bool `yaml:"enabled"`
	RetentionDays int  `yaml:"retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	Presence  MQTTPresenceConfig  `yaml:"presence"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	TLS  bool   `yaml:"tls"`

	// ClientID is generated from the presence name when empty.
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// MQTTPresenceConfig names this process in its online/offline documents.
type MQTTPresenceConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// SecurityConfig contains front-door security settings.
type SecurityConfig struct {
	Auth      AuthConfig      `yaml:"auth"`
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// AuthConfig enables bearer-token authentication on the API.
type AuthConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// RateLimitConfig contains rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: DTUHUB_SECTION_KEY
// For example: DTUHUB_MQTT_HOST, DTUHUB_GATEWAY_TOPIC_PREFIX
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// PathFromEnv returns the config path named by DTUHUB_CONFIG, or DefaultPath.
func PathFromEnv() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return DefaultPath
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			TopicPrefix:      "dtu",
			RequestTimeoutMS: 6000,
			MaxTimeoutMS:     60000,
			StaleAfter:       300,
			ListenerBuffer:   1024,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			Presence: MQTTPresenceConfig{
				Name:        "dtuhub",
				Description: "DTU request/response gateway",
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/dtuhub.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Audit: AuditConfig{
			Enabled:       true,
			RetentionDays: 30,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 75,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./logs/dtuhub.log",
				MaxSize:    10,
				MaxBackups: 5,
				MaxAge:     28,
			},
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 600,
				Burst:             50,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: DTUHUB_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"DTUHUB_GATEWAY_TOPIC_PREFIX":        &cfg.Gateway.TopicPrefix,
		"DTUHUB_MQTT_HOST":                   &cfg.MQTT.Broker.Host,
		"DTUHUB_MQTT_CLIENT_ID":              &cfg.MQTT.Broker.ClientID,
		"DTUHUB_MQTT_USERNAME":               &cfg.MQTT.Auth.Username,
		"DTUHUB_MQTT_PASSWORD":               &cfg.MQTT.Auth.Password,
		"DTUHUB_MQTT_PRESENCE_NAME":          &cfg.MQTT.Presence.Name,
		"DTUHUB_DATABASE_PATH":               &cfg.Database.Path,
		"DTUHUB_API_HOST":                    &cfg.API.Host,
		"DTUHUB_INFLUXDB_URL":                &cfg.InfluxDB.URL,
		"DTUHUB_INFLUXDB_TOKEN":              &cfg.InfluxDB.Token,
		"DTUHUB_LOGGING_LEVEL":               &cfg.Logging.Level,
		"DTUHUB_SECURITY_AUTH_USERNAME":      &cfg.Security.Auth.Username,
		"DTUHUB_SECURITY_AUTH_PASSWORD_HASH": &cfg.Security.Auth.PasswordHash,
		"DTUHUB_JWT_SECRET":                  &cfg.Security.JWT.Secret,
	}
	for name, dst := range strs {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"DTUHUB_GATEWAY_REQUEST_TIMEOUT_MS": &cfg.Gateway.RequestTimeoutMS,
		"DTUHUB_MQTT_PORT":                  &cfg.MQTT.Broker.Port,
		"DTUHUB_API_PORT":                   &cfg.API.Port,
	}
	for name, dst := range ints {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", name, err)
		}
		*dst = n
	}

	bools := map[string]*bool{
		"DTUHUB_GATEWAY_PROBE_STRICT_CHECKSUM": &cfg.Gateway.ProbeStrictChecksum,
		"DTUHUB_INFLUXDB_ENABLED":              &cfg.InfluxDB.Enabled,
		"DTUHUB_SECURITY_AUTH_ENABLED":         &cfg.Security.Auth.Enabled,
	}
	for name, dst := range bools {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", name, err)
		}
		*dst = b
	}
	return nil
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if p := c.Gateway.TopicPrefix; p == "" {
		errs = append(errs, "gateway.topic_prefix is required")
	} else if strings.ContainsAny(p, "+#/") {
		errs = append(errs, "gateway.topic_prefix must be a single topic level without wildcards")
	}
	if c.Gateway.RequestTimeoutMS <= 0 || c.Gateway.RequestTimeoutMS > c.Gateway.MaxTimeoutMS {
		errs = append(errs, "gateway.request_timeout_ms must be positive and at most gateway.max_timeout_ms")
	}
	if c.Gateway.StaleAfter <= 0 {
		errs = append(errs, "gateway.stale_after must be positive")
	}
	if c.Gateway.ListenerBuffer <= 0 {
		errs = append(errs, "gateway.listener_buffer must be positive")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Presence.Name == "" {
		errs = append(errs, "mqtt.presence.name is required")
	}

	if c.Audit.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when audit is enabled")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url, influxdb.org and influxdb.bucket are required when influxdb is enabled")
	}

	const minJWTSecretLength = 32
	if c.Security.Auth.Enabled {
		if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters when auth is enabled (set DTUHUB_JWT_SECRET)")
		}
		if c.Security.Auth.PasswordHash == "" {
			errs = append(errs, "security.auth.password_hash is required when auth is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// RequestTimeout returns the default per-call timeout.
func (g GatewayConfig) RequestTimeout() time.Duration {
	return time.Duration(g.RequestTimeoutMS) * time.Millisecond
}

// MaxTimeout returns the ceiling for caller-supplied timeouts.
func (g GatewayConfig) MaxTimeout() time.Duration {
	return time.Duration(g.MaxTimeoutMS) * time.Millisecond
}

// StaleDuration returns StaleAfter as a Duration.
func (g GatewayConfig) StaleDuration() time.Duration {
	return time.Duration(g.StaleAfter) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
