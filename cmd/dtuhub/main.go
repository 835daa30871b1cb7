// dtuhub - MQTT gateway for devices behind DTUs
//
// dtuhub talks to field devices (tank-truck probes, Modbus GPS modules,
// the DTUs themselves) through the MQTT inbox/outbox pair of the DTU they
// sit behind. It offers request/response calls over HTTP and keeps a
// digital twin of every device from the telemetry the DTUs publish.
//
// Usage:
//
//	dtuhub                  run the gateway (config from DTUHUB_CONFIG)
//	dtuhub hash-password    read a password on stdin, print its Argon2id hash
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/dtu-hub/internal/api"
	"github.com/nerrad567/dtu-hub/internal/audit"
	"github.com/nerrad567/dtu-hub/internal/auth"
	"github.com/nerrad567/dtu-hub/internal/codec"
	"github.com/nerrad567/dtu-hub/internal/device"
	"github.com/nerrad567/dtu-hub/internal/dtu"
	"github.com/nerrad567/dtu-hub/internal/infrastructure/config"
	"github.com/nerrad567/dtu-hub/internal/infrastructure/database"
	"github.com/nerrad567/dtu-hub/internal/infrastructure/influxdb"
	"github.com/nerrad567/dtu-hub/internal/infrastructure/logging"
	"github.com/nerrad567/dtu-hub/internal/infrastructure/metrics"
	"github.com/nerrad567/dtu-hub/internal/infrastructure/mqtt"
	"github.com/nerrad567/dtu-hub/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		if err := hashPassword(os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until ctx ends or one of the
// long-running loops fails.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting dtuhub",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := config.PathFromEnv()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	defer log.Close()
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	// Request audit (SQLite)
	var (
		db       *database.DB
		auditLog *audit.SQLiteRepository
	)
	if cfg.Audit.Enabled {
		db, err = database.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		applied, migrateErr := db.Migrate(ctx, migrations.FS)
		if migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database ready", "path", db.Path(), "migrations_applied", applied)
		auditLog = audit.NewSQLiteRepository(db.DB)
	}

	// Telemetry export (InfluxDB, optional)
	var sinks []dtu.Sink
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		sinks = append(sinks, influxClient)
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	// MQTT
	hub := mqtt.NewHub(cfg.Gateway.ListenerBuffer)
	if m != nil {
		hub.SetDropHandler(m.HubDropped)
	}
	mqttClient, err := mqtt.Connect(cfg.MQTT, hub)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT connection established", "client_id", mqttClient.ClientID())
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT connection lost, requests fail until reconnect", "error", err)
	})
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", mqttClient.ClientID(),
	)

	// Gateway core
	wsHub := api.NewHub(cfg.WebSocket, log)
	sinks = append(sinks, wsHub)

	twins := device.NewRegistry()
	twins.SetLogger(log)

	deps := dtu.Deps{
		Gateway:   cfg.Gateway,
		QoS:       byte(cfg.MQTT.QoS), //nolint:gosec // validated to 0..2
		Transport: mqttClient,
		Codecs:    codec.Default(codec.Options{ProbeStrictChecksum: cfg.Gateway.ProbeStrictChecksum}),
		Twins:     twins,
		Sinks:     sinks,
		Logger:    log,
	}
	if auditLog != nil {
		deps.Auditor = auditLog
	}
	if m != nil {
		deps.Observer = m
	}
	svc, err := dtu.New(deps)
	if err != nil {
		return fmt.Errorf("creating gateway service: %w", err)
	}

	// HTTP front door
	apiDeps := api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Service:  svc,
		Hub:      wsHub,
		Health:   map[string]api.HealthChecker{"mqtt": mqttClient},
		Version:  version,
	}
	if auditLog != nil {
		apiDeps.Audit = auditLog
		apiDeps.Health["database"] = db
	}
	if influxClient != nil {
		apiDeps.Health["influxdb"] = influxClient
	}
	if cfg.Security.Auth.Enabled {
		apiDeps.Authenticator = auth.NewAuthenticator(cfg.Security)
	}
	if m != nil {
		registerGauges(m, mqttClient, wsHub)
		apiDeps.Metrics = m.Handler()
	}
	server, err := api.New(apiDeps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svc.Run(gctx)
	})
	if auditLog != nil {
		retention := time.Duration(cfg.Audit.RetentionDays) * 24 * time.Hour
		g.Go(func() error {
			return audit.RunRetention(gctx, auditLog, retention, audit.PruneInterval, log)
		})
	}
	if err := server.Start(gctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	g.Go(func() error {
		<-gctx.Done()
		return server.Close()
	})

	log.Info("initialisation complete, waiting for shutdown signal",
		"topic_prefix", svc.Topics().Prefix,
		"api", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	err = g.Wait()

	// Deferred Close calls run in reverse order: MQTT, InfluxDB, database.
	log.Info("dtuhub stopped")
	return err
}

// registerGauges exposes connection state that is cheaper to read on
// scrape than to track.
func registerGauges(m *metrics.Metrics, client *mqtt.Client, ws *api.Hub) {
	m.GaugeFunc("mqtt", "connected", "1 when the broker connection is up.", func() float64 {
		if client.IsConnected() {
			return 1
		}
		return 0
	})
	m.GaugeFunc("mqtt", "subscriptions", "Topic filters currently subscribed.", func() float64 {
		return float64(client.SubscriptionCount())
	})
	m.GaugeFunc("websocket", "clients", "Connected WebSocket clients.", func() float64 {
		return float64(ws.ClientCount())
	})
}

// hashPassword reads one line from in and writes its PHC-encoded hash,
// ready for security.auth.password_hash.
func hashPassword(in io.Reader, out io.Writer) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("empty password")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}
