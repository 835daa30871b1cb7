// Package metrics exposes dtuhub's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/dtu-hub/internal/device"
	"github.com/nerrad567/dtu-hub/internal/infrastructure/mqtt"
)

const namespace = "dtuhub"

// Metrics holds every collector on a private registry. It implements
// dtu.Observer.
type Metrics struct {
	registry *prometheus.Registry

	Requests         *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
	FramesRecognized *prometheus.CounterVec
	FramesUnknown    prometheus.Counter
	Twins            prometheus.Gauge
	HubDrops         prometheus.Counter
}

// New creates and registers the collectors, including the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "requests",
			Name:      "total",
			Help:      "Device requests by device type and outcome",
		}, []string{"device_type", "outcome"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "requests",
			Name:      "duration_seconds",
			Help:      "Time from request to response, timeout or rejection",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 6, 10, 30, 60},
		}, []string{"device_type"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "requests",
			Name:      "in_flight",
			Help:      "Device requests currently waiting for an answer",
		}),

		FramesRecognized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "frames_recognized_total",
			Help:      "Outbox frames claimed by an adapter",
		}, []string{"device_type"}),

		FramesUnknown: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "frames_unrecognized_total",
			Help:      "Outbox frames no adapter claimed",
		}),

		Twins: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "twins",
			Name:      "count",
			Help:      "Digital twins held in memory",
		}),

		HubDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "hub_dropped_total",
			Help:      "Messages dropped because a listener's buffer was full",
		}),
	}

	m.registry.MustRegister(
		m.Requests,
		m.RequestDuration,
		m.RequestsInFlight,
		m.FramesRecognized,
		m.FramesUnknown,
		m.Twins,
		m.HubDrops,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// GaugeFunc registers a gauge whose value is read on every scrape.
func (m *Metrics) GaugeFunc(subsystem, name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, fn))
}

// RequestStarted implements dtu.Observer.
func (m *Metrics) RequestStarted(device.DeviceType) {
	m.RequestsInFlight.Inc()
}

// RequestFinished implements dtu.Observer.
func (m *Metrics) RequestFinished(t device.DeviceType, outcome string, took time.Duration) {
	m.RequestsInFlight.Dec()
	m.Requests.WithLabelValues(string(t), outcome).Inc()
	m.RequestDuration.WithLabelValues(string(t)).Observe(took.Seconds())
}

// FrameRecognized implements dtu.Observer.
func (m *Metrics) FrameRecognized(t device.DeviceType) {
	m.FramesRecognized.WithLabelValues(string(t)).Inc()
}

// FrameUnrecognized implements dtu.Observer.
func (m *Metrics) FrameUnrecognized() {
	m.FramesUnknown.Inc()
}

// TwinCount implements dtu.Observer.
func (m *Metrics) TwinCount(n int) {
	m.Twins.Set(float64(n))
}

// HubDropped counts a message a hub listener could not take. Install it
// with mqtt.Hub.SetDropHandler.
func (m *Metrics) HubDropped(mqtt.Message) {
	m.HubDrops.Inc()
}
