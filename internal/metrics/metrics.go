// Package metrics exposes Prometheus instrumentation for the engine, the
// inference pipeline, the bridge and the HTTP surface.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus collectors for the gyre process.
type Metrics struct {
	registry *prometheus.Registry

	ticksTotal      prometheus.Counter
	tickDuration    prometheus.Histogram
	dispatchesTotal prometheus.Counter
	inferenceErrors *prometheus.CounterVec
	zoneEvents      *prometheus.CounterVec
	activeZones     prometheus.Gauge
	trackedHand     prometheus.Gauge

	bridgeMessages   *prometheus.CounterVec
	bridgeMalformed  prometheus.Counter
	bridgeReconnects prometheus.Counter

	requestsTotal prometheus.Counter
	errorsTotal   prometheus.Counter
}

// New creates and registers the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gyre_ticks_total",
			Help: "Total number of engine ticks",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gyre_tick_duration_seconds",
			Help:    "Time spent in one engine tick",
			Buckets: []float64{.001, .002, .004, .008, .016, .033, .066, .1},
		}),
		dispatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gyre_inference_dispatches_total",
			Help: "Total number of frames sent to the local estimator",
		}),
		inferenceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gyre_inference_errors_total",
			Help: "Inference calls that failed or timed out",
		}, []string{"reason"}),
		zoneEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gyre_zone_events_total",
			Help: "Zone activation and deactivation edges",
		}, []string{"kind"}),
		activeZones: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gyre_active_zones",
			Help: "Number of zones currently active",
		}),
		trackedHand: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gyre_tracked_hand",
			Help: "1 while a pointer is being tracked",
		}),
		bridgeMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gyre_bridge_messages_total",
			Help: "Messages received from the remote bridge",
		}, []string{"type"}),
		bridgeMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gyre_bridge_malformed_total",
			Help: "Bridge messages discarded as malformed",
		}),
		bridgeReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gyre_bridge_reconnects_total",
			Help: "Bridge reconnections after a lost connection",
		}),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gyre_http_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gyre_http_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
	}

	m.registry.MustRegister(
		m.ticksTotal,
		m.tickDuration,
		m.dispatchesTotal,
		m.inferenceErrors,
		m.zoneEvents,
		m.activeZones,
		m.trackedHand,
		m.bridgeMessages,
		m.bridgeMalformed,
		m.bridgeReconnects,
		m.requestsTotal,
		m.errorsTotal,
	)
	return m
}

// ObserveTick records one engine tick.
func (m *Metrics) ObserveTick(d time.Duration) {
	m.ticksTotal.Inc()
	m.tickDuration.Observe(d.Seconds())
}

// ObserveZoneEvent counts an activation edge ("activate" or "deactivate").
func (m *Metrics) ObserveZoneEvent(kind string) {
	m.zoneEvents.WithLabelValues(kind).Inc()
}

// SetActiveZones sets the active zones gauge.
func (m *Metrics) SetActiveZones(n int) {
	m.activeZones.Set(float64(n))
}

// SetTracking sets the tracked hand gauge.
func (m *Metrics) SetTracking(tracking bool) {
	if tracking {
		m.trackedHand.Set(1)
	} else {
		m.trackedHand.Set(0)
	}
}

func (m *Metrics) ObserveDispatch() {
	m.dispatchesTotal.Inc()
}

func (m *Metrics) ObserveInferenceFailure() {
	m.inferenceErrors.WithLabelValues("failure").Inc()
}

func (m *Metrics) ObserveInferenceTimeout() {
	m.inferenceErrors.WithLabelValues("timeout").Inc()
}

func (m *Metrics) ObserveBridgeMessage(kind string) {
	m.bridgeMessages.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveBridgeMalformed() {
	m.bridgeMalformed.Inc()
}

func (m *Metrics) ObserveBridgeReconnect() {
	m.bridgeReconnects.Inc()
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	inner := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		inner.ServeHTTP(w, r)
	})
}
