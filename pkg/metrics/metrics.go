// Package metrics holds the capture loop counters and exports them to
// Prometheus.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	// Frame counters
	FramesCaptured  atomic.Uint64
	FramesAbsent    atomic.Uint64
	FramesEvaluated atomic.Uint64
	FramesDropped   atomic.Uint64 // captured while inference was busy

	// Error counters
	CaptureErrors   atomic.Uint64
	InferenceErrors atomic.Uint64
	LoadFailures    atomic.Uint64

	// Model loading
	Loads         atomic.Uint64
	LoadLatencyMs atomic.Uint64 // duration of the last successful load

	// Inference
	InferenceLatencyMs atomic.Uint64 // duration of the last evaluation
	InFlight           atomic.Int64

	// Status publication
	StatusPublished atomic.Uint64
	StatusDropped   atomic.Uint64 // overwritten before the presenter saw them

	// State is the loop state as an ordinal (0=idle 1=loading 2=running 3=stopped).
	State atomic.Int64

	inferenceSeconds prometheus.Histogram
	registry         *prometheus.Registry
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	FramesCaptured     uint64 `json:"frames_captured"`
	FramesAbsent       uint64 `json:"frames_absent"`
	FramesEvaluated    uint64 `json:"frames_evaluated"`
	FramesDropped      uint64 `json:"frames_dropped"`
	CaptureErrors      uint64 `json:"capture_errors"`
	InferenceErrors    uint64 `json:"inference_errors"`
	LoadFailures       uint64 `json:"load_failures"`
	Loads              uint64 `json:"loads"`
	LoadLatencyMs      uint64 `json:"load_latency_ms"`
	InferenceLatencyMs uint64 `json:"inference_latency_ms"`
	InFlight           int64  `json:"in_flight"`
	StatusPublished    uint64 `json:"status_published"`
	StatusDropped      uint64 `json:"status_dropped"`
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		inferenceSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "catcam_inference_duration_seconds",
			Help:    "Time spent evaluating one frame",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
	}

	m.registerPrometheusMetrics()

	return m
}

func (m *Metrics) counter(name, help string, v *atomic.Uint64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{Name: name, Help: help},
		func() float64 { return float64(v.Load()) },
	))
}

func (m *Metrics) gauge(name, help string, f func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: name, Help: help},
		f,
	))
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.inferenceSeconds,
	)

	// Frames
	m.counter("catcam_frames_captured_total", "Frames returned by the camera", &m.FramesCaptured)
	m.counter("catcam_frames_absent_total", "Capture attempts with no new frame", &m.FramesAbsent)
	m.counter("catcam_frames_evaluated_total", "Frames classified successfully", &m.FramesEvaluated)
	m.counter("catcam_frames_dropped_total", "Frames skipped because inference was busy", &m.FramesDropped)

	// Errors
	m.counter("catcam_capture_errors_total", "Per-frame capture failures", &m.CaptureErrors)
	m.counter("catcam_inference_errors_total", "Failed evaluations", &m.InferenceErrors)
	m.counter("catcam_model_load_failures_total", "Failed model loads", &m.LoadFailures)

	// Model
	m.counter("catcam_model_loads_total", "Successful model loads", &m.Loads)
	m.gauge("catcam_model_load_ms", "Duration of the last successful model load",
		func() float64 { return float64(m.LoadLatencyMs.Load()) })
	m.gauge("catcam_inference_latency_ms", "Duration of the last evaluation",
		func() float64 { return float64(m.InferenceLatencyMs.Load()) })
	m.gauge("catcam_inference_in_flight", "Evaluations currently running",
		func() float64 { return float64(m.InFlight.Load()) })

	// Status
	m.counter("catcam_status_published_total", "Status updates handed to the reporter", &m.StatusPublished)
	m.counter("catcam_status_dropped_total", "Status updates overwritten before display", &m.StatusDropped)
	m.gauge("catcam_loop_state", "Loop state (0=idle 1=loading 2=running 3=stopped)",
		func() float64 { return float64(m.State.Load()) })
}

// Broadcaster is a websocket fan-out whose load is exported.
type Broadcaster interface {
	ClientCount() int
	Dropped() uint64
}

// TrackBroadcaster exports b's connected clients and dropped messages,
// labelled with name. Tracking the same name twice is an error.
func (m *Metrics) TrackBroadcaster(name string, b Broadcaster) error {
	labels := prometheus.Labels{"hub": name}
	clients := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "catcam_ws_clients", Help: "Connected websocket clients", ConstLabels: labels},
		func() float64 { return float64(b.ClientCount()) },
	)
	dropped := prometheus.NewCounterFunc(
		prometheus.CounterOpts{Name: "catcam_ws_dropped_total", Help: "Broadcasts discarded because the hub was saturated", ConstLabels: labels},
		func() float64 { return float64(b.Dropped()) },
	)
	if err := m.registry.Register(clients); err != nil {
		return err
	}
	if err := m.registry.Register(dropped); err != nil {
		m.registry.Unregister(clients)
		return err
	}
	return nil
}

// ObserveInference records one evaluation's duration.
func (m *Metrics) ObserveInference(d time.Duration) {
	m.InferenceLatencyMs.Store(uint64(d.Milliseconds()))
	m.inferenceSeconds.Observe(d.Seconds())
}

// ObserveLoad records a model load attempt.
func (m *Metrics) ObserveLoad(d time.Duration, err error) {
	if err != nil {
		m.LoadFailures.Add(1)
		return
	}
	m.Loads.Add(1)
	m.LoadLatencyMs.Store(uint64(d.Milliseconds()))
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		FramesCaptured:     m.FramesCaptured.Load(),
		FramesAbsent:       m.FramesAbsent.Load(),
		FramesEvaluated:    m.FramesEvaluated.Load(),
		FramesDropped:      m.FramesDropped.Load(),
		CaptureErrors:      m.CaptureErrors.Load(),
		InferenceErrors:    m.InferenceErrors.Load(),
		LoadFailures:       m.LoadFailures.Load(),
		Loads:              m.Loads.Load(),
		LoadLatencyMs:      m.LoadLatencyMs.Load(),
		InferenceLatencyMs: m.InferenceLatencyMs.Load(),
		InFlight:           m.InFlight.Load(),
		StatusPublished:    m.StatusPublished.Load(),
		StatusDropped:      m.StatusDropped.Load(),
	}
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
