// Package metrics exposes the telemetry core's outbound reports as
// Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/playsight/go-playsight/livequality"
	"github.com/playsight/go-playsight/session"
	"github.com/playsight/go-playsight/startup"
)

// Metrics holds the Prometheus collectors fed by the trackers.
type Metrics struct {
	registry *prometheus.Registry

	stageTransitionsTotal *prometheus.CounterVec
	sessionsEndedTotal    prometheus.Counter
	startupFirstFrame     prometheus.Histogram
	bufferRatio           prometheus.Gauge
	bufferEventsTotal     prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	stageTransitionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "playsight_stage_transitions_total",
		Help: "Effective session stage transitions, labelled by new stage",
	}, []string{"stage"})
	sessionsEndedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playsight_sessions_ended_total",
		Help: "Total number of VOD sessions ended",
	})
	startupFirstFrame := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "playsight_startup_first_frame_ms",
		Help:    "Milliseconds from page request to first rendered frame",
		Buckets: prometheus.ExponentialBuckets(100, 2, 12),
	})
	bufferRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "playsight_buffer_ratio",
		Help: "Buffer ratio of the most recent live quality snapshot",
	})
	bufferEventsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playsight_buffer_events_total",
		Help: "Total number of completed buffering intervals",
	})

	registry.MustRegister(
		stageTransitionsTotal,
		sessionsEndedTotal,
		startupFirstFrame,
		bufferRatio,
		bufferEventsTotal,
	)

	return &Metrics{
		registry:              registry,
		stageTransitionsTotal: stageTransitionsTotal,
		sessionsEndedTotal:    sessionsEndedTotal,
		startupFirstFrame:     startupFirstFrame,
		bufferRatio:           bufferRatio,
		bufferEventsTotal:     bufferEventsTotal,
	}
}

// OnStageChange implements session.Listener.
func (m *Metrics) OnStageChange(newStage, _ session.Stage) {
	m.stageTransitionsTotal.WithLabelValues(newStage.String()).Inc()
}

// OnSessionEnded implements session.Listener.
func (m *Metrics) OnSessionEnded() {
	m.sessionsEndedTotal.Inc()
}

// ObserveStartupReport records the first-frame latency of a finished run.
func (m *Metrics) ObserveStartupReport(report startup.Report) {
	if offset, ok := report[startup.MilestoneFirstFrame.Code()]; ok {
		m.startupFirstFrame.Observe(float64(offset))
	}
}

// ObserveQuality mirrors a quality snapshot into the gauges.
func (m *Metrics) ObserveQuality(q livequality.Quality) {
	m.bufferRatio.Set(q.BufferRatio)
}

// IncBufferEvents counts one completed buffering interval.
func (m *Metrics) IncBufferEvents() {
	m.bufferEventsTotal.Inc()
}

// Handler serves the registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
