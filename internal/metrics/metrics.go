package metrics

import (
	"net/http"

	"github.com/Avi18971911/TraceView/internal/pipeline/event_bus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "traceview"

// Metrics holds the collector and store instruments. Each instance owns its registry so
// several collectors can coexist in one process, as they do in tests.
type Metrics struct {
	registry *prometheus.Registry

	ExportRequests  *prometheus.CounterVec
	AcceptedSpans   *prometheus.CounterVec
	RejectedSpans   *prometheus.CounterVec
	RebuildDuration prometheus.Histogram
	RebuildFailures prometheus.Counter
	StoredTraces    prometheus.Gauge
	StoredSpans     prometheus.Gauge
	DroppedSpans    prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		ExportRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "export_requests_total",
				Help:      "Export requests received, by protocol and outcome",
			},
			[]string{"protocol", "outcome"},
		),
		AcceptedSpans: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "accepted_spans_total",
				Help:      "Spans decoded and handed to the store",
			},
			[]string{"protocol"},
		),
		RejectedSpans: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rejected_spans_total",
				Help:      "Spans rejected during decoding",
			},
			[]string{"protocol"},
		),
		RebuildDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rebuild_duration_seconds",
				Help:      "Time spent rebuilding the trace store",
				Buckets:   prometheus.DefBuckets,
			},
		),
		RebuildFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rebuild_failures_total",
				Help:      "Rebuilds that left the store unmodified",
			},
		),
		StoredTraces: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stored_traces",
				Help:      "Traces currently held by the store",
			},
		),
		StoredSpans: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stored_spans",
				Help:      "Spans currently held by the store",
			},
		),
		DroppedSpans: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_rebuild_dropped_spans",
				Help:      "Spans left out of the most recent rebuild",
			},
		),
	}
}

// ObserveRebuild is the handler for event_bus.TracesRebuiltTopic.
func (m *Metrics) ObserveRebuild(event event_bus.TracesRebuilt) error {
	m.StoredTraces.Set(float64(event.TraceCount))
	m.StoredSpans.Set(float64(event.SpanCount))
	m.DroppedSpans.Set(float64(event.DroppedSpans))
	return nil
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
