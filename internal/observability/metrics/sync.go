package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SyncMetrics tracks lifecycle event traffic, published on the bus and
// consumed by the thumbnail handlers.
type SyncMetrics struct {
	registry *prometheus.Registry

	publishedTotal  *prometheus.CounterVec
	handledTotal    *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec
	duplicateTotal  *prometheus.CounterVec
}

func NewSyncMetrics(service string) *SyncMetrics {
	registry := prometheus.NewRegistry()

	publishedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "neuroscan",
			Subsystem: "sync",
			Name:      "events_published_total",
			Help:      "Total lifecycle events published by topic and status.",
		},
		[]string{"service", "topic", "status"},
	)
	handledTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "neuroscan",
			Subsystem: "sync",
			Name:      "events_handled_total",
			Help:      "Total lifecycle events handled by topic and status.",
		},
		[]string{"service", "topic", "status"},
	)
	handlerDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "neuroscan",
			Subsystem: "sync",
			Name:      "event_handler_duration_seconds",
			Help:      "Event handler execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "topic"},
	)
	duplicateTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "neuroscan",
			Subsystem: "sync",
			Name:      "events_duplicate_total",
			Help:      "Total events skipped by the delivery deduplicator.",
		},
		[]string{"service", "topic"},
	)

	registry.MustRegister(publishedTotal, handledTotal, handlerDuration, duplicateTotal)

	return &SyncMetrics{
		registry:        registry,
		publishedTotal:  publishedTotal,
		handledTotal:    handledTotal,
		handlerDuration: handlerDuration,
		duplicateTotal:  duplicateTotal,
	}
}

func (m *SyncMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *SyncMetrics) RecordPublish(service, topic string, err error) {
	m.publishedTotal.WithLabelValues(service, topic, statusLabel(err)).Inc()
}

func (m *SyncMetrics) RecordHandled(service, topic string, duration time.Duration, err error) {
	m.handledTotal.WithLabelValues(service, topic, statusLabel(err)).Inc()
	m.handlerDuration.WithLabelValues(service, topic).Observe(duration.Seconds())
}

func (m *SyncMetrics) RecordDuplicate(service, topic string) {
	m.duplicateTotal.WithLabelValues(service, topic).Inc()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
