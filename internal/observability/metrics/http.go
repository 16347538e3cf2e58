package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	submissionsTotal      *prometheus.CounterVec
	submissionImages      *prometheus.HistogramVec
	inferenceWaitDuration *prometheus.HistogramVec
	inferenceTimeoutTotal *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "neuroscan",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "neuroscan",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "neuroscan",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	submissionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "neuroscan",
			Subsystem: "prediction",
			Name:      "submissions_total",
			Help:      "Total completed prediction submissions by status.",
		},
		[]string{"service", "status"},
	)
	submissionImages := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "neuroscan",
			Subsystem: "prediction",
			Name:      "submission_images",
			Help:      "Distribution of image counts per submission.",
			Buckets:   []float64{1, 2, 3, 4, 6, 8, 12, 16},
		},
		[]string{"service"},
	)
	inferenceWaitDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "neuroscan",
			Subsystem: "prediction",
			Name:      "inference_wait_seconds",
			Help:      "Time spent waiting for all inference replies per submission.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service"},
	)
	inferenceTimeoutTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "neuroscan",
			Subsystem: "prediction",
			Name:      "inference_timeouts_total",
			Help:      "Total submissions abandoned while waiting for inference replies.",
		},
		[]string{"service"},
	)
	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		submissionsTotal,
		submissionImages,
		inferenceWaitDuration,
		inferenceTimeoutTotal,
	)

	return &HTTPServerMetrics{
		registry:              registry,
		requestTotal:          requestTotal,
		requestDuration:       requestDuration,
		requestInFlight:       requestInFlight,
		submissionsTotal:      submissionsTotal,
		submissionImages:      submissionImages,
		inferenceWaitDuration: inferenceWaitDuration,
		inferenceTimeoutTotal: inferenceTimeoutTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/patients/"):
		return "/v1/patients/{patient_id}"
	case strings.HasPrefix(path, "/v1/staff/"):
		return "/v1/staff/{staff_id}"
	case strings.HasPrefix(path, "/v1/predictions/submissions/"):
		return "/v1/predictions/submissions/{submission_id}"
	case strings.HasPrefix(path, "/v1/predictions/"):
		return "/v1/predictions/{patient_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordSubmission(service, status string, imageCount int, wait time.Duration) {
	if status == "" {
		status = "unknown"
	}
	m.submissionsTotal.WithLabelValues(service, status).Inc()
	if imageCount > 0 {
		m.submissionImages.WithLabelValues(service).Observe(float64(imageCount))
	}
	if wait > 0 {
		m.inferenceWaitDuration.WithLabelValues(service).Observe(wait.Seconds())
	}
}

func (m *HTTPServerMetrics) RecordInferenceTimeout(service string) {
	m.inferenceTimeoutTotal.WithLabelValues(service).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
