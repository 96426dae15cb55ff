package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mmrag"

type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	askTotal            *prometheus.CounterVec
	askDuration         *prometheus.HistogramVec
	askResults          *prometheus.HistogramVec
	noEvidenceTotal     *prometheus.CounterVec
	retrievalAttempts   *prometheus.HistogramVec
	criticDecisions     *prometheus.CounterVec
	plannerStrategies   *prometheus.CounterVec
	fusionImages        *prometheus.HistogramVec
	fusionModalityTotal *prometheus.CounterVec

	collaboratorRetries *prometheus.CounterVec
	breakerState        *prometheus.GaugeVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	askTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "asks_total",
			Help:      "Total answered questions by retrieval mode.",
		},
		[]string{"service", "mode"},
	)
	askDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "ask_duration_seconds",
			Help:      "Retrieval plus generation duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"service", "mode"},
	)
	askResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "results",
			Help:      "Distribution of evidence items used per answer.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		},
		[]string{"service", "mode"},
	)
	noEvidenceTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "no_evidence_total",
			Help:      "Total questions answered without any retrieved evidence.",
		},
		[]string{"service", "mode"},
	)
	retrievalAttempts := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "attempts",
			Help:      "Self-improving loop attempts per question.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		},
		[]string{"service"},
	)
	criticDecisions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "critic_final_decisions_total",
			Help:      "Final critic decision of each self-improving run.",
		},
		[]string{"service", "decision"},
	)
	plannerStrategies := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "planner",
			Name:      "steps_total",
			Help:      "Agentic planner steps by strategy.",
		},
		[]string{"service", "strategy"},
	)
	fusionImages := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fusion",
			Name:      "analyzed_images",
			Help:      "Images with vision analysis per multimodal answer.",
			Buckets:   []float64{0, 1, 2, 3},
		},
		[]string{"service"},
	)
	fusionModalityTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fusion",
			Name:      "items_total",
			Help:      "Evidence items fused into multimodal contexts by modality.",
		},
		[]string{"service", "modality"},
	)

	collaboratorRetries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collaborator",
			Name:      "retries_total",
			Help:      "Transport retries of collaborator calls by operation.",
		},
		[]string{"service", "operation"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "collaborator",
			Name:      "breaker_state",
			Help:      "Circuit breaker state by operation: 0 closed, 1 half-open, 2 open.",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		askTotal,
		askDuration,
		askResults,
		noEvidenceTotal,
		retrievalAttempts,
		criticDecisions,
		plannerStrategies,
		fusionImages,
		fusionModalityTotal,
		collaboratorRetries,
		breakerState,
	)

	return &HTTPServerMetrics{
		registry:            registry,
		service:             service,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		askTotal:            askTotal,
		askDuration:         askDuration,
		askResults:          askResults,
		noEvidenceTotal:     noEvidenceTotal,
		retrievalAttempts:   retrievalAttempts,
		criticDecisions:     criticDecisions,
		plannerStrategies:   plannerStrategies,
		fusionImages:        fusionImages,
		fusionModalityTotal: fusionModalityTotal,
		collaboratorRetries: collaboratorRetries,
		breakerState:        breakerState,
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
	case strings.HasPrefix(path, "/v1/traces/"):
		return "/v1/traces/{trace_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordAsk(service, mode string, results int, duration time.Duration) {
	if mode == "" {
		mode = "unknown"
	}
	m.askTotal.WithLabelValues(service, mode).Inc()
	m.askDuration.WithLabelValues(service, mode).Observe(duration.Seconds())
	m.askResults.WithLabelValues(service, mode).Observe(float64(results))
	if results == 0 {
		m.noEvidenceTotal.WithLabelValues(service, mode).Inc()
	}
}

func (m *HTTPServerMetrics) RecordSelfImproving(service string, attempts int, decision string) {
	if attempts > 0 {
		m.retrievalAttempts.WithLabelValues(service).Observe(float64(attempts))
	}
	if decision == "" {
		decision = "unknown"
	}
	m.criticDecisions.WithLabelValues(service, decision).Inc()
}

func (m *HTTPServerMetrics) RecordPlannerSteps(service string, strategies []string) {
	for _, s := range strategies {
		if s == "" {
			s = "unknown"
		}
		m.plannerStrategies.WithLabelValues(service, s).Inc()
	}
}

func (m *HTTPServerMetrics) RecordFusion(service string, texts, images, analyzedImages, tables int) {
	m.fusionImages.WithLabelValues(service).Observe(float64(analyzedImages))
	m.fusionModalityTotal.WithLabelValues(service, "text").Add(float64(texts))
	m.fusionModalityTotal.WithLabelValues(service, "image").Add(float64(images))
	m.fusionModalityTotal.WithLabelValues(service, "table").Add(float64(tables))
}

func (m *HTTPServerMetrics) ObserveRetry(operation string) {
	m.collaboratorRetries.WithLabelValues(m.service, operation).Inc()
}

func (m *HTTPServerMetrics) ObserveBreakerState(operation, state string) {
	value := 0.0
	switch state {
	case "half-open":
		value = 1
	case "open":
		value = 2
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
