package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus collectors for HTTP, LLM, and sandbox instrumentation.
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by route, method, and status.",
	}, []string{"route", "method", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by route and method.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	AIRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ai_requests_total",
		Help: "LLM gateway calls by operation and outcome.",
	}, []string{"op", "outcome"})

	AIRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ai_request_duration_seconds",
		Help:    "LLM gateway call latency by operation.",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"op"})

	AITokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ai_tokens_total",
		Help: "LLM tokens consumed by direction.",
	}, []string{"direction"})

	AICostUSDTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ai_cost_usd_total",
		Help: "Estimated LLM spend in USD.",
	})

	SandboxSubmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sandbox_submissions_total",
		Help: "Sandbox submissions by outcome.",
	}, []string{"outcome"})

	SandboxPollDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sandbox_poll_duration_seconds",
		Help:    "Wall time from submit to terminal sandbox status.",
		Buckets: []float64{0.5, 1, 2, 3, 5, 8, 10, 15},
	})

	SessionsExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sessions_expired_total",
		Help: "Sessions force-submitted by time-budget enforcement.",
	})

	EvaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "evaluations_total",
		Help: "Evaluation runs by outcome.",
	}, []string{"outcome"})
)

var registerOnce sync.Once

// InitMetrics registers all collectors once per process.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			AIRequestsTotal,
			AIRequestDuration,
			AITokensTotal,
			AICostUSDTotal,
			SandboxSubmissionsTotal,
			SandboxPollDuration,
			SessionsExpiredTotal,
			EvaluationsTotal,
		)
	})
}

// HTTPMetricsMiddleware records request counts and latency per chi route.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		route := "unknown"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(sw.status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
