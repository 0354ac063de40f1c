package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	AttemptsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_attempts_started_total",
			Help: "Total number of newly created quiz attempts",
		},
	)

	AttemptsSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_attempts_submitted_total",
			Help: "Total number of submitted quiz attempts",
		},
	)

	// outcome: calculated / cached / fallback / fallback_kept / rejected / failed
	ResultCalculations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_result_calculations_total",
			Help: "Test result calculations by outcome",
		},
		[]string{"outcome"},
	)

	ResultCalculationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "test_result_calculation_duration_seconds",
			Help:    "Duration of test result calculations including retries",
			Buckets: prometheus.DefBuckets,
		},
	)

	// 0=closed 1=half-open 2=open
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "test_result_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	ResultTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "test_result_timeouts_total",
			Help: "Total number of test results marked as TIMEOUT",
		},
	)

	VisitEventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "visit_events_dropped_total",
			Help: "Visit events dropped because the queue was full",
		},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			AttemptsStarted,
			AttemptsSubmitted,
			ResultCalculations,
			ResultCalculationDuration,
			BreakerState,
			ResultTimeouts,
			VisitEventsDropped,
		)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
