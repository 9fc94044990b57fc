package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marshrut",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "marshrut",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	// Booking metrics
	BookingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marshrut",
		Subsystem: "booking",
		Name:      "bookings_total",
		Help:      "Total booking attempts by unit kind and outcome",
	}, []string{"kind", "outcome"})

	UnitsCancelled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marshrut",
		Subsystem: "booking",
		Name:      "units_cancelled_total",
		Help:      "Total reservation units cancelled, by reason",
	}, []string{"reason"})

	// Scheduler metrics
	ActionsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marshrut",
		Subsystem: "scheduler",
		Name:      "actions_fired_total",
		Help:      "Total delayed actions fired by purpose and result",
	}, []string{"purpose", "result"})

	// Payment gateway metrics
	GatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "marshrut",
		Subsystem: "gateway",
		Name:      "request_duration_seconds",
		Help:      "Payment gateway round-trip latency",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"action", "result"})

	// Database pool metrics
	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "marshrut",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Database connections currently in use",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "marshrut",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Database connections available in the pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)

		return err
	}
}

// Handler returns a Fiber handler serving the Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// UpdateDBPoolMetrics publishes pool stats from pgxpool.
func UpdateDBPoolMetrics(stat interface {
	AcquiredConns() int32
	IdleConns() int32
}) {
	DBPoolConnsAcquired.Set(float64(stat.AcquiredConns()))
	DBPoolConnsIdle.Set(float64(stat.IdleConns()))
}
