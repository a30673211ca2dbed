package middleware

import (
	"sync"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts failed Redis commands by command name.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postboard_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})

	// AuthEvents counts credential operations by event and outcome.
	AuthEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postboard_auth_events_total",
		Help: "Credential operations by event and outcome",
	}, []string{"event", "outcome"})

	// MediaOperations counts media store operations by backend, operation and outcome.
	MediaOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postboard_media_operations_total",
		Help: "Media store operations by backend, operation and outcome",
	}, []string{"backend", "operation", "outcome"})

	// RateLimitRejections counts requests refused by a rate rule.
	RateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postboard_rate_limit_rejections_total",
		Help: "Requests rejected by rate limiting, by resource",
	}, []string{"resource"})
)

var (
	promOnce sync.Once
	prom     *fiberprometheus.FiberPrometheus
)

// InitMetrics returns the HTTP metrics collector. Collectors register with the
// default registry, so the instance is created once per process.
func InitMetrics(serviceName string) *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		prom = fiberprometheus.New(serviceName)
	})
	return prom
}

// MetricsMiddleware records request metrics through p.
func MetricsMiddleware(p *fiberprometheus.FiberPrometheus) fiber.Handler {
	return p.Middleware
}

// Outcome labels a metric with "success" or "failure".
func Outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
