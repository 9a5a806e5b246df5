package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AuthOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_operations_total",
		Help: "Session engine operations by outcome.",
	}, []string{"op", "result"})

	AuthOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "auth_operation_duration_seconds",
		Help:    "Latency of session engine operations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	RateLimitRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ratelimit_rejected_total",
		Help: "Requests rejected by the rate limiter.",
	}, []string{"transport"})

	RateLimitErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ratelimit_errors_total",
		Help: "Limiter backend failures; the request is admitted.",
	}, []string{"transport"})

	RefreshTokensPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_refresh_tokens_purged_total",
		Help: "Expired refresh tokens deleted by the housekeeping sweep.",
	})
)
