// Package metrics provides Prometheus instrumentation for the payment gate.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "x402gate",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "x402gate",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ChallengesIssuedTotal counts 402 challenges issued, by route.
	ChallengesIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "x402gate",
			Name:      "challenges_issued_total",
			Help:      "Total payment challenges issued by route.",
		},
		[]string{"route"},
	)

	// VerificationsTotal counts proof verification outcomes by verifier and result.
	VerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "x402gate",
			Name:      "verifications_total",
			Help:      "Total payment proof verifications by verifier scheme and result.",
		},
		[]string{"scheme", "result"},
	)

	// NonceReplaysTotal counts proofs rejected for reusing an already-reserved nonce.
	NonceReplaysTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "x402gate",
		Name:      "nonce_replays_total",
		Help:      "Total requests rejected for presenting an already-consumed nonce.",
	})

	// IdempotencyHitsTotal counts idempotency cache hits and conflicts.
	IdempotencyHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "x402gate",
			Name:      "idempotency_hits_total",
			Help:      "Total idempotency lookups by outcome (replay, conflict, miss).",
		},
		[]string{"outcome"},
	)

	// NonceRegistrySize tracks the number of reserved nonces currently held.
	NonceRegistrySize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "x402gate",
		Name:      "nonce_registry_size",
		Help:      "Current number of reserved nonces awaiting expiry.",
	})

	// IdempotencyStoreSize tracks the number of cached responses currently held.
	IdempotencyStoreSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "x402gate",
		Name:      "idempotency_store_size",
		Help:      "Current number of cached idempotent responses.",
	})

	// PayerSubmissionsTotal counts on-chain/mock payment submissions by result.
	PayerSubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "x402gate",
			Name:      "payer_submissions_total",
			Help:      "Total payment submissions attempted by the client payer, by scheme and result.",
		},
		[]string{"scheme", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ChallengesIssuedTotal,
		VerificationsTotal,
		NonceReplaysTotal,
		IdempotencyHitsTotal,
		NonceRegistrySize,
		IdempotencyStoreSize,
		PayerSubmissionsTotal,
	)
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for the /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
