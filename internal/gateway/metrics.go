package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bookworm_gateway_breaker_state",
		Help: "Circuit breaker state per upstream: 0 closed, 1 half-open, 2 open.",
	}, []string{"upstream"})

	rateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookworm_gateway_rate_limited_total",
		Help: "Requests rejected by the per-client rate limiter.",
	})
)
