// internal/membership/metrics.go
package membership

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var attempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bookworm_membership_attempts_total",
	Help: "Registration and login attempts, by outcome.",
}, []string{"operation", "outcome"})
