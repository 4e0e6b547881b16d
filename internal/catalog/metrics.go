// internal/catalog/metrics.go
package catalog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reviewsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookworm_catalog_reviews_submitted_total",
		Help: "Reviews accepted by the catalog.",
	})

	reviewsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookworm_catalog_reviews_rejected_total",
		Help: "Reviews rejected, by reason.",
	}, []string{"reason"})

	writeConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookworm_catalog_write_conflicts_total",
		Help: "Writes rejected because the book changed since it was read.",
	}, []string{"operation"})

	booksChanged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookworm_catalog_books_changed_total",
		Help: "Successful catalog writes, by operation.",
	}, []string{"operation"})
)
