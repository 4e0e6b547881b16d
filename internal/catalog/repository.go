// internal/catalog/repository.go
package catalog

import (
	"context"

	"github.com/google/uuid"

	"bookworm/internal/eventstore"
)

// AggregateType tags catalog events in the event log.
const AggregateType = "book"

// Repository persists books. Every write carries the version the caller
// loaded and appends ev to the book's event stream in the same unit of work;
// a version mismatch returns ErrConflict and nothing is written.
type Repository interface {
	// List returns one page of books matching p, without reviews.
	List(ctx context.Context, p ListParams) ([]*Book, error)
	// Count returns how many books match the filters of p.
	Count(ctx context.Context, p ListParams) (int, error)
	// Get returns the book with its reviews and reviewer names.
	Get(ctx context.Context, id uuid.UUID) (*Book, error)

	Insert(ctx context.Context, b *Book, ev eventstore.Event) error
	Update(ctx context.Context, b *Book, expectedVersion int, ev eventstore.Event) error
	// AddReview stores review and the recomputed aggregate carried by b.
	AddReview(ctx context.Context, b *Book, review Review, expectedVersion int, ev eventstore.Event) error
	Delete(ctx context.Context, id uuid.UUID, expectedVersion int, ev eventstore.Event) error
}
