// internal/catalog/service.go
package catalog

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"bookworm/internal/eventstore"
)

// ReviewInput is the body of a review submission.
type ReviewInput struct {
	Rating  int    `json:"rating" validate:"required,gte=1,lte=5"`
	Comment string `json:"comment" validate:"required"`
}

// Service defines the interface for the catalog service.
type Service interface {
	ListBooks(ctx context.Context, p ListParams) (*Page, error)
	GetBook(ctx context.Context, id uuid.UUID) (*Book, error)
	AddBook(ctx context.Context, in NewBook) (*Book, error)
	// UpdateBook applies a JSON object of allow-listed fields.
	UpdateBook(ctx context.Context, id uuid.UUID, patch map[string]json.RawMessage) (*Book, error)
	RemoveBook(ctx context.Context, id uuid.UUID) error
	SubmitReview(ctx context.Context, bookID, reviewerID uuid.UUID, in ReviewInput) (*Review, error)
	// History returns the recorded events of a book, oldest first. It
	// still answers after the book has been removed.
	History(ctx context.Context, id uuid.UUID) ([]eventstore.Event, error)
}
