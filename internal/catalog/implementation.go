// internal/catalog/implementation.go
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bookworm/internal/auth"
	"bookworm/internal/eventstore"
	"bookworm/internal/validation"
)

// service implements the Service interface.
type service struct {
	repo     Repository
	events   eventstore.Reader
	validate *validation.Validator
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewService creates a new catalog service instance.
func NewService(repo Repository, events eventstore.Reader, logger *slog.Logger) Service {
	return &service{
		repo:     repo,
		events:   events,
		validate: validation.New(),
		logger:   logger.With(slog.String("component", "catalog")),
		tracer:   otel.Tracer("bookworm/catalog"),
		now: func() time.Time {
			// PostgreSQL keeps microseconds.
			return time.Now().UTC().Truncate(time.Microsecond)
		},
	}
}

// ListBooks runs the count and the page fetch as two independent reads.
func (s *service) ListBooks(ctx context.Context, p ListParams) (*Page, error) {
	p = p.normalize()
	ctx, span := s.tracer.Start(ctx, "catalog.list", trace.WithAttributes(
		attribute.Int("page", p.Page),
		attribute.Int("limit", p.Limit),
		attribute.String("sort.by", p.SortBy),
	))
	defer span.End()

	total, err := s.repo.Count(ctx, p)
	if err != nil {
		return nil, s.fail(span, err)
	}
	books, err := s.repo.List(ctx, p)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if books == nil {
		books = []*Book{}
	}

	span.SetAttributes(attribute.Int("books.matched", total))
	return &Page{
		Books:       books,
		TotalPages:  TotalPages(total, p.Limit),
		CurrentPage: p.Page,
	}, nil
}

func (s *service) GetBook(ctx context.Context, id uuid.UUID) (*Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.get", trace.WithAttributes(attribute.String("book.id", id.String())))
	defer span.End()

	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.fail(span, err)
	}
	return b, nil
}

func (s *service) AddBook(ctx context.Context, in NewBook) (*Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.add")
	defer span.End()

	if err := s.validate.Struct(in); err != nil {
		return nil, s.fail(span, asValidation(err))
	}

	now := s.now()
	b := newBook(in, now)
	if err := b.checkInventory(); err != nil {
		return nil, s.fail(span, err)
	}
	b.finalize(now)

	ev, err := s.event(ctx, "BookAdded", BookAddedEvent{
		ID:          b.ID,
		ISBN:        b.ISBN,
		Title:       b.Title,
		Author:      b.Author,
		TotalCopies: b.TotalCopies,
		Available:   b.AvailableCopies,
		Status:      b.Status,
	})
	if err != nil {
		return nil, s.fail(span, err)
	}
	if err := s.repo.Insert(ctx, b, ev); err != nil {
		return nil, s.fail(span, err)
	}

	booksChanged.WithLabelValues("add").Inc()
	span.SetAttributes(attribute.String("book.id", b.ID.String()))
	s.logger.InfoContext(ctx, "book added", slog.String("book_id", b.ID.String()), slog.String("isbn", b.ISBN))
	return b, nil
}

func (s *service) UpdateBook(ctx context.Context, id uuid.UUID, patch map[string]json.RawMessage) (*Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.update", trace.WithAttributes(attribute.String("book.id", id.String())))
	defer span.End()

	// Reject bad field names before touching the store.
	if _, err := checkPatchFields(patch); err != nil {
		return nil, s.fail(span, err)
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.fail(span, err)
	}

	updated, fields, err := applyPatch(current, patch)
	if err != nil {
		return nil, s.fail(span, err)
	}
	updated.finalize(s.now())

	ev, err := s.event(ctx, "BookUpdated", BookUpdatedEvent{
		ID:      id,
		Fields:  fields,
		Status:  updated.Status,
		Version: updated.Version,
	})
	if err != nil {
		return nil, s.fail(span, err)
	}
	if err := s.repo.Update(ctx, updated, current.Version, ev); err != nil {
		if errors.Is(err, ErrConflict) {
			writeConflicts.WithLabelValues("update").Inc()
		}
		return nil, s.fail(span, err)
	}

	booksChanged.WithLabelValues("update").Inc()
	s.logger.InfoContext(ctx, "book updated",
		slog.String("book_id", id.String()),
		slog.String("fields", strings.Join(fields, ",")),
		slog.String("status", string(updated.Status)),
	)
	return updated, nil
}

func (s *service) RemoveBook(ctx context.Context, id uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "catalog.remove", trace.WithAttributes(attribute.String("book.id", id.String())))
	defer span.End()

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return s.fail(span, err)
	}

	ev, err := s.event(ctx, "BookRemoved", BookRemovedEvent{ID: id, ISBN: current.ISBN})
	if err != nil {
		return s.fail(span, err)
	}
	if err := s.repo.Delete(ctx, id, current.Version, ev); err != nil {
		if errors.Is(err, ErrConflict) {
			writeConflicts.WithLabelValues("remove").Inc()
		}
		return s.fail(span, err)
	}

	booksChanged.WithLabelValues("remove").Inc()
	s.logger.InfoContext(ctx, "book removed", slog.String("book_id", id.String()))
	return nil
}

// SubmitReview appends a review and recomputes the aggregate from every
// stored rating. The write is guarded by the version that was loaded.
func (s *service) SubmitReview(ctx context.Context, bookID, reviewerID uuid.UUID, in ReviewInput) (*Review, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.review", trace.WithAttributes(
		attribute.String("book.id", bookID.String()),
		attribute.String("reviewer.id", reviewerID.String()),
	))
	defer span.End()

	in.Comment = strings.TrimSpace(in.Comment)
	if err := s.validate.Struct(in); err != nil {
		reviewsRejected.WithLabelValues("validation").Inc()
		return nil, s.fail(span, asValidation(err))
	}

	current, err := s.repo.Get(ctx, bookID)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if current.hasReviewFrom(reviewerID) {
		reviewsRejected.WithLabelValues("duplicate").Inc()
		return nil, s.fail(span, ErrDuplicateReview)
	}

	now := s.now()
	review := Review{
		ReviewerID:  reviewerID,
		Rating:      in.Rating,
		Comment:     in.Comment,
		SubmittedAt: now,
	}
	updated := current.clone()
	updated.Reviews = append(updated.Reviews, review)
	updated.recomputeRating()
	updated.finalize(now)

	ev, err := s.event(ctx, "ReviewSubmitted", ReviewSubmittedEvent{
		BookID:     bookID,
		ReviewerID: reviewerID,
		Rating:     in.Rating,
		Average:    updated.Rating.Average,
		Count:      updated.Rating.Count,
	})
	if err != nil {
		return nil, s.fail(span, err)
	}
	if err := s.repo.AddReview(ctx, updated, review, current.Version, ev); err != nil {
		switch {
		case errors.Is(err, ErrDuplicateReview):
			reviewsRejected.WithLabelValues("duplicate").Inc()
		case errors.Is(err, ErrConflict):
			writeConflicts.WithLabelValues("review").Inc()
		}
		return nil, s.fail(span, err)
	}

	reviewsSubmitted.Inc()
	s.logger.InfoContext(ctx, "review submitted",
		slog.String("book_id", bookID.String()),
		slog.String("reviewer_id", reviewerID.String()),
		slog.Int("rating", in.Rating),
		slog.Float64("average", updated.Rating.Average),
		slog.Int("count", updated.Rating.Count),
	)
	return &review, nil
}

func (s *service) History(ctx context.Context, id uuid.UUID) ([]eventstore.Event, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.history", trace.WithAttributes(attribute.String("book.id", id.String())))
	defer span.End()

	events, err := s.events.LoadEvents(ctx, id, 1, 0)
	if err != nil {
		return nil, s.fail(span, fmt.Errorf("failed to load events: %w", err))
	}
	if len(events) == 0 {
		return nil, s.fail(span, ErrNotFound)
	}
	return events, nil
}

// event builds a catalog event carrying the acting member, if any.
func (s *service) event(ctx context.Context, eventType string, data any) (eventstore.Event, error) {
	metadata := map[string]string{}
	if actor, ok := auth.ActorFrom(ctx); ok {
		metadata["actorId"] = actor.MemberID.String()
		metadata["actorRole"] = string(actor.Role)
	}
	return eventstore.NewEvent(eventType, data, metadata)
}

// fail records err on the span. Client errors are not span errors.
func (s *service) fail(span trace.Span, err error) error {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrDuplicateReview), errors.Is(err, ErrConflict):
		span.SetAttributes(attribute.String("catalog.outcome", err.Error()))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func asValidation(err error) error {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		return validationError(verrs)
	}
	return err
}
