// internal/catalog/memory.go
package catalog

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"bookworm/internal/eventstore"
)

// MemoryRepository keeps books in process. It backs STORE=memory and the
// tests; the mutex only provides memory safety; version checks still decide
// which concurrent writer wins.
type MemoryRepository struct {
	mu        sync.RWMutex
	books     map[uuid.UUID]*Book
	isbns     map[string]uuid.UUID
	// names caches resolved reviewer names.
	names     map[uuid.UUID]string
	directory ReviewerDirectory
	events    *eventstore.MemoryStore
}

// ReviewerDirectory resolves reviewer display names for the in-memory store,
// which has no members table to join.
type ReviewerDirectory interface {
	ReviewerName(ctx context.Context, id uuid.UUID) (string, error)
}

// NewMemoryRepository returns an empty store. A nil directory leaves reviewer
// names blank.
func NewMemoryRepository(events *eventstore.MemoryStore, directory ReviewerDirectory) *MemoryRepository {
	return &MemoryRepository{
		books:     make(map[uuid.UUID]*Book),
		isbns:     make(map[string]uuid.UUID),
		names:     make(map[uuid.UUID]string),
		directory: directory,
		events:    events,
	}
}

func (r *MemoryRepository) List(_ context.Context, p ListParams) ([]*Book, error) {
	p = p.normalize()
	matched := r.match(p)
	slices.SortFunc(matched, p.compare)

	start := min(max(p.Offset(), 0), len(matched))
	end := min(start+p.Limit, len(matched))
	page := make([]*Book, 0, end-start)
	for _, b := range matched[start:end] {
		c := b.clone()
		c.Reviews = nil
		page = append(page, c)
	}
	return page, nil
}

func (r *MemoryRepository) Count(_ context.Context, p ListParams) (int, error) {
	return len(r.match(p)), nil
}

func (r *MemoryRepository) match(p ListParams) []*Book {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Book
	for _, b := range r.books {
		if p.Matches(b) {
			out = append(out, b.clone())
		}
	}
	return out
}

func (r *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (*Book, error) {
	r.mu.RLock()
	b, ok := r.books[id]
	if !ok {
		r.mu.RUnlock()
		return nil, ErrNotFound
	}
	c := b.clone()
	var missing []uuid.UUID
	for i := range c.Reviews {
		name, known := r.names[c.Reviews[i].ReviewerID]
		if !known {
			missing = append(missing, c.Reviews[i].ReviewerID)
		}
		c.Reviews[i].ReviewerName = name
	}
	r.mu.RUnlock()

	if len(missing) > 0 && r.directory != nil {
		r.resolveNames(ctx, c, missing)
	}
	return c, nil
}

// resolveNames fills names the directory knows. A failed lookup leaves the
// name blank, like the LEFT JOIN of the PostgreSQL store, and is retried on
// the next read.
func (r *MemoryRepository) resolveNames(ctx context.Context, b *Book, ids []uuid.UUID) {
	resolved := make(map[uuid.UUID]string, len(ids))
	for _, id := range ids {
		if name, err := r.directory.ReviewerName(ctx, id); err == nil {
			resolved[id] = name
		}
	}

	r.mu.Lock()
	maps.Copy(r.names, resolved)
	r.mu.Unlock()

	for i := range b.Reviews {
		if name, ok := resolved[b.Reviews[i].ReviewerID]; ok {
			b.Reviews[i].ReviewerName = name
		}
	}
}

func (r *MemoryRepository) Insert(ctx context.Context, b *Book, ev eventstore.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.isbns[b.ISBN]; taken {
		return fmt.Errorf("failed to insert book: isbn %q already exists", b.ISBN)
	}
	if err := r.appendEvent(ctx, b.ID, 0, ev); err != nil {
		return err
	}
	r.books[b.ID] = b.clone()
	r.isbns[b.ISBN] = b.ID
	return nil
}

func (r *MemoryRepository) Update(ctx context.Context, b *Book, expectedVersion int, ev eventstore.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.guard(b.ID, expectedVersion)
	if err != nil {
		return err
	}
	if err := r.appendEvent(ctx, b.ID, expectedVersion, ev); err != nil {
		return err
	}
	// Reviews and rating are owned by AddReview.
	c := b.clone()
	c.Reviews = slices.Clone(stored.Reviews)
	c.Rating = stored.Rating
	r.books[b.ID] = c
	return nil
}

func (r *MemoryRepository) AddReview(ctx context.Context, b *Book, review Review, expectedVersion int, ev eventstore.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.guard(b.ID, expectedVersion)
	if err != nil {
		return err
	}
	if stored.hasReviewFrom(review.ReviewerID) {
		return ErrDuplicateReview
	}
	if err := r.appendEvent(ctx, b.ID, expectedVersion, ev); err != nil {
		return err
	}

	c := stored.clone()
	review.ReviewerName = ""
	c.Reviews = append(c.Reviews, review)
	c.Rating = b.Rating
	c.Status = b.Status
	c.Version = b.Version
	c.UpdatedAt = b.UpdatedAt
	r.books[b.ID] = c
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id uuid.UUID, expectedVersion int, ev eventstore.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.guard(id, expectedVersion)
	if err != nil {
		return err
	}
	if err := r.appendEvent(ctx, id, expectedVersion, ev); err != nil {
		return err
	}
	delete(r.isbns, stored.ISBN)
	delete(r.books, id)
	return nil
}

// guard must be called with mu held.
func (r *MemoryRepository) guard(id uuid.UUID, expectedVersion int) (*Book, error) {
	stored, ok := r.books[id]
	if !ok {
		return nil, ErrNotFound
	}
	if stored.Version != expectedVersion {
		return nil, ErrConflict
	}
	return stored, nil
}

func (r *MemoryRepository) appendEvent(ctx context.Context, id uuid.UUID, expectedVersion int, ev eventstore.Event) error {
	err := r.events.AppendEvents(ctx, id, AggregateType, expectedVersion, []eventstore.Event{ev})
	if errors.Is(err, eventstore.ErrConcurrencyConflict) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}
