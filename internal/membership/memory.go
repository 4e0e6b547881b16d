// internal/membership/memory.go
package membership

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"bookworm/internal/eventstore"
)

// MemoryRepository keeps members in process.
type MemoryRepository struct {
	mu          sync.RWMutex
	members     map[uuid.UUID]Member
	emails      map[string]uuid.UUID
	credentials map[uuid.UUID]Credential
	events      *eventstore.MemoryStore
}

func NewMemoryRepository(events *eventstore.MemoryStore) *MemoryRepository {
	return &MemoryRepository{
		members:     make(map[uuid.UUID]Member),
		emails:      make(map[string]uuid.UUID),
		credentials: make(map[uuid.UUID]Credential),
		events:      events,
	}
}

func (r *MemoryRepository) Create(ctx context.Context, m *Member, cred *Credential, ev eventstore.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.emails[m.Email]; taken {
		return ErrEmailTaken
	}
	if err := r.events.AppendEvents(ctx, m.ID, AggregateType, 0, []eventstore.Event{ev}); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	r.members[m.ID] = *m
	r.emails[m.Email] = m.ID
	r.credentials[m.ID] = *cred
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (*Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.members[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*Member, error) {
	r.mu.RLock()
	id, ok := r.emails[email]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *MemoryRepository) GetCredential(_ context.Context, memberID uuid.UUID) (*Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cred, ok := r.credentials[memberID]
	if !ok {
		return nil, ErrNotFound
	}
	return &cred, nil
}

func (r *MemoryRepository) UpdateRole(ctx context.Context, m *Member, expectedVersion int, ev eventstore.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.members[m.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != expectedVersion {
		return ErrConflict
	}
	err := r.events.AppendEvents(ctx, m.ID, AggregateType, expectedVersion, []eventstore.Event{ev})
	if errors.Is(err, eventstore.ErrConcurrencyConflict) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	stored.Role = m.Role
	stored.Version = m.Version
	stored.UpdatedAt = m.UpdatedAt
	r.members[m.ID] = stored
	return nil
}
