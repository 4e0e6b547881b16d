// internal/membership/repository.go
package membership

import (
	"context"

	"github.com/google/uuid"

	"bookworm/internal/eventstore"
)

// Repository persists members and their credentials. Writes append ev to
// the member's event stream in the same unit of work.
type Repository interface {
	Create(ctx context.Context, m *Member, cred *Credential, ev eventstore.Event) error
	Get(ctx context.Context, id uuid.UUID) (*Member, error)
	GetByEmail(ctx context.Context, email string) (*Member, error)
	GetCredential(ctx context.Context, memberID uuid.UUID) (*Credential, error)
	UpdateRole(ctx context.Context, m *Member, expectedVersion int, ev eventstore.Event) error
}
