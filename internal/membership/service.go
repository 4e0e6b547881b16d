// internal/membership/service.go
package membership

import (
	"context"

	"github.com/google/uuid"

	"bookworm/internal/auth"
)

// Service defines the membership service interface.
type Service interface {
	RegisterMember(ctx context.Context, in RegisterInput) (*Member, error)
	Authenticate(ctx context.Context, email, password string) (*Member, error)
	GetMember(ctx context.Context, id uuid.UUID) (*Member, error)
	UpdateMemberRole(ctx context.Context, id uuid.UUID, role auth.Role) (*Member, error)
}
