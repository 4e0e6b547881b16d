// internal/membership/domain.go
package membership

import (
	"time"

	"github.com/google/uuid"

	"bookworm/internal/auth"
)

// AggregateType tags member events in the event log.
const AggregateType = "member"

const StatusActive = "active"

// Member is a registered library member.
type Member struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name" db:"name"`
	Role      auth.Role `json:"role" db:"role"`
	Status    string    `json:"status" db:"status"`
	Version   int       `json:"version" db:"version"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Profile is the public view of a member, shown next to their reviews.
type Profile struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Credential holds a member's password hash. It never leaves the service.
type Credential struct {
	MemberID     uuid.UUID `db:"member_id"`
	PasswordHash string    `db:"password_hash"`
	Salt         string    `db:"salt"`
}

// RegisterInput is the body of a registration request.
type RegisterInput struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

// MemberRegisteredEvent is published when a new member registers.
type MemberRegisteredEvent struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
}

// MemberRoleChangedEvent is published when an admin changes a member's role.
type MemberRoleChangedEvent struct {
	ID      uuid.UUID `json:"id"`
	OldRole auth.Role `json:"oldRole"`
	NewRole auth.Role `json:"newRole"`
}
