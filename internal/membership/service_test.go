package membership

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"bookworm/internal/auth"
	"bookworm/internal/eventstore"
)

type fixture struct {
	svc    Service
	events *eventstore.MemoryStore
}

func newFixture(limiter *rate.Limiter) *fixture {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	events := eventstore.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{
		svc:    NewService(NewMemoryRepository(events), limiter, logger),
		events: events,
	}
}

func TestRegisterAndAuthenticate(t *testing.T) {
	fx := newFixture(nil)
	ctx := context.Background()

	m, err := fx.svc.RegisterMember(ctx, RegisterInput{Email: "  Ada@Example.org ", Name: "Ada", Password: "lovelace1815"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.org", m.Email)
	assert.Equal(t, auth.RoleMember, m.Role)
	assert.Equal(t, StatusActive, m.Status)
	assert.Equal(t, 1, m.Version)

	got, err := fx.svc.Authenticate(ctx, "ADA@example.org", "lovelace1815")
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)

	_, err = fx.svc.Authenticate(ctx, "ada@example.org", "babbage")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = fx.svc.Authenticate(ctx, "nobody@example.org", "lovelace1815")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	events, err := fx.events.LoadEvents(ctx, m.ID, 1, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "MemberRegistered", events[0].EventType)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	fx := newFixture(nil)
	ctx := context.Background()

	_, err := fx.svc.RegisterMember(ctx, RegisterInput{Email: "grace@example.org", Name: "Grace", Password: "cobol-1959"})
	require.NoError(t, err)
	_, err = fx.svc.RegisterMember(ctx, RegisterInput{Email: "Grace@example.org", Name: "Other", Password: "another-pw"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegister_Validation(t *testing.T) {
	fx := newFixture(nil)

	_, err := fx.svc.RegisterMember(context.Background(), RegisterInput{Email: "not-an-email", Name: " ", Password: "short"})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "email")
}

func TestRateLimiter_SharedByRegisterAndLogin(t *testing.T) {
	fx := newFixture(rate.NewLimiter(rate.Every(time.Hour), 2))
	ctx := context.Background()

	_, err := fx.svc.RegisterMember(ctx, RegisterInput{Email: "a@example.org", Name: "A", Password: "password-a"})
	require.NoError(t, err)
	_, err = fx.svc.Authenticate(ctx, "a@example.org", "password-a")
	require.NoError(t, err)

	_, err = fx.svc.Authenticate(ctx, "a@example.org", "password-a")
	assert.ErrorIs(t, err, ErrRateLimited)
	_, err = fx.svc.RegisterMember(ctx, RegisterInput{Email: "b@example.org", Name: "B", Password: "password-b"})
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestUpdateMemberRole(t *testing.T) {
	fx := newFixture(nil)
	ctx := auth.WithActor(context.Background(), auth.Actor{MemberID: uuid.New(), Role: auth.RoleAdmin})

	m, err := fx.svc.RegisterMember(ctx, RegisterInput{Email: "l@example.org", Name: "L", Password: "librarian"})
	require.NoError(t, err)

	updated, err := fx.svc.UpdateMemberRole(ctx, m.ID, auth.RoleLibrarian)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleLibrarian, updated.Role)
	assert.Equal(t, 2, updated.Version)

	got, err := fx.svc.GetMember(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleLibrarian, got.Role)

	events, err := fx.events.LoadEvents(ctx, m.ID, 1, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "MemberRoleChanged", events[1].EventType)
	assert.Equal(t, "admin", events[1].Metadata["actorRole"])

	same, err := fx.svc.UpdateMemberRole(ctx, m.ID, auth.RoleLibrarian)
	require.NoError(t, err)
	assert.Equal(t, 2, same.Version)

	_, err = fx.svc.UpdateMemberRole(ctx, m.ID, "superuser")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = fx.svc.UpdateMemberRole(ctx, uuid.New(), auth.RoleAdmin)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepository_StaleRoleUpdate(t *testing.T) {
	repo := NewMemoryRepository(eventstore.NewMemoryStore())
	ctx := context.Background()
	m := &Member{ID: uuid.New(), Email: "s@example.org", Role: auth.RoleMember, Version: 1}
	ev, err := eventstore.NewEvent("MemberRegistered", MemberRegisteredEvent{ID: m.ID}, nil)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, m, &Credential{MemberID: m.ID}, ev))

	changed := *m
	changed.Role = auth.RoleAdmin
	changed.Version = 3
	err = repo.UpdateRole(ctx, &changed, 2, ev)
	assert.ErrorIs(t, err, ErrConflict)

	stored, err := repo.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleMember, stored.Role)
}
