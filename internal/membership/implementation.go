// internal/membership/implementation.go
package membership

import (
	"context"
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
	"golang.org/x/time/rate"

	"bookworm/internal/auth"
	"bookworm/internal/eventstore"
	"bookworm/internal/validation"
)

// service implements the Service interface.
type service struct {
	repo        Repository
	validate    *validation.Validator
	rateLimiter *rate.Limiter
	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewService creates a new membership service instance. Registration and
// login draw from the same limiter.
func NewService(repo Repository, limiter *rate.Limiter, logger *slog.Logger) Service {
	return &service{
		repo:        repo,
		validate:    validation.New(),
		rateLimiter: limiter,
		logger:      logger.With(slog.String("component", "membership")),
		tracer:      otel.Tracer("bookworm/membership"),
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RegisterMember creates a new member with the member role.
func (s *service) RegisterMember(ctx context.Context, in RegisterInput) (*Member, error) {
	ctx, span := s.tracer.Start(ctx, "membership.register")
	defer span.End()

	if !s.rateLimiter.Allow() {
		attempts.WithLabelValues("register", "rate_limited").Inc()
		return nil, s.fail(span, ErrRateLimited)
	}

	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		var verrs validation.Errors
		if errors.As(err, &verrs) {
			err = fmt.Errorf("%w: %w", ErrValidation, verrs)
		}
		return nil, s.fail(span, err)
	}

	hash, salt, err := hashPassword(in.Password)
	if err != nil {
		return nil, s.fail(span, fmt.Errorf("failed to hash password: %w", err))
	}

	now := s.now()
	m := &Member{
		ID:        uuid.New(),
		Email:     in.Email,
		Name:      in.Name,
		Role:      auth.RoleMember,
		Status:    StatusActive,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	ev, err := eventstore.NewEvent("MemberRegistered", MemberRegisteredEvent{
		ID:    m.ID,
		Email: m.Email,
		Name:  m.Name,
	}, nil)
	if err != nil {
		return nil, s.fail(span, err)
	}

	cred := &Credential{MemberID: m.ID, PasswordHash: hash, Salt: salt}
	if err := s.repo.Create(ctx, m, cred, ev); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			attempts.WithLabelValues("register", "email_taken").Inc()
		}
		return nil, s.fail(span, err)
	}

	attempts.WithLabelValues("register", "ok").Inc()
	span.SetAttributes(attribute.String("member.id", m.ID.String()))
	s.logger.InfoContext(ctx, "member registered", slog.String("member_id", m.ID.String()))
	return m, nil
}

// Authenticate verifies a member's credentials and returns the member if
// successful. Unknown emails and wrong passwords are indistinguishable.
func (s *service) Authenticate(ctx context.Context, email, password string) (*Member, error) {
	ctx, span := s.tracer.Start(ctx, "membership.authenticate")
	defer span.End()

	if !s.rateLimiter.Allow() {
		attempts.WithLabelValues("login", "rate_limited").Inc()
		return nil, s.fail(span, ErrRateLimited)
	}

	m, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		attempts.WithLabelValues("login", "invalid").Inc()
		return nil, s.fail(span, ErrInvalidCredentials)
	}
	if err != nil {
		return nil, s.fail(span, fmt.Errorf("authentication failed: %w", err))
	}

	cred, err := s.repo.GetCredential(ctx, m.ID)
	if err != nil {
		return nil, s.fail(span, fmt.Errorf("authentication failed: %w", err))
	}
	ok, err := verifyPassword(password, cred.Salt, cred.PasswordHash)
	if err != nil {
		return nil, s.fail(span, fmt.Errorf("authentication failed: %w", err))
	}
	if !ok {
		attempts.WithLabelValues("login", "invalid").Inc()
		return nil, s.fail(span, ErrInvalidCredentials)
	}

	attempts.WithLabelValues("login", "ok").Inc()
	return m, nil
}

// GetMember retrieves a member by their ID.
func (s *service) GetMember(ctx context.Context, id uuid.UUID) (*Member, error) {
	ctx, span := s.tracer.Start(ctx, "membership.get", trace.WithAttributes(attribute.String("member.id", id.String())))
	defer span.End()

	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.fail(span, err)
	}
	return m, nil
}

// UpdateMemberRole changes a member's role, bumping its version.
func (s *service) UpdateMemberRole(ctx context.Context, id uuid.UUID, role auth.Role) (*Member, error) {
	ctx, span := s.tracer.Start(ctx, "membership.update_role", trace.WithAttributes(
		attribute.String("member.id", id.String()),
		attribute.String("member.role", string(role)),
	))
	defer span.End()

	if !role.Valid() {
		return nil, s.fail(span, fmt.Errorf("%w: %w", ErrValidation, validation.Errors{{Field: "role", Msg: "role must be one of member, librarian, admin"}}))
	}

	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if m.Role == role {
		return m, nil
	}

	metadata := map[string]string{}
	if actor, ok := auth.ActorFrom(ctx); ok {
		metadata["actorId"] = actor.MemberID.String()
		metadata["actorRole"] = string(actor.Role)
	}
	ev, err := eventstore.NewEvent("MemberRoleChanged", MemberRoleChangedEvent{
		ID:      m.ID,
		OldRole: m.Role,
		NewRole: role,
	}, metadata)
	if err != nil {
		return nil, s.fail(span, err)
	}

	expected := m.Version
	m.Role = role
	m.Version++
	m.UpdatedAt = s.now()
	if err := s.repo.UpdateRole(ctx, m, expected, ev); err != nil {
		return nil, s.fail(span, err)
	}

	s.logger.InfoContext(ctx, "member role changed",
		slog.String("member_id", m.ID.String()),
		slog.String("role", string(role)),
	)
	return m, nil
}

func (s *service) fail(span trace.Span, err error) error {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound), errors.Is(err, ErrEmailTaken),
		errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrRateLimited), errors.Is(err, ErrConflict):
		span.SetAttributes(attribute.String("membership.outcome", err.Error()))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
