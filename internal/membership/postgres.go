// internal/membership/postgres.go
package membership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"bookworm/internal/eventstore"
)

const memberColumns = `id, email, name, role, status, version, created_at, updated_at`

// PostgresRepository stores members in PostgreSQL.
type PostgresRepository struct {
	db     *sqlx.DB
	events *eventstore.PostgresStore
}

func NewPostgresRepository(db *sqlx.DB, events *eventstore.PostgresStore) *PostgresRepository {
	return &PostgresRepository{db: db, events: events}
}

func (r *PostgresRepository) Create(ctx context.Context, m *Member, cred *Credential, ev eventstore.Event) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO members (`+memberColumns+`)
		VALUES (:id, :email, :name, :role, :status, :version, :created_at, :updated_at)
	`, m)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to insert member: %w", err)
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO member_credentials (member_id, password_hash, salt)
		VALUES (:member_id, :password_hash, :salt)
	`, cred)
	if err != nil {
		return fmt.Errorf("failed to insert credential: %w", err)
	}

	if err := r.events.AppendEventsTx(ctx, tx.Tx, m.ID, AggregateType, 0, []eventstore.Event{ev}); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (*Member, error) {
	return r.getWhere(ctx, "id = $1", id)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*Member, error) {
	return r.getWhere(ctx, "email = $1", email)
}

func (r *PostgresRepository) getWhere(ctx context.Context, cond string, arg any) (*Member, error) {
	m := &Member{}
	err := r.db.GetContext(ctx, m, `SELECT `+memberColumns+` FROM members WHERE `+cond, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) GetCredential(ctx context.Context, memberID uuid.UUID) (*Credential, error) {
	cred := &Credential{}
	err := r.db.GetContext(ctx, cred, `
		SELECT member_id, password_hash, salt
		FROM member_credentials
		WHERE member_id = $1
	`, memberID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return cred, nil
}

func (r *PostgresRepository) UpdateRole(ctx context.Context, m *Member, expectedVersion int, ev eventstore.Event) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE members SET role = $1, version = $2, updated_at = $3
		WHERE id = $4 AND version = $5
	`, string(m.Role), m.Version, m.UpdatedAt, m.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return ErrConflict
	}

	err = r.events.AppendEventsTx(ctx, tx.Tx, m.ID, AggregateType, expectedVersion, []eventstore.Event{ev})
	if errors.Is(err, eventstore.ErrConcurrencyConflict) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
