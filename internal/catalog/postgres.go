// internal/catalog/postgres.go
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"bookworm/internal/eventstore"
)

const bookColumns = `id, isbn, title, author, description, genre, publisher, location, cover_image,
	published_year, language, total_copies, available_copies, status,
	rating_average, rating_count, version, created_at, updated_at`

type bookRow struct {
	ID              uuid.UUID      `db:"id"`
	ISBN            string         `db:"isbn"`
	Title           string         `db:"title"`
	Author          string         `db:"author"`
	Description     string         `db:"description"`
	Genre           pq.StringArray `db:"genre"`
	Publisher       string         `db:"publisher"`
	Location        string         `db:"location"`
	CoverImage      string         `db:"cover_image"`
	PublishedYear   sql.NullInt64  `db:"published_year"`
	Language        string         `db:"language"`
	TotalCopies     int            `db:"total_copies"`
	AvailableCopies int            `db:"available_copies"`
	Status          string         `db:"status"`
	RatingAverage   float64        `db:"rating_average"`
	RatingCount     int            `db:"rating_count"`
	Version         int            `db:"version"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func (r bookRow) book() *Book {
	return &Book{
		ID:              r.ID,
		ISBN:            r.ISBN,
		Title:           r.Title,
		Author:          r.Author,
		Description:     r.Description,
		Genre:           []string(r.Genre),
		Publisher:       r.Publisher,
		Location:        r.Location,
		CoverImage:      r.CoverImage,
		PublishedYear:   int(r.PublishedYear.Int64),
		Language:        r.Language,
		TotalCopies:     r.TotalCopies,
		AvailableCopies: r.AvailableCopies,
		Status:          Status(r.Status),
		Rating:          Rating{Average: r.RatingAverage, Count: r.RatingCount},
		Version:         r.Version,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

type reviewRow struct {
	ReviewerID   uuid.UUID `db:"reviewer_id"`
	ReviewerName string    `db:"reviewer_name"`
	Rating       int       `db:"rating"`
	Comment      string    `db:"comment"`
	SubmittedAt  time.Time `db:"submitted_at"`
}

// PostgresRepository stores books in PostgreSQL and appends catalog events
// through the event store inside the same transaction.
type PostgresRepository struct {
	db     *sqlx.DB
	events *eventstore.PostgresStore
}

func NewPostgresRepository(db *sqlx.DB, events *eventstore.PostgresStore) *PostgresRepository {
	return &PostgresRepository{db: db, events: events}
}

func (r *PostgresRepository) List(ctx context.Context, p ListParams) ([]*Book, error) {
	p = p.normalize()
	where, args := buildListWhere(p)
	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM books %s %s LIMIT $%d OFFSET $%d`,
		bookColumns, where, buildOrderBy(p), n+1, n+2)
	args = append(args, p.Limit, p.Offset())

	var rows []bookRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}

	books := make([]*Book, 0, len(rows))
	for _, row := range rows {
		books = append(books, row.book())
	}
	return books, nil
}

func (r *PostgresRepository) Count(ctx context.Context, p ListParams) (int, error) {
	where, args := buildListWhere(p)
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM books `+where, args...); err != nil {
		return 0, fmt.Errorf("failed to count books: %w", err)
	}
	return total, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (*Book, error) {
	var row bookRow
	err := r.db.GetContext(ctx, &row, `SELECT `+bookColumns+` FROM books WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	b := row.book()

	var reviews []reviewRow
	err = r.db.SelectContext(ctx, &reviews, `
		SELECT r.reviewer_id, COALESCE(m.name, '') AS reviewer_name, r.rating, r.comment, r.submitted_at
		FROM reviews r
		LEFT JOIN members m ON m.id = r.reviewer_id
		WHERE r.book_id = $1
		ORDER BY r.submitted_at, r.id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load reviews: %w", err)
	}
	for _, rv := range reviews {
		b.Reviews = append(b.Reviews, Review(rv))
	}
	return b, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, b *Book, ev eventstore.Event) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO books (`+bookColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		`,
			b.ID, b.ISBN, b.Title, b.Author, b.Description, pq.StringArray(b.Genre),
			b.Publisher, b.Location, b.CoverImage, nullYear(b.PublishedYear), b.Language,
			b.TotalCopies, b.AvailableCopies, string(b.Status),
			b.Rating.Average, b.Rating.Count, b.Version, b.CreatedAt, b.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert book: %w", err)
		}
		return r.appendEvent(ctx, tx, b.ID, 0, ev)
	})
}

func (r *PostgresRepository) Update(ctx context.Context, b *Book, expectedVersion int, ev eventstore.Event) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE books SET
				title = $1, author = $2, description = $3, genre = $4, publisher = $5,
				location = $6, cover_image = $7, published_year = $8, language = $9,
				total_copies = $10, available_copies = $11, status = $12,
				version = $13, updated_at = $14
			WHERE id = $15 AND version = $16
		`,
			b.Title, b.Author, b.Description, pq.StringArray(b.Genre), b.Publisher,
			b.Location, b.CoverImage, nullYear(b.PublishedYear), b.Language,
			b.TotalCopies, b.AvailableCopies, string(b.Status),
			b.Version, b.UpdatedAt,
			b.ID, expectedVersion,
		)
		if err != nil {
			return fmt.Errorf("failed to update book: %w", err)
		}
		if err := r.checkAffected(ctx, tx, res, b.ID); err != nil {
			return err
		}
		return r.appendEvent(ctx, tx, b.ID, expectedVersion, ev)
	})
}

func (r *PostgresRepository) AddReview(ctx context.Context, b *Book, review Review, expectedVersion int, ev eventstore.Event) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE books SET
				rating_average = $1, rating_count = $2, status = $3, version = $4, updated_at = $5
			WHERE id = $6 AND version = $7
		`,
			b.Rating.Average, b.Rating.Count, string(b.Status), b.Version, b.UpdatedAt,
			b.ID, expectedVersion,
		)
		if err != nil {
			return fmt.Errorf("failed to update rating: %w", err)
		}
		if err := r.checkAffected(ctx, tx, res, b.ID); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO reviews (book_id, reviewer_id, rating, comment, submitted_at)
			VALUES ($1, $2, $3, $4, $5)
		`, b.ID, review.ReviewerID, review.Rating, review.Comment, review.SubmittedAt)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return ErrDuplicateReview
			}
			return fmt.Errorf("failed to insert review: %w", err)
		}
		return r.appendEvent(ctx, tx, b.ID, expectedVersion, ev)
	})
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID, expectedVersion int, ev eventstore.Event) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM books WHERE id = $1 AND version = $2`, id, expectedVersion)
		if err != nil {
			return fmt.Errorf("failed to delete book: %w", err)
		}
		if err := r.checkAffected(ctx, tx, res, id); err != nil {
			return err
		}
		return r.appendEvent(ctx, tx, id, expectedVersion, ev)
	})
}

func (r *PostgresRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// checkAffected tells a missing book apart from a stale version when a
// guarded statement touched no rows.
func (r *PostgresRepository) checkAffected(ctx context.Context, tx *sqlx.Tx, res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM books WHERE id = $1)`, id); err != nil {
		return fmt.Errorf("failed to check book: %w", err)
	}
	if exists {
		return ErrConflict
	}
	return ErrNotFound
}

func (r *PostgresRepository) appendEvent(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, expectedVersion int, ev eventstore.Event) error {
	err := r.events.AppendEventsTx(ctx, tx.Tx, id, AggregateType, expectedVersion, []eventstore.Event{ev})
	if errors.Is(err, eventstore.ErrConcurrencyConflict) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func nullYear(year int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(year), Valid: year > 0}
}

// buildListWhere builds the WHERE clause for the filters of p, numbering
// placeholders from $1.
func buildListWhere(p ListParams) (string, []any) {
	var conditions []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if p.Genre != "" {
		add("$%d = ANY(genre)", p.Genre)
	}
	if p.Author != "" {
		add(`author ILIKE $%d ESCAPE '\'`, likePattern(p.Author))
	}
	if p.Title != "" {
		add(`title ILIKE $%d ESCAPE '\'`, likePattern(p.Title))
	}
	if p.Status != "" {
		add("status = $%d", string(p.Status))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// buildOrderBy only ever emits whitelisted columns.
func buildOrderBy(p ListParams) string {
	column, ok := sortColumns[p.SortBy]
	if !ok {
		column = "title"
	}
	dir := "ASC"
	if p.SortOrder == "desc" {
		dir = "DESC"
	}
	return fmt.Sprintf("ORDER BY %s %s, created_at ASC, id ASC", column, dir)
}
