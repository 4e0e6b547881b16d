// internal/catalog/domain.go
package catalog

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"bookworm/internal/validation"
)

// Status is the availability of a book, derived from its inventory.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusLimited     Status = "limited"
	StatusUnavailable Status = "unavailable"
)

// DefaultLanguage is applied when a book is created without a language.
const DefaultLanguage = "English"

// DeriveStatus maps inventory to a status: unavailable with no copies left,
// limited below 20% of the total, available otherwise.
func DeriveStatus(available, total int) Status {
	switch {
	case available == 0:
		return StatusUnavailable
	case available*5 < total:
		return StatusLimited
	default:
		return StatusAvailable
	}
}

// Rating is the aggregate of a book's reviews.
type Rating struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// Review is one reader's rating of a book.
type Review struct {
	ReviewerID   uuid.UUID `json:"reviewerId"`
	ReviewerName string    `json:"reviewerName,omitempty"`
	Rating       int       `json:"rating"`
	Comment      string    `json:"comment"`
	SubmittedAt  time.Time `json:"submittedAt"`
}

// Book is a catalog entry.
type Book struct {
	ID              uuid.UUID `json:"id"`
	ISBN            string    `json:"isbn"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	Description     string    `json:"description"`
	Genre           []string  `json:"genre"`
	Publisher       string    `json:"publisher"`
	Location        string    `json:"location"`
	CoverImage      string    `json:"coverImage"`
	PublishedYear   int       `json:"publishedYear,omitempty"`
	Language        string    `json:"language"`
	TotalCopies     int       `json:"totalCopies"`
	AvailableCopies int       `json:"availableCopies"`
	Status          Status    `json:"status"`
	Rating          Rating    `json:"rating"`
	Reviews         []Review  `json:"reviews,omitempty"`
	Version         int       `json:"version"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// NewBook is the input for adding a book. Server-assigned fields
// (id, status, rating, reviews, version) are absent.
type NewBook struct {
	ISBN            string   `json:"isbn" validate:"required"`
	Title           string   `json:"title" validate:"required"`
	Author          string   `json:"author" validate:"required"`
	Description     string   `json:"description"`
	Genre           []string `json:"genre" validate:"required,min=1,dive,required"`
	Publisher       string   `json:"publisher"`
	Location        string   `json:"location"`
	CoverImage      string   `json:"coverImage"`
	PublishedYear   int      `json:"publishedYear" validate:"gte=0"`
	Language        string   `json:"language"`
	TotalCopies     int      `json:"totalCopies" validate:"gte=0"`
	AvailableCopies *int     `json:"availableCopies" validate:"omitempty,gte=0"`
}

// newBook builds a book from validated input with defaults applied.
// The result is not finalized.
func newBook(in NewBook, now time.Time) *Book {
	b := &Book{
		ID:            uuid.New(),
		ISBN:          strings.TrimSpace(in.ISBN),
		Title:         strings.TrimSpace(in.Title),
		Author:        strings.TrimSpace(in.Author),
		Description:   in.Description,
		Genre:         slices.Clone(in.Genre),
		Publisher:     in.Publisher,
		Location:      in.Location,
		CoverImage:    in.CoverImage,
		PublishedYear: in.PublishedYear,
		Language:      in.Language,
		TotalCopies:   in.TotalCopies,
		CreatedAt:     now,
	}
	if b.Language == "" {
		b.Language = DefaultLanguage
	}
	b.AvailableCopies = in.TotalCopies
	if in.AvailableCopies != nil {
		b.AvailableCopies = *in.AvailableCopies
	}
	return b
}

// finalize runs at the end of every write path: it re-derives the status,
// stamps the update time and advances the version.
func (b *Book) finalize(now time.Time) {
	b.Status = DeriveStatus(b.AvailableCopies, b.TotalCopies)
	b.UpdatedAt = now
	b.Version++
}

// checkInventory reports a field error when the copy counts are inconsistent.
func (b *Book) checkInventory() error {
	var errs validation.Errors
	if b.TotalCopies < 0 {
		errs = append(errs, validation.FieldError{Field: "totalCopies", Msg: "totalCopies must be at least 0"})
	}
	if b.AvailableCopies < 0 {
		errs = append(errs, validation.FieldError{Field: "availableCopies", Msg: "availableCopies must be at least 0"})
	}
	if b.AvailableCopies > b.TotalCopies {
		errs = append(errs, validation.FieldError{Field: "availableCopies", Msg: "availableCopies cannot exceed totalCopies"})
	}
	if len(errs) > 0 {
		return validationError(errs)
	}
	return nil
}

// recomputeRating rebuilds the aggregate from every stored review.
func (b *Book) recomputeRating() {
	if len(b.Reviews) == 0 {
		b.Rating = Rating{}
		return
	}
	sum := 0
	for _, r := range b.Reviews {
		sum += r.Rating
	}
	b.Rating = Rating{
		Average: float64(sum) / float64(len(b.Reviews)),
		Count:   len(b.Reviews),
	}
}

func (b *Book) hasReviewFrom(reviewerID uuid.UUID) bool {
	for _, r := range b.Reviews {
		if r.ReviewerID == reviewerID {
			return true
		}
	}
	return false
}

func (b *Book) clone() *Book {
	c := *b
	c.Genre = slices.Clone(b.Genre)
	c.Reviews = slices.Clone(b.Reviews)
	return &c
}

// Catalog event payloads.

type BookAddedEvent struct {
	ID          uuid.UUID `json:"id"`
	ISBN        string    `json:"isbn"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	TotalCopies int       `json:"totalCopies"`
	Available   int       `json:"availableCopies"`
	Status      Status    `json:"status"`
}

type BookUpdatedEvent struct {
	ID      uuid.UUID `json:"id"`
	Fields  []string  `json:"fields"`
	Status  Status    `json:"status"`
	Version int       `json:"version"`
}

type ReviewSubmittedEvent struct {
	BookID     uuid.UUID `json:"bookId"`
	ReviewerID uuid.UUID `json:"reviewerId"`
	Rating     int       `json:"rating"`
	Average    float64   `json:"average"`
	Count      int       `json:"count"`
}

type BookRemovedEvent struct {
	ID   uuid.UUID `json:"id"`
	ISBN string    `json:"isbn"`
}
