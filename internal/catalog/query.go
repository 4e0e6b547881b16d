// internal/catalog/query.go
package catalog

import (
	"cmp"
	"math"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// Sort fields accepted by ListParams.SortBy, mapped to their column.
var sortColumns = map[string]string{
	"title":           "title",
	"author":          "author",
	"publishedYear":   "published_year",
	"createdAt":       "created_at",
	"rating":          "rating_average",
	"availableCopies": "available_copies",
}

// ListParams is a parsed catalog query. Empty filters impose no constraint.
type ListParams struct {
	Page      int
	Limit     int
	Genre     string
	Author    string
	Title     string
	Status    Status
	SortBy    string
	SortOrder string
}

// ParseListParams reads query parameters. Malformed or out-of-range values
// fall back to their defaults instead of failing the request.
func ParseListParams(q url.Values) ListParams {
	p := ListParams{
		Page:      positiveInt(q.Get("page"), DefaultPage),
		Limit:     positiveInt(q.Get("limit"), DefaultLimit),
		Genre:     strings.TrimSpace(q.Get("genre")),
		Author:    strings.TrimSpace(q.Get("author")),
		Title:     strings.TrimSpace(q.Get("title")),
		Status:    Status(strings.TrimSpace(q.Get("status"))),
		SortBy:    q.Get("sortBy"),
		SortOrder: strings.ToLower(q.Get("sortOrder")),
	}
	return p.normalize()
}

// normalize applies the same defaults ParseListParams does, so params built
// in code behave like parsed ones.
func (p ListParams) normalize() ListParams {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if _, ok := sortColumns[p.SortBy]; !ok {
		p.SortBy = "title"
	}
	if p.SortOrder != "desc" {
		p.SortOrder = "asc"
	}
	return p
}

func positiveInt(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return def
	}
	return n
}

// Offset is the number of matching books skipped before the page starts.
// It saturates instead of overflowing, so any page past the end is empty and
// Offset()+Limit still fits in an int.
func (p ListParams) Offset() int {
	p = p.normalize()
	if maxPage := (math.MaxInt - p.Limit) / p.Limit; p.Page-1 > maxPage {
		return maxPage * p.Limit
	}
	return (p.Page - 1) * p.Limit
}

// Matches reports whether b satisfies every supplied filter.
func (p ListParams) Matches(b *Book) bool {
	if p.Genre != "" && !slices.Contains(b.Genre, p.Genre) {
		return false
	}
	if p.Author != "" && !containsFold(b.Author, p.Author) {
		return false
	}
	if p.Title != "" && !containsFold(b.Title, p.Title) {
		return false
	}
	if p.Status != "" && b.Status != p.Status {
		return false
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// compare orders two books by the sort key, then by creation time and id.
func (p ListParams) compare(a, b *Book) int {
	var c int
	switch p.SortBy {
	case "author":
		c = cmp.Compare(a.Author, b.Author)
	case "publishedYear":
		c = cmp.Compare(a.PublishedYear, b.PublishedYear)
	case "createdAt":
		c = a.CreatedAt.Compare(b.CreatedAt)
	case "rating":
		c = cmp.Compare(a.Rating.Average, b.Rating.Average)
	case "availableCopies":
		c = cmp.Compare(a.AvailableCopies, b.AvailableCopies)
	default:
		c = cmp.Compare(a.Title, b.Title)
	}
	if p.SortOrder == "desc" {
		c = -c
	}
	if c != 0 {
		return c
	}
	if c = a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID.String(), b.ID.String())
}

// TotalPages is ceil(count/limit).
func TotalPages(count, limit int) int {
	if limit < 1 || count <= 0 {
		return 0
	}
	return (count + limit - 1) / limit
}

// Page is one page of a catalog query.
type Page struct {
	Books       []*Book `json:"books"`
	TotalPages  int     `json:"totalPages"`
	CurrentPage int     `json:"currentPage"`
}
