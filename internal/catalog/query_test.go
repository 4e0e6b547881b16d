package catalog

import (
	"math"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseListParams(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  ListParams
	}{
		{
			name:  "defaults",
			query: "",
			want:  ListParams{Page: 1, Limit: 10, SortBy: "title", SortOrder: "asc"},
		},
		{
			name:  "all set",
			query: "page=3&limit=25&genre=fiction&author=Tolk&title=ring&status=limited&sortBy=rating&sortOrder=DESC",
			want: ListParams{
				Page: 3, Limit: 25, Genre: "fiction", Author: "Tolk", Title: "ring",
				Status: StatusLimited, SortBy: "rating", SortOrder: "desc",
			},
		},
		{
			name:  "malformed numbers fall back",
			query: "page=abc&limit=1.5",
			want:  ListParams{Page: 1, Limit: 10, SortBy: "title", SortOrder: "asc"},
		},
		{
			name:  "non-positive numbers fall back",
			query: "page=0&limit=-4",
			want:  ListParams{Page: 1, Limit: 10, SortBy: "title", SortOrder: "asc"},
		},
		{
			name:  "limit capped",
			query: "limit=5000",
			want:  ListParams{Page: 1, Limit: MaxLimit, SortBy: "title", SortOrder: "asc"},
		},
		{
			name:  "unknown sort falls back",
			query: "sortBy=isbn;DROP&sortOrder=sideways",
			want:  ListParams{Page: 1, Limit: 10, SortBy: "title", SortOrder: "asc"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, ParseListParams(q))
		})
	}
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 0, TotalPages(0, 10))
	assert.Equal(t, 1, TotalPages(1, 10))
	assert.Equal(t, 1, TotalPages(10, 10))
	assert.Equal(t, 2, TotalPages(11, 10))
	assert.Equal(t, 0, TotalPages(5, 0))
}

func TestOffset(t *testing.T) {
	assert.Equal(t, 0, ListParams{Page: 1, Limit: 10}.Offset())
	assert.Equal(t, 20, ListParams{Page: 3, Limit: 10}.Offset())
}

func TestOffset_SaturatesForHugePages(t *testing.T) {
	q := url.Values{"page": {"4611686018427387905"}, "limit": {"3"}}
	p := ParseListParams(q)
	assert.Equal(t, 4611686018427387905, p.Page)

	for _, p := range []ListParams{p, {Page: math.MaxInt, Limit: 1}, {Page: math.MaxInt, Limit: MaxLimit}} {
		off := p.Offset()
		assert.GreaterOrEqual(t, off, 0, "%+v", p)
		assert.LessOrEqual(t, off, math.MaxInt-p.Limit, "%+v", p)
	}
}

func TestBuildListWhere(t *testing.T) {
	where, args := buildListWhere(ListParams{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	where, args = buildListWhere(ListParams{Genre: "sf", Author: "le_guin", Status: StatusAvailable})
	assert.Equal(t, `WHERE $1 = ANY(genre) AND author ILIKE $2 ESCAPE '\' AND status = $3`, where)
	assert.Equal(t, []any{"sf", `%le\_guin%`, "available"}, args)
}

func TestBuildOrderBy(t *testing.T) {
	assert.Equal(t, "ORDER BY rating_average DESC, created_at ASC, id ASC",
		buildOrderBy(ListParams{SortBy: "rating", SortOrder: "desc"}))
	assert.Equal(t, "ORDER BY title ASC, created_at ASC, id ASC",
		buildOrderBy(ListParams{SortBy: "nope"}))
}
