package catalog

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookworm/internal/auth"
	"bookworm/internal/httpx"
)

const handlerSecret = "handler-test-secret"

type apiClient struct {
	t      *testing.T
	router http.Handler
	fx     *fixture
}

func newAPIClient(t *testing.T) *apiClient {
	fx := newFixture()
	r := chi.NewRouter()
	NewHandler(fx.svc, slog.New(slog.NewTextHandler(io.Discard, nil))).Mount(r, auth.NewAuthenticator(handlerSecret))
	return &apiClient{t: t, router: r, fx: fx}
}

func token(t *testing.T, memberID uuid.UUID, role auth.Role) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   memberID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(handlerSecret))
	require.NoError(t, err)
	return signed
}

func (c *apiClient) do(method, path, bearer, body string) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHandler_Scenario(t *testing.T) {
	c := newAPIClient(t)
	librarian := token(t, uuid.New(), auth.RoleLibrarian)

	rec := c.do(http.MethodPost, "/books", librarian, `{
		"isbn": "9780261103573", "title": "The Fellowship of the Ring", "author": "J.R.R. Tolkien",
		"genre": ["fantasy"], "totalCopies": 5, "availableCopies": 5, "publishedYear": 1954
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	book := decode[Book](t, rec)
	assert.Equal(t, StatusAvailable, book.Status)
	assert.Equal(t, "English", book.Language)

	for _, rating := range []int{4, 5, 3} {
		reader := token(t, uuid.New(), auth.RoleMember)
		rec = c.do(http.MethodPost, "/books/"+book.ID.String()+"/reviews", reader, `{"rating": `+strconv.Itoa(rating)+`, "comment": "worth it"}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		review := decode[Review](t, rec)
		assert.Equal(t, rating, review.Rating)
	}

	rec = c.do(http.MethodGet, "/books/"+book.ID.String(), "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[Book](t, rec)
	assert.Equal(t, Rating{Average: 4.0, Count: 3}, got.Rating)
	assert.Len(t, got.Reviews, 3)

	rec = c.do(http.MethodPut, "/books/"+book.ID.String(), librarian, `{"availableCopies": 0}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got = decode[Book](t, rec)
	assert.Equal(t, StatusUnavailable, got.Status)
	assert.Equal(t, Rating{Average: 4.0, Count: 3}, got.Rating)

	rec = c.do(http.MethodGet, "/books?status=unavailable&genre=fantasy", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[Page](t, rec)
	assert.Equal(t, 1, page.TotalPages)
	assert.Equal(t, 1, page.CurrentPage)
	require.Len(t, page.Books, 1)
	assert.Empty(t, page.Books[0].Reviews)

	rec = c.do(http.MethodGet, "/books/"+book.ID.String()+"/history", librarian, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, strings.Count(rec.Body.String(), `"eventType"`))

	rec = c.do(http.MethodDelete, "/books/"+book.ID.String(), librarian, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Book removed successfully"}`, rec.Body.String())

	rec = c.do(http.MethodGet, "/books/"+book.ID.String(), "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"Book not found"}`, rec.Body.String())
}

func TestHandler_ListEmptyAndPermissive(t *testing.T) {
	c := newAPIClient(t)

	rec := c.do(http.MethodGet, "/books?page=abc&limit=xyz&sortBy=nonsense", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"books":[],"totalPages":0,"currentPage":1}`, rec.Body.String())
}

func TestHandler_ListHugePageIsEmpty(t *testing.T) {
	c := newAPIClient(t)
	for i := 0; i < 4; i++ {
		c.fx.addBook(t, NewBook{TotalCopies: 2})
	}

	rec := c.do(http.MethodGet, "/books?page=4611686018427387905&limit=3", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"books":[],"totalPages":2,"currentPage":4611686018427387905}`, rec.Body.String())
}

func TestHandler_AuthGates(t *testing.T) {
	c := newAPIClient(t)
	b := c.fx.addBook(t, NewBook{TotalCopies: 1})
	path := "/books/" + b.ID.String()
	member := token(t, uuid.New(), auth.RoleMember)

	tests := []struct {
		name   string
		method string
		path   string
		bearer string
		body   string
		want   int
	}{
		{"create without token", http.MethodPost, "/books", "", `{}`, http.StatusUnauthorized},
		{"create as member", http.MethodPost, "/books", member, `{}`, http.StatusForbidden},
		{"update as member", http.MethodPut, path, member, `{"title":"x"}`, http.StatusForbidden},
		{"delete as member", http.MethodDelete, path, member, "", http.StatusForbidden},
		{"history as member", http.MethodGet, path + "/history", member, "", http.StatusForbidden},
		{"review without token", http.MethodPost, path + "/reviews", "", `{"rating":5,"comment":"x"}`, http.StatusUnauthorized},
		{"review with bad token", http.MethodPost, path + "/reviews", "not-a-jwt", `{"rating":5,"comment":"x"}`, http.StatusUnauthorized},
		{"read is public", http.MethodGet, path, "", "", http.StatusOK},
		{"list is public", http.MethodGet, "/books", "", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := c.do(tt.method, tt.path, tt.bearer, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	stored, err := c.fx.svc.GetBook(t.Context(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Title, stored.Title)
}

func TestHandler_ClientErrors(t *testing.T) {
	c := newAPIClient(t)
	b := c.fx.addBook(t, NewBook{TotalCopies: 1})
	path := "/books/" + b.ID.String()
	admin := token(t, uuid.New(), auth.RoleAdmin)
	reviewer := token(t, uuid.New(), auth.RoleMember)

	t.Run("malformed id is not found", func(t *testing.T) {
		rec := c.do(http.MethodGet, "/books/not-a-uuid", "", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		rec := c.do(http.MethodPost, "/books", admin, `{"title":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"message":"Invalid request body"}`, rec.Body.String())
	})

	t.Run("create validation has field detail", func(t *testing.T) {
		rec := c.do(http.MethodPost, "/books", admin, `{"title":"Only a title"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decode[httpx.ErrorResponse](t, rec)
		assert.Equal(t, "Validation failed", resp.Message)
		var fields []string
		for _, fe := range resp.Errors {
			fields = append(fields, fe.Field)
		}
		assert.ElementsMatch(t, []string{"isbn", "author", "genre"}, fields)
	})

	t.Run("update outside allow-list", func(t *testing.T) {
		rec := c.do(http.MethodPut, path, admin, `{"title":"ok","isbn":"changed"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decode[httpx.ErrorResponse](t, rec)
		require.Len(t, resp.Errors, 1)
		assert.Equal(t, "isbn", resp.Errors[0].Field)
	})

	t.Run("review rating out of range", func(t *testing.T) {
		rec := c.do(http.MethodPost, path+"/reviews", reviewer, `{"rating":9,"comment":"x"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("duplicate review", func(t *testing.T) {
		rec := c.do(http.MethodPost, path+"/reviews", reviewer, `{"rating":5,"comment":"first"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		rec = c.do(http.MethodPost, path+"/reviews", reviewer, `{"rating":3,"comment":"second"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"message":"You have already reviewed this book"}`, rec.Body.String())
	})

	t.Run("review unknown book", func(t *testing.T) {
		rec := c.do(http.MethodPost, "/books/"+uuid.NewString()+"/reviews", reviewer, `{"rating":5,"comment":"x"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandler_StoreErrorIs500WithCause(t *testing.T) {
	c := newAPIClient(t)
	admin := token(t, uuid.New(), auth.RoleAdmin)
	body := `{"isbn":"dup","title":"t","author":"a","genre":["g"],"totalCopies":1}`

	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/books", admin, body).Code)
	rec := c.do(http.MethodPost, "/books", admin, body)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode[httpx.ErrorResponse](t, rec)
	assert.Equal(t, "Server error", resp.Message)
	assert.Contains(t, resp.Error, "already exists")
}

type conflictingService struct{ Service }

func (conflictingService) UpdateBook(_ context.Context, _ uuid.UUID, _ map[string]json.RawMessage) (*Book, error) {
	return nil, ErrConflict
}

func TestHandler_ConflictIs409(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(conflictingService{}, slog.New(slog.NewTextHandler(io.Discard, nil))).Mount(r, auth.NewAuthenticator(handlerSecret))

	req := httptest.NewRequest(http.MethodPut, "/books/"+uuid.NewString(), strings.NewReader(`{"title":"x"}`))
	req.Header.Set("Authorization", "Bearer "+token(t, uuid.New(), auth.RoleAdmin))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
