package gateway

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRoutes(t *testing.T) {
	routes, err := Routes("http://catalog:8081", "http://membership:8082")
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, "catalog:8081", routes[0].Target.Host)

	_, err = Routes("catalog:8081", "http://membership:8082")
	assert.Error(t, err)
	_, err = Routes("http://catalog:8081", "ftp://membership")
	assert.Error(t, err)
}

func TestMount_StripsPrefixes(t *testing.T) {
	var seen atomic.Value
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.URL.RequestURI())
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(upstream.Close)

	routes, err := Routes(upstream.URL, upstream.URL)
	require.NoError(t, err)
	r := chi.NewRouter()
	Mount(r, routes, discard())

	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/catalog/books?genre=fantasy", "/books?genre=fantasy"},
		{"/api/v1/catalog/books/123/reviews", "/books/123/reviews"},
		{"/api/v1/members/login", "/members/login"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, tt.want, seen.Load())
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/circulation/loans", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProxy_BreakerOpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(upstream.Close)

	target, err := url.Parse(upstream.URL)
	require.NoError(t, err)
	proxy := NewProxy(Upstream{Name: "flaky", Prefix: "/x", Strip: "/x", Target: target}, http.DefaultTransport, discard())

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x/thing", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	}

	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x/thing", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, int32(5), hits.Load())
}

type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

func TestProxy_TransportErrorIsBadGateway(t *testing.T) {
	target, err := url.Parse("http://upstream.invalid")
	require.NoError(t, err)
	proxy := NewProxy(Upstream{Name: "down", Prefix: "/x", Strip: "/x", Target: target}, failingTransport{}, discard())

	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x/thing", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"message":"Upstream request failed"}`, rec.Body.String())
}

func TestRateLimiter_PerClient(t *testing.T) {
	l := NewRateLimiter(1, 2)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	l.lastSweep = now

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))

	now = now.Add(time.Second)
	assert.True(t, l.Allow("10.0.0.1"))

	now = now.Add(idleClientTTL + time.Second)
	assert.True(t, l.Allow("10.0.0.3"))
	assert.Equal(t, 1, l.clientCount())
}

func TestRateLimiter_Middleware(t *testing.T) {
	l := NewRateLimiter(0.001, 1)
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req.RemoteAddr = "192.0.2.7:6666"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}
