// Package gateway fronts the bookworm services: it routes by path prefix,
// limits each client, and stops forwarding to an upstream that keeps failing.
package gateway

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sony/gobreaker"

	"bookworm/internal/httpx"
)

// Upstream is one backend service reachable under Prefix. Strip is removed
// from the request path before forwarding.
type Upstream struct {
	Name   string
	Prefix string
	Strip  string
	Target *url.URL
}

// Routes returns the gateway's routing table for the two services.
func Routes(catalogURL, membershipURL string) ([]Upstream, error) {
	catalog, err := parseTarget(catalogURL)
	if err != nil {
		return nil, fmt.Errorf("catalog upstream: %w", err)
	}
	membership, err := parseTarget(membershipURL)
	if err != nil {
		return nil, fmt.Errorf("membership upstream: %w", err)
	}
	return []Upstream{
		{Name: "catalog", Prefix: "/api/v1/catalog", Strip: "/api/v1/catalog", Target: catalog},
		{Name: "membership", Prefix: "/api/v1/members", Strip: "/api/v1", Target: membership},
	}, nil
}

func parseTarget(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("invalid upstream url %q", raw)
	}
	return u, nil
}

// Mount registers a proxy for every upstream on r.
func Mount(r chi.Router, upstreams []Upstream, logger *slog.Logger) {
	for _, u := range upstreams {
		r.Handle(u.Prefix+"/*", NewProxy(u, http.DefaultTransport, logger))
	}
}

// NewProxy forwards requests to u through a circuit breaker wrapped around
// base. An open breaker answers 503, any other transport failure 502.
func NewProxy(u Upstream, base http.RoundTripper, logger *slog.Logger) http.Handler {
	logger = logger.With(slog.String("upstream", u.Name))
	breakerState.WithLabelValues(u.Name).Set(float64(gobreaker.StateClosed))

	return &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.Out.URL.Path = strings.TrimPrefix(r.In.URL.Path, u.Strip)
			r.Out.URL.RawPath = ""
			r.SetURL(u.Target)
			r.SetXForwarded()
		},
		Transport: &breakerTransport{
			base:    base,
			breaker: newBreaker(u.Name, logger),
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				logger.WarnContext(r.Context(), "upstream unavailable", slog.String("error", err.Error()))
				httpx.WriteError(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
				return
			}
			logger.ErrorContext(r.Context(), "proxy request failed", slog.String("error", err.Error()))
			httpx.WriteError(w, http.StatusBadGateway, "Upstream request failed")
		},
	}
}

func newBreaker(name string, logger *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			breakerState.WithLabelValues(name).Set(float64(to))
			logger.Warn("circuit breaker state changed",
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
}

// errUpstreamStatus marks a 5xx response as a breaker failure. The response
// itself is still passed through to the client.
var errUpstreamStatus = errors.New("upstream returned server error")

type breakerTransport struct {
	base    http.RoundTripper
	breaker *gobreaker.CircuitBreaker
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	res, err := t.breaker.Execute(func() (interface{}, error) {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, errUpstreamStatus
		}
		return resp, nil
	})
	if err != nil && !errors.Is(err, errUpstreamStatus) {
		return nil, err
	}
	return res.(*http.Response), nil
}
