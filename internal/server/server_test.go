package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

type checkerFunc func(context.Context) error

func (f checkerFunc) CheckReady(ctx context.Context) error { return f(ctx) }

func TestMountHealth(t *testing.T) {
	tests := []struct {
		name    string
		checker ReadinessChecker
		path    string
		want    int
	}{
		{"live", nil, "/health/live", http.StatusOK},
		{"ready without checker", nil, "/health/ready", http.StatusOK},
		{"ready ok", checkerFunc(func(context.Context) error { return nil }), "/health/ready", http.StatusOK},
		{"ready failing", checkerFunc(func(context.Context) error { return errors.New("db down") }), "/health/ready", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := chi.NewRouter()
			MountHealth(r, "catalog", tt.checker)

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, rec.Body.String(), `"service":"catalog"`)
		})
	}
}
