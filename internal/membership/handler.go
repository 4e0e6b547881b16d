// internal/membership/handler.go
package membership

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"bookworm/internal/auth"
	"bookworm/internal/httpx"
	"bookworm/internal/validation"
)

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Mount registers the membership routes. Profiles are public. A member may
// read their own record; librarians and admins may read anyone's. Only admins
// change roles.
func (h *Handler) Mount(r chi.Router, authn *auth.Authenticator) {
	r.Route("/members", func(r chi.Router) {
		r.Post("/register", h.handleRegisterMember)
		r.Post("/login", h.handleLogin)
		r.Get("/{id}/profile", h.handleGetProfile)

		r.Group(func(r chi.Router) {
			r.Use(authn.Middleware)
			r.Get("/{id}", h.handleGetMember)
			r.With(auth.RequireRole(auth.RoleAdmin)).Put("/{id}/role", h.handleUpdateRole)
		})
	})
}

func (h *Handler) handleRegisterMember(w http.ResponseWriter, r *http.Request) {
	var req RegisterInput
	if !httpx.DecodeJSON(w, r, &req) {
		return
	}
	member, err := h.service.RegisterMember(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, member)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !httpx.DecodeJSON(w, r, &req) {
		return
	}
	member, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, member)
}

func (h *Handler) handleGetMember(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}
	actor, _ := auth.ActorFrom(r.Context())
	if actor.MemberID != id && actor.Role != auth.RoleLibrarian && actor.Role != auth.RoleAdmin {
		httpx.WriteError(w, http.StatusForbidden, "Access denied: insufficient role")
		return
	}
	member, err := h.service.GetMember(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, member)
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}
	member, err := h.service.GetMember(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, Profile{ID: member.ID, Name: member.Name})
}

func (h *Handler) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}
	var req struct {
		Role auth.Role `json:"role"`
	}
	if !httpx.DecodeJSON(w, r, &req) {
		return
	}
	member, err := h.service.UpdateMemberRole(r.Context(), id, req.Role)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, member)
}

func memberID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, http.StatusNotFound, "Member not found")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validation.Errors
	switch {
	case errors.Is(err, ErrValidation) && errors.As(err, &verrs):
		httpx.WriteValidationError(w, "Validation failed", verrs)
	case errors.Is(err, ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "Member not found")
	case errors.Is(err, ErrEmailTaken):
		httpx.WriteError(w, http.StatusConflict, "Email is already registered")
	case errors.Is(err, ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, ErrRateLimited):
		w.Header().Set("Retry-After", "60")
		httpx.WriteError(w, http.StatusTooManyRequests, "Too many attempts, try again later")
	case errors.Is(err, ErrConflict):
		httpx.WriteError(w, http.StatusConflict, "Member was modified by another request, reload and retry")
	default:
		h.logger.ErrorContext(r.Context(), "membership request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		httpx.WriteServerError(w, "Server error", err)
	}
}
