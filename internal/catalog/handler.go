// internal/catalog/handler.go
package catalog

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"bookworm/internal/auth"
	"bookworm/internal/eventstore"
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

// Mount registers the catalog routes. Browsing is public, reviewing needs
// any authenticated member, and catalog changes need a librarian or admin.
func (h *Handler) Mount(r chi.Router, authn *auth.Authenticator) {
	r.Route("/books", func(r chi.Router) {
		r.Get("/", h.handleListBooks)
		r.Get("/{id}", h.handleGetBook)

		r.Group(func(r chi.Router) {
			r.Use(authn.Middleware)
			r.Post("/{id}/reviews", h.handleSubmitReview)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(auth.RoleLibrarian, auth.RoleAdmin))
				r.Post("/", h.handleAddBook)
				r.Put("/{id}", h.handleUpdateBook)
				r.Delete("/{id}", h.handleRemoveBook)
				r.Get("/{id}/history", h.handleHistory)
			})
		})
	})
}

func (h *Handler) handleListBooks(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListBooks(r.Context(), ParseListParams(r.URL.Query()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := bookID(w, r)
	if !ok {
		return
	}
	book, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) handleAddBook(w http.ResponseWriter, r *http.Request) {
	var req NewBook
	if !httpx.DecodeJSON(w, r, &req) {
		return
	}
	book, err := h.service.AddBook(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, book)
}

func (h *Handler) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	id, ok := bookID(w, r)
	if !ok {
		return
	}
	var patch map[string]json.RawMessage
	if !httpx.DecodeJSON(w, r, &patch) {
		return
	}
	book, err := h.service.UpdateBook(r.Context(), id, patch)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) handleRemoveBook(w http.ResponseWriter, r *http.Request) {
	id, ok := bookID(w, r)
	if !ok {
		return
	}
	if err := h.service.RemoveBook(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "Book removed successfully"})
}

func (h *Handler) handleSubmitReview(w http.ResponseWriter, r *http.Request) {
	id, ok := bookID(w, r)
	if !ok {
		return
	}
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	var req ReviewInput
	if !httpx.DecodeJSON(w, r, &req) {
		return
	}
	review, err := h.service.SubmitReview(r.Context(), id, actor.MemberID, req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, review)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := bookID(w, r)
	if !ok {
		return
	}
	events, err := h.service.History(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, struct {
		Events []eventstore.Event `json:"events"`
	}{events})
}

// bookID parses the id path parameter. An id that is not a UUID cannot name
// a book, so it is answered like any unknown id.
func bookID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, http.StatusNotFound, "Book not found")
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
		httpx.WriteError(w, http.StatusNotFound, "Book not found")
	case errors.Is(err, ErrDuplicateReview):
		httpx.WriteError(w, http.StatusBadRequest, "You have already reviewed this book")
	case errors.Is(err, ErrConflict):
		httpx.WriteError(w, http.StatusConflict, "Book was modified by another request, reload and retry")
	default:
		h.logger.ErrorContext(r.Context(), "catalog request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		httpx.WriteServerError(w, "Server error", err)
	}
}
