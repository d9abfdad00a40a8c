package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Shivamkadam692/WorkConnect/internal/api/middleware"
	"github.com/Shivamkadam692/WorkConnect/internal/lifecycle"
	"github.com/Shivamkadam692/WorkConnect/internal/models"
	"github.com/Shivamkadam692/WorkConnect/internal/notify"
	"github.com/Shivamkadam692/WorkConnect/internal/presence"
	"github.com/Shivamkadam692/WorkConnect/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db            store.DataStore
	redis         *store.RedisStore
	requests      *lifecycle.Service
	notifications *notify.Service
	hub           *presence.Hub
	validate      *validator.Validate
	logger        zerolog.Logger
}

// Deps are the collaborators a Handler serves. Redis and Hub may be nil.
type Deps struct {
	DB            store.DataStore
	Redis         *store.RedisStore
	Requests      *lifecycle.Service
	Notifications *notify.Service
	Hub           *presence.Hub
	Logger        zerolog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		db:            d.DB,
		redis:         d.Redis,
		requests:      d.Requests,
		notifications: d.Notifications,
		hub:           d.Hub,
		validate:      validator.New(),
		logger:        d.Logger.With().Str("component", "http").Logger(),
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// Fail maps a core error to its HTTP status. Unknown errors are logged and
// reported without detail.
func (h *Handler) Fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		h.Error(w, status, "internal error")
		return
	}
	h.Error(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, models.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// errorKind names an error class for socket error events.
func errorKind(err error) string {
	switch statusFor(err) {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusForbidden:
		return "unauthorized"
	case http.StatusConflict:
		return "invalid_state"
	case http.StatusBadRequest:
		return "validation"
	}
	return "internal"
}

// decode reads a JSON body into dst and validates it.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body", models.ErrValidation)
	}
	if err := h.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s", models.ErrValidation, err.Error())
	}
	return nil
}

// actor returns the caller set by the identity middleware.
func actor(r *http.Request) models.Actor {
	a, _ := middleware.ActorFromContext(r.Context())
	return a
}

// pathID parses the {id} URL parameter.
func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid ID format", models.ErrValidation)
	}
	return id, nil
}

// queryInt reads a non-negative integer query parameter, or def when absent.
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", models.ErrValidation, key)
	}
	return n, nil
}

// sanitizeText trims s and removes control characters other than newlines.
func sanitizeText(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r != '\n' && unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
