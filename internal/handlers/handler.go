package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/parleychat/parley/internal/assistant"
	"github.com/parleychat/parley/internal/chat"
	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/hub"
	"github.com/parleychat/parley/internal/store"
)

// emailRegex validates email addresses per RFC 5322 (simplified).
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store     store.DataStore
	redis     *store.RedisStore // may be nil
	registry  *chat.Registry
	messages  *chat.MessageLog
	invites   *chat.Invites
	hub       *hub.Hub
	assistant *assistant.Client // may be nil
	cfg       *config.Config
	logger    zerolog.Logger
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(st store.DataStore, redis *store.RedisStore, registry *chat.Registry, messages *chat.MessageLog, invites *chat.Invites, h *hub.Hub, asst *assistant.Client, cfg *config.Config, logger zerolog.Logger) *Handler {
	return &Handler{
		store:     st,
		redis:     redis,
		registry:  registry,
		messages:  messages,
		invites:   invites,
		hub:       h,
		assistant: asst,
		cfg:       cfg,
		logger:    logger,
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

// DomainError maps chat package errors onto HTTP status codes. Unknown
// errors become a 500 with the detail kept server-side.
func (h *Handler) DomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrValidation):
		h.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrNotFound):
		h.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chat.ErrPermissionDenied):
		h.Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, chat.ErrConflict):
		h.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, chat.ErrExternalService):
		h.Error(w, http.StatusBadGateway, err.Error())
	default:
		h.logger.Error().Err(err).Msg("unhandled error")
		h.Error(w, http.StatusInternalServerError, "internal error")
	}
}

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	// Remove control characters
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	// Limit to 100 characters
	if len(name) > 100 {
		name = name[:100]
	}

	return name
}

// isValidEmail validates email addresses using RFC 5322 pattern.
func isValidEmail(email string) bool {
	if email == "" || len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}
