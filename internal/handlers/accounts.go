package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/parleychat/parley/internal/api/middleware"
	"github.com/parleychat/parley/internal/auth"
	"github.com/parleychat/parley/internal/metrics"
	"github.com/parleychat/parley/internal/models"
	"github.com/parleychat/parley/internal/store"
)

// RegisterRequest is the request body for POST /register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse carries a fresh access token and the account it belongs to.
type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Register handles POST /register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Username = sanitizeName(req.Username)
	if req.Username == "" {
		h.Error(w, http.StatusBadRequest, "username is required")
		return
	}
	if !isValidEmail(req.Email) {
		h.Error(w, http.StatusBadRequest, "invalid email address")
		return
	}
	if len(req.Password) < 8 {
		h.Error(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.DomainError(w, err)
		return
	}

	user, err := h.store.CreateUser(r.Context(), req.Username, req.Email, hash)
	if errors.Is(err, store.ErrDuplicate) {
		h.Error(w, http.StatusConflict, "username or email already taken")
		return
	}
	if err != nil {
		h.DomainError(w, err)
		return
	}

	token, err := auth.GenerateAccessToken(h.cfg.JWTSecret, user.ID, h.cfg.AccessTokenTTL)
	if err != nil {
		h.DomainError(w, err)
		return
	}

	metrics.UsersRegistered.Inc()
	h.logger.Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("user registered")

	h.JSON(w, http.StatusCreated, AuthResponse{Token: token, User: user})
}

// LoginRequest is the request body for POST /login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		h.DomainError(w, err)
		return
	}
	// Same response for unknown email and wrong password.
	if user == nil || !auth.VerifyPassword(user.PasswordHash, req.Password) {
		h.Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := auth.GenerateAccessToken(h.cfg.JWTSecret, user.ID, h.cfg.AccessTokenTTL)
	if err != nil {
		h.DomainError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, AuthResponse{Token: token, User: user})
}

// UpdateProfileRequest is the request body for PUT /profile. Zero-value
// fields keep their current value; changing the password requires the
// current one.
type UpdateProfileRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// UpdateProfile handles PUT /profile.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	username := user.Username
	if req.Username != "" {
		username = sanitizeName(req.Username)
		if username == "" {
			h.Error(w, http.StatusBadRequest, "username is required")
			return
		}
	}

	email := user.Email
	if req.Email != "" {
		if !isValidEmail(req.Email) {
			h.Error(w, http.StatusBadRequest, "invalid email address")
			return
		}
		email = req.Email
	}

	passwordHash := user.PasswordHash
	if req.NewPassword != "" {
		if !auth.VerifyPassword(user.PasswordHash, req.CurrentPassword) {
			h.Error(w, http.StatusForbidden, "current password is incorrect")
			return
		}
		if len(req.NewPassword) < 8 {
			h.Error(w, http.StatusBadRequest, "password must be at least 8 characters")
			return
		}
		hash, err := auth.HashPassword(req.NewPassword)
		if err != nil {
			h.DomainError(w, err)
			return
		}
		passwordHash = hash
	}

	updated, err := h.store.UpdateUser(r.Context(), user.ID, username, email, passwordHash)
	if errors.Is(err, store.ErrDuplicate) {
		h.Error(w, http.StatusConflict, "username or email already taken")
		return
	}
	if err != nil {
		h.DomainError(w, err)
		return
	}
	if updated == nil {
		h.Error(w, http.StatusNotFound, "account not found")
		return
	}

	h.JSON(w, http.StatusOK, updated)
}
