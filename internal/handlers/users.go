package handlers

import (
	"net/http"

	"github.com/parleychat/parley/internal/api/middleware"
	"github.com/parleychat/parley/internal/models"
)

// UserSummary is the public view of an account.
type UserSummary struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	IsOnline bool   `json:"is_online"`
}

// ListUsersResponse is the response body for GET /users.
type ListUsersResponse struct {
	Users []UserSummary `json:"users"`
}

// ListUsers handles GET /users: everyone except the caller, with live
// presence where the cache has fresher data than the stored flag.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	users, err := h.store.ListUsers(r.Context(), user.ID)
	if err != nil {
		h.DomainError(w, err)
		return
	}

	summaries := make([]UserSummary, 0, len(users))
	for _, u := range users {
		summaries = append(summaries, UserSummary{
			ID:       u.ID,
			Username: u.Username,
			IsOnline: h.isOnline(r, &u),
		})
	}

	h.JSON(w, http.StatusOK, ListUsersResponse{Users: summaries})
}

func (h *Handler) isOnline(r *http.Request, u *models.User) bool {
	if h.redis != nil {
		online, err := h.redis.IsOnline(r.Context(), u.ID)
		if err == nil {
			return online
		}
	}
	return u.IsOnline
}
