package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/parleychat/parley/internal/auth"
	"github.com/parleychat/parley/internal/models"
	"github.com/parleychat/parley/internal/store"
)

type contextKey string

const UserContextKey contextKey = "user"

// AuthMiddleware handles bearer-token verification for authenticated
// endpoints.
type AuthMiddleware struct {
	store  store.DataStore
	secret string
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(st store.DataStore, secret string) *AuthMiddleware {
	return &AuthMiddleware{store: st, secret: secret}
}

// RequireAuth verifies the JWT, loads the account, and puts it on the
// request context. The token comes from the Authorization header, or from
// the "token" query parameter for WebSocket upgrades where browsers cannot
// set headers.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := bearerToken(r)
		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}
		if tokenString == "" {
			jsonError(w, http.StatusUnauthorized, "missing credentials")
			return
		}

		claims, err := auth.ParseAccessToken(m.secret, tokenString)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		user, err := m.store.GetUserByID(r.Context(), claims.UserID)
		if err != nil || user == nil {
			jsonError(w, http.StatusUnauthorized, "account not found")
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetUserFromContext retrieves the authenticated user from the request context.
func GetUserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}
