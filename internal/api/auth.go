package api

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/seyone-projects/reda-backend/internal/auth"
	"github.com/seyone-projects/reda-backend/internal/models"
	"github.com/seyone-projects/reda-backend/internal/service"
)

// Authenticator resolves a bearer token to the account behind it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

type ctxKey int

const userCtxKey ctxKey = iota

func userFromContext(ctx context.Context) *models.User {
	u, _ := ctx.Value(userCtxKey).(*models.User)
	return u
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return header
}

// requireAuth rejects requests without a valid token for an existing user
// that still has an active session.
func requireAuth(a Authenticator, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusForbidden, msgTokenRequired)
			return
		}
		user, err := a.Authenticate(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrTokenExpired):
				writeError(w, http.StatusUnauthorized, msgTokenExpired)
			case errors.Is(err, auth.ErrInvalidToken):
				writeError(w, http.StatusUnauthorized, msgBadToken)
			case errors.Is(err, service.ErrUserNotFound):
				writeError(w, http.StatusForbidden, msgUserNotFound)
			case errors.Is(err, service.ErrNoSession):
				writeError(w, http.StatusUnauthorized, msgNoSession)
			default:
				writeServiceError(w, r, err)
			}
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userCtxKey, user)))
	}
}

// requireRoles must run inside requireAuth.
func requireRoles(roles []string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := userFromContext(r.Context())
		if u == nil || !slices.Contains(roles, u.Role) {
			writeError(w, http.StatusForbidden, msgAccessDenied)
			return
		}
		next(w, r)
	}
}

var staffRoles = []string{models.RoleAdmin, models.RoleEmployee}
