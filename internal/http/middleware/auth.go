// Package middleware contains the HTTP middleware shared by every route.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/aanand-mishra/courses-api/internal/auth"
	"github.com/aanand-mishra/courses-api/internal/logger"
	"github.com/aanand-mishra/courses-api/internal/storage"
	"github.com/aanand-mishra/courses-api/internal/types"
	"github.com/aanand-mishra/courses-api/internal/utils/response"
)

// UserGetter loads the user named by a token.
type UserGetter interface {
	GetUser(ctx context.Context, staffID string) (types.User, error)
}

type userKey struct{}

// WithUser stores the authenticated user in ctx.
func WithUser(ctx context.Context, user types.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// CurrentUser returns the user stored by Authenticate.
func CurrentUser(ctx context.Context) (types.User, bool) {
	user, ok := ctx.Value(userKey{}).(types.User)
	return user, ok
}

// Authenticate requires a valid bearer token naming an existing user and
// stores that user in the request context. The stored role, not the
// token's, is what later authorization sees.
func Authenticate(users UserGetter, secret, issuer string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				response.Error(w, http.StatusUnauthorized, "Please login: missing bearer token.")
				return
			}
			claims, err := auth.ParseToken(secret, issuer, token)
			if err != nil {
				logger.FromContext(r.Context()).Debug("rejected token", zap.Error(err))
				response.Error(w, http.StatusUnauthorized, "Please login: invalid token.")
				return
			}
			user, err := users.GetUser(r.Context(), claims.StaffID)
			if errors.Is(err, storage.ErrUserNotFound) {
				response.Error(w, http.StatusUnauthorized, "Please login: unknown user.")
				return
			}
			if err != nil {
				logger.FromContext(r.Context()).Error("load user", zap.Error(err))
				response.Error(w, http.StatusInternalServerError, "internal server error")
				return
			}

			log := logger.FromContext(r.Context()).With(
				zap.String("staff_id", user.StaffID),
				zap.Stringer("role", user.Role),
			)
			ctx := logger.WithContext(WithUser(r.Context(), user), log)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
