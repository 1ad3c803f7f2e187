package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/diagnosis/gatepass/internal/http/response"
	"github.com/diagnosis/gatepass/pkg/auth"
	"github.com/diagnosis/gatepass/pkg/logger"
)

// RequireJWT validates the bearer token and stores the resulting
// *auth.Session in the request context. With no roles any staff role passes.
func RequireJWT(secret string, roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				response.Unauthorized(w, "Missing or invalid authorization header")
				return
			}

			claims, err := auth.Parse(strings.TrimPrefix(authHeader, "Bearer "), secret)
			if err != nil {
				response.WriteError(w, http.StatusUnauthorized, "Invalid token", response.CodeInvalidToken)
				return
			}

			if len(roles) > 0 && !slices.Contains(roles, claims.Role) {
				response.Forbidden(w, "Insufficient permissions")
				return
			}

			ctx := context.WithValue(r.Context(), logger.UserIDKey, claims.Sub)
			ctx = context.WithValue(ctx, logger.RoleKey, string(claims.Role))
			ctx = auth.WithSession(ctx, claims.Session())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
