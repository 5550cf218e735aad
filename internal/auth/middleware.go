package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const userIDKey contextKey = "user_id"

// Verifier is the subset of the rotation guard the middleware needs.
type Verifier interface {
	UserRevoked(ctx context.Context, userID string) bool
}

// Middleware authenticates requests with a bearer access token and rejects
// users whose token family has been revoked by theft detection.
func Middleware(issuer *Issuer, guard Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
				http.Error(w, `{"error":{"code":"unauthorized","message":"missing bearer token"}}`, http.StatusUnauthorized)
				return
			}

			raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
			claims, err := issuer.ParseAccessToken(raw)
			if err != nil {
				http.Error(w, `{"error":{"code":"unauthorized","message":"invalid token"}}`, http.StatusUnauthorized)
				return
			}
			if guard != nil && guard.UserRevoked(r.Context(), claims.UserID) {
				http.Error(w, `{"error":{"code":"unauthorized","message":"credentials revoked, re-authenticate"}}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(userIDKey)
	s, ok := v.(string)
	return s, ok && s != ""
}
