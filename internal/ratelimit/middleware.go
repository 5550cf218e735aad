package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strconv"
	"strings"
)

// Rule is a per-route-prefix limit. The first matching prefix wins.
type Rule struct {
	Prefix        string
	Limit         int
	WindowSeconds int
}

// DefaultRules mirrors production limits for the endpoints this core owns.
var DefaultRules = []Rule{
	{Prefix: "/api/v1/auth/refresh", Limit: 30, WindowSeconds: 60},
	{Prefix: "/api/v1/auth/logout", Limit: 30, WindowSeconds: 60},
	{Prefix: "/ws", Limit: 10, WindowSeconds: 60},
}

// DefaultRule applies to any API path without a more specific rule.
var DefaultRule = Rule{Limit: 200, WindowSeconds: 60}

// Middleware guards routes with the limiter. The identifier is a hash prefix
// of the bearer credential when present (so tokens never land in Redis keys)
// and the caller's host otherwise.
func Middleware(l *Limiter, rules []Rule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if path == "/healthz" || path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			rule := DefaultRule
			for _, candidate := range rules {
				if strings.HasPrefix(path, candidate.Prefix) {
					rule = candidate
					break
				}
			}

			identifier := callerIdentifier(r) + ":" + path
			allowed, remaining := l.Check(r.Context(), identifier, rule.Limit, rule.WindowSeconds)
			if !allowed {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", strconv.Itoa(rule.WindowSeconds))
				http.Error(w, `{"error":{"code":"rate_limited","message":"rate limit exceeded, try again later"}}`, http.StatusTooManyRequests)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			next.ServeHTTP(w, r)
		})
	}
}

func callerIdentifier(r *http.Request) string {
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		sum := sha256.Sum256([]byte(authz))
		return hex.EncodeToString(sum[:])[:16]
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
