package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lingolink/realtime-core/internal/auth"
	"github.com/lingolink/realtime-core/internal/config"
	"github.com/lingolink/realtime-core/internal/metrics"
	"github.com/lingolink/realtime-core/internal/ratelimit"
)

// WSHandler serves an upgraded websocket connection.
type WSHandler interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
}

type Server struct {
	cfg   config.Config
	guard TokenGuard
}

func NewRouter(cfg config.Config, issuer *auth.Issuer, guard TokenGuard, limiter *ratelimit.Limiter, ws WSHandler) http.Handler {
	s := &Server{cfg: cfg, guard: guard}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(ratelimit.Middleware(limiter, ratelimit.DefaultRules))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Get("/metrics", metrics.Default().Handler().ServeHTTP)

	// Websocket upgrades manage their own lifetime, so no request timeout.
	r.Get("/ws", ws.ServeWS)

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Use(middleware.Timeout(30 * time.Second))
		v1.Post("/auth/refresh", s.handleAuthRefresh)
		v1.Post("/auth/logout", s.handleAuthLogout)

		v1.With(auth.Middleware(issuer, guard)).Group(func(authed chi.Router) {
			authed.Get("/languages", s.handleLanguages)
		})
	})

	return r
}

type apiError struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	var payload apiError
	payload.Error.Code = code
	payload.Error.Message = message
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
