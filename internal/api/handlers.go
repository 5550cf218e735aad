package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sort"

	"github.com/lingolink/realtime-core/internal/auth"
	"github.com/lingolink/realtime-core/internal/metrics"
	"github.com/lingolink/realtime-core/internal/model"
)

// TokenGuard is the slice of the rotation guard the API consumes: rotation
// and logout for the auth endpoints, family revocation for the bearer
// middleware.
type TokenGuard interface {
	Rotate(ctx context.Context, refreshToken string) (access, refresh string, err error)
	Revoke(ctx context.Context, refreshToken string) error
	UserRevoked(ctx context.Context, userID string) bool
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

func (s *Server) handleAuthRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeAPIError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	access, refresh, err := s.guard.Rotate(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrTokenReuse):
			// Replay of an already-redeemed token: the whole family is
			// revoked by the guard before this error surfaces.
			log.Printf("level=warn msg=refresh_token_reuse remote=%s", r.RemoteAddr)
			metrics.Default().IncCounter("lingo_token_rotations_total", map[string]string{"outcome": "reuse_detected"})
			writeAPIError(w, http.StatusUnauthorized, "token_reuse", "refresh token already used, re-authentication required")
		case errors.Is(err, auth.ErrInvalidToken):
			metrics.Default().IncCounter("lingo_token_rotations_total", map[string]string{"outcome": "invalid"})
			writeAPIError(w, http.StatusUnauthorized, "invalid_token", "refresh token is invalid or expired")
		default:
			writeAPIError(w, http.StatusInternalServerError, "internal_error", "failed to rotate token")
		}
		return
	}

	metrics.Default().IncCounter("lingo_token_rotations_total", map[string]string{"outcome": "rotated"})
	writeJSON(w, http.StatusOK, refreshResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
	})
}

func (s *Server) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeAPIError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	if err := s.guard.Revoke(r.Context(), req.RefreshToken); err != nil {
		writeAPIError(w, http.StatusInternalServerError, "internal_error", "failed to revoke token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "revoked"})
}

type languageEntry struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

func (s *Server) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	codes := model.SupportedLanguageCodes()
	sort.Strings(codes)
	out := make([]languageEntry, 0, len(codes))
	for _, code := range codes {
		out = append(out, languageEntry{Code: code, Name: model.LanguageName(code)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"languages": out})
}
