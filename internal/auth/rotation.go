package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lingolink/realtime-core/internal/metrics"
)

var (
	// ErrTokenReuse marks redemption of an already-rotated jti: evidence of
	// credential theft. The caller must clear all session tokens for the
	// user and force a fresh login.
	ErrTokenReuse = errors.New("refresh token reuse detected")
)

// RotationGuard enforces one-time use of refresh tokens. Each redeemed jti
// lands in a Redis revocation set until its natural expiry; a second
// redemption of the same jti revokes the whole token family for that user.
type RotationGuard struct {
	issuer *Issuer
	rdb    redis.UniversalClient
	now    func() time.Time
}

func NewRotationGuard(issuer *Issuer, rdb redis.UniversalClient) *RotationGuard {
	return &RotationGuard{issuer: issuer, rdb: rdb, now: time.Now}
}

func revokedJTIKey(jti string) string  { return "revoked_refresh:" + jti }
func revokedUserKey(uid string) string { return "revoked_user:" + uid }

// Rotate exchanges a valid refresh token for a new access+refresh pair. The
// new pair is issued before the old jti is marked revoked, so a crash in
// between can at worst leave a token that is still redeemable once — never a
// user locked out mid-rotation.
func (g *RotationGuard) Rotate(ctx context.Context, refreshToken string) (access, refresh string, err error) {
	claims, err := g.issuer.ParseRefreshToken(refreshToken)
	if err != nil {
		metrics.Default().IncCounter("lingo_token_rotations_total", map[string]string{"outcome": "invalid"})
		return "", "", err
	}

	revoked, err := g.rdb.Exists(ctx, revokedJTIKey(claims.ID)).Result()
	if err != nil {
		return "", "", fmt.Errorf("rotation guard: revocation lookup: %w", err)
	}
	if revoked > 0 {
		// Someone already redeemed this token. Fail closed: kill the
		// whole family, not just this jti.
		g.revokeFamily(ctx, claims.UserID)
		log.Printf("metric=token_rotation outcome=reuse_detected user_id=%s jti=%s", claims.UserID, claims.ID)
		metrics.Default().IncCounter("lingo_token_rotations_total", map[string]string{"outcome": "reuse_detected"})
		return "", "", ErrTokenReuse
	}

	access, err = g.issuer.MintAccessToken(claims.UserID)
	if err != nil {
		return "", "", err
	}
	refresh, err = g.issuer.MintRefreshToken(claims.UserID)
	if err != nil {
		return "", "", err
	}

	if err := g.markRevoked(ctx, claims); err != nil {
		return "", "", fmt.Errorf("rotation guard: mark revoked: %w", err)
	}
	metrics.Default().IncCounter("lingo_token_rotations_total", map[string]string{"outcome": "rotated"})
	return access, refresh, nil
}

// Revoke retires a refresh token without issuing a replacement (logout).
// Invalid tokens are ignored: logout is idempotent.
func (g *RotationGuard) Revoke(ctx context.Context, refreshToken string) error {
	claims, err := g.issuer.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil
	}
	return g.markRevoked(ctx, claims)
}

// UserRevoked reports whether the user's whole token family has been revoked
// by theft detection. Access-token middleware consults this.
func (g *RotationGuard) UserRevoked(ctx context.Context, userID string) bool {
	n, err := g.rdb.Exists(ctx, revokedUserKey(userID)).Result()
	if err != nil {
		// Revocation state unavailable: treat as not revoked. The tokens
		// themselves still expire within their TTL.
		return false
	}
	return n > 0
}

func (g *RotationGuard) markRevoked(ctx context.Context, claims *Claims) error {
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	return g.rdb.Set(ctx, revokedJTIKey(claims.ID), "1", ttl).Err()
}

func (g *RotationGuard) revokeFamily(ctx context.Context, userID string) {
	if err := g.rdb.Set(ctx, revokedUserKey(userID), "1", RefreshTokenTTL).Err(); err != nil {
		log.Printf("metric=token_rotation outcome=family_revoke_failed user_id=%s err=%q", userID, err.Error())
	}
}
