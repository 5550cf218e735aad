package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"

	AccessTokenTTL  = 15 * time.Minute
	RefreshTokenTTL = 7 * 24 * time.Hour
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	UserID    string `json:"uid"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Issuer mints and verifies HMAC-signed access and refresh tokens. Refresh
// tokens carry a unique jti so the rotation guard can detect reuse.
type Issuer struct {
	secret []byte
	now    func() time.Time
}

func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret), now: time.Now}
}

func (i *Issuer) MintAccessToken(userID string) (string, error) {
	return i.mint(userID, TokenTypeAccess, "", AccessTokenTTL)
}

func (i *Issuer) MintRefreshToken(userID string) (string, error) {
	return i.mint(userID, TokenTypeRefresh, uuid.NewString(), RefreshTokenTTL)
}

func (i *Issuer) mint(userID, tokenType, jti string, ttl time.Duration) (string, error) {
	now := i.now()
	claims := Claims{
		UserID:    userID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// ParseAccessToken validates signature, expiry, and token type.
func (i *Issuer) ParseAccessToken(raw string) (*Claims, error) {
	return i.parse(raw, TokenTypeAccess)
}

// ParseRefreshToken validates signature, expiry, token type, and that a jti
// is present.
func (i *Issuer) ParseRefreshToken(raw string) (*Claims, error) {
	claims, err := i.parse(raw, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (i *Issuer) parse(raw, wantType string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil || !token.Valid || claims.UserID == "" || claims.TokenType != wantType {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
