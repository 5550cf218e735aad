package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMintAndParseAccessToken(t *testing.T) {
	issuer := NewIssuer("secret")
	tok, err := issuer.MintAccessToken("usr_1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	claims, err := issuer.ParseAccessToken(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != "usr_1" || claims.TokenType != TokenTypeAccess {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestRefreshTokensCarryUniqueJTI(t *testing.T) {
	issuer := NewIssuer("secret")
	a, _ := issuer.MintRefreshToken("usr_1")
	b, _ := issuer.MintRefreshToken("usr_1")

	ca, err := issuer.ParseRefreshToken(a)
	if err != nil {
		t.Fatalf("parse a: %v", err)
	}
	cb, err := issuer.ParseRefreshToken(b)
	if err != nil {
		t.Fatalf("parse b: %v", err)
	}
	if ca.ID == "" || ca.ID == cb.ID {
		t.Fatalf("jtis must be unique and non-empty: %q vs %q", ca.ID, cb.ID)
	}
}

func TestParseRejectsCrossTypeAndTamper(t *testing.T) {
	issuer := NewIssuer("secret")
	access, _ := issuer.MintAccessToken("usr_1")
	refresh, _ := issuer.MintRefreshToken("usr_1")

	if _, err := issuer.ParseRefreshToken(access); err == nil {
		t.Fatal("access token accepted as refresh")
	}
	if _, err := issuer.ParseAccessToken(refresh); err == nil {
		t.Fatal("refresh token accepted as access")
	}

	other := NewIssuer("different-secret")
	if _, err := other.ParseAccessToken(access); err == nil {
		t.Fatal("token verified under wrong secret")
	}
}

type staticVerifier struct{ revoked bool }

func (s staticVerifier) UserRevoked(context.Context, string) bool { return s.revoked }

func TestMiddlewareAcceptsValidToken(t *testing.T) {
	issuer := NewIssuer("secret")
	tok, _ := issuer.MintAccessToken("usr_1")

	var gotUser string
	h := Middleware(issuer, staticVerifier{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || gotUser != "usr_1" {
		t.Fatalf("code=%d user=%q", rec.Code, gotUser)
	}
}

func TestMiddlewareRejectsMissingAndRevoked(t *testing.T) {
	issuer := NewIssuer("secret")
	tok, _ := issuer.MintAccessToken("usr_1")
	noop := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	Middleware(issuer, staticVerifier{})(noop).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: code=%d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	Middleware(issuer, staticVerifier{revoked: true})(noop).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("revoked family: code=%d", rec.Code)
	}
}
