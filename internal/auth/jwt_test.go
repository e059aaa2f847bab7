package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestTokenRoundTrip(t *testing.T) {
	m := newManager(t, Config{Secret: "s3cret", Issuer: "tracefood"})
	tok, err := m.GenerateToken("distributor.testnet")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	caller, err := m.ValidateToken(tok)
	if err != nil || caller != "distributor.testnet" {
		t.Fatalf("validate: %q %v", caller, err)
	}
	caller, err = m.FromHeader("Bearer " + tok)
	if err != nil || caller != "distributor.testnet" {
		t.Fatalf("from header: %q %v", caller, err)
	}
}

func TestNewManagerRequiresSecret(t *testing.T) {
	if _, err := NewManager(Config{Secret: "  "}); err == nil {
		t.Fatalf("expected error for empty secret")
	}
	m := newManager(t, Config{Secret: "x"})
	if m.ttl != DefaultTTL {
		t.Fatalf("expected default ttl, got %v", m.ttl)
	}
	if _, err := m.GenerateToken(""); err == nil {
		t.Fatalf("expected error for empty account")
	}
}

func TestValidateRejects(t *testing.T) {
	m := newManager(t, Config{Secret: "right", Issuer: "tracefood", TTL: time.Minute})
	other := newManager(t, Config{Secret: "wrong", Issuer: "tracefood"})
	foreignIssuer := newManager(t, Config{Secret: "right", Issuer: "elsewhere"})

	expired := newManager(t, Config{Secret: "right", Issuer: "tracefood", TTL: time.Minute})
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "x", Issuer: "tracefood"})
	noneTok, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	mk := func(mgr *Manager) string {
		tok, err := mgr.GenerateToken("farmer.testnet")
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		return tok
	}
	cases := map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": mk(other),
		"wrong issuer": mk(foreignIssuer),
		"expired":      mk(expired),
		"alg none":     noneTok,
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := m.ValidateToken(tok); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestFromHeaderErrors(t *testing.T) {
	m := newManager(t, Config{Secret: "x"})
	if _, err := m.FromHeader(""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token, got %v", err)
	}
	for _, h := range []string{"Basic abc", "Bearer", "Bearer   ", "token"} {
		if _, err := m.FromHeader(h); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%q: expected invalid token, got %v", h, err)
		}
	}
}

func TestCallerContext(t *testing.T) {
	if _, ok := CallerFromContext(context.Background()); ok {
		t.Fatalf("expected no caller")
	}
	ctx := WithCaller(context.Background(), "a.testnet")
	if c, ok := CallerFromContext(ctx); !ok || c != "a.testnet" {
		t.Fatalf("unexpected caller %q %v", c, ok)
	}
}
