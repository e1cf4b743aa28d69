package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestSessionTokenService_IssueParse(t *testing.T) {
	svc := NewSessionTokenService("secret", time.Hour)

	token, err := svc.Issue("s1", "coach")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := svc.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.SessionID != "s1" || claims.Variant != "coach" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestSessionTokenService_Expired(t *testing.T) {
	svc := NewSessionTokenService("secret", time.Minute)
	issued := time.Now().UTC().Add(-time.Hour)
	svc.now = func() time.Time { return issued }
	token, err := svc.Issue("s1", "coach")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	svc.now = func() time.Time { return time.Now().UTC() }
	if _, err := svc.Parse(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestSessionTokenService_RejectsForeignTokens(t *testing.T) {
	svc := NewSessionTokenService("secret", time.Hour)
	other := NewSessionTokenService("other", time.Hour)

	token, _ := other.Issue("s1", "coach")
	if _, err := svc.Parse(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for wrong secret, got %v", err)
	}
	if _, err := svc.Parse(""); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for empty token, got %v", err)
	}

	now := time.Now().UTC()
	claims := SessionClaims{
		SessionID: "s1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "other-issuer",
			Subject:   "s1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := svc.Parse(signed); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for wrong issuer, got %v", err)
	}

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := svc.Parse(none); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for unsigned token, got %v", err)
	}
}

func TestSessionTokenService_RandomSecretWhenEmpty(t *testing.T) {
	a := NewSessionTokenService("", time.Hour)
	b := NewSessionTokenService("  ", time.Hour)

	token, err := a.Issue("s1", "matcher")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := a.Parse(token); err != nil {
		t.Fatalf("parse with same service: %v", err)
	}
	if _, err := b.Parse(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("random secrets must differ, got %v", err)
	}
}
