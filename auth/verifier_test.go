package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "0123456789abcdef-test"

func TestVerifier_IssueAndVerify(t *testing.T) {
	v, err := NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	token, err := v.IssueToken("user-1", RoleAdmin)
	if err != nil {
		t.Fatalf("issue: unexpected error: %v", err)
	}
	claims, err := v.VerifyToken(token)
	if err != nil {
		t.Fatalf("verify: unexpected error: %v", err)
	}
	if claims.UserID != "user-1" || claims.Role != RoleAdmin {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestVerifier_RejectsBadTokens(t *testing.T) {
	v, _ := NewVerifier(testSecret)
	other, _ := NewVerifier("another-secret-of-16")

	foreign, err := other.IssueToken("user-1", RoleUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	issuedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	stale, _ := NewVerifier(testSecret)
	stale.now = func() time.Time { return issuedAt }
	expired, err := stale.WithTTL(time.Minute).IssueToken("user-1", RoleUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "user-1", Role: RoleUser}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:           "user-1",
		Role:             "root",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	system, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:           SystemSubject,
		Role:             RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	cases := map[string]string{
		"system caller": system,
		"garbage":       "not-a-token",
		"foreign key":   foreign,
		"expired":       expired,
		"no expiry":     noExp,
		"unknown role":  badRole,
		"empty":         "",
		"alg none hint": "eyJhbGciOiJub25lIn0.eyJ1c2VyX2lkIjoieCJ9.",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := v.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestNewVerifier_WeakSecret(t *testing.T) {
	if _, err := NewVerifier("short"); !errors.Is(err, ErrWeakSecret) {
		t.Fatalf("expected ErrWeakSecret, got %v", err)
	}
}

func TestIssueToken_Validation(t *testing.T) {
	v, _ := NewVerifier(testSecret)
	if _, err := v.IssueToken("", RoleUser); err == nil {
		t.Fatal("expected error for empty user id")
	}
	if _, err := v.IssueToken("user-1", "root"); err == nil {
		t.Fatal("expected error for unknown role")
	}
	if _, err := v.IssueToken(SystemSubject, RoleAdmin); err == nil {
		t.Fatal("expected error for reserved user id")
	}
}
