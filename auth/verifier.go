package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

var (
	// ErrInvalidToken signals a token that is malformed, expired or signed with another key.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrWeakSecret signals a signing secret too short for HS256.
	ErrWeakSecret = errors.New("auth: secret must be at least 16 bytes")
)

// SystemSubject is the caller id of internal confirmations. No token may carry it.
const SystemSubject = "system"

const defaultTTL = 24 * time.Hour

// Claims is what the API trusts about a caller once a token verifies.
type Claims struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
	jwt.RegisteredClaims
}

// Verifier signs and checks HS256 bearer tokens.
type Verifier struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewVerifier(secret string) (*Verifier, error) {
	if len(secret) < 16 {
		return nil, ErrWeakSecret
	}
	return &Verifier{secret: []byte(secret), ttl: defaultTTL, now: time.Now}, nil
}

// WithTTL overrides how long issued tokens stay valid.
func (v *Verifier) WithTTL(ttl time.Duration) *Verifier {
	v.ttl = ttl
	return v
}

// IssueToken creates a token for userID. It backs local tooling and tests;
// production tokens come from the account service.
func (v *Verifier) IssueToken(userID string, role Role) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("auth: empty user id")
	}
	if userID == SystemSubject {
		return "", fmt.Errorf("auth: user id %q is reserved", userID)
	}
	if !isValidRole(role) {
		return "", fmt.Errorf("auth: invalid role %q", role)
	}
	now := v.now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates a token and returns its claims.
func (v *Verifier) VerifyToken(tokenString string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(v.now), jwt.WithExpirationRequired())
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.UserID == "" {
		return Claims{}, fmt.Errorf("%w: missing user_id", ErrInvalidToken)
	}
	if claims.UserID == SystemSubject {
		return Claims{}, fmt.Errorf("%w: reserved user_id", ErrInvalidToken)
	}
	if !isValidRole(claims.Role) {
		return Claims{}, fmt.Errorf("%w: role %q", ErrInvalidToken, claims.Role)
	}
	return claims, nil
}

func isValidRole(role Role) bool {
	switch role {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}
