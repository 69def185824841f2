package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Sentinel errors for credential verification.
var (
	// ErrTokenInvalid covers bad signatures, expired tokens, wrong
	// signing algorithms, and structurally broken claims.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrTokenMissing is returned when no credential was presented at
	// all.
	ErrTokenMissing = errors.New("auth: no token presented")
)

// Claims extends JWT standard claims with the actuation-specific
// fields: the acting person and their granted scopes.
type Claims struct {
	jwt.RegisteredClaims
	PersonID string   `json:"person_id"`
	Scopes   []string `json:"scopes,omitempty"`
}

// GenerateToken creates a signed JWT access token for a person.
// Tokens are short-lived and validated by signature only (no session
// store lookup).
func GenerateToken(personID string, scopes []string, secret string, ttlMinutes int) (string, error) {
	if ttlMinutes <= 0 {
		ttlMinutes = 15 //nolint:mnd // default 15-minute access token TTL
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   personID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ttlMinutes) * time.Minute)),
			ID:        uuid.NewString(),
		},
		PersonID: personID,
		Scopes:   scopes,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// ParseToken validates and parses a JWT access token, returning the
// claims. It checks the signature, expiry, and required fields.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" && claims.PersonID == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if claims.PersonID == "" {
		claims.PersonID = claims.Subject
	}

	return claims, nil
}
