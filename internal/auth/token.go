// Package auth verifies the bearer credential presented at connection
// time and derives the identity every realtime session is bound to.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingCredential means no token was presented at all.
	ErrMissingCredential = errors.New("authentication error: no token")

	// ErrMalformedCredential covers tokens that cannot be parsed, carry
	// a bad signature, or are expired.
	ErrMalformedCredential = errors.New("authentication error: invalid token")

	// ErrInvalidPayload means the token verified but lacks the claims
	// a session needs (userId).
	ErrInvalidPayload = errors.New("authentication error: invalid token payload")
)

// Identity is the verified result of a handshake credential.
// IsPremium is a snapshot as of token issuance; the room router refreshes
// it on premium-status events.
type Identity struct {
	UserID    string
	IsPremium bool
}

// Claims is the JWT payload shape issued by the account service.
type Claims struct {
	UserID    string `json:"userId"`
	IsPremium bool   `json:"isPremium"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 bearer tokens.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret is required but was empty")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// Verify validates tokenString and returns the identity it carries.
// A failed verification must prevent the handshake; callers surface the
// returned error's message as the rejection reason.
func (v *Verifier) Verify(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, ErrMissingCredential
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Identity{}, ErrMalformedCredential
	}
	if claims.UserID == "" {
		return Identity{}, ErrInvalidPayload
	}

	return Identity{UserID: claims.UserID, IsPremium: claims.IsPremium}, nil
}

// Issue signs a token for the given identity. The account service owns
// credential issuance in production; this exists for tooling and tests.
func (v *Verifier) Issue(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:    id.UserID,
		IsPremium: id.IsPremium,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
