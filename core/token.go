package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenCodec issues and verifies signed, time-limited bearer tokens carrying
// a subject identity. Tokens are stateless: there is no revocation list, and
// refresh is simply verification followed by fresh issuance.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenCodec builds a codec from the server-side secret. An empty secret
// is a startup failure, not something to limp along with.
func NewTokenCodec(secret string, ttl time.Duration) (*TokenCodec, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: empty token secret", ErrSigningFailure)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenCodec{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for subject valid for the configured window.
func (tc *TokenCodec) Issue(subject string) (string, error) {
	now := tc.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tc.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tc.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigningFailure, err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the embedded subject.
// Failures are distinguishable: ErrTokenExpired for a well-signed token past
// its window, ErrTokenSignature for a tampered one, ErrTokenMalformed when
// the token cannot be parsed at all.
func (tc *TokenCodec) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return tc.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(tc.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return "", ErrTokenSignature
		case errors.Is(err, jwt.ErrTokenMalformed):
			return "", ErrTokenMalformed
		default:
			return "", ErrTokenMalformed
		}
	}
	if claims.Subject == "" {
		return "", ErrTokenMalformed
	}
	return claims.Subject, nil
}

// Refresh verifies oldToken and issues a brand-new token for its subject.
// Tokens are stateless, so refreshing an already-expired token fails with
// ErrTokenExpired rather than silently extending it.
func (tc *TokenCodec) Refresh(oldToken string) (string, error) {
	subject, err := tc.Verify(oldToken)
	if err != nil {
		return "", err
	}
	return tc.Issue(subject)
}
