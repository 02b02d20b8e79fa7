package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is the iss claim of tokens minted by Issue.
const Issuer = "ecoproof"

var errNoSecret = errors.New("auth: validator has no secret")

// JWTValidator checks and mints HS256 bearer tokens. The subject claim is
// the calling account; tokens without exp are rejected.
type JWTValidator struct {
	secret []byte
	now    func() time.Time
}

// NewJWTValidator returns nil for an empty secret. NewMiddleware treats a
// nil validator as "reject every write".
func NewJWTValidator(secret []byte) *JWTValidator {
	if len(secret) == 0 {
		return nil
	}
	return &JWTValidator{secret: secret, now: time.Now}
}

// WithClock overrides clock for testing.
func (v *JWTValidator) WithClock(clock func() time.Time) *JWTValidator {
	v.now = clock
	return v
}

func (v *JWTValidator) parser() *jwt.Parser {
	return jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	)
}

// Validate verifies tokenStr and returns the principal it names.
func (v *JWTValidator) Validate(tokenStr string) (*Principal, error) {
	if v == nil {
		return nil, errNoSecret
	}
	var claims jwt.RegisteredClaims
	if _, err := v.parser().ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("auth: token has no subject")
	}
	p := &Principal{Account: claims.Subject, Issuer: claims.Issuer}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

// Issue mints a token for account that expires after ttl.
func (v *JWTValidator) Issue(account string, ttl time.Duration) (string, error) {
	if v == nil {
		return "", errNoSecret
	}
	if account == "" {
		return "", errors.New("auth: account is required")
	}
	now := v.now()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   account,
		Issuer:    Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}).SignedString(v.secret)
}
