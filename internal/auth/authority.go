// Package auth issues and validates the signed session tokens that bind a
// browser session, or a WebSocket handshake, to a user identity.
//
// Tokens are HS256 JWTs carrying the identity in the "sub" claim together with
// "iat" and "exp". Validation is a pure function of the token, the process-wide
// secret and the current time; no store is consulted, so the same Authority is
// safe to use from request handlers and the WebSocket upgrade path alike.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

// CookieName is the cookie carrying the session token on both the ordinary
// request path and the WebSocket handshake.
const CookieName = "access_token"

// DefaultTTL is the session lifetime used when Issue is called without one.
const DefaultTTL = 24 * time.Hour

var (
	ErrExpiredToken         = errors.New("session token expired")
	ErrInvalidSignature     = errors.New("session token signature is invalid")
	ErrMalformedToken       = errors.New("session token is malformed")
	ErrMissingToken         = errors.New("session token missing")
	ErrMissingIdentityClaim = errors.New("session token has no identity claim")
)

// Authority signs and verifies session tokens with a single secret.
type Authority struct {
	secret     []byte
	clock      clockwork.Clock
	defaultTTL time.Duration
	parser     *jwt.Parser
}

// Option configures an Authority.
type Option func(*Authority)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(a *Authority) {
		a.clock = clock
	}
}

// WithDefaultTTL sets the lifetime applied when Issue receives a non-positive ttl.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(a *Authority) {
		if ttl > 0 {
			a.defaultTTL = ttl
		}
	}
}

// NewAuthority creates an Authority signing with secret. The secret is copied
// and never changes afterwards.
func NewAuthority(secret []byte, opts ...Option) *Authority {
	a := &Authority{
		secret:     append([]byte(nil), secret...),
		clock:      clockwork.NewRealClock(),
		defaultTTL: DefaultTTL,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.clock.Now),
	)
	return a
}

// DefaultTTL returns the lifetime applied to tokens issued without an explicit ttl.
func (a *Authority) DefaultTTL() time.Duration {
	return a.defaultTTL
}

// Issue produces a signed token for identity valid for ttl.
func (a *Authority) Issue(identity string, ttl time.Duration) (string, error) {
	if identity == "" {
		return "", ErrMissingIdentityClaim
	}
	if ttl <= 0 {
		ttl = a.defaultTTL
	}

	now := a.clock.Now()
	claims := jwt.RegisteredClaims{
		Subject:   identity,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Validate verifies signature and expiry and returns the bound identity.
func (a *Authority) Validate(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := a.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return "", classify(err)
	}

	if claims.Subject == "" {
		return "", ErrMissingIdentityClaim
	}
	return claims.Subject, nil
}

// classify maps jwt parser failures onto the package's sentinel errors while
// keeping the parser error in the chain for logging.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrExpiredToken, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	default:
		return fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
}

// ExtractFromHandshake parses the raw Cookie header of a WebSocket upgrade
// request, finds the session cookie and validates it.
func (a *Authority) ExtractFromHandshake(rawCookieHeader string) (string, error) {
	cookies, err := http.ParseCookie(rawCookieHeader)
	if err != nil {
		// A header with one bad pair still may carry the session cookie;
		// fall back to the lenient request parser.
		cookies = (&http.Request{Header: http.Header{"Cookie": {rawCookieHeader}}}).Cookies()
	}

	for _, c := range cookies {
		if c.Name == CookieName && c.Value != "" {
			return a.Validate(c.Value)
		}
	}
	return "", ErrMissingToken
}

// FromRequest validates the session cookie of an ordinary HTTP request.
func (a *Authority) FromRequest(r *http.Request) (string, error) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return "", ErrMissingToken
	}
	return a.Validate(c.Value)
}
