package memberauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token settings
const (
	DefaultTokenLifetime = 1 * time.Hour
	DefaultSigningAlg    = "HS256"
)

// TokenConfig is the immutable configuration of a TokenIssuer. The signing key
// is loaded once at startup and never rotated for the life of the issuer.
type TokenConfig struct {
	SigningKey []byte        // HMAC secret; required
	Lifetime   time.Duration // Defaults to 1 hour
	Issuer     string        // Optional "iss" claim, checked on validation when set
	SigningAlg string        // HS256 (default), HS384 or HS512
}

// Token is a signed bearer token bound to a user's email
type Token struct {
	Value     string    `json:"token"`
	Subject   string    `json:"-"`
	IssuedAt  time.Time `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenValidator resolves a bearer token back to the email it was issued for.
// Both the HTTP middleware and the gRPC interceptors depend only on this.
type TokenValidator interface {
	Validate(token string) (subjectEmail string, err error)
}

// TokenIssuer creates and validates stateless JWT bearer tokens.
// It is safe for concurrent use.
type TokenIssuer struct {
	config TokenConfig
	method jwt.SigningMethod
	now    func() time.Time
}

type TokenIssuerOption func(*TokenIssuer)

// WithClock replaces time.Now, mostly for expiry tests
func WithClock(now func() time.Time) TokenIssuerOption {
	return func(t *TokenIssuer) {
		t.now = now
	}
}

func NewTokenIssuer(config TokenConfig, opts ...TokenIssuerOption) (*TokenIssuer, error) {
	if len(config.SigningKey) == 0 {
		return nil, errors.New("token signing key is required")
	}
	if config.Lifetime <= 0 {
		config.Lifetime = DefaultTokenLifetime
	}
	if config.SigningAlg == "" {
		config.SigningAlg = DefaultSigningAlg
	}

	var method jwt.SigningMethod
	switch config.SigningAlg {
	case "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("unsupported signing algorithm %q", config.SigningAlg)
	}

	// copy so callers cannot mutate the key after construction
	config.SigningKey = append([]byte(nil), config.SigningKey...)

	t := &TokenIssuer{config: config, method: method, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Lifetime returns how long issued tokens stay valid
func (t *TokenIssuer) Lifetime() time.Duration {
	return t.config.Lifetime
}

// Issue creates a token for subjectEmail that expires after the configured lifetime
func (t *TokenIssuer) Issue(subjectEmail string) (*Token, error) {
	now := t.now()
	claims := jwt.RegisteredClaims{
		Subject:   subjectEmail,
		Issuer:    t.config.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.config.Lifetime)),
	}

	signed, err := jwt.NewWithClaims(t.method, claims).SignedString(t.config.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &Token{
		Value:     signed,
		Subject:   subjectEmail,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Validate checks the signature and expiry of token and returns its subject.
// It fails with ErrTokenExpired once the expiry has been reached and with
// ErrTokenInvalid for every other problem.
func (t *TokenIssuer) Validate(token string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{t.method.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	}
	if t.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.config.Issuer))
	}

	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.config.SigningKey, nil
	}, opts...)
	if err != nil {
		// the signature is checked before expiry, so an expired error implies a genuine token
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", WrapAuthError(ErrCodeTokenExpired, "token has expired", err)
		}
		return "", WrapAuthError(ErrCodeTokenInvalid, "token is invalid", err)
	}
	if !parsed.Valid {
		return "", ErrTokenInvalid
	}
	if claims.Subject == "" {
		return "", NewAuthError(ErrCodeTokenInvalid, "token has no subject")
	}
	return claims.Subject, nil
}
