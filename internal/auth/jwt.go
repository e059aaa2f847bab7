// Package auth issues and verifies the bearer tokens that carry a caller's
// account id. The token subject is the caller of every mutating call.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL applies when Config.TTL is zero.
const DefaultTTL = 24 * time.Hour

var (
	ErrMissingToken = errors.New("authorization header required")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Config configures token signing.
type Config struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// Claims is the token payload. Subject holds the account id.
type Claims struct {
	jwt.RegisteredClaims
}

// Manager signs and validates HS256 tokens.
type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewManager returns a manager; an empty secret is rejected.
func NewManager(cfg Config) (*Manager, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("auth secret required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{secret: []byte(cfg.Secret), issuer: cfg.Issuer, ttl: ttl, now: time.Now}, nil
}

// GenerateToken creates a token whose subject is account.
func (m *Manager) GenerateToken(account string) (string, error) {
	if strings.TrimSpace(account) == "" {
		return "", errors.New("account required")
	}
	now := m.now()
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   account,
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// ValidateToken verifies the signature, expiry and issuer and returns the
// account id carried in the subject.
func (m *Manager) ValidateToken(tokenString string) (string, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// FromHeader extracts and validates a "Bearer <token>" Authorization value.
func (m *Manager) FromHeader(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: malformed authorization header", ErrInvalidToken)
	}
	return m.ValidateToken(strings.TrimSpace(token))
}

type callerKey struct{}

// WithCaller stores the authenticated account on ctx.
func WithCaller(ctx context.Context, account string) context.Context {
	return context.WithValue(ctx, callerKey{}, account)
}

// CallerFromContext returns the authenticated account, if any.
func CallerFromContext(ctx context.Context) (string, bool) {
	account, ok := ctx.Value(callerKey{}).(string)
	return account, ok && account != ""
}
