// Package access models the explicit admin session that gates schema editing.
// Sessions travel as signed JWTs and are checked for role and expiry on every
// use instead of being held as ambient global state.
package access

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is the capability carried by a session.
type Role string

// Known roles.
const (
	RoleAdmin      Role = "admin"
	RoleRespondent Role = "respondent"
)

const defaultTTL = time.Hour

var (
	// ErrExpired is returned when the session is past its expiry.
	ErrExpired = errors.New("access: session expired")
	// ErrForbidden is returned when the session lacks the required role.
	ErrForbidden = errors.New("access: forbidden")
	// ErrNoSession is returned when no session is attached to a context.
	ErrNoSession = errors.New("access: no session")
	// ErrInvalidToken is returned for tokens that fail verification.
	ErrInvalidToken = errors.New("access: invalid token")
)

// Session is an authenticated principal with an explicit lifetime.
type Session struct {
	Subject   string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is no longer usable at now.
func (s Session) Expired(now time.Time) bool {
	return s.ExpiresAt.IsZero() || !now.Before(s.ExpiresAt)
}

// Authorize checks that the session is live at now and carries role.
func (s Session) Authorize(now time.Time, role Role) error {
	if s.Expired(now) {
		return fmt.Errorf("%w: %s at %s", ErrExpired, s.Subject, s.ExpiresAt.Format(time.RFC3339))
	}
	if s.Role != role {
		return fmt.Errorf("%w: %s has role %q, need %q", ErrForbidden, s.Subject, s.Role, role)
	}
	return nil
}

// Claims is the JWT payload.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

type config struct {
	issuer string
	ttl    time.Duration
	clock  func() time.Time
}

// Option configures IssueToken and ParseToken.
type Option func(*config)

// WithIssuer stamps and requires the iss claim.
func WithIssuer(issuer string) Option {
	return func(c *config) {
		c.issuer = strings.TrimSpace(issuer)
	}
}

// WithTTL sets the lifetime of issued tokens.
func WithTTL(ttl time.Duration) Option {
	return func(c *config) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(c *config) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func newConfig(opts []Option) config {
	cfg := config{ttl: defaultTTL, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// IssueToken signs a session for subject with HMAC-SHA256.
func IssueToken(secret []byte, subject string, role Role, opts ...Option) (string, Session, error) {
	if len(secret) == 0 {
		return "", Session{}, errors.New("access: signing secret is empty")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", Session{}, errors.New("access: subject is required")
	}

	cfg := newConfig(opts)
	now := cfg.clock().UTC().Truncate(time.Second)
	session := Session{Subject: subject, Role: role, IssuedAt: now, ExpiresAt: now.Add(cfg.ttl)}

	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    cfg.issuer,
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", Session{}, fmt.Errorf("access: sign token: %w", err)
	}
	return signed, session, nil
}

// ParseToken verifies token and returns the session it carries. Expired
// tokens fail with ErrExpired, everything else that does not verify with
// ErrInvalidToken.
func ParseToken(secret []byte, token string, opts ...Option) (Session, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return Session{}, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	cfg := newConfig(opts)
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(cfg.clock),
		jwt.WithExpirationRequired(),
	}
	if cfg.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(cfg.issuer))
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Session{}, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return Session{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Session{}, fmt.Errorf("%w: subject (sub) claim is missing", ErrInvalidToken)
	}

	session := Session{Subject: claims.Subject, Role: claims.Role}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return session, nil
}

type contextKey struct{}

// WithSession attaches session to ctx.
func WithSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, contextKey{}, session)
}

// FromContext returns the session attached to ctx.
func FromContext(ctx context.Context) (Session, bool) {
	if ctx == nil {
		return Session{}, false
	}
	session, ok := ctx.Value(contextKey{}).(Session)
	return session, ok
}

// Require resolves the session from ctx and authorizes it for role at now.
func Require(ctx context.Context, now time.Time, role Role) (Session, error) {
	session, ok := FromContext(ctx)
	if !ok {
		return Session{}, ErrNoSession
	}
	if err := session.Authorize(now, role); err != nil {
		return Session{}, err
	}
	return session, nil
}
