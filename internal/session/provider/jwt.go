// Package provider issues anonymous sessions as signed JWTs.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/genialityco/gen-live-web-sub000/internal/session/models"
	id "github.com/genialityco/gen-live-web-sub000/pkg/domain"
	dErrors "github.com/genialityco/gen-live-web-sub000/pkg/domain-errors"
)

// Claims are the claims of an anonymous session token.
type Claims struct {
	Email     string `json:"email,omitempty"`
	Anonymous bool   `json:"anonymous"`
	jwt.RegisteredClaims
}

// JWTProvider mints anonymous sessions. The session id is the token subject.
type JWTProvider struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
	now        func() time.Time
}

type Option func(*JWTProvider)

func WithClock(now func() time.Time) Option {
	return func(p *JWTProvider) {
		if now != nil {
			p.now = now
		}
	}
}

func NewJWTProvider(signingKey, issuer string, ttl time.Duration, opts ...Option) *JWTProvider {
	p := &JWTProvider{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		ttl:        ttl,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CreateAnonymousSession issues a new session for email.
func (p *JWTProvider) CreateAnonymousSession(_ context.Context, email string) (*models.Session, error) {
	now := p.now()
	sessionID := id.SessionID(uuid.NewString())
	claims := Claims{
		Email:     email,
		Anonymous: true,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID.String(),
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.signingKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign session token")
	}
	return &models.Session{
		ID:        sessionID,
		Email:     email,
		Token:     signed,
		IssuedAt:  now,
		ExpiresAt: now.Add(p.ttl),
	}, nil
}

// Validate parses a session token and returns its claims.
func (p *JWTProvider) Validate(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return p.signingKey, nil
	},
		jwt.WithIssuer(p.issuer),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "session has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session token")
	}
	return claims, nil
}

// SessionID returns the session a token was issued for.
func (p *JWTProvider) SessionID(token string) (id.SessionID, error) {
	claims, err := p.Validate(token)
	if err != nil {
		return "", err
	}
	return id.ParseSessionID(claims.Subject)
}
