// Package auth issues and validates the HS256 session tokens that stand in
// for the hosting platform's identity service. A token carries the username
// as its subject and a moderator flag set by whoever minted the session.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultSessionTTL = 6 * time.Hour

var (
	ErrMissingSigningSecret = errors.New("auth: signing secret must be provided")
	ErrMissingUsername      = errors.New("auth: username must be provided")
	ErrInvalidSessionToken  = errors.New("auth: invalid session token")
	ErrExpiredSessionToken  = errors.New("auth: session token expired")
)

// Session is the identity a validated token resolves to.
type Session struct {
	Username  string
	Moderator bool
}

// SessionClaims is the JWT payload carried by session tokens.
type SessionClaims struct {
	Moderator bool `json:"moderator"`
	jwt.RegisteredClaims
}

// SessionManagerConfig configures the session token issuer and validator.
type SessionManagerConfig struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// SessionManager issues and validates session tokens.
type SessionManager struct {
	signingSecret []byte
	issuer        string
	audience      string
	tokenTTL      time.Duration
	clock         func() time.Time
}

// NewSessionManager constructs a manager with sane defaults.
func NewSessionManager(cfg SessionManagerConfig) (*SessionManager, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSigningSecret
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SessionManager{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        cfg.Issuer,
		audience:      cfg.Audience,
		tokenTTL:      ttl,
		clock:         clock,
	}, nil
}

// IssueSessionToken produces a signed token and its expiry (seconds) for the
// given user.
func (m *SessionManager) IssueSessionToken(username string, moderator bool) (string, int64, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", 0, ErrMissingUsername
	}

	now := m.clock().UTC()
	expiresAt := now.Add(m.tokenTTL)

	claims := SessionClaims{
		Moderator: moderator,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    m.issuer,
			Audience:  []string{m.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.signingSecret)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(expiresAt.Sub(now).Seconds()), nil
}

// ValidateToken checks the token's signature, expiry, issuer, and audience,
// and returns the session it carries.
func (m *SessionManager) ValidateToken(tokenString string) (Session, error) {
	if strings.TrimSpace(tokenString) == "" {
		return Session{}, ErrInvalidSessionToken
	}

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidSessionToken, token.Method.Alg())
			}
			return m.signingSecret, nil
		},
		jwt.WithAudience(m.audience),
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Session{}, ErrExpiredSessionToken
		}
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return Session{}, ErrInvalidSessionToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Session{}, ErrMissingUsername
	}
	return Session{Username: claims.Subject, Moderator: claims.Moderator}, nil
}
