package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/dtu-hub/internal/infrastructure/config"
)

// DefaultTokenTTL applies when security.jwt.access_token_ttl is not set.
const DefaultTokenTTL = 60 * time.Minute

// TokenType is the only scheme the API accepts.
const TokenType = "bearer"

// Token is what a successful login returns.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"` // seconds
}

// IssueToken signs an HS256 token for subject valid for ttl from now.
func IssueToken(subject, secret string, ttl time.Duration, now time.Time) (Token, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return Token{}, fmt.Errorf("signing token: %w", err)
	}
	return Token{AccessToken: signed, TokenType: TokenType, ExpiresIn: int(ttl.Seconds())}, nil
}

// ParseToken checks the signature and expiry of raw and returns its claims.
func ParseToken(raw, secret string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return claims, nil
}

// Authenticator checks the configured operator credentials and the tokens
// it hands out.
type Authenticator struct {
	username     string
	passwordHash string
	secret       string
	ttl          time.Duration
	now          func() time.Time
}

// NewAuthenticator builds an Authenticator from the security section.
func NewAuthenticator(cfg config.SecurityConfig) *Authenticator {
	return &Authenticator{
		username:     cfg.Auth.Username,
		passwordHash: cfg.Auth.PasswordHash,
		secret:       cfg.JWT.Secret,
		ttl:          time.Duration(cfg.JWT.AccessTokenTTL) * time.Minute,
		now:          time.Now,
	}
}

// Login verifies username and password and issues a token.
func (a *Authenticator) Login(username, password string) (Token, error) {
	ok, err := VerifyPassword(password, a.passwordHash)
	if err != nil {
		return Token{}, err
	}
	if !ok || username != a.username {
		return Token{}, ErrInvalidCredentials
	}
	return IssueToken(username, a.secret, a.ttl, a.now())
}

// Validate parses a bearer token and returns its subject.
func (a *Authenticator) Validate(raw string) (string, error) {
	claims, err := ParseToken(raw, a.secret)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
