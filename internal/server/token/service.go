// Package token issues and verifies the signed bearer tokens used for
// sessions and password resets.
package token

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Purpose distinguishes session tokens from reset tokens.
type Purpose string

const (
	PurposeSession Purpose = "session"
	PurposeReset   Purpose = "reset"
)

const (
	// MinSecretLength is the minimal signing secret length in bytes.
	MinSecretLength = 32

	DefaultIssuer     = "prescient"
	DefaultSessionTTL = 24 * time.Hour
	DefaultResetTTL   = time.Hour
)

// Claims represents the claims carried by every token.
type Claims struct {
	Purpose Purpose `json:"purpose"`
	jwt.RegisteredClaims
}

// Config содержит параметры выпуска токенов.
type Config struct {
	Secret     []byte
	Issuer     string
	SessionTTL time.Duration
	ResetTTL   time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for issuing and verifying tokens.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service issues and verifies HS256 tokens. Safe for concurrent use.
type Service struct {
	now        func() time.Time
	issuer     string
	secret     []byte
	sessionTTL time.Duration
	resetTTL   time.Duration
	mu         sync.RWMutex
}

// NewService creates a token service. The secret has no default and must be
// at least MinSecretLength bytes long.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: got %d bytes, need at least %d", ErrWeakSecret, len(cfg.Secret), MinSecretLength)
	}

	s := &Service{
		secret:     append([]byte(nil), cfg.Secret...),
		issuer:     cfg.Issuer,
		sessionTTL: cfg.SessionTTL,
		resetTTL:   cfg.ResetTTL,
		now:        time.Now,
	}
	if s.issuer == "" {
		s.issuer = DefaultIssuer
	}
	if s.sessionTTL <= 0 {
		s.sessionTTL = DefaultSessionTTL
	}
	if s.resetTTL <= 0 {
		s.resetTTL = DefaultResetTTL
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// SessionTTL returns the lifetime of session tokens.
func (s *Service) SessionTTL() time.Duration {
	return s.sessionTTL
}

// ResetTTL returns the lifetime of reset tokens.
func (s *Service) ResetTTL() time.Duration {
	return s.resetTTL
}

// Issue signs a new token for subject with the given purpose and lifetime.
func (s *Service) Issue(subject string, purpose Purpose, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("%w: empty subject", ErrMalformed)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("non-positive token ttl: %s", ttl)
	}

	now := s.now()
	claims := Claims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			// jti различает токены, выпущенные в одну и ту же секунду
			ID: uuid.NewString(),
		},
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// IssueSession issues a session token for username.
func (s *Service) IssueSession(username string) (string, error) {
	return s.Issue(username, PurposeSession, s.sessionTTL)
}

// IssueReset issues a password reset token for email.
func (s *Service) IssueReset(email string) (string, error) {
	return s.Issue(email, PurposeReset, s.resetTTL)
}

// Verify checks the signature, expiry and purpose of tokenString, in that order.
func (s *Service) Verify(tokenString string, expected Purpose) (*Claims, error) {
	claims := &Claims{}

	s.mu.RLock()
	secret := s.secret
	s.mu.RUnlock()

	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) {
			return secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(s.issuer),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) && undecodableSignature(tokenString) {
			return nil, fmt.Errorf("%w: %w", ErrBadSignature, err)
		}
		return nil, classify(err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformed)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing token id", ErrMalformed)
	}
	if claims.Purpose != expected {
		return nil, ErrPurposeMismatch
	}

	return claims, nil
}

// Rotate replaces the signing secret. Every outstanding token becomes invalid.
func (s *Service) Rotate(secret []byte) error {
	if len(secret) < MinSecretLength {
		return fmt.Errorf("%w: got %d bytes, need at least %d", ErrWeakSecret, len(secret), MinSecretLength)
	}

	s.mu.Lock()
	s.secret = append([]byte(nil), secret...)
	s.mu.Unlock()

	return nil
}

// undecodableSignature сообщает, что заголовок и payload корректны, а подпись
// не является каноничным base64url. Такой токен считается подделанной подписью.
func undecodableSignature(tokenString string) bool {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return false
	}

	enc := base64.RawURLEncoding.Strict()
	if _, err := enc.DecodeString(parts[0]); err != nil {
		return false
	}
	if _, err := enc.DecodeString(parts[1]); err != nil {
		return false
	}
	_, err := enc.DecodeString(parts[2])
	return err != nil
}

// classify сводит ошибки jwt к собственным sentinel-ошибкам пакета
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %w", ErrBadSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
}
