// Package auth implements registration, login, password reset and
// bearer authentication on top of the account store.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/prescient/internal/crypto"
	"github.com/iudanet/prescient/internal/models"
	"github.com/iudanet/prescient/internal/server/mail"
	"github.com/iudanet/prescient/internal/server/storage"
	"github.com/iudanet/prescient/internal/server/token"
	"github.com/iudanet/prescient/internal/validation"
)

// TokenService issues and verifies bearer tokens.
type TokenService interface {
	IssueSession(username string) (string, error)
	IssueReset(email string) (string, error)
	Verify(tokenString string, expected token.Purpose) (*token.Claims, error)
	SessionTTL() time.Duration
}

// Recorder receives auth outcomes, e.g. for metrics.
type Recorder interface {
	AuthEvent(event, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) AuthEvent(string, string) {}

// Deps содержит зависимости сервиса
type Deps struct {
	Store  storage.AccountStore
	Hasher crypto.PasswordHasher
	Tokens TokenService
	Mailer mail.Sender
	// Ledger is required only when single-use reset tokens are enabled
	Ledger storage.ResetLedger
	Logger *slog.Logger
}

// Config содержит настройки сервиса
type Config struct {
	// ResetLinkBase is the URL the reset token is appended to as ?token=
	ResetLinkBase string
	// SingleUseReset rejects a reset token after its first successful use
	SingleUseReset bool
}

// DefaultResetLinkBase is the reset page of the original web frontend.
const DefaultResetLinkBase = "http://localhost:8000/reset-password"

// Option configures a Service.
type Option func(*Service)

// WithRecorder sets the outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithClock overrides the time source for account timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// RegisterInput is the registration request.
type RegisterInput struct {
	Email    string
	Username string
	Password string
}

// AccountSummary is the public view of an account.
type AccountSummary struct {
	ID       string
	Email    string
	Username string
}

// Session is a successful login result.
type Session struct {
	AccessToken string
	TokenType   string
	ExpiresIn   time.Duration
}

// BootstrapAccount describes the account seeded on first start.
type BootstrapAccount struct {
	Username string
	Email    string
	Password string
}

// Service implements the authentication use cases. Safe for concurrent use.
type Service struct {
	store    storage.AccountStore
	ledger   storage.ResetLedger
	hasher   crypto.PasswordHasher
	tokens   TokenService
	mailer   mail.Sender
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
	// dummyDigest проверяется для несуществующих пользователей,
	// чтобы время ответа не выдавало наличие аккаунта
	dummyDigest   string
	resetLinkBase string
	singleUse     bool
}

// NewService creates the auth service.
func NewService(deps Deps, cfg Config, opts ...Option) (*Service, error) {
	if deps.Store == nil || deps.Hasher == nil || deps.Tokens == nil || deps.Mailer == nil {
		return nil, errors.New("auth: store, hasher, tokens and mailer are required")
	}
	if cfg.SingleUseReset && deps.Ledger == nil {
		return nil, errors.New("auth: single-use reset requires a reset ledger")
	}

	dummy, err := deps.Hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy digest: %w", err)
	}

	s := &Service{
		store:         deps.Store,
		ledger:        deps.Ledger,
		hasher:        deps.Hasher,
		tokens:        deps.Tokens,
		mailer:        deps.Mailer,
		logger:        deps.Logger,
		recorder:      nopRecorder{},
		now:           time.Now,
		dummyDigest:   dummy,
		resetLinkBase: cfg.ResetLinkBase,
		singleUse:     cfg.SingleUseReset,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.resetLinkBase == "" {
		s.resetLinkBase = DefaultResetLinkBase
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Register creates a new active account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*AccountSummary, error) {
	if err := validateRegistration(in); err != nil {
		s.recorder.AuthEvent("register", "invalid")
		return nil, err
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().UTC()
	account := &models.Account{
		ID:             uuid.NewString(),
		Username:       in.Username,
		Email:          in.Email,
		PasswordDigest: digest,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.Insert(ctx, account); err != nil {
		if errors.Is(err, storage.ErrAccountConflict) {
			s.recorder.AuthEvent("register", "conflict")
			return nil, s.conflictError(ctx, in.Username)
		}
		s.logger.ErrorContext(ctx, "failed to insert account", slog.Any("error", err))
		return nil, storeError(err)
	}

	s.logger.InfoContext(ctx, "account registered",
		slog.String("username", account.Username),
		slog.String("account_id", account.ID))
	s.recorder.AuthEvent("register", "success")

	return &AccountSummary{
		ID:       account.ID,
		Email:    account.Email,
		Username: account.Username,
	}, nil
}

// conflictError определяет, какое из уникальных полей уже занято
func (s *Service) conflictError(ctx context.Context, username string) error {
	_, err := s.store.FindByUsername(ctx, username)
	switch {
	case err == nil:
		return ErrUsernameTaken
	case errors.Is(err, storage.ErrAccountNotFound):
		return ErrEmailTaken
	default:
		return storeError(err)
	}
}

// Login checks credentials and issues a session token.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	if username == "" {
		return nil, missingField("username")
	}
	if password == "" {
		return nil, missingField("password")
	}

	account, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			// Тратим столько же времени, сколько на проверку реального пароля
			s.hasher.Verify(password, s.dummyDigest)
			s.logger.WarnContext(ctx, "login failed", slog.String("username", username))
			s.recorder.AuthEvent("login", "invalid_credentials")
			return nil, ErrInvalidCredentials
		}
		s.logger.ErrorContext(ctx, "failed to load account", slog.Any("error", err))
		return nil, storeError(err)
	}

	if !s.hasher.Verify(password, account.PasswordDigest) {
		s.logger.WarnContext(ctx, "login failed", slog.String("username", username))
		s.recorder.AuthEvent("login", "invalid_credentials")
		return nil, ErrInvalidCredentials
	}

	if !account.IsActive {
		s.logger.WarnContext(ctx, "login rejected: account inactive", slog.String("username", username))
		s.recorder.AuthEvent("login", "inactive")
		return nil, ErrAccountInactive
	}

	accessToken, err := s.tokens.IssueSession(account.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	s.logger.InfoContext(ctx, "user logged in", slog.String("username", username))
	s.recorder.AuthEvent("login", "success")

	return &Session{
		AccessToken: accessToken,
		TokenType:   "bearer",
		ExpiresIn:   s.tokens.SessionTTL(),
	}, nil
}

// Authenticate verifies a session token and returns its username.
func (s *Service) Authenticate(ctx context.Context, bearer string) (string, error) {
	claims, err := s.tokens.Verify(bearer, token.PurposeSession)
	if err != nil {
		s.recorder.AuthEvent("authenticate", "rejected")
		return "", err
	}
	return claims.Subject, nil
}

// SetActive activates or deactivates an account.
func (s *Service) SetActive(ctx context.Context, username string, active bool) error {
	if err := s.store.SetActive(ctx, username, active); err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return storeError(err)
	}

	s.logger.InfoContext(ctx, "account status changed",
		slog.String("username", username),
		slog.Bool("active", active))
	return nil
}

// SetPassword replaces the password of an account without a reset token.
func (s *Service) SetPassword(ctx context.Context, username, password string) error {
	if password == "" {
		return missingField("password")
	}
	if err := validation.ValidatePassword(password); err != nil {
		return invalidField("password", err)
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.store.UpdatePassword(ctx, username, digest); err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return storeError(err)
	}

	s.logger.InfoContext(ctx, "password set by administrator", slog.String("username", username))
	return nil
}

// Bootstrap seeds the initial account unless seeding already happened.
// Returns true if the account was created.
func (s *Service) Bootstrap(ctx context.Context, b BootstrapAccount) (bool, error) {
	if b.Username == "" || b.Email == "" || b.Password == "" {
		return false, errors.New("bootstrap account needs username, email and password")
	}

	digest, err := s.hasher.Hash(b.Password)
	if err != nil {
		return false, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().UTC()
	seeded, err := s.store.SeedBootstrap(ctx, &models.Account{
		ID:             uuid.NewString(),
		Username:       b.Username,
		Email:          b.Email,
		PasswordDigest: digest,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return false, storeError(err)
	}

	if seeded {
		s.logger.InfoContext(ctx, "bootstrap account created", slog.String("username", b.Username))
	}
	return seeded, nil
}

func validateRegistration(in RegisterInput) error {
	// Сначала наличие всех полей, затем формат
	switch {
	case in.Email == "":
		return missingField("email")
	case in.Username == "":
		return missingField("username")
	case in.Password == "":
		return missingField("password")
	}

	if err := validation.ValidateEmail(in.Email); err != nil {
		return invalidField("email", err)
	}
	if err := validation.ValidateUsername(in.Username); err != nil {
		return invalidField("username", err)
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return invalidField("password", err)
	}

	return nil
}
