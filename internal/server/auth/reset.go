package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/iudanet/prescient/internal/server/storage"
	"github.com/iudanet/prescient/internal/server/token"
	"github.com/iudanet/prescient/internal/validation"
)

// ForgotPassword emails a reset link to the owner of email.
// Unknown emails succeed silently so the response does not reveal which addresses exist.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	if email == "" {
		return missingField("email")
	}
	if err := validation.ValidateEmail(email); err != nil {
		return invalidField("email", err)
	}

	account, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			s.logger.InfoContext(ctx, "password reset requested for unknown email")
			s.recorder.AuthEvent("forgot_password", "unknown_email")
			return nil
		}
		s.logger.ErrorContext(ctx, "failed to load account", slog.Any("error", err))
		return storeError(err)
	}

	resetToken, err := s.tokens.IssueReset(account.Email)
	if err != nil {
		return fmt.Errorf("failed to issue reset token: %w", err)
	}

	link, err := resetLink(s.resetLinkBase, resetToken)
	if err != nil {
		return err
	}

	if err := s.mailer.SendResetEmail(ctx, account.Email, link); err != nil {
		s.logger.ErrorContext(ctx, "failed to send reset email",
			slog.String("username", account.Username),
			slog.Any("error", err))
		s.recorder.AuthEvent("forgot_password", "delivery_failed")
		return fmt.Errorf("%w: %w", ErrEmailDeliveryFailed, err)
	}

	s.logger.InfoContext(ctx, "password reset requested", slog.String("username", account.Username))
	s.recorder.AuthEvent("forgot_password", "sent")
	return nil
}

// ResetPassword sets a new password for the account named by a reset token.
func (s *Service) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if resetToken == "" {
		return missingField("token")
	}
	if newPassword == "" {
		return missingField("new_password")
	}
	if err := validation.ValidatePassword(newPassword); err != nil {
		return invalidField("new_password", err)
	}

	claims, err := s.tokens.Verify(resetToken, token.PurposeReset)
	if err != nil {
		s.recorder.AuthEvent("reset_password", "invalid_token")
		return err
	}

	account, err := s.store.FindByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return storeError(err)
	}

	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if s.singleUse {
		err := s.ledger.MarkConsumed(ctx, consumptionKey(claims), claims.ExpiresAt.Time)
		if err != nil {
			if errors.Is(err, storage.ErrTokenConsumed) {
				s.recorder.AuthEvent("reset_password", "replayed")
				return ErrResetTokenConsumed
			}
			return storeError(err)
		}
	}

	if err := s.store.UpdatePassword(ctx, account.Username, digest); err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return storeError(err)
	}

	s.logger.InfoContext(ctx, "password reset completed", slog.String("username", account.Username))
	s.recorder.AuthEvent("reset_password", "success")
	return nil
}

// PurgeConsumedResetTokens drops ledger records of tokens that already expired.
func (s *Service) PurgeConsumedResetTokens(ctx context.Context) (int, error) {
	if !s.singleUse {
		return 0, nil
	}

	n, err := s.ledger.PurgeExpired(ctx, s.now())
	if err != nil {
		return 0, storeError(err)
	}
	return n, nil
}

// consumptionKey - hex SHA-256 от jti токена. Ключ не зависит от записи подписи,
// поэтому разные кодировки одного токена попадают в одну запись ledger.
func consumptionKey(claims *token.Claims) string {
	sum := sha256.Sum256([]byte(claims.ID))
	return hex.EncodeToString(sum[:])
}

func resetLink(base, resetToken string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid reset link base: %w", err)
	}

	q := u.Query()
	q.Set("token", resetToken)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
