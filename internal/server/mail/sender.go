// Package mail delivers password reset emails.
package mail

import (
	"context"
	"log/slog"
)

// Sender delivers a password reset link to an email address.
type Sender interface {
	SendResetEmail(ctx context.Context, to, link string) error
}

// LogSender writes reset links to the log instead of sending them.
// Intended for local development only.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// SendResetEmail logs the reset link.
func (s *LogSender) SendResetEmail(ctx context.Context, to, link string) error {
	s.logger.InfoContext(ctx, "password reset email",
		slog.String("to", to),
		slog.String("link", link),
	)
	return nil
}
