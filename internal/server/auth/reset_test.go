package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/prescient/internal/server/token"
)

func TestService_ForgotPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("known email", func(t *testing.T) {
		env := setupService(t, Config{ResetLinkBase: "https://app.example.com/reset?lang=id"})
		env.register(t, "a@x.io", "alice", "s3cret")

		require.NoError(t, env.svc.ForgotPassword(ctx, "a@x.io"))

		sent := env.mailer.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "a@x.io", sent[0].to)

		u, err := url.Parse(sent[0].link)
		require.NoError(t, err)
		assert.Equal(t, "app.example.com", u.Host)
		assert.Equal(t, "/reset", u.Path)
		assert.Equal(t, "id", u.Query().Get("lang"))

		claims, err := env.tokens.Verify(u.Query().Get("token"), token.PurposeReset)
		require.NoError(t, err)
		assert.Equal(t, "a@x.io", claims.Subject)
	})

	t.Run("default link base", func(t *testing.T) {
		env := setupService(t, Config{})
		env.register(t, "a@x.io", "alice", "s3cret")

		require.NoError(t, env.svc.ForgotPassword(ctx, "a@x.io"))
		link := env.mailer.Sent()[0].link
		assert.True(t, strings.HasPrefix(link, DefaultResetLinkBase+"?token="), link)
	})

	t.Run("unknown email succeeds silently", func(t *testing.T) {
		env := setupService(t, Config{})

		require.NoError(t, env.svc.ForgotPassword(ctx, "nobody@x.io"))
		assert.Empty(t, env.mailer.Sent())
		assert.Equal(t, "forgot_password/unknown_email", env.recorder.Events())
	})

	t.Run("delivery failure", func(t *testing.T) {
		env := setupService(t, Config{})
		env.register(t, "a@x.io", "alice", "s3cret")
		env.mailer.err = errors.New("connection refused")

		err := env.svc.ForgotPassword(ctx, "a@x.io")
		assert.ErrorIs(t, err, ErrEmailDeliveryFailed)
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("field errors", func(t *testing.T) {
		env := setupService(t, Config{})

		assert.ErrorIs(t, env.svc.ForgotPassword(ctx, ""), ErrMissingField)
		assert.ErrorIs(t, env.svc.ForgotPassword(ctx, "not-an-email"), ErrInvalidField)
	})

	t.Run("store unavailable", func(t *testing.T) {
		env := setupService(t, Config{})
		env.store.findErr = errors.New("database is locked")

		assert.ErrorIs(t, env.svc.ForgotPassword(ctx, "a@x.io"), ErrStoreUnavailable)
		assert.Empty(t, env.mailer.Sent())
	})
}

func TestService_ResetPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		env := setupService(t, Config{})
		env.register(t, "a@x.io", "alice", "s3cret")
		require.NoError(t, env.svc.ForgotPassword(ctx, "a@x.io"))

		require.NoError(t, env.svc.ResetPassword(ctx, env.lastResetToken(t), "newpass"))

		_, err := env.svc.Login(ctx, "alice", "newpass")
		assert.NoError(t, err)
		_, err = env.svc.Login(ctx, "alice", "s3cret")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("session token rejected", func(t *testing.T) {
		env := setupService(t, Config{})
		env.register(t, "a@x.io", "alice", "s3cret")
		session, err := env.svc.Login(ctx, "alice", "s3cret")
		require.NoError(t, err)

		err = env.svc.ResetPassword(ctx, session.AccessToken, "newpass")
		assert.ErrorIs(t, err, token.ErrPurposeMismatch)
	})

	t.Run("expired", func(t *testing.T) {
		env := setupService(t, Config{})
		env.register(t, "a@x.io", "alice", "s3cret")
		require.NoError(t, env.svc.ForgotPassword(ctx, "a@x.io"))
		tok := env.lastResetToken(t)

		env.clock.Advance(token.DefaultResetTTL - time.Second)
		require.NoError(t, env.svc.ResetPassword(ctx, tok, "newpass"))

		env.clock.Advance(time.Second)
		assert.ErrorIs(t, env.svc.ResetPassword(ctx, tok, "another"), token.ErrExpired)
	})

	t.Run("garbage token", func(t *testing.T) {
		env := setupService(t, Config{})
		assert.ErrorIs(t, env.svc.ResetPassword(ctx, "not.a.token", "newpass"), token.ErrMalformed)
		assert.Equal(t, "reset_password/invalid_token", env.recorder.Events())
	})

	t.Run("field errors", func(t *testing.T) {
		env := setupService(t, Config{})
		env.register(t, "a@x.io", "alice", "s3cret")
		require.NoError(t, env.svc.ForgotPassword(ctx, "a@x.io"))
		tok := env.lastResetToken(t)

		var fieldErr *FieldError

		err := env.svc.ResetPassword(ctx, "", "newpass")
		require.ErrorAs(t, err, &fieldErr)
		assert.Equal(t, "token", fieldErr.Field)
		assert.ErrorIs(t, err, ErrMissingField)

		err = env.svc.ResetPassword(ctx, tok, "")
		require.ErrorAs(t, err, &fieldErr)
		assert.Equal(t, "new_password", fieldErr.Field)
		assert.ErrorIs(t, err, ErrMissingField)

		err = env.svc.ResetPassword(ctx, tok, "abcd")
		require.ErrorAs(t, err, &fieldErr)
		assert.Equal(t, "new_password", fieldErr.Field)
		assert.ErrorIs(t, err, ErrInvalidField)

		// Токен не потрачен отклоненными запросами
		assert.NoError(t, env.svc.ResetPassword(ctx, tok, "newpass"))
	})

	t.Run("replay allowed by default", func(t *testing.T) {
		env := setupService(t, Config{})
		env.register(t, "a@x.io", "alice", "s3cret")
		require.NoError(t, env.svc.ForgotPassword(ctx, "a@x.io"))
		tok := env.lastResetToken(t)

		require.NoError(t, env.svc.ResetPassword(ctx, tok, "first"))
		require.NoError(t, env.svc.ResetPassword(ctx, tok, "second"))

		_, err := env.svc.Login(ctx, "alice", "second")
		assert.NoError(t, err)
	})

	t.Run("account removed", func(t *testing.T) {
		env := setupService(t, Config{})
		tok, err := env.tokens.IssueReset("gone@x.io")
		require.NoError(t, err)

		assert.ErrorIs(t, env.svc.ResetPassword(ctx, tok, "newpass"), ErrAccountNotFound)
	})

	t.Run("store unavailable", func(t *testing.T) {
		env := setupService(t, Config{})
		env.register(t, "a@x.io", "alice", "s3cret")
		require.NoError(t, env.svc.ForgotPassword(ctx, "a@x.io"))
		env.store.updateErr = errors.New("readonly database")

		assert.ErrorIs(t, env.svc.ResetPassword(ctx, env.lastResetToken(t), "newpass"), ErrStoreUnavailable)
	})
}

func TestService_ResetPassword_SingleUse(t *testing.T) {
	ctx := context.Background()
	env := setupService(t, Config{SingleUseReset: true})
	env.register(t, "a@x.io", "alice", "s3cret")

	require.NoError(t, env.svc.ForgotPassword(ctx, "a@x.io"))
	first := env.lastResetToken(t)

	require.NoError(t, env.svc.ResetPassword(ctx, first, "first"))
	assert.ErrorIs(t, env.svc.ResetPassword(ctx, first, "second"), ErrResetTokenConsumed)

	_, err := env.svc.Login(ctx, "alice", "first")
	assert.NoError(t, err)

	// Новый токен того же пользователя работает
	env.clock.Advance(time.Second)
	require.NoError(t, env.svc.ForgotPassword(ctx, "a@x.io"))
	second := env.lastResetToken(t)
	require.NotEqual(t, first, second)
	assert.NoError(t, env.svc.ResetPassword(ctx, second, "third"))

	// Ledger хранит только хеши jti
	claims, err := env.tokens.Verify(first, token.PurposeReset)
	require.NoError(t, err)
	env.store.mu.Lock()
	_, stored := env.store.consumed[consumptionKey(claims)]
	_, raw := env.store.consumed[first]
	env.store.mu.Unlock()
	assert.True(t, stored)
	assert.False(t, raw)
}

func TestService_ResetPassword_SingleUseSignatureVariants(t *testing.T) {
	ctx := context.Background()
	env := setupService(t, Config{SingleUseReset: true})
	env.register(t, "a@x.io", "alice", "s3cret")

	require.NoError(t, env.svc.ForgotPassword(ctx, "a@x.io"))
	used := env.lastResetToken(t)
	require.NoError(t, env.svc.ResetPassword(ctx, used, "first"))

	head, last := used[:len(used)-1], used[len(used)-1]
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	for _, c := range []byte(alphabet) {
		if c == last {
			continue
		}
		err := env.svc.ResetPassword(ctx, head+string(c), "hijacked")
		require.Error(t, err, "last signature char %q -> %q", last, c)
		assert.ErrorIs(t, err, token.ErrBadSignature)
	}

	_, err := env.svc.Login(ctx, "alice", "first")
	assert.NoError(t, err)
	_, err = env.svc.Login(ctx, "alice", "hijacked")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_ResetPassword_SingleUseLedgerError(t *testing.T) {
	ctx := context.Background()
	env := setupService(t, Config{SingleUseReset: true})
	env.register(t, "a@x.io", "alice", "s3cret")
	require.NoError(t, env.svc.ForgotPassword(ctx, "a@x.io"))
	env.store.ledgerErr = errors.New("disk full")

	err := env.svc.ResetPassword(ctx, env.lastResetToken(t), "newpass")
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	// Пароль не изменился
	_, err = env.svc.Login(ctx, "alice", "s3cret")
	assert.NoError(t, err)
}

func TestService_PurgeConsumedResetTokens(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		env := setupService(t, Config{})
		n, err := env.svc.PurgeConsumedResetTokens(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("purges after expiry", func(t *testing.T) {
		env := setupService(t, Config{SingleUseReset: true})
		env.register(t, "a@x.io", "alice", "s3cret")
		require.NoError(t, env.svc.ForgotPassword(ctx, "a@x.io"))
		require.NoError(t, env.svc.ResetPassword(ctx, env.lastResetToken(t), "newpass"))

		n, err := env.svc.PurgeConsumedResetTokens(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		env.clock.Advance(token.DefaultResetTTL)
		n, err = env.svc.PurgeConsumedResetTokens(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestConsumptionKey(t *testing.T) {
	sum := sha256.Sum256([]byte("3f2a9c1e-jti"))
	want := hex.EncodeToString(sum[:])

	first := &token.Claims{}
	first.ID = "3f2a9c1e-jti"
	second := &token.Claims{}
	second.ID = "7b1d0e44-jti"

	assert.Equal(t, want, consumptionKey(first))
	assert.NotEqual(t, consumptionKey(first), consumptionKey(second))
}

func TestResetLink(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		token   string
		want    string
		wantErr bool
	}{
		{
			name:  "plain base",
			base:  "http://localhost:8000/reset-password",
			token: "a.b.c",
			want:  "http://localhost:8000/reset-password?token=a.b.c",
		},
		{
			name:  "existing query",
			base:  "https://app.example.com/reset?lang=id",
			token: "a.b.c",
			want:  "https://app.example.com/reset?lang=id&token=a.b.c",
		},
		{
			name:  "replaces token",
			base:  "https://app.example.com/reset?token=old",
			token: "new",
			want:  "https://app.example.com/reset?token=new",
		},
		{
			name:    "invalid base",
			base:    "http://[::1",
			token:   "a.b.c",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resetLink(tt.base, tt.token)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
