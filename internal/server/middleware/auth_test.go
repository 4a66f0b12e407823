package middleware

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/prescient/internal/server/token"
	"github.com/iudanet/prescient/pkg/api"
)

// setupTestLogger creates a logger for testing
func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// tokenAuthenticator проверяет токены сессии через token.Service
type tokenAuthenticator struct {
	tokens *token.Service
}

func (a tokenAuthenticator) Authenticate(_ context.Context, bearer string) (string, error) {
	claims, err := a.tokens.Verify(bearer, token.PurposeSession)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func newTokenService(t *testing.T, now func() time.Time) *token.Service {
	t.Helper()
	svc, err := token.NewService(token.Config{Secret: []byte("0123456789abcdef0123456789abcdef")}, token.WithClock(now))
	require.NoError(t, err)
	return svc
}

// testHandler проверяет, что username попал в контекст
func testHandler(t *testing.T, expectedUsername string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username, ok := GetUsername(r.Context())
		require.True(t, ok, "username should be in context")
		assert.Equal(t, expectedUsername, username)

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

func TestAuthMiddleware_Success(t *testing.T) {
	tokens := newTokenService(t, time.Now)
	accessToken, err := tokens.IssueSession("alice")
	require.NoError(t, err)

	handler := AuthMiddleware(setupTestLogger(), tokenAuthenticator{tokens})(testHandler(t, "alice"))

	req := httptest.NewRequest(http.MethodPost, "/predict", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestAuthMiddleware_Rejected(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tokens := newTokenService(t, func() time.Time { return now })

	session, err := tokens.IssueSession("alice")
	require.NoError(t, err)
	reset, err := tokens.IssueReset("a@x.io")
	require.NoError(t, err)

	other, err := token.NewService(token.Config{Secret: []byte("another-secret-another-secret-00")},
		token.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	foreign, err := other.IssueSession("alice")
	require.NoError(t, err)

	expiredIssuer := newTokenService(t, func() time.Time { return now.Add(-25 * time.Hour) })
	expired, err := expiredIssuer.IssueSession("alice")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"basic scheme", "Basic YWxpY2U6czNjcmV0"},
		{"no token", "Bearer "},
		{"token without scheme", session},
		{"garbage", "Bearer not-a-token"},
		{"reset token", "Bearer " + reset},
		{"wrong secret", "Bearer " + foreign},
		{"expired", "Bearer " + expired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
			handler := AuthMiddleware(setupTestLogger(), tokenAuthenticator{tokens})(next)

			req := httptest.NewRequest(http.MethodPost, "/predict", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.False(t, called)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))

			var resp api.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "Unauthorized", resp.Error)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestAuthMiddleware_CaseInsensitiveScheme(t *testing.T) {
	tokens := newTokenService(t, time.Now)
	accessToken, err := tokens.IssueSession("alice")
	require.NoError(t, err)

	handler := AuthMiddleware(setupTestLogger(), tokenAuthenticator{tokens})(testHandler(t, "alice"))

	req := httptest.NewRequest(http.MethodPost, "/predict", nil)
	req.Header.Set("Authorization", "bearer "+accessToken)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetUsername_Empty(t *testing.T) {
	_, ok := GetUsername(context.Background())
	assert.False(t, ok)
}
