package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iudanet/prescient/internal/server/auth"
	"github.com/iudanet/prescient/internal/server/scoring"
)

// setupTestLogger creates a logger for testing
func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubAuthService возвращает заранее заданные результаты
type stubAuthService struct {
	registerErr error
	loginErr    error
	forgotErr   error
	resetErr    error
	session     *auth.Session
	lastInput   auth.RegisterInput
	lastReset   [2]string
}

func (s *stubAuthService) Register(_ context.Context, in auth.RegisterInput) (*auth.AccountSummary, error) {
	s.lastInput = in
	if s.registerErr != nil {
		return nil, s.registerErr
	}
	return &auth.AccountSummary{ID: "acc-1", Email: in.Email, Username: in.Username}, nil
}

func (s *stubAuthService) Login(_ context.Context, _, _ string) (*auth.Session, error) {
	if s.loginErr != nil {
		return nil, s.loginErr
	}
	return s.session, nil
}

func (s *stubAuthService) ForgotPassword(_ context.Context, _ string) error {
	return s.forgotErr
}

func (s *stubAuthService) ResetPassword(_ context.Context, resetToken, newPassword string) error {
	s.lastReset = [2]string{resetToken, newPassword}
	return s.resetErr
}

type stubPredictor struct {
	err         error
	probability float64
	lead        scoring.Lead
}

func (p *stubPredictor) Predict(_ context.Context, lead scoring.Lead) (float64, error) {
	p.lead = lead
	return p.probability, p.err
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error { return p.err }

// doJSON выполняет запрос к handler и возвращает recorder
func doJSON(t *testing.T, h http.HandlerFunc, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}
