package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/iudanet/prescient/internal/server/auth"
	"github.com/iudanet/prescient/pkg/api"
)

// AuthService is the subset of auth.Service used by the HTTP layer.
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.AccountSummary, error)
	Login(ctx context.Context, username, password string) (*auth.Session, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, resetToken, newPassword string) error
}

// forgotPasswordMessage одинаков для известных и неизвестных email
const forgotPasswordMessage = "Jika email terdaftar, instruksi reset password telah dikirim."

// AuthHandler обрабатывает запросы авторизации
type AuthHandler struct {
	logger *slog.Logger
	svc    AuthService
}

// NewAuthHandler создает новый handler для авторизации
func NewAuthHandler(logger *slog.Logger, svc AuthService) *AuthHandler {
	return &AuthHandler{
		logger: logger,
		svc:    svc,
	}
}

// Register обрабатывает POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendServiceError(h.logger, w, r, err)
		return
	}

	account, err := h.svc.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		sendServiceError(h.logger, w, r, err)
		return
	}

	sendJSON(h.logger, w, api.RegisterResponse{
		Success: true,
		Message: fmt.Sprintf("Akun berhasil dibuat untuk %s!", account.Username),
		User: api.UserInfo{
			ID:       account.ID,
			Email:    account.Email,
			Username: account.Username,
		},
	}, http.StatusCreated)
}

// Token обрабатывает POST /auth/token
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req api.TokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendServiceError(h.logger, w, r, err)
		return
	}

	session, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		sendServiceError(h.logger, w, r, err)
		return
	}

	sendJSON(h.logger, w, api.TokenResponse{
		AccessToken: session.AccessToken,
		TokenType:   session.TokenType,
		ExpiresIn:   int64(session.ExpiresIn.Seconds()),
	}, http.StatusOK)
}

// ForgotPassword обрабатывает POST /auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req api.ForgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendServiceError(h.logger, w, r, err)
		return
	}

	if err := h.svc.ForgotPassword(r.Context(), req.Email); err != nil {
		sendServiceError(h.logger, w, r, err)
		return
	}

	sendJSON(h.logger, w, api.MessageResponse{
		Success: true,
		Message: forgotPasswordMessage,
	}, http.StatusOK)
}

// ResetPassword обрабатывает POST /auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req api.ResetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendServiceError(h.logger, w, r, err)
		return
	}

	if err := h.svc.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		sendServiceError(h.logger, w, r, err)
		return
	}

	sendJSON(h.logger, w, api.MessageResponse{
		Success: true,
		Message: "Password berhasil diubah. Silakan login dengan password baru.",
	}, http.StatusOK)
}

// Health обрабатывает GET /auth/health
func (h *AuthHandler) Health(w http.ResponseWriter, r *http.Request) {
	sendJSON(h.logger, w, api.AuthHealthResponse{
		Status:  "healthy",
		Service: "Prescient Authentication",
		Endpoints: []string{
			"POST /auth/register",
			"POST /auth/token",
			"POST /auth/forgot-password",
			"POST /auth/reset-password",
		},
	}, http.StatusOK)
}
