package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/iudanet/prescient/internal/server/auth"
	"github.com/iudanet/prescient/internal/server/scoring"
	"github.com/iudanet/prescient/internal/server/token"
	"github.com/iudanet/prescient/pkg/api"
)

// maxBodyBytes ограничивает размер тела запроса
const maxBodyBytes = 1 << 20

var errInvalidBody = errors.New("invalid request body")

// decodeJSON читает тело запроса в dst
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", errInvalidBody, err)
	}
	return nil
}

// sendJSON отправляет JSON ответ
func sendJSON(logger *slog.Logger, w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

// sendError отправляет JSON ответ с ошибкой
func sendError(logger *slog.Logger, w http.ResponseWriter, message string, statusCode int) {
	if statusCode == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	sendJSON(logger, w, api.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	}, statusCode)
}

// errorStatus сопоставляет ошибку сервиса HTTP статусу и сообщению для клиента.
// Внутренние причины в сообщение не попадают.
func errorStatus(err error) (int, string) {
	var fieldErr *auth.FieldError

	switch {
	case errors.As(err, &fieldErr):
		if fieldErr.Cause != nil {
			return http.StatusBadRequest, fmt.Sprintf("%s: %v", fieldErr.Field, fieldErr.Cause)
		}
		return http.StatusBadRequest, fieldErr.Error()
	case errors.Is(err, errInvalidBody):
		return http.StatusBadRequest, "invalid request body"
	case errors.Is(err, auth.ErrUsernameTaken):
		return http.StatusConflict, "Username sudah digunakan. Pilih username lain."
	case errors.Is(err, auth.ErrEmailTaken):
		return http.StatusConflict, "Email sudah terdaftar. Gunakan email lain atau login."
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Username atau password salah"
	case errors.Is(err, auth.ErrResetTokenConsumed):
		return http.StatusUnauthorized, "reset token has already been used"
	case errors.Is(err, token.ErrMalformed),
		errors.Is(err, token.ErrBadSignature),
		errors.Is(err, token.ErrExpired),
		errors.Is(err, token.ErrPurposeMismatch):
		return http.StatusUnauthorized, "invalid or expired token"
	case errors.Is(err, auth.ErrAccountInactive):
		return http.StatusForbidden, "Akun Anda tidak aktif. Hubungi administrator."
	case errors.Is(err, auth.ErrAccountNotFound):
		return http.StatusNotFound, "account not found"
	case errors.Is(err, auth.ErrEmailDeliveryFailed):
		return http.StatusBadGateway, "Gagal mengirim email. Coba lagi nanti."
	case errors.Is(err, auth.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "service temporarily unavailable"
	case errors.Is(err, scoring.ErrUnavailable), errors.Is(err, scoring.ErrInvalidProbability):
		return http.StatusServiceUnavailable, "scoring model unavailable"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// sendServiceError логирует ошибку и отправляет клиенту сопоставленный ответ
func sendServiceError(logger *slog.Logger, w http.ResponseWriter, r *http.Request, err error) {
	status, message := errorStatus(err)

	switch {
	case status >= http.StatusInternalServerError:
		logger.ErrorContext(r.Context(), "request failed", slog.Any("error", err))
	default:
		logger.DebugContext(r.Context(), "request rejected", slog.Any("error", err))
	}

	sendError(logger, w, message, status)
}
