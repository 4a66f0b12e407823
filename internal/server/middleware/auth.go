package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

type contextKey string

const usernameKey contextKey = "username"

// Authenticator verifies a bearer session token and returns its username.
type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (string, error)
}

// GetUsername извлекает username аутентифицированного пользователя из контекста
func GetUsername(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(usernameKey).(string)
	return username, ok
}

// WithUsername возвращает контекст с username
func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, usernameKey, username)
}

// AuthMiddleware создает middleware для проверки bearer токена сессии
func AuthMiddleware(logger *slog.Logger, authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Извлекаем токен из заголовка Authorization
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.WarnContext(r.Context(), "missing Authorization header")
				unauthorized(w, "missing bearer token")
				return
			}

			// Ожидаем формат: "Bearer <token>"
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
				logger.WarnContext(r.Context(), "invalid Authorization header format")
				unauthorized(w, "invalid authorization header format")
				return
			}

			username, err := authn.Authenticate(r.Context(), parts[1])
			if err != nil {
				logger.WarnContext(r.Context(), "invalid session token", slog.Any("error", err))
				unauthorized(w, "invalid or expired token")
				return
			}

			logger.DebugContext(r.Context(), "user authenticated", slog.String("username", username))

			next.ServeHTTP(w, r.WithContext(WithUsername(r.Context(), username)))
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, message)
}
