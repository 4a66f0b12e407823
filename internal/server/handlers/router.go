package handlers

import (
	"log/slog"
	"net/http"

	"github.com/iudanet/prescient/internal/server/middleware"
)

// RouterConfig содержит обработчики и middleware HTTP API
type RouterConfig struct {
	Logger        *slog.Logger
	Auth          *AuthHandler
	Health        *HealthHandler
	Predict       *PredictHandler
	Authenticator middleware.Authenticator
	// AuthLimiter ограничивает POST /auth/*; nil отключает ограничение
	AuthLimiter *middleware.RateLimiter
	// Metrics обслуживает GET /metrics; nil отключает endpoint
	Metrics http.Handler
	// Observer получает статистику запросов; может быть nil
	Observer middleware.RequestObserver
}

// NewRouter собирает маршруты и цепочку middleware
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	limited := func(h http.HandlerFunc) http.Handler {
		if cfg.AuthLimiter == nil {
			return h
		}
		return cfg.AuthLimiter.Middleware(h)
	}

	mux.Handle("POST /auth/register", limited(cfg.Auth.Register))
	mux.Handle("POST /auth/token", limited(cfg.Auth.Token))
	mux.Handle("POST /auth/forgot-password", limited(cfg.Auth.ForgotPassword))
	mux.Handle("POST /auth/reset-password", limited(cfg.Auth.ResetPassword))
	mux.HandleFunc("GET /auth/health", cfg.Auth.Health)
	mux.HandleFunc("GET /health", cfg.Health.Health)

	requireAuth := middleware.AuthMiddleware(cfg.Logger, cfg.Authenticator)
	mux.Handle("POST /predict", requireAuth(http.HandlerFunc(cfg.Predict.Predict)))

	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	// Metrics должен получать тот же *http.Request, что и mux, чтобы видеть r.Pattern
	var handler http.Handler = mux
	if cfg.Observer != nil {
		handler = middleware.MetricsMiddleware(cfg.Observer)(handler)
	}
	handler = middleware.LoggingWithSkip(cfg.Logger, []string{"/health", "/metrics"})(handler)
	handler = middleware.RequestIDMiddleware(handler)
	handler = middleware.RecoveryMiddleware(cfg.Logger)(handler)

	return handler
}
