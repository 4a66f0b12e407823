package middleware

import (
	"net/http"
	"time"
)

// RequestObserver records served requests, e.g. metrics.Metrics.
type RequestObserver interface {
	ObserveRequest(route, method string, status int, duration time.Duration)
}

// MetricsMiddleware записывает статус и длительность запроса.
// В метку route попадает шаблон маршрута ServeMux, а не сырой путь.
func MetricsMiddleware(observer RequestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrap(w)

			next.ServeHTTP(wrapped, r)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			observer.ObserveRequest(route, r.Method, wrapped.statusCode, time.Since(start))
		})
	}
}
