package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type observation struct {
	route  string
	method string
	status int
}

type recordingObserver struct {
	observed []observation
	mu       sync.Mutex
}

func (o *recordingObserver) ObserveRequest(route, method string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observed = append(o.observed, observation{route: route, method: method, status: status})
}

func TestMetricsMiddleware(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	observer := &recordingObserver{}
	handler := MetricsMiddleware(observer)(mux)

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodPost, "/auth/token", nil),
		httptest.NewRequest(http.MethodGet, "/health", nil),
		httptest.NewRequest(http.MethodGet, "/no/such/path/123", nil),
	} {
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	require.Len(t, observer.observed, 3)
	assert.Equal(t, observation{"POST /auth/token", "POST", http.StatusUnauthorized}, observer.observed[0])
	assert.Equal(t, observation{"GET /health", "GET", http.StatusOK}, observer.observed[1])
	// Неизвестные пути не создают новых меток
	assert.Equal(t, observation{"unmatched", "GET", http.StatusNotFound}, observer.observed[2])
}
