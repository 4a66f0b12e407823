package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds one prediction request.
const DefaultTimeout = 5 * time.Second

// maxResponseSize ограничивает размер ответа модели
const maxResponseSize = 1 << 16

type predictResponse struct {
	Probability *float64 `json:"probability"`
}

// HTTPPredictor calls a remote model server that answers {"probability": p}.
type HTTPPredictor struct {
	httpClient *http.Client
	endpoint   string
}

// NewHTTPPredictor creates a predictor posting leads to endpoint.
func NewHTTPPredictor(endpoint string, timeout time.Duration) *HTTPPredictor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPPredictor{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Predict sends the lead to the model server.
func (p *HTTPPredictor) Predict(ctx context.Context, lead Lead) (float64, error) {
	body, err := json.Marshal(lead)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal lead: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, fmt.Errorf("%w: failed to read response: %w", ErrUnavailable, err)
	}

	// Проверяем статус код
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("%w: model server returned status %d", ErrUnavailable, resp.StatusCode)
	}

	var out predictResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return 0, fmt.Errorf("%w: failed to decode response: %w", ErrUnavailable, err)
	}
	if out.Probability == nil {
		return 0, fmt.Errorf("%w: response has no probability", ErrUnavailable)
	}

	prob := *out.Probability
	if prob < 0 || prob > 1 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidProbability, prob)
	}

	return prob, nil
}
