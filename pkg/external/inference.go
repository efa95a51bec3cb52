package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coda-va-server/internal/domain"
)

// InferenceClient calls the cause-of-death inference service over HTTP.
type InferenceClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewInferenceClient creates an inference service client from config.
func NewInferenceClient(config domain.InferenceConfig) *InferenceClient {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &InferenceClient{
		baseURL: config.BaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Infer submits one transcript chunk and returns the service's current
// cause-of-death estimate.
func (c *InferenceClient) Infer(ctx context.Context, req domain.InferenceRequest) (*domain.InferenceResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal inference request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/infer", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create inference request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute inference request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read inference response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference service returned status %d: %s", resp.StatusCode, truncateBody(respBody))
	}

	var result domain.InferenceResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse inference response: %w", err)
	}
	return &result, nil
}

// Reset clears the service's accumulated dialogue state.
func (c *InferenceClient) Reset(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/reset", nil)
	if err != nil {
		return fmt.Errorf("failed to create reset request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to execute reset request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference service reset returned status %d", resp.StatusCode)
	}
	return nil
}

// Health probes the service's health endpoint.
func (c *InferenceClient) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to execute health request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference service health returned status %d", resp.StatusCode)
	}
	return nil
}

var _ domain.InferenceService = (*InferenceClient)(nil)
