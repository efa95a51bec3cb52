package grounding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/coda-va-server/internal/domain"
)

// Client grounds free-text medical mentions against ontologies via an HTTP
// grounding service. Responses map mention spans to scored CURIEs.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a grounding client from config.
func NewClient(config domain.GroundingConfig) *Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: config.BaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type annotateRequest struct {
	Text string `json:"text"`
}

type annotateResponse struct {
	Matches []struct {
		Text  string  `json:"text"`
		CURIE string  `json:"curie"`
		Name  string  `json:"name"`
		Score float64 `json:"score"`
		Start int     `json:"start"`
		End   int     `json:"end"`
	} `json:"matches"`
}

// Annotate returns scored term matches for text. Blank text yields no
// matches without a call.
func (c *Client) Annotate(ctx context.Context, text string) ([]domain.TermMatch, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	body, err := json.Marshal(annotateRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal annotation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/annotate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create annotation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute annotation request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read annotation response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("grounding service returned status %d", resp.StatusCode)
	}

	var result annotateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse annotation response: %w", err)
	}

	matches := make([]domain.TermMatch, 0, len(result.Matches))
	for _, m := range result.Matches {
		matches = append(matches, domain.TermMatch{
			Text:  m.Text,
			CURIE: m.CURIE,
			Name:  m.Name,
			Score: m.Score,
			Start: m.Start,
			End:   m.End,
		})
	}
	return matches, nil
}

var _ domain.Grounder = (*Client)(nil)
