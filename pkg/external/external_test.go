package external

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coda-va-server/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func sampleCompletionRequest() domain.CompletionRequest {
	return domain.CompletionRequest{
		SystemPrompt: "You are a clinical coding assistant.",
		UserPrompt:   "Extract diseases from: patient has high fever.",
		SchemaName:   "disease_evidence_icd10",
		Schema: map[string]interface{}{
			"type": "object",
		},
	}
}

func TestLLMClient_CompleteJSON(t *testing.T) {
	var gotRequest chatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": `{"diseases": []}`}},
			},
		})
	}))
	defer server.Close()

	client := NewLLMClient(domain.LLMConfig{
		BaseURL:   server.URL,
		APIKey:    "test-key",
		Model:     "gpt-4o-mini",
		Timeout:   5 * time.Second,
		RateLimit: 100,
	}, testLogger())

	payload, err := client.CompleteJSON(context.Background(), sampleCompletionRequest())
	require.NoError(t, err)
	assert.JSONEq(t, `{"diseases": []}`, string(payload))

	assert.Equal(t, "gpt-4o-mini", gotRequest.Model)
	require.Len(t, gotRequest.Messages, 2)
	assert.Equal(t, "system", gotRequest.Messages[0].Role)
	assert.Equal(t, "json_schema", gotRequest.ResponseFormat.Type)
	assert.Equal(t, "disease_evidence_icd10", gotRequest.ResponseFormat.JSONSchema.Name)
	assert.True(t, gotRequest.ResponseFormat.JSONSchema.Strict)
}

func TestLLMClient_ErrorResponses(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr string
	}{
		{
			name: "HTTP error status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "rate limited", http.StatusTooManyRequests)
			},
			wantErr: "status 429",
		},
		{
			name: "API error body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]interface{}{
					"error": map[string]string{"message": "invalid schema", "type": "invalid_request_error"},
				})
			},
			wantErr: "invalid schema",
		},
		{
			name: "No choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
			},
			wantErr: "no choices",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := NewLLMClient(domain.LLMConfig{
				BaseURL:   server.URL,
				Model:     "gpt-4o-mini",
				RateLimit: 100,
			}, testLogger())

			_, err := client.CompleteJSON(context.Background(), sampleCompletionRequest())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestInferenceClient_Infer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/infer":
			var req domain.InferenceRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			json.NewEncoder(w).Encode(domain.InferenceResult{
				ChunkID:         req.ChunkID,
				COD:             "Sepsis",
				Confidence:      0.7,
				ChunksProcessed: 1,
			})
		case "/reset", "/health":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewInferenceClient(domain.InferenceConfig{BaseURL: server.URL})

	result, err := client.Infer(context.Background(), domain.InferenceRequest{
		ChunkID: "chunk-1",
		Text:    "patient had high fever",
	})
	require.NoError(t, err)
	assert.Equal(t, "chunk-1", result.ChunkID)
	assert.Equal(t, "Sepsis", result.COD)

	assert.NoError(t, client.Reset(context.Background()))
	assert.NoError(t, client.Health(context.Background()))
}

func TestInferenceClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewInferenceClient(domain.InferenceConfig{BaseURL: server.URL})

	_, err := client.Infer(context.Background(), domain.InferenceRequest{ChunkID: "chunk-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Error(t, client.Reset(context.Background()))
	assert.Error(t, client.Health(context.Background()))
}

type flakyCompleter struct {
	failures int
	calls    int
}

func (f *flakyCompleter) CompleteJSON(context.Context, domain.CompletionRequest) ([]byte, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("upstream down")
	}
	return []byte(`{"diseases": []}`), nil
}

func TestResilientCompleter_OpensAfterFailures(t *testing.T) {
	inner := &flakyCompleter{failures: 1000}
	resilient := NewResilientCompleter(inner, nil, testLogger())

	var lastErr error
	for i := 0; i < 10; i++ {
		_, lastErr = resilient.CompleteJSON(context.Background(), sampleCompletionRequest())
		require.Error(t, lastErr)
	}

	// Once open, calls fail fast without reaching the inner client.
	assert.Contains(t, lastErr.Error(), "unavailable")
	assert.Less(t, inner.calls, 10)
}

func TestResilientCompleter_PassThroughOnSuccess(t *testing.T) {
	inner := &flakyCompleter{}
	resilient := NewResilientCompleter(inner, nil, testLogger())

	payload, err := resilient.CompleteJSON(context.Background(), sampleCompletionRequest())
	require.NoError(t, err)
	assert.JSONEq(t, `{"diseases": []}`, string(payload))
	assert.Equal(t, 1, inner.calls)
}

func TestCompletionCache_NilIsNoOp(t *testing.T) {
	var cache *CompletionCache

	payload, hit, err := cache.Get(context.Background(), sampleCompletionRequest())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Nil(t, payload)

	assert.NoError(t, cache.Set(context.Background(), sampleCompletionRequest(), []byte(`{}`), 0))
	assert.NoError(t, cache.Ping(context.Background()))
	assert.NoError(t, cache.Close())
}

func TestCompletionCache_RoundTrip(t *testing.T) {
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("TEST_REDIS_URL not set, skipping Redis cache test")
	}

	cache, err := NewCompletionCache(domain.CacheConfig{
		RedisURL:   redisURL,
		DefaultTTL: time.Minute,
	})
	require.NoError(t, err)
	defer cache.Close()

	req := sampleCompletionRequest()
	require.NoError(t, cache.Set(context.Background(), req, []byte(`{"diseases": []}`), time.Minute))

	payload, hit, err := cache.Get(context.Background(), req)
	require.NoError(t, err)
	require.True(t, hit)
	assert.JSONEq(t, `{"diseases": []}`, string(payload))
}

func TestCompletionKey_DistinguishesRequests(t *testing.T) {
	a := sampleCompletionRequest()
	b := sampleCompletionRequest()
	assert.Equal(t, completionKey(a), completionKey(b))

	b.UserPrompt = "different prompt"
	assert.NotEqual(t, completionKey(a), completionKey(b))
}
