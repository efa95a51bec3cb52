package domain

import (
	"context"
)

// Encoder produces unit-normalized sentence embeddings. Implementations must
// be safe for concurrent use; the encoder is shared by every retrieval call.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	Dims() int
}

// StructuredCompleter issues one structured-output chat completion and
// returns the raw JSON payload produced by the model.
type StructuredCompleter interface {
	CompleteJSON(ctx context.Context, req CompletionRequest) ([]byte, error)
}

// CompletionRequest describes one structured-output chat call.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	SchemaName   string
	Schema       map[string]interface{}
}

// Transcriber converts a window of PCM samples into text.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error)
}

// Grounder maps free-text mentions to scored ontology term matches.
type Grounder interface {
	Annotate(ctx context.Context, text string) ([]TermMatch, error)
}

// InferenceService is the cause-of-death inference boundary.
type InferenceService interface {
	Infer(ctx context.Context, req InferenceRequest) (*InferenceResult, error)
	Reset(ctx context.Context) error
	Health(ctx context.Context) error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetPipelineConfig() *PipelineConfig
	Reload() error
	Validate() error
	IsProduction() bool
	IsDevelopment() bool
}
