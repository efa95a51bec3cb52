package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Audio     AudioConfig     `mapstructure:"audio"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Inference InferenceConfig `mapstructure:"inference"`
	Grounding GroundingConfig `mapstructure:"grounding"`
	Whisper   WhisperConfig   `mapstructure:"whisper"`
	History   HistoryConfig   `mapstructure:"history"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// AudioConfig controls the streaming chunk window.
type AudioConfig struct {
	SampleRate     int           `mapstructure:"sample_rate"`
	ChunkDuration  time.Duration `mapstructure:"chunk_duration"`
	OverlapSeconds float64       `mapstructure:"overlap_seconds"`
	MaxPending     int           `mapstructure:"max_pending"`
}

// PipelineConfig controls the medical coding pipeline.
type PipelineConfig struct {
	EmbeddingsDir           string  `mapstructure:"embeddings_dir"`
	EncoderModel            string  `mapstructure:"encoder_model"`
	ModelDir                string  `mapstructure:"model_dir"`
	RetrievalTopK           int     `mapstructure:"retrieval_top_k"`
	RetrievalMinSimilarity  float64 `mapstructure:"retrieval_min_similarity"`
	AnnotationMinSimilarity float64 `mapstructure:"annotation_min_similarity"`
	QueryCacheSize          int     `mapstructure:"query_cache_size"`
}

// LLMConfig represents the chat-completions service configuration.
type LLMConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit int           `mapstructure:"rate_limit"`
}

// InferenceConfig represents the cause-of-death inference service endpoint.
type InferenceConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Host    string        `mapstructure:"host"`
	Port    int           `mapstructure:"port"`
}

// GroundingConfig selects how transcripts are grounded: the remote
// term-grounding service, or the in-process RAG coding pipeline.
type GroundingConfig struct {
	Backend string        `mapstructure:"backend"` // "remote" or "rag"
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Enabled bool          `mapstructure:"enabled"`
}

// WhisperConfig represents the speech-to-text service endpoint.
type WhisperConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// HistoryConfig represents interview history persistence.
type HistoryConfig struct {
	Backend     string `mapstructure:"backend"` // "sqlite" or "postgres"
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresURL string `mapstructure:"postgres_url"`
	Enabled     bool   `mapstructure:"enabled"`
}

// CacheConfig represents the Redis response cache configuration.
type CacheConfig struct {
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
	Enabled     bool          `mapstructure:"enabled"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
