package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/coda-va-server/internal/domain"
)

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	config *domain.Config
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/coda-va-server/")

	viper.SetEnvPrefix("CODA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	m.setDefaults()

	// Config file is optional; defaults and env vars cover everything.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")

	// Audio streaming defaults
	viper.SetDefault("audio.sample_rate", 16000)
	viper.SetDefault("audio.chunk_duration", "3s")
	viper.SetDefault("audio.overlap_seconds", 0.5)
	viper.SetDefault("audio.max_pending", 3)

	// Coding pipeline defaults
	viper.SetDefault("pipeline.embeddings_dir", "data/embeddings")
	viper.SetDefault("pipeline.encoder_model", "sentence-transformers/all-MiniLM-L6-v2")
	viper.SetDefault("pipeline.model_dir", "models")
	viper.SetDefault("pipeline.retrieval_top_k", 10)
	viper.SetDefault("pipeline.retrieval_min_similarity", 0.0)
	viper.SetDefault("pipeline.annotation_min_similarity", 0.7)
	viper.SetDefault("pipeline.query_cache_size", 512)

	// LLM defaults
	viper.SetDefault("llm.base_url", "http://localhost:8000/v1")
	viper.SetDefault("llm.api_key", "")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.timeout", "60s")
	viper.SetDefault("llm.rate_limit", 5)

	// Cause-of-death inference service defaults
	viper.SetDefault("inference.base_url", "http://localhost:8086")
	viper.SetDefault("inference.timeout", "30s")
	viper.SetDefault("inference.host", "0.0.0.0")
	viper.SetDefault("inference.port", 8086)

	// Term grounding defaults
	viper.SetDefault("grounding.backend", "remote")
	viper.SetDefault("grounding.base_url", "http://localhost:8087")
	viper.SetDefault("grounding.timeout", "15s")
	viper.SetDefault("grounding.enabled", true)

	// Speech-to-text defaults
	viper.SetDefault("whisper.base_url", "http://localhost:8088")
	viper.SetDefault("whisper.model", "whisper-1")
	viper.SetDefault("whisper.timeout", "30s")

	// Interview history defaults
	viper.SetDefault("history.backend", "sqlite")
	viper.SetDefault("history.sqlite_path", "data/history.db")
	viper.SetDefault("history.postgres_url", "")
	viper.SetDefault("history.enabled", true)

	// Cache defaults
	viper.SetDefault("cache.redis_url", "redis://localhost:6379")
	viper.SetDefault("cache.default_ttl", "24h")
	viper.SetDefault("cache.max_retries", 3)
	viper.SetDefault("cache.pool_size", 10)
	viper.SetDefault("cache.pool_timeout", "4s")
	viper.SetDefault("cache.enabled", false)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetPipelineConfig returns coding pipeline configuration
func (m *Manager) GetPipelineConfig() *domain.PipelineConfig {
	return &m.config.Pipeline
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Audio.SampleRate <= 0 {
		return fmt.Errorf("invalid audio sample rate: %d", config.Audio.SampleRate)
	}
	if config.Audio.ChunkDuration <= 0 {
		return fmt.Errorf("audio chunk duration must be positive")
	}
	if config.Audio.OverlapSeconds < 0 || config.Audio.OverlapSeconds >= config.Audio.ChunkDuration.Seconds() {
		return fmt.Errorf("audio overlap must be non-negative and shorter than the chunk duration")
	}
	if config.Audio.MaxPending <= 0 {
		return fmt.Errorf("audio max_pending must be positive")
	}

	if config.Pipeline.RetrievalTopK <= 0 {
		return fmt.Errorf("pipeline retrieval_top_k must be positive")
	}
	if config.Pipeline.AnnotationMinSimilarity < 0 || config.Pipeline.AnnotationMinSimilarity > 1 {
		return fmt.Errorf("pipeline annotation_min_similarity must be within [0, 1]")
	}

	if config.LLM.BaseURL == "" {
		return fmt.Errorf("LLM base URL is required")
	}
	if config.Inference.BaseURL == "" {
		return fmt.Errorf("inference base URL is required")
	}

	if config.Grounding.Enabled {
		switch config.Grounding.Backend {
		case "rag":
		case "remote":
			if config.Grounding.BaseURL == "" {
				return fmt.Errorf("grounding base URL is required for the remote backend")
			}
		default:
			return fmt.Errorf("invalid grounding backend: %s", config.Grounding.Backend)
		}
	}
	if config.Whisper.BaseURL == "" {
		return fmt.Errorf("whisper base URL is required")
	}

	if config.History.Enabled {
		switch config.History.Backend {
		case "sqlite":
			if config.History.SQLitePath == "" {
				return fmt.Errorf("history sqlite_path is required for the sqlite backend")
			}
		case "postgres":
			if config.History.PostgresURL == "" {
				return fmt.Errorf("history postgres_url is required for the postgres backend")
			}
		default:
			return fmt.Errorf("invalid history backend: %s", config.History.Backend)
		}
	}

	if config.Cache.Enabled && config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required when the cache is enabled")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(viper.GetString("environment")) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(viper.GetString("environment"))
	return env == "development" || env == "dev" || env == ""
}
