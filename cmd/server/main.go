package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/coda-va-server/internal/api"
	"github.com/coda-va-server/internal/config"
	"github.com/coda-va-server/internal/domain"
	"github.com/coda-va-server/internal/grounding"
	"github.com/coda-va-server/internal/history"
	"github.com/coda-va-server/internal/medcoder"
	"github.com/coda-va-server/internal/transcribe"
	"github.com/coda-va-server/pkg/external"
)

const embeddingDims = 384 // all-MiniLM-L6-v2

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := configManager.GetConfig()

	logger := newLogger(cfg.Logging)
	logger.WithFields(logrus.Fields{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Starting verbal-autopsy interview server")

	// Coding pipeline.
	store, err := medcoder.LoadEmbeddingStore(cfg.Pipeline.EmbeddingsDir, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load ICD-10 embedding store")
	}
	encoder := medcoder.NewHugotEncoder(cfg.Pipeline.EncoderModel, cfg.Pipeline.ModelDir, embeddingDims, logger)
	defer encoder.Close()

	retriever, err := medcoder.NewCodeRetriever(store, encoder, cfg.Pipeline.QueryCacheSize, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build code retriever")
	}

	var cache *external.CompletionCache
	if cfg.Cache.Enabled {
		cache, err = external.NewCompletionCache(cfg.Cache)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, continuing without completion cache")
			cache = nil
		}
	}
	completer := external.NewResilientCompleter(external.NewLLMClient(cfg.LLM, logger), cache, logger)

	pipeline := medcoder.NewPipeline(
		medcoder.NewDiseaseExtractor(completer, logger),
		retriever,
		medcoder.NewCodeReranker(completer, logger),
		medcoder.NewEvidenceAligner(),
		medcoder.Options{
			RetrievalTopK:           cfg.Pipeline.RetrievalTopK,
			RetrievalMinSimilarity:  cfg.Pipeline.RetrievalMinSimilarity,
			AnnotateEvidence:        true,
			AnnotationMinSimilarity: cfg.Pipeline.AnnotationMinSimilarity,
		},
		logger,
	)

	// Streaming collaborators.
	transcriber := transcribe.NewWhisperClient(cfg.Whisper)
	inference := external.NewResilientInference(external.NewInferenceClient(cfg.Inference), logger)

	var grounder domain.Grounder
	if cfg.Grounding.Enabled {
		if cfg.Grounding.Backend == "rag" {
			grounder = medcoder.NewRAGGrounder(pipeline, logger)
		} else {
			grounder = grounding.NewClient(cfg.Grounding)
		}
	}

	var historyStore history.Store
	if cfg.History.Enabled {
		historyStore, err = newHistoryStore(cfg.History)
		if err != nil {
			logger.WithError(err).Fatal("Failed to open interview history store")
		}
		defer historyStore.Close()
	}

	server := api.NewServer(configManager, pipeline, transcriber, grounder, inference, historyStore, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
	logger.Info("Server stopped")
}

func newHistoryStore(cfg domain.HistoryConfig) (history.Store, error) {
	if cfg.Backend == "postgres" {
		return history.NewPostgresStoreFromURL(cfg.PostgresURL)
	}
	return history.NewSQLiteStore(cfg.SQLitePath)
}

func newLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.Output == "stderr" {
		logger.SetOutput(os.Stderr)
	} else {
		logger.SetOutput(os.Stdout)
	}
	return logger
}
