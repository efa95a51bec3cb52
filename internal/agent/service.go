package agent

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/coda-va-server/internal/domain"
)

// Service exposes the inference agent over HTTP.
type Service struct {
	agent  *RuleBasedAgent
	router *gin.Engine
	server *http.Server
	logger *logrus.Logger
}

// NewService creates the HTTP service around agent.
func NewService(agent *RuleBasedAgent, logger *logrus.Logger) *Service {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Service{
		agent:  agent,
		router: router,
		logger: logger,
	}
	s.setupRoutes()
	return s
}

// Router exposes the handler for tests and embedding.
func (s *Service) Router() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Service) Start(ctx context.Context, config domain.InferenceConfig) error {
	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("Inference agent service listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Service) setupRoutes() {
	s.router.POST("/infer", s.handleInfer)
	s.router.POST("/reset", s.handleReset)
	s.router.GET("/health", s.handleHealth)
}

func (s *Service) handleInfer(c *gin.Context) {
	var req domain.InferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if req.ChunkID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chunk_id is required"})
		return
	}

	result, err := s.agent.ProcessChunk(c.Request.Context(), req)
	if err != nil {
		s.logger.WithError(err).WithField("chunk_id", req.ChunkID).Error("Inference failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Service) handleReset(c *gin.Context) {
	s.agent.Reset()
	c.JSON(http.StatusOK, gin.H{
		"status":  "reset",
		"message": "Agent state cleared",
	})
}

func (s *Service) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":           "healthy",
		"chunks_processed": s.agent.ChunksProcessed(),
		"timestamp":        time.Now(),
	})
}
