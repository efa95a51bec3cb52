package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/coda-va-server/internal/domain"
	"github.com/coda-va-server/internal/history"
	"github.com/coda-va-server/internal/streaming"
)

// DocumentCoder runs the medical coding pipeline over one clinical document.
// *medcoder.Pipeline satisfies it.
type DocumentCoder interface {
	Process(ctx context.Context, document string) *domain.CodingResult
}

// Server is the realtime verbal-autopsy interview server: a websocket
// channel for live audio plus a REST surface for batch coding and history.
type Server struct {
	configManager domain.ConfigManager
	coder         DocumentCoder
	transcriber   domain.Transcriber
	grounder      domain.Grounder
	inference     domain.InferenceService
	historyStore  history.Store
	logger        *logrus.Logger

	router   *gin.Engine
	server   *http.Server
	upgrader websocket.Upgrader
}

// NewServer wires the HTTP server. grounder and historyStore may be nil.
func NewServer(configManager domain.ConfigManager, coder DocumentCoder,
	transcriber domain.Transcriber, grounder domain.Grounder,
	inference domain.InferenceService, historyStore history.Store,
	logger *logrus.Logger) *Server {

	cfg := configManager.GetConfig()
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestIDMiddleware())

	s := &Server{
		configManager: configManager,
		coder:         coder,
		transcriber:   transcriber,
		grounder:      grounder,
		inference:     inference,
		historyStore:  historyStore,
		logger:        logger,
		router:        router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from a separately served UI.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.setupRoutes()
	return s
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("Interview server listening")
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

func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleIndex)
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws", s.handleWebSocket)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/code", s.handleCodeDocument)
		v1.GET("/history/:session_id", s.handleGetHistory)
		v1.DELETE("/history/:session_id", s.handleDeleteHistory)
	}
}

func (s *Server) handleIndex(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "coda-va-server",
		"endpoints": gin.H{
			"websocket": "/ws",
			"health":    "/health",
			"code":      "/api/v1/code",
		},
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	status := gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	}
	if s.inference != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.inference.Health(ctx); err != nil {
			status["inference"] = "unreachable"
		} else {
			status["inference"] = "healthy"
		}
	}
	c.JSON(http.StatusOK, status)
}

type codeRequest struct {
	Text string `json:"text" binding:"required"`
}

// handleCodeDocument runs the full coding pipeline over a posted document.
func (s *Server) handleCodeDocument(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, domain.NewValidationError("text", "a non-empty clinical description is required", nil))
		return
	}

	result := s.coder.Process(c.Request.Context(), req.Text)
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetHistory(c *gin.Context) {
	if s.historyStore == nil {
		c.JSON(http.StatusNotFound, domain.NewCodingError(domain.ErrResourceNotFound,
			"history persistence is disabled", ""))
		return
	}

	entries, err := s.historyStore.ListBySession(c.Request.Context(), c.Param("session_id"), 1000, 0)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list interview history")
		c.JSON(http.StatusInternalServerError, domain.NewCodingError(domain.ErrorCode(err),
			"failed to load history", ""))
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

func (s *Server) handleDeleteHistory(c *gin.Context) {
	if s.historyStore == nil {
		c.JSON(http.StatusNotFound, domain.NewCodingError(domain.ErrResourceNotFound,
			"history persistence is disabled", ""))
		return
	}

	if err := s.historyStore.DeleteSession(c.Request.Context(), c.Param("session_id")); err != nil {
		s.logger.WithError(err).Error("Failed to delete interview history")
		c.JSON(http.StatusInternalServerError, domain.NewCodingError(domain.ErrorCode(err),
			"failed to delete history", ""))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// handleWebSocket upgrades the connection and hands it to a streaming
// session for the lifetime of the interview.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	cfg := s.configManager.GetConfig()
	window, err := streaming.NewChunkWindow(cfg.Audio.SampleRate, cfg.Audio.ChunkDuration, cfg.Audio.OverlapSeconds)
	if err != nil {
		s.logger.WithError(err).Error("Invalid audio configuration")
		return
	}
	admission := streaming.NewAdmissionController(cfg.Audio.MaxPending, s.logger)

	var recorder streaming.Recorder
	if s.historyStore != nil {
		recorder = history.NewSessionRecorder(s.historyStore, s.logger)
	}

	session := streaming.NewSession(conn, window, admission,
		s.transcriber, s.grounder, s.inference, recorder, s.logger)
	if err := session.Run(c.Request.Context()); err != nil {
		s.logger.WithError(err).WithField("session_id", session.ID()).Warn("Interview session ended with error")
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}
