package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yeolmae/hubcast/internal/config"
	"github.com/yeolmae/hubcast/internal/models"
	"github.com/yeolmae/hubcast/internal/service"
	"github.com/yeolmae/hubcast/internal/service/derivation"
)

type Server struct {
	Config *config.Config
	DB     *gorm.DB
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	// Services
	HubService        *service.HubService
	DerivationService *service.DerivationService
	AuthService       *service.AuthService
	Scheduler         *service.Scheduler
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	// Set gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize database
	db, err := service.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize services
	derivationService := service.NewDerivationService(cfg, db, logger)
	hubService := service.NewHubService(db, derivationService.Aggregator(), logger)
	authService := service.NewAuthService(logger, cfg.Auth.TOTPSecret)
	scheduler := service.NewScheduler(&cfg.Reconciler, db, logger, derivationService)

	// Create router
	router := gin.New()

	// Create server
	srv := &Server{
		Config:            cfg,
		DB:                db,
		Router:            router,
		Logger:            logger,
		HubService:        hubService,
		DerivationService: derivationService,
		AuthService:       authService,
		Scheduler:         scheduler,
	}

	// Setup middleware and routes
	srv.setupMiddleware()
	srv.setupRoutes()

	return srv, nil
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.Router.Use(gin.Recovery())

	// Logger middleware
	s.Router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	// CORS middleware
	s.Router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Admin-Token")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})
}

func (s *Server) setupRoutes() {
	// Health check
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	// API routes
	api := s.Router.Group("/api/v1")
	{
		hubs := api.Group("/hubs")
		{
			hubs.GET("", s.handleListHubs)
			hubs.GET("/:id", s.handleGetHub)
			hubs.GET("/:id/summary", s.handleGetHubSummary)
			hubs.GET("/:id/derivations", s.handleGetDerivationHistory)
		}

		api.GET("/channels", s.handleGetChannels)

		// Admin-triggered actions
		admin := api.Group("", s.AuthService.AdminMiddleware())
		{
			admin.POST("/hubs", s.handleCreateHub)
			admin.PATCH("/hubs/:id", s.handleUpdateHub)
			admin.POST("/hubs/:id/archive", s.handleArchiveHub)
			admin.POST("/hubs/:id/derive", s.handleDeriveAll)
			admin.POST("/hubs/:id/derive/:channel", s.handleDerive)
			admin.POST("/hubs/:id/reconcile", s.handleReconcile)
		}
	}
}

type hubRequest struct {
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	Owner       string     `json:"owner"`
}

func (s *Server) handleCreateHub(c *gin.Context) {
	var req hubRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	hub, err := s.HubService.CreateHub(c.Request.Context(), req.Title, req.Body, req.ScheduledAt, req.Owner)
	if err != nil {
		s.Logger.Error("Failed to create hub", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"hub": hub})
}

func (s *Server) handleListHubs(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	hubs, err := s.HubService.ListHubs(c.Request.Context(), limit)
	if err != nil {
		s.Logger.Error("Failed to list hubs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list hubs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"hubs": hubs})
}

func (s *Server) handleGetHub(c *gin.Context) {
	hubID, ok := s.hubID(c)
	if !ok {
		return
	}

	hub, err := s.HubService.GetHub(c.Request.Context(), hubID)
	if err != nil {
		s.renderError(c, err, "failed to get hub")
		return
	}

	c.JSON(http.StatusOK, gin.H{"hub": hub})
}

func (s *Server) handleUpdateHub(c *gin.Context) {
	hubID, ok := s.hubID(c)
	if !ok {
		return
	}

	var req hubRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	hub, err := s.HubService.UpdateHub(c.Request.Context(), hubID, req.Title, req.Body, req.ScheduledAt)
	if err != nil {
		s.renderError(c, err, "failed to update hub")
		return
	}

	c.JSON(http.StatusOK, gin.H{"hub": hub})
}

func (s *Server) handleArchiveHub(c *gin.Context) {
	hubID, ok := s.hubID(c)
	if !ok {
		return
	}

	if err := s.HubService.ArchiveHub(c.Request.Context(), hubID); err != nil {
		s.renderError(c, err, "failed to archive hub")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "hub archived"})
}

func (s *Server) handleGetHubSummary(c *gin.Context) {
	hubID, ok := s.hubID(c)
	if !ok {
		return
	}

	summary, err := s.HubService.GetHubSummary(c.Request.Context(), hubID)
	if err != nil {
		s.renderError(c, err, "failed to build hub summary")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"summary":         summary,
		"needs_attention": summary.NeedsAttention(),
	})
}

func (s *Server) handleGetDerivationHistory(c *gin.Context) {
	hubID, ok := s.hubID(c)
	if !ok {
		return
	}

	recs, err := s.DerivationService.GetDerivationHistory(c.Request.Context(), hubID)
	if err != nil {
		s.renderError(c, err, "failed to get derivation history")
		return
	}

	c.JSON(http.StatusOK, gin.H{"derivations": recs})
}

func (s *Server) handleGetChannels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"channels": s.DerivationService.AvailableChannels()})
}

func (s *Server) handleDerive(c *gin.Context) {
	hubID, ok := s.hubID(c)
	if !ok {
		return
	}
	channel := models.Channel(c.Param("channel"))

	result, err := s.DerivationService.Derive(c.Request.Context(), hubID, channel)
	if err != nil {
		s.renderError(c, err, "failed to derive")
		return
	}

	resp := gin.H{"result": result}
	if result.Err != nil {
		resp["error"] = result.Err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDeriveAll(c *gin.Context) {
	hubID, ok := s.hubID(c)
	if !ok {
		return
	}

	results, err := s.DerivationService.DeriveAll(c.Request.Context(), hubID)
	if err != nil {
		s.renderError(c, err, "failed to derive")
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) handleReconcile(c *gin.Context) {
	hubID, ok := s.hubID(c)
	if !ok {
		return
	}

	report, err := s.DerivationService.Reconcile(c.Request.Context(), hubID)
	if err != nil {
		s.renderError(c, err, "failed to reconcile")
		return
	}

	c.JSON(http.StatusOK, gin.H{"report": report})
}

func (s *Server) hubID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hub id"})
		return 0, false
	}
	return uint(id), true
}

// renderError maps the derivation error taxonomy onto HTTP statuses.
// Conflict and AlreadyInProgress are expected outcomes of concurrent use and
// are answered with 409 without an error log.
func (s *Server) renderError(c *gin.Context, err error, fallback string) {
	switch {
	case derivation.IsExpected(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "retriable": true})
	case errors.Is(err, derivation.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, derivation.ErrUnknownChannel), errors.Is(err, derivation.ErrNoAdapter):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, derivation.ErrHubArchived):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	case errors.Is(err, derivation.ErrInvalidTransition):
		// Caller bug, not a runtime condition to retry.
		s.Logger.Error("Invalid state transition", zap.Error(err))
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "retriable": false})
	default:
		s.Logger.Error(fallback, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

func (s *Server) Start(ctx context.Context) error {
	// Start reconciliation sweeper
	if err := s.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		return s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	}

	return s.Server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Stop scheduler first
	s.Scheduler.Stop()

	if s.Server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.Server.Shutdown(shutdownCtx)
}
