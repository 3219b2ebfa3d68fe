package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"bot-fleet-engine/internal/auth"
	"bot-fleet-engine/internal/events"
	"bot-fleet-engine/internal/fleet"
	"bot-fleet-engine/internal/logging"
	"bot-fleet-engine/internal/metrics"
	"bot-fleet-engine/internal/scheduler"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// FleetService is the fleet surface the API drives
type FleetService interface {
	Bots() []fleet.Bot
	Bot(id string) (fleet.Bot, error)
	Deploy(ctx context.Context, req fleet.DeployRequest) (fleet.Bot, error)
	Pause(ctx context.Context, id string) (fleet.Bot, error)
	Resume(ctx context.Context, id string) (fleet.Bot, error)
	MarkError(ctx context.Context, id, reason string) (fleet.Bot, error)
	Remove(ctx context.Context, id string) error
	PauseAll(ctx context.Context)
	ResumeAll(ctx context.Context)
	SettleTrade(ctx context.Context, botID, tradeID string, pnl float64) (fleet.BotTrade, error)
	Statistics() fleet.Statistics
	SystemStatus() fleet.SystemStatus
	LatestAnalysis() (fleet.AnalysisReport, bool)
	DeepAnalysis(ctx context.Context) error
	ActivateGodmode(ctx context.Context) (fleet.AnalysisReport, error)
}

// SchedulerService reports job state
type SchedulerService interface {
	Stats() []scheduler.JobStats
	IsRunning() bool
}

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ProductionMode  bool
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RateLimitPerSec float64
	RateLimitBurst  int
}

// Deps are the server's collaborators. Fleet is required.
type Deps struct {
	Fleet     FleetService
	Scheduler SchedulerService
	Bus       *events.EventBus
	Metrics   *metrics.Registry
	Auth      *auth.Service // nil disables authentication
	Health    map[string]HealthCheck
}

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     ServerConfig
	fleet      FleetService
	scheduler  SchedulerService
	metrics    *metrics.Registry
	auth       *auth.Service
	health     map[string]HealthCheck
	hub        *WSHub
	limiter    *IPRateLimiter
	logger     zerolog.Logger
	started    time.Time
}

// NewServer creates a new API server
func NewServer(config ServerConfig, deps Deps, logger zerolog.Logger) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.GinMiddleware(logger))

	corsConfig := cors.DefaultConfig()
	if len(config.AllowedOrigins) == 0 || (len(config.AllowedOrigins) == 1 && config.AllowedOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = config.AllowedOrigins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:    router,
		config:    config,
		fleet:     deps.Fleet,
		scheduler: deps.Scheduler,
		metrics:   deps.Metrics,
		auth:      deps.Auth,
		health:    deps.Health,
		hub:       NewWSHub(logger),
		limiter:   NewIPRateLimiter(config.RateLimitPerSec, config.RateLimitBurst),
		logger:    logger.With().Str("component", "API").Logger(),
		started:   time.Now(),
	}

	if deps.Bus != nil {
		deps.Bus.SubscribeAll(s.hub.BroadcastEvent)
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := s.router.Group("/api")
	api.Use(s.limiter.Middleware())

	if s.auth != nil {
		auth.NewHandlers(s.auth).RegisterRoutes(api.Group("/auth"))
	}

	read := api.Group("")
	if s.auth != nil {
		read.Use(tokenFromQuery(), auth.Middleware(s.auth.JWT()))
	}
	{
		read.GET("/bots", s.handleListBots)
		read.GET("/bots/:id", s.handleGetBot)
		read.GET("/stats", s.handleStats)
		read.GET("/status", s.handleStatus)
		read.GET("/analysis", s.handleLatestAnalysis)
		read.GET("/scheduler", s.handleSchedulerStats)
		read.GET("/ws", s.handleWebSocket)
	}

	write := read.Group("")
	if s.auth != nil {
		write.Use(auth.RequireAdmin())
	}
	{
		write.POST("/bots", s.handleDeployBot)
		write.DELETE("/bots/:id", s.handleRemoveBot)
		write.POST("/bots/:id/pause", s.handlePauseBot)
		write.POST("/bots/:id/resume", s.handleResumeBot)
		write.POST("/bots/:id/error", s.handleMarkError)
		write.POST("/bots/:id/trades/:tradeId/settle", s.handleSettleTrade)
		write.POST("/fleet/pause", s.handlePauseAll)
		write.POST("/fleet/resume", s.handleResumeAll)
		write.POST("/analysis/run", s.handleRunAnalysis)
		write.POST("/godmode", s.handleActivateGodmode)
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the websocket hub
func (s *Server) Hub() *WSHub {
	return s.hub
}

// Start starts the websocket hub and the HTTP server. It blocks until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go s.hub.Run()
	s.logger.Info().Str("addr", addr).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")
	s.hub.Stop()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// handleHealth returns server health status
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.health))
	healthy := true
	for name, check := range s.health {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "healthy"
	}

	status := http.StatusOK
	body := gin.H{
		"status":        "healthy",
		"system_status": s.fleet.SystemStatus(),
		"checks":        checks,
		"uptime":        time.Since(s.started).Round(time.Second).String(),
		"ws_clients":    s.hub.GetClientCount(),
	}
	if !healthy {
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
	}
	c.JSON(status, body)
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

// fleetError maps fleet sentinels to HTTP status codes
func fleetError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, fleet.ErrBotNotFound), errors.Is(err, fleet.ErrTradeNotFound):
		errorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, fleet.ErrInvalidBot):
		errorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, fleet.ErrNotPaused), errors.Is(err, fleet.ErrTradeSettled):
		errorResponse(c, http.StatusConflict, err.Error())
	default:
		errorResponse(c, http.StatusInternalServerError, err.Error())
	}
}

// tokenFromQuery lets browser websocket clients pass the access token as ?token=
func tokenFromQuery() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			if token := c.Query("token"); token != "" {
				c.Request.Header.Set("Authorization", "Bearer "+token)
			}
		}
		c.Next()
	}
}
