package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/AgentOS/scriptbox/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/evaluator"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/sandbox"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/sandbox/gojahost"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router    *gin.Engine
	http      *http.Server
	evaluator *evaluator.Evaluator
	logger    *logging.Logger
	config    *config.Config
	metrics   *monitoring.Metrics
}

// NewServer creates a server backed by the in-process goja sandbox
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.FromLevel(cfg.Logging.Level, cfg.Logging.Development))
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	connector := gojahost.NewConnector(gojahost.Config{
		MaxCallStackSize: cfg.Sandbox.MaxCallStackSize,
		EnableConsole:    cfg.Sandbox.EnableConsole,
		EnableWasm:       cfg.Sandbox.EnableWasm,
		EnableHeapLimit:  cfg.Sandbox.EnableHeapLimit,
		MinHeapBytes:     cfg.Sandbox.MinHeapBytes,
		HeapPollInterval: cfg.Sandbox.HeapPollInterval,
	}, logger.Component("sandbox"))

	return New(cfg, connector, logger), nil
}

// New creates a server around any sandbox connector
func New(cfg *config.Config, connector sandbox.Connector, logger *logging.Logger) *Server {
	logger.Info("Initializing scriptbox server",
		zap.String("port", cfg.Server.Port),
		zap.Int("workers", cfg.Sandbox.Workers),
		zap.Bool("wasm", cfg.Sandbox.EnableWasm),
	)

	metrics := monitoring.NewMetrics()

	var breaker *resilience.Breaker
	if cfg.Sandbox.BreakerFailures > 0 {
		breaker = resilience.New("sandbox-connect", resilience.Settings{
			Threshold: cfg.Sandbox.BreakerFailures,
			Cooldown:  cfg.Sandbox.BreakerTimeout,
			OnStateChange: func(name string, from, to resilience.State) {
				logger.Warn("Circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		})
	}

	eval := evaluator.New(connector,
		evaluator.WithLogger(logger.Component("evaluator")),
		evaluator.WithMetrics(metrics),
		evaluator.WithBreaker(breaker),
		evaluator.WithWorkers(cfg.Sandbox.Workers),
	)

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger.Component("http")))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	router.Use(middleware.MaxBody(cfg.Server.MaxBodyBytes))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))

		if global := cfg.RateLimit.GlobalRequestsPerSecond; global > 0 {
			router.Use(middleware.GlobalRateLimit(middleware.RateLimitConfig{
				RequestsPerSecond: global,
				Burst:             global,
			}))
		}
	}

	handlers := apihttp.NewHandlers(eval, logger.Component("http"))

	// Register routes
	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.POST("/evaluate", handlers.Evaluate)
	router.GET("/capabilities", handlers.Capabilities)
	router.POST("/shutdown", handlers.Shutdown)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	logger.Info("Server initialized successfully")

	return &Server{
		router:    router,
		evaluator: eval,
		logger:    logger,
		config:    cfg,
		metrics:   metrics,
		http: &http.Server{
			Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
	}
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the HTTP server and blocks until it stops
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close gracefully shuts down the server, then the sandbox
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to stop HTTP server", zap.Error(err))
		errs = append(errs, fmt.Errorf("failed to stop http server: %w", err))
	}
	if err := s.evaluator.Close(ctx); err != nil {
		s.logger.Error("Failed to close sandbox", zap.Error(err))
		errs = append(errs, fmt.Errorf("failed to close sandbox: %w", err))
	} else {
		s.logger.Info("Closed sandbox connection")
	}

	// Sync logger before exit
	s.logger.Sync()
	return errors.Join(errs...)
}
