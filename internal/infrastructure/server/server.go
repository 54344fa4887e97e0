package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	httpapi "github.com/GriffinCanCode/sandtree/internal/api/http"
	"github.com/GriffinCanCode/sandtree/internal/api/middleware"
	"github.com/GriffinCanCode/sandtree/internal/api/ws"
	"github.com/GriffinCanCode/sandtree/internal/infrastructure/config"
	"github.com/GriffinCanCode/sandtree/internal/infrastructure/logging"
	"github.com/GriffinCanCode/sandtree/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/sandtree/internal/transport"
)

const shutdownTimeout = 5 * time.Second

// Deps are the components the HTTP surface exposes.
type Deps struct {
	Workers   httpapi.WorkerLister
	Submitter transport.Submitter
	Pool      httpapi.StatsSource
}

// Server wraps the HTTP router and the controller hub
type Server struct {
	router  *gin.Engine
	hub     *ws.Hub
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, deps Deps, logger *logging.Logger, metrics *monitoring.Metrics) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("http")

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	corsCfg := middleware.DefaultCORSConfig()
	router.Use(middleware.CORS(corsCfg))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	hubCfg := ws.DefaultConfig()
	hubCfg.AllowedOrigins = corsCfg.AllowOrigins
	hub := ws.NewHub(deps.Submitter, hubCfg, logger, metrics)
	handlers := httpapi.NewHandlers(cfg.Engine.Type, deps.Workers, deps.Pool, metrics)

	// Register routes
	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/workers", handlers.ListWorkers)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/control", hub.Handle)

	return &Server{
		router:  router,
		hub:     hub,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}
}

// Hub returns the controller hub, which must be added to the event sinks.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := s.config.Transport.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		s.hub.Close()
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	s.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
