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
	"golang.org/x/sync/errgroup"

	apihttp "github.com/GriffinCanCode/IPCDebugger/internal/api/http"
	"github.com/GriffinCanCode/IPCDebugger/internal/api/middleware"
	"github.com/GriffinCanCode/IPCDebugger/internal/api/ws"
	"github.com/GriffinCanCode/IPCDebugger/internal/domain/orchestrator"
	"github.com/GriffinCanCode/IPCDebugger/internal/domain/scenario"
	"github.com/GriffinCanCode/IPCDebugger/internal/infrastructure/config"
	"github.com/GriffinCanCode/IPCDebugger/internal/infrastructure/logging"
	"github.com/GriffinCanCode/IPCDebugger/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/IPCDebugger/internal/infrastructure/tracing"
)

// ShutdownTimeout bounds how long in-flight requests may take to finish
const ShutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	orch     *orchestrator.Orchestrator
	runner   *scenario.Runner
	handlers *apihttp.Handlers
	stream   *ws.Handler
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
	tracer   *tracing.Tracer
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return New(cfg, logger)
}

// New creates a server that logs to logger
func New(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Info("Initializing IPC debugger",
		zap.String("addr", cfg.Server.Addr()),
		zap.Bool("detector", cfg.Detector.Enabled),
		zap.Duration("detector_interval", cfg.Detector.Interval),
		zap.Int("event_retention", cfg.EventLog.Retention),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("ipc-debugger", logger.Component("tracing"))

	orch := orchestrator.New(
		orchestrator.WithLogger(logger.Component("orchestrator")),
		orchestrator.WithMetrics(metrics),
		orchestrator.WithSettings(settingsFrom(cfg)),
	)

	runner := scenario.NewRunner(orch,
		scenario.WithLogger(logger.Component("scenario")),
		scenario.WithMetrics(metrics),
		scenario.WithSettle(cfg.Scenarios.Settle),
	)
	n, err := runner.LoadDir(cfg.Scenarios.Dir)
	if err != nil {
		tracer.Close()
		return nil, fmt.Errorf("failed to load scenarios: %w", err)
	}
	logger.Info("Scenarios ready", zap.Int("loaded", n), zap.Int("total", len(runner.Names())))

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.Logger(logger.Component("http")))
	router.Use(middleware.CORS(middleware.CORSFromOrigins(cfg.Server.CORSOrigins)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		limits := middleware.DefaultRateLimitConfig()
		limits.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		limits.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(limits))
	}

	handlers := apihttp.NewHandlers(orch, runner,
		apihttp.WithLogger(logger.Component("api")),
		apihttp.WithMetrics(metrics),
	)
	stream := ws.NewHandler(orch,
		ws.WithLogger(logger.Component("ws")),
		ws.WithMetrics(metrics),
		ws.WithCheckOrigin(originChecker(cfg.Server.CORSOrigins)),
	)

	handlers.Register(router)
	router.GET("/events/stream", stream.HandleConnection)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	logger.Info("Server initialized successfully")

	return &Server{
		router:   router,
		orch:     orch,
		runner:   runner,
		handlers: handlers,
		stream:   stream,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
		tracer:   tracer,
	}, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Orchestrator returns the simulation the server exposes
func (s *Server) Orchestrator() *orchestrator.Orchestrator {
	return s.orch
}

// Run listens on the configured address and serves until ctx is done
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Server.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down:
// open streams get a going-away frame, parked operations are woken, and
// in-flight requests get ShutdownTimeout to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if s.config.Detector.Enabled {
		g.Go(func() error {
			return s.orch.StartDetector(gctx)
		})
	}

	g.Go(func() error {
		s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Shutting down")

		s.stream.Close()
		s.orch.Reset()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.handlers.Wait()
		s.tracer.Close()
		if err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	_ = s.logger.Sync()
	return err
}

func settingsFrom(cfg *config.Config) orchestrator.Settings {
	return orchestrator.Settings{
		Retention:        cfg.EventLog.Retention,
		DetectorInterval: cfg.Detector.Interval,
		DetectorHistory:  cfg.Detector.History,
		PipeCapacity:     cfg.Defaults.PipeCapacity,
		QueueCapacity:    cfg.Defaults.QueueCapacity,
		SharedMemSize:    cfg.Defaults.SharedMemSize,
		OpTimeout:        cfg.Defaults.OpTimeout,
	}
}

// originChecker admits stream upgrades from the configured CORS origins.
// Requests without an Origin header come from non-browser clients.
func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}
