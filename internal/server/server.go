// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/snair2001/WalletRiskAgentWithIExec/internal/audit"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/circuitbreaker"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/config"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/engine"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/health"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/idgen"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/keylock"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/logging"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/metrics"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/ratelimit"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/realtime"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/reasoning"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/security"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/validation"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/watchlist"
)

// Version is reported by the health and info endpoints. Set by ldflags in
// cmd/server.
var Version = "dev"

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg           *config.Config
	engine        *engine.Engine
	reasoner      reasoning.Reasoner
	reasonerSet   bool
	audit         audit.Store
	keys          *keylock.Locker // serializes requests sharing an idempotency key
	watchlist     watchlist.Store
	health        *health.Registry
	realtimeHub   *realtime.Hub
	rateLimiter   *ratelimit.Limiter
	db            *sql.DB // nil if using in-memory
	router        *gin.Engine
	httpSrv       *http.Server
	logger        *slog.Logger
	now           func() time.Time
	shutdownDelay time.Duration
	cancelRunCtx  context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithReasoner overrides the reasoner selected by configuration. A nil
// reasoner makes the engine rules-only.
func WithReasoner(r reasoning.Reasoner) Option {
	return func(s *Server) {
		s.reasoner = r
		s.reasonerSet = true
	}
}

// WithStores injects the audit and watchlist stores (for testing)
func WithStores(a audit.Store, w watchlist.Store) Option {
	return func(s *Server) {
		s.audit = a
		s.watchlist = w
	}
}

// WithClock sets the clock used for audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:           cfg,
		logger:        logging.New(cfg.LogLevel, cfg.LogFormat),
		now:           time.Now,
		shutdownDelay: 5 * time.Second,
		health:        health.NewRegistry(),
		keys:          keylock.New(keylock.DefaultShards),
	}

	// Apply options first (may set reasoner/logger/stores)
	for _, opt := range opts {
		opt(s)
	}

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if s.audit == nil || s.watchlist == nil {
		if cfg.DatabaseURL != "" {
			db, err := sql.Open("postgres", cfg.DatabaseURL)
			if err != nil {
				return nil, fmt.Errorf("failed to open database: %w", err)
			}

			// Configure connection pool
			db.SetMaxOpenConns(25)
			db.SetMaxIdleConns(5)
			db.SetConnMaxLifetime(5 * time.Minute)

			if err := db.Ping(); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("failed to connect to database: %w", err)
			}

			s.db = db
			s.audit = audit.NewPostgresStore(db)
			s.watchlist = watchlist.NewPostgresStore(db)
			s.health.Register("database", health.Database(db))
			s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
		} else {
			s.audit = audit.NewMemoryStore()
			s.watchlist = watchlist.NewMemoryStore()
			s.logger.Info("using in-memory storage (data will not persist)")
		}
	}

	// Reasoning backend
	if !s.reasonerSet {
		r, err := newReasoner(cfg)
		if err != nil {
			return nil, err
		}
		s.reasoner = r
	}

	ec := cfg.EngineConfig()
	breaker := circuitbreaker.New(ec.BreakerThreshold, ec.BreakerCooldown)
	breaker.OnTransition(func(key string, from, to circuitbreaker.State) {
		s.logger.Warn("reasoning circuit changed state", "backend", key, "from", from.String(), "to", to.String())
	})

	engineOpts := []engine.Option{
		engine.WithLogger(s.logger),
		engine.WithBreaker(breaker),
	}
	if s.reasoner != nil {
		engineOpts = append(engineOpts, engine.WithReasoner(s.reasoner))
	}
	eng, err := engine.New(ec, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create decision engine: %w", err)
	}
	s.engine = eng

	if backend := eng.Backend(); backend != "" {
		s.health.RegisterOptional("reasoner", health.Breaker(eng.Breaker(), backend))
		s.logger.Info("contextual reasoning configured",
			"backend", backend,
			"enabled", eng.Config().ReasoningEnabled,
			"timeout", eng.Config().ReasoningTimeout,
		)
	} else {
		s.logger.Info("contextual reasoning disabled, decisions are rules-only")
	}

	if n, err := s.watchlist.List(context.Background()); err == nil {
		metrics.MonitoredWallets.Set(float64(len(n)))
	}

	// Create realtime hub for WebSocket streaming
	s.realtimeHub = realtime.NewHub(s.logger, realtime.WithAllowedOrigins(cfg.CORSOrigins))

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// newReasoner builds the backend named by cfg.Reasoner.
func newReasoner(cfg *config.Config) (reasoning.Reasoner, error) {
	switch cfg.Reasoner {
	case config.ReasonerNone:
		return nil, nil
	case config.ReasonerStub:
		return reasoning.NewStubReasoner(0, 75), nil
	case config.ReasonerOpenAI:
		client := reasoning.NewOpenAIClient(reasoning.OpenAIConfig{
			BaseURL:     cfg.LLMBaseURL,
			APIKey:      cfg.LLMAPIKey,
			Model:       cfg.LLMModel,
			Temperature: cfg.LLMTemperature,
		})
		return reasoning.NewLLMReasoner(client, "openai"), nil
	default:
		return nil, fmt.Errorf("unknown reasoner %q", cfg.Reasoner)
	}
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware(s.cfg.CORSOrigins))
	s.router.Use(validation.RequestSizeMiddleware(s.cfg.MaxRequestBody))

	if s.cfg.RateLimitRPS > 0 {
		rl := ratelimit.DefaultConfig()
		rl.RequestsPerSecond = float64(s.cfg.RateLimitRPS)
		rl.Burst = 2 * s.cfg.RateLimitRPS
		s.rateLimiter = ratelimit.New(rl)
		s.router.Use(s.rateLimiter.Middleware())
	}

	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

// maxRequestIDLen bounds caller-supplied request IDs.
const maxRequestIDLen = 128

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Honour an upstream ID (load balancer, gateway) when it is sane.
		requestID := validation.SanitizeString(c.GetHeader("X-Request-ID"), maxRequestIDLen)
		if requestID == "" {
			requestID = idgen.New()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	s.router.GET("/", s.infoHandler)

	// Dashboard shape, kept for existing frontends
	s.router.POST("/analyze", s.dashboardAnalyzeHandler)

	// Realtime analysis stream
	s.router.GET("/ws", gin.WrapF(s.realtimeHub.HandleWebSocket))

	v1 := s.router.Group("/v1")
	{
		v1.POST("/analyze", s.analyzeHandler)
		v1.GET("/policy", s.policyHandler)
		v1.GET("/wallets/:address/analyses", validation.AddressParamMiddleware(), s.walletHistoryHandler)

		v1.GET("/monitored", s.listMonitoredHandler)
		v1.POST("/monitored", s.addMonitoredHandler)
		v1.DELETE("/monitored/:address", validation.AddressParamMiddleware(), s.removeMonitoredHandler)
	}
}

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Reasoner  string          `json:"reasoner,omitempty"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	ok, statuses := s.health.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !ok {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		for _, st := range statuses {
			if !st.Healthy {
				status = "degraded"
				break
			}
		}
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   Version,
		Reasoner:  s.engine.Backend(),
		Checks:    statuses,
		Timestamp: s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	if ok, _ := s.health.CheckAll(c.Request.Context()); !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "active",
		"service": "Wallet Risk Analysis AI",
		"version": Version,
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"reasoner", s.engine.Backend(),
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.realtimeHub.Run(runCtx)

	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		cancel()
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for background goroutines (hub, DB stats)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(s.shutdownDelay)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Hub returns the realtime hub so callers can run it without Run.
func (s *Server) Hub() *realtime.Hub {
	return s.realtimeHub
}
