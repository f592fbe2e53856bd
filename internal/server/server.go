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

	"github.com/samuelarogbonlo/dot-escrow/internal/abi"
	"github.com/samuelarogbonlo/dot-escrow/internal/chain"
	"github.com/samuelarogbonlo/dot-escrow/internal/circuitbreaker"
	"github.com/samuelarogbonlo/dot-escrow/internal/config"
	"github.com/samuelarogbonlo/dot-escrow/internal/escrow"
	"github.com/samuelarogbonlo/dot-escrow/internal/gas"
	"github.com/samuelarogbonlo/dot-escrow/internal/governance"
	"github.com/samuelarogbonlo/dot-escrow/internal/health"
	"github.com/samuelarogbonlo/dot-escrow/internal/idgen"
	"github.com/samuelarogbonlo/dot-escrow/internal/logging"
	"github.com/samuelarogbonlo/dot-escrow/internal/metrics"
	"github.com/samuelarogbonlo/dot-escrow/internal/pipeline"
	"github.com/samuelarogbonlo/dot-escrow/internal/query"
	"github.com/samuelarogbonlo/dot-escrow/internal/ratelimit"
	"github.com/samuelarogbonlo/dot-escrow/internal/realtime"
	"github.com/samuelarogbonlo/dot-escrow/internal/receipts"
	"github.com/samuelarogbonlo/dot-escrow/internal/security"
	"github.com/samuelarogbonlo/dot-escrow/internal/validation"
	"github.com/samuelarogbonlo/dot-escrow/internal/watcher"
)

// ErrNodeRequired is returned by New without WithNode.
var ErrNodeRequired = errors.New("server: a chain node is required")

// healthCheckTimeout bounds each subsystem check.
const healthCheckTimeout = 5 * time.Second

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	version      string
	contract     *abi.Contract
	node         chain.Node
	ext          chain.Extension // nil without a signing bridge
	journal      *receipts.Journal
	realtimeHub  *realtime.Hub
	health       *health.Registry
	rateLimiter  *ratelimit.Limiter
	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	drainDelay   time.Duration
	closers      []func()
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

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

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithNode sets the chain node used for queries, dry-runs and tracking.
func WithNode(n chain.Node) Option {
	return func(s *Server) {
		s.node = n
	}
}

// WithExtension sets the signer for state-changing calls. Without one every
// write resolves to the unavailable receipt.
func WithExtension(ext chain.Extension) Option {
	return func(s *Server) {
		s.ext = ext
	}
}

// WithContract overrides the contract metadata.
func WithContract(c *abi.Contract) Option {
	return func(s *Server) {
		s.contract = c
	}
}

// WithCloser registers a function run at the end of Shutdown.
func WithCloser(fn func()) Option {
	return func(s *Server) {
		s.closers = append(s.closers, fn)
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:        cfg,
		version:    "dev",
		logger:     logging.New(cfg.LogLevel, cfg.LogFormat),
		health:     health.NewRegistry(),
		drainDelay: 5 * time.Second,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.node == nil {
		return nil, ErrNodeRequired
	}
	s.node = circuitbreaker.WrapNode(s.node, circuitbreaker.New(circuitbreaker.DefaultConfig()))

	if s.contract == nil {
		var err error
		if cfg.ContractMetadataPath != "" {
			s.contract, err = abi.LoadFile(cfg.ContractMetadataPath)
		} else {
			s.contract, err = abi.Escrow()
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load contract metadata: %w", err)
		}
	}
	s.contract.AddressPrefix = cfg.SS58Prefix

	// Receipt journal (Postgres if DATABASE_URL set, otherwise in-memory)
	var store receipts.Store
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		store = receipts.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL receipt journal", "url", maskDSN(cfg.DatabaseURL))
	} else {
		store = receipts.NewMemoryStore()
		s.logger.Info("using in-memory receipt journal")
	}
	var journalOpts []receipts.Option
	if signer := receipts.NewSigner(cfg.ReceiptSecret); signer != nil {
		journalOpts = append(journalOpts, receipts.WithSigner(signer))
	}
	s.journal = receipts.NewJournal(store, journalOpts...)

	s.realtimeHub = realtime.NewHub(s.logger)

	// Contract clients
	pipeOpts := []pipeline.Option{
		pipeline.WithRecorder(s.journal),
		pipeline.WithPublisher(s.realtimeHub),
	}
	if cfg.StorageDepositLimit != "" {
		pipeOpts = append(pipeOpts, pipeline.WithStorageDepositLimit(cfg.StorageDepositLimit))
	}
	estimator := gas.NewEstimator(s.node, s.contract, cfg.ContractAddress)
	pipe := pipeline.New(cfg.ContractAddress, s.contract, estimator, s.ext, pipeOpts...)

	queryCaller := cfg.QueryCaller
	if queryCaller == "" {
		queryCaller = cfg.ContractAddress
	}
	adapter := query.New(s.node, s.contract, cfg.ContractAddress, queryCaller)

	handlers := handlerSet{
		escrow:     escrow.NewHandler(escrow.NewClient(adapter, pipe)),
		governance: governance.NewHandler(governance.NewClient(adapter, pipe)),
		watcher: watcher.NewHandler(watcher.New(s.node, watcher.Config{
			Window:       cfg.TrackerWindow,
			PollInterval: watcher.DefaultConfig().PollInterval,
		})),
		receipts: receipts.NewHandler(s.journal),
	}

	s.registerHealthChecks()

	s.router = gin.New()
	s.rateLimiter = ratelimit.New(ratelimit.ConfigFor(cfg.RateLimitRPM))
	s.setupMiddleware()
	s.setupRoutes(handlers)

	s.healthy.Store(true)

	s.logger.Info("server configured",
		"contract", cfg.ContractAddress,
		"query_caller", queryCaller,
		"signer", s.ext != nil,
		"tracker_window", cfg.TrackerWindow,
	)

	return s, nil
}

type handlerSet struct {
	escrow     *escrow.Handler
	governance *governance.Handler
	watcher    *watcher.Handler
	receipts   *receipts.Handler
}

func (s *Server) registerHealthChecks() {
	if p, ok := s.node.(health.Pinger); ok {
		s.health.Register("node", health.PingChecker("node", p, healthCheckTimeout))
	}

	if p, ok := s.ext.(health.Pinger); ok {
		s.health.Register("signer", health.PingChecker("signer", p, healthCheckTimeout))
	} else if s.ext == nil {
		s.health.Register("signer", health.Optional("signer", "not configured, writes disabled"))
	}

	if s.db != nil {
		s.health.Register("database", health.PingChecker("database", health.PingFunc(s.db.PingContext), healthCheckTimeout))
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

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (all origins unless CORS_ORIGINS is set)
	s.router.Use(security.CORSMiddleware(s.cfg.CORSOrigins))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.Hex(16)
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
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", latency.Milliseconds(),
		}
		if caller := validation.Caller(c); caller != "" {
			attrs = append(attrs, "caller", caller)
		}

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed", append(attrs, "client_ip", c.ClientIP())...)
		case status >= 400:
			logger.Warn("request completed", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}
	}
}

// timeoutMiddleware bounds the request context. Contract calls observe the
// deadline; a submission that outlives it resolves to a canceled receipt.
func timeoutMiddleware(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes(h handlerSet) {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for transaction status streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")
	v1.Use(
		validation.CallerMiddleware(),
		s.rateLimiter.Middleware(),
		timeoutMiddleware(s.cfg.RequestTimeout),
	)
	h.escrow.RegisterRoutes(v1)
	h.governance.RegisterRoutes(v1)
	h.watcher.RegisterRoutes(v1)
	h.receipts.RegisterRoutes(v1)

	// Writes act for the X-Caller-Address account
	protected := v1.Group("")
	protected.Use(validation.RequireCaller())
	h.escrow.RegisterProtectedRoutes(protected)
	h.governance.RegisterProtectedRoutes(protected)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse is the /health body.
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ok, checks := s.health.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !ok {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   s.version,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
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
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":       "dot-escrow",
		"version":    s.version,
		"contract":   s.cfg.ContractAddress,
		"ss58Prefix": s.cfg.SS58Prefix,
		"signer":     s.ext != nil,
		"realtime":   s.realtimeHub.Stats(),
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
		WriteTimeout:      s.cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port)
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

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
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

	// Give load balancers time to stop sending traffic
	time.Sleep(s.drainDelay)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	// Stop the hub after in-flight submissions have published
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
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

	for _, fn := range s.closers {
		fn()
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
