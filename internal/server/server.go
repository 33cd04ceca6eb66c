// Package server wires the payment-gate middleware, health checks, metrics,
// and tracing into a gin HTTP server.
package server

import (
	"compress/gzip"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"

	"github.com/x402gate/gate/internal/config"
	"github.com/x402gate/gate/internal/health"
	"github.com/x402gate/gate/internal/idempotency"
	"github.com/x402gate/gate/internal/idgen"
	"github.com/x402gate/gate/internal/logging"
	"github.com/x402gate/gate/internal/metrics"
	"github.com/x402gate/gate/internal/pay"
	"github.com/x402gate/gate/internal/paygate"
	"github.com/x402gate/gate/internal/payermode"
	"github.com/x402gate/gate/internal/security"
	"github.com/x402gate/gate/internal/traces"
	"github.com/x402gate/gate/pkg/x402"
)

// Server wraps the HTTP server and its payment-gate dependencies.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	gate   *paygate.Gate
	health *health.Registry

	db           *sql.DB
	pgStore      *idempotency.PostgresStore
	sweepStopped chan struct{}

	router         *gin.Engine
	httpSrv        *http.Server
	cancelRunCtx   context.CancelFunc
	tracerShutdown func(context.Context) error

	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New builds a Server from cfg: selects the mock or on-chain verifier/payer
// pair per cfg.PaymentMode, wires the payment gate, health checks, metrics,
// and tracing, and registers the demo priced route.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
		health: health.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}

	verifier, payer, err := payermode.Build(cfg)
	if err != nil {
		return nil, fmt.Errorf("build payment mode: %w", err)
	}

	store, err := s.buildIdempotencyStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("build idempotency store: %w", err)
	}

	s.gate = paygate.New(paygate.Config{
		Verifier:          verifier,
		IdempotencyStore:  store,
		DefaultTTLSeconds: cfg.DefaultTTLSecs,
		Logger:            s.logger,
		OnChallengeIssued: func(route string, challenge *x402.Challenge) {
			s.logger.Info("challenge issued", "route", route, "price", challenge.Price, "nonce", challenge.Nonce)
		},
		OnRejected: func(route string, reason string) {
			s.logger.Warn("payment rejected", "route", route, "reason", reason)
		},
	})

	s.health.Register("payment_mode", func(context.Context) health.Status {
		return health.Status{Name: "payment_mode", Healthy: true, Detail: string(cfg.PaymentMode)}
	})

	s.setupRouter(payer)
	return s, nil
}

// buildIdempotencyStore selects a PostgreSQL-backed store when cfg.DatabaseURL
// is set, falling back to the in-memory default otherwise. The Postgres path
// requires migrations/ to already be applied (see cmd/migrate).
func (s *Server) buildIdempotencyStore(cfg *config.Config) (idempotency.Store, error) {
	if cfg.DatabaseURL == "" {
		return idempotency.NewMemoryStore(s.logger), nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s.db = db
	s.pgStore = idempotency.NewPostgresStore(db)
	s.health.Register("idempotency_store", func(ctx context.Context) health.Status {
		if err := db.PingContext(ctx); err != nil {
			return health.Status{Name: "idempotency_store", Healthy: false, Detail: err.Error()}
		}
		return health.Status{Name: "idempotency_store", Healthy: true, Detail: "postgres"}
	})
	return s.pgStore, nil
}

func (s *Server) setupRouter(payer pay.Payer) {
	s.router = gin.New()

	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered", "error", recovered, "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}))
	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware([]string{"*"}))
	s.router.Use(gzipMiddleware())
	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(s.timeoutMiddleware())

	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	s.router.GET("/api", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":        "x402gate",
			"description": "HTTP 402 payment-gated tool endpoints",
			"mode":        string(s.cfg.PaymentMode),
		})
	})

	pricing := x402.PricingConfig{
		Price:     s.cfg.DefaultPrice,
		Asset:     s.cfg.DefaultAsset,
		Network:   s.cfg.DefaultNetwork,
		Recipient: s.cfg.RecipientWallet,
	}
	s.router.GET("/weather", s.gate.Price(pricing), weatherHandler)

	if payer != nil {
		s.router.POST("/demo/call-weather", func(c *gin.Context) {
			s.callWeatherDemo(c, payer)
		})
	}
}

func weatherHandler(c *gin.Context) {
	city := c.Query("city")
	if city == "" {
		city = "unknown"
	}
	proof := paygate.GetPaymentProof(c)
	c.JSON(http.StatusOK, gin.H{
		"city":     city,
		"forecast": "sunny",
		"paidBy":   proof.Payer,
	})
}

// callWeatherDemo exercises the client retry loop (C9) against this same
// server's /weather route, proving the gate and client interoperate.
func (s *Server) callWeatherDemo(c *gin.Context, payer pay.Payer) {
	client := x402.NewClient(payer)
	url := s.cfg.GatewayURL + "/weather?city=paris"
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, url, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp, err := client.Do(req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	defer func() { _ = resp.Body.Close() }()
	c.Status(resp.StatusCode)
	_, _ = io.Copy(c.Writer, resp.Body)
}

// runPostgresSweep periodically deletes expired idempotency rows, mirroring
// MemoryStore's own background sweep cadence for the Postgres-backed store.
func (s *Server) runPostgresSweep(ctx context.Context) {
	defer close(s.sweepStopped)

	ticker := time.NewTicker(idempotency.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.pgStore.SweepExpired(ctx)
			if err != nil {
				s.logger.Error("postgres idempotency sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				s.logger.Debug("swept expired idempotency entries", "removed", removed)
			}
		}
	}
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
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
			logger.Error("request completed", "method", c.Request.Method, "path", path, "status", status, "latency_ms", latency.Milliseconds())
		case status >= 400:
			logger.Warn("request completed", "method", c.Request.Method, "path", path, "status", status, "latency_ms", latency.Milliseconds())
		default:
			logger.Info("request completed", "method", c.Request.Method, "path", path, "status", status, "latency_ms", latency.Milliseconds())
		}
	}
}

func (s *Server) timeoutMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.HTTPWriteTimeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.health.CheckAll(c.Request.Context())
	httpStatus := http.StatusOK
	if !healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, gin.H{"checks": statuses, "timestamp": time.Now().UTC().Format(time.RFC3339)})
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

// Run starts the HTTP server and blocks until the context is cancelled or a
// shutdown signal is received, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	shutdownTracer, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	s.tracerShutdown = shutdownTracer

	go s.gate.Nonces().Start(runCtx)

	if s.pgStore != nil {
		s.sweepStopped = make(chan struct{})
		go s.runPostgresSweep(runCtx)
	}

	s.httpSrv = &http.Server{
		Addr:              s.cfg.Host + ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       s.cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.cfg.HTTPWriteTimeout,
		IdleTimeout:       s.cfg.HTTPIdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", s.httpSrv.Addr, "mode", s.cfg.PaymentMode)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	s.healthy.Store(true)
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

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

// Shutdown gracefully stops the server and its background workers.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	s.gate.Nonces().Stop()

	if s.pgStore != nil {
		<-s.sweepStopped
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("postgres close error", "error", err)
		}
	}

	if s.tracerShutdown != nil {
		if err := s.tracerShutdown(ctx); err != nil {
			s.logger.Error("tracer shutdown error", "error", err)
		}
	}

	s.healthy.Store(false)
	s.logger.Info("shutdown complete")
	return nil
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

type gzipResponseWriter struct {
	gin.ResponseWriter
	writer *gzip.Writer
}

func (w *gzipResponseWriter) Write(data []byte) (int, error) {
	return w.writer.Write(data)
}

func (w *gzipResponseWriter) WriteString(s string) (int, error) {
	return w.writer.Write([]byte(s))
}

func gzipMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") {
			c.Next()
			return
		}
		gz, err := gzip.NewWriterLevel(c.Writer, gzip.DefaultCompression)
		if err != nil {
			c.Next()
			return
		}
		c.Header("Content-Encoding", "gzip")
		c.Header("Vary", "Accept-Encoding")
		c.Writer = &gzipResponseWriter{ResponseWriter: c.Writer, writer: gz}
		defer func() {
			if err := gz.Close(); err != nil {
				_ = c.Error(err)
			}
			c.Header("Content-Length", "")
		}()
		c.Next()
	}
}
