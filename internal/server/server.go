// Package server wires configuration, logging, metrics, the browser pool,
// and HTTP routes into a runnable service.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pharmakit/composition/internal/api"
	"github.com/pharmakit/composition/internal/browser"
	"github.com/pharmakit/composition/internal/cache"
	"github.com/pharmakit/composition/internal/config"
	"github.com/pharmakit/composition/internal/fetch"
	"github.com/pharmakit/composition/internal/logging"
	"github.com/pharmakit/composition/internal/lookup"
	"github.com/pharmakit/composition/internal/middleware"
	"github.com/pharmakit/composition/internal/monitoring"
	"github.com/pharmakit/composition/internal/scrape"
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	router     *gin.Engine
	pool       *browser.Pool
	logger     *logging.Logger
	config     *config.Config
	metrics    *monitoring.Metrics
}

// New creates a server instance from configuration.
func New(cfg *config.Config) (*Server, error) {
	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger = logging.ForLevel(cfg.Logging.Level, false)
	}

	logger.Info("initializing composition service",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
		zap.Bool("browser_enabled", cfg.Browser.Enabled),
	)

	metrics := monitoring.NewMetrics()

	// Static fetcher is always available; the browser pool is optional and
	// launches Chrome lazily on first use.
	fetchOpts := fetch.DefaultOptions()
	fetchOpts.RPS = cfg.Scrape.FetchRPS
	fetcher := fetch.NewClient(fetchOpts)

	var pool *browser.Pool
	var source scrape.Source = fetcher
	if cfg.Browser.Enabled {
		pool = browser.NewPool(browser.Config{
			PoolSize:    cfg.Browser.PoolSize,
			NavTimeout:  cfg.Browser.NavTimeout,
			WaitTimeout: cfg.Scrape.WaitTimeout,
			ExecPath:    cfg.Browser.ExecPath,
			UserDataDir: cfg.Browser.UserDataDir,
		}, metrics, logger)
		source = lookup.NewFallbackSource(pool, fetcher, metrics, logger)
	}

	scraper, err := scrape.New(source, cfg.Scrape.BaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create scraper: %w", err)
	}

	var resultCache *cache.Cache
	if cfg.Cache.Enabled {
		resultCache = cache.New(cache.Config{
			TTL:        cfg.Cache.TTL,
			MaxEntries: cfg.Cache.MaxEntries,
		})
	}

	service := lookup.NewService(scraper, resultCache, metrics, logger)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	var poolStatus api.PoolStatus
	if pool != nil {
		poolStatus = pool
	}
	handlers := api.NewHandlers(service, poolStatus, metrics, logger)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/search", handlers.Search)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/metrics/json", handlers.MetricsJSON)

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("server initialized")

	return &Server{
		httpServer: httpServer,
		router:     router,
		pool:       pool,
		logger:     logger,
		config:     cfg,
		metrics:    metrics,
	}, nil
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close drains in-flight requests and shuts down the browser pool.
func (s *Server) Close() error {
	s.logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP shutdown failed", zap.Error(err))
	}

	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			s.logger.Error("failed to close browser pool", zap.Error(err))
			return err
		}
	}

	s.logger.Sync()
	return nil
}
