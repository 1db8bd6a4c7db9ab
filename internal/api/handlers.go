// Package api holds the HTTP handlers for the composition lookup service.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pharmakit/composition/internal/browser"
	"github.com/pharmakit/composition/internal/cache"
	"github.com/pharmakit/composition/internal/logging"
	"github.com/pharmakit/composition/internal/middleware"
	"github.com/pharmakit/composition/internal/monitoring"
	"github.com/pharmakit/composition/internal/scrape"
)

// Version is the service version reported by the root endpoint.
const Version = "1.0.0"

// Looker resolves drug names to compositions. Satisfied by lookup.Service.
type Looker interface {
	Lookup(ctx context.Context, drugName string) (*scrape.Result, error)
	CacheStats() cache.Stats
}

// PoolStatus reports browser pool health. Satisfied by browser.Pool.
type PoolStatus interface {
	Status() browser.Status
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	looker  Looker
	pool    PoolStatus // nil when the browser is disabled
	metrics *monitoring.Metrics
	logger  *logging.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(looker Looker, pool PoolStatus, metrics *monitoring.Metrics, logger *logging.Logger) *Handlers {
	return &Handlers{
		looker:  looker,
		pool:    pool,
		metrics: metrics,
		logger:  logger.Named("api"),
	}
}

// Root returns the service banner.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "composition-api",
		"version": Version,
		"endpoints": []string{
			"/search?drug-name=<name>",
			"/health",
			"/metrics",
			"/metrics/json",
		},
	})
}

// Search handles GET /search?drug-name=<name>.
func (h *Handlers) Search(c *gin.Context) {
	name := c.Query("drug-name")
	if len(name) > 256 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "drug-name too long"})
		return
	}

	result, err := h.looker.Lookup(c.Request.Context(), name)
	if err != nil {
		h.renderLookupError(c, name, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// renderLookupError maps lookup failures to HTTP statuses.
func (h *Handlers) renderLookupError(c *gin.Context, name string, err error) {
	requestID := c.GetString(middleware.RequestIDKey)

	switch {
	case errors.Is(err, scrape.ErrEmptyQuery):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please provide 'drug-name' parameter"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "lookup timed out"})
	case errors.Is(err, scrape.ErrUpstream):
		h.logger.Warn("upstream failure",
			zap.String("drug_name", name),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": "pharmacy site unavailable"})
	default:
		h.logger.Error("unexpected lookup error",
			zap.String("drug_name", name),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// Health reports service, browser pool, and cache health.
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{
		"status":         "healthy",
		"uptime_seconds": h.metrics.Uptime().Seconds(),
		"cache":          h.looker.CacheStats(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}
	if h.pool != nil {
		body["browser"] = h.pool.Status()
	} else {
		body["browser"] = gin.H{"running": false, "disabled": true}
	}
	c.JSON(http.StatusOK, body)
}

// MetricsJSON returns the aggregated metrics snapshot.
func (h *Handlers) MetricsJSON(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.GetSnapshot())
}
