// Package lookup implements the composition lookup service: normalization,
// cache consultation, scraping, and outcome accounting.
package lookup

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pharmakit/composition/internal/cache"
	"github.com/pharmakit/composition/internal/logging"
	"github.com/pharmakit/composition/internal/monitoring"
	"github.com/pharmakit/composition/internal/scrape"
)

// Service answers drug composition queries, caching successful results.
type Service struct {
	scraper *scrape.Scraper
	cache   *cache.Cache // nil disables caching
	metrics *monitoring.Metrics
	logger  *logging.Logger
}

// NewService creates a lookup service. Pass a nil cache to disable caching.
func NewService(scraper *scrape.Scraper, resultCache *cache.Cache, metrics *monitoring.Metrics, logger *logging.Logger) *Service {
	return &Service{
		scraper: scraper,
		cache:   resultCache,
		metrics: metrics,
		logger:  logger.Named("lookup"),
	}
}

// Lookup resolves a drug name to its salt composition.
func (s *Service) Lookup(ctx context.Context, drugName string) (*scrape.Result, error) {
	if strings.TrimSpace(drugName) == "" {
		return nil, scrape.ErrEmptyQuery
	}
	cleaned := scrape.CleanQuery(drugName)

	start := time.Now()

	// A query that cleans to nothing never matches, so it bypasses the cache.
	if s.cache != nil && cleaned != "" {
		if result, ok := s.cache.Get(cleaned); ok {
			s.metrics.CacheHits.Inc()
			s.metrics.RecordLookup("cached", time.Since(start))
			return result, nil
		}
		s.metrics.CacheMisses.Inc()
	}

	result, err := s.scraper.Lookup(ctx, drugName)
	if err != nil {
		s.metrics.RecordLookup("error", time.Since(start))
		return nil, err
	}

	outcome := "hit"
	if result.SaltComposition == "" {
		outcome = "empty"
	} else if s.cache != nil && cleaned != "" {
		s.cache.Put(cleaned, result)
	}
	s.metrics.RecordLookup(outcome, time.Since(start))

	s.logger.Info("lookup complete",
		zap.String("query", cleaned),
		zap.String("outcome", outcome),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

// CacheStats reports cache counters for health checks; zero-valued when
// caching is disabled.
func (s *Service) CacheStats() cache.Stats {
	if s.cache == nil {
		return cache.Stats{}
	}
	return s.cache.Stats()
}
