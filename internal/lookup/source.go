package lookup

import (
	"context"

	"go.uber.org/zap"

	"github.com/pharmakit/composition/internal/logging"
	"github.com/pharmakit/composition/internal/monitoring"
	"github.com/pharmakit/composition/internal/scrape"
)

// FallbackSource fetches pages through the browser pool and degrades to the
// static HTTP fetcher when Chrome is unavailable or a navigation fails. The
// static path cannot execute the site's JavaScript, so it sees fewer product
// links, but a degraded answer beats none.
type FallbackSource struct {
	primary   scrape.Source
	secondary scrape.Source
	metrics   *monitoring.Metrics
	logger    *logging.Logger
}

// NewFallbackSource wires a primary source with a static fallback.
func NewFallbackSource(primary, secondary scrape.Source, metrics *monitoring.Metrics, logger *logging.Logger) *FallbackSource {
	return &FallbackSource{
		primary:   primary,
		secondary: secondary,
		metrics:   metrics,
		logger:    logger.Named("source"),
	}
}

// FetchSearch fetches a search page, preferring the rendered DOM.
func (f *FallbackSource) FetchSearch(ctx context.Context, pageURL string) (string, error) {
	return f.fetch(ctx, pageURL, scrape.Source.FetchSearch)
}

// FetchPage fetches a product page, preferring the rendered DOM.
func (f *FallbackSource) FetchPage(ctx context.Context, pageURL string) (string, error) {
	return f.fetch(ctx, pageURL, scrape.Source.FetchPage)
}

func (f *FallbackSource) fetch(ctx context.Context, pageURL string, via func(scrape.Source, context.Context, string) (string, error)) (string, error) {
	if f.primary != nil {
		html, err := via(f.primary, ctx, pageURL)
		if err == nil {
			return html, nil
		}
		if ctx.Err() != nil {
			return "", err
		}
		f.metrics.BrowserFailures.Inc()
		f.logger.Warn("browser fetch failed, falling back to static fetch",
			zap.String("url", pageURL),
			zap.Error(err),
		)
	}
	return via(f.secondary, ctx, pageURL)
}
