package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/pharmakit/composition/internal/logging"
)

var (
	// ErrEmptyQuery is returned when the drug name is blank.
	ErrEmptyQuery = errors.New("drug name is empty")
	// ErrUpstream wraps failures to reach or render the pharmacy site.
	ErrUpstream = errors.New("upstream pharmacy site unavailable")
)

// Result is the composition lookup payload served to clients.
type Result struct {
	DrugName        string `json:"drugName"`
	SaltComposition string `json:"saltComposition"`
}

// Source fetches rendered pages from the pharmacy site. FetchSearch should
// give client-side rendering a chance to populate product links before
// returning; FetchPage fetches a product page.
type Source interface {
	FetchSearch(ctx context.Context, pageURL string) (string, error)
	FetchPage(ctx context.Context, pageURL string) (string, error)
}

// Scraper resolves drug names to salt compositions via a page Source.
type Scraper struct {
	source Source
	base   *url.URL
	logger *logging.Logger
}

// New creates a scraper for the pharmacy site rooted at baseURL.
func New(source Source, baseURL string, logger *logging.Logger) (*Scraper, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}
	return &Scraper{
		source: source,
		base:   base,
		logger: logger.Named("scrape"),
	}, nil
}

// SearchURL builds the search results URL for a cleaned query.
func (s *Scraper) SearchURL(cleaned string) string {
	return s.base.JoinPath("search-medicines", cleaned).String()
}

// Lookup resolves a raw drug name to its salt composition. A query that
// matches no product returns the raw name with an empty composition; only
// transport and render failures are errors.
func (s *Scraper) Lookup(ctx context.Context, drugName string) (*Result, error) {
	if strings.TrimSpace(drugName) == "" {
		return nil, ErrEmptyQuery
	}

	cleaned := CleanQuery(drugName)
	if cleaned == "" {
		// Queries made only of dosage-form words ("tablet", "strip") clean to
		// nothing; no product can match, so skip the upstream round trip.
		s.logger.Info("query empty after cleaning", zap.String("query", drugName))
		return &Result{DrugName: drugName, SaltComposition: ""}, nil
	}

	searchURL := s.SearchURL(cleaned)
	s.logger.Debug("fetching search page",
		zap.String("query", cleaned),
		zap.String("url", searchURL),
	)

	searchHTML, err := s.source.FetchSearch(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("%w: search fetch: %w", ErrUpstream, err)
	}

	candidates, err := CollectCandidates(searchHTML, s.base)
	if err != nil {
		return nil, fmt.Errorf("parse search results: %w", err)
	}

	best, ok := BestMatch(cleaned, candidates)
	if !ok {
		s.logger.Info("no product candidates", zap.String("query", cleaned))
		return &Result{DrugName: drugName, SaltComposition: ""}, nil
	}
	s.logger.Debug("selected product",
		zap.String("query", cleaned),
		zap.String("title", best.Title),
		zap.String("url", best.URL),
	)

	pageHTML, err := s.source.FetchPage(ctx, best.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: product fetch: %w", ErrUpstream, err)
	}

	composition, err := ExtractComposition(pageHTML)
	if err != nil {
		return nil, fmt.Errorf("parse product page: %w", err)
	}

	title, err := ExtractTitle(pageHTML)
	if err != nil || title == "" {
		title = drugName
	}

	return &Result{DrugName: title, SaltComposition: composition}, nil
}
