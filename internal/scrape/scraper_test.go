package scrape

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmakit/composition/internal/logging"
)

// fakeSource serves canned pages keyed by URL.
type fakeSource struct {
	searchPages map[string]string
	pages       map[string]string
	searchErr   error
	pageErr     error

	searchedURLs []string
	fetchedURLs  []string
}

func (f *fakeSource) FetchSearch(_ context.Context, pageURL string) (string, error) {
	f.searchedURLs = append(f.searchedURLs, pageURL)
	if f.searchErr != nil {
		return "", f.searchErr
	}
	return f.searchPages[pageURL], nil
}

func (f *fakeSource) FetchPage(_ context.Context, pageURL string) (string, error) {
	f.fetchedURLs = append(f.fetchedURLs, pageURL)
	if f.pageErr != nil {
		return "", f.pageErr
	}
	return f.pages[pageURL], nil
}

func newTestScraper(t *testing.T, source Source) *Scraper {
	t.Helper()
	s, err := New(source, "https://www.apollopharmacy.in", logging.NewDevelopment())
	require.NoError(t, err)
	return s
}

func TestScraperLookup(t *testing.T) {
	searchURL := "https://www.apollopharmacy.in/search-medicines/dolo%20650"
	productURL := "https://www.apollopharmacy.in/otc/dolo-650-tablet"

	source := &fakeSource{
		searchPages: map[string]string{
			searchURL: `<html><body>
				<a href="/otc/dolo-650-tablet">Dolo 650 Tablet</a>
				<a href="/otc/dolo-500-tablet">Dolo 500 Tablet</a>
			</body></html>`,
		},
		pages: map[string]string{
			productURL: `<html><body>
				<div class="DrugHeader__header-content___x"><h1>Dolo 650 Tablet 15's</h1></div>
				<h3 class="Gd Dd Sp">Composition</h3>
				<div>Paracetamol (650mg)</div>
			</body></html>`,
		},
	}

	scraper := newTestScraper(t, source)
	result, err := scraper.Lookup(context.Background(), "Dolo 650 Tablet")
	require.NoError(t, err)

	assert.Equal(t, "Dolo 650 Tablet 15's", result.DrugName)
	assert.Equal(t, "Paracetamol (650mg)", result.SaltComposition)
	assert.Equal(t, []string{searchURL}, source.searchedURLs)
	assert.Equal(t, []string{productURL}, source.fetchedURLs)
}

func TestScraperLookupNoCandidates(t *testing.T) {
	source := &fakeSource{
		searchPages: map[string]string{},
	}
	// fakeSource returns "" for unknown URLs which fails HTML validation,
	// so serve a real page with no product links.
	source.searchPages["https://www.apollopharmacy.in/search-medicines/unobtainium"] =
		`<html><body><p>No results found</p></body></html>`

	scraper := newTestScraper(t, source)
	result, err := scraper.Lookup(context.Background(), "unobtainium")
	require.NoError(t, err)

	// The raw query comes back with an empty composition.
	assert.Equal(t, "unobtainium", result.DrugName)
	assert.Equal(t, "", result.SaltComposition)
	assert.Empty(t, source.fetchedURLs)
}

func TestScraperLookupEmptyQuery(t *testing.T) {
	scraper := newTestScraper(t, &fakeSource{})

	_, err := scraper.Lookup(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestScraperLookupFormWordsOnly(t *testing.T) {
	source := &fakeSource{}
	scraper := newTestScraper(t, source)

	// "tablet" cleans to nothing; that is an empty answer, not a client
	// error, and the site is never contacted.
	result, err := scraper.Lookup(context.Background(), "tablet")
	require.NoError(t, err)
	assert.Equal(t, "tablet", result.DrugName)
	assert.Equal(t, "", result.SaltComposition)
	assert.Empty(t, source.searchedURLs)
}

func TestScraperLookupPreservesCancellation(t *testing.T) {
	wrapped := fmt.Errorf("navigate https://example.com: %w", context.Canceled)
	scraper := newTestScraper(t, &fakeSource{searchErr: wrapped})

	_, err := scraper.Lookup(context.Background(), "dolo 650")
	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScraperLookupPreservesDeadline(t *testing.T) {
	source := &fakeSource{
		searchPages: map[string]string{
			"https://www.apollopharmacy.in/search-medicines/dolo%20650": `<html><body>
				<a href="/otc/dolo-650-tablet">Dolo 650 Tablet</a>
			</body></html>`,
		},
		pageErr: fmt.Errorf("navigate https://example.com: %w", context.DeadlineExceeded),
	}
	scraper := newTestScraper(t, source)

	_, err := scraper.Lookup(context.Background(), "dolo 650")
	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScraperLookupSearchFailure(t *testing.T) {
	source := &fakeSource{searchErr: errors.New("connection refused")}
	scraper := newTestScraper(t, source)

	_, err := scraper.Lookup(context.Background(), "dolo 650")
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestScraperLookupProductFetchFailure(t *testing.T) {
	source := &fakeSource{
		searchPages: map[string]string{
			"https://www.apollopharmacy.in/search-medicines/dolo%20650": `<html><body>
				<a href="/otc/dolo-650-tablet">Dolo 650 Tablet</a>
			</body></html>`,
		},
		pageErr: errors.New("navigation timeout"),
	}
	scraper := newTestScraper(t, source)

	_, err := scraper.Lookup(context.Background(), "dolo 650")
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestScraperLookupFallbackTitle(t *testing.T) {
	productURL := "https://www.apollopharmacy.in/otc/mystery-med"
	source := &fakeSource{
		searchPages: map[string]string{
			"https://www.apollopharmacy.in/search-medicines/mystery": `<html><body>
				<a href="/otc/mystery-med">Mystery</a>
			</body></html>`,
		},
		pages: map[string]string{
			productURL: `<html><body>
				<div id="composition"><p>Unknown Salt (10mg)</p></div>
			</body></html>`,
		},
	}

	scraper := newTestScraper(t, source)
	result, err := scraper.Lookup(context.Background(), "mystery")
	require.NoError(t, err)

	// No DrugHeader block on the page, so the raw query stands in.
	assert.Equal(t, "mystery", result.DrugName)
	assert.Equal(t, "Unknown Salt (10mg)", result.SaltComposition)
}

func TestScraperRejectsRelativeBase(t *testing.T) {
	_, err := New(&fakeSource{}, "not-a-url", logging.NewDevelopment())
	assert.Error(t, err)
}

func TestSearchURL(t *testing.T) {
	scraper := newTestScraper(t, &fakeSource{})
	assert.Equal(t,
		"https://www.apollopharmacy.in/search-medicines/bilypsa%204mg",
		scraper.SearchURL("bilypsa 4mg"),
	)
}
