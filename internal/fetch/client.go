// Package fetch provides the static HTTP page source: a resty client on a
// retrying transport, guarded by a circuit breaker and an outbound rate
// limiter. It serves as the fallback when headless Chrome is unavailable.
package fetch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/pharmakit/composition/internal/resilience"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// browserHeaders mimic a real browser so the pharmacy site serves the full page.
var browserHeaders = map[string]string{
	"User-Agent":      userAgent,
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
	"Connection":      "keep-alive",
}

// Client wraps resty with retry, circuit breaker, and rate limiting.
type Client struct {
	resty   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
}

// Options configures the fetch client.
type Options struct {
	Timeout      time.Duration
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	RPS          float64
}

// DefaultOptions returns production-ready fetch options.
func DefaultOptions() Options {
	return Options{
		Timeout:      30 * time.Second,
		MaxRetries:   3,
		RetryWaitMin: 1 * time.Second,
		RetryWaitMax: 15 * time.Second,
		RPS:          2,
	}
}

// NewClient creates a fetch client with the given options.
func NewClient(opts Options) *Client {
	if opts.RetryWaitMin <= 0 {
		opts.RetryWaitMin = DefaultOptions().RetryWaitMin
	}
	if opts.RetryWaitMax < opts.RetryWaitMin {
		opts.RetryWaitMax = opts.RetryWaitMin
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.MaxRetries
	retryClient.RetryWaitMin = opts.RetryWaitMin
	retryClient.RetryWaitMax = opts.RetryWaitMax
	retryClient.Logger = nil

	// The retry loop lives in retryablehttp's RoundTripper; handing resty the
	// inner transport would skip it.
	restyClient := resty.New().
		SetTimeout(opts.Timeout).
		SetTransport(&retryablehttp.RoundTripper{Client: retryClient})
	for k, v := range browserHeaders {
		restyClient.SetHeader(k, v)
	}

	breaker := resilience.New("pharmacy-site", resilience.Settings{
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RPS), 1)
	}

	return &Client{
		resty:   restyClient,
		limiter: limiter,
		breaker: breaker,
	}
}

// BreakerState reports the circuit breaker state for health checks.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

// FetchSearch fetches a search results page. Static fetching cannot wait for
// client-side rendering, so the raw response body is returned as-is.
func (c *Client) FetchSearch(ctx context.Context, pageURL string) (string, error) {
	return c.fetch(ctx, pageURL)
}

// FetchPage fetches a product page.
func (c *Client) FetchPage(ctx context.Context, pageURL string) (string, error) {
	return c.fetch(ctx, pageURL)
}

func (c *Client) fetch(ctx context.Context, pageURL string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	var body string
	err := c.breaker.Do(func() error {
		resp, err := c.resty.R().SetContext(ctx).Get(pageURL)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		status := resp.StatusCode()
		if status < 200 || status >= 400 {
			return fmt.Errorf("HTTP %d from %s", status, pageURL)
		}

		raw := resp.Body()
		if len(raw) == 0 {
			return fmt.Errorf("empty response body from %s", pageURL)
		}
		if !isHTML(resp.Header().Get("Content-Type"), raw) {
			return fmt.Errorf("non-HTML response from %s", pageURL)
		}

		body = resp.String()
		return nil
	})
	if err != nil {
		return "", err
	}
	return body, nil
}

// isHTML accepts a response as parseable when either the declared or the
// sniffed content type is HTML. Some CDN error pages declare text/html but
// serve binary junk, so sniff when the header is absent or generic.
func isHTML(declared string, body []byte) bool {
	if strings.Contains(strings.ToLower(declared), "html") {
		return true
	}
	detected := mimetype.Detect(body)
	return detected.Is("text/html") || strings.Contains(detected.String(), "xml")
}
