// Package browser drives headless Chrome through chromedp. A single browser
// process hosts a bounded pool of tabs; tabs are reused across requests and
// recycled when a navigation times out or fails, so a hung renderer never
// wedges a pool slot.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/pharmakit/composition/internal/logging"
	"github.com/pharmakit/composition/internal/monitoring"
)

// ErrPoolClosed is returned when fetching through a closed pool.
var ErrPoolClosed = errors.New("browser pool is closed")

// Config controls the Chrome process and tab pool.
type Config struct {
	PoolSize    int
	NavTimeout  time.Duration
	WaitTimeout time.Duration // how long to wait for product links to appear
	ExecPath    string        // optional explicit Chrome binary path
	UserDataDir string
}

// DefaultConfig returns a production-ready pool configuration.
func DefaultConfig() Config {
	return Config{
		PoolSize:    4,
		NavTimeout:  25 * time.Second,
		WaitTimeout: 10 * time.Second,
	}
}

// tab is a reusable Chrome tab context.
type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Pool manages a shared Chrome process and its tabs.
type Pool struct {
	cfg     Config
	metrics *monitoring.Metrics // nil disables gauge updates
	logger  *logging.Logger

	mu          sync.Mutex
	started     bool
	closed      bool
	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserStop context.CancelFunc
	tabs        chan *tab
	inUse       int
}

// NewPool creates a pool. Chrome is not launched until the first fetch, so
// the service starts promptly even when the binary is missing.
func NewPool(cfg Config, metrics *monitoring.Metrics, logger *logging.Logger) *Pool {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultConfig().PoolSize
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = DefaultConfig().NavTimeout
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = DefaultConfig().WaitTimeout
	}
	return &Pool{
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.Named("browser"),
	}
}

// start launches Chrome and fills the tab pool. Callers hold p.mu.
func (p *Pool) start() error {
	if p.closed {
		return ErrPoolClosed
	}
	if p.started {
		return nil
	}

	// Same flags the service has always run Chrome with in containers.
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("log-level", "3"),
	)
	if p.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(p.cfg.ExecPath))
	}
	if p.cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(p.cfg.UserDataDir))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserStop := chromedp.NewContext(allocCtx)

	// Launch the process eagerly so a missing binary surfaces here.
	if err := chromedp.Run(browserCtx); err != nil {
		browserStop()
		allocCancel()
		return fmt.Errorf("failed to launch chrome: %w", err)
	}

	p.allocCancel = allocCancel
	p.browserCtx = browserCtx
	p.browserStop = browserStop
	p.tabs = make(chan *tab, p.cfg.PoolSize)
	for i := 0; i < p.cfg.PoolSize; i++ {
		p.tabs <- p.newTab()
	}
	p.started = true
	p.logger.Info("chrome launched", zap.Int("pool_size", p.cfg.PoolSize))
	return nil
}

func (p *Pool) newTab() *tab {
	ctx, cancel := chromedp.NewContext(p.browserCtx)
	return &tab{ctx: ctx, cancel: cancel}
}

// acquire blocks until a tab is free or ctx is done.
func (p *Pool) acquire(ctx context.Context) (*tab, error) {
	p.mu.Lock()
	if err := p.start(); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	tabs := p.tabs
	p.mu.Unlock()

	select {
	case t, ok := <-tabs:
		// Close closes the channel, so a waiter can receive a zero value.
		if !ok || t == nil {
			return nil, ErrPoolClosed
		}
		p.mu.Lock()
		p.inUse++
		p.updateGaugeLocked()
		p.mu.Unlock()
		return t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// updateGaugeLocked publishes the in-use tab count. Callers hold p.mu.
func (p *Pool) updateGaugeLocked() {
	if p.metrics != nil {
		p.metrics.BrowserTabsInUse.Set(float64(p.inUse))
	}
}

// release returns a tab to the pool, replacing it with a fresh one when the
// last navigation failed.
func (p *Pool) release(t *tab, recycle bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inUse--
	p.updateGaugeLocked()
	if p.closed {
		t.cancel()
		return
	}
	if recycle {
		t.cancel()
		t = p.newTab()
	}
	p.tabs <- t
}

// FetchSearch navigates to a search results page, waits for product links to
// render, and returns the live DOM. A rendering wait that times out is not
// an error: whatever is present gets scraped.
func (p *Pool) FetchSearch(ctx context.Context, pageURL string) (string, error) {
	return p.fetch(ctx, pageURL, p.waitForProducts())
}

// FetchPage navigates to a product page and returns the rendered DOM.
func (p *Pool) FetchPage(ctx context.Context, pageURL string) (string, error) {
	return p.fetch(ctx, pageURL, chromedp.WaitReady("body", chromedp.ByQuery))
}

func (p *Pool) fetch(ctx context.Context, pageURL string, wait chromedp.Action) (string, error) {
	t, err := p.acquire(ctx)
	if err != nil {
		return "", err
	}

	navCtx, cancel := context.WithTimeout(t.ctx, p.cfg.NavTimeout)
	defer cancel()

	// Propagate caller cancellation into the tab context.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var htmlStr string
	err = chromedp.Run(navCtx,
		chromedp.Navigate(pageURL),
		wait,
		chromedp.OuterHTML("html", &htmlStr),
	)
	if err != nil {
		p.logger.Warn("navigation failed, recycling tab",
			zap.String("url", pageURL),
			zap.Error(err),
		)
		p.release(t, true)
		return "", fmt.Errorf("navigate %s: %w", pageURL, err)
	}

	p.release(t, false)
	return htmlStr, nil
}

// waitForProducts polls for product anchors, giving the SPA time to render
// search results. On timeout it returns nil so the caller scrapes whatever
// the page currently shows.
func (p *Pool) waitForProducts() chromedp.Action {
	const expr = `document.querySelector('a[href*="/otc/"], a[href*="/medicine/"]') !== null`
	timeout := p.cfg.WaitTimeout
	logger := p.logger
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var found bool
		err := chromedp.Poll(expr, &found, chromedp.WithPollingTimeout(timeout)).Do(ctx)
		if errors.Is(err, chromedp.ErrPollingTimeout) {
			logger.Info("timed out waiting for product links, scraping current DOM")
			return nil
		}
		return err
	})
}

// Status describes the pool for health reporting.
type Status struct {
	Running  bool `json:"running"`
	PoolSize int  `json:"pool_size"`
	InUse    int  `json:"in_use"`
}

// Status returns a snapshot of the pool state.
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		Running:  p.started && !p.closed,
		PoolSize: p.cfg.PoolSize,
		InUse:    p.inUse,
	}
}

// Close shuts down all tabs and the Chrome process.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if !p.started {
		return nil
	}

	close(p.tabs)
	for t := range p.tabs {
		t.cancel()
	}
	p.browserStop()
	p.allocCancel()
	p.logger.Info("chrome shut down")
	return nil
}
