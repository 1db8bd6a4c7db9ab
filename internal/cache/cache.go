// Package cache stores successful lookup results for a bounded time so that
// repeat queries skip the browser entirely. Entries are serialized and
// gzip-compressed; keys are hashes of the normalized query.
package cache

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/crypto/blake2b"

	"github.com/pharmakit/composition/internal/scrape"
)

// Config controls cache behavior.
type Config struct {
	TTL        time.Duration
	MaxEntries int
}

// DefaultConfig returns production-ready cache settings.
func DefaultConfig() Config {
	return Config{
		TTL:        15 * time.Minute,
		MaxEntries: 1024,
	}
}

type entry struct {
	compressed []byte
	expires    time.Time
	added      time.Time
}

// Stats reports cache effectiveness for health and metrics endpoints.
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// Cache is a TTL-bounded in-memory result cache.
type Cache struct {
	cfg Config

	mu      sync.Mutex
	entries map[[32]byte]*entry
	hits    int64
	misses  int64
}

// New creates a cache with the given configuration.
func New(cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultConfig().MaxEntries
	}
	return &Cache{
		cfg:     cfg,
		entries: make(map[[32]byte]*entry),
	}
}

// key hashes the normalized query so arbitrary user input never becomes a
// map key directly.
func key(normalizedQuery string) [32]byte {
	return blake2b.Sum256([]byte(normalizedQuery))
}

// Get returns the cached result for a normalized query, or false on miss or
// expiry.
func (c *Cache) Get(normalizedQuery string) (*scrape.Result, bool) {
	k := key(normalizedQuery)

	c.mu.Lock()
	e, ok := c.entries[k]
	if ok && time.Now().After(e.expires) {
		delete(c.entries, k)
		ok = false
	}
	if !ok {
		c.misses++
		c.mu.Unlock()
		return nil, false
	}
	c.hits++
	compressed := e.compressed
	c.mu.Unlock()

	result, err := decode(compressed)
	if err != nil {
		// Corrupt entry; drop it and treat as a miss.
		c.mu.Lock()
		delete(c.entries, k)
		c.mu.Unlock()
		return nil, false
	}
	return result, true
}

// Put stores a result under the normalized query. Empty compositions are not
// cached: the upstream layout may simply not have rendered yet.
func (c *Cache) Put(normalizedQuery string, result *scrape.Result) {
	if result == nil || result.SaltComposition == "" {
		return
	}

	compressed, err := encode(result)
	if err != nil {
		return
	}

	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.cfg.MaxEntries {
		c.evictLocked(now)
	}
	c.entries[key(normalizedQuery)] = &entry{
		compressed: compressed,
		expires:    now.Add(c.cfg.TTL),
		added:      now,
	}
}

// evictLocked removes expired entries, then the oldest entries until the
// cache is under capacity. Callers hold c.mu.
func (c *Cache) evictLocked(now time.Time) {
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
	for len(c.entries) >= c.cfg.MaxEntries {
		var oldestKey [32]byte
		var oldest time.Time
		first := true
		for k, e := range c.entries {
			if first || e.added.Before(oldest) {
				oldestKey, oldest = k, e.added
				first = false
			}
		}
		delete(c.entries, oldestKey)
	}
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries: len(c.entries),
		Hits:    c.hits,
		Misses:  c.misses,
	}
}

func encode(result *scrape.Result) ([]byte, error) {
	raw, err := sonic.Marshal(result)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(compressed []byte) (*scrape.Result, error) {
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}

	var result scrape.Result
	if err := sonic.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
