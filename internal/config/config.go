package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Browser   BrowserConfig   `yaml:"browser"`
	Scrape    ScrapeConfig    `yaml:"scrape"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LogConfig       `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" yaml:"port"`
	Host            string        `envconfig:"HOST" yaml:"host"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" yaml:"shutdown_timeout"`
}

// BrowserConfig holds headless Chrome configuration.
type BrowserConfig struct {
	Enabled     bool          `envconfig:"BROWSER_ENABLED" yaml:"enabled"`
	PoolSize    int           `envconfig:"BROWSER_POOL_SIZE" yaml:"pool_size"`
	NavTimeout  time.Duration `envconfig:"BROWSER_NAV_TIMEOUT" yaml:"nav_timeout"`
	ExecPath    string        `envconfig:"BROWSER_EXEC_PATH" yaml:"exec_path"`
	UserDataDir string        `envconfig:"BROWSER_USER_DATA_DIR" yaml:"user_data_dir"`
}

// ScrapeConfig holds upstream pharmacy site configuration.
type ScrapeConfig struct {
	BaseURL     string        `envconfig:"SCRAPE_BASE_URL" yaml:"base_url"`
	WaitTimeout time.Duration `envconfig:"SCRAPE_WAIT_TIMEOUT" yaml:"wait_timeout"`
	FetchRPS    float64       `envconfig:"SCRAPE_FETCH_RPS" yaml:"fetch_rps"`
}

// CacheConfig holds result cache configuration.
type CacheConfig struct {
	Enabled    bool          `envconfig:"CACHE_ENABLED" yaml:"enabled"`
	TTL        time.Duration `envconfig:"CACHE_TTL" yaml:"ttl"`
	MaxEntries int           `envconfig:"CACHE_MAX_ENTRIES" yaml:"max_entries"`
}

// RateLimitConfig holds inbound rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" yaml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" yaml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" yaml:"enabled"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" yaml:"development"`
}

// Load builds configuration in three layers: defaults, then the optional
// YAML file named by CONFIG_FILE, then environment variables. Fields carry
// no envconfig defaults so an unset variable never clobbers a file value.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads configuration or falls back to defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "5000",
			Host:            "0.0.0.0",
			ShutdownTimeout: 15 * time.Second,
		},
		Browser: BrowserConfig{
			Enabled:    true,
			PoolSize:   4,
			NavTimeout: 25 * time.Second,
		},
		Scrape: ScrapeConfig{
			BaseURL:     "https://www.apollopharmacy.in",
			WaitTimeout: 10 * time.Second,
			FetchRPS:    2,
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTL:        15 * time.Minute,
			MaxEntries: 1024,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             20,
			Enabled:           true,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}
