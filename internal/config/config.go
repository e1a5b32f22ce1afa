// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers defaults, an optional YAML file and the environment.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the verification job queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of verification workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize sets the size of the sentiment fingerprint cache.
	DedupeSize int `koanf:"dedupe_size"`

	// Pass intervals.
	IngestInterval time.Duration `koanf:"ingest_interval"`
	VerifyInterval time.Duration `koanf:"verify_interval"`
	DecideInterval time.Duration `koanf:"decide_interval"`

	// CallTimeout bounds each sentiment fetch.
	CallTimeout time.Duration `koanf:"call_timeout"`
	// OracleTimeout bounds each price lookup.
	OracleTimeout time.Duration `koanf:"oracle_timeout"`

	// Verification.
	VerificationHorizon    time.Duration `koanf:"verification_horizon"`
	ReturnNormalization    float64       `koanf:"return_normalization"`
	MaxVerificationRetries int           `koanf:"max_verification_retries"`
	UnavailableGiveUp      time.Duration `koanf:"unavailable_give_up"`
	AutoIncorrectTypes     []string      `koanf:"auto_incorrect_types"`

	// Trust.
	EWMAAlpha float64 `koanf:"ewma_alpha"`

	// Decision.
	BuyThreshold    float64       `koanf:"buy_threshold"`
	MinTrustFloor   float64       `koanf:"min_trust_floor"`
	SellUpperBound  float64       `koanf:"sell_upper_bound"`
	SellLowerBound  float64       `koanf:"sell_lower_bound"`
	SignalWindow    time.Duration `koanf:"signal_window"`
	InvestSize      float64       `koanf:"invest_size"`
	Wallet          string        `koanf:"wallet"`
	ReentryCooldown time.Duration `koanf:"reentry_cooldown"`

	// Ingestion.
	PlatformConcurrency map[string]int      `koanf:"platform_concurrency"`
	DefaultConcurrency  int                 `koanf:"default_concurrency"`
	Sources             map[string][]string `koanf:"sources"`
	FeedURLs            map[string]string   `koanf:"feed_urls"`

	// Price data.
	PriceDBPath       string        `koanf:"price_db_path"`
	RedisAddr         string        `koanf:"redis_addr"`
	PriceCacheTTL     time.Duration `koanf:"price_cache_ttl"`
	PriceCacheBucket  time.Duration `koanf:"price_cache_bucket"`
	CMCBaseURL        string        `koanf:"cmc_base_url"`
	CMCAPIKey         string        `koanf:"cmc_api_key"`
	CMCSymbols        []string      `koanf:"cmc_symbols"`
	PriceSyncInterval time.Duration `koanf:"price_sync_interval"`

	// PaperBalance seeds the paper venue quote balance.
	PaperBalance float64 `koanf:"paper_balance"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":9080",
		QueueSize:              10_000,
		WorkerCount:            runtime.NumCPU() * 2,
		DedupeSize:             100_000,
		IngestInterval:         5 * time.Minute,
		VerifyInterval:         10 * time.Minute,
		DecideInterval:         time.Minute,
		CallTimeout:            20 * time.Second,
		OracleTimeout:          10 * time.Second,
		VerificationHorizon:    24 * time.Hour,
		ReturnNormalization:    0.10,
		MaxVerificationRetries: 5,
		EWMAAlpha:              0.1,
		BuyThreshold:           1.0,
		MinTrustFloor:          0.5,
		SellUpperBound:         1.0,
		SellLowerBound:         0.5,
		SignalWindow:           6 * time.Hour,
		InvestSize:             100,
		Wallet:                 "main",
		PlatformConcurrency:    map[string]int{},
		DefaultConcurrency:     4,
		Sources:                map[string][]string{},
		FeedURLs:               map[string]string{},
		PriceDBPath:            "",
		PriceCacheTTL:          time.Hour,
		PriceCacheBucket:       time.Minute,
		CMCBaseURL:             "https://pro-api.coinmarketcap.com",
		PriceSyncInterval:      time.Hour,
		PaperBalance:           10_000,
	}
}

// ConcurrencyFor returns the fan-out limit for platform.
func (c *Config) ConcurrencyFor(platform string) int {
	if n, ok := c.PlatformConcurrency[strings.ToLower(platform)]; ok && n > 0 {
		return n
	}
	return c.DefaultConcurrency
}

// Validate checks value ranges and returns an ErrInvalidConfig-wrapped error.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.DedupeSize <= 0:
		return fmt.Errorf("%w: dedupe_size must be positive", ErrInvalidConfig)
	case c.IngestInterval <= 0 || c.VerifyInterval <= 0 || c.DecideInterval <= 0:
		return fmt.Errorf("%w: pass intervals must be positive", ErrInvalidConfig)
	case c.CallTimeout <= 0 || c.OracleTimeout <= 0:
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	case c.VerificationHorizon <= 0:
		return fmt.Errorf("%w: verification_horizon must be positive", ErrInvalidConfig)
	case c.ReturnNormalization <= 0:
		return fmt.Errorf("%w: return_normalization must be positive", ErrInvalidConfig)
	case c.EWMAAlpha <= 0 || c.EWMAAlpha > 1:
		return fmt.Errorf("%w: ewma_alpha must be in (0,1]", ErrInvalidConfig)
	case c.MinTrustFloor < 0 || c.MinTrustFloor > 1:
		return fmt.Errorf("%w: min_trust_floor must be in [0,1]", ErrInvalidConfig)
	case c.SellUpperBound <= 0:
		return fmt.Errorf("%w: sell_upper_bound must be positive", ErrInvalidConfig)
	case c.SellLowerBound <= 0 || c.SellLowerBound >= 1:
		return fmt.Errorf("%w: sell_lower_bound must be in (0,1)", ErrInvalidConfig)
	case c.MaxVerificationRetries < 0:
		return fmt.Errorf("%w: max_verification_retries must not be negative", ErrInvalidConfig)
	case c.InvestSize <= 0:
		return fmt.Errorf("%w: invest_size must be positive", ErrInvalidConfig)
	case c.DefaultConcurrency <= 0:
		return fmt.Errorf("%w: default_concurrency must be positive", ErrInvalidConfig)
	case c.SignalWindow <= 0:
		return fmt.Errorf("%w: signal_window must be positive", ErrInvalidConfig)
	}
	for platform, n := range c.PlatformConcurrency {
		if n <= 0 {
			return fmt.Errorf("%w: platform_concurrency[%s] must be positive", ErrInvalidConfig, platform)
		}
	}
	for platform := range c.Sources {
		if _, ok := c.FeedURLs[platform]; !ok {
			return fmt.Errorf("%w: sources[%s] has no feed_urls entry", ErrInvalidConfig, platform)
		}
	}
	return nil
}
