package ingest

import (
	"strings"
	"time"

	"github.com/okian/trendhunter/internal/domain/dedupe"
	"github.com/okian/trendhunter/internal/domain/model"
	"github.com/okian/trendhunter/pkg/logger"
)

// Option applies a configuration option to the FanOut.
type Option func(*FanOut)

// WithConcurrency sets per-platform limits on simultaneous Fetch calls,
// keyed by platform name.
func WithConcurrency(limits map[string]int) Option {
	return func(f *FanOut) {
		for name, n := range limits {
			if n > 0 {
				f.limits[strings.ToLower(name)] = n
			}
		}
	}
}

// WithDefaultConcurrency sets the limit for platforms without their own.
func WithDefaultConcurrency(n int) Option {
	return func(f *FanOut) {
		if n > 0 {
			f.defaultLimit = n
		}
	}
}

// WithCallTimeout bounds each Fetch call.
func WithCallTimeout(d time.Duration) Option {
	return func(f *FanOut) {
		if d > 0 {
			f.callTimeout = d
		}
	}
}

// WithPriceOracle fills price_at_observation best-effort on ingest.
func WithPriceOracle(o model.PriceOracle) Option {
	return func(f *FanOut) {
		f.oracle = o
	}
}

// WithDeduper replaces the sentiment fingerprint deduper.
func WithDeduper(d dedupe.Deduper) Option {
	return func(f *FanOut) {
		if d != nil {
			f.seen = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(f *FanOut) {
		if now != nil {
			f.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(f *FanOut) {
		if l != nil {
			f.log = l
		}
	}
}
