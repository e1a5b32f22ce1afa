package decision

import (
	"time"

	"github.com/okian/trendhunter/pkg/logger"
	"github.com/shopspring/decimal"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithBuyThreshold sets the trust-weighted signal a token must exceed.
func WithBuyThreshold(v float64) Option {
	return func(e *Engine) { e.buyThreshold = v }
}

// WithMinTrustFloor sets the minimum mean trust of the contributing sources.
func WithMinTrustFloor(v float64) Option {
	return func(e *Engine) {
		if v >= 0 && v <= 1 {
			e.minTrustFloor = v
		}
	}
}

// WithSellBounds sets the take-profit and stop-loss fractions of entry price.
func WithSellBounds(upper, lower float64) Option {
	return func(e *Engine) {
		if upper > 0 {
			e.upper = decimal.NewFromFloat(upper)
		}
		if lower > 0 && lower < 1 {
			e.lower = decimal.NewFromFloat(lower)
		}
	}
}

// WithInvestSize sets the quote amount spent on each entry.
func WithInvestSize(v float64) Option {
	return func(e *Engine) {
		if v > 0 {
			e.investSize = decimal.NewFromFloat(v)
		}
	}
}

// WithWallet sets the wallet named on intents.
func WithWallet(w string) Option {
	return func(e *Engine) {
		if w != "" {
			e.wallet = w
		}
	}
}

// WithSignalWindow sets how far back observations count toward a signal.
func WithSignalWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.window = d
		}
	}
}

// WithReentryCooldown delays re-entry into a token after a full exit.
func WithReentryCooldown(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.cooldown = d
		}
	}
}

// WithOracleTimeout bounds each price lookup.
func WithOracleTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.oracleTimeout = d
		}
	}
}

// WithTransitionLog sets how many transitions are kept for reporting.
func WithTransitionLog(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.logSize = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}
