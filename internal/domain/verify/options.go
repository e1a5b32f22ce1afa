package verify

import (
	"time"

	"github.com/okian/trendhunter/internal/domain/scoring"
	"github.com/okian/trendhunter/pkg/logger"
)

// Option applies a configuration option to the Verifier.
type Option func(*Verifier)

// WithScorer sets the correctness rule.
func WithScorer(s scoring.Scorer) Option {
	return func(v *Verifier) {
		if s != nil {
			v.scorer = s
		}
	}
}

// WithHorizon sets the maturation window after assertion.
func WithHorizon(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.horizon = d
		}
	}
}

// WithMaxRetries sets how many oracle failures past the horizon are tolerated
// before an observation is closed as unknowable.
func WithMaxRetries(n int) Option {
	return func(v *Verifier) {
		if n >= 0 {
			v.maxRetries = n
		}
	}
}

// WithUnavailableGiveUp closes an observation as unknowable once its price has
// been unavailable for d. Zero waits forever.
func WithUnavailableGiveUp(d time.Duration) Option {
	return func(v *Verifier) {
		if d >= 0 {
			v.giveUp = d
		}
	}
}

// WithOracleTimeout bounds each oracle call.
func WithOracleTimeout(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.oracleTimeout = d
		}
	}
}

// WithParallelism bounds concurrent oracle calls within one pass.
func WithParallelism(n int) Option {
	return func(v *Verifier) {
		if n > 0 {
			v.parallelism = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(v *Verifier) {
		if l != nil {
			v.log = l
		}
	}
}
