// Package trust folds verification verdicts into a source's reputation.
package trust

import (
	"math"

	"github.com/okian/trendhunter/internal/domain/model"
)

const (
	defaultAlpha         = 0.1
	defaultNormalization = 0.10
)

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithAlpha sets the EWMA smoothing factor in (0,1].
func WithAlpha(alpha float64) Option {
	return func(a *Aggregator) {
		if alpha > 0 && alpha <= 1 {
			a.alpha = alpha
		}
	}
}

// WithImpactNormalization sets the move size that counts as full impact.
func WithImpactNormalization(k float64) Option {
	return func(a *Aggregator) {
		if k > 0 {
			a.k = k
		}
	}
}

// Aggregator maintains the four reputation moving averages and the composite
// trusted score.
type Aggregator struct {
	alpha float64
	k     float64
}

// NewAggregator creates an aggregator with configuration options.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{alpha: defaultAlpha, k: defaultNormalization}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply folds verdicts into src's scores under the source lock and returns
// the result.
func (a *Aggregator) Apply(src *model.Source, verdicts []model.Verdict) model.Scores {
	if len(verdicts) == 0 {
		return src.Scores()
	}
	return src.UpdateScores(func(sc model.Scores) model.Scores {
		return a.Fold(sc, verdicts)
	})
}

// Fold returns sc updated with verdicts in order. Unknowable verdicts carry no
// evidence and are skipped.
func (a *Aggregator) Fold(sc model.Scores, verdicts []model.Verdict) model.Scores {
	for _, v := range verdicts {
		if v.Unknowable {
			continue
		}
		sc.Correctness = a.ewma(sc.Correctness, v.Score, sc.Samples)
		sc.Impact = a.ewma(sc.Impact, math.Min(v.Intensity/a.k, 1), sc.Samples)
		sc.Samples++

		switch {
		case v.Score > 0.5:
			sc.CorrectIntensity = a.ewma(sc.CorrectIntensity, v.Intensity, sc.CorrectSamples)
			sc.CorrectSamples++
		case v.Score < 0.5:
			sc.IncorrectIntensity = a.ewma(sc.IncorrectIntensity, v.Intensity, sc.IncorrectSamples)
			sc.IncorrectSamples++
		}
	}
	sc.Trusted = Composite(sc)
	return sc
}

// Composite is correctness * (1 + correct - incorrect) * impact in [0,1], or
// the neutral prior when nothing was verified.
func Composite(sc model.Scores) float64 {
	if sc.Samples == 0 {
		return model.NeutralTrust
	}
	v := sc.Correctness * (1 + sc.CorrectIntensity - sc.IncorrectIntensity) * sc.Impact
	return math.Max(0, math.Min(1, v))
}

// The first sample seeds the average.
func (a *Aggregator) ewma(prev, x float64, n int) float64 {
	if n == 0 {
		return x
	}
	return a.alpha*x + (1-a.alpha)*prev
}
