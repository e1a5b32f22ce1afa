// Package scoring turns a realized price move into a correctness score.
package scoring

import (
	"errors"
	"fmt"
	"math"

	"github.com/okian/trendhunter/internal/domain/model"
	"github.com/shopspring/decimal"
)

// Default scoring configuration constants.
const (
	defaultNormalization = 0.10
	neutralScore         = 0.5
)

// ErrInvalidPrice is returned when the reference price is not positive.
var ErrInvalidPrice = errors.New("reference price must be positive")

// Option applies a configuration option to the Rule.
type Option func(*Rule)

// WithNormalization sets k, the return at which a call is fully right or wrong.
func WithNormalization(k float64) Option {
	return func(r *Rule) {
		if k > 0 {
			r.k = k
		}
	}
}

// WithAutoIncorrectTypes scores every matured observation of these types 0.0.
func WithAutoIncorrectTypes(types ...model.SourceType) Option {
	return func(r *Rule) {
		for _, t := range types {
			r.autoIncorrect[t] = true
		}
	}
}

// Input is a matured prediction with both reference prices.
type Input struct {
	Action    model.Action
	PriceThen decimal.Decimal
	PriceNow  decimal.Decimal
}

// Result is the verdict of one prediction. Intensity is |Directional|.
type Result struct {
	Return      float64
	Directional float64
	Intensity   float64
	Score       float64
}

// Scorer computes a correctness verdict.
type Scorer interface {
	Score(in Input) (Result, error)
	AutoIncorrect(t model.SourceType) bool
}

// Rule implements Scorer with score = clamp(0.5 + directional/(2k), 0, 1).
type Rule struct {
	k             float64
	autoIncorrect map[model.SourceType]bool
}

// NewRule creates a scoring rule with configuration options.
func NewRule(opts ...Option) *Rule {
	r := &Rule{
		k:             defaultNormalization,
		autoIncorrect: make(map[model.SourceType]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// K returns the normalization constant.
func (r *Rule) K() float64 { return r.k }

// Score computes the verdict for in.
func (r *Rule) Score(in Input) (Result, error) {
	if !in.PriceThen.IsPositive() {
		return Result{}, fmt.Errorf("%w: %s", ErrInvalidPrice, in.PriceThen)
	}
	ret := in.PriceNow.Sub(in.PriceThen).Div(in.PriceThen).InexactFloat64()
	directional := ret * in.Action.Sign()
	return Result{
		Return:      ret,
		Directional: directional,
		Intensity:   math.Abs(directional),
		Score:       r.Correctness(directional),
	}, nil
}

// Correctness maps a directional return to [0,1].
func (r *Rule) Correctness(directional float64) float64 {
	return math.Max(0, math.Min(1, neutralScore+directional/(2*r.k)))
}

// AutoIncorrect reports whether observations of t skip the oracle and score 0.
func (r *Rule) AutoIncorrect(t model.SourceType) bool {
	return r.autoIncorrect[t]
}
