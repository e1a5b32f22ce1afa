package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sentiment is one opinion produced by a Sentiment Source. It is consumed
// once to build an Observation.
type Sentiment struct {
	SourceLabel  string
	TokenSymbol  string
	TokenAddress string
	Action       Action
	AssertedAt   time.Time
}

// Token returns the normalized token symbol.
func (s Sentiment) Token() string {
	return NormalizeToken(s.TokenSymbol)
}

// Fingerprint identifies a sentiment from sourceKey for duplicate detection.
func (s Sentiment) Fingerprint(sourceKey string) string {
	return sourceKey + "|" + s.Token() + "|" + s.Action.String() + "|" + s.AssertedAt.UTC().Format(time.RFC3339Nano)
}

// NormalizeToken upper-cases a symbol and strips a leading "$" cashtag.
func NormalizeToken(symbol string) string {
	return strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(symbol), "$"))
}

// Observation is a timestamped prediction held by its Source.
type Observation struct {
	ID                 string
	SourceType         SourceType
	ObservedAt         time.Time
	AssertedAt         time.Time
	TokenSymbol        string
	TokenAddress       string
	PredictedAction    Action
	PriceAtObservation decimal.NullDecimal

	Checked          CheckedState
	CorrectnessScore float64
	// Unknowable marks a CHECKED entry that exhausted its retries.
	Unknowable bool
	// Retries counts oracle failures once the horizon has passed.
	Retries int
	// DeferredSince is when the entry first became CANNOT_CHECK_YET.
	DeferredSince time.Time
}

// NewObservation builds an UNCHECKED observation from a sentiment.
func NewObservation(t SourceType, s Sentiment, now time.Time) Observation {
	return Observation{
		ID:              uuid.NewString(),
		SourceType:      t,
		ObservedAt:      now,
		AssertedAt:      s.AssertedAt,
		TokenSymbol:     s.Token(),
		TokenAddress:    s.TokenAddress,
		PredictedAction: s.Action,
		Checked:         Unchecked,
	}
}

// Matured reports whether the verification horizon has elapsed at now.
func (o Observation) Matured(now time.Time, horizon time.Duration) bool {
	return !now.Before(o.AssertedAt.Add(horizon))
}
