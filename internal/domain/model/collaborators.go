package model

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SentimentSource fetches the sentiments one identifier asserted after since.
// Failures are *ExternalError values of kind transient or permanent.
type SentimentSource interface {
	Fetch(ctx context.Context, identifier string, since time.Time) ([]Sentiment, error)
}

// PriceOracle returns the price of token at ts. ok is false when no price is
// available yet, which is not an error.
type PriceOracle interface {
	PriceAt(ctx context.Context, token string, ts time.Time) (price decimal.Decimal, ok bool, err error)
}

// ExecutionVenue carries out intents. A refusal is a Receipt with Accepted
// false; an error means the venue could not be reached.
type ExecutionVenue interface {
	Submit(ctx context.Context, intent Intent) (Receipt, error)
}
