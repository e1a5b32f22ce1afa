// Package repository holds the source registry and the trust board that
// ranks sources by trusted score.
package repository

import (
	"context"
	"time"
)

// Entry is one row of the trust board.
type Entry struct {
	Rank               int
	SourceKey          string
	Platform           string
	TrustedScore       float64
	Correctness        float64
	CorrectIntensity   float64
	IncorrectIntensity float64
	Impact             float64
	Verified           int
	Observations       int
	LastVerifiedIndex  int
	UpdatedAt          time.Time
}

// Board ranks sources by trusted score DESC, then key ASC. Ranks are dense:
// equal scores share a rank and the next score gets the next integer.
type Board interface {
	// Upsert inserts or replaces the row of e.SourceKey.
	Upsert(ctx context.Context, e Entry) error

	// Rank returns the row and rank of key, or ErrNotFound.
	Rank(ctx context.Context, key string) (Entry, error)

	// TopN returns the best n rows.
	TopN(ctx context.Context, n int) ([]Entry, error)

	// Count returns the number of ranked sources.
	Count(ctx context.Context) int
}
