package repository

import "time"

// Option applies a configuration option to the TreapBoard.
type Option func(*TreapBoard)

// WithSnapshotInterval sets how often a changed board is re-snapshotted.
func WithSnapshotInterval(interval time.Duration) Option {
	return func(b *TreapBoard) {
		if interval > 0 {
			b.snapshotInterval = interval
		}
	}
}

// WithTopCacheSize sets how many rows the snapshot keeps for TopN.
func WithTopCacheSize(n int) Option {
	return func(b *TreapBoard) {
		if n > 0 {
			b.topCacheSize = n
		}
	}
}
