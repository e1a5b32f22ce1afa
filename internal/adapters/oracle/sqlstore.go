// Package oracle provides Price Oracle implementations: a SQLite price
// history, a CoinMarketCap client that fills it, and a Redis read-through
// cache.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/trendhunter/internal/domain/model"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const defaultMaxStaleness = 15 * time.Minute

// PriceSample is one row of the price_samples table.
type PriceSample struct {
	ID        uint                `gorm:"primaryKey"`
	Token     string              `gorm:"uniqueIndex:idx_token_ts,priority:1;not null"`
	Ts        time.Time           `gorm:"uniqueIndex:idx_token_ts,priority:2;not null"`
	Price     decimal.Decimal     `gorm:"type:text;not null"`
	Currency  string              `gorm:"not null;default:USD"`
	Volume24h decimal.NullDecimal `gorm:"column:volume_24h;type:text"`
	MarketCap decimal.NullDecimal `gorm:"type:text"`
}

// TableName pins the table name.
func (PriceSample) TableName() string { return "price_samples" }

// SQLStore is a Price Oracle over recorded price samples.
type SQLStore struct {
	db           *gorm.DB
	maxStaleness time.Duration
	now          func() time.Time
}

// StoreOption configures a SQLStore.
type StoreOption func(*SQLStore)

// WithMaxStaleness bounds how old the latest sample before ts may be.
func WithMaxStaleness(d time.Duration) StoreOption {
	return func(s *SQLStore) {
		if d > 0 {
			s.maxStaleness = d
		}
	}
}

// WithStoreClock overrides the time source used to reject future lookups.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *SQLStore) {
		if now != nil {
			s.now = now
		}
	}
}

// OpenSQLStore opens (creating if needed) the SQLite database at path and
// migrates the price_samples table. Use ":memory:" for a throwaway store.
func OpenSQLStore(path string, opts ...StoreOption) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open price store %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("price store handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&PriceSample{}); err != nil {
		return nil, fmt.Errorf("migrate price store: %w", err)
	}

	s := &SQLStore{db: db, maxStaleness: defaultMaxStaleness, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record stores one sample, replacing any sample for the same token and ts.
func (s *SQLStore) Record(ctx context.Context, p PriceSample) error {
	return s.RecordBatch(ctx, []PriceSample{p})
}

// RecordBatch stores samples in one transaction.
func (s *SQLStore) RecordBatch(ctx context.Context, samples []PriceSample) error {
	if len(samples) == 0 {
		return nil
	}
	rows := make([]PriceSample, len(samples))
	for i, p := range samples {
		p.ID = 0
		p.Token = model.NormalizeToken(p.Token)
		p.Ts = p.Ts.UTC()
		if p.Currency == "" {
			p.Currency = "USD"
		}
		rows[i] = p
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}, {Name: "ts"}},
		DoUpdates: clause.AssignmentColumns([]string{"price", "currency", "volume_24h", "market_cap"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("record prices: %w", err)
	}
	return nil
}

// PriceAt returns the latest sample at or before ts that is no older than
// the staleness bound. Future timestamps and gaps are unavailable.
func (s *SQLStore) PriceAt(ctx context.Context, token string, ts time.Time) (decimal.Decimal, bool, error) {
	if ts.After(s.now()) {
		return decimal.Zero, false, nil
	}
	ts = ts.UTC()

	var row PriceSample
	err := s.db.WithContext(ctx).
		Where("token = ? AND ts <= ? AND ts >= ?", model.NormalizeToken(token), ts, ts.Add(-s.maxStaleness)).
		Order("ts DESC").
		Take(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return decimal.Zero, false, nil
	case err != nil:
		return decimal.Zero, false, model.Transient("price store lookup", err)
	}
	return row.Price, true, nil
}

// Latest returns the newest sample time for token, or the zero time.
func (s *SQLStore) Latest(ctx context.Context, token string) (time.Time, error) {
	var row PriceSample
	err := s.db.WithContext(ctx).
		Where("token = ?", model.NormalizeToken(token)).
		Order("ts DESC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("latest price: %w", err)
	}
	return row.Ts, nil
}
