package service

import (
	"context"
	"time"

	"github.com/okian/trendhunter/internal/config"
	"github.com/okian/trendhunter/internal/domain/model"
	"github.com/okian/trendhunter/pkg/logger"
)

// PriceSyncFunc refreshes stored prices between start and end and reports
// how many samples it wrote.
type PriceSyncFunc func(ctx context.Context, start, end time.Time) (int, error)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets every tunable from cfg.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			c := *cfg
			s.cfg = &c
		}
	}
}

// WithWorkerCount sets the number of verification workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.cfg.WorkerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the verification job queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.cfg.QueueSize = size
		}
	}
}

// WithDedupeSize sets the size of the sentiment fingerprint cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.cfg.DedupeSize = size
		}
	}
}

// WithFeeds sets the Sentiment Source of each platform.
func WithFeeds(feeds map[model.SourceType]model.SentimentSource) Option {
	return func(s *Service) {
		s.feeds = feeds
	}
}

// WithTargets sets the identifiers polled on each platform.
func WithTargets(targets map[model.SourceType][]string) Option {
	return func(s *Service) {
		s.targets = targets
	}
}

// WithOracle sets the Price Oracle.
func WithOracle(o model.PriceOracle) Option {
	return func(s *Service) {
		s.oracle = o
	}
}

// WithVenue sets the Execution Venue.
func WithVenue(v model.ExecutionVenue) Option {
	return func(s *Service) {
		s.venue = v
	}
}

// WithPriceSync enables the periodic price refresh.
func WithPriceSync(fn PriceSyncFunc) Option {
	return func(s *Service) {
		s.priceSync = fn
	}
}

// WithClock overrides the time source of every component.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
