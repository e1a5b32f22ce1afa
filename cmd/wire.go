package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/okian/trendhunter/internal/adapters/oracle"
	"github.com/okian/trendhunter/internal/adapters/sentiment/httpfeed"
	"github.com/okian/trendhunter/internal/adapters/venue"
	app "github.com/okian/trendhunter/internal/app"
	"github.com/okian/trendhunter/internal/config"
	"github.com/okian/trendhunter/internal/domain/model"
	"github.com/okian/trendhunter/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// components are the adapters built from configuration.
type components struct {
	feeds   map[model.SourceType]model.SentimentSource
	targets map[model.SourceType][]string
	oracle  model.PriceOracle
	venue   *venue.Paper
	sync    app.PriceSyncFunc
	closers []io.Closer
}

func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i].Close()
	}
}

// options turns the components into service options.
func (c *components) options(cfg *config.Config, l logger.Logger) []app.Option {
	opts := []app.Option{
		app.WithConfig(cfg),
		app.WithLogger(l),
		app.WithFeeds(c.feeds),
		app.WithTargets(c.targets),
		app.WithOracle(c.oracle),
		app.WithVenue(c.venue),
	}
	if c.sync != nil {
		opts = append(opts, app.WithPriceSync(c.sync))
	}
	return opts
}

// buildComponents wires feeds, the price store, the optional redis cache,
// the paper venue and the optional CoinMarketCap sync from cfg.
func buildComponents(ctx context.Context, cfg *config.Config, l logger.Logger) (*components, error) {
	c := &components{
		feeds:   make(map[model.SourceType]model.SentimentSource, len(cfg.FeedURLs)),
		targets: make(map[model.SourceType][]string, len(cfg.Sources)),
	}

	for name, endpoint := range cfg.FeedURLs {
		t, err := model.ParseSourceType(name)
		if err != nil {
			return nil, fmt.Errorf("feed_urls: %w", err)
		}
		c.feeds[t] = httpfeed.New(t.String(), endpoint, httpfeed.WithLogger(l.Named("feed").With(logger.String("platform", t.String()))))
	}
	for name, ids := range cfg.Sources {
		t, err := model.ParseSourceType(name)
		if err != nil {
			return nil, fmt.Errorf("sources: %w", err)
		}
		c.targets[t] = ids
	}

	path := cfg.PriceDBPath
	if path == "" {
		path = ":memory:"
	}
	store, err := oracle.OpenSQLStore(path)
	if err != nil {
		return nil, fmt.Errorf("open price store: %w", err)
	}
	c.closers = append(c.closers, store)
	c.oracle = store

	if cfg.RedisAddr != "" {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{cfg.RedisAddr}})
		if err := rdb.Ping(ctx).Err(); err != nil {
			l.Warn(ctx, "redis unreachable; price cache will fall through", logger.String("addr", cfg.RedisAddr), logger.Error(err))
		}
		c.closers = append(c.closers, rdb)
		c.oracle = oracle.NewCachedOracle(store, rdb,
			oracle.WithTTL(cfg.PriceCacheTTL),
			oracle.WithBucket(cfg.PriceCacheBucket),
		)
	}

	c.venue = venue.NewPaper(c.oracle,
		venue.WithBalance(cfg.Wallet, decimal.NewFromFloat(cfg.PaperBalance)),
		venue.WithLogger(l.Named("venue")),
	)

	if cfg.CMCAPIKey != "" && len(cfg.CMCSymbols) > 0 {
		cmc := oracle.NewCMCClient(cfg.CMCAPIKey,
			oracle.WithBaseURL(cfg.CMCBaseURL),
			oracle.WithCMCLogger(l.Named("cmc")),
		)
		symbols := cfg.CMCSymbols
		c.sync = func(ctx context.Context, start, end time.Time) (int, error) {
			return cmc.Sync(ctx, store, symbols, start, end)
		}
	}
	return c, nil
}
