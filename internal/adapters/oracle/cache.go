package oracle

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/okian/trendhunter/internal/domain/model"
	"github.com/okian/trendhunter/pkg/logger"
	"github.com/okian/trendhunter/pkg/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	defaultCacheTTL    = time.Hour
	defaultCacheBucket = time.Minute
	defaultCachePrefix = "trendhunter:price:"
)

// CachedOracle is a Redis read-through cache in front of another oracle.
// Keys are bucketed by time so lookups at the current instant share an entry.
// Only available prices are cached; Redis failures fall through.
type CachedOracle struct {
	next   model.PriceOracle
	client redis.UniversalClient
	ttl    time.Duration
	bucket time.Duration
	prefix string
	log    logger.Logger
}

// CacheOption configures a CachedOracle.
type CacheOption func(*CachedOracle)

// WithTTL sets how long cached prices live.
func WithTTL(d time.Duration) CacheOption {
	return func(c *CachedOracle) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithBucket sets the time granularity of cache keys. Every lookup inside one
// bucket is answered with the first price fetched for it, so the bucket should
// not exceed the sampling interval of the wrapped store.
func WithBucket(d time.Duration) CacheOption {
	return func(c *CachedOracle) {
		if d > 0 {
			c.bucket = d
		}
	}
}

// WithKeyPrefix namespaces cache keys.
func WithKeyPrefix(p string) CacheOption {
	return func(c *CachedOracle) {
		if p != "" {
			c.prefix = p
		}
	}
}

// NewCachedOracle wraps next with a cache on client.
func NewCachedOracle(next model.PriceOracle, client redis.UniversalClient, opts ...CacheOption) *CachedOracle {
	c := &CachedOracle{
		next:   next,
		client: client,
		ttl:    defaultCacheTTL,
		bucket: defaultCacheBucket,
		prefix: defaultCachePrefix,
		log:    logger.Get().Named("price-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CachedOracle) key(token string, ts time.Time) string {
	return c.prefix + model.NormalizeToken(token) + ":" + strconv.FormatInt(ts.UTC().Truncate(c.bucket).Unix(), 10)
}

// PriceAt serves from Redis when possible, otherwise asks the wrapped oracle.
func (c *CachedOracle) PriceAt(ctx context.Context, token string, ts time.Time) (decimal.Decimal, bool, error) {
	key := c.key(token, ts)

	raw, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if p, perr := decimal.NewFromString(raw); perr == nil {
			return p, true, nil
		}
		metrics.RecordErrorByComponent("price_cache", "corrupt")
	case !errors.Is(err, redis.Nil):
		metrics.RecordErrorByComponent("price_cache", "get")
		c.log.Debug(ctx, "cache get failed", logger.String("key", key), logger.Error(err))
	}

	p, ok, err := c.next.PriceAt(ctx, token, ts)
	if err != nil || !ok {
		return p, ok, err
	}
	if err := c.client.Set(ctx, key, p.String(), c.ttl).Err(); err != nil {
		metrics.RecordErrorByComponent("price_cache", "set")
		c.log.Debug(ctx, "cache set failed", logger.String("key", key), logger.Error(err))
	}
	return p, true, nil
}
