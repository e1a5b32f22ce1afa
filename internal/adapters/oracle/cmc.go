package oracle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/okian/trendhunter/internal/domain/model"
	"github.com/okian/trendhunter/pkg/logger"
	"github.com/okian/trendhunter/pkg/metrics"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// Default CoinMarketCap client configuration constants.
const (
	defaultCMCBaseURL  = "https://pro-api.coinmarketcap.com"
	historicalPath     = "/v2/cryptocurrency/quotes/historical"
	defaultMaxTries    = 4
	defaultInterval    = "5m"
	defaultHTTPTimeout = 15 * time.Second
	maxBodyBytes       = 8 << 20
)

// Recorder persists fetched samples.
type Recorder interface {
	RecordBatch(ctx context.Context, samples []PriceSample) error
}

// CMCClient reads historical quotes from CoinMarketCap.
type CMCClient struct {
	baseURL  string
	apiKey   string
	interval string
	convert  string
	http     *http.Client
	maxTries uint
	initial  time.Duration
	log      logger.Logger
}

// CMCOption configures a CMCClient.
type CMCOption func(*CMCClient)

// WithBaseURL points the client at another host.
func WithBaseURL(u string) CMCOption {
	return func(c *CMCClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(h *http.Client) CMCOption {
	return func(c *CMCClient) {
		if h != nil {
			c.http = h
		}
	}
}

// WithInterval sets the sampling interval requested from the API.
func WithInterval(interval string) CMCOption {
	return func(c *CMCClient) {
		if interval != "" {
			c.interval = interval
		}
	}
}

// WithMaxTries bounds attempts per request, including the first.
func WithMaxTries(n uint) CMCOption {
	return func(c *CMCClient) {
		if n > 0 {
			c.maxTries = n
		}
	}
}

// WithInitialBackoff sets the first retry delay.
func WithInitialBackoff(d time.Duration) CMCOption {
	return func(c *CMCClient) {
		if d > 0 {
			c.initial = d
		}
	}
}

// WithCMCLogger sets a custom logger.
func WithCMCLogger(l logger.Logger) CMCOption {
	return func(c *CMCClient) {
		if l != nil {
			c.log = l
		}
	}
}

// NewCMCClient creates a client authenticating with apiKey.
func NewCMCClient(apiKey string, opts ...CMCOption) *CMCClient {
	c := &CMCClient{
		baseURL:  defaultCMCBaseURL,
		apiKey:   apiKey,
		interval: defaultInterval,
		convert:  "USD",
		http:     &http.Client{Timeout: defaultHTTPTimeout},
		maxTries: defaultMaxTries,
		initial:  500 * time.Millisecond,
		log:      logger.Get().Named("cmc"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Historical returns the quotes of symbol between start and end.
// Failures are *model.ExternalError values.
func (c *CMCClient) Historical(ctx context.Context, symbol string, start, end time.Time) ([]PriceSample, error) {
	symbol = model.NormalizeToken(symbol)
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("time_start", start.UTC().Format(time.RFC3339))
	q.Set("time_end", end.UTC().Format(time.RFC3339))
	q.Set("interval", c.interval)
	q.Set("convert", c.convert)
	endpoint := c.baseURL + historicalPath + "?" + q.Encode()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initial

	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		return c.get(ctx, endpoint)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.maxTries))
	if err != nil {
		metrics.RecordErrorByComponent("cmc", "request")
		if model.IsPermanent(err) {
			return nil, err
		}
		var ee *model.ExternalError
		if errors.As(err, &ee) {
			return nil, err
		}
		return nil, model.Transient("cmc historical", err)
	}
	return c.parse(symbol, body)
}

// get performs one attempt. Permanent failures stop the retry loop.
func (c *CMCClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(model.Permanent("cmc request", err))
	}
	req.Header.Set("X-CMC_PRO_API_KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, model.Transient("cmc request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, model.Transient("cmc read", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, backoff.Permanent(model.Permanent("cmc request", fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)))
	case resp.StatusCode == http.StatusTooManyRequests:
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			return nil, backoff.RetryAfter(secs)
		}
		return nil, model.Transient("cmc request", ErrRateLimited)
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, model.Transient("cmc request", fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode))
	default:
		msg := gjson.GetBytes(body, "status.error_message").String()
		return nil, backoff.Permanent(model.Permanent("cmc request", fmt.Errorf("%w: status %d %s", ErrBadResponse, resp.StatusCode, msg)))
	}
}

// parse accepts both the id-keyed (data.quotes) and symbol-keyed
// (data.SYMBOL[0].quotes) response shapes.
func (c *CMCClient) parse(symbol string, body []byte) ([]PriceSample, error) {
	if !gjson.ValidBytes(body) {
		return nil, model.Permanent("cmc parse", ErrBadResponse)
	}
	quotes := gjson.GetBytes(body, "data.quotes")
	if !quotes.Exists() {
		quotes = gjson.GetBytes(body, "data."+gjson.Escape(symbol)+".0.quotes")
	}
	if !quotes.Exists() {
		return nil, model.Permanent("cmc parse", fmt.Errorf("%w: no quotes for %s", ErrBadResponse, symbol))
	}

	var out []PriceSample
	quotes.ForEach(func(_, q gjson.Result) bool {
		usd := q.Get("quote." + c.convert)
		ts, err := time.Parse(time.RFC3339, q.Get("timestamp").String())
		if err != nil {
			ts, err = time.Parse(time.RFC3339, usd.Get("timestamp").String())
		}
		price := usd.Get("price")
		if err != nil || !price.Exists() {
			return true
		}
		p, err := decimal.NewFromString(price.Raw)
		if err != nil || !p.IsPositive() {
			return true
		}
		out = append(out, PriceSample{
			Token:     symbol,
			Ts:        ts.UTC(),
			Price:     p,
			Currency:  c.convert,
			Volume24h: nullDecimal(usd.Get("volume_24h")),
			MarketCap: nullDecimal(usd.Get("market_cap")),
		})
		return true
	})
	return out, nil
}

func nullDecimal(r gjson.Result) decimal.NullDecimal {
	if !r.Exists() || r.Type == gjson.Null {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(r.Raw)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// Sync fetches each symbol's quotes between start and end into rec. A
// failing symbol is logged and skipped; the first error is returned after
// every symbol was tried.
func (c *CMCClient) Sync(ctx context.Context, rec Recorder, symbols []string, start, end time.Time) (int, error) {
	var (
		total    int
		firstErr error
	)
	for _, sym := range symbols {
		samples, err := c.Historical(ctx, sym, start, end)
		if err == nil {
			err = rec.RecordBatch(ctx, samples)
		}
		if err != nil {
			c.log.Warn(ctx, "price sync failed", logger.String("symbol", sym), logger.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("sync %s: %w", sym, err)
			}
			if ctx.Err() != nil {
				break
			}
			continue
		}
		total += len(samples)
	}
	c.log.Info(ctx, "price sync complete", logger.Int("samples", total), logger.Int("symbols", len(symbols)))
	return total, firstErr
}
