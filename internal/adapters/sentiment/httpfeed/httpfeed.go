// Package httpfeed reads sentiments from a JSON HTTP feed:
// GET <url>?source=<identifier>&since=<RFC3339> answering
// [{source, token, token_address, action, when}].
package httpfeed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/okian/trendhunter/internal/domain/model"
	"github.com/okian/trendhunter/pkg/logger"
	"github.com/okian/trendhunter/pkg/metrics"
	"github.com/tidwall/gjson"
)

// Default feed configuration constants.
const (
	defaultMaxTries = 3
	defaultTimeout  = 15 * time.Second
	maxBodyBytes    = 4 << 20
)

// Sentinel kinds for feed errors.
var (
	ErrUnauthorized = errors.New("feed unauthorized")
	ErrStatus       = errors.New("unexpected feed status")
	ErrBadPayload   = errors.New("malformed feed payload")
)

// Feed is a model.SentimentSource over HTTP.
type Feed struct {
	endpoint string
	platform string
	token    string
	http     *http.Client
	maxTries uint
	initial  time.Duration
	log      logger.Logger
}

// Option configures a Feed.
type Option func(*Feed)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(f *Feed) {
		if h != nil {
			f.http = h
		}
	}
}

// WithBearerToken authenticates requests.
func WithBearerToken(t string) Option {
	return func(f *Feed) { f.token = t }
}

// WithMaxTries bounds attempts per Fetch, including the first.
func WithMaxTries(n uint) Option {
	return func(f *Feed) {
		if n > 0 {
			f.maxTries = n
		}
	}
}

// WithInitialBackoff sets the first retry delay.
func WithInitialBackoff(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.initial = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(f *Feed) {
		if l != nil {
			f.log = l
		}
	}
}

// New creates a feed for platform reading from endpoint.
func New(platform, endpoint string, opts ...Option) *Feed {
	f := &Feed{
		endpoint: endpoint,
		platform: platform,
		http:     &http.Client{Timeout: defaultTimeout},
		maxTries: defaultMaxTries,
		initial:  200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.log == nil {
		f.log = logger.Get().Named("feed").With(logger.String("platform", platform))
	}
	return f
}

// Fetch returns the sentiments identifier asserted after since.
func (f *Feed) Fetch(ctx context.Context, identifier string, since time.Time) ([]model.Sentiment, error) {
	u, err := url.Parse(f.endpoint)
	if err != nil {
		return nil, model.Permanent("feed url", err)
	}
	q := u.Query()
	q.Set("source", identifier)
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339))
	}
	u.RawQuery = q.Encode()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.initial

	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		return f.get(ctx, u.String())
	}, backoff.WithBackOff(b), backoff.WithMaxTries(f.maxTries))
	if err != nil {
		var ee *model.ExternalError
		if errors.As(err, &ee) {
			return nil, err
		}
		return nil, model.Transient("feed fetch", err)
	}
	return f.parse(ctx, identifier, since, body)
}

func (f *Feed) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, backoff.Permanent(model.Permanent("feed request", err))
	}
	req.Header.Set("Accept", "application/json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, model.Transient("feed request", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, model.Transient("feed read", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, backoff.Permanent(model.Permanent("feed request", fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, model.Transient("feed request", fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode))
	default:
		return nil, backoff.Permanent(model.Permanent("feed request", fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)))
	}
}

// parse keeps entries with a known action, as a bare array or under
// "items". Entries without a parseable time are stamped at since.
// Tokenless entries are kept; the fan-out counts them as drops.
func (f *Feed) parse(ctx context.Context, identifier string, since time.Time, body []byte) ([]model.Sentiment, error) {
	if !gjson.ValidBytes(body) {
		return nil, model.Transient("feed parse", ErrBadPayload)
	}
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		root = root.Get("items")
		if !root.IsArray() {
			return nil, model.Transient("feed parse", ErrBadPayload)
		}
	}

	var out []model.Sentiment
	skipped := 0
	root.ForEach(func(_, item gjson.Result) bool {
		action, err := model.ParseAction(item.Get("action").String())
		if err != nil {
			skipped++
			metrics.RecordObservationDropped("malformed")
			return true
		}
		at, err := time.Parse(time.RFC3339, item.Get("when").String())
		if err != nil {
			at = since
		}
		label := strings.TrimSpace(item.Get("source").String())
		if label == "" {
			label = identifier
		}
		out = append(out, model.Sentiment{
			SourceLabel:  label,
			TokenSymbol:  item.Get("token").String(),
			TokenAddress: item.Get("token_address").String(),
			Action:       action,
			AssertedAt:   at.UTC(),
		})
		return true
	})
	if skipped > 0 {
		f.log.Debug(ctx, "skipped entries with unknown action",
			logger.String("identifier", identifier),
			logger.Int("skipped", skipped),
		)
	}
	return out, nil
}
