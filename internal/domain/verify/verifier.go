// Package verify resolves matured observations against a price oracle.
package verify

import (
	"context"
	"errors"
	"time"

	"github.com/okian/trendhunter/internal/domain/model"
	"github.com/okian/trendhunter/internal/domain/scoring"
	"github.com/okian/trendhunter/pkg/logger"
	"github.com/okian/trendhunter/pkg/metrics"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Default verifier configuration constants.
const (
	defaultHorizon       = 24 * time.Hour
	defaultMaxRetries    = 5
	defaultOracleTimeout = 10 * time.Second
	defaultParallelism   = 8
	unknowableScore      = 0.5
)

// Outcome labels.
const (
	OutcomeCorrect       = "correct"
	OutcomeIncorrect     = "incorrect"
	OutcomeNeutral       = "neutral"
	OutcomeUnknowable    = "unknowable"
	OutcomeDeferred      = "deferred"
	OutcomeAutoIncorrect = "auto_incorrect"
)

// Report summarizes one verification pass over a source.
type Report struct {
	SourceKey  string
	Verified   int
	Deferred   int
	Unknowable int
	Pending    int
	Watermark  int
	Verdicts   []model.Verdict
}

// Verifier scans a source's unverified observations and writes terminal
// verdicts for those whose horizon elapsed.
type Verifier struct {
	oracle        model.PriceOracle
	scorer        scoring.Scorer
	horizon       time.Duration
	maxRetries    int
	giveUp        time.Duration
	oracleTimeout time.Duration
	parallelism   int
	now           func() time.Time
	log           logger.Logger
}

// NewVerifier creates a Verifier reading prices from oracle.
func NewVerifier(oracle model.PriceOracle, opts ...Option) *Verifier {
	v := &Verifier{
		oracle:        oracle,
		scorer:        scoring.NewRule(),
		horizon:       defaultHorizon,
		maxRetries:    defaultMaxRetries,
		oracleTimeout: defaultOracleTimeout,
		parallelism:   defaultParallelism,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.log == nil {
		v.log = logger.Named("verify")
	}
	return v
}

// priceLookup is the oracle answer for one candidate.
type priceLookup struct {
	idx   int
	obs   model.Observation
	then  decimal.Decimal
	now   decimal.Decimal
	ok    bool
	err   error
	auto  bool
	ready bool
}

// Verify runs one pass over src. Oracle calls run in parallel; results are
// written back in index order. A cancelled ctx aborts the pass without
// touching any observation.
func (v *Verifier) Verify(ctx context.Context, src *model.Source) (Report, error) {
	start := time.Now()
	now := v.now()
	rep := Report{SourceKey: src.Key()}

	var lookups []*priceLookup
	for _, idx := range src.Candidates() {
		obs, ok := src.Observation(idx)
		if !ok {
			continue
		}
		if !obs.Matured(now, v.horizon) {
			rep.Pending++
			continue
		}
		l := &priceLookup{idx: idx, obs: obs}
		if v.scorer.AutoIncorrect(obs.SourceType) {
			l.auto = true
		}
		lookups = append(lookups, l)
	}

	if err := v.resolvePrices(ctx, lookups); err != nil {
		return rep, err
	}

	for _, l := range lookups {
		v.apply(ctx, src, l, now, &rep)
	}

	rep.Watermark = src.LastVerifiedIndex()
	metrics.UpdateWatermark(src.Key(), rep.Watermark)
	metrics.RecordVerificationPass(float64(time.Since(start).Milliseconds()))
	return rep, nil
}

func (v *Verifier) resolvePrices(ctx context.Context, lookups []*priceLookup) error {
	g := new(errgroup.Group)
	g.SetLimit(v.parallelism)
	for _, l := range lookups {
		if l.auto {
			continue
		}
		g.Go(func() error {
			v.lookup(ctx, l)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

func (v *Verifier) lookup(ctx context.Context, l *priceLookup) {
	token := l.obs.TokenSymbol
	if l.obs.PriceAtObservation.Valid {
		l.then = l.obs.PriceAtObservation.Decimal
	} else {
		price, ok, err := v.priceAt(ctx, token, l.obs.AssertedAt)
		if err != nil || !ok {
			l.ok, l.err = ok, err
			return
		}
		l.then = price
	}
	price, ok, err := v.priceAt(ctx, token, l.obs.AssertedAt.Add(v.horizon))
	l.now, l.ok, l.err = price, ok, err
	l.ready = err == nil && ok
}

func (v *Verifier) priceAt(ctx context.Context, token string, ts time.Time) (decimal.Decimal, bool, error) {
	cctx, cancel := context.WithTimeout(ctx, v.oracleTimeout)
	defer cancel()
	start := time.Now()
	price, ok, err := v.oracle.PriceAt(cctx, token, ts)
	metrics.RecordOracleLatency(float64(time.Since(start).Milliseconds()))
	return price, ok, err
}

func (v *Verifier) apply(ctx context.Context, src *model.Source, l *priceLookup, now time.Time, rep *Report) {
	switch {
	case l.auto:
		v.resolve(ctx, src, model.Verdict{Index: l.idx, Score: 0}, OutcomeAutoIncorrect, rep)

	case l.err != nil:
		retries, err := src.Defer(l.idx, now, true)
		if err != nil {
			return
		}
		metrics.RecordErrorByComponent("verify", "oracle")
		v.log.Warn(ctx, "price lookup failed",
			logger.String("source", src.Key()),
			logger.Int("index", l.idx),
			logger.Int("retries", retries),
			logger.Error(l.err),
		)
		if retries > v.maxRetries {
			v.resolve(ctx, src, model.Verdict{Index: l.idx, Score: unknowableScore, Unknowable: true}, OutcomeUnknowable, rep)
			return
		}
		rep.Deferred++
		metrics.RecordVerification(OutcomeDeferred)

	case !l.ready:
		if _, err := src.Defer(l.idx, now, false); err != nil {
			return
		}
		since := l.obs.DeferredSince
		if since.IsZero() {
			since = now
		}
		if v.giveUp > 0 && now.Sub(since) >= v.giveUp {
			v.resolve(ctx, src, model.Verdict{Index: l.idx, Score: unknowableScore, Unknowable: true}, OutcomeUnknowable, rep)
			return
		}
		rep.Deferred++
		metrics.RecordVerification(OutcomeDeferred)

	default:
		res, err := v.scorer.Score(scoring.Input{
			Action:    l.obs.PredictedAction,
			PriceThen: l.then,
			PriceNow:  l.now,
		})
		if err != nil {
			// non-positive reference price
			l.err = err
			v.apply(ctx, src, l, now, rep)
			return
		}
		outcome := OutcomeNeutral
		switch {
		case res.Score > unknowableScore:
			outcome = OutcomeCorrect
		case res.Score < unknowableScore:
			outcome = OutcomeIncorrect
		}
		v.resolve(ctx, src, model.Verdict{Index: l.idx, Score: res.Score, Intensity: res.Intensity}, outcome, rep)
	}
}

func (v *Verifier) resolve(ctx context.Context, src *model.Source, verdict model.Verdict, outcome string, rep *Report) {
	if err := src.Resolve(verdict.Index, verdict.Score, verdict.Unknowable); err != nil {
		if !errors.Is(err, model.ErrAlreadyChecked) {
			v.log.Error(ctx, "resolve observation", logger.String("source", src.Key()), logger.Error(err))
		}
		return
	}
	if verdict.Unknowable {
		rep.Unknowable++
	}
	rep.Verified++
	rep.Verdicts = append(rep.Verdicts, verdict)
	metrics.RecordVerification(outcome)
}
