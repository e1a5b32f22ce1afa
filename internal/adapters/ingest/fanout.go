// Package ingest pulls sentiments from every configured source, turns them
// into observations and appends them to their owning Source.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/trendhunter/internal/domain/dedupe"
	"github.com/okian/trendhunter/internal/domain/model"
	"github.com/okian/trendhunter/pkg/logger"
	"github.com/okian/trendhunter/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Default ingestion configuration constants.
const (
	defaultConcurrency = 4
	defaultCallTimeout = 20 * time.Second
)

// Drop reasons reported in metrics and reports.
const (
	DropNoToken   = "no_token"
	DropDuplicate = "duplicate"
)

// Registry resolves the Source owning an identifier.
type Registry interface {
	GetOrCreate(platform model.SourceType, name, identifier string, now time.Time) (*model.Source, bool)
}

// Failure describes one identifier that produced nothing this cycle.
type Failure struct {
	Platform   string
	Identifier string
	Permanent  bool
	Err        error
}

// Report summarizes one ingestion cycle.
type Report struct {
	Ingested    int
	Dropped     int
	Duplicates  int
	PerPlatform map[string]int
	Failures    []Failure
	Halted      []string
	Took        time.Duration
}

// FanOut runs one Fetch per identifier per cycle, in parallel, bounded per
// platform.
type FanOut struct {
	registry Registry
	feeds    map[model.SourceType]model.SentimentSource
	targets  map[model.SourceType][]string

	limits       map[string]int
	defaultLimit int
	callTimeout  time.Duration
	oracle       model.PriceOracle
	seen         dedupe.Deduper
	now          func() time.Time
	log          logger.Logger

	mu     sync.Mutex
	since  map[string]time.Time
	halted map[model.SourceType]error
}

// NewFanOut builds a fan-out over targets (platform to identifiers), reading
// each platform from its feed.
func NewFanOut(registry Registry, feeds map[model.SourceType]model.SentimentSource, targets map[model.SourceType][]string, opts ...Option) *FanOut {
	f := &FanOut{
		registry:     registry,
		feeds:        feeds,
		targets:      targets,
		limits:       make(map[string]int),
		defaultLimit: defaultConcurrency,
		callTimeout:  defaultCallTimeout,
		now:          time.Now,
		log:          logger.Get().Named("ingest"),
		since:        make(map[string]time.Time),
		halted:       make(map[model.SourceType]error),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.seen == nil {
		f.seen = dedupe.NewInMemoryDeduper()
	}
	return f
}

// Run executes one cycle. Individual source failures are reported, never
// returned; the error is non-nil only when ctx ends the cycle early.
func (f *FanOut) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	rep := Report{PerPlatform: make(map[string]int)}
	var repMu sync.Mutex

	platforms := make([]model.SourceType, 0, len(f.targets))
	for p := range f.targets {
		platforms = append(platforms, p)
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })

	var outer errgroup.Group
	for _, platform := range platforms {
		if err := f.haltErr(platform); err != nil {
			rep.Halted = append(rep.Halted, platform.String())
			continue
		}
		feed, ok := f.feeds[platform]
		if !ok {
			f.log.Warn(ctx, "skipping platform", logger.String("platform", platform.String()), logger.Error(ErrNoFeed))
			continue
		}

		outer.Go(func() error {
			var g errgroup.Group
			g.SetLimit(f.limitFor(platform))
			for _, id := range f.targets[platform] {
				if ctx.Err() != nil {
					break
				}
				g.Go(func() error {
					res := f.pull(ctx, platform, feed, id)
					repMu.Lock()
					defer repMu.Unlock()
					rep.Ingested += res.ingested
					rep.Dropped += res.dropped
					rep.Duplicates += res.duplicates
					rep.PerPlatform[platform.String()] += res.ingested
					if res.failure != nil {
						rep.Failures = append(rep.Failures, *res.failure)
					}
					return nil
				})
			}
			return g.Wait()
		})
	}
	_ = outer.Wait()

	rep.Took = time.Since(start)
	metrics.RecordIngestionCycle(float64(rep.Took.Milliseconds()))
	f.log.Info(ctx, "ingestion cycle complete",
		logger.Int("ingested", rep.Ingested),
		logger.Int("dropped", rep.Dropped),
		logger.Int("duplicates", rep.Duplicates),
		logger.Int("failures", len(rep.Failures)),
		logger.Duration("took", rep.Took),
	)
	if err := ctx.Err(); err != nil {
		return rep, fmt.Errorf("ingestion cycle: %w", err)
	}
	return rep, nil
}

type pullResult struct {
	ingested   int
	dropped    int
	duplicates int
	failure    *Failure
}

// pull fetches one identifier and appends what it returned.
func (f *FanOut) pull(ctx context.Context, platform model.SourceType, feed model.SentimentSource, id string) pullResult {
	cursor := platform.String() + ":" + id
	callStart := f.now()

	f.mu.Lock()
	since := f.since[cursor]
	f.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, f.callTimeout)
	sentiments, err := feed.Fetch(callCtx, id, since)
	cancel()
	if err != nil {
		return pullResult{failure: f.fail(ctx, platform, id, err)}
	}

	sort.SliceStable(sentiments, func(i, j int) bool {
		return sentiments[i].AssertedAt.Before(sentiments[j].AssertedAt)
	})

	var res pullResult
	for _, s := range sentiments {
		token := s.Token()
		if token == "" {
			res.dropped++
			metrics.RecordObservationDropped(DropNoToken)
			f.log.Debug(ctx, "dropping sentiment without token",
				logger.String("platform", platform.String()),
				logger.String("identifier", id),
			)
			continue
		}
		now := f.now()
		if s.AssertedAt.IsZero() {
			s.AssertedAt = now
		}
		name := s.SourceLabel
		if name == "" {
			name = id
		}
		src, _ := f.registry.GetOrCreate(platform, name, id, now)
		if f.seen.SeenAndRecord(ctx, s.Fingerprint(src.Key())) {
			res.duplicates++
			metrics.RecordObservationDropped(DropDuplicate)
			continue
		}

		idx := src.Append(model.NewObservation(platform, s, now))
		f.fillPrice(ctx, src, idx, token, s.AssertedAt)
		res.ingested++
		metrics.RecordObservationIngested(platform.String())
	}

	f.mu.Lock()
	f.since[cursor] = callStart
	f.mu.Unlock()
	return res
}

// fail classifies a Fetch error and halts the platform when permanent.
func (f *FanOut) fail(ctx context.Context, platform model.SourceType, id string, err error) *Failure {
	fl := &Failure{Platform: platform.String(), Identifier: id, Err: err}
	if model.IsPermanent(err) {
		fl.Permanent = true
		f.mu.Lock()
		if _, already := f.halted[platform]; !already {
			f.halted[platform] = err
		}
		f.mu.Unlock()
		metrics.RecordIngestionFailure(platform.String(), "permanent")
		metrics.UpdatePlatformHalted(platform.String(), true)
		f.log.Error(ctx, "permanent failure, halting platform",
			logger.String("platform", platform.String()),
			logger.String("identifier", id),
			logger.Error(err),
		)
		return fl
	}

	kind := "transient"
	if errors.Is(err, context.DeadlineExceeded) {
		kind = "timeout"
	}
	metrics.RecordIngestionFailure(platform.String(), kind)
	f.log.Warn(ctx, "fetch failed, retrying next cycle",
		logger.String("platform", platform.String()),
		logger.String("identifier", id),
		logger.String("kind", kind),
		logger.Error(err),
	)
	return fl
}

func (f *FanOut) fillPrice(ctx context.Context, src *model.Source, idx int, token string, at time.Time) {
	if f.oracle == nil {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, f.callTimeout)
	defer cancel()
	price, ok, err := f.oracle.PriceAt(callCtx, token, at)
	if err != nil || !ok {
		return
	}
	src.SetPriceAtObservation(idx, price)
}

func (f *FanOut) limitFor(platform model.SourceType) int {
	if n, ok := f.limits[platform.String()]; ok {
		return n
	}
	return f.defaultLimit
}

func (f *FanOut) haltErr(platform model.SourceType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.halted[platform]; ok {
		return fmt.Errorf("%s: %w: %w", platform, ErrPlatformHalted, err)
	}
	return nil
}

// Resume clears a permanent halt so the platform is polled again.
func (f *FanOut) Resume(platform model.SourceType) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.halted[platform]; !ok {
		return false
	}
	delete(f.halted, platform)
	metrics.UpdatePlatformHalted(platform.String(), false)
	return true
}

// Halted returns each halted platform with the error that halted it.
func (f *FanOut) Halted() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.halted))
	for p, err := range f.halted {
		out[p.String()] = err.Error()
	}
	return out
}
