// Package service wires the trust pipeline together and runs its periodic
// passes: ingestion, verification, decision and price sync.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/trendhunter/internal/adapters/ingest"
	"github.com/okian/trendhunter/internal/adapters/mq/queue"
	"github.com/okian/trendhunter/internal/adapters/mq/worker"
	"github.com/okian/trendhunter/internal/adapters/repository"
	"github.com/okian/trendhunter/internal/config"
	"github.com/okian/trendhunter/internal/domain/dedupe"
	"github.com/okian/trendhunter/internal/domain/decision"
	"github.com/okian/trendhunter/internal/domain/model"
	"github.com/okian/trendhunter/internal/domain/scoring"
	"github.com/okian/trendhunter/internal/domain/trust"
	"github.com/okian/trendhunter/internal/domain/types"
	"github.com/okian/trendhunter/internal/domain/verify"
	"github.com/okian/trendhunter/pkg/logger"
	"github.com/okian/trendhunter/pkg/metrics"
)

const recentObservations = 20

// cycleStats holds the counts of the last pass of each kind plus totals.
type cycleStats struct {
	IngestCycles   int
	Ingested       int
	Dropped        int
	Duplicates     int
	IngestFailures int
	LastIngest     time.Time

	VerifyCycles  int
	JobsSubmitted int
	JobsSkipped   int
	LastVerify    time.Time

	DecideCycles int
	Intents      int
	Accepted     int
	Rejected     int
	Failed       int
	Transitions  int
	LastDecide   time.Time

	PriceSyncs   int
	PriceSamples int
	LastSync     time.Time
}

// Service implements the API dependencies for the trust pipeline.
type Service struct {
	mu sync.RWMutex

	cfg       *config.Config
	feeds     map[model.SourceType]model.SentimentSource
	targets   map[model.SourceType][]string
	oracle    model.PriceOracle
	venue     model.ExecutionVenue
	priceSync PriceSyncFunc
	now       func() time.Time

	// Core components
	registry *repository.Registry
	board    *repository.TreapBoard
	queue    *queue.InMemoryQueue
	pool     *worker.Pool
	fanout   *ingest.FanOut
	engine   *decision.Engine

	statsMu sync.Mutex
	stats   cycleStats

	// State
	started bool
	cancel  context.CancelFunc
	loops   sync.WaitGroup

	logger logger.Logger
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		cfg:    config.New(),
		now:    time.Now,
		logger: logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the components and launches the worker pool and the
// periodic passes. Loops stop with ctx or Stop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.oracle == nil {
		return ErrMissingOracle
	}
	if s.venue == nil {
		return ErrMissingVenue
	}
	if err := s.build(ctx); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.pool.Start(loopCtx)

	s.loop(loopCtx, "ingest", s.cfg.IngestInterval, func(ctx context.Context) { _ = s.IngestOnce(ctx) })
	s.loop(loopCtx, "verify", s.cfg.VerifyInterval, func(ctx context.Context) { s.VerifyOnce(ctx) })
	s.loop(loopCtx, "decide", s.cfg.DecideInterval, func(ctx context.Context) { _ = s.DecideOnce(ctx) })
	if s.priceSync != nil {
		s.loop(loopCtx, "price-sync", s.cfg.PriceSyncInterval, func(ctx context.Context) { _ = s.SyncPricesOnce(ctx) })
	}

	s.started = true
	s.logger.Info(ctx, "trendhunter service started",
		logger.Int("workers", s.cfg.WorkerCount),
		logger.Int("queueSize", s.cfg.QueueSize),
		logger.Int("platforms", len(s.targets)),
		logger.Duration("horizon", s.cfg.VerificationHorizon),
	)
	return nil
}

func (s *Service) build(ctx context.Context) error {
	cfg := s.cfg

	autoIncorrect := make([]model.SourceType, 0, len(cfg.AutoIncorrectTypes))
	for _, name := range cfg.AutoIncorrectTypes {
		t, err := model.ParseSourceType(name)
		if err != nil {
			return fmt.Errorf("auto_incorrect_types: %w", err)
		}
		autoIncorrect = append(autoIncorrect, t)
	}

	s.registry = repository.NewRegistry()
	s.board = repository.NewTreapBoard(ctx)
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(cfg.QueueSize))

	verifier := verify.NewVerifier(s.oracle,
		verify.WithScorer(scoring.NewRule(
			scoring.WithNormalization(cfg.ReturnNormalization),
			scoring.WithAutoIncorrectTypes(autoIncorrect...),
		)),
		verify.WithHorizon(cfg.VerificationHorizon),
		verify.WithMaxRetries(cfg.MaxVerificationRetries),
		verify.WithUnavailableGiveUp(cfg.UnavailableGiveUp),
		verify.WithOracleTimeout(cfg.OracleTimeout),
		verify.WithClock(s.now),
	)
	aggregator := trust.NewAggregator(
		trust.WithAlpha(cfg.EWMAAlpha),
		trust.WithImpactNormalization(cfg.ReturnNormalization),
	)
	s.pool = worker.NewPool(cfg.WorkerCount, s.queue,
		worker.NewVerificationProcessor(s.registry, verifier, aggregator, s.board,
			worker.WithProcessorClock(s.now)))

	s.fanout = ingest.NewFanOut(s.registry, s.feeds, s.targets,
		ingest.WithConcurrency(cfg.PlatformConcurrency),
		ingest.WithDefaultConcurrency(cfg.DefaultConcurrency),
		ingest.WithCallTimeout(cfg.CallTimeout),
		ingest.WithPriceOracle(s.oracle),
		ingest.WithDeduper(dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize))),
		ingest.WithClock(s.now),
	)

	s.engine = decision.NewEngine(s.registry, s.oracle, s.venue,
		decision.WithBuyThreshold(cfg.BuyThreshold),
		decision.WithMinTrustFloor(cfg.MinTrustFloor),
		decision.WithSellBounds(cfg.SellUpperBound, cfg.SellLowerBound),
		decision.WithInvestSize(cfg.InvestSize),
		decision.WithWallet(cfg.Wallet),
		decision.WithSignalWindow(cfg.SignalWindow),
		decision.WithReentryCooldown(cfg.ReentryCooldown),
		decision.WithOracleTimeout(cfg.OracleTimeout),
		decision.WithClock(s.now),
	)
	return nil
}

// loop runs fn immediately and then every interval until ctx is done. A
// non-positive interval runs fn once.
func (s *Service) loop(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) {
	s.loops.Add(1)
	go func() {
		defer s.loops.Done()
		s.logger.Debug(ctx, "starting loop", logger.String("loop", name), logger.Duration("interval", interval))
		fn(ctx)
		if interval <= 0 {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

// Stop halts intent emission first, then the loops, then drains the pool.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping trendhunter service...")

	s.engine.BeginShutdown()
	s.cancel()
	s.loops.Wait()

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
	}
	_ = s.board.Close()

	s.started = false
	s.logger.Info(ctx, "trendhunter service stopped")
}

// IngestOnce runs one ingestion cycle.
func (s *Service) IngestOnce(ctx context.Context) error {
	rep, err := s.fanout.Run(ctx)
	failures := len(rep.Failures)

	s.statsMu.Lock()
	s.stats.IngestCycles++
	s.stats.Ingested = rep.Ingested
	s.stats.Dropped = rep.Dropped
	s.stats.Duplicates = rep.Duplicates
	s.stats.IngestFailures = failures
	s.stats.LastIngest = s.now()
	s.statsMu.Unlock()
	return err
}

// VerifyOnce submits one verification job per source. Sources with a job
// already in flight are skipped.
func (s *Service) VerifyOnce(ctx context.Context) {
	submitted, skipped := 0, 0
	for _, src := range s.registry.All() {
		if ctx.Err() != nil {
			break
		}
		if s.pool.Submit(ctx, src.Key()) {
			submitted++
		} else {
			skipped++
		}
	}
	metrics.UpdateSourcesTotal(s.registry.Count())

	s.statsMu.Lock()
	s.stats.VerifyCycles++
	s.stats.JobsSubmitted = submitted
	s.stats.JobsSkipped = skipped
	s.stats.LastVerify = s.now()
	s.statsMu.Unlock()

	s.logger.Debug(ctx, "verification jobs submitted",
		logger.Int("submitted", submitted),
		logger.Int("skipped", skipped),
	)
}

// DecideOnce runs one decision pass.
func (s *Service) DecideOnce(ctx context.Context) error {
	rep, err := s.engine.Decide(ctx)

	s.statsMu.Lock()
	s.stats.DecideCycles++
	s.stats.Intents = rep.Intents
	s.stats.Accepted = rep.Accepted
	s.stats.Rejected = rep.Rejected
	s.stats.Failed = rep.Failed
	s.stats.Transitions = len(rep.Transitions)
	s.stats.LastDecide = s.now()
	s.statsMu.Unlock()

	if err != nil && !errors.Is(err, decision.ErrClosing) {
		s.logger.Warn(ctx, "decision pass aborted", logger.Error(err))
	}
	return err
}

// SyncPricesOnce refreshes prices covering the verification horizon.
func (s *Service) SyncPricesOnce(ctx context.Context) error {
	if s.priceSync == nil {
		return nil
	}
	end := s.now()
	start := end.Add(-s.cfg.VerificationHorizon - s.cfg.PriceSyncInterval)
	n, err := s.priceSync(ctx, start, end)

	s.statsMu.Lock()
	s.stats.PriceSyncs++
	s.stats.PriceSamples = n
	s.stats.LastSync = end
	s.statsMu.Unlock()

	if err != nil {
		s.logger.Warn(ctx, "price sync failed", logger.Error(err))
	}
	return err
}

// TopN returns the n most trusted sources.
func (s *Service) TopN(ctx context.Context, n int) ([]types.TrustEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.board.TopN(ctx, n)
	if err != nil {
		return nil, err
	}
	out := make([]types.TrustEntry, len(rows))
	for i, r := range rows {
		out[i] = toTrustEntry(r)
	}
	return out, nil
}

// Source returns one source with its rank and recent observations. A
// source not yet verified has rank 0 and the neutral prior.
func (s *Service) Source(ctx context.Context, key string) (types.SourceDetail, error) {
	if err := s.ready(); err != nil {
		return types.SourceDetail{}, err
	}
	src, ok := s.registry.Get(key)
	if !ok {
		return types.SourceDetail{}, fmt.Errorf("%s: %w", key, ErrSourceNotFound)
	}

	row, err := s.board.Rank(ctx, key)
	if err != nil {
		sc := src.Scores()
		row = repository.Entry{
			SourceKey:          src.Key(),
			Platform:           src.Platform().String(),
			TrustedScore:       sc.Trusted,
			Correctness:        sc.Correctness,
			CorrectIntensity:   sc.CorrectIntensity,
			IncorrectIntensity: sc.IncorrectIntensity,
			Impact:             sc.Impact,
			Verified:           sc.Samples,
			LastVerifiedIndex:  src.LastVerifiedIndex(),
		}
	}
	row.Observations = src.Len()

	snap := src.Snapshot()
	recent := make([]types.ObservationView, 0, recentObservations)
	for i := len(snap) - 1; i >= 0 && len(recent) < recentObservations; i-- {
		recent = append(recent, types.FromObservation(snap[i]))
	}

	return types.SourceDetail{
		TrustEntry:    toTrustEntry(row),
		Name:          src.Name(),
		Identifier:    src.Identifier(),
		ObservedSince: src.ObservedSince(),
		Recent:        recent,
	}, nil
}

// Positions returns the open positions.
func (s *Service) Positions() []types.PositionView {
	if s.ready() != nil {
		return nil
	}
	pos := s.engine.Positions()
	out := make([]types.PositionView, len(pos))
	for i, p := range pos {
		out[i] = types.FromPosition(p)
	}
	return out
}

// Transitions returns the recent transition log, oldest first.
func (s *Service) Transitions() []types.TransitionView {
	if s.ready() != nil {
		return nil
	}
	trs := s.engine.Transitions()
	out := make([]types.TransitionView, len(trs))
	for i, t := range trs {
		out[i] = types.FromTransition(t)
	}
	return out
}

// Withdraw fully exits the position in token.
func (s *Service) Withdraw(ctx context.Context, token string) (types.TransitionView, error) {
	if err := s.ready(); err != nil {
		return types.TransitionView{}, err
	}
	tr, err := s.engine.Withdraw(ctx, token)
	if err != nil {
		return types.TransitionView{}, err
	}
	return types.FromTransition(tr), nil
}

// Resume clears a permanent halt of platform.
func (s *Service) Resume(platform string) error {
	if err := s.ready(); err != nil {
		return err
	}
	t, err := model.ParseSourceType(platform)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownPlatform, platform)
	}
	if !s.fanout.Resume(t) {
		return fmt.Errorf("%s: %w", platform, ErrNotHalted)
	}
	s.logger.Info(context.Background(), "platform resumed", logger.String("platform", platform))
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.cfg.WorkerCount,
		"queueSize":   s.cfg.QueueSize,
		"dedupeSize":  s.cfg.DedupeSize,
	}
	if !s.started {
		return stats
	}

	ctx := context.Background()
	s.statsMu.Lock()
	c := s.stats
	s.statsMu.Unlock()

	halted := s.fanout.Halted()
	haltedNames := make([]string, 0, len(halted))
	for p := range halted {
		haltedNames = append(haltedNames, p)
	}
	sort.Strings(haltedNames)

	stats["queueLength"] = s.queue.Len(ctx)
	stats["inFlight"] = s.pool.InFlight()
	stats["sources"] = s.registry.Count()
	stats["rankedSources"] = s.board.Count(ctx)
	stats["openPositions"] = len(s.engine.Positions())
	stats["haltedPlatforms"] = haltedNames
	stats["ingest"] = map[string]any{
		"cycles":     c.IngestCycles,
		"ingested":   c.Ingested,
		"dropped":    c.Dropped,
		"duplicates": c.Duplicates,
		"failures":   c.IngestFailures,
		"last":       c.LastIngest,
	}
	stats["verify"] = map[string]any{
		"cycles":    c.VerifyCycles,
		"submitted": c.JobsSubmitted,
		"skipped":   c.JobsSkipped,
		"last":      c.LastVerify,
	}
	stats["decide"] = map[string]any{
		"cycles":      c.DecideCycles,
		"intents":     c.Intents,
		"accepted":    c.Accepted,
		"rejected":    c.Rejected,
		"failed":      c.Failed,
		"transitions": c.Transitions,
		"last":        c.LastDecide,
	}
	if s.priceSync != nil {
		stats["priceSync"] = map[string]any{
			"cycles":  c.PriceSyncs,
			"samples": c.PriceSamples,
			"last":    c.LastSync,
		}
	}
	return stats
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.registry == nil {
		return ErrNotStarted
	}
	return nil
}

func toTrustEntry(e repository.Entry) types.TrustEntry {
	return types.TrustEntry{
		Rank:               e.Rank,
		SourceKey:          e.SourceKey,
		Platform:           e.Platform,
		TrustedScore:       e.TrustedScore,
		Correctness:        e.Correctness,
		CorrectIntensity:   e.CorrectIntensity,
		IncorrectIntensity: e.IncorrectIntensity,
		Impact:             e.Impact,
		Verified:           e.Verified,
		Observations:       e.Observations,
		LastVerifiedIndex:  e.LastVerifiedIndex,
		UpdatedAt:          e.UpdatedAt,
	}
}
