package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/trendhunter/internal/adapters/ingest"
	"github.com/okian/trendhunter/internal/adapters/mq/queue"
	"github.com/okian/trendhunter/internal/adapters/mq/worker"
	"github.com/okian/trendhunter/internal/adapters/oracle"
	"github.com/okian/trendhunter/internal/adapters/repository"
	"github.com/okian/trendhunter/internal/adapters/venue"
	"github.com/okian/trendhunter/internal/config"
	"github.com/okian/trendhunter/internal/domain/decision"
	"github.com/okian/trendhunter/internal/domain/dedupe"
	"github.com/okian/trendhunter/internal/domain/model"
	"github.com/okian/trendhunter/internal/domain/scoring"
	"github.com/okian/trendhunter/internal/domain/trust"
	"github.com/okian/trendhunter/internal/domain/verify"
	"github.com/okian/trendhunter/pkg/logger"
	"github.com/shopspring/decimal"
)

// Result is the state after the last simulated step.
type Result struct {
	Name        string
	Start       time.Time
	End         time.Time
	Steps       int
	Ingested    int
	Duplicates  int
	Verified    int
	Board       []repository.Entry
	Positions   []model.Position
	Transitions []model.Transition
	Balance     decimal.Decimal
	Wallet      string
}

// Runner replays one scenario.
type Runner struct {
	scenario *Scenario
	cfg      *config.Config
	logger   logger.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets a custom logger for the runner.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner creates a runner for sc with cfg as the service settings.
func NewRunner(sc *Scenario, cfg *config.Config, opts ...Option) *Runner {
	if cfg == nil {
		cfg = config.New()
	}
	r := &Runner{scenario: sc, cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Get().Named("replay")
	}
	return r
}

// Run steps the clock from Start to End. Each step ingests, verifies every
// source in turn, runs one decision pass and then any scripted withdrawals.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	sc, cfg := r.scenario, r.cfg
	clk := &clock{}
	clk.Set(sc.Start)

	store, err := oracle.OpenSQLStore(":memory:",
		oracle.WithMaxStaleness(sc.Step),
		oracle.WithStoreClock(clk.Now),
	)
	if err != nil {
		return Result{}, err
	}
	defer store.Close()
	if err := r.seedPrices(ctx, store); err != nil {
		return Result{}, err
	}

	autoIncorrect := make([]model.SourceType, 0, len(cfg.AutoIncorrectTypes))
	for _, name := range cfg.AutoIncorrectTypes {
		t, err := model.ParseSourceType(name)
		if err != nil {
			return Result{}, fmt.Errorf("auto_incorrect_types: %w", err)
		}
		autoIncorrect = append(autoIncorrect, t)
	}

	registry := repository.NewRegistry()
	board := repository.NewTreapBoard(ctx)
	defer board.Close()

	balance := sc.Balance
	if balance <= 0 {
		balance = cfg.PaperBalance
	}
	paper := venue.NewPaper(store,
		venue.WithBalance(cfg.Wallet, decimal.NewFromFloat(balance)),
		venue.WithClock(clk.Now),
	)

	feeds, targets := sc.feeds(clk)
	fanout := ingest.NewFanOut(registry, feeds, targets,
		ingest.WithConcurrency(cfg.PlatformConcurrency),
		ingest.WithDefaultConcurrency(cfg.DefaultConcurrency),
		ingest.WithCallTimeout(cfg.CallTimeout),
		ingest.WithPriceOracle(store),
		ingest.WithDeduper(dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize))),
		ingest.WithClock(clk.Now),
	)
	verifier := verify.NewVerifier(store,
		verify.WithScorer(scoring.NewRule(
			scoring.WithNormalization(cfg.ReturnNormalization),
			scoring.WithAutoIncorrectTypes(autoIncorrect...),
		)),
		verify.WithHorizon(cfg.VerificationHorizon),
		verify.WithMaxRetries(cfg.MaxVerificationRetries),
		verify.WithUnavailableGiveUp(cfg.UnavailableGiveUp),
		verify.WithOracleTimeout(cfg.OracleTimeout),
		verify.WithClock(clk.Now),
	)
	processor := worker.NewVerificationProcessor(registry, verifier,
		trust.NewAggregator(
			trust.WithAlpha(cfg.EWMAAlpha),
			trust.WithImpactNormalization(cfg.ReturnNormalization),
		),
		board,
		worker.WithProcessorClock(clk.Now),
	)
	engine := decision.NewEngine(registry, store, paper,
		decision.WithBuyThreshold(cfg.BuyThreshold),
		decision.WithMinTrustFloor(cfg.MinTrustFloor),
		decision.WithSellBounds(cfg.SellUpperBound, cfg.SellLowerBound),
		decision.WithInvestSize(cfg.InvestSize),
		decision.WithWallet(cfg.Wallet),
		decision.WithSignalWindow(cfg.SignalWindow),
		decision.WithReentryCooldown(cfg.ReentryCooldown),
		decision.WithOracleTimeout(cfg.OracleTimeout),
		decision.WithClock(clk.Now),
	)

	res := Result{Name: sc.Name, Start: sc.Start, End: sc.End(), Steps: sc.Steps, Wallet: cfg.Wallet}
	for i := 0; i <= sc.Steps; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		offset := time.Duration(i) * sc.Step
		clk.Set(sc.Start.Add(offset))

		rep, err := fanout.Run(ctx)
		if err != nil {
			return res, err
		}
		res.Ingested += rep.Ingested
		res.Duplicates += rep.Duplicates

		for _, src := range registry.All() {
			job := queue.Job{SourceKey: src.Key(), EnqueuedAt: clk.Now()}
			if err := processor.Process(ctx, job); err != nil {
				r.logger.Warn(ctx, "verification failed", logger.String("source", src.Key()), logger.Error(err))
			}
		}

		if _, err := engine.Decide(ctx); err != nil {
			return res, err
		}

		for _, w := range sc.Withdraw {
			if w.At != offset {
				continue
			}
			if _, err := engine.Withdraw(ctx, w.Token); err != nil && !errors.Is(err, decision.ErrNoPosition) {
				r.logger.Warn(ctx, "withdraw failed", logger.String("token", w.Token), logger.Error(err))
			}
		}
	}

	for _, src := range registry.All() {
		res.Verified += src.Scores().Samples
	}
	if n := board.Count(ctx); n > 0 {
		rows, err := board.TopN(ctx, n)
		if err != nil {
			return res, err
		}
		res.Board = rows
	}
	res.Positions = engine.Positions()
	res.Transitions = engine.Transitions()
	res.Balance = paper.Balance(cfg.Wallet)

	r.logger.Info(ctx, "replay complete",
		logger.String("scenario", sc.Name),
		logger.Int("steps", sc.Steps),
		logger.Int("ingested", res.Ingested),
		logger.Int("transitions", len(res.Transitions)),
	)
	return res, nil
}

// seedPrices writes the step-function price path at every simulated tick.
// The store clock hides samples later than the current step.
func (r *Runner) seedPrices(ctx context.Context, store *oracle.SQLStore) error {
	sc := r.scenario
	var samples []oracle.PriceSample
	for token := range sc.Prices {
		for i := 0; i <= sc.Steps; i++ {
			offset := time.Duration(i) * sc.Step
			p, ok := sc.priceAt(token, offset)
			if !ok {
				continue
			}
			samples = append(samples, oracle.PriceSample{
				Token:    token,
				Ts:       sc.Start.Add(offset),
				Price:    decimal.NewFromFloat(p),
				Currency: "USD",
			})
		}
	}
	if len(samples) == 0 {
		return nil
	}
	return store.RecordBatch(ctx, samples)
}
