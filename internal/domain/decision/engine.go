// Package decision turns trust-weighted signals into position changes.
//
// Each token moves FLAT -> INVESTED -> PARTIALLY_EXITED -> FLAT. Intents are
// submitted to an Execution Venue; a rejected or failed intent leaves the
// state untouched and is retried on the next pass.
package decision

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/okian/trendhunter/internal/domain/model"
	"github.com/okian/trendhunter/pkg/logger"
	"github.com/okian/trendhunter/pkg/metrics"
	"github.com/shopspring/decimal"
)

// Default engine configuration constants.
const (
	defaultBuyThreshold  = 1.0
	defaultMinTrustFloor = 0.5
	defaultUpperBound    = 1.0
	defaultLowerBound    = 0.5
	defaultInvestSize    = 100
	defaultWallet        = "main"
	defaultWindow        = 6 * time.Hour
	defaultOracleTimeout = 10 * time.Second
	defaultLogSize       = 1000
)

// Intent outcome labels.
const (
	outcomeAccepted = "accepted"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

var two = decimal.NewFromInt(2) //nolint:gochecknoglobals // constant

// SourceLister exposes every known source.
type SourceLister interface {
	All() []*model.Source
}

// Signal is the trust-weighted view of one token.
type Signal struct {
	Token        string
	TokenAddress string
	Value        float64
	Confidence   float64
	Contributors int
}

// Report summarizes one decision pass.
type Report struct {
	Tokens      int
	Intents     int
	Accepted    int
	Rejected    int
	Failed      int
	Transitions []model.Transition
}

// Engine holds per-token position state.
type Engine struct {
	sources SourceLister
	oracle  model.PriceOracle
	venue   model.ExecutionVenue

	buyThreshold  float64
	minTrustFloor float64
	upper         decimal.Decimal
	lower         decimal.Decimal
	investSize    decimal.Decimal
	wallet        string
	window        time.Duration
	cooldown      time.Duration
	oracleTimeout time.Duration
	logSize       int
	now           func() time.Time
	log           logger.Logger

	// run serializes passes and withdrawals.
	run sync.Mutex

	mu          sync.RWMutex
	positions   map[string]*model.Position
	lastExit    map[string]time.Time
	transitions []model.Transition

	closing atomic.Bool
}

// NewEngine creates a decision engine.
func NewEngine(sources SourceLister, oracle model.PriceOracle, venue model.ExecutionVenue, opts ...Option) *Engine {
	e := &Engine{
		sources:       sources,
		oracle:        oracle,
		venue:         venue,
		buyThreshold:  defaultBuyThreshold,
		minTrustFloor: defaultMinTrustFloor,
		upper:         decimal.NewFromFloat(defaultUpperBound),
		lower:         decimal.NewFromFloat(defaultLowerBound),
		investSize:    decimal.NewFromInt(defaultInvestSize),
		wallet:        defaultWallet,
		window:        defaultWindow,
		oracleTimeout: defaultOracleTimeout,
		logSize:       defaultLogSize,
		now:           time.Now,
		positions:     make(map[string]*model.Position),
		lastExit:      make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logger.Named("decision")
	}
	return e
}

// BeginShutdown stops the engine from emitting any further intent.
func (e *Engine) BeginShutdown() {
	e.closing.Store(true)
}

// Signals aggregates recent observations per token. Observations waiting on
// a price (CANNOT_CHECK_YET) do not count.
func (e *Engine) Signals(now time.Time) map[string]Signal {
	type acc struct {
		Signal
		trustSum float64
	}
	since := now.Add(-e.window)
	accs := make(map[string]*acc)
	for _, src := range e.sources.All() {
		trust := src.TrustedScore()
		for _, o := range src.Recent(since) {
			if o.Checked == model.CannotCheckYet {
				continue
			}
			a, ok := accs[o.TokenSymbol]
			if !ok {
				a = &acc{Signal: Signal{Token: o.TokenSymbol}}
				accs[o.TokenSymbol] = a
			}
			if a.TokenAddress == "" {
				a.TokenAddress = o.TokenAddress
			}
			a.Value += o.PredictedAction.Sign() * trust
			a.trustSum += trust
			a.Contributors++
		}
	}
	out := make(map[string]Signal, len(accs))
	for token, a := range accs {
		a.Confidence = a.trustSum / float64(a.Contributors)
		out[token] = a.Signal
	}
	return out
}

// Decide runs one pass: exits for open positions, then entries for flat tokens.
func (e *Engine) Decide(ctx context.Context) (Report, error) {
	var rep Report
	if e.closing.Load() {
		return rep, ErrClosing
	}
	e.run.Lock()
	defer e.run.Unlock()

	now := e.now()
	signals := e.Signals(now)

	// A token that changed state this pass is not re-entered in the same pass.
	touched := make(map[string]bool)
	for _, pos := range e.Positions() {
		rep.Tokens++
		intent, ok := e.exitIntent(ctx, pos, now)
		if !ok {
			continue
		}
		touched[pos.Token] = true
		_, _ = e.execute(ctx, intent, &rep)
	}

	tokens := make([]string, 0, len(signals))
	for token := range signals {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	for _, token := range tokens {
		sig := signals[token]
		if touched[token] || e.hasPosition(token) {
			continue
		}
		rep.Tokens++
		if !e.shouldEnter(sig, now) {
			continue
		}
		_, _ = e.execute(ctx, model.Intent{
			ID:           uuid.NewString(),
			Kind:         model.IntentInvest,
			Token:        token,
			TokenAddress: sig.TokenAddress,
			Amount:       e.investSize,
			Wallet:       e.wallet,
			Reason:       fmt.Sprintf("signal %.3f confidence %.3f", sig.Value, sig.Confidence),
			CreatedAt:    now,
		}, &rep)
	}

	metrics.UpdateOpenPositions(len(e.Positions()))
	return rep, ctx.Err()
}

func (e *Engine) shouldEnter(sig Signal, now time.Time) bool {
	if sig.Value <= e.buyThreshold || sig.Confidence <= e.minTrustFloor {
		return false
	}
	if e.cooldown > 0 {
		e.mu.RLock()
		last, ok := e.lastExit[sig.Token]
		e.mu.RUnlock()
		if ok && now.Sub(last) < e.cooldown {
			return false
		}
	}
	return true
}

// exitIntent checks the stop-loss first, always against the original entry
// price, then the partial take-profit.
func (e *Engine) exitIntent(ctx context.Context, pos model.Position, now time.Time) (model.Intent, bool) {
	price, ok := e.priceNow(ctx, pos.Token, now)
	if !ok {
		return model.Intent{}, false
	}
	intent := model.Intent{
		ID:           uuid.NewString(),
		Token:        pos.Token,
		TokenAddress: pos.TokenAddress,
		Wallet:       e.wallet,
		CreatedAt:    now,
	}
	stop := pos.EntryPrice.Mul(decimal.NewFromInt(1).Sub(e.lower))
	take := pos.EntryPrice.Mul(decimal.NewFromInt(1).Add(e.upper))
	switch {
	case price.LessThanOrEqual(stop):
		intent.Kind = model.IntentFullExit
		intent.Amount = pos.Size
		intent.Reason = fmt.Sprintf("stop loss: %s <= %s", price, stop)
		return intent, true
	case pos.State == model.Invested && price.GreaterThanOrEqual(take):
		intent.Kind = model.IntentPartialExit
		intent.Amount = pos.Size.Div(two)
		intent.Reason = fmt.Sprintf("take profit: %s >= %s", price, take)
		return intent, true
	}
	return model.Intent{}, false
}

func (e *Engine) priceNow(ctx context.Context, token string, now time.Time) (decimal.Decimal, bool) {
	cctx, cancel := context.WithTimeout(ctx, e.oracleTimeout)
	defer cancel()
	price, ok, err := e.oracle.PriceAt(cctx, token, now)
	if err != nil {
		e.log.Warn(ctx, "price lookup failed", logger.String("token", token), logger.Error(err))
		metrics.RecordErrorByComponent("decision", "oracle")
		return decimal.Zero, false
	}
	return price, ok
}

// execute submits intent and applies the fill. Nothing is submitted once
// shutdown began or ctx is done.
func (e *Engine) execute(ctx context.Context, intent model.Intent, rep *Report) (model.Transition, error) {
	if e.closing.Load() || ctx.Err() != nil {
		return model.Transition{}, ErrClosing
	}
	rep.Intents++
	receipt, err := e.venue.Submit(ctx, intent)
	switch {
	case err != nil:
		rep.Failed++
		metrics.RecordIntent(intent.Kind.String(), outcomeFailed)
		e.log.Warn(ctx, "intent failed",
			logger.String("token", intent.Token),
			logger.String("kind", intent.Kind.String()),
			logger.Error(err),
		)
		if model.IsPermanent(err) {
			return model.Transition{}, err
		}
		return model.Transition{}, model.Transient("submit", err)
	case !receipt.Accepted:
		rep.Rejected++
		metrics.RecordIntent(intent.Kind.String(), outcomeRejected)
		e.log.Info(ctx, "intent rejected",
			logger.String("token", intent.Token),
			logger.String("kind", intent.Kind.String()),
			logger.String("reason", receipt.Reason),
		)
		return model.Transition{}, fmt.Errorf("%w: %s", model.ErrIntentRejected, receipt.Reason)
	}
	rep.Accepted++
	metrics.RecordIntent(intent.Kind.String(), outcomeAccepted)
	tr := e.applyFill(intent, receipt)
	rep.Transitions = append(rep.Transitions, tr)
	e.log.Info(ctx, "position transition",
		logger.String("token", tr.Token),
		logger.String("from", tr.From.String()),
		logger.String("to", tr.To.String()),
		logger.String("price", tr.Price.String()),
		logger.String("reason", tr.Reason),
	)
	return tr, nil
}

func (e *Engine) applyFill(intent model.Intent, r model.Receipt) model.Transition {
	e.mu.Lock()
	defer e.mu.Unlock()

	at := r.At
	if at.IsZero() {
		at = e.now()
	}
	tr := model.Transition{Token: intent.Token, Reason: intent.Reason, Price: r.FilledPrice, At: at}
	pos := e.positions[intent.Token]
	if pos != nil {
		tr.From = pos.State
	}

	switch intent.Kind {
	case model.IntentInvest:
		e.positions[intent.Token] = &model.Position{
			Token:        intent.Token,
			TokenAddress: intent.TokenAddress,
			State:        model.Invested,
			EntryPrice:   r.FilledPrice,
			Size:         r.FilledSize,
			OpenedAt:     at,
		}
		tr.To = model.Invested
	case model.IntentPartialExit:
		pos.Size = pos.Size.Sub(r.FilledSize)
		pos.State = model.PartiallyExited
		tr.To = model.PartiallyExited
	case model.IntentFullExit:
		delete(e.positions, intent.Token)
		e.lastExit[intent.Token] = at
		tr.To = model.Flat
	}

	e.transitions = append(e.transitions, tr)
	if over := len(e.transitions) - e.logSize; over > 0 {
		e.transitions = append(e.transitions[:0:0], e.transitions[over:]...)
	}
	metrics.RecordTransition(tr.From.String(), tr.To.String())
	return tr
}

// Withdraw fully exits token on operator request.
func (e *Engine) Withdraw(ctx context.Context, token string) (model.Transition, error) {
	if e.closing.Load() {
		return model.Transition{}, ErrClosing
	}
	e.run.Lock()
	defer e.run.Unlock()

	token = model.NormalizeToken(token)
	e.mu.RLock()
	pos, ok := e.positions[token]
	var p model.Position
	if ok {
		p = *pos
	}
	e.mu.RUnlock()
	if !ok {
		return model.Transition{}, fmt.Errorf("%w: %s", ErrNoPosition, token)
	}

	intent := model.Intent{
		ID:           uuid.NewString(),
		Kind:         model.IntentFullExit,
		Token:        token,
		TokenAddress: p.TokenAddress,
		Amount:       p.Size,
		Wallet:       e.wallet,
		Reason:       "withdraw",
		CreatedAt:    e.now(),
	}
	var rep Report
	tr, err := e.execute(ctx, intent, &rep)
	if err != nil {
		return model.Transition{}, err
	}
	metrics.UpdateOpenPositions(len(e.Positions()))
	return tr, nil
}

// Positions returns copies of the open positions sorted by token.
func (e *Engine) Positions() []model.Position {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]model.Position, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out
}

// State returns the state of token.
func (e *Engine) State(token string) model.PositionState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if p, ok := e.positions[model.NormalizeToken(token)]; ok {
		return p.State
	}
	return model.Flat
}

// Transitions returns the retained transition log, oldest first.
func (e *Engine) Transitions() []model.Transition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]model.Transition, len(e.transitions))
	copy(out, e.transitions)
	return out
}

func (e *Engine) hasPosition(token string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.positions[token]
	return ok
}
