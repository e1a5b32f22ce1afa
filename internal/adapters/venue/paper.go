// Package venue provides an in-memory paper-trading Execution Venue.
package venue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/trendhunter/internal/domain/model"
	"github.com/okian/trendhunter/pkg/logger"
	"github.com/shopspring/decimal"
)

// Rejection reasons.
const (
	ReasonHalted              = "venue halted"
	ReasonNoPrice             = "price unavailable"
	ReasonInsufficientFunds   = "insufficient funds"
	ReasonInsufficientHolding = "insufficient holdings"
	ReasonInvalidAmount       = "invalid amount"
	ReasonUnknownKind         = "unknown intent kind"
)

// Fill is one executed paper trade.
type Fill struct {
	IntentID string
	Kind     model.IntentKind
	Wallet   string
	Token    string
	Price    decimal.Decimal
	Size     decimal.Decimal
	Quote    decimal.Decimal
	At       time.Time
}

// Paper fills intents at the oracle price at submit time against per-wallet
// quote balances and token holdings.
type Paper struct {
	mu       sync.Mutex
	oracle   model.PriceOracle
	balances map[string]decimal.Decimal
	holdings map[string]map[string]decimal.Decimal
	fills    []Fill
	halted   bool
	now      func() time.Time
	log      logger.Logger
}

// Option configures a Paper venue.
type Option func(*Paper)

// WithBalance credits wallet with amount of quote currency.
func WithBalance(wallet string, amount decimal.Decimal) Option {
	return func(p *Paper) {
		p.balances[wallet] = p.balances[wallet].Add(amount)
	}
}

// WithClock overrides the time source used for price lookups.
func WithClock(now func() time.Time) Option {
	return func(p *Paper) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Paper) {
		if l != nil {
			p.log = l
		}
	}
}

// NewPaper creates a paper venue pricing fills with oracle.
func NewPaper(oracle model.PriceOracle, opts ...Option) *Paper {
	p := &Paper{
		oracle:   oracle,
		balances: make(map[string]decimal.Decimal),
		holdings: make(map[string]map[string]decimal.Decimal),
		now:      time.Now,
		log:      logger.Get().Named("venue"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit executes intent. Business refusals are unaccepted receipts; an
// oracle failure is a transient error.
func (p *Paper) Submit(ctx context.Context, intent model.Intent) (model.Receipt, error) {
	now := p.now()
	reject := func(reason string) (model.Receipt, error) {
		p.log.Info(ctx, "intent rejected",
			logger.String("intent", intent.ID),
			logger.String("token", intent.Token),
			logger.String("reason", reason),
		)
		return model.Receipt{IntentID: intent.ID, Reason: reason, At: now}, nil
	}

	p.mu.Lock()
	halted := p.halted
	p.mu.Unlock()
	if halted {
		return reject(ReasonHalted)
	}
	if !intent.Amount.IsPositive() {
		return reject(ReasonInvalidAmount)
	}

	price, ok, err := p.oracle.PriceAt(ctx, intent.Token, now)
	if err != nil {
		return model.Receipt{}, model.Transient("venue price", err)
	}
	if !ok || !price.IsPositive() {
		return reject(ReasonNoPrice)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	held := p.holdingLocked(intent.Wallet, intent.Token)
	var size, quote decimal.Decimal
	switch intent.Kind {
	case model.IntentInvest:
		quote = intent.Amount
		if p.balances[intent.Wallet].LessThan(quote) {
			return reject(ReasonInsufficientFunds)
		}
		size = quote.DivRound(price, 18)
		p.balances[intent.Wallet] = p.balances[intent.Wallet].Sub(quote)
		p.holdings[intent.Wallet][intent.Token] = held.Add(size)
	case model.IntentPartialExit, model.IntentFullExit:
		size = intent.Amount
		if held.LessThan(size) {
			return reject(ReasonInsufficientHolding)
		}
		quote = size.Mul(price)
		p.balances[intent.Wallet] = p.balances[intent.Wallet].Add(quote)
		p.holdings[intent.Wallet][intent.Token] = held.Sub(size)
	default:
		return reject(ReasonUnknownKind)
	}

	p.fills = append(p.fills, Fill{
		IntentID: intent.ID,
		Kind:     intent.Kind,
		Wallet:   intent.Wallet,
		Token:    intent.Token,
		Price:    price,
		Size:     size,
		Quote:    quote,
		At:       now,
	})
	p.log.Info(ctx, "intent filled",
		logger.String("intent", intent.ID),
		logger.String("kind", intent.Kind.String()),
		logger.String("token", intent.Token),
		logger.String("price", price.String()),
		logger.String("size", size.String()),
	)
	return model.Receipt{
		IntentID:    intent.ID,
		Accepted:    true,
		FilledPrice: price,
		FilledSize:  size,
		At:          now,
	}, nil
}

func (p *Paper) holdingLocked(wallet, token string) decimal.Decimal {
	h, ok := p.holdings[wallet]
	if !ok {
		h = make(map[string]decimal.Decimal)
		p.holdings[wallet] = h
	}
	return h[token]
}

// Halt makes every later intent be rejected.
func (p *Paper) Halt() {
	p.mu.Lock()
	p.halted = true
	p.mu.Unlock()
}

// Resume lifts a Halt.
func (p *Paper) Resume() {
	p.mu.Lock()
	p.halted = false
	p.mu.Unlock()
}

// Balance returns wallet's quote balance.
func (p *Paper) Balance(wallet string) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balances[wallet]
}

// Holding returns wallet's quantity of token.
func (p *Paper) Holding(wallet, token string) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.holdings[wallet][token]
}

// Fills returns a copy of every fill in order.
func (p *Paper) Fills() []Fill {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Fill(nil), p.fills...)
}
