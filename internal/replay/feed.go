package replay

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/okian/trendhunter/internal/domain/model"
)

// clock is the simulated time shared by every component.
type clock struct {
	ns atomic.Int64
}

func (c *clock) Set(t time.Time) { c.ns.Store(t.UnixNano()) }

func (c *clock) Now() time.Time { return time.Unix(0, c.ns.Load()).UTC() }

// scriptFeed reveals scripted sentiments once the clock passes them.
type scriptFeed struct {
	clock *clock
	byID  map[string][]model.Sentiment
}

func (f *scriptFeed) Fetch(_ context.Context, identifier string, since time.Time) ([]model.Sentiment, error) {
	now := f.clock.Now()
	var out []model.Sentiment
	for _, s := range f.byID[identifier] {
		if s.AssertedAt.After(now) {
			continue
		}
		if !since.IsZero() && !s.AssertedAt.After(since) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// feeds builds one scripted feed per platform and the identifiers to poll.
func (s *Scenario) feeds(c *clock) (map[model.SourceType]model.SentimentSource, map[model.SourceType][]string) {
	scripts := make(map[model.SourceType]*scriptFeed)
	targets := make(map[model.SourceType][]string)
	for _, src := range s.Sources {
		t, _ := model.ParseSourceType(src.Platform)
		f, ok := scripts[t]
		if !ok {
			f = &scriptFeed{clock: c, byID: make(map[string][]model.Sentiment)}
			scripts[t] = f
			targets[t] = nil
		}
		if _, seen := f.byID[src.Identifier]; !seen {
			targets[t] = append(targets[t], src.Identifier)
		}
		for _, st := range src.Sentiments {
			action, _ := model.ParseAction(st.Action)
			f.byID[src.Identifier] = append(f.byID[src.Identifier], model.Sentiment{
				SourceLabel:  src.Identifier,
				TokenSymbol:  st.Token,
				TokenAddress: st.Address,
				Action:       action,
				AssertedAt:   s.Start.Add(st.At),
			})
		}
		if _, ok := f.byID[src.Identifier]; !ok {
			f.byID[src.Identifier] = nil
		}
	}
	feeds := make(map[model.SourceType]model.SentimentSource, len(scripts))
	for t, f := range scripts {
		feeds[t] = f
	}
	return feeds, targets
}
