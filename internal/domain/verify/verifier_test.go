package verify_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/trendhunter/internal/domain/model"
	"github.com/okian/trendhunter/internal/domain/scoring"
	"github.com/okian/trendhunter/internal/domain/verify"
	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

type priceKey struct {
	token string
	ts    time.Time
}

// fakeOracle answers from a fixed table; err, when set, fails every call.
type fakeOracle struct {
	mu     sync.Mutex
	prices map[priceKey]decimal.Decimal
	err    error
	calls  int
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{prices: map[priceKey]decimal.Decimal{}}
}

func (f *fakeOracle) set(token string, ts time.Time, price float64) {
	f.prices[priceKey{token, ts}] = decimal.NewFromFloat(price)
}

func (f *fakeOracle) PriceAt(ctx context.Context, token string, ts time.Time) (decimal.Decimal, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := ctx.Err(); err != nil {
		return decimal.Zero, false, err
	}
	if f.err != nil {
		return decimal.Zero, false, f.err
	}
	p, ok := f.prices[priceKey{token, ts}]
	return p, ok, nil
}

func appendCall(src *model.Source, token string, action model.Action, at time.Time) int {
	return src.Append(model.NewObservation(src.Platform(), model.Sentiment{
		TokenSymbol: token, Action: action, AssertedAt: at,
	}, at))
}

func TestVerifier_Scenario(t *testing.T) {
	Convey("Given a BUY on T at 100 and 120 at the horizon", t, func() {
		oracle := newFakeOracle()
		oracle.set("T", t0, 100)
		oracle.set("T", t0.Add(24*time.Hour), 120)
		src := model.NewSource(model.SourceTypeTwitter, "x", "x", t0)
		appendCall(src, "T", model.ActionBuy, t0)

		v := verify.NewVerifier(oracle,
			verify.WithHorizon(24*time.Hour),
			verify.WithScorer(scoring.NewRule(scoring.WithNormalization(0.1))),
			verify.WithClock(func() time.Time { return t0.Add(25 * time.Hour) }),
		)

		rep, err := v.Verify(context.Background(), src)

		Convey("Then the observation is CHECKED with score 1.0 and intensity 0.2", func() {
			So(err, ShouldBeNil)
			So(rep.Verified, ShouldEqual, 1)
			So(rep.Watermark, ShouldEqual, 0)
			So(rep.Verdicts, ShouldHaveLength, 1)
			So(rep.Verdicts[0].Score, ShouldEqual, 1.0)
			So(rep.Verdicts[0].Intensity, ShouldAlmostEqual, 0.2, 1e-9)
			obs, _ := src.Observation(0)
			So(obs.Checked, ShouldEqual, model.Checked)
			So(obs.CorrectnessScore, ShouldEqual, 1.0)
		})

		Convey("And a second pass finds nothing to do", func() {
			again, err := v.Verify(context.Background(), src)
			So(err, ShouldBeNil)
			So(again.Verified, ShouldEqual, 0)
			So(again.Verdicts, ShouldBeEmpty)
		})
	})
}

func TestVerifier_UnavailablePriceBlocksWatermark(t *testing.T) {
	Convey("Given three matured observations where the first has no price yet", t, func() {
		oracle := newFakeOracle()
		src := model.NewSource(model.SourceTypeReddit, "r", "r", t0)
		appendCall(src, "A", model.ActionBuy, t0)
		for i := 1; i < 3; i++ {
			at := t0.Add(time.Duration(i) * time.Hour)
			appendCall(src, "B", model.ActionSell, at)
			oracle.set("B", at, 10)
			oracle.set("B", at.Add(time.Hour), 9)
		}

		v := verify.NewVerifier(oracle,
			verify.WithHorizon(time.Hour),
			verify.WithClock(func() time.Time { return t0.Add(48 * time.Hour) }),
		)
		rep, err := v.Verify(context.Background(), src)

		Convey("Then the first is CANNOT_CHECK_YET and the watermark stays put", func() {
			So(err, ShouldBeNil)
			So(rep.Deferred, ShouldEqual, 1)
			So(rep.Verified, ShouldEqual, 2)
			first, _ := src.Observation(0)
			So(first.Checked, ShouldEqual, model.CannotCheckYet)
			So(first.Retries, ShouldEqual, 0)
			So(src.LastVerifiedIndex(), ShouldEqual, -1)
		})

		Convey("And once the price appears the watermark catches up", func() {
			oracle.set("A", t0, 1)
			oracle.set("A", t0.Add(time.Hour), 1.1)
			rep, err := v.Verify(context.Background(), src)

			So(err, ShouldBeNil)
			So(rep.Verified, ShouldEqual, 1)
			So(src.LastVerifiedIndex(), ShouldEqual, 2)
		})
	})
}

func TestVerifier_Retries(t *testing.T) {
	Convey("Given an oracle that keeps failing", t, func() {
		oracle := newFakeOracle()
		oracle.err = model.Transient("price", errors.New("503"))
		src := model.NewSource(model.SourceTypeNews, "n", "n", t0)
		appendCall(src, "T", model.ActionBuy, t0)

		v := verify.NewVerifier(oracle,
			verify.WithHorizon(time.Hour),
			verify.WithMaxRetries(2),
			verify.WithClock(func() time.Time { return t0.Add(2 * time.Hour) }),
		)

		var reps []verify.Report
		for i := 0; i < 3; i++ {
			rep, err := v.Verify(context.Background(), src)
			So(err, ShouldBeNil)
			reps = append(reps, rep)
		}

		Convey("Then it stays deferred until retries are exhausted, then becomes unknowable", func() {
			So(reps[0].Deferred, ShouldEqual, 1)
			So(reps[1].Deferred, ShouldEqual, 1)
			So(reps[2].Unknowable, ShouldEqual, 1)
			So(reps[2].Verdicts[0].Unknowable, ShouldBeTrue)
			obs, _ := src.Observation(0)
			So(obs.Checked, ShouldEqual, model.Checked)
			So(obs.CorrectnessScore, ShouldEqual, 0.5)
			So(obs.Unknowable, ShouldBeTrue)
			So(src.LastVerifiedIndex(), ShouldEqual, 0)
		})
	})
}

func TestVerifier_GiveUp(t *testing.T) {
	Convey("Given a price that never becomes available and a give-up window", t, func() {
		oracle := newFakeOracle()
		src := model.NewSource(model.SourceTypeNews, "n", "n", t0)
		appendCall(src, "T", model.ActionBuy, t0)
		now := t0.Add(2 * time.Hour)
		v := verify.NewVerifier(oracle,
			verify.WithHorizon(time.Hour),
			verify.WithUnavailableGiveUp(6*time.Hour),
			verify.WithClock(func() time.Time { return now }),
		)

		first, _ := v.Verify(context.Background(), src)
		now = now.Add(3 * time.Hour)
		second, _ := v.Verify(context.Background(), src)
		now = now.Add(4 * time.Hour)
		third, _ := v.Verify(context.Background(), src)

		Convey("Then it is closed as unknowable only after the window", func() {
			So(first.Deferred, ShouldEqual, 1)
			So(second.Deferred, ShouldEqual, 1)
			So(third.Unknowable, ShouldEqual, 1)
		})
	})
}

func TestVerifier_PendingAndAutoIncorrect(t *testing.T) {
	Convey("Given an immature observation and one from an auto-incorrect type", t, func() {
		oracle := newFakeOracle()
		other := model.NewSource(model.SourceTypeOther, "o", "o", t0)
		appendCall(other, "T", model.ActionBuy, t0)
		appendCall(other, "T", model.ActionBuy, t0.Add(10*time.Hour))

		v := verify.NewVerifier(oracle,
			verify.WithHorizon(2*time.Hour),
			verify.WithScorer(scoring.NewRule(scoring.WithAutoIncorrectTypes(model.SourceTypeOther))),
			verify.WithClock(func() time.Time { return t0.Add(3 * time.Hour) }),
		)
		rep, err := v.Verify(context.Background(), other)

		Convey("Then the matured one scores 0 without an oracle call and the other stays UNCHECKED", func() {
			So(err, ShouldBeNil)
			So(oracle.calls, ShouldEqual, 0)
			So(rep.Pending, ShouldEqual, 1)
			So(rep.Verdicts, ShouldHaveLength, 1)
			So(rep.Verdicts[0].Score, ShouldEqual, 0)
			later, _ := other.Observation(1)
			So(later.Checked, ShouldEqual, model.Unchecked)
		})
	})
}

func TestVerifier_PriceAtObservation(t *testing.T) {
	Convey("Given an observation carrying its ingest-time price", t, func() {
		oracle := newFakeOracle()
		oracle.set("T", t0.Add(time.Hour), 50)
		src := model.NewSource(model.SourceTypeTwitter, "x", "x", t0)
		idx := appendCall(src, "T", model.ActionSell, t0)
		src.SetPriceAtObservation(idx, decimal.NewFromInt(100))

		v := verify.NewVerifier(oracle,
			verify.WithHorizon(time.Hour),
			verify.WithClock(func() time.Time { return t0.Add(2 * time.Hour) }),
		)
		rep, _ := v.Verify(context.Background(), src)

		Convey("Then only the horizon price is fetched", func() {
			So(oracle.calls, ShouldEqual, 1)
			So(rep.Verdicts[0].Score, ShouldEqual, 1.0)
			So(rep.Verdicts[0].Intensity, ShouldAlmostEqual, 0.5, 1e-9)
		})
	})
}

func TestVerifier_Cancelled(t *testing.T) {
	Convey("Given a cancelled context", t, func() {
		oracle := newFakeOracle()
		src := model.NewSource(model.SourceTypeTwitter, "x", "x", t0)
		appendCall(src, "T", model.ActionBuy, t0)
		v := verify.NewVerifier(oracle,
			verify.WithHorizon(time.Hour),
			verify.WithClock(func() time.Time { return t0.Add(2 * time.Hour) }),
		)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := v.Verify(ctx, src)

		Convey("Then the pass aborts without touching the observation", func() {
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			obs, _ := src.Observation(0)
			So(obs.Checked, ShouldEqual, model.Unchecked)
			So(obs.Retries, ShouldEqual, 0)
		})
	})
}
