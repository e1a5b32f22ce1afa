package oracle_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/trendhunter/internal/adapters/oracle"
	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *oracle.SQLStore {
	t.Helper()
	s, err := oracle.OpenSQLStore(":memory:",
		oracle.WithMaxStaleness(10*time.Minute),
		oracle.WithStoreClock(func() time.Time { return t0.Add(48 * time.Hour) }),
	)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sample(token string, ts time.Time, price int64) oracle.PriceSample {
	return oracle.PriceSample{Token: token, Ts: ts, Price: decimal.NewFromInt(price)}
}

func TestSQLStore(t *testing.T) {
	Convey("Given a store with two samples of PEPE", t, func() {
		ctx := context.Background()
		s := openStore(t)
		So(s.RecordBatch(ctx, []oracle.PriceSample{
			sample("pepe", t0, 100),
			sample("$PEPE", t0.Add(5*time.Minute), 110),
		}), ShouldBeNil)

		Convey("When asking between samples", func() {
			p, ok, err := s.PriceAt(ctx, "PEPE", t0.Add(7*time.Minute))

			Convey("Then the latest earlier sample answers", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(p.Equal(decimal.NewFromInt(110)), ShouldBeTrue)
			})
		})

		Convey("When the latest sample is too old", func() {
			_, ok, err := s.PriceAt(ctx, "PEPE", t0.Add(time.Hour))

			Convey("Then the price is unavailable", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When asking before any sample or for another token", func() {
			_, okBefore, _ := s.PriceAt(ctx, "PEPE", t0.Add(-time.Minute))
			_, okOther, _ := s.PriceAt(ctx, "BONK", t0)

			Convey("Then both are unavailable", func() {
				So(okBefore, ShouldBeFalse)
				So(okOther, ShouldBeFalse)
			})
		})

		Convey("When asking about the future", func() {
			_, ok, err := s.PriceAt(ctx, "PEPE", t0.Add(72*time.Hour))

			Convey("Then it is unavailable", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When a sample is recorded again for the same instant", func() {
			So(s.Record(ctx, sample("PEPE", t0, 95)), ShouldBeNil)
			p, ok, _ := s.PriceAt(ctx, "PEPE", t0)

			Convey("Then it replaces the old price", func() {
				So(ok, ShouldBeTrue)
				So(p.Equal(decimal.NewFromInt(95)), ShouldBeTrue)
			})
		})

		Convey("When reading the newest sample time", func() {
			latest, err := s.Latest(ctx, "pepe")
			none, _ := s.Latest(ctx, "BONK")

			Convey("Then it is the second sample", func() {
				So(err, ShouldBeNil)
				So(latest.Equal(t0.Add(5*time.Minute)), ShouldBeTrue)
				So(none.IsZero(), ShouldBeTrue)
			})
		})
	})
}
