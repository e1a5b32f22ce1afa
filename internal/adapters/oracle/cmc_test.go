package oracle_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/trendhunter/internal/adapters/oracle"
	"github.com/okian/trendhunter/internal/domain/model"
	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"
)

const historicalBody = `{
  "status": {"error_code": 0},
  "data": {
    "PEPE": [{
      "id": 24478,
      "symbol": "PEPE",
      "quotes": [
        {"timestamp": "2024-05-01T12:00:00.000Z", "quote": {"USD": {"price": 0.0000081, "volume_24h": 1000.5, "market_cap": null}}},
        {"timestamp": "2024-05-01T12:05:00.000Z", "quote": {"USD": {"price": 0.0000083, "volume_24h": 1100, "market_cap": 3400000000}}},
        {"timestamp": "bad", "quote": {"USD": {"price": 1}}}
      ]
    }]
  }
}`

func cmcServer(status int, body string, calls *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("X-CMC_PRO_API_KEY") != "key" || r.URL.Path != "/v2/cryptocurrency/quotes/historical" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestCMCClient_Historical(t *testing.T) {
	Convey("Given a CoinMarketCap endpoint", t, func() {
		ctx := context.Background()
		var calls atomic.Int32

		Convey("When it answers with quotes", func() {
			srv := cmcServer(http.StatusOK, historicalBody, &calls)
			defer srv.Close()
			c := oracle.NewCMCClient("key", oracle.WithBaseURL(srv.URL))

			samples, err := c.Historical(ctx, "$pepe", t0, t0.Add(time.Hour))

			Convey("Then valid quotes become samples", func() {
				So(err, ShouldBeNil)
				So(samples, ShouldHaveLength, 2)
				So(samples[0].Token, ShouldEqual, "PEPE")
				So(samples[0].Ts.Equal(t0), ShouldBeTrue)
				So(samples[0].Price.Equal(decimal.RequireFromString("0.0000081")), ShouldBeTrue)
				So(samples[0].MarketCap.Valid, ShouldBeFalse)
				So(samples[1].MarketCap.Valid, ShouldBeTrue)
			})
		})

		Convey("When the key is rejected", func() {
			srv := cmcServer(http.StatusOK, historicalBody, &calls)
			defer srv.Close()
			c := oracle.NewCMCClient("wrong", oracle.WithBaseURL(srv.URL))

			_, err := c.Historical(ctx, "PEPE", t0, t0.Add(time.Hour))

			Convey("Then the failure is permanent and not retried", func() {
				So(model.IsPermanent(err), ShouldBeTrue)
				So(errors.Is(err, oracle.ErrUnauthorized), ShouldBeTrue)
				So(calls.Load(), ShouldEqual, 1)
			})
		})

		Convey("When the upstream keeps failing", func() {
			srv := cmcServer(http.StatusBadGateway, "", &calls)
			defer srv.Close()
			c := oracle.NewCMCClient("key",
				oracle.WithBaseURL(srv.URL),
				oracle.WithMaxTries(3),
				oracle.WithInitialBackoff(time.Millisecond),
			)

			_, err := c.Historical(ctx, "PEPE", t0, t0.Add(time.Hour))

			Convey("Then it retries and reports a transient failure", func() {
				So(model.IsTransient(err), ShouldBeTrue)
				So(errors.Is(err, oracle.ErrUpstream), ShouldBeTrue)
				So(calls.Load(), ShouldEqual, 3)
			})
		})
	})
}

func TestCMCClient_Sync(t *testing.T) {
	Convey("Given a client and an empty store", t, func() {
		ctx := context.Background()
		var calls atomic.Int32
		srv := cmcServer(http.StatusOK, historicalBody, &calls)
		defer srv.Close()
		c := oracle.NewCMCClient("key", oracle.WithBaseURL(srv.URL))
		s := openStore(t)

		Convey("When syncing PEPE", func() {
			n, err := c.Sync(ctx, s, []string{"PEPE"}, t0, t0.Add(time.Hour))

			Convey("Then the store answers from the synced quotes", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)
				p, ok, err := s.PriceAt(ctx, "PEPE", t0.Add(6*time.Minute))
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(p.Equal(decimal.RequireFromString("0.0000083")), ShouldBeTrue)
			})
		})

		Convey("When a symbol has no quotes", func() {
			_, err := c.Sync(ctx, s, []string{"BONK"}, t0, t0.Add(time.Hour))

			Convey("Then the error names it", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "BONK")
			})
		})
	})
}
