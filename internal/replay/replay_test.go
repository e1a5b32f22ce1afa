package replay

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/trendhunter/internal/domain/model"
	"github.com/okian/trendhunter/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

const pumpScenario = `
name: pepe-pump
start: 2024-05-01T00:00:00Z
step: 1h
steps: 28
balance: 10000
config:
  signal_window: 48h
  verification_horizon: 24h
  invest_size: 100
sources:
  - platform: twitter
    identifier: alice
    sentiments:
      - token: $PEPE
        action: buy
        at: 1h
  - platform: twitter
    identifier: bob
    sentiments:
      - token: pepe
        action: bullish
        at: 1h
  - platform: reddit
    identifier: carol
    sentiments:
      - token: BONK
        action: buy
        at: 1h
prices:
  PEPE:
    - at: 0h
      price: 100
    - at: 20h
      price: 120
  BONK:
    - at: 0h
      price: 100
    - at: 10h
      price: 80
withdraw:
  - token: PEPE
    at: 28h
`

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	Convey("Given a scenario file with config overrides", t, func() {
		sc, cfg, err := Load(writeScenario(t, pumpScenario))

		Convey("Then the script and overrides are decoded", func() {
			So(err, ShouldBeNil)
			So(sc.Name, ShouldEqual, "pepe-pump")
			So(sc.Start, ShouldEqual, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
			So(sc.Step, ShouldEqual, time.Hour)
			So(sc.Sources, ShouldHaveLength, 3)
			So(sc.Sources[0].Sentiments[0].At, ShouldEqual, time.Hour)
			So(sc.Prices, ShouldContainKey, "PEPE")
			So(cfg.SignalWindow, ShouldEqual, 48*time.Hour)
			So(cfg.Wallet, ShouldEqual, "main")
		})

		Convey("Then the price path is a step function", func() {
			So(err, ShouldBeNil)
			p, ok := sc.priceAt("PEPE", 19*time.Hour)
			So(ok, ShouldBeTrue)
			So(p, ShouldEqual, 100)
			p, _ = sc.priceAt("PEPE", 20*time.Hour)
			So(p, ShouldEqual, 120)
			_, ok = sc.priceAt("DOGE", time.Hour)
			So(ok, ShouldBeFalse)
		})
	})

	Convey("Given invalid scenarios", t, func() {
		cases := map[string]string{
			"missing file":     "",
			"no step":          "start: 2024-05-01T00:00:00Z\nsteps: 2\nsources: [{platform: twitter, identifier: a}]\n",
			"unknown platform": "start: 2024-05-01T00:00:00Z\nstep: 1h\nsteps: 2\nsources: [{platform: myspace, identifier: a}]\n",
			"bad action":       "start: 2024-05-01T00:00:00Z\nstep: 1h\nsteps: 2\nsources: [{platform: twitter, identifier: a, sentiments: [{token: X, action: hodl, at: 1h}]}]\n",
		}
		for name, body := range cases {
			path := filepath.Join(t.TempDir(), "missing.yaml")
			if body != "" {
				path = writeScenario(t, body)
			}
			_, _, err := Load(path)
			So(err, ShouldNotBeNil)
			if name != "missing file" {
				So(err, ShouldWrap, ErrInvalidScenario)
			} else {
				So(err, ShouldWrap, ErrLoadScenario)
			}
		}
	})
}

func TestScriptFeed(t *testing.T) {
	Convey("Given a scripted feed", t, func() {
		start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
		sc := &Scenario{Start: start, Sources: []SourceScript{{
			Platform:   "twitter",
			Identifier: "alice",
			Sentiments: []SentimentScript{
				{Token: "PEPE", Action: "buy", At: time.Hour},
				{Token: "BONK", Action: "sell", At: 3 * time.Hour},
			},
		}}}
		clk := &clock{}
		feeds, targets := sc.feeds(clk)
		feed := feeds[model.SourceTypeTwitter]

		So(targets[model.SourceTypeTwitter], ShouldResemble, []string{"alice"})

		Convey("Then sentiments appear only once the clock passes them", func() {
			clk.Set(start.Add(2 * time.Hour))
			got, err := feed.Fetch(context.Background(), "alice", time.Time{})
			So(err, ShouldBeNil)
			So(got, ShouldHaveLength, 1)
			So(got[0].Token(), ShouldEqual, "PEPE")

			clk.Set(start.Add(4 * time.Hour))
			got, _ = feed.Fetch(context.Background(), "alice", start.Add(2*time.Hour))
			So(got, ShouldHaveLength, 1)
			So(got[0].Action, ShouldEqual, model.ActionSell)
		})
	})
}

func TestRunner(t *testing.T) {
	Convey("Given the pump scenario", t, func() {
		sc, cfg, err := Load(writeScenario(t, pumpScenario))
		So(err, ShouldBeNil)

		res, err := NewRunner(sc, cfg).Run(context.Background())
		So(err, ShouldBeNil)

		Convey("Then every sentiment is ingested once and verified", func() {
			So(res.Ingested, ShouldEqual, 3)
			So(res.Verified, ShouldEqual, 3)
			So(res.Board, ShouldHaveLength, 3)
		})

		Convey("Then the correct callers outrank the wrong one", func() {
			So(res.Board[0].TrustedScore, ShouldBeGreaterThan, 0.5)
			So(res.Board[1].TrustedScore, ShouldBeGreaterThan, 0.5)
			So(res.Board[2].SourceKey, ShouldEqual, "reddit:carol")
			So(res.Board[2].TrustedScore, ShouldBeLessThan, res.Board[0].TrustedScore)
		})

		Convey("Then PEPE was bought once both callers were verified and later withdrawn", func() {
			So(res.Transitions, ShouldHaveLength, 2)
			entry := res.Transitions[0]
			So(entry.Token, ShouldEqual, "PEPE")
			So(entry.From, ShouldEqual, model.Flat)
			So(entry.To, ShouldEqual, model.Invested)
			So(entry.Price.String(), ShouldEqual, "120")
			So(entry.At, ShouldEqual, sc.Start.Add(25*time.Hour))

			exit := res.Transitions[1]
			So(exit.To, ShouldEqual, model.Flat)
			So(exit.Reason, ShouldEqual, "withdraw")
			So(res.Positions, ShouldBeEmpty)
			So(res.Balance.InexactFloat64(), ShouldAlmostEqual, 10000, 1e-6)
		})

		Convey("Then the report lists the board and transitions", func() {
			var buf bytes.Buffer
			So(WriteReport(&buf, res), ShouldBeNil)
			So(buf.String(), ShouldContainSubstring, "twitter:alice")
			So(buf.String(), ShouldContainSubstring, "INVESTED")
		})
	})
}
