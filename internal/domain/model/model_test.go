package model_test

import (
	"errors"
	"testing"
	"time"

	model "github.com/okian/trendhunter/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestParseSourceType(t *testing.T) {
	for _, st := range model.SourceTypes() {
		got, err := model.ParseSourceType(st.String())
		if err != nil || got != st {
			t.Errorf("round trip of %s: got %v, %v", st, got, err)
		}
	}
	if got, err := model.ParseSourceType(" Twitter "); err != nil || got != model.SourceTypeTwitter {
		t.Errorf("expected twitter, got %v, %v", got, err)
	}
	if _, err := model.ParseSourceType("myspace"); !errors.Is(err, model.ErrUnknownSourceType) {
		t.Errorf("expected ErrUnknownSourceType, got %v", err)
	}
}

func TestParseAction(t *testing.T) {
	cases := map[string]model.Action{"buy": model.ActionBuy, "LONG": model.ActionBuy, "sell": model.ActionSell, "bearish": model.ActionSell}
	for in, want := range cases {
		got, err := model.ParseAction(in)
		if err != nil || got != want {
			t.Errorf("ParseAction(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := model.ParseAction("hold"); !errors.Is(err, model.ErrMalformedSignal) {
		t.Errorf("hold must be malformed, got %v", err)
	}
	if model.ActionBuy.Sign() != 1 || model.ActionSell.Sign() != -1 {
		t.Error("unexpected action signs")
	}
}

func TestSentimentFingerprint(t *testing.T) {
	convey.Convey("Given two sentiments differing only by cashtag and case", t, func() {
		at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		a := model.Sentiment{TokenSymbol: "$pepe", Action: model.ActionBuy, AssertedAt: at}
		b := model.Sentiment{TokenSymbol: "PEPE", Action: model.ActionBuy, AssertedAt: at.In(time.FixedZone("x", 3600))}

		convey.So(a.Fingerprint("twitter:alice"), convey.ShouldEqual, b.Fingerprint("twitter:alice"))
		convey.So(a.Fingerprint("twitter:alice"), convey.ShouldNotEqual, a.Fingerprint("twitter:bob"))
	})
}

func TestObservationMatured(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	o := model.Observation{AssertedAt: at}
	if o.Matured(at.Add(23*time.Hour), 24*time.Hour) {
		t.Error("matured before horizon")
	}
	if !o.Matured(at.Add(24*time.Hour), 24*time.Hour) {
		t.Error("not matured at horizon")
	}
}

func TestExternalError(t *testing.T) {
	convey.Convey("Given wrapped collaborator failures", t, func() {
		cause := errors.New("dial tcp: timeout")
		tr := model.Transient("fetch", cause)
		pe := model.Permanent("fetch", errors.New("401"))

		convey.So(errors.Is(tr, model.ErrTransientExternal), convey.ShouldBeTrue)
		convey.So(errors.Is(tr, cause), convey.ShouldBeTrue)
		convey.So(model.IsTransient(tr), convey.ShouldBeTrue)
		convey.So(model.IsPermanent(tr), convey.ShouldBeFalse)
		convey.So(model.IsPermanent(pe), convey.ShouldBeTrue)
		convey.So(model.IsTransient(pe), convey.ShouldBeFalse)
		convey.So(model.IsTransient(errors.New("raw")), convey.ShouldBeTrue)
		convey.So(model.IsTransient(nil), convey.ShouldBeFalse)
		convey.So(tr.Error(), convey.ShouldContainSubstring, "fetch")

		var ee *model.ExternalError
		convey.So(errors.As(pe, &ee), convey.ShouldBeTrue)
		convey.So(ee.Op, convey.ShouldEqual, "fetch")
	})
}
