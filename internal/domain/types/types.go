// Package types contains the response shapes served by the API.
package types

import (
	"time"

	"github.com/okian/trendhunter/internal/domain/model"
)

// TrustEntry is one ranked source on the trust board.
type TrustEntry struct {
	Rank               int       `json:"rank"`
	SourceKey          string    `json:"source"`
	Platform           string    `json:"platform"`
	TrustedScore       float64   `json:"trusted_score"`
	Correctness        float64   `json:"correctness_score"`
	CorrectIntensity   float64   `json:"correct_intensity_score"`
	IncorrectIntensity float64   `json:"incorrect_intensity_score"`
	Impact             float64   `json:"impact_score"`
	Verified           int       `json:"verified"`
	Observations       int       `json:"observations"`
	LastVerifiedIndex  int       `json:"last_verified_index"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ObservationView is one observation of a source.
type ObservationView struct {
	ID                 string    `json:"id"`
	Token              string    `json:"token"`
	TokenAddress       string    `json:"token_address,omitempty"`
	Action             string    `json:"action"`
	AssertedAt         time.Time `json:"asserted_at"`
	ObservedAt         time.Time `json:"observed_at"`
	Checked            string    `json:"checked"`
	CorrectnessScore   float64   `json:"correctness_score"`
	Unknowable         bool      `json:"unknowable,omitempty"`
	PriceAtObservation string    `json:"price_at_observation,omitempty"`
}

// SourceDetail is a ranked source with its recent observations.
type SourceDetail struct {
	TrustEntry
	Name          string            `json:"name"`
	Identifier    string            `json:"identifier"`
	ObservedSince time.Time         `json:"observed_since"`
	Recent        []ObservationView `json:"recent"`
}

// PositionView is an open position.
type PositionView struct {
	Token        string    `json:"token"`
	TokenAddress string    `json:"token_address,omitempty"`
	State        string    `json:"state"`
	EntryPrice   string    `json:"entry_price"`
	Size         string    `json:"size"`
	OpenedAt     time.Time `json:"opened_at"`
}

// TransitionView is one position state change.
type TransitionView struct {
	Token  string    `json:"token"`
	From   string    `json:"from"`
	To     string    `json:"to"`
	Reason string    `json:"reason"`
	Price  string    `json:"price"`
	At     time.Time `json:"at"`
}

// FromObservation converts an observation.
func FromObservation(o model.Observation) ObservationView {
	v := ObservationView{
		ID:               o.ID,
		Token:            o.TokenSymbol,
		TokenAddress:     o.TokenAddress,
		Action:           o.PredictedAction.String(),
		AssertedAt:       o.AssertedAt,
		ObservedAt:       o.ObservedAt,
		Checked:          o.Checked.String(),
		CorrectnessScore: o.CorrectnessScore,
		Unknowable:       o.Unknowable,
	}
	if o.PriceAtObservation.Valid {
		v.PriceAtObservation = o.PriceAtObservation.Decimal.String()
	}
	return v
}

// FromPosition converts a position.
func FromPosition(p model.Position) PositionView {
	return PositionView{
		Token:        p.Token,
		TokenAddress: p.TokenAddress,
		State:        p.State.String(),
		EntryPrice:   p.EntryPrice.String(),
		Size:         p.Size.String(),
		OpenedAt:     p.OpenedAt,
	}
}

// FromTransition converts a transition.
func FromTransition(t model.Transition) TransitionView {
	return TransitionView{
		Token:  t.Token,
		From:   t.From.String(),
		To:     t.To.String(),
		Reason: t.Reason,
		Price:  t.Price.String(),
		At:     t.At,
	}
}
