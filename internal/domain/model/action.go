package model

import (
	"fmt"
	"strings"
)

// Action is the direction a sentiment predicts. HOLD is never ingested.
type Action int

const (
	ActionBuy Action = iota
	ActionSell
)

func (a Action) String() string {
	switch a {
	case ActionBuy:
		return "BUY"
	case ActionSell:
		return "SELL"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Sign is +1 for BUY and -1 for SELL.
func (a Action) Sign() float64 {
	if a == ActionSell {
		return -1
	}
	return 1
}

// ParseAction accepts buy/sell and their long/short synonyms.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "long", "bullish":
		return ActionBuy, nil
	case "sell", "short", "bearish":
		return ActionSell, nil
	default:
		return ActionBuy, fmt.Errorf("%w: unknown action %q", ErrMalformedSignal, s)
	}
}

// CheckedState tracks an observation's verification progress.
// UNCHECKED -> {CANNOT_CHECK_YET <->} -> CHECKED, never back.
type CheckedState int

const (
	Unchecked CheckedState = iota
	CannotCheckYet
	Checked
)

func (c CheckedState) String() string {
	switch c {
	case Unchecked:
		return "UNCHECKED"
	case CannotCheckYet:
		return "CANNOT_CHECK_YET"
	case Checked:
		return "CHECKED"
	default:
		return fmt.Sprintf("CheckedState(%d)", int(c))
	}
}
