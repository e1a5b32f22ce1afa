package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PositionState is the per-token decision state.
type PositionState int

const (
	Flat PositionState = iota
	Invested
	PartiallyExited
)

func (p PositionState) String() string {
	switch p {
	case Flat:
		return "FLAT"
	case Invested:
		return "INVESTED"
	case PartiallyExited:
		return "PARTIALLY_EXITED"
	default:
		return fmt.Sprintf("PositionState(%d)", int(p))
	}
}

// Position is an open holding of one token. EntryPrice never changes after
// the invest fill; Size shrinks on partial exit.
type Position struct {
	Token        string
	TokenAddress string
	State        PositionState
	EntryPrice   decimal.Decimal
	Size         decimal.Decimal
	OpenedAt     time.Time
}

// IntentKind is the order an Intent asks the venue to carry out.
type IntentKind int

const (
	IntentInvest IntentKind = iota
	IntentPartialExit
	IntentFullExit
)

func (k IntentKind) String() string {
	switch k {
	case IntentInvest:
		return "invest"
	case IntentPartialExit:
		return "partial_exit"
	case IntentFullExit:
		return "full_exit"
	default:
		return fmt.Sprintf("IntentKind(%d)", int(k))
	}
}

// Intent is an order handed to the Execution Venue. For IntentInvest Amount
// is the quote amount to spend; for exits it is the token quantity to sell.
type Intent struct {
	ID           string
	Kind         IntentKind
	Token        string
	TokenAddress string
	Amount       decimal.Decimal
	Wallet       string
	Reason       string
	CreatedAt    time.Time
}

// Receipt is the venue's answer to an Intent.
type Receipt struct {
	IntentID    string
	Accepted    bool
	Reason      string
	FilledPrice decimal.Decimal
	FilledSize  decimal.Decimal
	At          time.Time
}

// Transition records one state change of a token's position.
type Transition struct {
	Token  string
	From   PositionState
	To     PositionState
	Reason string
	Price  decimal.Decimal
	At     time.Time
}
