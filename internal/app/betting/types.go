package betting

import (
	"context"
	"time"

	"wagerboard/internal/store"

	"github.com/shopspring/decimal"
)

type BetConfirmation struct {
	BetID   string          `json:"bet_id"`
	EventID string          `json:"event_id"`
	UserID  string          `json:"user_id"`
	Outcome string          `json:"outcome"`
	Odds    decimal.Decimal `json:"odds"`
	Amount  int64           `json:"amount"`
	Balance int64           `json:"balance"`
}

// Payout describes one winning bet. Credited is the stake plus winnings.
// Resumed is set when an earlier interrupted run already paid the bet.
type Payout struct {
	BetID    string `json:"bet_id"`
	UserID   string `json:"user_id"`
	Stake    int64  `json:"stake"`
	Payout   int64  `json:"payout"`
	Credited int64  `json:"credited"`
	Resumed  bool   `json:"resumed,omitempty"`
}

type Settlement struct {
	EventID   string    `json:"event_id"`
	ScopeID   string    `json:"scope_id"`
	Winner    string    `json:"winner"`
	Payouts   []Payout  `json:"payouts"`
	Losers    int       `json:"losers"`
	SettledAt time.Time `json:"settled_at"`
}

type EventDetail struct {
	Event  store.Event `json:"event"`
	Closed bool        `json:"closed"`
	BetsA  []store.Bet `json:"bets_a"`
	BetsB  []store.Bet `json:"bets_b"`
	TotalA int64       `json:"total_a"`
	TotalB int64       `json:"total_b"`
}

// Authorizer decides whether actor may create or settle events in scope.
type Authorizer func(ctx context.Context, scopeID, actorID string) error
