package store

import (
	"time"

	"github.com/shopspring/decimal"
)

type Account struct {
	UserID    string    `json:"user_id"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type LedgerEntry struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Type         string    `json:"type"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	RefType      string    `json:"ref_type"`
	RefID        string    `json:"ref_id"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	EntryAdjust          = "adjust"
	EntryChallengeReward = "challenge_reward"
	EntryBetStake        = "bet_stake"
	EntryBetPayout       = "bet_payout"
	EntryGambleWin       = "gamble_win"
	EntryGambleLoss      = "gamble_loss"
)

type Challenge struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Reward     int64     `json:"reward"`
	Repeatable bool      `json:"repeatable"`
	CreatedAt  time.Time `json:"created_at"`
}

type Completion struct {
	UserID      string    `json:"user_id"`
	ChallengeID int64     `json:"challenge_id"`
	Count       int64     `json:"count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CompletionView joins a completion with its challenge name.
type CompletionView struct {
	Completion
	ChallengeName string `json:"challenge_name"`
}

type EventState string

const (
	EventOpen    EventState = "open"
	EventSettled EventState = "settled"
)

type Event struct {
	ID        string          `json:"id"`
	ScopeID   string          `json:"scope_id"`
	OutcomeA  string          `json:"outcome_a"`
	OutcomeB  string          `json:"outcome_b"`
	OddsA     decimal.Decimal `json:"odds_a"`
	OddsB     decimal.Decimal `json:"odds_b"`
	CloseTime time.Time       `json:"close_time"`
	State     EventState      `json:"state"`
	// Winner is the normalized key of the winning outcome. It is recorded
	// when settlement starts, before State becomes settled.
	Winner    string     `json:"winner,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	SettledAt *time.Time `json:"settled_at,omitempty"`

	// OutcomeAKey and OutcomeBKey are the stored OutcomeKey of each label.
	OutcomeAKey string `json:"-"`
	OutcomeBKey string `json:"-"`
}

// IsClosed reports whether betting has closed at now. Closed is never stored.
func (e Event) IsClosed(now time.Time) bool {
	return !now.Before(e.CloseTime)
}

// SettlementStarted reports whether a winner has been recorded, whether or
// not every bet has been paid yet.
func (e Event) SettlementStarted() bool {
	return e.State == EventSettled || e.Winner != ""
}

// Resolve maps a user-supplied label to the event's outcome label, its
// stored key and its odds.
func (e Event) Resolve(label string) (string, string, decimal.Decimal, bool) {
	switch OutcomeKey(label) {
	case e.OutcomeAKey:
		return e.OutcomeA, e.OutcomeAKey, e.OddsA, true
	case e.OutcomeBKey:
		return e.OutcomeB, e.OutcomeBKey, e.OddsB, true
	default:
		return "", "", decimal.Decimal{}, false
	}
}

type Bet struct {
	ID         string     `json:"id"`
	ScopeID    string     `json:"scope_id"`
	EventID    string     `json:"event_id"`
	UserID     string     `json:"user_id"`
	Outcome    string     `json:"outcome"`
	OutcomeKey string     `json:"-"`
	Amount     int64      `json:"amount"`
	Payout     *int64     `json:"payout,omitempty"`
	SettledAt  *time.Time `json:"settled_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (b Bet) Settled() bool {
	return b.SettledAt != nil
}
