// Package store defines the persistence gateway used by the ledger,
// challenge and betting services, and the entities it stores. Backends live
// in the postgres and sqlite subpackages.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a unique-key violation.
	ErrConflict = errors.New("conflict")
)

type LedgerFilter struct {
	UserID  string
	RefType string
	RefID   string
	From    *time.Time
	To      *time.Time
}

// Gateway is the durable store. Reads outside WithinTx see committed data
// only.
type Gateway interface {
	// WithinTx runs fn in one transaction. fn's error rolls everything back.
	// fn must only use the Tx it is handed.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetAccount(ctx context.Context, userID string) (Account, error)
	ListTopAccounts(ctx context.Context, limit int) ([]Account, error)
	ListLedgerEntries(ctx context.Context, f LedgerFilter, limit, offset int) ([]LedgerEntry, error)

	CreateChallenge(ctx context.Context, c Challenge) (int64, error)
	GetChallenge(ctx context.Context, id int64) (Challenge, error)
	ListChallenges(ctx context.Context) ([]Challenge, error)
	ListCompletions(ctx context.Context) ([]CompletionView, error)

	CreateEvent(ctx context.Context, e Event) error
	GetEvent(ctx context.Context, scopeID, eventID string) (Event, error)
	ListOpenEvents(ctx context.Context, scopeID string) ([]Event, error)
	ListBets(ctx context.Context, scopeID, eventID string) ([]Bet, error)

	Ping(ctx context.Context) error
	Close() error
}

// Tx is a unit of work. Methods named ...ForUpdate hold the row until the
// transaction ends so read-check-write sequences cannot interleave.
type Tx interface {
	EnsureAccount(ctx context.Context, userID string, initial int64) error
	GetAccountForUpdate(ctx context.Context, userID string) (Account, error)
	SetBalance(ctx context.Context, userID string, balance int64) error
	InsertLedgerEntry(ctx context.Context, e LedgerEntry) error

	GetChallenge(ctx context.Context, id int64) (Challenge, error)
	GetCompletionForUpdate(ctx context.Context, userID string, challengeID int64) (Completion, error)
	// IncrementCompletion creates the (user, challenge) record with count 1
	// or increments it, returning the new count.
	IncrementCompletion(ctx context.Context, userID string, challengeID int64) (int64, error)

	GetEventForUpdate(ctx context.Context, scopeID, eventID string) (Event, error)
	SetEventWinner(ctx context.Context, scopeID, eventID, winner string) error
	MarkEventSettled(ctx context.Context, scopeID, eventID string, at time.Time) error

	// InsertBet returns ErrConflict when the user already has a bet on the event.
	InsertBet(ctx context.Context, b Bet) error
	GetBetForUpdate(ctx context.Context, betID string) (Bet, error)
	MarkBetSettled(ctx context.Context, betID string, payout int64, at time.Time) error
}
