package ledger

import (
	"context"
	"errors"
	"strings"

	"wagerboard/internal/apperr"
	"wagerboard/internal/metrics"
	"wagerboard/internal/store"

	"github.com/rs/zerolog/log"
)

const defaultTopUsersMax = 100

// Ledger owns user balances. Every mutation runs under the account row lock
// and leaves a ledger entry in the same transaction.
type Ledger struct {
	store          store.Gateway
	defaultBalance int64
	topUsersMax    int
}

type Option func(*Ledger)

// WithTopUsersMax caps ListTopUsers.
func WithTopUsersMax(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.topUsersMax = n
		}
	}
}

func New(st store.Gateway, defaultBalance int64, opts ...Option) *Ledger {
	l := &Ledger{store: st, defaultBalance: defaultBalance, topUsersMax: defaultTopUsersMax}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) DefaultBalance() int64 {
	return l.defaultBalance
}

// GetBalance returns the user's balance, opening the account with the
// default balance on first reference.
func (l *Ledger) GetBalance(ctx context.Context, userID string) (int64, error) {
	userID, err := normalizeUser(userID)
	if err != nil {
		return 0, err
	}
	acct, err := l.store.GetAccount(ctx, userID)
	if err == nil {
		return acct.Balance, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return 0, apperr.Storage("get_balance", err)
	}
	var bal int64
	err = l.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		acct, err := l.Open(ctx, tx, userID)
		if err != nil {
			return err
		}
		bal = acct.Balance
		return nil
	})
	if err != nil {
		return 0, apperr.Storage("get_balance", err)
	}
	log.Debug().Str("user_id", userID).Int64("balance", bal).Msg("account opened")
	return bal, nil
}

// AdjustBalance applies delta and returns the new balance. A delta that would
// take the balance below zero fails with ErrInsufficientFunds and changes
// nothing.
func (l *Ledger) AdjustBalance(ctx context.Context, userID string, delta int64) (int64, error) {
	userID, err := normalizeUser(userID)
	if err != nil {
		return 0, err
	}
	var bal int64
	err = l.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		acct, err := l.Open(ctx, tx, userID)
		if err != nil {
			return err
		}
		ref := Ref{Type: "manual", ID: store.NewID()}
		switch {
		case delta > 0:
			bal, err = Credit(ctx, tx, acct, delta, store.EntryAdjust, ref)
		case delta < 0:
			bal, err = Debit(ctx, tx, acct, -delta, store.EntryAdjust, ref)
		default:
			bal = acct.Balance
		}
		return err
	})
	if err != nil {
		return 0, apperr.Storage("adjust_balance", err)
	}
	metrics.BalanceAdjustments.Inc()
	log.Info().Str("user_id", userID).Int64("delta", delta).Int64("balance", bal).Msg("balance adjusted")
	return bal, nil
}

// ListTopUsers returns up to n accounts by balance descending, ties broken
// by user id ascending.
func (l *Ledger) ListTopUsers(ctx context.Context, n int) ([]store.Account, error) {
	if n <= 0 {
		return nil, apperr.ErrInvalidLimit
	}
	if n > l.topUsersMax {
		n = l.topUsersMax
	}
	items, err := l.store.ListTopAccounts(ctx, n)
	if err != nil {
		return nil, apperr.Storage("list_top_users", err)
	}
	return items, nil
}

func (l *Ledger) ListEntries(ctx context.Context, f store.LedgerFilter, limit, offset int) ([]store.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	items, err := l.store.ListLedgerEntries(ctx, f, limit, offset)
	if err != nil {
		return nil, apperr.Storage("list_ledger_entries", err)
	}
	return items, nil
}

// Open ensures the account exists and returns it locked for the rest of tx.
func (l *Ledger) Open(ctx context.Context, tx store.Tx, userID string) (store.Account, error) {
	if err := tx.EnsureAccount(ctx, userID, l.defaultBalance); err != nil {
		return store.Account{}, err
	}
	return tx.GetAccountForUpdate(ctx, userID)
}

func normalizeUser(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", apperr.ErrInvalidUser
	}
	return userID, nil
}
