package ledger

import (
	"context"
	"math"

	"wagerboard/internal/apperr"
	"wagerboard/internal/store"
)

// Ref ties a ledger entry to the object that caused it.
type Ref struct {
	Type string
	ID   string
}

// Debit removes amount from acct inside tx. acct must have been read with
// GetAccountForUpdate (or Open) in the same transaction.
func Debit(ctx context.Context, tx store.Tx, acct store.Account, amount int64, entryType string, ref Ref) (int64, error) {
	if amount <= 0 {
		return 0, apperr.ErrInvalidAmount
	}
	if acct.Balance < amount {
		return 0, apperr.ErrInsufficientFunds
	}
	return post(ctx, tx, acct, -amount, entryType, ref)
}

// Credit adds amount to acct inside tx. See Debit for the locking contract.
func Credit(ctx context.Context, tx store.Tx, acct store.Account, amount int64, entryType string, ref Ref) (int64, error) {
	if amount <= 0 {
		return 0, apperr.ErrInvalidAmount
	}
	return post(ctx, tx, acct, amount, entryType, ref)
}

// Fits reports whether crediting amount to balance stays within int64.
func Fits(balance, amount int64) bool {
	return amount <= 0 || balance <= math.MaxInt64-amount
}

func post(ctx context.Context, tx store.Tx, acct store.Account, delta int64, entryType string, ref Ref) (int64, error) {
	if !Fits(acct.Balance, delta) {
		return 0, apperr.ErrBalanceOverflow
	}
	newBal := acct.Balance + delta
	if err := tx.SetBalance(ctx, acct.UserID, newBal); err != nil {
		return 0, err
	}
	if err := tx.InsertLedgerEntry(ctx, store.LedgerEntry{
		ID:           store.NewID(),
		UserID:       acct.UserID,
		Type:         entryType,
		Amount:       delta,
		BalanceAfter: newBal,
		RefType:      ref.Type,
		RefID:        ref.ID,
	}); err != nil {
		return 0, err
	}
	return newBal, nil
}
