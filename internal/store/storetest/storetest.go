// Package storetest holds behaviour every store.Gateway implementation must
// share. Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"wagerboard/internal/store"

	"github.com/shopspring/decimal"
)

// Run exercises a fresh gateway per subtest.
func Run(t *testing.T, open func(t *testing.T) store.Gateway) {
	t.Run("accounts", func(t *testing.T) { testAccounts(t, open(t)) })
	t.Run("rollback", func(t *testing.T) { testRollback(t, open(t)) })
	t.Run("ledger entries", func(t *testing.T) { testLedgerEntries(t, open(t)) })
	t.Run("challenges", func(t *testing.T) { testChallenges(t, open(t)) })
	t.Run("events", func(t *testing.T) { testEvents(t, open(t)) })
	t.Run("bets", func(t *testing.T) { testBets(t, open(t)) })
}

func inTx(t *testing.T, gw store.Gateway, fn func(ctx context.Context, tx store.Tx) error) {
	t.Helper()
	if err := gw.WithinTx(context.Background(), fn); err != nil {
		t.Fatalf("WithinTx() error = %v", err)
	}
}

func testAccounts(t *testing.T, gw store.Gateway) {
	ctx := context.Background()
	if _, err := gw.GetAccount(ctx, "u1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetAccount(missing) error = %v, want ErrNotFound", err)
	}
	inTx(t, gw, func(ctx context.Context, tx store.Tx) error {
		if err := tx.EnsureAccount(ctx, "u1", 10); err != nil {
			return err
		}
		if err := tx.EnsureAccount(ctx, "u1", 99); err != nil {
			return err
		}
		return tx.SetBalance(ctx, "u1", 15)
	})
	acct, err := gw.GetAccount(ctx, "u1")
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if acct.Balance != 15 {
		t.Fatalf("balance = %d, want 15", acct.Balance)
	}

	err = gw.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.SetBalance(ctx, "u1", -1)
	})
	if err == nil {
		t.Fatal("SetBalance(-1) expected a constraint error")
	}
	err = gw.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.SetBalance(ctx, "ghost", 1)
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("SetBalance(missing) error = %v, want ErrNotFound", err)
	}

	inTx(t, gw, func(ctx context.Context, tx store.Tx) error {
		for _, u := range []string{"b", "a", "c"} {
			if err := tx.EnsureAccount(ctx, u, 15); err != nil {
				return err
			}
		}
		return tx.SetBalance(ctx, "c", 40)
	})
	top, err := gw.ListTopAccounts(ctx, 3)
	if err != nil {
		t.Fatalf("ListTopAccounts() error = %v", err)
	}
	want := []string{"c", "a", "b"}
	for i, u := range want {
		if top[i].UserID != u {
			t.Fatalf("ListTopAccounts()[%d] = %s, want %s", i, top[i].UserID, u)
		}
	}
}

func testRollback(t *testing.T, gw store.Gateway) {
	ctx := context.Background()
	boom := errors.New("boom")
	err := gw.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.EnsureAccount(ctx, "u1", 10); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithinTx() error = %v, want boom", err)
	}
	if _, err := gw.GetAccount(ctx, "u1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("rolled back account is visible, GetAccount() error = %v", err)
	}
}

func testLedgerEntries(t *testing.T, gw store.Gateway) {
	ctx := context.Background()
	inTx(t, gw, func(ctx context.Context, tx store.Tx) error {
		for _, u := range []string{"u1", "u2"} {
			if err := tx.EnsureAccount(ctx, u, 0); err != nil {
				return err
			}
		}
		entries := []store.LedgerEntry{
			{ID: store.NewID(), UserID: "u1", Type: store.EntryAdjust, Amount: 5, BalanceAfter: 5, RefType: "manual", RefID: "m1"},
			{ID: store.NewID(), UserID: "u1", Type: store.EntryBetStake, Amount: -2, BalanceAfter: 3, RefType: "bet", RefID: "b1"},
			{ID: store.NewID(), UserID: "u2", Type: store.EntryAdjust, Amount: 9, BalanceAfter: 9, RefType: "manual", RefID: "m2"},
		}
		for _, e := range entries {
			if err := tx.InsertLedgerEntry(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})

	all, err := gw.ListLedgerEntries(ctx, store.LedgerFilter{}, 10, 0)
	if err != nil {
		t.Fatalf("ListLedgerEntries() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("entries = %d, want 3", len(all))
	}
	u1, err := gw.ListLedgerEntries(ctx, store.LedgerFilter{UserID: "u1"}, 10, 0)
	if err != nil {
		t.Fatalf("ListLedgerEntries(u1) error = %v", err)
	}
	if len(u1) != 2 {
		t.Fatalf("u1 entries = %d, want 2", len(u1))
	}
	bets, err := gw.ListLedgerEntries(ctx, store.LedgerFilter{RefType: "bet", RefID: "b1"}, 10, 0)
	if err != nil {
		t.Fatalf("ListLedgerEntries(bet) error = %v", err)
	}
	if len(bets) != 1 || bets[0].Amount != -2 {
		t.Fatalf("bet entries = %+v", bets)
	}
	future := time.Now().Add(time.Hour)
	none, err := gw.ListLedgerEntries(ctx, store.LedgerFilter{From: &future}, 10, 0)
	if err != nil {
		t.Fatalf("ListLedgerEntries(from) error = %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("entries after %v = %d, want 0", future, len(none))
	}
	page, err := gw.ListLedgerEntries(ctx, store.LedgerFilter{}, 2, 2)
	if err != nil {
		t.Fatalf("ListLedgerEntries(page) error = %v", err)
	}
	if len(page) != 1 {
		t.Fatalf("second page = %d, want 1", len(page))
	}
}

func testChallenges(t *testing.T, gw store.Gateway) {
	ctx := context.Background()
	first, err := gw.CreateChallenge(ctx, store.Challenge{Name: "one", Reward: 5})
	if err != nil {
		t.Fatalf("CreateChallenge() error = %v", err)
	}
	second, err := gw.CreateChallenge(ctx, store.Challenge{Name: "two", Reward: 0, Repeatable: true})
	if err != nil {
		t.Fatalf("CreateChallenge() error = %v", err)
	}
	if second <= first {
		t.Fatalf("challenge ids %d then %d", first, second)
	}
	c, err := gw.GetChallenge(ctx, second)
	if err != nil {
		t.Fatalf("GetChallenge() error = %v", err)
	}
	if c.Name != "two" || !c.Repeatable {
		t.Fatalf("GetChallenge() = %+v", c)
	}
	if _, err := gw.GetChallenge(ctx, second+1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetChallenge(missing) error = %v", err)
	}

	inTx(t, gw, func(ctx context.Context, tx store.Tx) error {
		if err := tx.EnsureAccount(ctx, "u1", 0); err != nil {
			return err
		}
		if _, err := tx.GetCompletionForUpdate(ctx, "u1", first); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("GetCompletionForUpdate(before) error = %v", err)
		}
		for want := int64(1); want <= 2; want++ {
			got, err := tx.IncrementCompletion(ctx, "u1", first)
			if err != nil {
				return err
			}
			if got != want {
				t.Errorf("IncrementCompletion() = %d, want %d", got, want)
			}
		}
		c, err := tx.GetCompletionForUpdate(ctx, "u1", first)
		if err != nil {
			return err
		}
		if c.Count != 2 {
			t.Errorf("completion count = %d, want 2", c.Count)
		}
		return nil
	})

	views, err := gw.ListCompletions(ctx)
	if err != nil {
		t.Fatalf("ListCompletions() error = %v", err)
	}
	if len(views) != 1 || views[0].ChallengeName != "one" || views[0].Count != 2 {
		t.Fatalf("ListCompletions() = %+v", views)
	}
}

func newEvent(scope string, closeTime time.Time) store.Event {
	return store.Event{
		ID:        store.NewID(),
		ScopeID:   scope,
		OutcomeA:  "Red Team",
		OutcomeB:  "Blue Team",
		OddsA:     decimal.RequireFromString("1.75"),
		OddsB:     decimal.RequireFromString("2.1"),
		CloseTime: closeTime,
		State:     store.EventOpen,
	}
}

func testEvents(t *testing.T, gw store.Gateway) {
	ctx := context.Background()
	closeAt := time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)
	ev := newEvent("guild-1", closeAt)
	if err := gw.CreateEvent(ctx, ev); err != nil {
		t.Fatalf("CreateEvent() error = %v", err)
	}
	if err := gw.CreateEvent(ctx, ev); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("CreateEvent(duplicate id) error = %v, want ErrConflict", err)
	}
	later := newEvent("guild-1", closeAt.Add(time.Minute))
	if err := gw.CreateEvent(ctx, later); err != nil {
		t.Fatalf("CreateEvent() error = %v", err)
	}

	got, err := gw.GetEvent(ctx, "guild-1", ev.ID)
	if err != nil {
		t.Fatalf("GetEvent() error = %v", err)
	}
	if !got.OddsA.Equal(ev.OddsA) || !got.OddsB.Equal(ev.OddsB) {
		t.Fatalf("odds = %s/%s, want 1.75/2.1", got.OddsA, got.OddsB)
	}
	if !got.CloseTime.Equal(closeAt) || got.State != store.EventOpen || got.Winner != "" {
		t.Fatalf("GetEvent() = %+v", got)
	}
	if got.OutcomeAKey != "red team" || got.OutcomeBKey != "blue team" {
		t.Fatalf("outcome keys = %q/%q, want stored normalized keys", got.OutcomeAKey, got.OutcomeBKey)
	}
	if label, key, _, ok := got.Resolve("  BLUE team "); !ok || label != "Blue Team" || key != "blue team" {
		t.Fatalf("Resolve(BLUE team) = %q, %q, %v", label, key, ok)
	}
	if _, err := gw.GetEvent(ctx, "guild-2", ev.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetEvent(other scope) error = %v", err)
	}

	settledAt := time.Now().UTC().Truncate(time.Millisecond)
	inTx(t, gw, func(ctx context.Context, tx store.Tx) error {
		if err := tx.SetEventWinner(ctx, "guild-1", ev.ID, "red team"); err != nil {
			return err
		}
		locked, err := tx.GetEventForUpdate(ctx, "guild-1", ev.ID)
		if err != nil {
			return err
		}
		if !locked.SettlementStarted() || locked.State != store.EventOpen {
			t.Errorf("after SetEventWinner = %+v", locked)
		}
		return tx.MarkEventSettled(ctx, "guild-1", ev.ID, settledAt)
	})
	got, err = gw.GetEvent(ctx, "guild-1", ev.ID)
	if err != nil {
		t.Fatalf("GetEvent() error = %v", err)
	}
	if got.State != store.EventSettled || got.Winner != "red team" || got.SettledAt == nil || !got.SettledAt.Equal(settledAt) {
		t.Fatalf("settled event = %+v", got)
	}

	open, err := gw.ListOpenEvents(ctx, "guild-1")
	if err != nil {
		t.Fatalf("ListOpenEvents() error = %v", err)
	}
	if len(open) != 1 || open[0].ID != later.ID {
		t.Fatalf("ListOpenEvents() = %+v", open)
	}
}

func testBets(t *testing.T, gw store.Gateway) {
	ctx := context.Background()
	ev := newEvent("guild-1", time.Now().Add(time.Hour))
	if err := gw.CreateEvent(ctx, ev); err != nil {
		t.Fatalf("CreateEvent() error = %v", err)
	}
	bet := store.Bet{
		ID:         store.NewID(),
		ScopeID:    "guild-1",
		EventID:    ev.ID,
		UserID:     "u1",
		Outcome:    "Red Team",
		OutcomeKey: "red team",
		Amount:     25,
	}
	inTx(t, gw, func(ctx context.Context, tx store.Tx) error {
		if err := tx.EnsureAccount(ctx, "u1", 0); err != nil {
			return err
		}
		return tx.InsertBet(ctx, bet)
	})

	dup := bet
	dup.ID = store.NewID()
	err := gw.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertBet(ctx, dup)
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("InsertBet(same user, same event) error = %v, want ErrConflict", err)
	}

	at := time.Now().UTC().Truncate(time.Millisecond)
	inTx(t, gw, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.GetBetForUpdate(ctx, bet.ID)
		if err != nil {
			return err
		}
		if b.Settled() || b.Payout != nil || b.OutcomeKey != "red team" {
			t.Errorf("fresh bet = %+v", b)
		}
		return tx.MarkBetSettled(ctx, bet.ID, 18, at)
	})
	err = gw.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.MarkBetSettled(ctx, bet.ID, 18, at)
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("MarkBetSettled(twice) error = %v, want ErrConflict", err)
	}
	err = gw.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetBetForUpdate(ctx, "missing")
		return err
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetBetForUpdate(missing) error = %v", err)
	}

	bets, err := gw.ListBets(ctx, "guild-1", ev.ID)
	if err != nil {
		t.Fatalf("ListBets() error = %v", err)
	}
	if len(bets) != 1 || bets[0].Payout == nil || *bets[0].Payout != 18 || !bets[0].SettledAt.Equal(at) {
		t.Fatalf("ListBets() = %+v", bets)
	}
}
