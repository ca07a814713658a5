package ledger

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"wagerboard/internal/apperr"
	"wagerboard/internal/store"
	"wagerboard/internal/testutil"
)

func TestGetBalanceOpensAccount(t *testing.T) {
	st := testutil.OpenTestStore(t)
	l := New(st, 25)
	ctx := context.Background()

	if _, err := st.GetAccount(ctx, "u1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetAccount() before first use error = %v", err)
	}
	bal, err := l.GetBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("GetBalance() error = %v", err)
	}
	if bal != 25 {
		t.Fatalf("balance = %d, want default 25", bal)
	}
	if _, err := st.GetAccount(ctx, "u1"); err != nil {
		t.Fatalf("GetAccount() after GetBalance error = %v", err)
	}
	if _, err := l.GetBalance(ctx, "  "); !errors.Is(err, apperr.ErrInvalidUser) {
		t.Fatalf("GetBalance(blank) error = %v", err)
	}
}

func TestAdjustBalance(t *testing.T) {
	st := testutil.OpenTestStore(t)
	l := New(st, 0)
	ctx := context.Background()

	steps := []struct {
		delta   int64
		want    int64
		wantErr error
	}{
		{delta: 100, want: 100},
		{delta: -30, want: 70},
		{delta: 0, want: 70},
		{delta: -71, wantErr: apperr.ErrInsufficientFunds},
		{delta: -70, want: 0},
	}
	for i, s := range steps {
		got, err := l.AdjustBalance(ctx, "u1", s.delta)
		if s.wantErr != nil {
			if !errors.Is(err, s.wantErr) {
				t.Fatalf("step %d: AdjustBalance(%d) error = %v, want %v", i, s.delta, err, s.wantErr)
			}
			continue
		}
		if err != nil {
			t.Fatalf("step %d: AdjustBalance(%d) error = %v", i, s.delta, err)
		}
		if got != s.want {
			t.Fatalf("step %d: balance = %d, want %d", i, got, s.want)
		}
	}

	entries, err := l.ListEntries(ctx, store.LedgerFilter{UserID: "u1"}, 0, 0)
	if err != nil {
		t.Fatalf("ListEntries() error = %v", err)
	}
	// Zero deltas and rejected adjustments leave no entry.
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	var sum int64
	for _, e := range entries {
		if e.Type != store.EntryAdjust || e.RefType != "manual" {
			t.Fatalf("unexpected entry %+v", e)
		}
		sum += e.Amount
	}
	if sum != 0 {
		t.Fatalf("sum of deltas = %d, want final balance 0", sum)
	}
	if entries[0].BalanceAfter != 0 {
		t.Fatalf("newest entry balance_after = %d, want 0", entries[0].BalanceAfter)
	}
}

func TestBalanceEqualsDefaultPlusDeltas(t *testing.T) {
	st := testutil.OpenTestStore(t)
	l := New(st, 10)
	ctx := context.Background()

	deltas := []int64{5, -3, 40, -52, 7, -100, 1}
	for _, d := range deltas {
		_, _ = l.AdjustBalance(ctx, "u1", d)
	}
	bal, err := l.GetBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("GetBalance() error = %v", err)
	}
	entries, err := l.ListEntries(ctx, store.LedgerFilter{UserID: "u1"}, 500, 0)
	if err != nil {
		t.Fatalf("ListEntries() error = %v", err)
	}
	sum := l.DefaultBalance()
	for _, e := range entries {
		sum += e.Amount
	}
	if sum != bal {
		t.Fatalf("default + deltas = %d, balance = %d", sum, bal)
	}
	if bal < 0 {
		t.Fatalf("balance went negative: %d", bal)
	}
}

func TestConcurrentDebitsNeverGoNegative(t *testing.T) {
	st := testutil.OpenTestStore(t)
	l := New(st, 50)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.AdjustBalance(ctx, "u1", -7)
			if err != nil && !errors.Is(err, apperr.ErrInsufficientFunds) {
				t.Errorf("AdjustBalance() unexpected error = %v", err)
			}
		}()
	}
	wg.Wait()

	bal, err := l.GetBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("GetBalance() error = %v", err)
	}
	if bal != 1 {
		t.Fatalf("balance = %d, want 50 - 7*7 = 1", bal)
	}
}

func TestListTopUsers(t *testing.T) {
	st := testutil.OpenTestStore(t)
	l := New(st, 0, WithTopUsersMax(3))
	ctx := context.Background()

	for user, amount := range map[string]int64{"carol": 50, "alice": 50, "bob": 80, "dave": 10} {
		if _, err := l.AdjustBalance(ctx, user, amount); err != nil {
			t.Fatalf("AdjustBalance(%s) error = %v", user, err)
		}
	}

	if _, err := l.ListTopUsers(ctx, 0); !errors.Is(err, apperr.ErrInvalidLimit) {
		t.Fatalf("ListTopUsers(0) error = %v", err)
	}
	got, err := l.ListTopUsers(ctx, 10)
	if err != nil {
		t.Fatalf("ListTopUsers() error = %v", err)
	}
	want := []string{"bob", "alice", "carol"}
	if len(got) != len(want) {
		t.Fatalf("ListTopUsers() len = %d, want capped %d", len(got), len(want))
	}
	for i, u := range want {
		if got[i].UserID != u {
			t.Fatalf("rank %d = %s, want %s", i, got[i].UserID, u)
		}
	}

	two, err := l.ListTopUsers(ctx, 2)
	if err != nil {
		t.Fatalf("ListTopUsers(2) error = %v", err)
	}
	if len(two) != 2 || two[1].UserID != "alice" {
		t.Fatalf("ListTopUsers(2) = %+v", two)
	}
}

func TestDebitCreditGuards(t *testing.T) {
	st := testutil.OpenTestStore(t)
	l := New(st, 5)
	ctx := context.Background()

	err := st.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		acct, err := l.Open(ctx, tx, "u1")
		if err != nil {
			return err
		}
		if _, err := Debit(ctx, tx, acct, 0, store.EntryAdjust, Ref{}); !errors.Is(err, apperr.ErrInvalidAmount) {
			t.Errorf("Debit(0) error = %v", err)
		}
		if _, err := Credit(ctx, tx, acct, -1, store.EntryAdjust, Ref{}); !errors.Is(err, apperr.ErrInvalidAmount) {
			t.Errorf("Credit(-1) error = %v", err)
		}
		if _, err := Debit(ctx, tx, acct, 6, store.EntryAdjust, Ref{}); !errors.Is(err, apperr.ErrInsufficientFunds) {
			t.Errorf("Debit(6) error = %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithinTx() error = %v", err)
	}
}

func TestAdjustBalanceOverflowIsRejected(t *testing.T) {
	st := testutil.OpenTestStore(t)
	l := New(st, 0)
	ctx := context.Background()

	if _, err := l.AdjustBalance(ctx, "u1", math.MaxInt64); err != nil {
		t.Fatalf("AdjustBalance(max) error = %v", err)
	}
	bal, err := l.AdjustBalance(ctx, "u1", 1)
	if !errors.Is(err, apperr.ErrBalanceOverflow) {
		t.Fatalf("AdjustBalance(+1) = %d, %v, want balance_overflow", bal, err)
	}
	if kind := apperr.KindOf(err); kind != apperr.KindValidation {
		t.Fatalf("KindOf() = %v, want validation", kind)
	}
	if got, _ := l.GetBalance(ctx, "u1"); got != math.MaxInt64 {
		t.Fatalf("balance = %d, want max unchanged", got)
	}
	entries, err := l.ListEntries(ctx, store.LedgerFilter{UserID: "u1"}, 0, 0)
	if err != nil {
		t.Fatalf("ListEntries() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if got, err := l.AdjustBalance(ctx, "u1", -1); err != nil || got != math.MaxInt64-1 {
		t.Fatalf("AdjustBalance(-1) = %d, %v", got, err)
	}
}

func TestFits(t *testing.T) {
	cases := []struct {
		balance, amount int64
		want            bool
	}{
		{balance: 0, amount: math.MaxInt64, want: true},
		{balance: 1, amount: math.MaxInt64, want: false},
		{balance: math.MaxInt64, amount: 0, want: true},
		{balance: math.MaxInt64 - 10, amount: 10, want: true},
		{balance: math.MaxInt64 - 10, amount: 11, want: false},
		{balance: math.MaxInt64, amount: -5, want: true},
	}
	for _, tc := range cases {
		if got := Fits(tc.balance, tc.amount); got != tc.want {
			t.Fatalf("Fits(%d, %d) = %v, want %v", tc.balance, tc.amount, got, tc.want)
		}
	}
}
