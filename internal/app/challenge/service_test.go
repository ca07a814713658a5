package challenge

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"wagerboard/internal/apperr"
	"wagerboard/internal/ledger"
	"wagerboard/internal/notify"
	"wagerboard/internal/store"
	"wagerboard/internal/testutil"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func newRegistry(t *testing.T, defaultBalance int64) (*Registry, *ledger.Ledger) {
	t.Helper()
	st := testutil.OpenTestStore(t)
	l := ledger.New(st, defaultBalance)
	return NewRegistry(st, l), l
}

func TestCreateChallengeValidation(t *testing.T) {
	r, _ := newRegistry(t, 0)
	ctx := context.Background()

	cases := []struct {
		name   string
		title  string
		reward int64
		want   error
	}{
		{name: "negative reward", title: "daily", reward: -1, want: apperr.ErrInvalidReward},
		{name: "blank name", title: "  ", reward: 10, want: apperr.ErrInvalidName},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := r.CreateChallenge(ctx, tc.title, tc.reward, false); !errors.Is(err, tc.want) {
				t.Fatalf("CreateChallenge() error = %v, want %v", err, tc.want)
			}
		})
	}

	items, err := r.ListChallenges(ctx)
	if err != nil {
		t.Fatalf("ListChallenges() error = %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no challenges after rejected creates, got %d", len(items))
	}
}

func TestCreateChallengeIDsIncrease(t *testing.T) {
	r, _ := newRegistry(t, 0)
	ctx := context.Background()

	first, err := r.CreateChallenge(ctx, "first win", 10, false)
	if err != nil {
		t.Fatalf("CreateChallenge() error = %v", err)
	}
	second, err := r.CreateChallenge(ctx, "daily login", 0, true)
	if err != nil {
		t.Fatalf("CreateChallenge() error = %v", err)
	}
	if second <= first {
		t.Fatalf("ids not increasing: %d then %d", first, second)
	}

	items, err := r.ListChallenges(ctx)
	if err != nil {
		t.Fatalf("ListChallenges() error = %v", err)
	}
	if len(items) != 2 || items[0].ID != first || items[1].ID != second {
		t.Fatalf("ListChallenges() = %+v", items)
	}

	got, err := r.GetChallenge(ctx, second)
	if err != nil {
		t.Fatalf("GetChallenge() error = %v", err)
	}
	if got.Name != "daily login" || !got.Repeatable || got.Reward != 0 {
		t.Fatalf("GetChallenge() = %+v", got)
	}
	if _, err := r.GetChallenge(ctx, second+100); !errors.Is(err, apperr.ErrChallengeNotFound) {
		t.Fatalf("GetChallenge(missing) error = %v", err)
	}
}

func TestCompleteNonRepeatableOnce(t *testing.T) {
	r, l := newRegistry(t, 0)
	ctx := context.Background()

	id, err := r.CreateChallenge(ctx, "first win", 10, false)
	if err != nil {
		t.Fatalf("CreateChallenge() error = %v", err)
	}
	res, err := r.CompleteChallenge(ctx, "u1", id)
	if err != nil {
		t.Fatalf("CompleteChallenge() error = %v", err)
	}
	if res.Balance != 10 || res.Count != 1 {
		t.Fatalf("CompleteChallenge() = %+v, want balance 10 count 1", res)
	}

	if _, err := r.CompleteChallenge(ctx, "u1", id); !errors.Is(err, apperr.ErrAlreadyCompleted) {
		t.Fatalf("second CompleteChallenge() error = %v, want already_completed", err)
	}
	bal, err := l.GetBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("GetBalance() error = %v", err)
	}
	if bal != 10 {
		t.Fatalf("balance = %d, want 10", bal)
	}
}

func TestCompleteRepeatableCounts(t *testing.T) {
	r, _ := newRegistry(t, 5)
	ctx := context.Background()

	id, err := r.CreateChallenge(ctx, "daily", 3, true)
	if err != nil {
		t.Fatalf("CreateChallenge() error = %v", err)
	}
	var last CompletionResult
	for i := 0; i < 3; i++ {
		last, err = r.CompleteChallenge(ctx, "u1", id)
		if err != nil {
			t.Fatalf("CompleteChallenge() #%d error = %v", i+1, err)
		}
	}
	if last.Count != 3 || last.Balance != 5+9 {
		t.Fatalf("after 3 completions = %+v, want count 3 balance 14", last)
	}
}

func TestCompleteZeroRewardRecordsCompletion(t *testing.T) {
	r, l := newRegistry(t, 0)
	ctx := context.Background()

	id, err := r.CreateChallenge(ctx, "say hi", 0, false)
	if err != nil {
		t.Fatalf("CreateChallenge() error = %v", err)
	}
	res, err := r.CompleteChallenge(ctx, "u1", id)
	if err != nil {
		t.Fatalf("CompleteChallenge() error = %v", err)
	}
	if res.Count != 1 || res.Balance != 0 {
		t.Fatalf("CompleteChallenge() = %+v", res)
	}
	entries, err := l.ListEntries(ctx, ledgerFilterFor("u1"), 10, 0)
	if err != nil {
		t.Fatalf("ListEntries() error = %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("zero reward wrote %d ledger entries", len(entries))
	}

	views, err := r.ListCompletions(ctx)
	if err != nil {
		t.Fatalf("ListCompletions() error = %v", err)
	}
	if len(views) != 1 || views[0].ChallengeName != "say hi" || views[0].Count != 1 {
		t.Fatalf("ListCompletions() = %+v", views)
	}
}

func TestCompleteMissingChallengeChangesNothing(t *testing.T) {
	r, l := newRegistry(t, 0)
	ctx := context.Background()

	if _, err := r.CompleteChallenge(ctx, "u1", 42); !errors.Is(err, apperr.ErrChallengeNotFound) {
		t.Fatalf("CompleteChallenge() error = %v, want challenge_not_found", err)
	}
	top, err := l.ListTopUsers(ctx, 10)
	if err != nil {
		t.Fatalf("ListTopUsers() error = %v", err)
	}
	if len(top) != 0 {
		t.Fatalf("failed completion created accounts: %+v", top)
	}
}

func TestListCompletionsOrder(t *testing.T) {
	r, _ := newRegistry(t, 0)
	ctx := context.Background()

	a, _ := r.CreateChallenge(ctx, "a", 1, true)
	b, _ := r.CreateChallenge(ctx, "b", 1, true)
	for _, step := range []struct {
		user string
		id   int64
	}{{"u2", b}, {"u1", b}, {"u2", a}} {
		if _, err := r.CompleteChallenge(ctx, step.user, step.id); err != nil {
			t.Fatalf("CompleteChallenge(%s, %d) error = %v", step.user, step.id, err)
		}
	}

	views, err := r.ListCompletions(ctx)
	if err != nil {
		t.Fatalf("ListCompletions() error = %v", err)
	}
	want := []struct {
		user string
		id   int64
	}{{"u2", a}, {"u1", b}, {"u2", b}}
	if len(views) != len(want) {
		t.Fatalf("ListCompletions() = %+v", views)
	}
	for i, w := range want {
		if views[i].UserID != w.user || views[i].ChallengeID != w.id {
			t.Fatalf("views[%d] = %+v, want %s/%d", i, views[i], w.user, w.id)
		}
	}
}

func ledgerFilterFor(user string) store.LedgerFilter {
	return store.LedgerFilter{UserID: user}
}

func TestConcurrentCompletionsPayOnce(t *testing.T) {
	r, l := newRegistry(t, 0)
	ctx := context.Background()
	id, err := r.CreateChallenge(ctx, "first blood", 25, false)
	if err != nil {
		t.Fatalf("CreateChallenge() error = %v", err)
	}

	const n = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.CompleteChallenge(ctx, "u1", id)
			switch {
			case err == nil:
				mu.Lock()
				succeeded++
				mu.Unlock()
			case !errors.Is(err, apperr.ErrAlreadyCompleted):
				t.Errorf("CompleteChallenge() unexpected error = %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Fatalf("successful completions = %d, want 1", succeeded)
	}
	if bal, err := l.GetBalance(ctx, "u1"); err != nil || bal != 25 {
		t.Fatalf("GetBalance() = %d, %v, want 25", bal, err)
	}
	entries, err := l.ListEntries(ctx, store.LedgerFilter{UserID: "u1", RefType: "challenge"}, 0, 0)
	if err != nil {
		t.Fatalf("ListEntries() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Type != store.EntryChallengeReward {
		t.Fatalf("reward entries = %+v, want exactly one", entries)
	}
	views, err := r.ListCompletions(ctx)
	if err != nil {
		t.Fatalf("ListCompletions() error = %v", err)
	}
	if len(views) != 1 || views[0].Count != 1 {
		t.Fatalf("completions = %+v, want one with count 1", views)
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, notify.Message) error {
	return errors.New("broker down")
}

func TestPublishFailureIsLoggedNotReturned(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	st := testutil.OpenTestStore(t)
	r := NewRegistry(st, ledger.New(st, 0), WithNotifier(failingPublisher{}))
	ctx := context.Background()
	id, err := r.CreateChallenge(ctx, "daily", 5, true)
	if err != nil {
		t.Fatalf("CreateChallenge() error = %v", err)
	}
	res, err := r.CompleteChallenge(ctx, "u1", id)
	if err != nil {
		t.Fatalf("CompleteChallenge() error = %v", err)
	}
	if res.Balance != 5 {
		t.Fatalf("balance = %d, want 5", res.Balance)
	}
	out := buf.String()
	if !strings.Contains(out, "notify publish failed") || !strings.Contains(out, "broker down") {
		t.Fatalf("log output missing publish failure: %s", out)
	}
}
