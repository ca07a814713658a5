package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"wagerboard/internal/store"
)

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), "  "); err == nil {
		t.Fatal("Open(blank) expected error")
	}
}

func TestReopenKeepsDataAndSkipsMigrations(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "wagerboard.db")

	st, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	err = st.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.EnsureAccount(ctx, "u1", 42)
	})
	if err != nil {
		t.Fatalf("WithinTx() error = %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	st, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer st.Close()
	acct, err := st.GetAccount(ctx, "u1")
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if acct.Balance != 42 {
		t.Fatalf("balance = %d, want 42", acct.Balance)
	}

	var applied int
	if err := st.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+migrationTable).Scan(&applied); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if applied != 1 {
		t.Fatalf("applied migrations = %d, want 1", applied)
	}
}

func TestUpSection(t *testing.T) {
	in := "-- header\n-- +migrate Up\nCREATE TABLE a (x INT);\n-- +migrate Down\nDROP TABLE a;\n"
	got := upSection(in)
	if got == in || !containsAll(got, "CREATE TABLE a") || containsAll(got, "DROP TABLE") {
		t.Fatalf("upSection() = %q", got)
	}
	if upSection("SELECT 1;") != "SELECT 1;" {
		t.Fatal("content without markers should pass through")
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
