// Package sqlite implements store.Gateway on an embedded SQLite database.
// The handle is limited to one connection and transactions begin IMMEDIATE,
// so every transaction holds the write lock for its whole lifetime.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"wagerboard/internal/store"

	"github.com/shopspring/decimal"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Gateway = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the
// embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	params := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
	if path != MemoryPath {
		path = filepath.Clean(path)
		params += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}
	db, err := sql.Open("sqlite", path+"?"+params)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(ctx, &txStore{q: tx, now: s.now}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetAccount(ctx context.Context, userID string) (store.Account, error) {
	return getAccount(ctx, s.db, userID)
}

func (s *Store) ListTopAccounts(ctx context.Context, limit int) ([]store.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, balance, created_at, updated_at FROM accounts ORDER BY balance DESC, user_id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []store.Account{}
	for rows.Next() {
		var (
			a                    store.Account
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&a.UserID, &a.Balance, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		a.CreatedAt, a.UpdatedAt = fromMillis(createdAt), fromMillis(updatedAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) ListLedgerEntries(ctx context.Context, f store.LedgerFilter, limit, offset int) ([]store.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var from, to sql.NullInt64
	if f.From != nil {
		from = sql.NullInt64{Int64: toMillis(*f.From), Valid: true}
	}
	if f.To != nil {
		to = sql.NullInt64{Int64: toMillis(*f.To), Valid: true}
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, amount, balance_after, ref_type, ref_id, created_at
		FROM ledger_entries
		WHERE (?1 = '' OR user_id = ?1)
		  AND (?2 = '' OR ref_type = ?2)
		  AND (?3 = '' OR ref_id = ?3)
		  AND (?4 IS NULL OR created_at >= ?4)
		  AND (?5 IS NULL OR created_at < ?5)
		ORDER BY created_at DESC, id DESC
		LIMIT ?6 OFFSET ?7`,
		f.UserID, f.RefType, f.RefID, from, to, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []store.LedgerEntry{}
	for rows.Next() {
		var (
			e         store.LedgerEntry
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Amount, &e.BalanceAfter, &e.RefType, &e.RefID, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = fromMillis(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) CreateChallenge(ctx context.Context, c store.Challenge) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO challenges (name, reward, repeatable, created_at) VALUES (?, ?, ?, ?)`,
		c.Name, c.Reward, c.Repeatable, toMillis(s.now()))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) GetChallenge(ctx context.Context, id int64) (store.Challenge, error) {
	return getChallenge(ctx, s.db, id)
}

func (s *Store) ListChallenges(ctx context.Context) ([]store.Challenge, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, reward, repeatable, created_at FROM challenges ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []store.Challenge{}
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ListCompletions(ctx context.Context) ([]store.CompletionView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cc.user_id, cc.challenge_id, cc.count, cc.updated_at, c.name
		FROM challenge_completions cc
		JOIN challenges c ON c.id = cc.challenge_id
		ORDER BY cc.challenge_id ASC, cc.user_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []store.CompletionView{}
	for rows.Next() {
		var (
			v         store.CompletionView
			updatedAt int64
		)
		if err := rows.Scan(&v.UserID, &v.ChallengeID, &v.Count, &updatedAt, &v.ChallengeName); err != nil {
			return nil, err
		}
		v.UpdatedAt = fromMillis(updatedAt)
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) CreateEvent(ctx context.Context, e store.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO betting_events
			(id, scope_id, outcome_a, outcome_a_key, outcome_b, outcome_b_key, odds_a, odds_b, close_time, state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ScopeID,
		e.OutcomeA, store.OutcomeKey(e.OutcomeA),
		e.OutcomeB, store.OutcomeKey(e.OutcomeB),
		e.OddsA.String(), e.OddsB.String(),
		toMillis(e.CloseTime), string(store.EventOpen), toMillis(s.now()))
	return mapConflict(err)
}

func (s *Store) GetEvent(ctx context.Context, scopeID, eventID string) (store.Event, error) {
	return getEvent(ctx, s.db, scopeID, eventID)
}

func (s *Store) ListOpenEvents(ctx context.Context, scopeID string) ([]store.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM betting_events
		WHERE scope_id = ? AND state = 'open'
		ORDER BY close_time ASC, id ASC`, scopeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []store.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) ListBets(ctx context.Context, scopeID, eventID string) ([]store.Bet, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+betColumns+` FROM bets
		WHERE scope_id = ? AND event_id = ?
		ORDER BY created_at ASC, id ASC`, scopeID, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []store.Bet{}
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// txStore runs inside an IMMEDIATE transaction, which already excludes every
// other writer, so the ...ForUpdate reads need no extra locking clause.
type txStore struct {
	q   queryer
	now func() time.Time
}

func (t *txStore) EnsureAccount(ctx context.Context, userID string, initial int64) error {
	ts := toMillis(t.now())
	_, err := t.q.ExecContext(ctx, `INSERT INTO accounts (user_id, balance, created_at, updated_at) VALUES (?, ?, ?, ?) ON CONFLICT (user_id) DO NOTHING`,
		userID, initial, ts, ts)
	return err
}

func (t *txStore) GetAccountForUpdate(ctx context.Context, userID string) (store.Account, error) {
	return getAccount(ctx, t.q, userID)
}

func (t *txStore) SetBalance(ctx context.Context, userID string, balance int64) error {
	res, err := t.q.ExecContext(ctx, `UPDATE accounts SET balance = ?, updated_at = ? WHERE user_id = ?`, balance, toMillis(t.now()), userID)
	return requireRow(res, err, store.ErrNotFound)
}

func (t *txStore) InsertLedgerEntry(ctx context.Context, e store.LedgerEntry) error {
	_, err := t.q.ExecContext(ctx, `INSERT INTO ledger_entries (id, user_id, type, amount, balance_after, ref_type, ref_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Type, e.Amount, e.BalanceAfter, e.RefType, e.RefID, toMillis(t.now()))
	return err
}

func (t *txStore) GetChallenge(ctx context.Context, id int64) (store.Challenge, error) {
	return getChallenge(ctx, t.q, id)
}

func (t *txStore) GetCompletionForUpdate(ctx context.Context, userID string, challengeID int64) (store.Completion, error) {
	var (
		c         store.Completion
		updatedAt int64
	)
	err := t.q.QueryRowContext(ctx, `SELECT user_id, challenge_id, count, updated_at FROM challenge_completions WHERE user_id = ? AND challenge_id = ?`,
		userID, challengeID).Scan(&c.UserID, &c.ChallengeID, &c.Count, &updatedAt)
	if err != nil {
		return store.Completion{}, mapNotFound(err)
	}
	c.UpdatedAt = fromMillis(updatedAt)
	return c, nil
}

func (t *txStore) IncrementCompletion(ctx context.Context, userID string, challengeID int64) (int64, error) {
	var count int64
	err := t.q.QueryRowContext(ctx, `
		INSERT INTO challenge_completions (user_id, challenge_id, count, updated_at) VALUES (?, ?, 1, ?)
		ON CONFLICT (user_id, challenge_id)
		DO UPDATE SET count = challenge_completions.count + 1, updated_at = excluded.updated_at
		RETURNING count`, userID, challengeID, toMillis(t.now())).Scan(&count)
	return count, err
}

func (t *txStore) GetEventForUpdate(ctx context.Context, scopeID, eventID string) (store.Event, error) {
	return getEvent(ctx, t.q, scopeID, eventID)
}

func (t *txStore) SetEventWinner(ctx context.Context, scopeID, eventID, winner string) error {
	res, err := t.q.ExecContext(ctx, `UPDATE betting_events SET winner = ? WHERE scope_id = ? AND id = ? AND state = 'open'`, winner, scopeID, eventID)
	return requireRow(res, err, store.ErrNotFound)
}

func (t *txStore) MarkEventSettled(ctx context.Context, scopeID, eventID string, at time.Time) error {
	res, err := t.q.ExecContext(ctx, `UPDATE betting_events SET state = 'settled', settled_at = ? WHERE scope_id = ? AND id = ? AND state = 'open'`,
		toMillis(at), scopeID, eventID)
	return requireRow(res, err, store.ErrNotFound)
}

func (t *txStore) InsertBet(ctx context.Context, b store.Bet) error {
	_, err := t.q.ExecContext(ctx, `INSERT INTO bets (id, scope_id, event_id, user_id, outcome, outcome_key, amount, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.ScopeID, b.EventID, b.UserID, b.Outcome, b.OutcomeKey, b.Amount, toMillis(t.now()))
	return mapConflict(err)
}

func (t *txStore) GetBetForUpdate(ctx context.Context, betID string) (store.Bet, error) {
	b, err := scanBet(t.q.QueryRowContext(ctx, `SELECT `+betColumns+` FROM bets WHERE id = ?`, betID))
	if err != nil {
		return store.Bet{}, mapNotFound(err)
	}
	return b, nil
}

func (t *txStore) MarkBetSettled(ctx context.Context, betID string, payout int64, at time.Time) error {
	res, err := t.q.ExecContext(ctx, `UPDATE bets SET payout = ?, settled_at = ? WHERE id = ? AND settled_at IS NULL`, payout, toMillis(at), betID)
	return requireRow(res, err, store.ErrConflict)
}

const (
	eventColumns = `id, scope_id, outcome_a, outcome_a_key, outcome_b, outcome_b_key, odds_a, odds_b, close_time, state, winner, created_at, settled_at`
	betColumns   = `id, scope_id, event_id, user_id, outcome, outcome_key, amount, payout, settled_at, created_at`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func getAccount(ctx context.Context, q queryer, userID string) (store.Account, error) {
	var (
		a                    store.Account
		createdAt, updatedAt int64
	)
	err := q.QueryRowContext(ctx, `SELECT user_id, balance, created_at, updated_at FROM accounts WHERE user_id = ?`, userID).
		Scan(&a.UserID, &a.Balance, &createdAt, &updatedAt)
	if err != nil {
		return store.Account{}, mapNotFound(err)
	}
	a.CreatedAt, a.UpdatedAt = fromMillis(createdAt), fromMillis(updatedAt)
	return a, nil
}

func getChallenge(ctx context.Context, q queryer, id int64) (store.Challenge, error) {
	c, err := scanChallenge(q.QueryRowContext(ctx, `SELECT id, name, reward, repeatable, created_at FROM challenges WHERE id = ?`, id))
	if err != nil {
		return store.Challenge{}, mapNotFound(err)
	}
	return c, nil
}

func getEvent(ctx context.Context, q queryer, scopeID, eventID string) (store.Event, error) {
	e, err := scanEvent(q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM betting_events WHERE scope_id = ? AND id = ?`, scopeID, eventID))
	if err != nil {
		return store.Event{}, mapNotFound(err)
	}
	return e, nil
}

func scanChallenge(row rowScanner) (store.Challenge, error) {
	var (
		c         store.Challenge
		createdAt int64
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Reward, &c.Repeatable, &createdAt); err != nil {
		return store.Challenge{}, err
	}
	c.CreatedAt = fromMillis(createdAt)
	return c, nil
}

func scanEvent(row rowScanner) (store.Event, error) {
	var (
		e                    store.Event
		oddsA, oddsB, state  string
		closeTime, createdAt int64
		settledAt            sql.NullInt64
	)
	if err := row.Scan(&e.ID, &e.ScopeID, &e.OutcomeA, &e.OutcomeAKey, &e.OutcomeB, &e.OutcomeBKey, &oddsA, &oddsB, &closeTime, &state, &e.Winner, &createdAt, &settledAt); err != nil {
		return store.Event{}, err
	}
	var err error
	if e.OddsA, err = decimal.NewFromString(oddsA); err != nil {
		return store.Event{}, fmt.Errorf("parse odds_a %q: %w", oddsA, err)
	}
	if e.OddsB, err = decimal.NewFromString(oddsB); err != nil {
		return store.Event{}, fmt.Errorf("parse odds_b %q: %w", oddsB, err)
	}
	e.State = store.EventState(state)
	e.CloseTime = fromMillis(closeTime)
	e.CreatedAt = fromMillis(createdAt)
	e.SettledAt = timePtr(settledAt)
	return e, nil
}

func scanBet(row rowScanner) (store.Bet, error) {
	var (
		b         store.Bet
		payout    sql.NullInt64
		settledAt sql.NullInt64
		createdAt int64
	)
	if err := row.Scan(&b.ID, &b.ScopeID, &b.EventID, &b.UserID, &b.Outcome, &b.OutcomeKey, &b.Amount, &payout, &settledAt, &createdAt); err != nil {
		return store.Bet{}, err
	}
	if payout.Valid {
		v := payout.Int64
		b.Payout = &v
	}
	b.SettledAt = timePtr(settledAt)
	b.CreatedAt = fromMillis(createdAt)
	return b, nil
}

func toMillis(v time.Time) int64 {
	return v.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func requireRow(res sql.Result, err error, none error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return none
	}
	return nil
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func mapConflict(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return fmt.Errorf("%w: %v", store.ErrConflict, err)
		}
	}
	return err
}
