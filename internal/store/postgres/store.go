// Package postgres implements store.Gateway on PostgreSQL. Row locks taken
// with SELECT ... FOR UPDATE serialize concurrent mutations of one account,
// event or bet.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wagerboard/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	Pool *pgxpool.Pool
}

var _ store.Gateway = (*Store)(nil)

func New(dsn string) (*Store, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() error {
	if s.Pool != nil {
		s.Pool.Close()
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.Pool.Ping(ctx)
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &txStore{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetAccount(ctx context.Context, userID string) (store.Account, error) {
	return getAccount(ctx, s.Pool, userID, false)
}

func (s *Store) ListTopAccounts(ctx context.Context, limit int) ([]store.Account, error) {
	rows, err := s.Pool.Query(ctx, `SELECT user_id, balance, created_at, updated_at FROM accounts ORDER BY balance DESC, user_id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []store.Account{}
	for rows.Next() {
		var a store.Account
		if err := rows.Scan(&a.UserID, &a.Balance, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) ListLedgerEntries(ctx context.Context, f store.LedgerFilter, limit, offset int) ([]store.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT id, user_id, type, amount, balance_after, ref_type, ref_id, created_at
		FROM ledger_entries
		WHERE ($1::text = '' OR user_id = $1)
		  AND ($2::text = '' OR ref_type = $2)
		  AND ($3::text = '' OR ref_id = $3)
		  AND ($4::timestamptz IS NULL OR created_at >= $4)
		  AND ($5::timestamptz IS NULL OR created_at < $5)
		ORDER BY created_at DESC, id DESC
		LIMIT $6 OFFSET $7`,
		f.UserID, f.RefType, f.RefID, timeParam(f.From), timeParam(f.To), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []store.LedgerEntry{}
	for rows.Next() {
		var e store.LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Amount, &e.BalanceAfter, &e.RefType, &e.RefID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) CreateChallenge(ctx context.Context, c store.Challenge) (int64, error) {
	var id int64
	err := s.Pool.QueryRow(ctx, `INSERT INTO challenges (name, reward, repeatable) VALUES ($1,$2,$3) RETURNING id`,
		c.Name, c.Reward, c.Repeatable).Scan(&id)
	return id, err
}

func (s *Store) GetChallenge(ctx context.Context, id int64) (store.Challenge, error) {
	return getChallenge(ctx, s.Pool, id)
}

func (s *Store) ListChallenges(ctx context.Context) ([]store.Challenge, error) {
	rows, err := s.Pool.Query(ctx, `SELECT id, name, reward, repeatable, created_at FROM challenges ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []store.Challenge{}
	for rows.Next() {
		var c store.Challenge
		if err := rows.Scan(&c.ID, &c.Name, &c.Reward, &c.Repeatable, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ListCompletions(ctx context.Context) ([]store.CompletionView, error) {
	rows, err := s.Pool.Query(ctx, `
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
		var v store.CompletionView
		if err := rows.Scan(&v.UserID, &v.ChallengeID, &v.Count, &v.UpdatedAt, &v.ChallengeName); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) CreateEvent(ctx context.Context, e store.Event) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO betting_events
			(id, scope_id, outcome_a, outcome_a_key, outcome_b, outcome_b_key, odds_a, odds_b, close_time, state)
		VALUES ($1,$2,$3,$4,$5,$6,$7::numeric,$8::numeric,$9,$10)`,
		e.ID, e.ScopeID,
		e.OutcomeA, store.OutcomeKey(e.OutcomeA),
		e.OutcomeB, store.OutcomeKey(e.OutcomeB),
		e.OddsA.String(), e.OddsB.String(),
		e.CloseTime, string(store.EventOpen))
	return mapConflict(err)
}

func (s *Store) GetEvent(ctx context.Context, scopeID, eventID string) (store.Event, error) {
	return getEvent(ctx, s.Pool, scopeID, eventID, false)
}

func (s *Store) ListOpenEvents(ctx context.Context, scopeID string) ([]store.Event, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+eventColumns+` FROM betting_events
		WHERE scope_id = $1 AND state = 'open'
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
	rows, err := s.Pool.Query(ctx, `SELECT `+betColumns+` FROM bets
		WHERE scope_id = $1 AND event_id = $2
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

type txStore struct {
	q querier
}

func (t *txStore) EnsureAccount(ctx context.Context, userID string, initial int64) error {
	_, err := t.q.Exec(ctx, `INSERT INTO accounts (user_id, balance) VALUES ($1,$2) ON CONFLICT (user_id) DO NOTHING`, userID, initial)
	return err
}

func (t *txStore) GetAccountForUpdate(ctx context.Context, userID string) (store.Account, error) {
	return getAccount(ctx, t.q, userID, true)
}

func (t *txStore) SetBalance(ctx context.Context, userID string, balance int64) error {
	tag, err := t.q.Exec(ctx, `UPDATE accounts SET balance = $1, updated_at = now() WHERE user_id = $2`, balance, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *txStore) InsertLedgerEntry(ctx context.Context, e store.LedgerEntry) error {
	_, err := t.q.Exec(ctx, `INSERT INTO ledger_entries (id, user_id, type, amount, balance_after, ref_type, ref_id) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.UserID, e.Type, e.Amount, e.BalanceAfter, e.RefType, e.RefID)
	return err
}

func (t *txStore) GetChallenge(ctx context.Context, id int64) (store.Challenge, error) {
	return getChallenge(ctx, t.q, id)
}

func (t *txStore) GetCompletionForUpdate(ctx context.Context, userID string, challengeID int64) (store.Completion, error) {
	var c store.Completion
	err := t.q.QueryRow(ctx, `SELECT user_id, challenge_id, count, updated_at FROM challenge_completions
		WHERE user_id = $1 AND challenge_id = $2 FOR UPDATE`, userID, challengeID).
		Scan(&c.UserID, &c.ChallengeID, &c.Count, &c.UpdatedAt)
	if err != nil {
		return store.Completion{}, mapNotFound(err)
	}
	return c, nil
}

func (t *txStore) IncrementCompletion(ctx context.Context, userID string, challengeID int64) (int64, error) {
	var count int64
	err := t.q.QueryRow(ctx, `
		INSERT INTO challenge_completions (user_id, challenge_id, count) VALUES ($1,$2,1)
		ON CONFLICT (user_id, challenge_id)
		DO UPDATE SET count = challenge_completions.count + 1, updated_at = now()
		RETURNING count`, userID, challengeID).Scan(&count)
	return count, err
}

func (t *txStore) GetEventForUpdate(ctx context.Context, scopeID, eventID string) (store.Event, error) {
	return getEvent(ctx, t.q, scopeID, eventID, true)
}

func (t *txStore) SetEventWinner(ctx context.Context, scopeID, eventID, winner string) error {
	tag, err := t.q.Exec(ctx, `UPDATE betting_events SET winner = $1 WHERE scope_id = $2 AND id = $3 AND state = 'open'`, winner, scopeID, eventID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *txStore) MarkEventSettled(ctx context.Context, scopeID, eventID string, at time.Time) error {
	tag, err := t.q.Exec(ctx, `UPDATE betting_events SET state = 'settled', settled_at = $1 WHERE scope_id = $2 AND id = $3 AND state = 'open'`, at, scopeID, eventID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *txStore) InsertBet(ctx context.Context, b store.Bet) error {
	_, err := t.q.Exec(ctx, `INSERT INTO bets (id, scope_id, event_id, user_id, outcome, outcome_key, amount) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		b.ID, b.ScopeID, b.EventID, b.UserID, b.Outcome, b.OutcomeKey, b.Amount)
	return mapConflict(err)
}

func (t *txStore) GetBetForUpdate(ctx context.Context, betID string) (store.Bet, error) {
	row := t.q.QueryRow(ctx, `SELECT `+betColumns+` FROM bets WHERE id = $1 FOR UPDATE`, betID)
	b, err := scanBet(row)
	if err != nil {
		return store.Bet{}, mapNotFound(err)
	}
	return b, nil
}

func (t *txStore) MarkBetSettled(ctx context.Context, betID string, payout int64, at time.Time) error {
	tag, err := t.q.Exec(ctx, `UPDATE bets SET payout = $1, settled_at = $2 WHERE id = $3 AND settled_at IS NULL`, payout, at, betID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrConflict
	}
	return nil
}

const (
	eventColumns = `id, scope_id, outcome_a, outcome_a_key, outcome_b, outcome_b_key, odds_a::text, odds_b::text, close_time, state, winner, created_at, settled_at`
	betColumns   = `id, scope_id, event_id, user_id, outcome, outcome_key, amount, payout, settled_at, created_at`
)

func getAccount(ctx context.Context, q querier, userID string, forUpdate bool) (store.Account, error) {
	sql := `SELECT user_id, balance, created_at, updated_at FROM accounts WHERE user_id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	var a store.Account
	if err := q.QueryRow(ctx, sql, userID).Scan(&a.UserID, &a.Balance, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return store.Account{}, mapNotFound(err)
	}
	return a, nil
}

func getChallenge(ctx context.Context, q querier, id int64) (store.Challenge, error) {
	var c store.Challenge
	err := q.QueryRow(ctx, `SELECT id, name, reward, repeatable, created_at FROM challenges WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Reward, &c.Repeatable, &c.CreatedAt)
	if err != nil {
		return store.Challenge{}, mapNotFound(err)
	}
	return c, nil
}

func getEvent(ctx context.Context, q querier, scopeID, eventID string, forUpdate bool) (store.Event, error) {
	sql := `SELECT ` + eventColumns + ` FROM betting_events WHERE scope_id = $1 AND id = $2`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	e, err := scanEvent(q.QueryRow(ctx, sql, scopeID, eventID))
	if err != nil {
		return store.Event{}, mapNotFound(err)
	}
	return e, nil
}

func scanEvent(row pgx.Row) (store.Event, error) {
	var (
		e         store.Event
		oddsA     string
		oddsB     string
		state     string
		settledAt *time.Time
	)
	if err := row.Scan(&e.ID, &e.ScopeID, &e.OutcomeA, &e.OutcomeAKey, &e.OutcomeB, &e.OutcomeBKey, &oddsA, &oddsB, &e.CloseTime, &state, &e.Winner, &e.CreatedAt, &settledAt); err != nil {
		return store.Event{}, err
	}
	var err error
	if e.OddsA, err = parseOdds(oddsA); err != nil {
		return store.Event{}, err
	}
	if e.OddsB, err = parseOdds(oddsB); err != nil {
		return store.Event{}, err
	}
	e.State = store.EventState(state)
	e.SettledAt = settledAt
	return e, nil
}

func scanBet(row pgx.Row) (store.Bet, error) {
	var b store.Bet
	err := row.Scan(&b.ID, &b.ScopeID, &b.EventID, &b.UserID, &b.Outcome, &b.OutcomeKey, &b.Amount, &b.Payout, &b.SettledAt, &b.CreatedAt)
	return b, err
}

func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.ConstraintName)
	}
	return err
}
