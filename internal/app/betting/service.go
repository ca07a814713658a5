// Package betting runs two-outcome events: creation, stakes, and settlement
// with fixed decimal odds.
package betting

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"wagerboard/internal/apperr"
	"wagerboard/internal/ledger"
	"wagerboard/internal/metrics"
	"wagerboard/internal/notify"
	"wagerboard/internal/store"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type Engine struct {
	store     store.Gateway
	ledger    *ledger.Ledger
	notifier  notify.Publisher
	now       func() time.Time
	authorize Authorizer
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithNotifier(p notify.Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.notifier = p
		}
	}
}

// WithSettleAuthorizer installs a check run before CreateEvent and
// SettleEvent. The actor comes from WithActor on the request context.
func WithSettleAuthorizer(fn Authorizer) Option {
	return func(e *Engine) {
		e.authorize = fn
	}
}

func NewEngine(st store.Gateway, l *ledger.Ledger, opts ...Option) *Engine {
	e := &Engine{store: st, ledger: l, notifier: notify.Nop{}, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) CreateEvent(ctx context.Context, scopeID, outcomeA, outcomeB string, oddsA, oddsB decimal.Decimal, closeTime time.Time) (string, error) {
	scopeID = strings.TrimSpace(scopeID)
	outcomeA = strings.TrimSpace(outcomeA)
	outcomeB = strings.TrimSpace(outcomeB)
	switch {
	case scopeID == "":
		return "", apperr.ErrInvalidScope
	case outcomeA == "" || outcomeB == "" || store.OutcomeKey(outcomeA) == store.OutcomeKey(outcomeB):
		return "", apperr.ErrInvalidOutcome
	case !oddsA.IsPositive() || !oddsB.IsPositive():
		return "", apperr.ErrInvalidOdds
	case !closeTime.After(e.now()):
		return "", apperr.ErrInvalidCloseTime
	}
	if err := e.checkActor(ctx, scopeID); err != nil {
		return "", err
	}

	ev := store.Event{
		ID:        store.NewID(),
		ScopeID:   scopeID,
		OutcomeA:  outcomeA,
		OutcomeB:  outcomeB,
		OddsA:     oddsA,
		OddsB:     oddsB,
		CloseTime: closeTime.UTC(),
		State:     store.EventOpen,

		OutcomeAKey: store.OutcomeKey(outcomeA),
		OutcomeBKey: store.OutcomeKey(outcomeB),
	}
	if err := e.store.CreateEvent(ctx, ev); err != nil {
		err = apperr.Storage("create_event", err)
		metrics.RecordError("create_event", err)
		return "", err
	}
	metrics.EventsCreated.Inc()
	log.Info().Str("scope_id", scopeID).Str("event_id", ev.ID).Str("outcome_a", outcomeA).Str("outcome_b", outcomeB).
		Str("odds_a", oddsA.String()).Str("odds_b", oddsB.String()).Time("close_time", ev.CloseTime).Msg("event created")
	e.publish(ctx, notify.Message{
		Type:    notify.TypeEventCreated,
		ScopeID: scopeID,
		EventID: ev.ID,
		Data: map[string]any{
			"outcome_a":  outcomeA,
			"outcome_b":  outcomeB,
			"odds_a":     oddsA.String(),
			"odds_b":     oddsB.String(),
			"close_time": ev.CloseTime.Format(time.RFC3339),
		},
	})
	return ev.ID, nil
}

// PlaceBet stakes amount on outcome. The stake is debited and the bet
// recorded in one transaction; any failure leaves balances untouched.
func (e *Engine) PlaceBet(ctx context.Context, scopeID, eventID, userID, outcome string, amount int64) (BetConfirmation, error) {
	if amount <= 0 {
		return BetConfirmation{}, apperr.ErrInvalidAmount
	}
	scopeID = strings.TrimSpace(scopeID)
	userID = strings.TrimSpace(userID)
	if scopeID == "" {
		return BetConfirmation{}, apperr.ErrInvalidScope
	}
	if userID == "" {
		return BetConfirmation{}, apperr.ErrInvalidUser
	}

	conf := BetConfirmation{EventID: eventID, UserID: userID, Amount: amount}
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		ev, err := tx.GetEventForUpdate(ctx, scopeID, eventID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.ErrEventNotFound
		}
		if err != nil {
			return err
		}
		if ev.SettlementStarted() {
			return apperr.ErrEventSettled
		}
		if ev.IsClosed(e.now()) {
			return apperr.ErrEventClosed
		}
		label, key, odds, ok := ev.Resolve(outcome)
		if !ok {
			return apperr.ErrInvalidOutcome
		}
		acct, err := e.ledger.Open(ctx, tx, userID)
		if err != nil {
			return err
		}
		bet := store.Bet{
			ID:         store.NewID(),
			ScopeID:    scopeID,
			EventID:    eventID,
			UserID:     userID,
			Outcome:    label,
			OutcomeKey: key,
			Amount:     amount,
		}
		if err := tx.InsertBet(ctx, bet); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return apperr.ErrBetExists
			}
			return err
		}
		bal, err := ledger.Debit(ctx, tx, acct, amount, store.EntryBetStake, ledger.Ref{Type: "bet", ID: bet.ID})
		if err != nil {
			return err
		}
		// A winning bet must be payable at settlement.
		if credit, ok := settlementCredit(amount, odds); !ok || !ledger.Fits(bal, credit) {
			return apperr.ErrBalanceOverflow
		}
		conf.BetID = bet.ID
		conf.Outcome = label
		conf.Odds = odds
		conf.Balance = bal
		return nil
	})
	if err != nil {
		err = apperr.Storage("place_bet", err)
		metrics.RecordError("place_bet", err)
		return BetConfirmation{}, err
	}

	metrics.BetsPlaced.Inc()
	metrics.BetStakePoints.Add(float64(amount))
	log.Info().Str("scope_id", scopeID).Str("event_id", eventID).Str("bet_id", conf.BetID).Str("user_id", userID).
		Str("outcome", conf.Outcome).Int64("amount", amount).Int64("balance", conf.Balance).Msg("bet placed")
	e.publish(ctx, notify.Message{
		Type:    notify.TypeBetPlaced,
		ScopeID: scopeID,
		EventID: eventID,
		UserID:  userID,
		Data:    map[string]any{"outcome": conf.Outcome, "amount": amount},
	})
	return conf, nil
}

// SettleEvent pays out every bet on the winning outcome and closes the
// event. It runs in three steps so that an interrupted run can be repeated
// with the same winner: record the winner, settle each bet in its own
// transaction, then mark the event settled. Bets already marked settled are
// never paid twice.
func (e *Engine) SettleEvent(ctx context.Context, scopeID, eventID, winningOutcome string) (Settlement, error) {
	scopeID = strings.TrimSpace(scopeID)
	if scopeID == "" {
		return Settlement{}, apperr.ErrInvalidScope
	}
	if err := e.checkActor(ctx, scopeID); err != nil {
		return Settlement{}, err
	}
	started := time.Now()

	var (
		winnerLabel string
		winnerKey   string
		odds        decimal.Decimal
		resumed     bool
	)
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		ev, err := tx.GetEventForUpdate(ctx, scopeID, eventID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.ErrEventNotFound
		}
		if err != nil {
			return err
		}
		if ev.State == store.EventSettled {
			return apperr.ErrEventSettled
		}
		label, key, o, ok := ev.Resolve(winningOutcome)
		if !ok {
			return apperr.ErrInvalidOutcome
		}
		if ev.Winner != "" {
			if ev.Winner != key {
				return apperr.ErrSettlementConflict
			}
			resumed = true
		} else if err := tx.SetEventWinner(ctx, scopeID, eventID, key); err != nil {
			return err
		}
		winnerLabel, winnerKey, odds = label, key, o
		return nil
	})
	if err != nil {
		err = apperr.Storage("settle_event", err)
		metrics.RecordError("settle_event", err)
		return Settlement{}, err
	}
	if resumed {
		log.Warn().Str("scope_id", scopeID).Str("event_id", eventID).Str("winner", winnerLabel).Msg("resuming interrupted settlement")
	}

	bets, err := e.store.ListBets(ctx, scopeID, eventID)
	if err != nil {
		err = apperr.Storage("settle_event", err)
		metrics.RecordError("settle_event", err)
		return Settlement{}, err
	}

	res := Settlement{EventID: eventID, ScopeID: scopeID, Winner: winnerLabel, Payouts: []Payout{}}
	var firstErr error
	for _, b := range bets {
		p, won, err := e.settleBet(ctx, b.ID, winnerKey, odds)
		if err != nil {
			// Keep paying the rest; the event stays resumable.
			err = apperr.Storage("settle_bet", err)
			metrics.RecordError("settle_event", err)
			log.Error().Err(err).Str("event_id", eventID).Str("bet_id", b.ID).Msg("bet settlement failed, event left resumable")
			if firstErr == nil {
				firstErr = err
			}
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if !won {
			res.Losers++
			continue
		}
		res.Payouts = append(res.Payouts, p)
	}
	if firstErr != nil {
		return Settlement{}, firstErr
	}

	settledAt := e.now().UTC()
	err = e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		ev, err := tx.GetEventForUpdate(ctx, scopeID, eventID)
		if err != nil {
			return err
		}
		if ev.State == store.EventSettled {
			// A concurrent run with the same winner finished first.
			if ev.SettledAt != nil {
				settledAt = *ev.SettledAt
			}
			return nil
		}
		return tx.MarkEventSettled(ctx, scopeID, eventID, settledAt)
	})
	if err != nil {
		err = apperr.Storage("settle_event", err)
		metrics.RecordError("settle_event", err)
		return Settlement{}, err
	}
	res.SettledAt = settledAt

	var paid int64
	for _, p := range res.Payouts {
		if !p.Resumed {
			paid += p.Credited
		}
	}
	metrics.EventsSettled.Inc()
	metrics.BetPayoutPoints.Add(float64(paid))
	metrics.SettlementDuration.Observe(time.Since(started).Seconds())
	log.Info().Str("scope_id", scopeID).Str("event_id", eventID).Str("winner", winnerLabel).
		Int("winners", len(res.Payouts)).Int("losers", res.Losers).Int64("credited", paid).Msg("event settled")
	e.publish(ctx, notify.Message{
		Type:    notify.TypeEventSettled,
		ScopeID: scopeID,
		EventID: eventID,
		Data: map[string]any{
			"winner":  winnerLabel,
			"winners": len(res.Payouts),
			"losers":  res.Losers,
		},
	})
	return res, nil
}

// settleBet pays or closes one bet in its own transaction. won reports
// whether the bet was on the winning side, whether paid now or earlier.
func (e *Engine) settleBet(ctx context.Context, betID, winnerKey string, odds decimal.Decimal) (Payout, bool, error) {
	var (
		p   Payout
		won bool
	)
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.GetBetForUpdate(ctx, betID)
		if err != nil {
			return err
		}
		won = b.OutcomeKey == winnerKey
		p = Payout{BetID: b.ID, UserID: b.UserID, Stake: b.Amount}
		if b.Settled() {
			if won && b.Payout != nil {
				p.Payout = *b.Payout
				p.Credited = *b.Payout + b.Amount
			}
			p.Resumed = true
			return nil
		}
		if !won {
			return tx.MarkBetSettled(ctx, b.ID, 0, e.now().UTC())
		}
		credited, ok := settlementCredit(b.Amount, odds)
		if !ok {
			return apperr.ErrBalanceOverflow
		}
		p.Credited = credited
		p.Payout = credited - b.Amount
		acct, err := e.ledger.Open(ctx, tx, b.UserID)
		if err != nil {
			return err
		}
		if _, err := ledger.Credit(ctx, tx, acct, p.Credited, store.EntryBetPayout, ledger.Ref{Type: "bet", ID: b.ID}); err != nil {
			return err
		}
		return tx.MarkBetSettled(ctx, b.ID, p.Payout, e.now().UTC())
	})
	return p, won, err
}

var maxPoints = decimal.NewFromInt(math.MaxInt64)

// Winnings is floor(amount * odds), computed exactly. The caller must know
// the result fits in int64; see settlementCredit.
func Winnings(amount int64, odds decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(odds).Floor().IntPart()
}

// settlementCredit is the stake plus winnings a winning bet returns. ok is
// false when that total does not fit in int64.
func settlementCredit(amount int64, odds decimal.Decimal) (int64, bool) {
	stake := decimal.NewFromInt(amount)
	total := stake.Mul(odds).Floor().Add(stake)
	if total.GreaterThan(maxPoints) {
		return 0, false
	}
	return total.IntPart(), true
}

// ListOpenEvents returns unsettled events in scope by close time. Events
// past their close time are included; use Event.IsClosed to tell them apart.
func (e *Engine) ListOpenEvents(ctx context.Context, scopeID string) ([]store.Event, error) {
	scopeID = strings.TrimSpace(scopeID)
	if scopeID == "" {
		return nil, apperr.ErrInvalidScope
	}
	items, err := e.store.ListOpenEvents(ctx, scopeID)
	if err != nil {
		return nil, apperr.Storage("list_open_events", err)
	}
	return items, nil
}

func (e *Engine) GetEventDetail(ctx context.Context, scopeID, eventID string) (EventDetail, error) {
	scopeID = strings.TrimSpace(scopeID)
	if scopeID == "" {
		return EventDetail{}, apperr.ErrInvalidScope
	}
	ev, err := e.store.GetEvent(ctx, scopeID, eventID)
	if errors.Is(err, store.ErrNotFound) {
		return EventDetail{}, apperr.ErrEventNotFound
	}
	if err != nil {
		return EventDetail{}, apperr.Storage("get_event", err)
	}
	bets, err := e.store.ListBets(ctx, scopeID, eventID)
	if err != nil {
		return EventDetail{}, apperr.Storage("list_bets", err)
	}

	d := EventDetail{
		Event:  ev,
		Closed: ev.IsClosed(e.now()),
		BetsA:  []store.Bet{},
		BetsB:  []store.Bet{},
	}
	for _, b := range bets {
		if b.OutcomeKey == ev.OutcomeAKey {
			d.BetsA = append(d.BetsA, b)
			d.TotalA += b.Amount
			continue
		}
		d.BetsB = append(d.BetsB, b)
		d.TotalB += b.Amount
	}
	return d, nil
}

func (e *Engine) checkActor(ctx context.Context, scopeID string) error {
	if e.authorize == nil {
		return nil
	}
	if err := e.authorize(ctx, scopeID, ActorFrom(ctx)); err != nil {
		if apperr.KindOf(err) == apperr.KindUnknown {
			return apperr.ErrForbidden
		}
		return err
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, msg notify.Message) {
	msg.At = e.now().UTC()
	if err := e.notifier.Publish(ctx, msg); err != nil {
		log.Warn().Err(err).Str("type", msg.Type).Str("event_id", msg.EventID).Msg("notify publish failed")
	}
}
