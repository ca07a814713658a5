// Package gamble implements the double-or-nothing coin flip.
package gamble

import (
	"context"
	"math/rand/v2"
	"strings"

	"wagerboard/internal/apperr"
	"wagerboard/internal/ledger"
	"wagerboard/internal/metrics"
	"wagerboard/internal/store"

	"github.com/rs/zerolog/log"
)

// Flipper decides a round. true means the user wins.
type Flipper interface {
	Flip() bool
}

type FlipperFunc func() bool

func (f FlipperFunc) Flip() bool { return f() }

type randomFlipper struct{}

func (randomFlipper) Flip() bool { return rand.IntN(2) == 0 }

type Result struct {
	UserID  string `json:"user_id"`
	Won     bool   `json:"won"`
	Amount  int64  `json:"amount"`
	Balance int64  `json:"balance"`
}

type Service struct {
	store   store.Gateway
	ledger  *ledger.Ledger
	flipper Flipper
}

type Option func(*Service)

func WithFlipper(f Flipper) Option {
	return func(s *Service) {
		if f != nil {
			s.flipper = f
		}
	}
}

func NewService(st store.Gateway, l *ledger.Ledger, opts ...Option) *Service {
	s := &Service{store: st, ledger: l, flipper: randomFlipper{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FiftyFifty stakes amount on a fair flip: a win credits amount, a loss
// debits it. The flip happens under the account lock.
func (s *Service) FiftyFifty(ctx context.Context, userID string, amount int64) (Result, error) {
	if amount <= 0 {
		return Result{}, apperr.ErrInvalidAmount
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Result{}, apperr.ErrInvalidUser
	}
	res := Result{UserID: userID, Amount: amount}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		acct, err := s.ledger.Open(ctx, tx, userID)
		if err != nil {
			return err
		}
		if acct.Balance < amount {
			return apperr.ErrInsufficientFunds
		}
		ref := ledger.Ref{Type: "gamble", ID: store.NewID()}
		res.Won = s.flipper.Flip()
		if res.Won {
			res.Balance, err = ledger.Credit(ctx, tx, acct, amount, store.EntryGambleWin, ref)
		} else {
			res.Balance, err = ledger.Debit(ctx, tx, acct, amount, store.EntryGambleLoss, ref)
		}
		return err
	})
	if err != nil {
		err = apperr.Storage("fifty_fifty", err)
		metrics.RecordError("fifty_fifty", err)
		return Result{}, err
	}
	label := "lost"
	if res.Won {
		label = "won"
	}
	metrics.GambleRounds.WithLabelValues(label).Inc()
	log.Info().Str("user_id", userID).Int64("amount", amount).Bool("won", res.Won).Int64("balance", res.Balance).Msg("fifty-fifty round")
	return res, nil
}
