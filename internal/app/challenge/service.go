// Package challenge keeps the challenge catalogue and pays rewards when a
// user completes one.
package challenge

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"wagerboard/internal/apperr"
	"wagerboard/internal/ledger"
	"wagerboard/internal/metrics"
	"wagerboard/internal/notify"
	"wagerboard/internal/store"

	"github.com/rs/zerolog/log"
)

type Registry struct {
	store    store.Gateway
	ledger   *ledger.Ledger
	notifier notify.Publisher
}

type Option func(*Registry)

func WithNotifier(p notify.Publisher) Option {
	return func(r *Registry) {
		if p != nil {
			r.notifier = p
		}
	}
}

func NewRegistry(st store.Gateway, l *ledger.Ledger, opts ...Option) *Registry {
	r := &Registry{store: st, ledger: l, notifier: notify.Nop{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) CreateChallenge(ctx context.Context, name string, reward int64, repeatable bool) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, apperr.ErrInvalidName
	}
	if reward < 0 {
		return 0, apperr.ErrInvalidReward
	}
	id, err := r.store.CreateChallenge(ctx, store.Challenge{Name: name, Reward: reward, Repeatable: repeatable})
	if err != nil {
		err = apperr.Storage("create_challenge", err)
		metrics.RecordError("create_challenge", err)
		return 0, err
	}
	log.Info().Int64("challenge_id", id).Str("name", name).Int64("reward", reward).Bool("repeatable", repeatable).Msg("challenge created")
	return id, nil
}

func (r *Registry) ListChallenges(ctx context.Context) ([]store.Challenge, error) {
	items, err := r.store.ListChallenges(ctx)
	if err != nil {
		return nil, apperr.Storage("list_challenges", err)
	}
	return items, nil
}

func (r *Registry) GetChallenge(ctx context.Context, id int64) (store.Challenge, error) {
	c, err := r.store.GetChallenge(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.Challenge{}, apperr.ErrChallengeNotFound
	}
	if err != nil {
		return store.Challenge{}, apperr.Storage("get_challenge", err)
	}
	return c, nil
}

// CompleteChallenge records a completion and credits the reward atomically.
// A non-repeatable challenge can be completed once per user.
func (r *Registry) CompleteChallenge(ctx context.Context, userID string, challengeID int64) (CompletionResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return CompletionResult{}, apperr.ErrInvalidUser
	}
	res := CompletionResult{ChallengeID: challengeID, UserID: userID}
	err := r.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		c, err := tx.GetChallenge(ctx, challengeID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.ErrChallengeNotFound
		}
		if err != nil {
			return err
		}
		// The account lock serializes completions by the same user.
		acct, err := r.ledger.Open(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !c.Repeatable {
			prev, err := tx.GetCompletionForUpdate(ctx, userID, challengeID)
			switch {
			case err == nil && prev.Count > 0:
				return apperr.ErrAlreadyCompleted
			case err != nil && !errors.Is(err, store.ErrNotFound):
				return err
			}
		}
		count, err := tx.IncrementCompletion(ctx, userID, challengeID)
		if err != nil {
			return err
		}
		res.Count = count
		res.Reward = c.Reward
		res.Balance = acct.Balance
		if c.Reward > 0 {
			ref := ledger.Ref{Type: "challenge", ID: strconv.FormatInt(challengeID, 10)}
			res.Balance, err = ledger.Credit(ctx, tx, acct, c.Reward, store.EntryChallengeReward, ref)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		err = apperr.Storage("complete_challenge", err)
		metrics.RecordError("complete_challenge", err)
		return CompletionResult{}, err
	}

	metrics.ChallengeCompletions.Inc()
	metrics.ChallengeRewardPoints.Add(float64(res.Reward))
	log.Info().Str("user_id", userID).Int64("challenge_id", challengeID).Int64("count", res.Count).Int64("balance", res.Balance).Msg("challenge completed")
	r.publish(ctx, notify.Message{
		Type:   notify.TypeChallengeCompleted,
		UserID: userID,
		Data: map[string]any{
			"challenge_id": challengeID,
			"reward":       res.Reward,
			"count":        res.Count,
		},
	})
	return res, nil
}

func (r *Registry) publish(ctx context.Context, msg notify.Message) {
	msg.At = time.Now().UTC()
	if err := r.notifier.Publish(ctx, msg); err != nil {
		log.Warn().Err(err).Str("type", msg.Type).Str("user_id", msg.UserID).Msg("notify publish failed")
	}
}

// ListCompletions returns every completion with its challenge name, ordered
// by challenge id then user id.
func (r *Registry) ListCompletions(ctx context.Context) ([]store.CompletionView, error) {
	items, err := r.store.ListCompletions(ctx)
	if err != nil {
		return nil, apperr.Storage("list_completions", err)
	}
	return items, nil
}
