// Package notify fans committed domain events out to external listeners.
// Delivery is best effort: nothing in here may fail the operation that
// produced the message.
package notify

import (
	"context"
	"time"
)

const (
	TypeEventCreated       = "event_created"
	TypeBetPlaced          = "bet_placed"
	TypeEventSettled       = "event_settled"
	TypeChallengeCompleted = "challenge_completed"
)

type Message struct {
	Type    string         `json:"type"`
	ScopeID string         `json:"scope_id,omitempty"`
	EventID string         `json:"event_id,omitempty"`
	UserID  string         `json:"user_id,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	At      time.Time      `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Nop discards every message.
type Nop struct{}

func (Nop) Publish(context.Context, Message) error { return nil }

// Closer is implemented by publishers holding network resources.
type Closer interface {
	Close() error
}
