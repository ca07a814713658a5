package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: KindUnknown},
		{name: "plain", err: errors.New("boom"), want: KindUnknown},
		{name: "validation", err: ErrInvalidAmount, want: KindValidation},
		{name: "wrapped not found", err: fmt.Errorf("settle: %w", ErrEventNotFound), want: KindNotFound},
		{name: "state", err: ErrEventClosed, want: KindState},
		{name: "funds", err: ErrInsufficientFunds, want: KindInsufficientFunds},
		{name: "storage", err: &StorageError{Op: "place_bet", Err: context.DeadlineExceeded}, want: KindStorage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Fatalf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStorageKeepsDomainErrors(t *testing.T) {
	if err := Storage("op", nil); err != nil {
		t.Fatalf("Storage(nil) = %v, want nil", err)
	}
	if err := Storage("op", ErrBetExists); !errors.Is(err, ErrBetExists) || KindOf(err) != KindState {
		t.Fatalf("domain error should pass through, got %v", err)
	}
	cause := errors.New("connection reset")
	err := Storage("adjust_balance", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("storage error should unwrap to cause")
	}
	if KindOf(err) != KindStorage {
		t.Fatalf("KindOf() = %v, want storage", KindOf(err))
	}
}

func TestCodeHidesInternalDetail(t *testing.T) {
	if got := Code(fmt.Errorf("x: %w", ErrEventSettled)); got != "event_settled" {
		t.Fatalf("Code() = %q", got)
	}
	if got := Code(Storage("op", errors.New("pq: password authentication failed"))); got != "storage_unavailable" {
		t.Fatalf("Code() = %q", got)
	}
	if got := Code(errors.New("weird")); got != "internal_error" {
		t.Fatalf("Code() = %q", got)
	}
}
