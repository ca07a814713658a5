// Package apperr defines the error taxonomy shared by the ledger, challenge
// and betting services. Every error those services return classifies into
// exactly one Kind via KindOf.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindState
	KindInsufficientFunds
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindState:
		return "state"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Error is a sentinel domain error. Compare with errors.Is.
type Error struct {
	kind Kind
	code string
}

func (e *Error) Error() string { return e.code }

func (e *Error) Kind() Kind { return e.kind }

// Code is the stable snake_case identifier exposed to callers.
func (e *Error) Code() string { return e.code }

func newError(kind Kind, code string) *Error {
	return &Error{kind: kind, code: code}
}

var (
	ErrInvalidAmount    = newError(KindValidation, "invalid_amount")
	ErrInvalidOutcome   = newError(KindValidation, "invalid_outcome")
	ErrInvalidReward    = newError(KindValidation, "invalid_reward")
	ErrInvalidOdds      = newError(KindValidation, "invalid_odds")
	ErrInvalidCloseTime = newError(KindValidation, "invalid_close_time")
	ErrInvalidName      = newError(KindValidation, "invalid_name")
	ErrInvalidScope     = newError(KindValidation, "invalid_scope")
	ErrInvalidUser      = newError(KindValidation, "invalid_user")
	ErrInvalidLimit     = newError(KindValidation, "invalid_limit")

	// ErrBalanceOverflow rejects a credit or stake whose resulting balance
	// would not fit in int64.
	ErrBalanceOverflow = newError(KindValidation, "balance_overflow")

	ErrChallengeNotFound = newError(KindNotFound, "challenge_not_found")
	ErrEventNotFound     = newError(KindNotFound, "event_not_found")
	ErrUserNotFound      = newError(KindNotFound, "user_not_found")

	ErrEventSettled       = newError(KindState, "event_settled")
	ErrEventClosed        = newError(KindState, "event_closed")
	ErrAlreadyCompleted   = newError(KindState, "already_completed")
	ErrBetExists          = newError(KindState, "bet_exists")
	ErrSettlementConflict = newError(KindState, "settlement_conflict")
	ErrForbidden          = newError(KindState, "forbidden")

	ErrInsufficientFunds = newError(KindInsufficientFunds, "insufficient_funds")
)

// StorageError reports a failure of the durable store. The operation that
// produced it made no partial mutation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Kind() Kind { return KindStorage }

// Storage wraps err as a StorageError unless it already carries a domain
// kind, in which case it is returned unchanged.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindUnknown {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// KindOf classifies err. Errors outside the taxonomy report KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var se *StorageError
	if errors.As(err, &se) {
		return KindStorage
	}
	var de *Error
	if errors.As(err, &de) {
		return de.kind
	}
	return KindUnknown
}

// Code returns the public code for err, or "internal_error" when err is not
// a domain error. Storage failures deliberately hide their cause.
func Code(err error) string {
	var se *StorageError
	if errors.As(err, &se) {
		return "storage_unavailable"
	}
	var de *Error
	if errors.As(err, &de) {
		return de.code
	}
	return "internal_error"
}
