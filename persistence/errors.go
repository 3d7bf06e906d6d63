package persistence

import (
	"errors"
	"fmt"
)

// Kind classifies store errors. Callers branch on the kind via errors.Is
// against the exported sentinel values; workers consult Retryable to decide
// whether a failed job should be re-enqueued.
type Kind uint8

const (
	KindUnknown Kind = iota

	// Not-found family: surface as 404-equivalents.
	KindGameNotFound
	KindPlayerNotFound
	KindSessionNotFound

	// Conflict family: surface as 4xx-equivalents with explanation.
	KindGameAlreadyExists
	KindPlayerAlreadyExists
	KindPasswordAlreadyExists
	KindPlayerAlreadyJoinedGame
	KindGameFull
	KindTurnMismatch
	KindCreatorOnlyAction
	KindInvalidPassword

	// InvalidArgument rejects malformed caller input before any state is read.
	KindInvalidArgument

	// InvalidState signals corrupted persisted data. A bug, not a user error.
	KindInvalidState

	// SimulationError is a transient external-process failure.
	KindSimulationError

	// UnexpectedResult means an ACID/logic invariant was somehow violated.
	KindUnexpectedResult
)

// Retryable reports whether a job hitting this kind may be re-attempted.
// Unknown kinds default to retryable, matching the worker contract.
func (k Kind) Retryable() bool {
	switch k {
	case KindSimulationError, KindUnexpectedResult, KindUnknown:
		return true
	default:
		return false
	}
}

func (k Kind) String() string {
	switch k {
	case KindGameNotFound:
		return "GameNotFound"
	case KindPlayerNotFound:
		return "PlayerNotFound"
	case KindSessionNotFound:
		return "SessionNotFound"
	case KindGameAlreadyExists:
		return "GameAlreadyExists"
	case KindPlayerAlreadyExists:
		return "PlayerAlreadyExists"
	case KindPasswordAlreadyExists:
		return "PasswordAlreadyExists"
	case KindPlayerAlreadyJoinedGame:
		return "PlayerAlreadyJoinedGame"
	case KindGameFull:
		return "GameFull"
	case KindTurnMismatch:
		return "TurnMismatch"
	case KindCreatorOnlyAction:
		return "CreatorOnlyAction"
	case KindInvalidPassword:
		return "InvalidPassword"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindInvalidState:
		return "InvalidState"
	case KindSimulationError:
		return "SimulationError"
	case KindUnexpectedResult:
		return "UnexpectedResult"
	default:
		return "Unknown"
	}
}

// StoreError is the single error type crossing the store boundary. Callers
// never see raw storage-engine errors; those are wrapped as
// KindUnexpectedResult with the cause attached.
type StoreError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Msg
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is matches any StoreError of the same kind, so
// errors.Is(err, ErrTurnMismatch) works regardless of message.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	return ok && t.Kind == e.Kind
}

// Errorf builds a StoreError of the given kind.
func Errorf(kind Kind, format string, args ...any) *StoreError {
	return &StoreError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapUnexpected converts a non-store error into KindUnexpectedResult.
// Store errors pass through untouched.
func WrapUnexpected(err error, context string) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Kind: KindUnexpectedResult, Msg: context, Err: err}
}

// Retryable reports whether the error is worth retrying. Non-store errors
// default to retryable.
func Retryable(err error) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind.Retryable()
	}
	return true
}

// Sentinel targets for errors.Is.
var (
	ErrGameNotFound            = &StoreError{Kind: KindGameNotFound}
	ErrPlayerNotFound          = &StoreError{Kind: KindPlayerNotFound}
	ErrSessionNotFound         = &StoreError{Kind: KindSessionNotFound}
	ErrGameAlreadyExists       = &StoreError{Kind: KindGameAlreadyExists}
	ErrPlayerAlreadyExists     = &StoreError{Kind: KindPlayerAlreadyExists}
	ErrPasswordAlreadyExists   = &StoreError{Kind: KindPasswordAlreadyExists}
	ErrPlayerAlreadyJoinedGame = &StoreError{Kind: KindPlayerAlreadyJoinedGame}
	ErrGameFull                = &StoreError{Kind: KindGameFull}
	ErrTurnMismatch            = &StoreError{Kind: KindTurnMismatch}
	ErrCreatorOnlyAction       = &StoreError{Kind: KindCreatorOnlyAction}
	ErrInvalidPassword         = &StoreError{Kind: KindInvalidPassword}
	ErrInvalidArgument         = &StoreError{Kind: KindInvalidArgument}
	ErrInvalidState            = &StoreError{Kind: KindInvalidState}
	ErrSimulationError         = &StoreError{Kind: KindSimulationError}
	ErrUnexpectedResult        = &StoreError{Kind: KindUnexpectedResult}
)
