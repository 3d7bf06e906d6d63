package persistence

import (
	"errors"
	"fmt"
	"testing"
)

func TestStoreErrorIsMatchesKind(t *testing.T) {
	err := Errorf(KindTurnMismatch, "expected turn %d, got %d", 3, 2)

	if !errors.Is(err, ErrTurnMismatch) {
		t.Error("expected errors.Is to match ErrTurnMismatch")
	}
	if errors.Is(err, ErrGameNotFound) {
		t.Error("did not expect errors.Is to match ErrGameNotFound")
	}
}

func TestStoreErrorIsSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("advance turn: %w", Errorf(KindGameFull, "game abc is full"))

	if !errors.Is(err, ErrGameFull) {
		t.Error("expected wrapped store error to match ErrGameFull")
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"turn mismatch", Errorf(KindTurnMismatch, "stale job"), false},
		{"game not found", Errorf(KindGameNotFound, "gone"), false},
		{"game full", Errorf(KindGameFull, "full"), false},
		{"invalid password", Errorf(KindInvalidPassword, "nope"), false},
		{"invalid argument", Errorf(KindInvalidArgument, "no identity"), false},
		{"invalid state", Errorf(KindInvalidState, "missing settings"), false},
		{"simulation error", Errorf(KindSimulationError, "timeout"), true},
		{"unexpected result", WrapUnexpected(errors.New("driver: bad connection"), "tx"), true},
		{"plain error", errors.New("connection refused"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWrapUnexpectedPassesStoreErrorsThrough(t *testing.T) {
	orig := Errorf(KindPlayerNotFound, "player p1 not found")
	wrapped := WrapUnexpected(orig, "some context")

	if !errors.Is(wrapped, ErrPlayerNotFound) {
		t.Error("expected store error kind to be preserved")
	}
	if errors.Is(wrapped, ErrUnexpectedResult) {
		t.Error("store error should not be re-wrapped as unexpected")
	}
}

func TestWrapUnexpectedNil(t *testing.T) {
	if WrapUnexpected(nil, "ctx") != nil {
		t.Error("expected nil for nil input")
	}
}

func TestWrapUnexpectedKeepsCause(t *testing.T) {
	cause := errors.New("pq: deadlock detected")
	err := WrapUnexpected(cause, "advance turn")

	if !errors.Is(err, ErrUnexpectedResult) {
		t.Error("expected UnexpectedResult kind")
	}
	if !errors.Is(err, cause) {
		t.Error("expected the cause to remain unwrappable")
	}
}
