package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestLedgerErrorIs(t *testing.T) {
	err := fmt.Errorf("dispatch: %w", NewError(KindDuplicateBet, 7))

	if !errors.Is(err, ErrDuplicateBet) {
		t.Errorf("errors.Is(%v, ErrDuplicateBet) = false", err)
	}
	if errors.Is(err, ErrNoBet) {
		t.Errorf("errors.Is(%v, ErrNoBet) = true", err)
	}
	kind, ok := KindOf(err)
	if !ok || kind != KindDuplicateBet {
		t.Errorf("KindOf = %v, %v; want duplicate_bet, true", kind, ok)
	}
	if _, ok := KindOf(errors.New("disk on fire")); ok {
		t.Error("KindOf reported a kind for an infrastructure error")
	}
}

func TestLedgerErrorMessage(t *testing.T) {
	cause := errors.New("connection reset")
	err := WrapError(KindReadFailure, 3, cause)
	want := "failed to read ledger state (market 3): connection reset"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, cause) {
		t.Error("wrapped cause not reachable through Unwrap")
	}
}
