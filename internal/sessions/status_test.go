package sessions

import (
	"testing"

	"stockpledge/internal/types"
)

func TestCanTransitionForwardOnly(t *testing.T) {
	cases := []struct {
		from types.SessionStatus
		to   types.SessionStatus
		want bool
	}{
		{types.SessionStatusActive, types.SessionStatusClosed, true},
		{types.SessionStatusClosed, types.SessionStatusExecuting, true},
		{types.SessionStatusExecuting, types.SessionStatusAwaitingSell, true},
		{types.SessionStatusAwaitingSell, types.SessionStatusCompleted, true},
		// buy-only sessions skip the awaiting step
		{types.SessionStatusExecuting, types.SessionStatusCompleted, true},
		// no going backwards
		{types.SessionStatusClosed, types.SessionStatusActive, false},
		{types.SessionStatusExecuting, types.SessionStatusClosed, false},
		{types.SessionStatusCompleted, types.SessionStatusExecuting, false},
		// no self-transitions
		{types.SessionStatusActive, types.SessionStatusActive, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestCanTransitionCancellation(t *testing.T) {
	nonTerminal := []types.SessionStatus{
		types.SessionStatusActive,
		types.SessionStatusClosed,
		types.SessionStatusExecuting,
		types.SessionStatusAwaitingSell,
	}
	for _, from := range nonTerminal {
		if !CanTransition(from, types.SessionStatusCancelled) {
			t.Errorf("expected cancellation allowed from %s", from)
		}
	}
	for _, from := range []types.SessionStatus{types.SessionStatusCompleted, types.SessionStatusCancelled} {
		if CanTransition(from, types.SessionStatusCancelled) {
			t.Errorf("expected cancellation rejected from terminal %s", from)
		}
	}
}

func TestFillPercentage(t *testing.T) {
	if got := FillPercentage(5, 0); !got.IsZero() {
		t.Fatalf("no capacity should report 0, got %s", got)
	}
	if got := FillPercentage(25, 100); got.String() != "25" {
		t.Fatalf("expected 25, got %s", got)
	}
	if got := FillPercentage(150, 100); got.String() != "100" {
		t.Fatalf("expected cap at 100, got %s", got)
	}
	if got := FillPercentage(0, 40); !got.IsZero() {
		t.Fatalf("empty session should report 0, got %s", got)
	}
}
