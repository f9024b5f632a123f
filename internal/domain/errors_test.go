package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKindsMatchSentinels(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"not found", NotFoundError{Resource: "customer", ID: "c1"}, ErrNotFound},
		{"not found pointer", &NotFoundError{Resource: "call"}, ErrNotFound},
		{"validation", ValidationError{Field: "priority", Message: "unknown"}, ErrValidation},
		{"consistency", ConsistencyError{Op: "batch", Err: errors.New("conflict")}, ErrConsistency},
		{"wrapped", fmt.Errorf("outer: %w", NotFoundError{Resource: "customer"}), ErrNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if !errors.Is(tc.err, tc.sentinel) {
				t.Fatalf("expected %v to match %T", tc.err, tc.sentinel)
			}
		})
	}

	if errors.Is(NotFoundError{}, ErrValidation) {
		t.Fatalf("kinds must not match each other")
	}
}

func TestConsistencyErrorUnwraps(t *testing.T) {
	cause := errors.New("txn conflict")
	err := ConsistencyError{Op: "logOutcome", Err: cause}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if err.Error() != "logOutcome: consistency error: txn conflict" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestCallStatusIsOutcome(t *testing.T) {
	if CallStatusScheduled.IsOutcome() {
		t.Fatalf("scheduled is not an outcome")
	}
	for _, s := range []CallStatus{CallStatusCompleted, CallStatusNoAnswer, CallStatusPostponed} {
		if !s.IsOutcome() {
			t.Fatalf("%s should be an outcome", s)
		}
	}
}
