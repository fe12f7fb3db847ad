package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestGetKindFindsWrappedErrors(t *testing.T) {
	err := fmt.Errorf("assign: %w", StaleState("request moved on"))
	if !Is(err, KindStaleState) {
		t.Fatalf("expected stale state kind, got %v", GetKind(err))
	}
	if GetKind(errors.New("plain")) != KindUnknown {
		t.Fatal("expected plain errors to have unknown kind")
	}
}

func TestPersistenceIsIncidentAndUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := Persistence("commit failed", cause).WithOp("requests.Assign")

	if !err.IsIncident() {
		t.Fatal("expected persistence error to be an incident")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected persistence error to unwrap to its cause")
	}
	if StaleState("x").IsIncident() || NotFound("x").IsIncident() {
		t.Fatal("expected stale state and not found to be user-facing outcomes")
	}
	if got := err.Error(); got != "requests.Assign: commit failed: connection reset" {
		t.Fatalf("unexpected message %q", got)
	}
}
