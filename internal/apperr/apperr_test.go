package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindsMapToStatus(t *testing.T) {
	tests := []struct {
		err  *AppError
		want int
	}{
		{Validation("invalid_time", "bad"), http.StatusUnprocessableEntity},
		{NotFound("doctor_not_found", "missing"), http.StatusNotFound},
		{Conflict("slot_unavailable", "taken"), http.StatusConflict},
		{Store("insert appointment", errors.New("boom")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := tt.err.HTTPStatus(); got != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.err.Code, tt.want, got)
		}
	}
}

func TestIs_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("create appointment: %w", Conflict("slot_unavailable", "taken"))

	if !Is(err, KindConflict) {
		t.Fatal("expected wrapped conflict to be detected")
	}
	if Is(err, KindValidation) {
		t.Fatal("conflict must not match validation")
	}
	if !HasCode(err, "slot_unavailable") {
		t.Fatal("expected code to match")
	}
}

func TestStore_HidesCause(t *testing.T) {
	cause := errors.New("pq: connection refused on 10.0.0.5")
	err := Store("list appointments", cause)

	if err.Message != "an unexpected error occurred" {
		t.Fatalf("store message leaked detail: %q", err.Message)
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause must stay reachable through Unwrap")
	}
}

func TestAs_PlainError(t *testing.T) {
	got := As(errors.New("plain"))
	if got.Kind != KindInternal || got.HTTPStatus() != http.StatusInternalServerError {
		t.Fatalf("expected internal error, got %+v", got)
	}
}
