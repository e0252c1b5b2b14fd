package apperr

import (
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{NotFound("x"), http.StatusNotFound},
		{Validation("x"), http.StatusBadRequest},
		{InvalidPrice("x"), http.StatusBadRequest},
		{InvalidTransition("pickup", "paid", "verified"), http.StatusConflict},
		{InsufficientInventory("x"), http.StatusConflict},
		{Forbidden("x"), http.StatusForbidden},
		{Unauthorized("x"), http.StatusUnauthorized},
		{Internal("x"), http.StatusInternalServerError},
		{Unavailable("x"), http.StatusBadGateway},
	}

	for _, tc := range tests {
		if got := tc.err.HTTPStatus(); got != tc.want {
			t.Errorf("%s: HTTPStatus() = %d, want %d", tc.err.Code, got, tc.want)
		}
	}
}

func TestInvalidTransitionCarriesStates(t *testing.T) {
	err := InvalidTransition("pickup", "paid", "verified")
	if err.Code != CodeInvalidTransition {
		t.Fatalf("expected code %q, got %q", CodeInvalidTransition, err.Code)
	}
	details, ok := err.Details.(TransitionDetails)
	if !ok {
		t.Fatalf("expected TransitionDetails, got %T", err.Details)
	}
	if details.Current != "paid" || details.Requested != "verified" {
		t.Fatalf("unexpected details %+v", details)
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	base := InsufficientInventory("only 2 kg left")
	wrapped := fmt.Errorf("create order: %w", base)

	if !Is(wrapped, KindConflict) {
		t.Fatal("expected wrapped error to keep KindConflict")
	}
	if !HasCode(wrapped, CodeInsufficientInventory) {
		t.Fatal("expected wrapped error to keep its code")
	}
	if GetKind(fmt.Errorf("plain")) != KindUnknown {
		t.Fatal("expected KindUnknown for untyped errors")
	}
}
