package repository

import (
	"strings"
	"testing"

	"ekomarket_backend/internal/pickups/domain"
	"ekomarket_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestTransitionQueryIsCheckAndSet(t *testing.T) {
	if !strings.Contains(transitionQuery, "WHERE id = $1 AND status = $2") {
		t.Fatalf("transition must guard on the current status, got %s", transitionQuery)
	}
	if !strings.Contains(insertHistoryQuery, "COALESCE(MAX(seq), -1) + 1") {
		t.Fatalf("history seq must follow the last entry, got %s", insertHistoryQuery)
	}
}

func TestReserveQueryGuardsAvailableWeight(t *testing.T) {
	for _, fragment := range []string{
		"committed_weight = committed_weight + $2::numeric",
		"status IN ('pending', 'verified')",
		"COALESCE(actual_weight, estimated_weight) - committed_weight >= $2::numeric",
	} {
		if !strings.Contains(reserveQuery, fragment) {
			t.Errorf("reserve query missing %q", fragment)
		}
	}
	if !strings.Contains(releaseQuery, "GREATEST(committed_weight - $2::numeric, 0)") {
		t.Error("release must never drive committed weight negative")
	}
}

func TestWeightWritesKeepCommittedCovered(t *testing.T) {
	tests := []struct {
		name, query, fragment string
	}{
		{"transition", transitionQuery, "COALESCE($4::numeric, actual_weight, estimated_weight) >= committed_weight"},
		{"details", updateDetailsQuery, "COALESCE($4::numeric, estimated_weight) >= committed_weight"},
	}
	for _, tc := range tests {
		if !strings.Contains(tc.query, tc.fragment) {
			t.Errorf("%s query missing %q", tc.name, tc.fragment)
		}
	}
}

func TestBelowCommitted(t *testing.T) {
	err := BelowCommitted("actualWeight", decimal.NewFromInt(3), decimal.NewFromInt(8))
	if !apperr.HasCode(err, apperr.CodeInsufficientInventory) {
		t.Fatalf("expected insufficient inventory, got %v", err)
	}
	appErr, _ := apperr.As(err)
	fields, ok := appErr.Details.([]apperr.FieldError)
	if !ok || len(fields) != 1 || fields[0].Field != "actualWeight" || fields[0].Message != "must be at least 8" {
		t.Fatalf("unexpected details %+v", appErr.Details)
	}
}

func TestHistoryIsNeverUpdated(t *testing.T) {
	for name, q := range map[string]string{
		"transition": transitionQuery,
		"details":    updateDetailsQuery,
		"after":      updateAfterPhotoQuery,
		"review":     flagManualReviewQuery,
	} {
		if strings.Contains(q, "pickup_status_history") {
			t.Errorf("%s query touches the history table", name)
		}
	}
}

func TestBuildListFilter(t *testing.T) {
	collector := uuid.New()
	status := domain.StatusVerified

	where, args := buildListFilter(ListParams{
		CollectorID: &collector,
		Status:      &status,
		Bounds:      &Bounds{MinLat: -1, MaxLat: 1, MinLng: 100, MaxLng: 101},
	})

	want := " WHERE collector_id = $1 AND status = $2 AND lat BETWEEN $3 AND $4 AND lng BETWEEN $5 AND $6"
	if where != want {
		t.Fatalf("where = %q, want %q", where, want)
	}
	if len(args) != 6 || args[1] != "verified" {
		t.Fatalf("unexpected args %v", args)
	}

	if where, args := buildListFilter(ListParams{}); where != "" || len(args) != 0 {
		t.Fatalf("empty filter produced %q %v", where, args)
	}
}

func TestNormalizePage(t *testing.T) {
	tests := []struct{ page, size, wantPage, wantSize int }{
		{0, 0, 1, 20},
		{3, 50, 3, 50},
		{1, 500, 1, 100},
	}
	for _, tc := range tests {
		page, size := normalizePage(tc.page, tc.size)
		if page != tc.wantPage || size != tc.wantSize {
			t.Errorf("normalizePage(%d, %d) = %d, %d", tc.page, tc.size, page, size)
		}
	}
}
