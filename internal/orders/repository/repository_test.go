package repository

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"ekomarket_backend/internal/orders/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestTransitionQueriesAreCheckAndSet(t *testing.T) {
	if !strings.Contains(transitionQuery, "WHERE id = $1 AND status = $2") {
		t.Fatal("fulfilment update must be conditional on the current status")
	}
	if !strings.Contains(paymentQuery, "WHERE id = $1 AND payment_status = $2") {
		t.Fatal("payment update must be conditional on the current payment status")
	}
	if strings.Contains(paymentQuery, "SET status") {
		t.Fatal("payment update must not touch the fulfilment status")
	}
}

func TestHistoryIsAppendOnly(t *testing.T) {
	if !strings.HasPrefix(strings.TrimSpace(insertHistoryQuery), "INSERT INTO order_status_history") {
		t.Fatal("history is written by insert only")
	}
	if !strings.Contains(insertHistoryQuery, "COALESCE(MAX(seq), -1) + 1") {
		t.Fatal("history sequence must continue from the last entry")
	}
}

func TestBuildListFilter(t *testing.T) {
	brand := uuid.New()
	status := domain.StatusShipped
	where, args := buildListFilter(ListParams{BrandID: &brand, Status: &status})
	if where != " WHERE brand_id = $1 AND status = $2" {
		t.Fatalf("where = %q", where)
	}
	if len(args) != 2 || args[1] != "shipped" {
		t.Fatalf("args = %v", args)
	}

	if where, args := buildListFilter(ListParams{}); where != "" || len(args) != 0 {
		t.Fatalf("empty filter = %q %v", where, args)
	}
}

func TestNormalizePage(t *testing.T) {
	tests := []struct{ page, size, wantPage, wantSize int }{
		{0, 0, 1, 20},
		{3, 50, 3, 50},
		{1, 500, 1, 100},
	}
	for _, tc := range tests {
		p, s := normalizePage(tc.page, tc.size)
		if p != tc.wantPage || s != tc.wantSize {
			t.Errorf("normalizePage(%d, %d) = %d, %d", tc.page, tc.size, p, s)
		}
	}
}

func TestIsUniqueViolation(t *testing.T) {
	dup := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	if !isUniqueViolation(dup) {
		t.Fatal("wrapped 23505 must be recognised")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) || isUniqueViolation(errors.New("boom")) {
		t.Fatal("other errors are not unique violations")
	}
}
