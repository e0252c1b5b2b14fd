package domain

import (
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestCanTransitionOrder(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusConfirmed, StatusProcessing, true},
		{StatusProcessing, StatusShipped, true},
		{StatusShipped, StatusDelivered, true},
		{StatusPending, StatusCancelled, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusProcessing, StatusCancelled, false},
		{StatusShipped, StatusCancelled, false},
		{StatusPending, StatusShipped, false},
		{StatusDelivered, StatusPending, false},
		{StatusCancelled, StatusPending, false},
	}
	for _, tc := range tests {
		if got := CanTransitionOrder(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransitionOrder(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminalOrderStatuses(t *testing.T) {
	for _, s := range []Status{StatusDelivered, StatusCancelled} {
		if !s.IsTerminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusConfirmed, StatusProcessing, StatusShipped} {
		if s.IsTerminal() {
			t.Errorf("%s must not be terminal", s)
		}
	}
}

func TestCanTransitionPayment(t *testing.T) {
	tests := []struct {
		from, to PaymentStatus
		want     bool
	}{
		{PaymentPending, PaymentPaid, true},
		{PaymentPending, PaymentPartial, true},
		{PaymentPending, PaymentFailed, true},
		{PaymentPartial, PaymentPaid, true},
		{PaymentPartial, PaymentRefunded, true},
		{PaymentPaid, PaymentRefunded, true},
		{PaymentFailed, PaymentPending, true},
		{PaymentPaid, PaymentPending, false},
		{PaymentRefunded, PaymentPaid, false},
		{PaymentPending, PaymentRefunded, false},
	}
	for _, tc := range tests {
		if got := CanTransitionPayment(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransitionPayment(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestActorCapabilities(t *testing.T) {
	collectorID, brandID := uuid.New(), uuid.New()
	order := Order{CollectorID: collectorID, BrandID: brandID}

	collector, _ := ResolveActor(collectorID, "collector")
	brand, _ := ResolveActor(brandID, "brand")
	system, _ := ResolveActor(uuid.New(), "admin")
	stranger, _ := ResolveActor(uuid.New(), "brand")

	tests := []struct {
		name   string
		actor  Actor
		action Action
		want   bool
	}{
		{"collector confirms", collector, ActionConfirm, true},
		{"collector ships", collector, ActionShip, true},
		{"collector cannot deliver", collector, ActionDeliver, false},
		{"brand delivers", brand, ActionDeliver, true},
		{"brand cancels", brand, ActionCancel, true},
		{"brand cannot confirm", brand, ActionConfirm, false},
		{"system does all", system, ActionProcess, true},
	}
	for _, tc := range tests {
		if got := tc.actor.CanTake(tc.action); got != tc.want {
			t.Errorf("%s: CanTake(%s) = %v, want %v", tc.name, tc.action, got, tc.want)
		}
	}

	if !collector.Owns(order) || !brand.Owns(order) || !system.Owns(order) {
		t.Fatal("participants and system must own the order")
	}
	if stranger.Owns(order) {
		t.Fatal("another brand must not own the order")
	}
	if collector.CanUpdatePayment() || !brand.CanUpdatePayment() {
		t.Fatal("only the paying brand or system update payment status")
	}
	if system.Role() != RoleSystem {
		t.Fatalf("admin role = %s, want system", system.Role())
	}
	if _, err := ResolveActor(uuid.New(), "guest"); err == nil {
		t.Fatal("unknown roles must be refused")
	}
}

func TestTotalRoundsToCurrencyUnit(t *testing.T) {
	tests := []struct {
		quantity, price, want string
	}{
		{"8", "4500", "36000"},
		{"2.5", "1.1", "2.75"},
		{"0.333", "3", "1"},
		{"1.005", "1", "1.01"},
	}
	for _, tc := range tests {
		got := Total(decimal.RequireFromString(tc.quantity), decimal.RequireFromString(tc.price))
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Errorf("Total(%s, %s) = %s, want %s", tc.quantity, tc.price, got, tc.want)
		}
	}

	o := Order{Quantity: decimal.NewFromInt(8), UnitPrice: decimal.NewFromInt(4500), TotalAmount: decimal.NewFromInt(36000)}
	if !o.AmountConsistent() {
		t.Fatal("expected consistent amount")
	}
	o.TotalAmount = decimal.NewFromInt(1)
	if o.AmountConsistent() {
		t.Fatal("expected inconsistent amount")
	}
}

func TestNewOrderNumber(t *testing.T) {
	now := time.Date(2026, 3, 9, 23, 30, 0, 0, time.UTC)
	number := NewOrderNumber(now)
	if !regexp.MustCompile(`^ORD-20260309-[0-9A-F]{6}$`).MatchString(number) {
		t.Fatalf("unexpected order number %q", number)
	}
	if NewOrderNumber(now) == number {
		t.Fatal("expected a random suffix")
	}
}

func TestValidateOrderHistory(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entry := func(s Status, p PaymentStatus, offset time.Duration) HistoryEntry {
		return HistoryEntry{Status: s, PaymentStatus: p, Timestamp: t0.Add(offset)}
	}

	valid := []HistoryEntry{
		entry(StatusPending, PaymentPending, 0),
		entry(StatusConfirmed, PaymentPending, time.Minute),
		entry(StatusConfirmed, PaymentPaid, 2*time.Minute),
		entry(StatusProcessing, PaymentPaid, 3*time.Minute),
	}
	if err := ValidateHistory(valid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	invalid := []HistoryEntry{
		entry(StatusPending, PaymentPending, 0),
		entry(StatusProcessing, PaymentPending, time.Minute),
	}
	if err := ValidateHistory(invalid); err == nil {
		t.Fatal("expected skipped edge to be reported")
	}

	badPayment := []HistoryEntry{
		entry(StatusPending, PaymentPending, 0),
		entry(StatusPending, PaymentRefunded, time.Minute),
	}
	if err := ValidateHistory(badPayment); err == nil {
		t.Fatal("expected invalid payment edge to be reported")
	}
}

func TestParseAction(t *testing.T) {
	if a, ok := ParseAction("cancel"); !ok || a != ActionCancel {
		t.Fatalf("ParseAction(cancel) = %q, %v", a, ok)
	}
	if _, ok := ParseAction("refund"); ok {
		t.Fatal("refund is not a fulfilment action")
	}
	edge, _ := EdgeFor(ActionCancel)
	if edge.Allows(StatusProcessing) {
		t.Fatal("cancel must not leave processing")
	}
}
