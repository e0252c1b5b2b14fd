package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCanTransitionPickup(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusVerified, true},
		{StatusPending, StatusRejected, true},
		{StatusVerified, StatusPaid, true},
		{StatusPending, StatusPaid, false},
		{StatusPaid, StatusVerified, false},
		{StatusRejected, StatusPending, false},
		{StatusVerified, StatusRejected, false},
		{StatusVerified, StatusVerified, false},
	}

	for _, tc := range tests {
		if got := CanTransitionPickup(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransitionPickup(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	if !StatusPaid.IsTerminal() || !StatusRejected.IsTerminal() {
		t.Fatal("paid and rejected must be terminal")
	}
	if StatusPending.IsTerminal() || StatusVerified.IsTerminal() {
		t.Fatal("pending and verified must not be terminal")
	}
}

func TestValidateHistory(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	entry := func(s Status, offset time.Duration) HistoryEntry {
		return HistoryEntry{Status: s, Timestamp: t0.Add(offset)}
	}

	tests := []struct {
		name    string
		entries []HistoryEntry
		wantErr bool
	}{
		{"created only", []HistoryEntry{entry(StatusPending, 0)}, false},
		{"full walk", []HistoryEntry{entry(StatusPending, 0), entry(StatusVerified, time.Hour), entry(StatusPaid, 2 * time.Hour)}, false},
		{"rejected", []HistoryEntry{entry(StatusPending, 0), entry(StatusRejected, time.Minute)}, false},
		{"skips verified", []HistoryEntry{entry(StatusPending, 0), entry(StatusPaid, time.Hour)}, true},
		{"does not start pending", []HistoryEntry{entry(StatusVerified, 0)}, true},
		{"empty", nil, true},
		{"time goes backwards", []HistoryEntry{entry(StatusPending, time.Hour), entry(StatusVerified, 0)}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateHistory(tc.entries)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ValidateHistory() err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestAvailableWeight(t *testing.T) {
	actual := decimal.RequireFromString("9.5")
	tests := []struct {
		name   string
		pickup Pickup
		want   string
	}{
		{"estimate minus committed", Pickup{EstimatedWeight: decimal.NewFromInt(10), CommittedWeight: decimal.NewFromInt(8)}, "2"},
		{"actual wins once verified", Pickup{EstimatedWeight: decimal.NewFromInt(10), ActualWeight: &actual, CommittedWeight: decimal.NewFromInt(1)}, "8.5"},
		{"never negative", Pickup{EstimatedWeight: decimal.NewFromInt(5), CommittedWeight: decimal.NewFromInt(8)}, "0"},
	}

	for _, tc := range tests {
		if got := tc.pickup.AvailableWeight(); !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Errorf("%s: AvailableWeight() = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestParseCategory(t *testing.T) {
	tests := map[string]Category{
		"pet":           CategoryPET,
		" HDPE ":        CategoryHDPE,
		"Polypropylene": CategoryPP,
		"other":         CategoryOther,
	}
	for input, want := range tests {
		got, ok := ParseCategory(input)
		if !ok || got != want {
			t.Errorf("ParseCategory(%q) = %q, %v; want %q", input, got, ok, want)
		}
	}
	if _, ok := ParseCategory("glass"); ok {
		t.Error("glass must not map onto a plastic category")
	}
}

func TestCoversCommitted(t *testing.T) {
	p := Pickup{EstimatedWeight: decimal.NewFromInt(10), CommittedWeight: decimal.NewFromInt(8)}
	tests := []struct {
		weight string
		want   bool
	}{
		{"8", true},
		{"9.5", true},
		{"7.999", false},
		{"3", false},
	}
	for _, tc := range tests {
		if got := p.CoversCommitted(decimal.RequireFromString(tc.weight)); got != tc.want {
			t.Errorf("CoversCommitted(%s) = %v, want %v", tc.weight, got, tc.want)
		}
	}
}
