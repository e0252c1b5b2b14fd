package domain

import "fmt"

// Status is the lifecycle state of a pickup.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
	StatusPaid     Status = "paid"
)

// transitions is the only table of allowed pickup moves. Creation enters
// pending without an edge.
var transitions = map[Status][]Status{
	StatusPending:  {StatusVerified, StatusRejected},
	StatusVerified: {StatusPaid},
}

// OrderableStatuses are the states in which brands may commit weight.
var OrderableStatuses = []Status{StatusPending, StatusVerified}

// ParseStatus validates s against the enum.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusVerified, StatusRejected, StatusPaid:
		return Status(s), true
	default:
		return "", false
	}
}

// CanTransitionPickup reports whether from -> to is an edge of the lifecycle.
func CanTransitionPickup(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// IsOrderable reports whether brands may order against a pickup in s.
func (s Status) IsOrderable() bool {
	for _, o := range OrderableStatuses {
		if s == o {
			return true
		}
	}
	return false
}

// ValidateHistory checks that entries start at pending and every consecutive
// pair is an edge of the lifecycle.
func ValidateHistory(entries []HistoryEntry) error {
	if len(entries) == 0 {
		return fmt.Errorf("status history is empty")
	}
	if entries[0].Status != StatusPending {
		return fmt.Errorf("status history starts at %s, want pending", entries[0].Status)
	}
	for i := 1; i < len(entries); i++ {
		prev, next := entries[i-1], entries[i]
		if !CanTransitionPickup(prev.Status, next.Status) {
			return fmt.Errorf("status history entry %d: %s -> %s is not allowed", i, prev.Status, next.Status)
		}
		if next.Timestamp.Before(prev.Timestamp) {
			return fmt.Errorf("status history entry %d is older than its predecessor", i)
		}
	}
	return nil
}
