package domain

import "fmt"

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// PaymentStatus is orthogonal to fulfilment.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentPartial  PaymentStatus = "partial"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentFailed   PaymentStatus = "failed"
)

// Action is a fulfilment trigger.
type Action string

const (
	ActionConfirm Action = "confirm"
	ActionProcess Action = "process"
	ActionShip    Action = "ship"
	ActionDeliver Action = "deliver"
	ActionCancel  Action = "cancel"
)

// Edge is the from-set and target of an action.
type Edge struct {
	From []Status
	To   Status
}

var actions = map[Action]Edge{
	ActionConfirm: {From: []Status{StatusPending}, To: StatusConfirmed},
	ActionProcess: {From: []Status{StatusConfirmed}, To: StatusProcessing},
	ActionShip:    {From: []Status{StatusProcessing}, To: StatusShipped},
	ActionDeliver: {From: []Status{StatusShipped}, To: StatusDelivered},
	ActionCancel:  {From: []Status{StatusPending, StatusConfirmed}, To: StatusCancelled},
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending: {PaymentPaid, PaymentPartial, PaymentFailed},
	PaymentPartial: {PaymentPaid, PaymentRefunded, PaymentFailed},
	PaymentPaid:    {PaymentRefunded},
	PaymentFailed:  {PaymentPending},
}

// ParseAction validates s against the action set.
func ParseAction(s string) (Action, bool) {
	a := Action(s)
	_, ok := actions[a]
	return a, ok
}

// ParsePaymentStatus validates s against the payment enum.
func ParsePaymentStatus(s string) (PaymentStatus, bool) {
	switch PaymentStatus(s) {
	case PaymentPending, PaymentPaid, PaymentPartial, PaymentRefunded, PaymentFailed:
		return PaymentStatus(s), true
	default:
		return "", false
	}
}

// ParseStatus validates s against the fulfilment enum.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return Status(s), true
	default:
		return "", false
	}
}

// EdgeFor returns the edge of an action.
func EdgeFor(a Action) (Edge, bool) {
	e, ok := actions[a]
	return e, ok
}

// Allows reports whether the edge may leave from.
func (e Edge) Allows(from Status) bool {
	for _, s := range e.From {
		if s == from {
			return true
		}
	}
	return false
}

// CanTransitionOrder reports whether some action moves an order from -> to.
func CanTransitionOrder(from, to Status) bool {
	for _, e := range actions {
		if e.To == to && e.Allows(from) {
			return true
		}
	}
	return false
}

// CanTransitionPayment reports whether from -> to is a payment edge.
func CanTransitionPayment(from, to PaymentStatus) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no action leaves s.
func (s Status) IsTerminal() bool {
	for _, e := range actions {
		if e.Allows(s) {
			return false
		}
	}
	return true
}

// ValidateHistory checks that the recorded fulfilment and payment states form
// valid walks. An entry may change either dimension, or neither when it only
// carries notes.
func ValidateHistory(entries []HistoryEntry) error {
	if len(entries) == 0 {
		return fmt.Errorf("status history is empty")
	}
	if entries[0].Status != StatusPending || entries[0].PaymentStatus != PaymentPending {
		return fmt.Errorf("status history starts at %s/%s, want pending/pending", entries[0].Status, entries[0].PaymentStatus)
	}
	for i := 1; i < len(entries); i++ {
		prev, next := entries[i-1], entries[i]
		if prev.Status != next.Status && !CanTransitionOrder(prev.Status, next.Status) {
			return fmt.Errorf("status history entry %d: %s -> %s is not allowed", i, prev.Status, next.Status)
		}
		if prev.PaymentStatus != next.PaymentStatus && !CanTransitionPayment(prev.PaymentStatus, next.PaymentStatus) {
			return fmt.Errorf("status history entry %d: payment %s -> %s is not allowed", i, prev.PaymentStatus, next.PaymentStatus)
		}
		if next.Timestamp.Before(prev.Timestamp) {
			return fmt.Errorf("status history entry %d is older than its predecessor", i)
		}
	}
	return nil
}
