package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Role is the capability set an actor acts under. It is also recorded as
// changedByRole on history entries.
type Role string

const (
	RoleBrand     Role = "brand"
	RoleCollector Role = "collector"
	RoleSystem    Role = "system"
)

// Actor is resolved once from the principal and answers every capability
// question for the order workflow.
type Actor interface {
	ID() uuid.UUID
	Role() Role
	// Owns reports whether the actor may see and act on the order.
	Owns(o Order) bool
	CanTake(a Action) bool
	CanUpdatePayment() bool
}

// ResolveActor maps an authenticated principal onto an actor. Admins act as
// the system.
func ResolveActor(userID uuid.UUID, role string) (Actor, error) {
	switch role {
	case "collector":
		return collectorActor{id: userID}, nil
	case "brand":
		return brandActor{id: userID}, nil
	case "admin":
		return systemActor{id: userID}, nil
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}
}

// collectorActor is the owner of the ordered pickup.
type collectorActor struct{ id uuid.UUID }

func (a collectorActor) ID() uuid.UUID     { return a.id }
func (a collectorActor) Role() Role        { return RoleCollector }
func (a collectorActor) Owns(o Order) bool { return o.CollectorID == a.id }
func (a collectorActor) CanTake(act Action) bool {
	switch act {
	case ActionConfirm, ActionProcess, ActionShip, ActionCancel:
		return true
	}
	return false
}
func (a collectorActor) CanUpdatePayment() bool { return false }

// brandActor placed the order.
type brandActor struct{ id uuid.UUID }

func (a brandActor) ID() uuid.UUID     { return a.id }
func (a brandActor) Role() Role        { return RoleBrand }
func (a brandActor) Owns(o Order) bool { return o.BrandID == a.id }
func (a brandActor) CanTake(act Action) bool {
	return act == ActionDeliver || act == ActionCancel
}
func (a brandActor) CanUpdatePayment() bool { return true }

type systemActor struct{ id uuid.UUID }

func (a systemActor) ID() uuid.UUID          { return a.id }
func (a systemActor) Role() Role             { return RoleSystem }
func (a systemActor) Owns(Order) bool        { return true }
func (a systemActor) CanTake(Action) bool    { return true }
func (a systemActor) CanUpdatePayment() bool { return true }
