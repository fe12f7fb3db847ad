package domain

import (
	"slices"

	"github.com/google/uuid"
)

// Role is the authenticated role of an actor as asserted upstream.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleTechnician Role = "technician"
	RoleOperator   Role = "admin"
)

// Actor is the identity attached to every engine call.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// Party is the relationship an actor needs with a request to fire an event.
type Party int

const (
	// PartyCustomer is the customer who created the request.
	PartyCustomer Party = iota + 1
	// PartyTechnician is the technician currently attached to the request.
	PartyTechnician
	// PartyOperator is any operator. Role checks happen upstream.
	PartyOperator
)

// IsCustomer reports whether actor created req.
func (r Request) IsCustomer(actor Actor) bool {
	return actor.ID != uuid.Nil && r.CustomerID == actor.ID
}

// IsTechnician reports whether actor is the technician attached to req.
func (r Request) IsTechnician(actor Actor) bool {
	return r.TechnicianID != nil && actor.ID != uuid.Nil && *r.TechnicianID == actor.ID
}

// PartiesOf returns every party actor plays on req.
func PartiesOf(req Request, actor Actor) []Party {
	var parties []Party
	if req.IsCustomer(actor) {
		parties = append(parties, PartyCustomer)
	}
	if req.IsTechnician(actor) {
		parties = append(parties, PartyTechnician)
	}
	if actor.Role == RoleOperator {
		parties = append(parties, PartyOperator)
	}
	return parties
}

// HasStanding reports whether actor may fire event on req.
func HasStanding(event Event, req Request, actor Actor) bool {
	rule, ok := rules[event]
	if !ok {
		return false
	}
	for _, party := range PartiesOf(req, actor) {
		if slices.Contains(rule.Parties, party) {
			return true
		}
	}
	return false
}

// CanView reports whether actor may read req and its history.
func CanView(req Request, actor Actor) bool {
	return len(PartiesOf(req, actor)) > 0
}

// CanReportItemStatus restricts which item statuses each party may report.
// Technicians move work forward; customers can only send finished work back.
func CanReportItemStatus(req Request, actor Actor, to ItemStatus) bool {
	switch {
	case req.IsTechnician(actor):
		return to == ItemInProgress || to == ItemCompleted
	case req.IsCustomer(actor):
		return to == ItemNeedsRework
	default:
		return false
	}
}
