package domain

import "github.com/google/uuid"

// StatusGroup is a named bucket of statuses used by list views.
type StatusGroup string

const (
	GroupAll        StatusGroup = "all"
	GroupPending    StatusGroup = "pending"
	GroupAssigned   StatusGroup = "assigned"
	GroupInProgress StatusGroup = "in_progress"
	GroupCompleted  StatusGroup = "completed"
	GroupCancelled  StatusGroup = "cancelled"
)

var customerGroups = map[StatusGroup][]RequestStatus{
	GroupPending:    {StatusPending, StatusAssigning, StatusAssigned, StatusQuoted},
	GroupInProgress: {StatusInProgress, StatusCustomerReview, StatusPayment, StatusPaymentReview},
	GroupCompleted:  {StatusCompleted},
	GroupCancelled:  {StatusCancelled},
}

// Technicians see quoted work as in progress since it is theirs to follow up.
var technicianGroups = map[StatusGroup][]RequestStatus{
	GroupPending:    {StatusAssigning},
	GroupAssigned:   {StatusAssigned},
	GroupInProgress: {StatusQuoted, StatusInProgress, StatusCustomerReview, StatusPayment, StatusPaymentReview},
	GroupCompleted:  {StatusCompleted},
	GroupCancelled:  {StatusCancelled},
}

// StatusesFor resolves a group for role. A nil slice with ok=true means no
// status filter.
func StatusesFor(role Role, group StatusGroup) ([]RequestStatus, bool) {
	if group == "" || group == GroupAll {
		return nil, true
	}
	table := customerGroups
	if role == RoleTechnician {
		table = technicianGroups
	}
	statuses, ok := table[group]
	return statuses, ok
}

// ListFilter selects requests for list views.
type ListFilter struct {
	CustomerID   *uuid.UUID
	TechnicianID *uuid.UUID
	Statuses     []RequestStatus
	Search       string
	Limit        int
	Offset       int
}
