// Package domain holds the request lifecycle rules: the closed status
// enumerations, the transition table and the ownership rules deciding who
// may fire which event. It performs no I/O.
package domain

import "fmt"

// RequestStatus is the primary state of a service request.
type RequestStatus string

const (
	StatusPending        RequestStatus = "pending"
	StatusAssigning      RequestStatus = "assigning"
	StatusAssigned       RequestStatus = "assigned"
	StatusQuoted         RequestStatus = "quoted"
	StatusInProgress     RequestStatus = "in_progress"
	StatusCustomerReview RequestStatus = "customer_review"
	StatusPayment        RequestStatus = "payment"
	StatusPaymentReview  RequestStatus = "payment_review"
	StatusCompleted      RequestStatus = "completed"
	StatusCancelled      RequestStatus = "cancelled"
)

// RequestStatuses lists every request status in lifecycle order.
var RequestStatuses = []RequestStatus{
	StatusPending,
	StatusAssigning,
	StatusAssigned,
	StatusQuoted,
	StatusInProgress,
	StatusCustomerReview,
	StatusPayment,
	StatusPaymentReview,
	StatusCompleted,
	StatusCancelled,
}

// Valid reports whether s is one of the defined request statuses.
func (s RequestStatus) Valid() bool {
	for _, known := range RequestStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// HoldsTechnician reports whether a request in status s must have a
// technician attached. The two states outside this set must not.
func (s RequestStatus) HoldsTechnician() bool {
	return s.Valid() && s != StatusPending && s != StatusCancelled
}

// IsTerminal reports whether no further event can leave s.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ParseRequestStatus converts a stored or user-supplied value.
func ParseRequestStatus(value string) (RequestStatus, error) {
	s := RequestStatus(value)
	if !s.Valid() {
		return "", fmt.Errorf("unknown request status %q", value)
	}
	return s, nil
}

// ItemStatus is the progress state of one quotation item.
type ItemStatus string

const (
	ItemPending     ItemStatus = "pending"
	ItemInProgress  ItemStatus = "in_progress"
	ItemCompleted   ItemStatus = "completed"
	ItemNeedsRework ItemStatus = "needs_rework"
)

// itemTransitions lists, per source status, the statuses an item may be
// reported into. Same-status entries allow note and image updates.
var itemTransitions = map[ItemStatus][]ItemStatus{
	ItemPending:     {ItemInProgress},
	ItemInProgress:  {ItemInProgress, ItemCompleted},
	ItemCompleted:   {ItemCompleted, ItemNeedsRework},
	ItemNeedsRework: {ItemInProgress, ItemCompleted},
}

// Valid reports whether s is one of the defined item statuses.
func (s ItemStatus) Valid() bool {
	_, ok := itemTransitions[s]
	return ok
}

// ParseItemStatus converts a stored or user-supplied value.
func ParseItemStatus(value string) (ItemStatus, error) {
	s := ItemStatus(value)
	if !s.Valid() {
		return "", fmt.Errorf("unknown item status %q", value)
	}
	return s, nil
}

// CanMoveItem reports whether an item may go from one status to another.
func CanMoveItem(from, to ItemStatus) bool {
	for _, allowed := range itemTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllCompleted reports whether items is non-empty and every item is completed.
func AllCompleted(items []QuotationItem) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if item.Status != ItemCompleted {
			return false
		}
	}
	return true
}

// PaymentStatus is the state of the payment record.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentReview   PaymentStatus = "review"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRejected PaymentStatus = "rejected"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:  {PaymentReview},
	PaymentReview:   {PaymentReview, PaymentPaid, PaymentRejected},
	PaymentRejected: {PaymentReview},
	PaymentPaid:     {},
}

// Valid reports whether s is one of the defined payment statuses.
func (s PaymentStatus) Valid() bool {
	_, ok := paymentTransitions[s]
	return ok
}

// ParsePaymentStatus converts a stored value.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	s := PaymentStatus(value)
	if !s.Valid() {
		return "", fmt.Errorf("unknown payment status %q", value)
	}
	return s, nil
}

// CanMovePayment reports whether a payment may go from one status to another.
func CanMovePayment(from, to PaymentStatus) bool {
	for _, allowed := range paymentTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
