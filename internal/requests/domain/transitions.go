package domain

import (
	"fmt"
	"slices"
)

// Event is an external action that may move a request between statuses.
type Event string

const (
	EventCreate            Event = "create"
	EventCancel            Event = "cancel"
	EventAssign            Event = "assign"
	EventAcceptAssignment  Event = "accept_assignment"
	EventRejectAssignment  Event = "reject_assignment"
	EventAddSurveyImages   Event = "add_survey_images"
	EventSubmitQuotation   Event = "submit_quotation"
	EventAcceptQuotation   Event = "accept_quotation"
	EventRejectQuotation   Event = "reject_quotation"
	EventReportProgress    Event = "report_progress"
	EventConfirmCompletion Event = "confirm_completion"
	EventUploadProof       Event = "upload_proof"
	EventApprovePayment    Event = "approve_payment"
	EventRejectPayment     Event = "reject_payment"
)

// Rule describes one row of the transition table.
type Rule struct {
	From []RequestStatus
	To   RequestStatus
	// LogOnChangeOnly marks events whose application is a transition only
	// when the status actually moves. Other events log on every application.
	LogOnChangeOnly bool
	// NoTransition marks events that are gated by status but never move it.
	NoTransition bool
	// Parties allowed to fire the event on a given request.
	Parties []Party
}

var rules = map[Event]Rule{
	EventCancel: {
		From:    []RequestStatus{StatusPending, StatusQuoted},
		To:      StatusCancelled,
		Parties: []Party{PartyCustomer},
	},
	EventAssign: {
		From:    []RequestStatus{StatusPending, StatusAssigning},
		To:      StatusAssigning,
		Parties: []Party{PartyOperator},
	},
	EventAcceptAssignment: {
		From:    []RequestStatus{StatusAssigning},
		To:      StatusAssigned,
		Parties: []Party{PartyTechnician},
	},
	EventRejectAssignment: {
		From:    []RequestStatus{StatusAssigning},
		To:      StatusPending,
		Parties: []Party{PartyTechnician},
	},
	EventAddSurveyImages: {
		From:         []RequestStatus{StatusAssigned, StatusQuoted},
		NoTransition: true,
		Parties:      []Party{PartyTechnician},
	},
	EventSubmitQuotation: {
		From:    []RequestStatus{StatusAssigned},
		To:      StatusQuoted,
		Parties: []Party{PartyTechnician},
	},
	EventAcceptQuotation: {
		From:    []RequestStatus{StatusQuoted, StatusCustomerReview},
		To:      StatusInProgress,
		Parties: []Party{PartyCustomer},
	},
	EventRejectQuotation: {
		From:    []RequestStatus{StatusQuoted},
		To:      StatusCancelled,
		Parties: []Party{PartyCustomer},
	},
	EventReportProgress: {
		From:            []RequestStatus{StatusInProgress},
		To:              StatusInProgress,
		LogOnChangeOnly: true,
		Parties:         []Party{PartyTechnician, PartyCustomer},
	},
	EventConfirmCompletion: {
		From:    []RequestStatus{StatusCustomerReview},
		To:      StatusPayment,
		Parties: []Party{PartyCustomer},
	},
	EventUploadProof: {
		From:            []RequestStatus{StatusPayment, StatusPaymentReview},
		To:              StatusPaymentReview,
		LogOnChangeOnly: true,
		Parties:         []Party{PartyCustomer, PartyTechnician},
	},
	EventApprovePayment: {
		From:    []RequestStatus{StatusPaymentReview},
		To:      StatusCompleted,
		Parties: []Party{PartyOperator},
	},
	EventRejectPayment: {
		From:    []RequestStatus{StatusPaymentReview},
		To:      StatusPayment,
		Parties: []Party{PartyOperator},
	},
}

// RuleFor returns the transition rule for event.
func RuleFor(event Event) (Rule, bool) {
	rule, ok := rules[event]
	return rule, ok
}

// TransitionError reports an event fired against a status it cannot leave.
type TransitionError struct {
	Event Event
	From  RequestStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a request in status %s", e.Event, e.From)
}

// Next returns the default target status for event fired from status from.
// Events with a data-dependent outcome (progress reports) may be moved
// further by the caller; the returned status is always legal as-is.
func Next(event Event, from RequestStatus) (RequestStatus, error) {
	rule, ok := rules[event]
	if !ok || !slices.Contains(rule.From, from) {
		return "", &TransitionError{Event: event, From: from}
	}
	if rule.NoTransition {
		return from, nil
	}
	return rule.To, nil
}

// ShouldLog reports whether applying event from one status to another
// produces a status log entry.
func ShouldLog(event Event, from, to RequestStatus) bool {
	rule, ok := rules[event]
	if !ok || rule.NoTransition {
		return false
	}
	if rule.LogOnChangeOnly {
		return from != to
	}
	return true
}

// ProgressTarget is the status a request in progress lands in after a
// progress report over items.
func ProgressTarget(items []QuotationItem) RequestStatus {
	if AllCompleted(items) {
		return StatusCustomerReview
	}
	return StatusInProgress
}
