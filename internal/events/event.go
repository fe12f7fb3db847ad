// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"repairdesk_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Requests Domain Events
// =============================================================================

// RequestStatusChanged is published after a lifecycle transition commits.
// OldStatus is empty for newly created requests.
type RequestStatusChanged struct {
	BaseEvent
	RequestID            string     `json:"requestId"`
	Action               string     `json:"action"`
	OldStatus            string     `json:"oldStatus,omitempty"`
	NewStatus            string     `json:"newStatus"`
	ActorID              uuid.UUID  `json:"actorId"`
	Reason               string     `json:"reason,omitempty"`
	CustomerID           uuid.UUID  `json:"customerId"`
	TechnicianID         *uuid.UUID `json:"technicianId,omitempty"`
	PreviousTechnicianID *uuid.UUID `json:"previousTechnicianId,omitempty"`
}

func (e RequestStatusChanged) EventName() string { return "requests.request.status_changed" }

// StaleAssignmentDetected is published by the scheduler sweep for requests
// that have waited in assigning longer than the configured threshold.
type StaleAssignmentDetected struct {
	BaseEvent
	RequestID    string    `json:"requestId"`
	TechnicianID uuid.UUID `json:"technicianId"`
	Since        time.Time `json:"since"`
}

func (e StaleAssignmentDetected) EventName() string { return "requests.assignment.stale" }

// =============================================================================
// Notification Events
// =============================================================================

// NotificationOutboxDue is published by the worker when an outbox record is
// ready for delivery.
type NotificationOutboxDue struct {
	BaseEvent
	OutboxID uuid.UUID `json:"outboxId"`
}

func (e NotificationOutboxDue) EventName() string { return "notification.outbox.due" }
