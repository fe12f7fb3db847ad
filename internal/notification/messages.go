package notification

import (
	"fmt"
	"strings"

	"repairdesk_backend/internal/events"

	"github.com/google/uuid"
)

var transitionTitles = map[string]string{
	"create":             "Request submitted",
	"cancel":             "Request cancelled",
	"assign":             "New assignment",
	"accept_assignment":  "Technician accepted",
	"reject_assignment":  "Assignment declined",
	"submit_quotation":   "Quotation ready",
	"accept_quotation":   "Quotation accepted",
	"reject_quotation":   "Quotation rejected",
	"report_progress":    "Work ready for review",
	"confirm_completion": "Work confirmed",
	"upload_proof":       "Payment proof uploaded",
	"approve_payment":    "Payment approved",
	"reject_payment":     "Payment rejected",
}

func describeTransition(e events.RequestStatusChanged) (string, string) {
	title, ok := transitionTitles[e.Action]
	if !ok {
		title = "Request updated"
	}

	var b strings.Builder
	if e.OldStatus == "" {
		fmt.Fprintf(&b, "Request %s is now %s.", e.RequestID, humanStatus(e.NewStatus))
	} else {
		fmt.Fprintf(&b, "Request %s moved from %s to %s.", e.RequestID, humanStatus(e.OldStatus), humanStatus(e.NewStatus))
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, " Reason: %s", e.Reason)
	}
	return title, b.String()
}

func humanStatus(status string) string {
	return strings.ReplaceAll(status, "_", " ")
}

// parties lists everyone attached to the request, the actor included, so
// the actor's other sessions refresh as well.
func parties(e events.RequestStatusChanged) []uuid.UUID {
	users := make([]uuid.UUID, 0, 3)
	seen := make(map[uuid.UUID]struct{}, 3)
	add := func(id uuid.UUID) {
		if id == uuid.Nil {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		users = append(users, id)
	}

	add(e.CustomerID)
	if e.TechnicianID != nil {
		add(*e.TechnicianID)
	}
	if e.PreviousTechnicianID != nil {
		add(*e.PreviousTechnicianID)
	}
	return users
}

// recipients are the parties who get a stored notification: everyone but
// the actor.
func recipients(e events.RequestStatusChanged) []uuid.UUID {
	all := parties(e)
	out := all[:0]
	for _, id := range all {
		if id != e.ActorID {
			out = append(out, id)
		}
	}
	return out
}
