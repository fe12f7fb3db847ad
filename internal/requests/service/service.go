// Package service implements the request lifecycle engine. Every external
// action is one operation that runs inside a single store transaction and
// publishes its status change only after commit.
package service

import (
	"context"
	"strings"
	"time"

	"repairdesk_backend/internal/events"
	"repairdesk_backend/internal/requests/domain"
	"repairdesk_backend/internal/requests/repository"
	"repairdesk_backend/platform/apperr"
	"repairdesk_backend/platform/idgen"
	"repairdesk_backend/platform/logger"
	"repairdesk_backend/platform/sanitize"

	"github.com/google/uuid"
)

const (
	errInvalidRequestID = "invalid request id"
	errReasonRequired   = "reason is required"
	errImagesRequired   = "at least one image is required"
	errNoStanding       = "not allowed to act on this request"
	errTechnicianDrift  = "technician assignment does not match status"

	maxImagesPerUpload = 20
	maxQuotationItems  = 50
)

// Service is the lifecycle engine.
type Service struct {
	store repository.Store
	bus   events.Bus
	log   *logger.Logger
	now   func() time.Time
}

// New creates the lifecycle engine.
func New(store repository.Store, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		store: store,
		bus:   bus,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// mutation applies the event-specific writes. req arrives with Status set
// to the rule's default target and may be changed further.
type mutation func(ctx context.Context, tx repository.Tx, current domain.Request, req *domain.Request) error

type transition struct {
	op        string
	event     domain.Event
	requestID string
	actor     domain.Actor
	reason    string
	mutate    mutation
}

// apply runs the shared transition pipeline: lock, legality, standing,
// event writes, compare-and-swap, status log, commit, publish.
func (s *Service) apply(ctx context.Context, t transition) (domain.Request, error) {
	if !idgen.HasPrefix(t.requestID, idgen.Request) {
		return domain.Request{}, apperr.Validation(errInvalidRequestID)
	}

	var (
		result domain.Request
		change *domain.StatusChange
	)
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		current, err := tx.LockRequest(ctx, t.requestID)
		if err != nil {
			return err
		}

		next, err := domain.Next(t.event, current.Status)
		if err != nil {
			return apperr.StaleState(err.Error()).WithDetails(map[string]string{
				"status": string(current.Status),
				"event":  string(t.event),
			})
		}
		if !domain.HasStanding(t.event, current, t.actor) {
			return apperr.Forbidden(errNoStanding)
		}

		updated := current
		updated.Status = next
		if t.mutate != nil {
			if err := t.mutate(ctx, tx, current, &updated); err != nil {
				return err
			}
		}
		if updated.Status.HoldsTechnician() != (updated.TechnicianID != nil) {
			return apperr.Internal(errTechnicianDrift)
		}

		now := s.now()
		updated.UpdatedAt = now
		if err := tx.UpdateRequest(ctx, updated, current.Status); err != nil {
			return err
		}

		if domain.ShouldLog(t.event, current.Status, updated.Status) {
			from := current.Status
			if err := tx.AppendStatusLog(ctx, domain.StatusLogEntry{
				ID:        idgen.New(idgen.StatusLog),
				RequestID: updated.ID,
				OldStatus: &from,
				NewStatus: updated.Status,
				ChangedBy: t.actor.ID,
				Reason:    t.reason,
				CreatedAt: now,
			}); err != nil {
				return err
			}
			change = &domain.StatusChange{
				RequestID:    updated.ID,
				Event:        t.event,
				OldStatus:    &from,
				NewStatus:    updated.Status,
				ActorID:      t.actor.ID,
				Reason:       t.reason,
				CustomerID:   updated.CustomerID,
				TechnicianID: updated.TechnicianID,
				OccurredAt:   now,
			}
			if !sameTechnician(current.TechnicianID, updated.TechnicianID) {
				change.PreviousTechnicianID = current.TechnicianID
			}
		}

		result = updated
		return nil
	})
	if err != nil {
		return domain.Request{}, s.fail(ctx, t.op, err)
	}

	if change != nil {
		s.publish(ctx, *change)
	}
	return result, nil
}

// fail tags typed errors with op and turns anything else into a
// persistence incident.
func (s *Service) fail(ctx context.Context, op string, err error) error {
	if domainErr, ok := apperr.As(err); ok {
		if domainErr.IsIncident() {
			s.log.WithContext(ctx).DatabaseError(op, err)
		}
		return err
	}
	s.log.WithContext(ctx).DatabaseError(op, err)
	return apperr.Persistence("failed to "+op, err).WithOp(op)
}

// publish hands a committed change to the notification collaborator.
// The bus runs handlers asynchronously; delivery errors are theirs to log.
func (s *Service) publish(ctx context.Context, change domain.StatusChange) {
	oldStatus := ""
	if change.OldStatus != nil {
		oldStatus = string(*change.OldStatus)
	}
	s.log.WithContext(ctx).Transition(change.RequestID, string(change.Event), oldStatus, string(change.NewStatus), change.ActorID.String())

	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, events.RequestStatusChanged{
		BaseEvent:            events.BaseEvent{Timestamp: change.OccurredAt},
		RequestID:            change.RequestID,
		Action:               string(change.Event),
		OldStatus:            oldStatus,
		NewStatus:            string(change.NewStatus),
		ActorID:              change.ActorID,
		Reason:               change.Reason,
		CustomerID:           change.CustomerID,
		TechnicianID:         change.TechnicianID,
		PreviousTechnicianID: change.PreviousTechnicianID,
	})
}

func sameTechnician(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func requireReason(reason string) (string, error) {
	trimmed := sanitize.Text(reason)
	if trimmed == "" {
		return "", apperr.Validation(errReasonRequired)
	}
	return trimmed, nil
}

// cleanImageRefs trims refs and rejects empty sets or blank entries.
func cleanImageRefs(refs []string, required bool) ([]string, error) {
	if len(refs) == 0 {
		if required {
			return nil, apperr.Validation(errImagesRequired)
		}
		return nil, nil
	}
	if len(refs) > maxImagesPerUpload {
		return nil, apperr.Validation("too many images")
	}
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		trimmed := strings.TrimSpace(ref)
		if trimmed == "" {
			return nil, apperr.Validation("image reference must not be empty")
		}
		out = append(out, trimmed)
	}
	return out, nil
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
