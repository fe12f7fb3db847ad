package service

import (
	"context"
	"strings"
	"time"

	"repairdesk_backend/internal/requests/domain"
	"repairdesk_backend/internal/requests/repository"
	"repairdesk_backend/internal/requests/transport"
	"repairdesk_backend/platform/apperr"
	"repairdesk_backend/platform/idgen"
	"repairdesk_backend/platform/sanitize"

	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

// Create opens a new request in pending with its scene images.
func (s *Service) Create(ctx context.Context, actor domain.Actor, req transport.CreateRequestRequest) (domain.Request, error) {
	const op = "create request"

	if actor.Role != domain.RoleCustomer || actor.ID == uuid.Nil {
		return domain.Request{}, apperr.Forbidden("only customers can create requests")
	}
	serviceID := strings.TrimSpace(req.ServiceID)
	address := strings.TrimSpace(req.Address)
	if serviceID == "" {
		return domain.Request{}, apperr.Validation("serviceId is required")
	}
	if address == "" {
		return domain.Request{}, apperr.Validation("address is required")
	}
	var requestedDate *time.Time
	if req.RequestedDate != nil && *req.RequestedDate != "" {
		parsed, err := time.Parse(dateLayout, *req.RequestedDate)
		if err != nil {
			return domain.Request{}, apperr.Validation("requestedDate must be YYYY-MM-DD")
		}
		requestedDate = &parsed
	}
	refs, err := cleanImageRefs(req.Images, false)
	if err != nil {
		return domain.Request{}, err
	}

	now := s.now()
	created := domain.Request{
		ID:            idgen.New(idgen.Request),
		CustomerID:    actor.ID,
		ServiceID:     serviceID,
		Title:         sanitize.Text(req.Title),
		Description:   sanitize.Text(req.Description),
		Address:       address,
		RequestedDate: requestedDate,
		RequestedTime: req.RequestedTime,
		Status:        domain.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	images := buildImages(created.ID, actor.ID, domain.ImageScene, refs, now)

	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		if err := tx.InsertRequest(ctx, created); err != nil {
			return err
		}
		if err := tx.InsertRequestImages(ctx, images); err != nil {
			return err
		}
		return tx.AppendStatusLog(ctx, domain.StatusLogEntry{
			ID:        idgen.New(idgen.StatusLog),
			RequestID: created.ID,
			NewStatus: domain.StatusPending,
			ChangedBy: actor.ID,
			CreatedAt: now,
		})
	})
	if err != nil {
		return domain.Request{}, s.fail(ctx, op, err)
	}

	s.publish(ctx, domain.StatusChange{
		RequestID:  created.ID,
		Event:      domain.EventCreate,
		NewStatus:  domain.StatusPending,
		ActorID:    actor.ID,
		CustomerID: actor.ID,
		OccurredAt: now,
	})
	return created, nil
}

// Cancel closes a pending or quoted request on the customer's behalf.
func (s *Service) Cancel(ctx context.Context, actor domain.Actor, requestID string, req transport.CancelRequestRequest) (domain.Request, error) {
	reason, err := requireReason(req.Reason)
	if err != nil {
		return domain.Request{}, err
	}
	return s.apply(ctx, transition{
		op:        "cancel request",
		event:     domain.EventCancel,
		requestID: requestID,
		actor:     actor,
		reason:    reason,
		mutate:    cancelWith(actor, reason),
	})
}

// cancelWith detaches the technician and records who cancelled and why.
// The quotation keeps its technician for audit.
func cancelWith(actor domain.Actor, reason string) mutation {
	return func(_ context.Context, _ repository.Tx, _ domain.Request, req *domain.Request) error {
		by := actor.ID
		req.TechnicianID = nil
		req.CancelledBy = &by
		req.CancelReason = optionalString(reason)
		return nil
	}
}

// Assign hands the request to a technician. Reassigning while the previous
// technician has not answered replaces them.
func (s *Service) Assign(ctx context.Context, actor domain.Actor, requestID string, req transport.AssignRequest) (domain.Request, error) {
	if req.TechnicianID == uuid.Nil {
		return domain.Request{}, apperr.Validation("technicianId is required")
	}
	reason := sanitize.Text(req.Reason)
	return s.apply(ctx, transition{
		op:        "assign technician",
		event:     domain.EventAssign,
		requestID: requestID,
		actor:     actor,
		reason:    reason,
		mutate: func(ctx context.Context, tx repository.Tx, current domain.Request, next *domain.Request) error {
			if current.TechnicianID != nil && *current.TechnicianID == req.TechnicianID {
				return apperr.Validation("technician is already assigned")
			}
			technicianID := req.TechnicianID
			next.TechnicianID = &technicianID
			return tx.AppendAssignment(ctx, domain.Assignment{
				ID:              idgen.New(idgen.Assignment),
				RequestID:       current.ID,
				OldTechnicianID: current.TechnicianID,
				NewTechnicianID: technicianID,
				AssignedBy:      actor.ID,
				Reason:          reason,
				CreatedAt:       s.now(),
			})
		},
	})
}

// RespondAssignment records the technician's acceptance or rejection.
// Rejection returns the request to pending for another assignment.
func (s *Service) RespondAssignment(ctx context.Context, actor domain.Actor, requestID string, req transport.AssignmentResponseRequest) (domain.Request, error) {
	if req.Accept == nil {
		return domain.Request{}, apperr.Validation("accept is required")
	}
	if *req.Accept {
		return s.apply(ctx, transition{
			op:        "accept assignment",
			event:     domain.EventAcceptAssignment,
			requestID: requestID,
			actor:     actor,
			reason:    sanitize.Text(req.Reason),
		})
	}

	reason, err := requireReason(req.Reason)
	if err != nil {
		return domain.Request{}, err
	}
	return s.apply(ctx, transition{
		op:        "reject assignment",
		event:     domain.EventRejectAssignment,
		requestID: requestID,
		actor:     actor,
		reason:    reason,
		mutate: func(_ context.Context, _ repository.Tx, _ domain.Request, next *domain.Request) error {
			next.TechnicianID = nil
			return nil
		},
	})
}

// AddSurveyImages attaches the technician's site survey photos. The
// request status does not move.
func (s *Service) AddSurveyImages(ctx context.Context, actor domain.Actor, requestID string, req transport.SurveyImagesRequest) (domain.Request, error) {
	refs, err := cleanImageRefs(req.Images, true)
	if err != nil {
		return domain.Request{}, err
	}
	return s.apply(ctx, transition{
		op:        "add survey images",
		event:     domain.EventAddSurveyImages,
		requestID: requestID,
		actor:     actor,
		mutate: func(ctx context.Context, tx repository.Tx, current domain.Request, _ *domain.Request) error {
			return tx.InsertRequestImages(ctx, buildImages(current.ID, actor.ID, domain.ImageSurvey, refs, s.now()))
		},
	})
}

func buildImages(requestID string, uploadedBy uuid.UUID, kind domain.ImageKind, refs []string, now time.Time) []domain.Image {
	images := make([]domain.Image, 0, len(refs))
	for _, ref := range refs {
		images = append(images, domain.Image{
			ID:         idgen.New(idgen.RequestImage),
			RequestID:  requestID,
			UploadedBy: uploadedBy,
			URL:        ref,
			Kind:       kind,
			CreatedAt:  now,
		})
	}
	return images
}
