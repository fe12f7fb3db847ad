package service

import (
	"context"
	"strings"
	"time"

	"repairdesk_backend/internal/events"
	"repairdesk_backend/internal/requests/domain"
	"repairdesk_backend/internal/requests/transport"
	"repairdesk_backend/platform/apperr"
	"repairdesk_backend/platform/idgen"

	"github.com/google/uuid"
)

const defaultPageSize = 20

// ListResult is one page of requests.
type ListResult struct {
	Items    []domain.Request
	Total    int
	Page     int
	PageSize int
}

// Get returns the request detail if actor is a party to it.
func (s *Service) Get(ctx context.Context, actor domain.Actor, requestID string) (domain.RequestDetail, error) {
	if !idgen.HasPrefix(requestID, idgen.Request) {
		return domain.RequestDetail{}, apperr.Validation(errInvalidRequestID)
	}
	detail, err := s.store.GetRequestDetail(ctx, requestID)
	if err != nil {
		return domain.RequestDetail{}, s.fail(ctx, "get request", err)
	}
	if !domain.CanView(detail.Request, actor) {
		return domain.RequestDetail{}, apperr.Forbidden(errNoStanding)
	}
	return detail, nil
}

// History returns the status log and assignment history.
func (s *Service) History(ctx context.Context, actor domain.Actor, requestID string) (domain.History, error) {
	if !idgen.HasPrefix(requestID, idgen.Request) {
		return domain.History{}, apperr.Validation(errInvalidRequestID)
	}
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return domain.History{}, s.fail(ctx, "get request history", err)
	}
	if !domain.CanView(req, actor) {
		return domain.History{}, apperr.Forbidden(errNoStanding)
	}
	history, err := s.store.GetHistory(ctx, requestID)
	if err != nil {
		return domain.History{}, s.fail(ctx, "get request history", err)
	}
	return history, nil
}

// ListMine lists the customer's own requests by status group.
func (s *Service) ListMine(ctx context.Context, actor domain.Actor, req transport.ListRequestsRequest) (ListResult, error) {
	statuses, ok := domain.StatusesFor(domain.RoleCustomer, domain.StatusGroup(req.Status))
	if !ok {
		return ListResult{}, apperr.Validation("unknown status group")
	}
	customerID := actor.ID
	return s.list(ctx, domain.ListFilter{CustomerID: &customerID, Statuses: statuses, Search: req.Search}, req)
}

// ListAssigned lists requests currently attached to the technician.
func (s *Service) ListAssigned(ctx context.Context, actor domain.Actor, req transport.ListRequestsRequest) (ListResult, error) {
	statuses, ok := domain.StatusesFor(domain.RoleTechnician, domain.StatusGroup(req.Status))
	if !ok {
		return ListResult{}, apperr.Validation("unknown status group")
	}
	technicianID := actor.ID
	return s.list(ctx, domain.ListFilter{TechnicianID: &technicianID, Statuses: statuses, Search: req.Search}, req)
}

// ListAll is the operator view over every request with an optional exact
// status filter.
func (s *Service) ListAll(ctx context.Context, req transport.ListRequestsRequest) (ListResult, error) {
	var statuses []domain.RequestStatus
	if status := strings.TrimSpace(req.Status); status != "" && status != string(domain.GroupAll) {
		parsed, err := domain.ParseRequestStatus(status)
		if err != nil {
			return ListResult{}, apperr.Validation(err.Error())
		}
		statuses = []domain.RequestStatus{parsed}
	}
	return s.list(ctx, domain.ListFilter{Statuses: statuses, Search: req.Search}, req)
}

func (s *Service) list(ctx context.Context, filter domain.ListFilter, req transport.ListRequestsRequest) (ListResult, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize

	items, total, err := s.store.ListRequests(ctx, filter)
	if err != nil {
		return ListResult{}, s.fail(ctx, "list requests", err)
	}
	return ListResult{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

// DetectStaleAssignments publishes one alert for every request that has
// waited in assigning for longer than threshold. A request is alerted again
// only after it is reassigned. It never transitions.
func (s *Service) DetectStaleAssignments(ctx context.Context, threshold time.Duration, limit int) (int, error) {
	stale, err := s.store.ClaimStaleAssignments(ctx, s.now().Add(-threshold), limit)
	if err != nil {
		return 0, s.fail(ctx, "claim stale assignments", err)
	}
	for _, req := range stale {
		technicianID := uuid.Nil
		if req.TechnicianID != nil {
			technicianID = *req.TechnicianID
		}
		s.bus.Publish(ctx, events.StaleAssignmentDetected{
			BaseEvent:    events.NewBaseEvent(),
			RequestID:    req.ID,
			TechnicianID: technicianID,
			Since:        req.UpdatedAt,
		})
	}
	return len(stale), nil
}
