package service

import (
	"context"
	"strings"

	"repairdesk_backend/internal/requests/domain"
	"repairdesk_backend/internal/requests/repository"
	"repairdesk_backend/internal/requests/transport"
	"repairdesk_backend/platform/apperr"
	"repairdesk_backend/platform/idgen"
	"repairdesk_backend/platform/sanitize"
)

// SubmitQuotation prices the work. The total is frozen at submission.
func (s *Service) SubmitQuotation(ctx context.Context, actor domain.Actor, requestID string, req transport.SubmitQuotationRequest) (domain.Request, error) {
	if len(req.Items) == 0 {
		return domain.Request{}, apperr.Validation("quotation needs at least one item")
	}
	if len(req.Items) > maxQuotationItems {
		return domain.Request{}, apperr.Validation("quotation has too many items")
	}
	for _, item := range req.Items {
		if sanitize.Text(item.Name) == "" {
			return domain.Request{}, apperr.Validation("item name is required")
		}
		if item.Price < 0 {
			return domain.Request{}, apperr.Validation("item price must not be negative")
		}
	}

	return s.apply(ctx, transition{
		op:        "submit quotation",
		event:     domain.EventSubmitQuotation,
		requestID: requestID,
		actor:     actor,
		mutate: func(ctx context.Context, tx repository.Tx, current domain.Request, _ *domain.Request) error {
			now := s.now()
			quotation := domain.Quotation{
				ID:           idgen.New(idgen.Quotation),
				RequestID:    current.ID,
				TechnicianID: actor.ID,
				CreatedAt:    now,
			}
			for i, input := range req.Items {
				quotation.Items = append(quotation.Items, domain.QuotationItem{
					ID:          idgen.New(idgen.QuotationItem),
					QuotationID: quotation.ID,
					Position:    i,
					Name:        sanitize.Text(input.Name),
					Price:       input.Price,
					Status:      domain.ItemPending,
					UpdatedAt:   now,
				})
			}
			quotation.TotalPrice = domain.QuotationTotal(quotation.Items)
			return tx.InsertQuotation(ctx, quotation)
		},
	})
}

// RespondQuotation is the customer's decision on the quote. Accepting from
// quoted starts every item; accepting from customer review sends the named
// completed items back for rework. Rejecting cancels the request.
func (s *Service) RespondQuotation(ctx context.Context, actor domain.Actor, requestID string, req transport.QuotationResponseRequest) (domain.Request, error) {
	if req.Accept == nil {
		return domain.Request{}, apperr.Validation("accept is required")
	}
	reworkIDs, err := uniqueIDs(req.ReworkItemIDs)
	if err != nil {
		return domain.Request{}, err
	}

	if !*req.Accept {
		if len(reworkIDs) > 0 {
			return domain.Request{}, apperr.Validation("reworkItemIds only apply when accepting")
		}
		reason := sanitize.Text(req.Reason)
		return s.apply(ctx, transition{
			op:        "reject quotation",
			event:     domain.EventRejectQuotation,
			requestID: requestID,
			actor:     actor,
			reason:    reason,
			mutate:    cancelWith(actor, reason),
		})
	}

	reason := sanitize.Text(req.Reason)
	return s.apply(ctx, transition{
		op:        "accept quotation",
		event:     domain.EventAcceptQuotation,
		requestID: requestID,
		actor:     actor,
		reason:    reason,
		mutate: func(ctx context.Context, tx repository.Tx, current domain.Request, _ *domain.Request) error {
			quotation, err := tx.GetQuotationForUpdate(ctx, current.ID)
			if err != nil {
				return err
			}
			if current.Status == domain.StatusCustomerReview {
				return s.requestRework(ctx, tx, actor, quotation, reworkIDs, reason)
			}
			if len(reworkIDs) > 0 {
				return apperr.Validation("reworkItemIds only apply to completed work")
			}
			return s.startItems(ctx, tx, actor, quotation)
		},
	})
}

func (s *Service) startItems(ctx context.Context, tx repository.Tx, actor domain.Actor, quotation domain.Quotation) error {
	started, err := tx.StartPendingItems(ctx, quotation.ID, actor)
	if err != nil {
		return err
	}
	from := domain.ItemPending
	now := s.now()
	logs := make([]domain.ItemLog, 0, len(started))
	for _, itemID := range started {
		logs = append(logs, domain.ItemLog{
			ID:        idgen.New(idgen.ItemLog),
			ItemID:    itemID,
			OldStatus: &from,
			NewStatus: domain.ItemInProgress,
			ChangedBy: actor.ID,
			CreatedAt: now,
		})
	}
	return tx.AppendItemLogs(ctx, logs)
}

func (s *Service) requestRework(ctx context.Context, tx repository.Tx, actor domain.Actor, quotation domain.Quotation, itemIDs []string, reason string) error {
	if len(itemIDs) == 0 {
		return apperr.Validation("reworkItemIds is required when reopening completed work")
	}
	items := indexItems(quotation)
	now := s.now()
	logs := make([]domain.ItemLog, 0, len(itemIDs))
	for _, id := range itemIDs {
		item, ok := items[id]
		if !ok {
			return apperr.Validation("item does not belong to this request").WithDetails(map[string]string{"itemId": id})
		}
		if !domain.CanMoveItem(item.Status, domain.ItemNeedsRework) {
			return apperr.Validation("only completed items can be sent back").WithDetails(map[string]string{"itemId": id})
		}
		from := item.Status
		by := actor.ID
		item.Status = domain.ItemNeedsRework
		item.Reason = optionalString(reason)
		item.ReportBy = &by
		if err := tx.UpdateItem(ctx, *item); err != nil {
			return err
		}
		logs = append(logs, domain.ItemLog{
			ID:        idgen.New(idgen.ItemLog),
			ItemID:    item.ID,
			OldStatus: &from,
			NewStatus: domain.ItemNeedsRework,
			Note:      reason,
			ChangedBy: actor.ID,
			CreatedAt: now,
		})
	}
	return tx.AppendItemLogs(ctx, logs)
}

// ReportProgress updates item statuses. The request moves to customer
// review once every item is completed and stays in progress otherwise.
func (s *Service) ReportProgress(ctx context.Context, actor domain.Actor, requestID string, req transport.ReportProgressRequest) (domain.Request, error) {
	if len(req.Items) == 0 {
		return domain.Request{}, apperr.Validation("at least one item is required")
	}
	seen := make(map[string]struct{}, len(req.Items))
	updates := make([]itemUpdate, 0, len(req.Items))
	for _, input := range req.Items {
		id := strings.TrimSpace(input.ItemID)
		if id == "" {
			return domain.Request{}, apperr.Validation("itemId is required")
		}
		if _, dup := seen[id]; dup {
			return domain.Request{}, apperr.Validation("item reported twice").WithDetails(map[string]string{"itemId": id})
		}
		seen[id] = struct{}{}
		status, err := domain.ParseItemStatus(input.Status)
		if err != nil {
			return domain.Request{}, apperr.Validation(err.Error())
		}
		refs, err := cleanImageRefs(input.Images, false)
		if err != nil {
			return domain.Request{}, err
		}
		updates = append(updates, itemUpdate{
			id:     id,
			status: status,
			note:   sanitize.TextPtr(input.Note),
			reason: sanitize.TextPtr(input.Reason),
			images: refs,
		})
	}

	return s.apply(ctx, transition{
		op:        "report progress",
		event:     domain.EventReportProgress,
		requestID: requestID,
		actor:     actor,
		mutate: func(ctx context.Context, tx repository.Tx, current domain.Request, next *domain.Request) error {
			quotation, err := tx.GetQuotationForUpdate(ctx, current.ID)
			if err != nil {
				return err
			}
			items := indexItems(quotation)
			now := s.now()
			logs := make([]domain.ItemLog, 0, len(updates))
			for _, u := range updates {
				item, ok := items[u.id]
				if !ok {
					return apperr.Validation("item does not belong to this request").WithDetails(map[string]string{"itemId": u.id})
				}
				if !domain.CanReportItemStatus(current, actor, u.status) {
					return apperr.Forbidden("not allowed to report this item status")
				}
				if !domain.CanMoveItem(item.Status, u.status) {
					return apperr.Validation("illegal item status change").WithDetails(map[string]string{
						"itemId": u.id,
						"from":   string(item.Status),
						"to":     string(u.status),
					})
				}

				from := item.Status
				by := actor.ID
				item.Status = u.status
				item.Note = u.note
				item.Reason = u.reason
				item.ReportBy = &by
				item.UpdatedAt = now
				if err := tx.UpdateItem(ctx, *item); err != nil {
					return err
				}
				if err := tx.ReplaceItemImages(ctx, item.ID, s.buildItemImages(item.ID, actor, u.images)); err != nil {
					return err
				}
				note := ""
				if u.note != nil {
					note = *u.note
				}
				logs = append(logs, domain.ItemLog{
					ID:        idgen.New(idgen.ItemLog),
					ItemID:    item.ID,
					OldStatus: &from,
					NewStatus: u.status,
					Note:      note,
					ChangedBy: actor.ID,
					CreatedAt: now,
				})
			}
			if err := tx.AppendItemLogs(ctx, logs); err != nil {
				return err
			}
			next.Status = domain.ProgressTarget(quotation.Items)
			return nil
		},
	})
}

type itemUpdate struct {
	id     string
	status domain.ItemStatus
	note   *string
	reason *string
	images []string
}

// indexItems returns pointers into quotation.Items so edits are visible to
// later reads of the slice.
func indexItems(quotation domain.Quotation) map[string]*domain.QuotationItem {
	index := make(map[string]*domain.QuotationItem, len(quotation.Items))
	for i := range quotation.Items {
		index[quotation.Items[i].ID] = &quotation.Items[i]
	}
	return index
}

func (s *Service) buildItemImages(itemID string, actor domain.Actor, refs []string) []domain.ItemImage {
	images := make([]domain.ItemImage, 0, len(refs))
	for _, ref := range refs {
		images = append(images, domain.ItemImage{
			ID:         idgen.New(idgen.ItemImage),
			ItemID:     itemID,
			UploadedBy: actor.ID,
			URL:        ref,
			CreatedAt:  s.now(),
		})
	}
	return images
}

func uniqueIDs(ids []string) ([]string, error) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			return nil, apperr.Validation("item id must not be empty")
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out, nil
}
