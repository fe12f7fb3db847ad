package service

import (
	"context"

	"repairdesk_backend/internal/requests/domain"
	"repairdesk_backend/internal/requests/repository"
	"repairdesk_backend/internal/requests/transport"
	"repairdesk_backend/platform/apperr"
	"repairdesk_backend/platform/idgen"
	"repairdesk_backend/platform/sanitize"
)

// ConfirmCompletion accepts the finished work and opens the payment for
// the quoted total.
func (s *Service) ConfirmCompletion(ctx context.Context, actor domain.Actor, requestID string) (domain.Request, error) {
	return s.apply(ctx, transition{
		op:        "confirm completion",
		event:     domain.EventConfirmCompletion,
		requestID: requestID,
		actor:     actor,
		mutate: func(ctx context.Context, tx repository.Tx, current domain.Request, next *domain.Request) error {
			quotation, err := tx.GetQuotationForUpdate(ctx, current.ID)
			if err != nil {
				return err
			}
			now := s.now()
			next.CompletedAt = &now
			return tx.InsertPayment(ctx, domain.Payment{
				ID:        idgen.New(idgen.Payment),
				RequestID: current.ID,
				Method:    domain.DefaultPaymentMethod,
				Amount:    quotation.TotalPrice,
				Status:    domain.PaymentPending,
				CreatedAt: now,
				UpdatedAt: now,
			})
		},
	})
}

// UploadPaymentProof replaces the proof set and puts the payment under
// review. Re-uploading while already under review changes nothing else.
func (s *Service) UploadPaymentProof(ctx context.Context, actor domain.Actor, requestID string, req transport.PaymentProofsRequest) (domain.Request, error) {
	refs, err := cleanImageRefs(req.Images, true)
	if err != nil {
		return domain.Request{}, err
	}
	return s.apply(ctx, transition{
		op:        "upload payment proof",
		event:     domain.EventUploadProof,
		requestID: requestID,
		actor:     actor,
		mutate: func(ctx context.Context, tx repository.Tx, current domain.Request, _ *domain.Request) error {
			payment, err := tx.GetPaymentForUpdate(ctx, current.ID)
			if err != nil {
				return err
			}
			now := s.now()
			proofs := make([]domain.PaymentProof, 0, len(refs))
			for _, ref := range refs {
				proofs = append(proofs, domain.PaymentProof{
					ID:         idgen.New(idgen.PaymentProof),
					PaymentID:  payment.ID,
					UploadedBy: actor.ID,
					URL:        ref,
					CreatedAt:  now,
				})
			}
			if err := tx.ReplacePaymentProofs(ctx, payment.ID, proofs); err != nil {
				return err
			}
			if payment.Status == domain.PaymentReview {
				return nil
			}
			if !domain.CanMovePayment(payment.Status, domain.PaymentReview) {
				return apperr.StaleState("payment is not awaiting proof")
			}
			expected := payment.Status
			payment.Status = domain.PaymentReview
			return tx.UpdatePayment(ctx, payment, expected)
		},
	})
}

// VerifyPayment is the operator's decision on submitted proof. Approval
// completes the request; rejection sends it back for a new proof.
func (s *Service) VerifyPayment(ctx context.Context, actor domain.Actor, requestID string, req transport.VerifyPaymentRequest) (domain.Request, error) {
	if req.Approve == nil {
		return domain.Request{}, apperr.Validation("approve is required")
	}

	event := domain.EventApprovePayment
	target := domain.PaymentPaid
	op := "approve payment"
	reason := sanitize.Text(req.Reason)
	if !*req.Approve {
		var err error
		if reason, err = requireReason(req.Reason); err != nil {
			return domain.Request{}, err
		}
		event = domain.EventRejectPayment
		target = domain.PaymentRejected
		op = "reject payment"
	}

	return s.apply(ctx, transition{
		op:        op,
		event:     event,
		requestID: requestID,
		actor:     actor,
		reason:    reason,
		mutate: func(ctx context.Context, tx repository.Tx, current domain.Request, _ *domain.Request) error {
			payment, err := tx.GetPaymentForUpdate(ctx, current.ID)
			if err != nil {
				return err
			}
			if !domain.CanMovePayment(payment.Status, target) || payment.Status == target {
				return apperr.StaleState("payment is not under review")
			}
			now := s.now()
			by := actor.ID
			expected := payment.Status
			payment.Status = target
			payment.VerifiedBy = &by
			payment.VerifiedAt = &now
			payment.RejectReason = nil
			if target == domain.PaymentRejected {
				payment.RejectReason = &reason
			}
			return tx.UpdatePayment(ctx, payment, expected)
		},
	})
}
