package repository

import (
	"context"
	"errors"

	"repairdesk_backend/internal/requests/domain"
	"repairdesk_backend/platform/apperr"

	"github.com/jackc/pgx/v5"
)

const insertPaymentQuery = `INSERT INTO payments (id, request_id, method, amount, status, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $6)`

const selectPaymentQuery = `SELECT id, request_id, method, amount, status, verified_by, verified_at, reject_reason, created_at, updated_at
	FROM payments
	WHERE request_id = $1`

const selectPaymentForUpdateQuery = selectPaymentQuery + `
	FOR UPDATE`

const selectPaymentProofsQuery = `SELECT id, payment_id, uploaded_by, image_url, created_at
	FROM payment_proofs
	WHERE payment_id = $1
	ORDER BY created_at, id`

const updatePaymentQuery = `UPDATE payments
	SET status = $3, verified_by = $4, verified_at = $5, reject_reason = $6, updated_at = now()
	WHERE id = $1 AND status = $2`

const deletePaymentProofsQuery = `DELETE FROM payment_proofs WHERE payment_id = $1`

const insertPaymentProofQuery = `INSERT INTO payment_proofs (id, payment_id, uploaded_by, image_url)
	VALUES ($1, $2, $3, $4)`

func (s *txStore) InsertPayment(ctx context.Context, payment domain.Payment) error {
	_, err := s.db.Exec(ctx, insertPaymentQuery,
		payment.ID, payment.RequestID, payment.Method, payment.Amount, string(payment.Status), payment.CreatedAt,
	)
	if err != nil {
		return mapConstraintError(err, "insert payment")
	}
	return nil
}

func (s *txStore) GetPaymentForUpdate(ctx context.Context, requestID string) (domain.Payment, error) {
	return loadPayment(ctx, s.db, requestID, selectPaymentForUpdateQuery)
}

func (s *txStore) UpdatePayment(ctx context.Context, payment domain.Payment, expected domain.PaymentStatus) error {
	tag, err := s.db.Exec(ctx, updatePaymentQuery,
		payment.ID, string(expected), string(payment.Status),
		payment.VerifiedBy, payment.VerifiedAt, payment.RejectReason,
	)
	if err != nil {
		return mapConstraintError(err, "update payment")
	}
	if tag.RowsAffected() == 0 {
		return apperr.StaleState(errStalePayment)
	}
	return nil
}

// ReplacePaymentProofs makes proofs the payment's complete proof set.
func (s *txStore) ReplacePaymentProofs(ctx context.Context, paymentID string, proofs []domain.PaymentProof) error {
	batch := &pgx.Batch{}
	batch.Queue(deletePaymentProofsQuery, paymentID)
	for _, proof := range proofs {
		batch.Queue(insertPaymentProofQuery, proof.ID, paymentID, proof.UploadedBy, proof.URL)
	}
	if err := s.db.SendBatch(ctx, batch).Close(); err != nil {
		return mapConstraintError(err, "replace payment proofs")
	}
	return nil
}

func loadPayment(ctx context.Context, db DBTX, requestID, query string) (domain.Payment, error) {
	var p domain.Payment
	var status string
	err := db.QueryRow(ctx, query, requestID).Scan(
		&p.ID, &p.RequestID, &p.Method, &p.Amount, &status,
		&p.VerifiedBy, &p.VerifiedAt, &p.RejectReason, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Payment{}, apperr.NotFound(errPaymentNotFound)
	}
	if err != nil {
		return domain.Payment{}, mapConstraintError(err, "get payment")
	}
	parsed, err := domain.ParsePaymentStatus(status)
	if err != nil {
		return domain.Payment{}, err
	}
	p.Status = parsed

	rows, err := db.Query(ctx, selectPaymentProofsQuery, p.ID)
	if err != nil {
		return domain.Payment{}, mapConstraintError(err, "list payment proofs")
	}
	defer rows.Close()
	for rows.Next() {
		var proof domain.PaymentProof
		if err := rows.Scan(&proof.ID, &proof.PaymentID, &proof.UploadedBy, &proof.URL, &proof.CreatedAt); err != nil {
			return domain.Payment{}, err
		}
		p.Proofs = append(p.Proofs, proof)
	}
	return p, rows.Err()
}
