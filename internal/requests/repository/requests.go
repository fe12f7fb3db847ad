package repository

import (
	"context"
	"errors"

	"repairdesk_backend/internal/requests/domain"
	"repairdesk_backend/platform/apperr"

	"github.com/jackc/pgx/v5"
)

const requestColumns = `id, customer_id, technician_id, service_id, title, description, address,
	requested_date, requested_time, status, cancel_reason, cancelled_by,
	created_at, updated_at, completed_at`

const lockRequestQuery = `SELECT ` + requestColumns + `
	FROM requests
	WHERE id = $1
	FOR UPDATE`

const insertRequestQuery = `INSERT INTO requests
	(id, customer_id, technician_id, service_id, title, description, address,
	 requested_date, requested_time, status, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`

// updateRequestQuery is the compare-and-swap write shared by every transition.
const updateRequestQuery = `UPDATE requests
	SET status = $3,
		technician_id = $4,
		cancel_reason = $5,
		cancelled_by = $6,
		completed_at = $7,
		updated_at = now()
	WHERE id = $1 AND status = $2`

const insertRequestImageQuery = `INSERT INTO request_images
	(id, request_id, uploaded_by, image_url, kind)
	VALUES ($1, $2, $3, $4, $5)`

const insertStatusLogQuery = `INSERT INTO request_status_logs
	(id, request_id, old_status, new_status, changed_by, reason)
	VALUES ($1, $2, $3, $4, $5, $6)`

const insertAssignmentQuery = `INSERT INTO request_assignments
	(id, request_id, old_technician_id, new_technician_id, assigned_by, reason)
	VALUES ($1, $2, $3, $4, $5, $6)`

// scanRequest reads requestColumns followed by any extra selected columns.
func scanRequest(row pgx.Row, extra ...any) (domain.Request, error) {
	var req domain.Request
	var status string
	dest := []any{
		&req.ID, &req.CustomerID, &req.TechnicianID, &req.ServiceID, &req.Title, &req.Description, &req.Address,
		&req.RequestedDate, &req.RequestedTime, &status, &req.CancelReason, &req.CancelledBy,
		&req.CreatedAt, &req.UpdatedAt, &req.CompletedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return domain.Request{}, err
	}
	parsed, err := domain.ParseRequestStatus(status)
	if err != nil {
		return domain.Request{}, err
	}
	req.Status = parsed
	return req, nil
}

func (s *txStore) LockRequest(ctx context.Context, id string) (domain.Request, error) {
	req, err := scanRequest(s.db.QueryRow(ctx, lockRequestQuery, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Request{}, apperr.NotFound(errRequestNotFound)
	}
	if err != nil {
		return domain.Request{}, mapConstraintError(err, "lock request")
	}
	return req, nil
}

func (s *txStore) InsertRequest(ctx context.Context, req domain.Request) error {
	_, err := s.db.Exec(ctx, insertRequestQuery,
		req.ID, req.CustomerID, req.TechnicianID, req.ServiceID, req.Title, req.Description, req.Address,
		req.RequestedDate, req.RequestedTime, string(req.Status), req.CreatedAt,
	)
	if err != nil {
		return mapConstraintError(err, "insert request")
	}
	return nil
}

func (s *txStore) UpdateRequest(ctx context.Context, req domain.Request, expected domain.RequestStatus) error {
	tag, err := s.db.Exec(ctx, updateRequestQuery,
		req.ID, string(expected), string(req.Status),
		req.TechnicianID, req.CancelReason, req.CancelledBy, req.CompletedAt,
	)
	if err != nil {
		return mapConstraintError(err, "update request")
	}
	if tag.RowsAffected() == 0 {
		return apperr.StaleState(errStaleRequest).WithDetails(map[string]string{
			"requestId": req.ID,
			"expected":  string(expected),
		})
	}
	return nil
}

func (s *txStore) InsertRequestImages(ctx context.Context, images []domain.Image) error {
	if len(images) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, img := range images {
		batch.Queue(insertRequestImageQuery, img.ID, img.RequestID, img.UploadedBy, img.URL, string(img.Kind))
	}
	if err := s.db.SendBatch(ctx, batch).Close(); err != nil {
		return mapConstraintError(err, "insert request images")
	}
	return nil
}

func (s *txStore) AppendStatusLog(ctx context.Context, entry domain.StatusLogEntry) error {
	var old *string
	if entry.OldStatus != nil {
		v := string(*entry.OldStatus)
		old = &v
	}
	_, err := s.db.Exec(ctx, insertStatusLogQuery,
		entry.ID, entry.RequestID, old, string(entry.NewStatus), entry.ChangedBy, entry.Reason,
	)
	if err != nil {
		return mapConstraintError(err, "append status log")
	}
	return nil
}

func (s *txStore) AppendAssignment(ctx context.Context, a domain.Assignment) error {
	_, err := s.db.Exec(ctx, insertAssignmentQuery,
		a.ID, a.RequestID, a.OldTechnicianID, a.NewTechnicianID, a.AssignedBy, a.Reason,
	)
	if err != nil {
		return mapConstraintError(err, "append assignment")
	}
	return nil
}
