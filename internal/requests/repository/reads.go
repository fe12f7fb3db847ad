package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"repairdesk_backend/internal/requests/domain"
	"repairdesk_backend/platform/apperr"

	"github.com/jackc/pgx/v5"
)

const getRequestQuery = `SELECT ` + requestColumns + `
	FROM requests
	WHERE id = $1`

const selectRequestImagesQuery = `SELECT id, request_id, uploaded_by, image_url, kind, created_at
	FROM request_images
	WHERE request_id = $1
	ORDER BY created_at, id`

// listRequestsQuery takes optional filters as typed NULLs so one statement
// serves the customer, technician and operator views.
const listRequestsQuery = `SELECT ` + requestColumns + `, count(*) OVER() AS total
	FROM requests
	WHERE ($1::uuid IS NULL OR customer_id = $1)
		AND ($2::uuid IS NULL OR technician_id = $2)
		AND (cardinality($3::text[]) = 0 OR status = ANY($3))
		AND ($4::text = '' OR id ILIKE $4 ESCAPE '\' OR title ILIKE $4 ESCAPE '\'
			OR address ILIKE $4 ESCAPE '\' OR description ILIKE $4 ESCAPE '\')
	ORDER BY created_at DESC, id DESC
	LIMIT $5 OFFSET $6`

const selectStatusLogQuery = `SELECT id, request_id, old_status, new_status, changed_by, reason, created_at
	FROM request_status_logs
	WHERE request_id = $1
	ORDER BY created_at, id`

const selectAssignmentsQuery = `SELECT id, request_id, old_technician_id, new_technician_id, assigned_by, reason, created_at
	FROM request_assignments
	WHERE request_id = $1
	ORDER BY created_at, id`

// claimStaleAssignmentsQuery marks the requests it returns so each wait in
// assigning is alerted once. Reassignment moves updated_at past the mark.
const claimStaleAssignmentsQuery = `UPDATE requests
	SET stale_alerted_at = now()
	WHERE id IN (
		SELECT id
		FROM requests
		WHERE status = 'assigning'
			AND updated_at < $1
			AND (stale_alerted_at IS NULL OR stale_alerted_at < updated_at)
		ORDER BY updated_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	)
	RETURNING ` + requestColumns

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

func (r *Repository) GetRequest(ctx context.Context, id string) (domain.Request, error) {
	req, err := scanRequest(r.pool.QueryRow(ctx, getRequestQuery, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Request{}, apperr.NotFound(errRequestNotFound)
	}
	if err != nil {
		return domain.Request{}, fmt.Errorf("failed to get request: %w", err)
	}
	return req, nil
}

// GetRequestDetail assembles the request with its images, quotation and payment.
func (r *Repository) GetRequestDetail(ctx context.Context, id string) (domain.RequestDetail, error) {
	req, err := r.GetRequest(ctx, id)
	if err != nil {
		return domain.RequestDetail{}, err
	}
	detail := domain.RequestDetail{Request: req}

	rows, err := r.pool.Query(ctx, selectRequestImagesQuery, id)
	if err != nil {
		return domain.RequestDetail{}, fmt.Errorf("failed to list request images: %w", err)
	}
	for rows.Next() {
		var img domain.Image
		var kind string
		if err := rows.Scan(&img.ID, &img.RequestID, &img.UploadedBy, &img.URL, &kind, &img.CreatedAt); err != nil {
			rows.Close()
			return domain.RequestDetail{}, err
		}
		img.Kind = domain.ImageKind(kind)
		if img.Kind == domain.ImageSurvey {
			detail.SurveyImages = append(detail.SurveyImages, img)
		} else {
			detail.SceneImages = append(detail.SceneImages, img)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.RequestDetail{}, err
	}

	quotation, err := loadQuotation(ctx, r.pool, id, selectQuotationItemsQuery)
	switch {
	case err == nil:
		detail.Quotation = &quotation
	case !apperr.Is(err, apperr.KindNotFound):
		return domain.RequestDetail{}, err
	}

	payment, err := loadPayment(ctx, r.pool, id, selectPaymentQuery)
	switch {
	case err == nil:
		detail.Payment = &payment
	case !apperr.Is(err, apperr.KindNotFound):
		return domain.RequestDetail{}, err
	}

	return detail, nil
}

// ListRequests returns one page of requests plus the total match count.
func (r *Repository) ListRequests(ctx context.Context, filter domain.ListFilter) ([]domain.Request, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	statuses := make([]string, 0, len(filter.Statuses))
	for _, s := range filter.Statuses {
		statuses = append(statuses, string(s))
	}
	search := containsPattern(filter.Search)

	rows, err := r.pool.Query(ctx, listRequestsQuery,
		filter.CustomerID, filter.TechnicianID, statuses, search, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var (
		items []domain.Request
		total int
	)
	for rows.Next() {
		req, err := scanRequest(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan request: %w", err)
		}
		items = append(items, req)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate requests: %w", err)
	}
	return items, total, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern turns free text into an ILIKE substring pattern that
// matches the text literally.
func containsPattern(search string) string {
	trimmed := strings.TrimSpace(search)
	if trimmed == "" {
		return ""
	}
	return "%" + likeEscaper.Replace(trimmed) + "%"
}

// GetHistory returns the status log and assignment history in write order.
func (r *Repository) GetHistory(ctx context.Context, requestID string) (domain.History, error) {
	var history domain.History

	rows, err := r.pool.Query(ctx, selectStatusLogQuery, requestID)
	if err != nil {
		return domain.History{}, fmt.Errorf("failed to list status log: %w", err)
	}
	for rows.Next() {
		var entry domain.StatusLogEntry
		var old *string
		var next string
		if err := rows.Scan(&entry.ID, &entry.RequestID, &old, &next, &entry.ChangedBy, &entry.Reason, &entry.CreatedAt); err != nil {
			rows.Close()
			return domain.History{}, err
		}
		if old != nil {
			prev, err := domain.ParseRequestStatus(*old)
			if err != nil {
				rows.Close()
				return domain.History{}, err
			}
			entry.OldStatus = &prev
		}
		if entry.NewStatus, err = domain.ParseRequestStatus(next); err != nil {
			rows.Close()
			return domain.History{}, err
		}
		history.StatusLog = append(history.StatusLog, entry)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.History{}, err
	}

	rows, err = r.pool.Query(ctx, selectAssignmentsQuery, requestID)
	if err != nil {
		return domain.History{}, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a domain.Assignment
		if err := rows.Scan(&a.ID, &a.RequestID, &a.OldTechnicianID, &a.NewTechnicianID, &a.AssignedBy, &a.Reason, &a.CreatedAt); err != nil {
			return domain.History{}, err
		}
		history.Assignments = append(history.Assignments, a)
	}
	return history, rows.Err()
}

// ClaimStaleAssignments returns requests that have waited in assigning
// since before assignedBefore and have not been alerted for that wait yet.
// The returned rows are stamped in the same statement.
func (r *Repository) ClaimStaleAssignments(ctx context.Context, assignedBefore time.Time, limit int) ([]domain.Request, error) {
	rows, err := r.pool.Query(ctx, claimStaleAssignmentsQuery, assignedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim stale assignments: %w", err)
	}
	defer rows.Close()

	var items []domain.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, req)
	}
	return items, rows.Err()
}
