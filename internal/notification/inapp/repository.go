package inapp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"repairdesk_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opCreate      = "notification.inapp.repository.create"
	opList        = "notification.inapp.repository.list"
	opCountUnread = "notification.inapp.repository.count_unread"
	opMarkRead    = "notification.inapp.repository.mark_read"
	opMarkAllRead = "notification.inapp.repository.mark_all_read"

	errRepoNotConfigured = "in-app notification repository not configured"
	errUserIDRequired    = "userId is required"

	KindRequestStatus   = "request_status"
	KindStaleAssignment = "stale_assignment"
)

const (
	insertNotificationQuery = `
		INSERT INTO notifications (user_id, title, content, request_id, kind)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, user_id, title, content, request_id, kind, is_read, created_at`

	listNotificationsQuery = `
		SELECT id, user_id, title, content, request_id, kind, is_read, created_at,
		       count(*) OVER() AS total
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	countUnreadQuery = `SELECT count(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`

	markReadQuery = `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`

	markAllReadQuery = `UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE`
)

type Notification struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	RequestID *string   `json:"requestId,omitempty"`
	Kind      string    `json:"kind"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

type CreateParams struct {
	UserID    uuid.UUID
	Title     string
	Content   string
	RequestID *string
	Kind      string
}

// Store is the persistence contract used by Service.
type Store interface {
	Create(ctx context.Context, p CreateParams) (Notification, error)
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Notification, int, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) error
}

type Repository struct {
	pool *pgxpool.Pool
}

var _ Store = (*Repository)(nil)

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, p CreateParams) (Notification, error) {
	if r == nil || r.pool == nil {
		return Notification{}, apperr.Internal(errRepoNotConfigured).WithOp(opCreate)
	}
	if p.UserID == uuid.Nil {
		return Notification{}, apperr.Validation(errUserIDRequired).WithOp(opCreate)
	}
	if p.Title == "" || p.Content == "" {
		return Notification{}, apperr.Validation("title and content are required").WithOp(opCreate)
	}

	kind := p.Kind
	if kind == "" {
		kind = KindRequestStatus
	}

	var n Notification
	err := r.pool.QueryRow(ctx, insertNotificationQuery, p.UserID, p.Title, p.Content, p.RequestID, kind).Scan(
		&n.ID, &n.UserID, &n.Title, &n.Content, &n.RequestID, &n.Kind, &n.IsRead, &n.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return Notification{}, apperr.Validation("unknown requestId").WithOp(opCreate)
		}
		return Notification{}, apperr.Persistence("create in-app notification failed", err).WithOp(opCreate)
	}

	return n, nil
}

func (r *Repository) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Notification, int, error) {
	if r == nil || r.pool == nil {
		return nil, 0, apperr.Internal(errRepoNotConfigured).WithOp(opList)
	}
	if userID == uuid.Nil {
		return nil, 0, apperr.Validation(errUserIDRequired).WithOp(opList)
	}

	rows, err := r.pool.Query(ctx, listNotificationsQuery, userID, limit, offset)
	if err != nil {
		return nil, 0, apperr.Persistence("list notifications query failed", err).WithOp(opList)
	}
	defer rows.Close()

	items := make([]Notification, 0, limit)
	total := 0
	for rows.Next() {
		var n Notification
		if scanErr := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &n.RequestID, &n.Kind, &n.IsRead, &n.CreatedAt, &total); scanErr != nil {
			return nil, 0, apperr.Persistence("scan notifications failed", scanErr).WithOp(opList)
		}
		items = append(items, n)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, 0, apperr.Persistence("iterate notifications failed", rowsErr).WithOp(opList)
	}

	return items, total, nil
}

func (r *Repository) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	if r == nil || r.pool == nil {
		return 0, apperr.Internal(errRepoNotConfigured).WithOp(opCountUnread)
	}
	if userID == uuid.Nil {
		return 0, apperr.Validation(errUserIDRequired).WithOp(opCountUnread)
	}

	var count int
	if err := r.pool.QueryRow(ctx, countUnreadQuery, userID).Scan(&count); err != nil {
		return 0, apperr.Persistence(fmt.Sprintf("count unread notifications for %s failed", userID), err).WithOp(opCountUnread)
	}

	return count, nil
}

func (r *Repository) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opMarkRead)
	}
	if userID == uuid.Nil || notificationID == uuid.Nil {
		return apperr.Validation("userId and notificationId are required").WithOp(opMarkRead)
	}

	tag, err := r.pool.Exec(ctx, markReadQuery, notificationID, userID)
	if err != nil {
		return apperr.Persistence("mark notification read failed", err).WithOp(opMarkRead)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("notification not found").WithOp(opMarkRead)
	}

	return nil
}

func (r *Repository) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opMarkAllRead)
	}
	if userID == uuid.Nil {
		return apperr.Validation(errUserIDRequired).WithOp(opMarkAllRead)
	}

	if _, err := r.pool.Exec(ctx, markAllReadQuery, userID); err != nil {
		return apperr.Persistence("mark all notifications read failed", err).WithOp(opMarkAllRead)
	}

	return nil
}
