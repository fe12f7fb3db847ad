package inapp

import (
	"context"

	"repairdesk_backend/internal/notification/sse"
	"repairdesk_backend/platform/apperr"
	"repairdesk_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

type Service struct {
	store  Store
	pusher sse.Pusher
	log    *logger.Logger
}

func NewService(store Store, log *logger.Logger) *Service {
	return &Service{
		store: store,
		log:   log,
	}
}

// SetPusher injects the live delivery channel. Without one, notifications
// are only persisted.
func (s *Service) SetPusher(p sse.Pusher) {
	s.pusher = p
}

type SendParams struct {
	UserID    uuid.UUID
	Title     string
	Content   string
	RequestID string
	Kind      string
}

// Send persists the notification and pushes it to the user's open streams.
// A failed push is logged; the stored row is the source of truth.
func (s *Service) Send(ctx context.Context, p SendParams) (Notification, error) {
	if s == nil || s.store == nil {
		return Notification{}, apperr.Internal("in-app notification service not configured")
	}

	var requestID *string
	if p.RequestID != "" {
		requestID = &p.RequestID
	}

	notif, err := s.store.Create(ctx, CreateParams{
		UserID:    p.UserID,
		Title:     p.Title,
		Content:   p.Content,
		RequestID: requestID,
		Kind:      p.Kind,
	})
	if err != nil {
		s.log.Error("failed to persist in-app notification", "error", err, "userId", p.UserID)
		return Notification{}, err
	}

	if s.pusher != nil {
		event := sse.Event{
			Type:      sse.EventInAppNotification,
			RequestID: p.RequestID,
			Message:   notif.Title,
			Data:      notif,
		}
		if err := s.pusher.PushToUser(ctx, p.UserID, event); err != nil {
			s.log.NotificationFailed("sse", p.RequestID, err)
		}
	}

	return notif, nil
}

// Page is one page of a user's notifications.
type Page struct {
	Items    []Notification `json:"items"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, page, pageSize int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	offset := (page - 1) * pageSize
	items, total, err := s.store.List(ctx, userID, pageSize, offset)
	if err != nil {
		return Page{}, err
	}
	return Page{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

func (s *Service) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.store.CountUnread(ctx, userID)
}

func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	return s.store.MarkRead(ctx, userID, id)
}

func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	return s.store.MarkAllRead(ctx, userID)
}
