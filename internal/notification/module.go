// Package notification delivers lifecycle events to the people involved.
// It never takes part in a lifecycle transaction: every handler runs after
// commit and a delivery failure only produces a log line.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"repairdesk_backend/internal/email"
	"repairdesk_backend/internal/events"
	apphttp "repairdesk_backend/internal/http"
	notifhandler "repairdesk_backend/internal/notification/handler"
	"repairdesk_backend/internal/notification/inapp"
	"repairdesk_backend/internal/notification/outbox"
	"repairdesk_backend/internal/notification/sse"
	"repairdesk_backend/platform/config"
	"repairdesk_backend/platform/httpkit"
	"repairdesk_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

const (
	outboxKindEmail            = "email"
	outboxTemplateAlert        = "operator_alert"
	invalidOutboxPayloadPrefix = "invalid payload: "
	maxOutboxRetryAttempts     = 5
	outboxRetryBaseDelay       = time.Minute
	outboxRetryMaxDelay        = 60 * time.Minute

	channelInApp  = "inapp"
	channelSSE    = "sse"
	channelOutbox = "outbox"
)

// OutboxStore is the part of the outbox repository the module drives.
type OutboxStore interface {
	Insert(ctx context.Context, p outbox.InsertParams) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (outbox.Record, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkSucceeded(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
	ScheduleRetry(ctx context.Context, id uuid.UUID, runAt time.Time, lastError string) error
}

// Module handles all notification-related event subscriptions.
type Module struct {
	sender       email.Sender
	cfg          config.NotificationConfig
	log          *logger.Logger
	stream       *sse.Service
	pusher       sse.Pusher
	inAppService *inapp.Service
	inAppHandler *notifhandler.HTTPHandler
	outbox       OutboxStore
	now          func() time.Time
}

// New creates a new notification module backed by Postgres. Pushes go to
// the local SSE registry until SetPusher installs a relay.
func New(pool *pgxpool.Pool, sender email.Sender, cfg config.NotificationConfig, log *logger.Logger) *Module {
	return newModule(inapp.NewRepository(pool), outbox.New(pool), sender, cfg, log)
}

func newModule(store inapp.Store, ob OutboxStore, sender email.Sender, cfg config.NotificationConfig, log *logger.Logger) *Module {
	stream := sse.New(log)
	inAppSvc := inapp.NewService(store, log)
	inAppSvc.SetPusher(stream)

	return &Module{
		sender:       sender,
		cfg:          cfg,
		log:          log,
		stream:       stream,
		pusher:       stream,
		inAppService: inAppSvc,
		inAppHandler: notifhandler.NewHTTPHandler(inAppSvc, stream.Handler()),
		outbox:       ob,
		now:          time.Now,
	}
}

func (m *Module) Name() string { return "notification" }

// RegisterRoutes registers notification API routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.inAppHandler.RegisterRoutes(ctx.Protected.Group("/notifications"))
}

// SetPusher replaces the live delivery channel, typically with the Redis
// relay so pushes reach clients on every API instance.
func (m *Module) SetPusher(p sse.Pusher) {
	m.pusher = p
	m.inAppService.SetPusher(p)
}

// Stream exposes the local connection registry for the relay to feed.
func (m *Module) Stream() *sse.Service { return m.stream }

func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.RequestStatusChanged{}.EventName(), m)
	bus.Subscribe(events.StaleAssignmentDetected{}.EventName(), m)
	bus.Subscribe(events.NotificationOutboxDue{}.EventName(), m)

	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.RequestStatusChanged:
		return m.handleRequestStatusChanged(ctx, e)
	case events.StaleAssignmentDetected:
		return m.handleStaleAssignmentDetected(ctx, e)
	case events.NotificationOutboxDue:
		return m.handleNotificationOutboxDue(ctx, e)
	default:
		m.log.Warn("unhandled event type", "event", event.EventName())
		return nil
	}
}

// alertActions are the transitions that need an operator to act.
var alertActions = map[string]struct{}{
	email.AlertNewRequest:         {},
	email.AlertAssignmentRejected: {},
	email.AlertProofUploaded:      {},
}

func (m *Module) handleRequestStatusChanged(ctx context.Context, e events.RequestStatusChanged) error {
	title, content := describeTransition(e)

	var g errgroup.Group
	for _, userID := range recipients(e) {
		g.Go(func() error {
			_, err := m.inAppService.Send(ctx, inapp.SendParams{
				UserID:    userID,
				Title:     title,
				Content:   content,
				RequestID: e.RequestID,
				Kind:      inapp.KindRequestStatus,
			})
			if err != nil {
				m.log.NotificationFailed(channelInApp, e.RequestID, err)
			}
			return err
		})
	}

	g.Go(func() error {
		event := sse.Event{
			Type:      sse.EventRequestStatusChanged,
			RequestID: e.RequestID,
			Message:   title,
			Data:      e,
		}
		return m.push(ctx, e.RequestID, parties(e), event)
	})

	if _, ok := alertActions[e.Action]; ok {
		g.Go(func() error {
			return m.enqueueOperatorAlerts(ctx, email.OperatorAlert{
				RequestID: e.RequestID,
				Action:    e.Action,
				OldStatus: e.OldStatus,
				NewStatus: e.NewStatus,
				Reason:    e.Reason,
				Link:      m.requestLink(e.RequestID),
			})
		})
	}

	return g.Wait()
}

func (m *Module) handleStaleAssignmentDetected(ctx context.Context, e events.StaleAssignmentDetected) error {
	waited := m.now().Sub(e.Since).Round(time.Minute)

	var g errgroup.Group
	g.Go(func() error {
		_, err := m.inAppService.Send(ctx, inapp.SendParams{
			UserID:    e.TechnicianID,
			Title:     "Assignment waiting for your answer",
			Content:   fmt.Sprintf("Request %s has been waiting for you to accept or decline for %s.", e.RequestID, waited),
			RequestID: e.RequestID,
			Kind:      inapp.KindStaleAssignment,
		})
		if err != nil {
			m.log.NotificationFailed(channelInApp, e.RequestID, err)
		}
		return err
	})
	g.Go(func() error {
		return m.push(ctx, e.RequestID, nil, sse.Event{
			Type:      sse.EventStaleAssignment,
			RequestID: e.RequestID,
			Message:   fmt.Sprintf("Waiting for technician for %s", waited),
			Data:      e,
		})
	})
	g.Go(func() error {
		return m.enqueueOperatorAlerts(ctx, email.OperatorAlert{
			RequestID: e.RequestID,
			Action:    email.AlertStaleAssignment,
			NewStatus: "assigning",
			Link:      m.requestLink(e.RequestID),
		})
	})
	return g.Wait()
}

// push sends event to each user and to every connected operator.
func (m *Module) push(ctx context.Context, requestID string, users []uuid.UUID, event sse.Event) error {
	var errs []error
	for _, userID := range users {
		if err := m.pusher.PushToUser(ctx, userID, event); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.pusher.PushToRole(ctx, httpkit.RoleAdmin, event); err != nil {
		errs = append(errs, err)
	}
	err := errors.Join(errs...)
	if err != nil {
		m.log.NotificationFailed(channelSSE, requestID, err)
	}
	return err
}

type operatorAlertPayload struct {
	ToEmail   string `json:"toEmail"`
	RequestID string `json:"requestId"`
	Action    string `json:"action"`
	OldStatus string `json:"oldStatus,omitempty"`
	NewStatus string `json:"newStatus,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Link      string `json:"link,omitempty"`
}

func (m *Module) enqueueOperatorAlerts(ctx context.Context, alert email.OperatorAlert) error {
	recipients := m.cfg.GetOperatorAlertEmails()
	if m.outbox == nil || len(recipients) == 0 {
		m.log.Debug("operator alert skipped; no outbox or recipients", "requestId", alert.RequestID, "action", alert.Action)
		return nil
	}

	var errs []error
	for _, to := range recipients {
		_, err := m.outbox.Insert(ctx, outbox.InsertParams{
			Kind:     outboxKindEmail,
			Template: outboxTemplateAlert,
			Payload: operatorAlertPayload{
				ToEmail:   to,
				RequestID: alert.RequestID,
				Action:    alert.Action,
				OldStatus: alert.OldStatus,
				NewStatus: alert.NewStatus,
				Reason:    alert.Reason,
				Link:      alert.Link,
			},
			RunAt: m.now().UTC(),
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		m.log.NotificationFailed(channelOutbox, alert.RequestID, err)
	}
	return err
}

func (m *Module) requestLink(requestID string) string {
	base := strings.TrimRight(m.cfg.GetAppBaseURL(), "/")
	if base == "" {
		return ""
	}
	return base + "/admin/requests/" + requestID
}

func (m *Module) handleNotificationOutboxDue(ctx context.Context, e events.NotificationOutboxDue) error {
	if m.outbox == nil {
		m.log.Debug("notification outbox repository not configured; skipping outbox due event", "outboxId", e.OutboxID)
		return nil
	}
	rec, process, err := m.prepareOutboxRecord(ctx, e.OutboxID)
	if err != nil || !process {
		if err != nil {
			m.log.Error("failed to prepare outbox record", "outboxId", e.OutboxID, "error", err)
		}
		return err
	}

	if rec.Kind != outboxKindEmail || rec.Template != outboxTemplateAlert {
		m.markOutboxUnsupported(ctx, rec)
		return nil
	}

	if err := m.processOperatorAlertOutbox(ctx, rec); err != nil {
		m.handleOutboxDeliveryError(ctx, rec, err)
		return err
	}
	m.log.Info("outbox record processed successfully", "outboxId", rec.ID.String(), "kind", rec.Kind, "template", rec.Template)
	return nil
}

func (m *Module) prepareOutboxRecord(ctx context.Context, outboxID uuid.UUID) (outbox.Record, bool, error) {
	rec, err := m.outbox.GetByID(ctx, outboxID)
	if err != nil {
		return outbox.Record{}, false, err
	}
	if rec.Status == outbox.StatusSucceeded || rec.Status == outbox.StatusFailed {
		m.log.Debug("outbox record already settled; skipping", "outboxId", rec.ID.String(), "status", rec.Status)
		return rec, false, nil
	}
	if err := m.outbox.MarkProcessing(ctx, rec.ID); err != nil {
		return outbox.Record{}, false, err
	}
	return rec, true, nil
}

func (m *Module) processOperatorAlertOutbox(ctx context.Context, rec outbox.Record) error {
	var payload operatorAlertPayload
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		_ = m.outbox.MarkFailed(ctx, rec.ID, invalidOutboxPayloadPrefix+err.Error())
		return nil
	}

	if strings.TrimSpace(payload.ToEmail) == "" {
		m.log.Debug("outbox email payload has no recipient; marking succeeded", "outboxId", rec.ID.String())
		_ = m.outbox.MarkSucceeded(ctx, rec.ID)
		return nil
	}

	err := m.sender.SendOperatorAlert(ctx, payload.ToEmail, email.OperatorAlert{
		RequestID: payload.RequestID,
		Action:    payload.Action,
		OldStatus: payload.OldStatus,
		NewStatus: payload.NewStatus,
		Reason:    payload.Reason,
		Link:      payload.Link,
	})
	if err != nil {
		return err
	}

	_ = m.outbox.MarkSucceeded(ctx, rec.ID)
	m.log.Info("operator alert delivered", "outboxId", rec.ID.String(), "requestId", payload.RequestID, "toEmail", payload.ToEmail)
	return nil
}

func (m *Module) handleOutboxDeliveryError(ctx context.Context, rec outbox.Record, deliveryErr error) {
	attempt := rec.Attempts + 1
	if attempt >= maxOutboxRetryAttempts {
		_ = m.outbox.MarkFailed(ctx, rec.ID, deliveryErr.Error())
		m.log.Warn("notification outbox exhausted retries",
			"outboxId", rec.ID.String(),
			"attempt", attempt,
			"maxAttempts", maxOutboxRetryAttempts,
			"error", deliveryErr,
		)
		return
	}

	retryAt := m.now().UTC().Add(computeOutboxRetryDelay(attempt))
	if err := m.outbox.ScheduleRetry(ctx, rec.ID, retryAt, deliveryErr.Error()); err != nil {
		_ = m.outbox.MarkFailed(ctx, rec.ID, deliveryErr.Error())
		m.log.Error("notification outbox retry scheduling failed; marked failed",
			"outboxId", rec.ID.String(),
			"attempt", attempt,
			"error", err,
		)
		return
	}

	m.log.Warn("notification outbox scheduled retry",
		"outboxId", rec.ID.String(),
		"attempt", attempt,
		"maxAttempts", maxOutboxRetryAttempts,
		"retryAt", retryAt,
		"error", deliveryErr,
	)
}

func computeOutboxRetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := outboxRetryBaseDelay << (attempt - 1)
	if delay > outboxRetryMaxDelay {
		return outboxRetryMaxDelay
	}
	return delay
}

func (m *Module) markOutboxUnsupported(ctx context.Context, rec outbox.Record) {
	msg := fmt.Sprintf("unsupported outbox kind/template: %s/%s", rec.Kind, rec.Template)
	_ = m.outbox.MarkFailed(ctx, rec.ID, msg)
	m.log.Warn("unsupported outbox record", "outboxId", rec.ID.String(), "kind", rec.Kind, "template", rec.Template)
}

var _ apphttp.Module = (*Module)(nil)
