package scheduler

import (
	"context"
	"time"

	"repairdesk_backend/internal/notification/outbox"
	"repairdesk_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	outboxDispatchInterval = 2 * time.Second
	outboxClaimBatch       = 50
)

// OutboxClaimer is the part of the outbox repository the dispatcher uses.
type OutboxClaimer interface {
	ClaimPending(ctx context.Context, limit int) ([]outbox.Record, error)
	MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error
}

// OutboxEnqueuer hands a claimed record to the task queue.
type OutboxEnqueuer interface {
	EnqueueNotificationOutbox(ctx context.Context, payload NotificationOutboxDuePayload, runAt time.Time) error
}

// NotificationOutboxDispatcher moves due outbox rows onto the task queue.
type NotificationOutboxDispatcher struct {
	repo     OutboxClaimer
	queue    OutboxEnqueuer
	log      *logger.Logger
	interval time.Duration
}

func NewNotificationOutboxDispatcher(repo OutboxClaimer, queue OutboxEnqueuer, log *logger.Logger) *NotificationOutboxDispatcher {
	return &NotificationOutboxDispatcher{
		repo:     repo,
		queue:    queue,
		log:      log,
		interval: outboxDispatchInterval,
	}
}

func (d *NotificationOutboxDispatcher) Run(ctx context.Context) {
	if d == nil || d.repo == nil || d.queue == nil {
		return
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		d.dispatchOnce(ctx)
	}
}

// dispatchOnce claims one batch. A record that cannot be enqueued goes
// back to pending so the next tick picks it up again.
func (d *NotificationOutboxDispatcher) dispatchOnce(ctx context.Context) int {
	records, err := d.repo.ClaimPending(ctx, outboxClaimBatch)
	if err != nil {
		d.log.Warn("outbox claim failed", "error", err)
		return 0
	}

	enqueued := 0
	for _, rec := range records {
		err := d.queue.EnqueueNotificationOutbox(ctx, NotificationOutboxDuePayload{OutboxID: rec.ID.String()}, rec.RunAt)
		if err != nil {
			msg := err.Error()
			_ = d.repo.MarkPending(ctx, rec.ID, &msg)
			d.log.Warn("outbox enqueue failed", "outboxId", rec.ID.String(), "error", err)
			continue
		}
		enqueued++
	}
	return enqueued
}
