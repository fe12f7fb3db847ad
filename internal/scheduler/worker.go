package scheduler

import (
	"context"
	"fmt"
	"time"

	"repairdesk_backend/internal/events"
	"repairdesk_backend/platform/config"
	"repairdesk_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// StaleAssignmentDetector finds requests stuck in assigning and raises
// alerts for them.
type StaleAssignmentDetector interface {
	DetectStaleAssignments(ctx context.Context, threshold time.Duration, limit int) (int, error)
}

type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	detector StaleAssignmentDetector
	bus      events.Bus
	log      *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, detector StaleAssignmentDetector, bus events.Bus, log *logger.Logger) (*Worker, error) {
	opt, queue, err := asynqOptions(cfg)
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	w := newWorker(detector, bus, log)
	w.server = server
	return w, nil
}

func newWorker(detector StaleAssignmentDetector, bus events.Bus, log *logger.Logger) *Worker {
	mux := asynq.NewServeMux()
	w := &Worker{
		mux:      mux,
		detector: detector,
		bus:      bus,
		log:      log,
	}

	mux.HandleFunc(TaskNotificationOutboxDue, w.handleNotificationOutboxDue)
	mux.HandleFunc(TaskStaleAssignmentSweep, w.handleStaleAssignmentSweep)
	return w
}

func (w *Worker) handleNotificationOutboxDue(ctx context.Context, task *asynq.Task) error {
	if w.bus == nil {
		return nil
	}

	payload, err := ParseNotificationOutboxDuePayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	outboxID, err := uuid.Parse(payload.OutboxID)
	if err != nil {
		return fmt.Errorf("%w: invalid outbox id %q", asynq.SkipRetry, payload.OutboxID)
	}

	// Delivery retries are tracked on the outbox row, not by asynq.
	if err := w.bus.PublishSync(ctx, events.NotificationOutboxDue{
		BaseEvent: events.NewBaseEvent(),
		OutboxID:  outboxID,
	}); err != nil {
		w.log.Warn("outbox delivery failed", "outboxId", outboxID, "error", err)
	}
	return nil
}

func (w *Worker) handleStaleAssignmentSweep(ctx context.Context, task *asynq.Task) error {
	if w.detector == nil {
		return nil
	}

	payload, err := ParseStaleAssignmentSweepPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	threshold := time.Duration(payload.ThresholdSeconds) * time.Second
	found, err := w.detector.DetectStaleAssignments(ctx, threshold, payload.Limit)
	if err != nil {
		return err
	}
	if found > 0 {
		w.log.Info("stale assignments detected", "count", found, "threshold", threshold)
	}
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
