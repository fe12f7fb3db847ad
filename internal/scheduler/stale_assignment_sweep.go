package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"repairdesk_backend/platform/logger"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
)

const (
	defaultStaleAssignmentAfter = 24 * time.Hour
	defaultStaleSweepLimit      = 100
)

// SweepEnqueuer queues a sweep run.
type SweepEnqueuer interface {
	EnqueueStaleAssignmentSweep(ctx context.Context, payload StaleAssignmentSweepPayload, window time.Duration) error
}

// StaleAssignmentSweep fires the stale-assignment sweep on a cron schedule.
// The sweep itself runs in the worker, so every scheduler replica may
// tick without producing duplicate alerts.
type StaleAssignmentSweep struct {
	cron     *cron.Cron
	queue    SweepEnqueuer
	log      *logger.Logger
	schedule string
	after    time.Duration
	limit    int
}

func NewStaleAssignmentSweep(queue SweepEnqueuer, schedule string, after time.Duration, log *logger.Logger) *StaleAssignmentSweep {
	if after <= 0 {
		after = defaultStaleAssignmentAfter
	}
	return &StaleAssignmentSweep{
		cron:     cron.New(),
		queue:    queue,
		log:      log,
		schedule: schedule,
		after:    after,
		limit:    defaultStaleSweepLimit,
	}
}

// Start registers the job and starts the cron loop. Stop it by cancelling ctx.
func (s *StaleAssignmentSweep) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.trigger(ctx) }); err != nil {
		return fmt.Errorf("invalid stale assignment schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.log.Info("stale assignment sweep scheduled", "schedule", s.schedule, "after", s.after)

	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
	}()
	return nil
}

func (s *StaleAssignmentSweep) trigger(ctx context.Context) {
	payload := StaleAssignmentSweepPayload{
		ThresholdSeconds: int64(s.after / time.Second),
		Limit:            s.limit,
	}
	// A one-minute uniqueness window covers clock skew between replicas.
	err := s.queue.EnqueueStaleAssignmentSweep(ctx, payload, time.Minute)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		s.log.Debug("stale assignment sweep already queued")
		return
	}
	if err != nil {
		s.log.Warn("stale assignment sweep enqueue failed", "error", err)
	}
}
