package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskNotificationOutboxDue = "notification.outbox.due"

const TaskStaleAssignmentSweep = "requests.stale_assignment_sweep"

type NotificationOutboxDuePayload struct {
	OutboxID string `json:"outboxId"`
}

type StaleAssignmentSweepPayload struct {
	ThresholdSeconds int64 `json:"thresholdSeconds"`
	Limit            int   `json:"limit"`
}

func NewNotificationOutboxDueTask(payload NotificationOutboxDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationOutboxDue, data), nil
}

func ParseNotificationOutboxDuePayload(task *asynq.Task) (NotificationOutboxDuePayload, error) {
	var payload NotificationOutboxDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return NotificationOutboxDuePayload{}, err
	}
	return payload, nil
}

func NewStaleAssignmentSweepTask(payload StaleAssignmentSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStaleAssignmentSweep, data), nil
}

func ParseStaleAssignmentSweepPayload(task *asynq.Task) (StaleAssignmentSweepPayload, error) {
	var payload StaleAssignmentSweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return StaleAssignmentSweepPayload{}, err
	}
	return payload, nil
}
