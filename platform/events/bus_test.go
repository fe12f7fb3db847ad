package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"repairdesk_backend/platform/logger"
)

type testEvent struct {
	BaseEvent
	name string
}

func (e testEvent) EventName() string { return e.name }

func TestPublishSyncRunsHandlersInOrderAndJoinsErrors(t *testing.T) {
	bus := NewInMemoryBus(logger.New("development"))
	var order []int
	failure := errors.New("boom")

	bus.Subscribe("x", HandlerFunc(func(context.Context, Event) error {
		order = append(order, 1)
		return failure
	}))
	bus.Subscribe("x", HandlerFunc(func(context.Context, Event) error {
		order = append(order, 2)
		return nil
	}))

	err := bus.PublishSync(context.Background(), testEvent{BaseEvent: NewBaseEvent(), name: "x"})
	if !errors.Is(err, failure) {
		t.Fatalf("expected joined error to contain failure, got %v", err)
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("expected handlers to run in order [1 2], got %v", order)
	}
}

func TestPublishIgnoresOtherEventNames(t *testing.T) {
	bus := NewInMemoryBus(logger.New("development"))
	var calls int32
	bus.Subscribe("x", HandlerFunc(func(context.Context, Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))

	bus.Publish(context.Background(), testEvent{name: "y"})
	bus.Wait()

	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Fatalf("expected no calls, got %d", got)
	}
}

func TestPublishSurvivesCancelledContextAndPanics(t *testing.T) {
	bus := NewInMemoryBus(logger.New("development"))
	delivered := make(chan error, 1)

	bus.Subscribe("x", HandlerFunc(func(context.Context, Event) error {
		panic("handler exploded")
	}))
	bus.Subscribe("x", HandlerFunc(func(ctx context.Context, _ Event) error {
		delivered <- ctx.Err()
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.Publish(ctx, testEvent{name: "x"})

	select {
	case err := <-delivered:
		if err != nil {
			t.Fatalf("expected detached context, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("expected async delivery")
	}
	bus.Wait()
}
