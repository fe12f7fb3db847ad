package relay

import (
	"context"
	"testing"
	"time"

	"repairdesk_backend/internal/notification/sse"
	"repairdesk_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const testChannel = "repairdesk:test"

func newTestRelay(t *testing.T) (*Relay, *sse.Service) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log := logger.New("test")
	local := sse.New(log)
	return New(client, testChannel, local, log), local
}

func receive(t *testing.T, stream <-chan sse.Event) sse.Event {
	t.Helper()
	select {
	case ev := <-stream:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("expected relayed event before timeout")
		return sse.Event{}
	}
}

func TestRelayDeliversToLocalUserAndRole(t *testing.T) {
	r, local := newTestRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := r.subscribe(ctx)
	if err != nil {
		t.Fatalf("expected subscription, got %v", err)
	}
	defer func() { _ = sub.Close() }()
	go r.consume(ctx, sub.Channel())

	user := uuid.New()
	userStream, detachUser := local.Attach(user, []string{"customer"})
	defer detachUser()
	adminStream, detachAdmin := local.Attach(uuid.New(), []string{"admin"})
	defer detachAdmin()

	if err := r.PushToUser(ctx, user, sse.Event{Type: sse.EventRequestStatusChanged, RequestID: "REQ1"}); err != nil {
		t.Fatalf("expected publish to succeed, got %v", err)
	}
	if ev := receive(t, userStream); ev.RequestID != "REQ1" || ev.Type != sse.EventRequestStatusChanged {
		t.Fatalf("unexpected user event %+v", ev)
	}

	if err := r.PushToRole(ctx, "admin", sse.Event{Type: sse.EventStaleAssignment, RequestID: "REQ2"}); err != nil {
		t.Fatalf("expected publish to succeed, got %v", err)
	}
	if ev := receive(t, adminStream); ev.RequestID != "REQ2" {
		t.Fatalf("unexpected admin event %+v", ev)
	}
	select {
	case ev := <-userStream:
		t.Fatalf("customer must not receive admin broadcast, got %+v", ev)
	default:
	}
}

func TestForwardIgnoresMalformedPayload(t *testing.T) {
	r, local := newTestRelay(t)
	stream, detach := local.Attach(uuid.New(), []string{"admin"})
	defer detach()

	r.forward("{not json")
	r.forward(`{"event":{"type":"request_status_changed"}}`)

	select {
	case ev := <-stream:
		t.Fatalf("expected nothing delivered, got %+v", ev)
	default:
	}
}

func TestRunStopsWithContext(t *testing.T) {
	r, _ := newTestRelay(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected Run to return after cancel")
	}
}
