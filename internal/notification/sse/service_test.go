package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"repairdesk_backend/platform/httpkit"
	"repairdesk_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func newClient(userID uuid.UUID, roles ...string) *client {
	return &client{userID: userID, roles: roles, events: make(chan Event, clientBuffer)}
}

func TestPublishReachesUserAndRole(t *testing.T) {
	s := New(logger.New("test"))
	customer := uuid.New()
	admin := uuid.New()

	c1 := newClient(customer, httpkit.RoleCustomer)
	c2 := newClient(customer, httpkit.RoleCustomer)
	a := newClient(admin, httpkit.RoleAdmin)
	s.addClient(c1)
	s.addClient(c2)
	s.addClient(a)

	if n := s.PublishToUser(customer, Event{Type: EventRequestStatusChanged}); n != 2 {
		t.Fatalf("expected 2 customer connections, got %d", n)
	}
	if n := s.PublishToRole(httpkit.RoleAdmin, Event{Type: EventStaleAssignment}); n != 1 {
		t.Fatalf("expected 1 admin connection, got %d", n)
	}
	if len(c1.events) != 1 || len(c2.events) != 1 || len(a.events) != 1 {
		t.Fatalf("expected one buffered event per connection, got %d/%d/%d", len(c1.events), len(c2.events), len(a.events))
	}
}

func TestRemoveClientDropsIndexes(t *testing.T) {
	s := New(logger.New("test"))
	admin := uuid.New()
	a := newClient(admin, httpkit.RoleAdmin)
	s.addClient(a)
	s.removeClient(a)

	if n := s.PublishToRole(httpkit.RoleAdmin, Event{Type: EventStaleAssignment}); n != 0 {
		t.Fatalf("expected no admin connections, got %d", n)
	}
	if _, ok := <-a.events; ok {
		t.Fatalf("expected closed channel after disconnect")
	}

	// A late disconnect after Close must not panic on a closed channel.
	b := newClient(admin, httpkit.RoleAdmin)
	s.addClient(b)
	s.Close()
	s.removeClient(b)
}

func TestFullBufferDropsInsteadOfBlocking(t *testing.T) {
	s := New(logger.New("test"))
	user := uuid.New()
	c := newClient(user)
	s.addClient(c)

	for i := 0; i < clientBuffer+5; i++ {
		s.PublishToUser(user, Event{Type: EventInAppNotification})
	}
	if len(c.events) != clientBuffer {
		t.Fatalf("expected %d buffered events, got %d", clientBuffer, len(c.events))
	}
}

func TestHandlerStreamsEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := New(logger.New("test"))
	user := uuid.New()

	router := gin.New()
	router.GET("/stream", func(c *gin.Context) {
		c.Set(httpkit.ContextUserIDKey, user)
		c.Set(httpkit.ContextRolesKey, []string{httpkit.RoleTechnician})
		c.Next()
	}, s.Handler())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		router.ServeHTTP(rec, req)
		close(done)
	}()

	waitFor(t, func() bool { return s.PublishToRole(httpkit.RoleTechnician, Event{Type: "ping"}) > 0 })
	s.PublishToUser(user, Event{Type: EventRequestStatusChanged, RequestID: "REQ1"})
	waitFor(t, func() bool { return s.pending(user) == 0 })
	cancel()
	<-done

	body := rec.Body.String()
	if !strings.Contains(body, "event:connected") {
		t.Fatalf("expected connected event, got %q", body)
	}
	if !strings.Contains(body, "event:request_status_changed") || !strings.Contains(body, "REQ1") {
		t.Fatalf("expected status event, got %q", body)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("expected event-stream content type, got %q", ct)
	}
}

func TestHandlerRequiresIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := New(logger.New("test"))
	router := gin.New()
	router.GET("/stream", s.Handler())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func (s *Service) pending(userID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.clients[userID] {
		n += len(c.events)
	}
	return n
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
