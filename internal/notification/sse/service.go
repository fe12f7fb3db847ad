// Package sse provides Server-Sent Events support for real-time notifications.
package sse

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"repairdesk_backend/platform/httpkit"
	"repairdesk_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EventType represents different types of SSE events
type EventType string

const (
	EventRequestStatusChanged EventType = "request_status_changed"
	EventStaleAssignment      EventType = "stale_assignment"
	EventInAppNotification    EventType = "in_app_notification"
)

// Event represents an SSE event payload
type Event struct {
	Type      EventType   `json:"type"`
	RequestID string      `json:"requestId,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// Pusher delivers events to connected users. The local registry and the
// Redis relay both implement it.
type Pusher interface {
	PushToUser(ctx context.Context, userID uuid.UUID, event Event) error
	PushToRole(ctx context.Context, role string, event Event) error
}

const clientBuffer = 32

// client represents a connected SSE client
type client struct {
	userID uuid.UUID
	roles  []string
	events chan Event
}

// Service manages SSE connections and event broadcasting
type Service struct {
	mu      sync.RWMutex
	clients map[uuid.UUID][]*client           // userID -> clients
	roles   map[string]map[*client]struct{} // role -> clients
	log     *logger.Logger
}

// New creates a new SSE service
func New(log *logger.Logger) *Service {
	return &Service{
		clients: make(map[uuid.UUID][]*client),
		roles:   make(map[string]map[*client]struct{}),
		log:     log,
	}
}

// addClient registers a new client connection
func (s *Service) addClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clients[c.userID] = append(s.clients[c.userID], c)
	for _, role := range c.roles {
		if s.roles[role] == nil {
			s.roles[role] = make(map[*client]struct{})
		}
		s.roles[role][c] = struct{}{}
	}
}

// removeClient unregisters a client connection
func (s *Service) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clients := s.clients[c.userID]
	found := false
	for i, cl := range clients {
		if cl == c {
			s.clients[c.userID] = append(clients[:i], clients[i+1:]...)
			found = true
			break
		}
	}
	if len(s.clients[c.userID]) == 0 {
		delete(s.clients, c.userID)
	}
	for _, role := range c.roles {
		delete(s.roles[role], c)
		if len(s.roles[role]) == 0 {
			delete(s.roles, role)
		}
	}

	// Close already drained the channel when the client is gone from the map.
	if found {
		close(c.events)
	}
}

func (s *Service) deliver(c *client, event Event) {
	select {
	case c.events <- event:
	default:
		s.log.Warn("sse buffer full; dropping event", "userId", c.userID, "type", event.Type)
	}
}

// Attach registers a connection and returns its event stream together
// with the function that detaches it.
func (s *Service) Attach(userID uuid.UUID, roles []string) (<-chan Event, func()) {
	cl := &client{userID: userID, roles: roles, events: make(chan Event, clientBuffer)}
	s.addClient(cl)
	return cl.events, func() { s.removeClient(cl) }
}

// PublishToUser sends an event to every connection of one user.
func (s *Service) PublishToUser(userID uuid.UUID, event Event) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := s.clients[userID]
	for _, c := range clients {
		s.deliver(c, event)
	}
	return len(clients)
}

// PublishToRole broadcasts an event to every connection holding role.
func (s *Service) PublishToRole(role string, event Event) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for c := range s.roles[role] {
		s.deliver(c, event)
	}
	return len(s.roles[role])
}

// PushToUser implements Pusher for a single API instance.
func (s *Service) PushToUser(_ context.Context, userID uuid.UUID, event Event) error {
	n := s.PublishToUser(userID, event)
	s.log.Debug("sse event published", "type", event.Type, "userId", userID, "clients", n)
	return nil
}

// PushToRole implements Pusher for a single API instance.
func (s *Service) PushToRole(_ context.Context, role string, event Event) error {
	n := s.PublishToRole(role, event)
	s.log.Debug("sse event published", "type", event.Type, "role", role, "clients", n)
	return nil
}

// Handler returns a Gin handler for SSE connections
func (s *Service) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := httpkit.MustGetIdentity(c)
		if identity == nil {
			return
		}

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")

		userID := identity.UserID()
		stream, detach := s.Attach(userID, identity.Roles())
		defer detach()

		c.Status(http.StatusOK)
		c.SSEvent("connected", gin.H{"userId": userID})
		c.Writer.Flush()

		s.log.Debug("sse client connected", "userId", userID)

		clientGone := c.Request.Context().Done()
		for {
			select {
			case <-clientGone:
				s.log.Debug("sse client disconnected", "userId", userID)
				return
			case event, ok := <-stream:
				if !ok {
					return
				}
				data, _ := json.Marshal(event)
				c.SSEvent(string(event.Type), string(data))
				c.Writer.Flush()
			}
		}
	}
}

// Close shuts down the SSE service
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, clients := range s.clients {
		for _, c := range clients {
			close(c.events)
		}
	}
	s.clients = make(map[uuid.UUID][]*client)
	s.roles = make(map[string]map[*client]struct{})
}
