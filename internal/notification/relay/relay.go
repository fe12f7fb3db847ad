// Package relay bridges SSE pushes across API instances through Redis
// pub/sub. Every instance publishes to one channel and forwards what it
// receives to its local connection registry.
package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"repairdesk_backend/internal/notification/sse"
	"repairdesk_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type envelope struct {
	UserID *uuid.UUID `json:"userId,omitempty"`
	Role   string     `json:"role,omitempty"`
	Event  sse.Event  `json:"event"`
}

// Relay implements sse.Pusher on top of Redis.
type Relay struct {
	client  *redis.Client
	channel string
	local   *sse.Service
	log     *logger.Logger
}

var _ sse.Pusher = (*Relay)(nil)

func New(client *redis.Client, channel string, local *sse.Service, log *logger.Logger) *Relay {
	return &Relay{client: client, channel: channel, local: local, log: log}
}

// NewClient opens a Redis client from a redis:// or rediss:// URL.
func NewClient(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opt), nil
}

func (r *Relay) PushToUser(ctx context.Context, userID uuid.UUID, event sse.Event) error {
	return r.publish(ctx, envelope{UserID: &userID, Event: event})
}

func (r *Relay) PushToRole(ctx context.Context, role string, event sse.Event) error {
	return r.publish(ctx, envelope{Role: role, Event: event})
}

func (r *Relay) publish(ctx context.Context, env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal relay envelope: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("relay publish: %w", err)
	}
	return nil
}

// Run forwards relayed events to the local registry until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	sub, err := r.subscribe(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Close() }()

	r.consume(ctx, sub.Channel())
	return nil
}

func (r *Relay) subscribe(ctx context.Context) (*redis.PubSub, error) {
	sub := r.client.Subscribe(ctx, r.channel)
	// Receive blocks until the subscription is confirmed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("relay subscribe: %w", err)
	}
	r.log.Info("sse relay subscribed", "channel", r.channel)
	return sub, nil
}

func (r *Relay) consume(ctx context.Context, messages <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			r.forward(msg.Payload)
		}
	}
}

func (r *Relay) forward(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.log.Warn("dropping malformed relay message", "error", err)
		return
	}
	switch {
	case env.UserID != nil:
		r.local.PublishToUser(*env.UserID, env.Event)
	case env.Role != "":
		r.local.PublishToRole(env.Role, env.Event)
	default:
		r.log.Warn("relay message has no recipient", "type", env.Event.Type)
	}
}
