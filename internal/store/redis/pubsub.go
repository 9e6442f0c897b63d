package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gosuda/clinaudit/internal/domain"
)

// PublishAPI is the subset of *redis.Client used to publish.
type PublishAPI interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type PubSub struct {
	client    *redis.Client
	publisher PublishAPI
}

func New(ctx context.Context, addr, password string, db int) (*PubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.New: ping: %w", err)
	}

	return &PubSub{client: client, publisher: client}, nil
}

func (ps *PubSub) Close() error {
	if err := ps.client.Close(); err != nil {
		return fmt.Errorf("redis.PubSub.Close: %w", err)
	}
	return nil
}

func (ps *PubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := ps.publisher.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis.PubSub.Publish: %w", err)
	}
	return nil
}

func (ps *PubSub) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	sub := ps.client.Subscribe(ctx, channel)

	// Wait for subscription confirmation.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("redis.PubSub.Subscribe: receive confirmation: %w", err)
	}

	out := make(chan []byte, 64)
	redisCh := sub.Channel()

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-redisCh:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	cleanup := func() {
		_ = sub.Close()
	}

	return out, cleanup, nil
}

// PublishEvent announces a stored audit event on its tenant's channel.
func (ps *PubSub) PublishEvent(ctx context.Context, e *domain.AuditEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("redis.PubSub.PublishEvent: marshal: %w", err)
	}
	return ps.Publish(ctx, EventChannel(e.TenantID), payload)
}

// AuditChannel returns the Redis channel name for a tenant's live audit stream.
func AuditChannel(tenantID uuid.UUID) string {
	return "audit:" + tenantID.String()
}

// EventChannel returns the channel an event is published on. Events without
// a tenant go to the system channel.
func EventChannel(tenantID *uuid.UUID) string {
	if tenantID == nil {
		return SystemChannel
	}
	return AuditChannel(*tenantID)
}

const (
	// SystemChannel carries system-wide audit events.
	SystemChannel = "audit:system"
	// AlertChannel carries operational alerts raised by the recorder.
	AlertChannel = "audit:alerts"
)
