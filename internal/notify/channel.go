package notify

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher publishes raw payloads to a named channel.
// *redis.PubSub satisfies this interface.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// ChannelSink publishes alerts as JSON on a pub/sub channel so on-call
// tooling can subscribe to them.
type ChannelSink struct {
	publisher Publisher
	channel   string
}

var _ Sink = (*ChannelSink)(nil) //nolint:gochecknoglobals // compile-time check

// NewChannelSink creates a ChannelSink publishing to channel.
func NewChannelSink(publisher Publisher, channel string) *ChannelSink {
	return &ChannelSink{publisher: publisher, channel: channel}
}

func (s *ChannelSink) Send(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("notify.ChannelSink.Send: marshal: %w", err)
	}
	if err := s.publisher.Publish(ctx, s.channel, payload); err != nil {
		return fmt.Errorf("notify.ChannelSink.Send: %w", err)
	}
	return nil
}
