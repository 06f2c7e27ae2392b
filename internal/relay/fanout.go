package relay

import (
	"context"
	"fmt"

	"matchmate-chat/internal/events"

	"go.uber.org/zap"
)

// Fanout publishes relay events to their channels. The publisher is the
// local hub, or Redis when instances share rooms through a Bridge.
type Fanout struct {
	resolver  events.ChannelResolver
	publisher events.Publisher
	metrics   *Metrics
}

func NewFanout(resolver events.ChannelResolver, publisher events.Publisher, metrics *Metrics) *Fanout {
	return &Fanout{resolver: resolver, publisher: publisher, metrics: metrics}
}

// Room publishes a chat-scoped event to its room.
func (f *Fanout) Room(ctx context.Context, ev events.Event) error {
	data, err := events.Encode(ev)
	if err != nil {
		return err
	}
	for _, channel := range f.resolver.ResolveChannels(ev) {
		if err := f.publisher.Publish(ctx, channel, data); err != nil {
			return fmt.Errorf("publish %s to %s: %w", ev.Type, channel, err)
		}
	}
	f.metrics.eventsRelayed.WithLabelValues(ev.Type).Inc()
	return nil
}

// User publishes ev to every socket of userID.
func (f *Fanout) User(ctx context.Context, userID string, ev events.Event) error {
	data, err := events.Encode(ev)
	if err != nil {
		return err
	}
	if err := f.publisher.Publish(ctx, events.ChannelPrefixUser+userID, data); err != nil {
		return fmt.Errorf("publish %s to user %s: %w", ev.Type, userID, err)
	}
	f.metrics.eventsRelayed.WithLabelValues(ev.Type).Inc()
	return nil
}

// Bridge feeds frames published by any relay instance into the local hub.
type Bridge struct {
	subscriber events.Subscriber
	hub        *Hub
	log        *zap.Logger
}

func NewBridge(subscriber events.Subscriber, hub *Hub, log *zap.Logger) *Bridge {
	return &Bridge{subscriber: subscriber, hub: hub, log: log}
}

// Run blocks until ctx is done or the subscription fails.
func (b *Bridge) Run(ctx context.Context) error {
	patterns := []string{events.ChannelPrefixChat + "*", events.ChannelPrefixUser + "*"}
	b.log.Info("bridge subscribed", zap.Strings("patterns", patterns))
	return b.subscriber.Subscribe(ctx, patterns, func(channel string, payload []byte) {
		if err := b.hub.Publish(ctx, channel, payload); err != nil {
			b.log.Warn("bridge delivery failed", zap.String("channel", channel), zap.Error(err))
		}
	})
}
