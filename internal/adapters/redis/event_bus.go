package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/asktourist/marketplace/internal/domain/auth"
)

const eventBufferSize = 64

// EventBus fans auth events out to every web process over Redis pub/sub.
type EventBus struct {
	client  redis.UniversalClient
	channel string
	logger  *slog.Logger
}

// EventBusOptions configures an EventBus.
type EventBusOptions struct {
	Client redis.UniversalClient
	Prefix string
	Logger *slog.Logger
}

// NewEventBus creates a pub/sub event bus on the "<prefix>auth:events" channel.
func NewEventBus(opts EventBusOptions) *EventBus {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{
		client:  opts.Client,
		channel: opts.Prefix + "auth:events",
		logger:  logger.With("component", "auth_event_bus"),
	}
}

func (b *EventBus) Publish(ctx context.Context, evt domainauth.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal auth event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe blocks until the subscription is confirmed, then streams decoded events.
// Malformed payloads are logged and skipped.
func (b *EventBus) Subscribe(ctx context.Context) (<-chan domainauth.Event, func() error, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan domainauth.Event, eventBufferSize)
	done := make(chan struct{})
	msgs := pubsub.Channel()

	go func() {
		defer close(out)
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var evt domainauth.Event
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					b.logger.Warn("dropping malformed auth event", "error", err)
					continue
				}
				select {
				case out <- evt:
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	var closeErr error
	return out, func() error {
		once.Do(func() {
			close(done)
			closeErr = pubsub.Close()
		})
		return closeErr
	}, nil
}
