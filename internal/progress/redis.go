package progress

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBus carries progress over Redis pub/sub so that the replica serving a
// log stream does not have to be the one running the job.
type RedisBus struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisBus connects to the Redis instance at url (redis://...).
func NewRedisBus(ctx context.Context, url, prefix string, logger *zap.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisBusFromClient(client, prefix, logger), nil
}

func NewRedisBusFromClient(client *redis.Client, prefix string, logger *zap.Logger) *RedisBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBus{
		client: client,
		prefix: prefix,
		logger: logger.With(zap.String("component", "progress_redis")),
	}
}

func (b *RedisBus) channel(correlationID string) string {
	return b.prefix + "progress:" + correlationID
}

func (b *RedisBus) Publish(ctx context.Context, correlationID string, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode progress message: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(correlationID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish progress message: %w", err)
	}
	return nil
}

// Subscribe returns once the Redis subscription is confirmed, so nothing
// published afterwards is missed.
func (b *RedisBus) Subscribe(ctx context.Context, correlationID string) (*Subscription, error) {
	ps := b.client.Subscribe(ctx, b.channel(correlationID))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe to progress channel: %w", err)
	}

	out := make(chan Message)
	stop := make(chan struct{})

	go func() {
		defer close(out)
		defer ps.Close()

		in := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case raw, ok := <-in:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
					b.logger.Warn("dropping malformed progress message",
						zap.String("correlation_id", correlationID),
						zap.Error(err),
					)
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				case <-stop:
					return
				}
				if msg.IsDone() {
					return
				}
			}
		}
	}()

	return newSubscription(out, func() { close(stop) }), nil
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}
