// Package broadcast fans "subscribers changed" signals out to every instance
// of the service through Redis pub/sub.
package broadcast

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis publishes local changes and relays remote ones.
type Redis struct {
	client   redis.UniversalClient
	channel  string
	instance string
	log      *slog.Logger
}

// Dial connects to the Redis server described by a redis:// URL.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewRedis creates a broadcaster on channel. Each broadcaster gets its own
// instance ID so it can ignore its own messages.
func NewRedis(client redis.UniversalClient, channel string, log *slog.Logger) *Redis {
	return &Redis{
		client:   client,
		channel:  channel,
		instance: uuid.NewString(),
		log:      log,
	}
}

// SubscribersChanged publishes a change signal. Failures are logged only:
// the record is already stored and other instances still poll.
func (r *Redis) SubscribersChanged(ctx context.Context) {
	if err := r.client.Publish(ctx, r.channel, r.instance).Err(); err != nil {
		r.log.Error("publish subscriber change", "channel", r.channel, "error", err)
	}
}

// Listen calls onChange for every change published by another instance,
// blocking until ctx is cancelled.
func (r *Redis) Listen(ctx context.Context, onChange func()) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer func() { _ = pubsub.Close() }()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.log.Info("listening for subscriber changes", "channel", r.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(msg, onChange)
		}
	}
}

func (r *Redis) handle(msg *redis.Message, onChange func()) {
	if msg.Payload == r.instance {
		return
	}
	r.log.Debug("remote subscriber change", "from", msg.Payload)
	onChange()
}
