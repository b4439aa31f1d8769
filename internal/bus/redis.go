package bus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// subscribeTimeout bounds the wait for the subscription confirmation.
const subscribeTimeout = 5 * time.Second

// Redis is a Source backed by a Redis pub/sub channel carrying JSON events.
type Redis struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewRedisClient creates a client for the given server.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewRedis creates a source reading events published on channel.
func NewRedis(client *redis.Client, channel string, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, channel: channel, logger: logger}
}

// Subscribe implements Source. It returns once the server has confirmed
// the subscription.
func (r *Redis) Subscribe(h Handler) (Subscription, error) {
	ctx, cancel := context.WithTimeout(context.Background(), subscribeTimeout)
	defer cancel()

	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to redis channel %q: %w", r.channel, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range pubsub.Channel() {
			ev, err := DecodeEvent([]byte(msg.Payload))
			if err != nil {
				r.logger.Warn("skipping invalid event",
					"channel", msg.Channel,
					"error", err,
				)
				continue
			}
			h(ev)
		}
	}()

	r.logger.Info("subscribed to redis channel", "channel", r.channel)

	return SubscriptionFunc(func() error {
		err := pubsub.Close()
		<-done
		if err != nil {
			return fmt.Errorf("close redis subscription: %w", err)
		}
		return nil
	}), nil
}
