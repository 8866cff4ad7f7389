package realtime

import (
	"context"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

var _ Bus = &RedisBus{}

// RedisBus is a Bus on Redis pub/sub.
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus returns a RedisBus using client.
func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

// Publish sends an empty message on channel.
func (b *RedisBus) Publish(ctx context.Context, channel string) error {
	return b.client.Publish(ctx, channel, "").Err()
}

// Listen subscribes to channel. It returns once Redis confirmed the
// subscription, so no announcement published afterwards is missed.
func (b *RedisBus) Listen(ctx context.Context, channel string) (<-chan struct{}, error) {
	sub := b.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer func() {
			if err := sub.Close(); err != nil {
				log.WithError(err).WithField("channel", channel).Debug("realtime: closing subscription")
			}
		}()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, nil
}
