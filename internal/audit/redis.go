package audit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Joffythetrophy/Casino-savings/internal/service"
	"github.com/Joffythetrophy/Casino-savings/internal/treasury"
)

const DefaultChannel = "treasury:events"

// RedisPublisher broadcasts records on a pub/sub channel. Subscribers that
// are not connected miss the message.
type RedisPublisher struct {
	client  redis.Cmdable
	channel string
}

var _ service.RecordPublisher = (*RedisPublisher)(nil)

func NewRedisPublisher(client redis.Cmdable, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, rec treasury.TransactionRecord) error {
	payload, err := encode(rec)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", rec.ID, err)
	}
	return nil
}
