package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisChannel is the pub/sub channel events are mirrored to.
const DefaultRedisChannel = "codechat:events"

// Publisher delivers events to an out-of-process consumer.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// RedisPublisher mirrors events onto a Redis pub/sub channel as JSON.
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
}

func NewRedisPublisher(client redis.UniversalClient, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

// DialRedis connects to addr and verifies the connection with a PING.
func DialRedis(ctx context.Context, addr, channel string) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return NewRedisPublisher(client, channel), nil
}

func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.channel, err)
	}
	return nil
}

func (p *RedisPublisher) Channel() string {
	return p.channel
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// Relay forwards events from ch to pub until ctx is done or ch is closed.
// Delivery failures are logged and never stop the relay.
func Relay(ctx context.Context, ch <-chan Event, pub Publisher) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := pub.Publish(ctx, e); err != nil {
				slog.Warn("Failed to relay event", "type", e.Type, "error", err)
			}
		}
	}
}
