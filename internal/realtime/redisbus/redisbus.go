// Package redisbus fans realtime events out across server instances over a
// single Redis pub/sub topic.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/vedran77/rentals/internal/realtime"
)

const DefaultTopic = "rentals:realtime"

// Bus publishes to Redis and re-dispatches everything received on the topic
// to local subscribers, including this instance's own events.
type Bus struct {
	Logger *slog.Logger

	cli   *redis.Client
	topic string
	local *realtime.LocalBus
}

// Connect parses url, pings the server and returns a Bus on topic.
func Connect(ctx context.Context, url, topic string) (*Bus, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	cli := redis.NewClient(opt)
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(cli, topic), nil
}

func New(cli *redis.Client, topic string) *Bus {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Bus{
		Logger: slog.Default(),
		cli:    cli,
		topic:  topic,
		local:  realtime.NewLocalBus(),
	}
}

func (b *Bus) Publish(ctx context.Context, evt realtime.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.cli.Publish(ctx, b.topic, data).Err(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (b *Bus) Subscribe(channels []string, h realtime.Handler) func() {
	return b.local.Subscribe(channels, h)
}

// Run relays messages from Redis to local subscribers until ctx is done.
func (b *Bus) Run(ctx context.Context) error {
	sub := b.cli.Subscribe(ctx, b.topic)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.topic, err)
	}
	b.Logger.Info("Listening for realtime events", "topic", b.topic)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var evt realtime.Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				b.Logger.Error("Could not decode realtime event", "error", err.Error())
				continue
			}
			_ = b.local.Publish(ctx, evt)
		}
	}
}

func (b *Bus) Close() error {
	return b.cli.Close()
}
