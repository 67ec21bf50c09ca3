package publish

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// redisClient is the subset of *redis.Client the sink uses.
type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisSink PUBLISHes each event on one channel.
type RedisSink struct {
	client  redisClient
	channel string
}

// NewRedisSink connects to addr and verifies the connection with PING.
func NewRedisSink(ctx context.Context, addr, channel string) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     4,
		MinIdleConns: 1,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisSink{client: client, channel: channel}, nil
}

func (r *RedisSink) Name() string { return "redis" }

func (r *RedisSink) Publish(ctx context.Context, payload []byte) error {
	return r.client.Publish(ctx, r.channel, payload).Err()
}

func (r *RedisSink) Close() error { return r.client.Close() }
