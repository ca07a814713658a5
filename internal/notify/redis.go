package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes every message on <prefix>:events and, when the
// message carries a scope, on <prefix>:scope:<scope> as well.
type RedisPublisher struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisPublisher(rdb *redis.Client, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = "wagerboard"
	}
	return &RedisPublisher{rdb: rdb, prefix: prefix}
}

// ConnectRedis dials addr and pings it once.
func ConnectRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

func (p *RedisPublisher) GlobalChannel() string {
	return p.prefix + ":events"
}

func (p *RedisPublisher) ScopeChannel(scope string) string {
	return p.prefix + ":scope:" + scope
}

func (p *RedisPublisher) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := p.rdb.Publish(ctx, p.GlobalChannel(), payload).Err(); err != nil {
		return err
	}
	if msg.ScopeID == "" {
		return nil
	}
	return p.rdb.Publish(ctx, p.ScopeChannel(msg.ScopeID), payload).Err()
}

func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
