package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventLedger remembers gateway webhook event ids so redelivered events can be
// acknowledged without re-running their handler.
type EventLedger interface {
	// FirstSeen records id and reports whether this is its first delivery.
	FirstSeen(ctx context.Context, gateway, id string) (bool, error)
	// Forget drops id so a redelivery is processed again after a failed attempt.
	Forget(ctx context.Context, gateway, id string) error
}

type redisCmdable interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisEventLedger stores event ids with SETNX and a TTL.
type RedisEventLedger struct {
	client redisCmdable
	ttl    time.Duration
}

func NewRedisEventLedger(client redisCmdable, ttl time.Duration) *RedisEventLedger {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &RedisEventLedger{client: client, ttl: ttl}
}

// NewRedisClient parses redisURL and pings the server.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (l *RedisEventLedger) FirstSeen(ctx context.Context, gateway, id string) (bool, error) {
	if id == "" {
		return true, nil
	}
	ok, err := l.client.SetNX(ctx, ledgerKey(gateway, id), time.Now().Unix(), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("event ledger: %w", err)
	}
	return ok, nil
}

func (l *RedisEventLedger) Forget(ctx context.Context, gateway, id string) error {
	if id == "" {
		return nil
	}
	return l.client.Del(ctx, ledgerKey(gateway, id)).Err()
}

func ledgerKey(gateway, id string) string {
	return "webhook:" + gateway + ":" + id
}

// NoopLedger treats every event as new.
type NoopLedger struct{}

func (NoopLedger) FirstSeen(context.Context, string, string) (bool, error) { return true, nil }
func (NoopLedger) Forget(context.Context, string, string) error            { return nil }
