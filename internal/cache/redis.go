// Package cache provides best-effort webhook deduplication backed by Redis.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper records webhook event ids so redelivered events can be skipped
// early. Idempotency does not depend on it: the state machine and the
// storefront upsert keys are the real guarantee, this only saves work.
type Deduper interface {
	// FirstDelivery reports whether eventID has not been seen within the
	// dedup window. Errors are reported as first deliveries so a cache
	// outage never drops events.
	FirstDelivery(ctx context.Context, source, eventID string) (bool, error)
}

// RedisDeduper is the production Deduper.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisDeduper connects to Redis.
func NewRedisDeduper(cfg Config) *RedisDeduper {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDeduper{
		client: redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		ttl:    ttl,
	}
}

func (d *RedisDeduper) FirstDelivery(ctx context.Context, source, eventID string) (bool, error) {
	if eventID == "" {
		return true, nil
	}
	ok, err := d.client.SetNX(ctx, eventKey(source, eventID), "seen", d.ttl).Result()
	if err != nil {
		return true, err
	}
	return ok, nil
}

// Close releases the Redis client.
func (d *RedisDeduper) Close() error {
	return d.client.Close()
}

func eventKey(source, eventID string) string {
	return fmt.Sprintf("webhook:%s:%s", source, eventID)
}

// NoopDeduper treats every event as a first delivery. Used when no Redis
// address is configured.
type NoopDeduper struct{}

func (NoopDeduper) FirstDelivery(ctx context.Context, source, eventID string) (bool, error) {
	return true, nil
}

var (
	_ Deduper = (*RedisDeduper)(nil)
	_ Deduper = NoopDeduper{}
)
