package participants

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	notificationKeyPrefix = "saga:notifications:"
	notificationCountTTL  = 24 * time.Hour
)

// NotificationCounter tracks how many notification requests have been
// processed per saga. Failed sends count too: notifications are
// non-critical and must never wedge a saga.
type NotificationCounter interface {
	Increment(ctx context.Context, sagaID string) (int, error)
	Reset(ctx context.Context, sagaID string) error
}

type MemoryCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: make(map[string]int)}
}

func (c *MemoryCounter) Increment(ctx context.Context, sagaID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[sagaID]++
	return c.counts[sagaID], nil
}

func (c *MemoryCounter) Reset(ctx context.Context, sagaID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, sagaID)
	return nil
}

type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(opts *redis.Options) *RedisCounter {
	return &RedisCounter{client: redis.NewClient(opts)}
}

func NewRedisCounterWithClient(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) Close() error {
	return c.client.Close()
}

func (c *RedisCounter) Increment(ctx context.Context, sagaID string) (int, error) {
	key := notificationKeyPrefix + sagaID
	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	if count == 1 {
		// Abandoned counters expire rather than leak.
		if err := c.client.Expire(ctx, key, notificationCountTTL).Err(); err != nil {
			return 0, fmt.Errorf("expire %s: %w", key, err)
		}
	}
	return int(count), nil
}

func (c *RedisCounter) Reset(ctx context.Context, sagaID string) error {
	if err := c.client.Del(ctx, notificationKeyPrefix+sagaID).Err(); err != nil {
		return fmt.Errorf("del %s: %w", notificationKeyPrefix+sagaID, err)
	}
	return nil
}
