package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cuongbtq/musicgen/internal/domain"
	"github.com/cuongbtq/musicgen/internal/suno"
)

// ErrCallbackNotFound is returned when no callback was cached for a task
var ErrCallbackNotFound = fmt.Errorf("callback %w", domain.ErrNotFound)

// DefaultCallbackTTL applies when the cache is built without a TTL
const DefaultCallbackTTL = 24 * time.Hour

// CallbackCache keeps the latest provider callback per task id with a TTL
type CallbackCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewCallbackCache creates a cache writing keys under "<prefix>:callback:<task_id>"
func NewCallbackCache(client redis.Cmdable, prefix string, ttl time.Duration) *CallbackCache {
	if prefix == "" {
		prefix = "musicgen"
	}
	if ttl <= 0 {
		ttl = DefaultCallbackTTL
	}
	return &CallbackCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *CallbackCache) key(taskID string) string {
	return fmt.Sprintf("%s:callback:%s", c.prefix, taskID)
}

// Save stores the raw callback body for taskID
func (c *CallbackCache) Save(ctx context.Context, taskID string, body []byte) error {
	if err := c.client.Set(ctx, c.key(taskID), body, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache callback: %w", err)
	}
	return nil
}

// Raw returns the cached callback body for taskID
func (c *CallbackCache) Raw(ctx context.Context, taskID string) ([]byte, error) {
	body, err := c.client.Get(ctx, c.key(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCallbackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read callback: %w", err)
	}
	return body, nil
}

// Get returns the decoded callback for taskID
func (c *CallbackCache) Get(ctx context.Context, taskID string) (*suno.Callback, error) {
	body, err := c.Raw(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return suno.ParseCallback(body)
}
