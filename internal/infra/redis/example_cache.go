package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const exampleCacheKey = "librarian:examples:%s:%s" // rule_id:digest

// ExampleCache caches librarian-ranked example sets per rule and
// context digest, bounding repeat ranking calls during a scan.
type ExampleCache struct {
	client *Client
	ttl    time.Duration
}

// NewExampleCache creates an example cache with the given TTL.
func NewExampleCache(client *Client, ttl time.Duration) *ExampleCache {
	return &ExampleCache{client: client, ttl: ttl}
}

// Get retrieves a cached example set. Returns (nil, false) on miss or
// any cache error; the cache is advisory.
func (c *ExampleCache) Get(ctx context.Context, ruleID, digest string, out any) bool {
	val, err := c.client.Get(ctx, fmt.Sprintf(exampleCacheKey, ruleID, digest))
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			c.client.logger.Warn("example cache read failed", "error", err)
		}
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		c.client.logger.Warn("example cache entry corrupt", "error", err)
		return false
	}
	return true
}

// Put stores an example set. Failures are logged and swallowed.
func (c *ExampleCache) Put(ctx context.Context, ruleID, digest string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.client.logger.Warn("example cache marshal failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, fmt.Sprintf(exampleCacheKey, ruleID, digest), string(data), c.ttl); err != nil {
		c.client.logger.Warn("example cache write failed", "error", err)
	}
}
