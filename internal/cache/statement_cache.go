package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StatementCache caches rendered card statements (card + open invoice +
// available limit). Statements are snapshot reads per the concurrency model,
// so a short TTL plus writer-side invalidation is enough; a stale hit is no
// worse than a read that raced the write.
type StatementCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStatementCache creates a StatementCache. A nil client disables caching
// (every Get is a miss, Set/Invalidate are no-ops), which tests rely on.
func NewStatementCache(rdb *redis.Client, ttl time.Duration) *StatementCache {
	return &StatementCache{rdb: rdb, ttl: ttl}
}

func statementKey(cardID string) string {
	return fmt.Sprintf("statement:%s", cardID)
}

// Get unmarshals a cached statement into dest, reporting whether it was found.
func (c *StatementCache) Get(ctx context.Context, cardID string, dest interface{}) (bool, error) {
	if c.rdb == nil {
		return false, nil
	}
	data, err := c.rdb.Get(ctx, statementKey(cardID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read statement cache for card %s: %w", cardID, err)
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, fmt.Errorf("failed to decode cached statement for card %s: %w", cardID, err)
	}
	return true, nil
}

// Set stores a statement under the card's key.
func (c *StatementCache) Set(ctx context.Context, cardID string, v interface{}) error {
	if c.rdb == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode statement for card %s: %w", cardID, err)
	}
	return c.rdb.Set(ctx, statementKey(cardID), data, c.ttl).Err()
}

// Invalidate drops the cached statement for a card. Called by every writer
// that changes the card's limit picture.
func (c *StatementCache) Invalidate(ctx context.Context, cardID string) error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, statementKey(cardID)).Err()
}
