// Package cache keeps the per-user unread count in redis so the badge
// endpoint does not hit SQLite on every poll.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	unreadPrefix = "unread:"
	unreadTTL    = 5 * time.Minute
)

// UnreadCache is a read-through cache for unread counts. A miss is
// reported via ok=false; mutations invalidate.
type UnreadCache struct {
	rdb *redis.Client
}

// NewUnread builds the cache over the given redis client.
func NewUnread(rdb *redis.Client) *UnreadCache {
	return &UnreadCache{rdb: rdb}
}

// Get returns the cached count and whether it was present.
func (c *UnreadCache) Get(ctx context.Context, userID string) (int, bool) {
	n, err := c.rdb.Get(ctx, unreadPrefix+userID).Int()
	if err != nil {
		return 0, false
	}
	return n, true
}

// Set stores the count with a short TTL.
func (c *UnreadCache) Set(ctx context.Context, userID string, n int) {
	_ = c.rdb.Set(ctx, unreadPrefix+userID, n, unreadTTL).Err()
}

// Invalidate drops the cached count after a lifecycle mutation.
func (c *UnreadCache) Invalidate(ctx context.Context, userID string) {
	_ = c.rdb.Del(ctx, unreadPrefix+userID).Err()
}
