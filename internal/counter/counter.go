// Package counter keeps the per-user daily email counters in redis as
// an explicit entity with an explicit reset, instead of ambient global
// state. The dispatcher bumps it; the daily cron resets it.
package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "emails:"

// Counter tracks how many reminder emails each user was queued today.
type Counter struct {
	rdb *redis.Client
	ttl time.Duration
}

// New builds a counter over the given redis client. Keys expire after
// two days as a backstop; ResetAll is the authoritative cleanup.
func New(rdb *redis.Client) *Counter {
	return &Counter{rdb: rdb, ttl: 48 * time.Hour}
}

func key(userID string, now time.Time) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, userID, now.UTC().Format("2006-01-02"))
}

// IncrEmail bumps the user's counter for today and returns the new
// value.
func (c *Counter) IncrEmail(ctx context.Context, userID string, now time.Time) (int64, error) {
	k := key(userID, now)
	n, err := c.rdb.Incr(ctx, k).Result()
	if err != nil {
		return 0, err
	}
	// Best effort; an unexpired key is still scoped to its date.
	_ = c.rdb.Expire(ctx, k, c.ttl).Err()
	return n, nil
}

// EmailsToday returns the user's counter for today; missing keys read
// as zero.
func (c *Counter) EmailsToday(ctx context.Context, userID string, now time.Time) (int64, error) {
	n, err := c.rdb.Get(ctx, key(userID, now)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

// ResetAll deletes every email counter. Invoked by the daily cron.
func (c *Counter) ResetAll(ctx context.Context) (int64, error) {
	var (
		cursor  uint64
		removed int64
	)
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return removed, err
		}
		if len(keys) > 0 {
			n, err := c.rdb.Del(ctx, keys...).Result()
			removed += n
			if err != nil {
				return removed, err
			}
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}
