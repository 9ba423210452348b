package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Canonical-status cache backing the public status page, keyed by the
// target's public view token.

const statusCacheTTL = 24 * time.Hour

func statusCacheKey(publicToken string) string {
	return fmt.Sprintf("status:%v", publicToken)
}

func (c *Client) SetCanonicalStatus(ctx context.Context, publicToken, status string, lastChangedAt time.Time) error {
	key := statusCacheKey(publicToken)

	return retry(ctx, 2, func() error {
		if err := c.rdb.HSet(ctx, key, map[string]any{
			"status":          status,
			"last_changed_at": lastChangedAt.Unix(),
		}).Err(); err != nil {
			return err
		}
		return c.rdb.Expire(ctx, key, statusCacheTTL).Err()
	})
}

func (c *Client) GetCanonicalStatus(ctx context.Context, publicToken string) (map[string]string, error) {
	res, err := c.rdb.HGetAll(ctx, statusCacheKey(publicToken)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return res, err
}

func (c *Client) DelCanonicalStatus(ctx context.Context, publicToken string) error {
	return c.rdb.Del(ctx, statusCacheKey(publicToken)).Err()
}
