package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Channel verification codes, hashed at rest, expired by redis TTL.

func verifyCodeKey(channelID uuid.UUID) string {
	return fmt.Sprintf("channel:verify:%v", channelID)
}

func (c *Client) SetVerificationCode(ctx context.Context, channelID uuid.UUID, codeHash string, ttl time.Duration) error {
	return retry(ctx, 2, func() error {
		return c.rdb.Set(ctx, verifyCodeKey(channelID), codeHash, ttl).Err()
	})
}

// GetVerificationCode returns the stored hash, or "" when the code has
// expired or was never issued.
func (c *Client) GetVerificationCode(ctx context.Context, channelID uuid.UUID) (string, error) {
	res, err := c.rdb.Get(ctx, verifyCodeKey(channelID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return res, err
}

func (c *Client) DelVerificationCode(ctx context.Context, channelID uuid.UUID) error {
	return c.rdb.Del(ctx, verifyCodeKey(channelID)).Err()
}
