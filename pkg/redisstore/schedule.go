package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Due-dispatch schedule: a sorted set of target ids scored by next-run time.
const scheduleKey string = "target:schedule"

func (c *Client) Schedule(ctx context.Context, targetID string, nextRun time.Time) error {
	return retry(ctx, 3, func() error {
		return c.rdb.ZAdd(ctx, scheduleKey, redis.Z{
			Score:  float64(nextRun.UnixMilli()),
			Member: targetID,
		}).Err()
	})
}

func (c *Client) ScheduleBatch(ctx context.Context, items []redis.Z) error {
	if len(items) == 0 {
		return nil
	}

	return retry(ctx, 3, func() error {
		return c.rdb.ZAdd(ctx, scheduleKey, items...).Err()
	})
}

func (c *Client) PopDue(ctx context.Context, batchCount int) ([]redis.Z, error) {
	var res []redis.Z

	err := retry(ctx, 3, func() error {
		var err error
		res, err = c.rdb.ZPopMin(ctx, scheduleKey, int64(batchCount)).Result()
		return err
	})

	return res, err
}

func (c *Client) DelSchedule(ctx context.Context, targetID string) error {
	return c.rdb.ZRem(ctx, scheduleKey, targetID).Err()
}
