package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Cooldown fast path: a per-(target, direction) key with the cooldown window
// as its TTL. SetNX semantics make the first notifier to claim the window win;
// the authoritative dedup record is the notification_events table.

func cooldownKey(targetID uuid.UUID, direction string) string {
	return fmt.Sprintf("notify:cooldown:%v:%v", targetID, direction)
}

func (c *Client) ClaimCooldown(ctx context.Context, targetID uuid.UUID, direction string, window time.Duration) (bool, error) {
	var claimed bool

	err := retry(ctx, 2, func() error {
		var err error
		claimed, err = c.rdb.SetNX(ctx, cooldownKey(targetID, direction), time.Now().Unix(), window).Result()
		return err
	})

	return claimed, err
}

// ClearCooldown drops the claim for one direction, letting the next
// transition in that direction notify immediately.
func (c *Client) ClearCooldown(ctx context.Context, targetID uuid.UUID, direction string) error {
	return c.rdb.Del(ctx, cooldownKey(targetID, direction)).Err()
}
