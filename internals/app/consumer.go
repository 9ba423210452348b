package app

import (
	"context"

	"pulsewatch/internals/modules/ingest"
)

// StartConsumer begins draining the results queue. Runs in its own goroutine
// because Consume ranges on the delivery channel until shutdown.
func StartConsumer(ctx context.Context, c *Container) {
	resultHandler := ingest.NewResultHandler(c.dispatchRepo, c.Logger)

	go func() {
		if err := c.Consumer.Consume(ctx, resultHandler); err != nil {
			c.Logger.Error().
				Err(err).
				Msg("rabbitmq consumer stopped")
		}
	}()
}
