package app

import (
	"context"
	"log/slog"
	"time"
)

type Cleaner interface {
	DeleteUnreferenced(ctx context.Context) (int64, error)
}

// RunCleanup calls DeleteUnreferenced every interval until ctx ends. A
// failed pass is logged and retried on the next tick.
func RunCleanup(ctx context.Context, c Cleaner, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	logger.Info("periodic cleanup enabled", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := c.DeleteUnreferenced(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Error("cleanup pass failed", "err", err)
				continue
			}
			logger.Debug("cleanup pass done", "deleted", n)
		}
	}
}
