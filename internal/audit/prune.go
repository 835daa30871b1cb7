package audit

import (
	"context"
	"time"
)

// PruneInterval is how often RunRetention deletes expired entries.
const PruneInterval = time.Hour

// Logger is the subset of logging.Logger used here.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// RunRetention prunes entries older than retention once at start and then
// every interval until ctx ends. It always returns nil so it can run in an
// errgroup without taking the process down.
func RunRetention(ctx context.Context, repo Repository, retention, interval time.Duration, logger Logger) error {
	if retention <= 0 {
		return nil
	}
	if interval <= 0 {
		interval = PruneInterval
	}

	prune := func() {
		n, err := repo.Prune(ctx, time.Now().Add(-retention))
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Warn("request log prune failed", "error", err)
		case n > 0:
			logger.Info("request log pruned", "deleted", n)
		}
	}

	prune()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			prune()
		}
	}
}
