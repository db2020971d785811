package store

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is how often expired sessions are purged.
const DefaultSweepInterval = 5 * time.Minute

// SweepCallback is called after a sweep that deleted sessions.
type SweepCallback func(deleted int64)

// StartTTLWorker runs a background goroutine that periodically deletes
// expired sessions until ctx is cancelled.
func StartTTLWorker(ctx context.Context, repo Repository, interval time.Duration, onSweep SweepCallback) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", interval)

		for {
			select {
			case <-ticker.C:
				sweepExpiredSessions(ctx, repo, time.Now(), onSweep)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweepExpiredSessions(ctx context.Context, repo Repository, now time.Time, onSweep SweepCallback) int64 {
	deleted, err := repo.DeleteExpiredSessions(ctx, now)
	if err != nil {
		if ctx.Err() != nil {
			slog.Debug("TTL worker: context canceled during sweep", "error", err)
			return 0
		}
		slog.Error("TTL worker failed to delete expired sessions", "error", err)
		return 0
	}
	if deleted > 0 {
		slog.Info("TTL worker cleaned up expired sessions", "count", deleted)
		if onSweep != nil {
			onSweep(deleted)
		}
	}
	return deleted
}
