// Package retention prunes old chat transcripts.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/persona-relay/internal/shared"
)

// DefaultInterval is how often the worker sweeps.
const DefaultInterval = 5 * time.Minute

const (
	cleanupAttempts  = 3
	cleanupBaseDelay = 100 * time.Millisecond
)

// Pruner deletes transcript entries older than ttl and reports how many
// were removed.
type Pruner interface {
	CleanupTranscripts(ctx context.Context, ttl time.Duration) (int64, error)
}

// Sweep runs one cleanup pass, retrying on SQLite lock contention.
func Sweep(ctx context.Context, p Pruner, ttl time.Duration) (int64, error) {
	var deleted int64
	err := shared.RetryOnConflict(ctx, "cleanup transcripts", cleanupAttempts, cleanupBaseDelay, func(ctx context.Context) error {
		n, err := p.CleanupTranscripts(ctx, ttl)
		deleted = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("sweep transcripts: %w", err)
	}
	return deleted, nil
}

// Start runs Sweep every interval until ctx is cancelled. The returned
// channel is closed when the worker has stopped.
func Start(ctx context.Context, p Pruner, ttl, interval time.Duration) <-chan struct{} {
	if interval <= 0 {
		interval = DefaultInterval
	}
	done := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		slog.Info("Retention worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				deleted, err := Sweep(ctx, p, ttl)
				if err != nil {
					if ctx.Err() != nil {
						slog.Debug("Retention sweep interrupted by shutdown", "error", err)
						continue
					}
					slog.Error("Retention sweep failed", "error", err)
					continue
				}
				if deleted > 0 {
					slog.Info("Retention worker pruned transcripts", "count", deleted)
				}
			case <-ctx.Done():
				slog.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
	return done
}
