package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/DataShades/fpx/internal/storage"
)

// StartSweeper runs the stale ticket sweep in the background and returns the
// function that stops it. On postgres the sweep is a River periodic job; any
// other store gets an in-process ticker.
func StartSweeper(ctx context.Context, store storage.Store, ttl, interval time.Duration) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if ttl <= 0 {
		return noop, nil
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	cleanup := NewCleanupWorker(store, ttl)

	if gs, ok := store.(*storage.GormStore); ok && gs.Pool() != nil {
		client, err := NewRiverClient(gs.Pool(), cleanup, interval)
		if err != nil {
			return noop, err
		}
		if err := client.Start(ctx); err != nil {
			return noop, err
		}
		slog.Info("Started River ticket sweeper", "ttl", ttl, "interval", interval)
		return client.Stop, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if _, err := cleanup.RunCleanup(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Ticket sweep failed", "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	slog.Info("Started ticket sweeper", "ttl", ttl, "interval", interval)

	return func(context.Context) error {
		cancel()
		<-done
		return nil
	}, nil
}
