package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DataShades/fpx/internal/storage"
)

// CleanupWorker deletes tickets nobody downloaded within the TTL.
type CleanupWorker struct {
	tickets storage.TicketStore
	ttl     time.Duration
	now     func() time.Time
}

func NewCleanupWorker(tickets storage.TicketStore, ttl time.Duration) *CleanupWorker {
	return &CleanupWorker{tickets: tickets, ttl: ttl, now: time.Now}
}

// RunCleanup removes tickets older than the TTL. Callers log the error.
func (w *CleanupWorker) RunCleanup(ctx context.Context) (int64, error) {
	if w.ttl <= 0 {
		return 0, nil
	}
	cutoff := w.now().Add(-w.ttl)
	slog.Debug("Starting stale ticket cleanup", "cutoff", cutoff)

	removed, err := w.tickets.DeleteTicketsBefore(ctx, cutoff)
	if err != nil {
		return removed, fmt.Errorf("delete stale tickets: %w", err)
	}
	if removed > 0 {
		slog.Info("Cleaned up stale tickets", "count", removed, "ttl", w.ttl)
	}
	return removed, nil
}
