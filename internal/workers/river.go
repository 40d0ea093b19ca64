package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
)

// SweepTicketsArgs is the payload of the periodic stale ticket sweep
type SweepTicketsArgs struct{}

// Kind returns the job kind for River
func (SweepTicketsArgs) Kind() string { return "sweep_tickets" }

// SweepWorker runs CleanupWorker inside River
type SweepWorker struct {
	river.WorkerDefaults[SweepTicketsArgs]
	cleanup *CleanupWorker
}

func NewSweepWorker(cleanup *CleanupWorker) *SweepWorker {
	return &SweepWorker{cleanup: cleanup}
}

// Work processes a sweep job
func (w *SweepWorker) Work(ctx context.Context, job *river.Job[SweepTicketsArgs]) error {
	logger := slog.With("worker", "river", "job_id", job.ID, "attempt", job.Attempt)

	removed, err := w.cleanup.RunCleanup(ctx)
	if err != nil {
		logger.Error("Sweep failed", "error", err)
		return err
	}
	logger.Debug("Sweep completed", "removed", removed)
	return nil
}

// Timeout keeps a stuck sweep from holding the only worker slot.
func (w *SweepWorker) Timeout(*river.Job[SweepTicketsArgs]) time.Duration {
	return time.Minute
}

// NewRiverClient schedules the sweep every interval on the shared pool.
func NewRiverClient(pool *pgxpool.Pool, cleanup *CleanupWorker, interval time.Duration) (*river.Client[pgx.Tx], error) {
	workers := river.NewWorkers()
	if err := river.AddWorkerSafely(workers, NewSweepWorker(cleanup)); err != nil {
		return nil, err
	}

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 1},
		},
		Workers: workers,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(interval),
				func() (river.JobArgs, *river.InsertOpts) {
					return SweepTicketsArgs{}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}
	return client, nil
}

// MigrateRiver creates or upgrades River's tables.
func MigrateRiver(ctx context.Context, pool *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("failed to create River migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("failed to migrate River tables: %w", err)
	}
	for _, v := range res.Versions {
		slog.Info("Applied River migration", "version", v.Version)
	}
	return nil
}
