package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/dnscache"
	"github.com/spf13/cobra"

	"github.com/DataShades/fpx/internal/config"
	"github.com/DataShades/fpx/internal/handlers"
	"github.com/DataShades/fpx/internal/monitoring"
	"github.com/DataShades/fpx/internal/queue"
	"github.com/DataShades/fpx/internal/storage"
	"github.com/DataShades/fpx/internal/transport"
	"github.com/DataShades/fpx/internal/utils"
	"github.com/DataShades/fpx/internal/workers"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "fpx",
		Short:        "File proxy: bundles remote files into streamed downloads",
		SilenceUsage: true,
	}
	root.AddCommand(newServerCmd(), newDBCmd(), newClientCmd(), newTicketCmd())
	return root
}

// setup loads configuration, installs the logger and opens the store.
func setup(ctx context.Context) (config.Config, storage.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	store, err := storage.Open(ctx, cfg.DBURL)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, store, nil
}

func newServerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "server", Short: "HTTP server"}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServer(cmd.Context())
		},
	})
	return cmd
}

func runServer(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, store, err := setup(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	resolver := &dnscache.Resolver{}
	if err := utils.RunHealthChecks(ctx, utils.HealthChecksFromConfig(cfg), store, resolver.LookupHost); err != nil {
		return err
	}
	go refreshDNS(ctx, resolver)

	fetcher, err := transport.New(ctx, cfg, resolver)
	if err != nil {
		return err
	}

	stopSweeper, err := workers.StartSweeper(ctx, store, cfg.TicketTTL, cfg.SweepInterval)
	if err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}

	q := queue.New(cfg.SimultaneousDownloadsLimit, cfg.AdmissionHold)
	env := handlers.NewEnv(cfg, store, q, fetcher, monitoring.NewDownloadMonitor())

	if cfg.SlogLevel() > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handlers.NewRouter(env),
		ReadHeaderTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s", cfg.Addr())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Println("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := stopSweeper(shutdownCtx); err != nil {
		slog.Warn("Sweeper did not stop cleanly", "error", err)
	}
	return srv.Shutdown(shutdownCtx)
}

func refreshDNS(ctx context.Context, resolver *dnscache.Resolver) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resolver.Refresh(true)
		}
	}
}
