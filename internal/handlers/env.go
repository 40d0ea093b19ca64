package handlers

import (
	"log/slog"

	"github.com/DataShades/fpx/internal/config"
	"github.com/DataShades/fpx/internal/monitoring"
	"github.com/DataShades/fpx/internal/pipes"
	"github.com/DataShades/fpx/internal/queue"
	"github.com/DataShades/fpx/internal/storage"
	"github.com/DataShades/fpx/internal/transport"
	"github.com/DataShades/fpx/internal/utils"
)

// Env carries the collaborators every handler needs. It is built once at
// startup and passed to each route.
type Env struct {
	Config   config.Config
	Store    storage.Store
	Queue    *queue.Queue
	Fetcher  transport.Fetcher
	Monitor  *monitoring.DownloadMonitor
	Timeouts utils.TimeoutConfig
}

func NewEnv(cfg config.Config, store storage.Store, q *queue.Queue, fetcher transport.Fetcher, monitor *monitoring.DownloadMonitor) *Env {
	if monitor == nil {
		monitor = monitoring.NewDownloadMonitor()
	}
	return &Env{
		Config:   cfg,
		Store:    store,
		Queue:    q,
		Fetcher:  fetcher,
		Monitor:  monitor,
		Timeouts: utils.TimeoutsFromConfig(cfg),
	}
}

func (env *Env) pipeConfig() pipes.Config {
	return pipes.Config{
		Fetcher:        env.Fetcher,
		BufferedStream: env.Config.BufferedStream,
		ZipMethod:      env.Config.ZipMethod,
		Logger:         slog.Default(),
		ItemFailed: func(transport.Details, error) {
			env.Monitor.RecordItemFailed()
		},
	}
}
