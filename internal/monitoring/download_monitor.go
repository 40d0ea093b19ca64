package monitoring

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// DownloadMetrics is the snapshot served by the health endpoint.
type DownloadMetrics struct {
	TicketsGenerated   int64 `json:"tickets_generated"`
	DownloadsStarted   int64 `json:"downloads_started"`
	DownloadsCompleted int64 `json:"downloads_completed"`
	DownloadsFailed    int64 `json:"downloads_failed"`
	DownloadsActive    int64 `json:"downloads_active"`
	ItemsFailed        int64 `json:"items_failed"`
	BytesSent          int64 `json:"bytes_sent"`
	WaitersConnected   int64 `json:"waiters_connected"`

	LastUpdated   time.Time `json:"last_updated"`
	UptimeSeconds int64     `json:"uptime_seconds"`
}

// DownloadMonitor counts what the pipeline does. All methods are safe for
// concurrent use.
type DownloadMonitor struct {
	startTime time.Time

	generated atomic.Int64
	started   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	active    atomic.Int64
	items     atomic.Int64
	bytes     atomic.Int64
	waiters   atomic.Int64
}

// NewDownloadMonitor creates a new monitor instance
func NewDownloadMonitor() *DownloadMonitor {
	return &DownloadMonitor{startTime: time.Now()}
}

func (m *DownloadMonitor) RecordTicketGenerated() { m.generated.Add(1) }

// RecordDownloadStart returns the function to call when the download ends.
func (m *DownloadMonitor) RecordDownloadStart(ticketID string) func(sent int64, err error) {
	m.started.Add(1)
	m.active.Add(1)
	slog.Debug("Download started", "ticket", ticketID, "active", m.active.Load())

	return func(sent int64, err error) {
		m.active.Add(-1)
		m.bytes.Add(sent)
		if err != nil {
			m.failed.Add(1)
			slog.Warn("Download interrupted", "ticket", ticketID, "bytes", sent, "error", err)
			return
		}
		m.completed.Add(1)
		slog.Debug("Download finished", "ticket", ticketID, "bytes", sent)
	}
}

func (m *DownloadMonitor) RecordItemFailed() { m.items.Add(1) }

// RecordWaiter returns the function to call when the wait connection closes.
func (m *DownloadMonitor) RecordWaiter() func() {
	m.waiters.Add(1)
	return func() { m.waiters.Add(-1) }
}

// GetMetrics returns the current counters
func (m *DownloadMonitor) GetMetrics() DownloadMetrics {
	return DownloadMetrics{
		TicketsGenerated:   m.generated.Load(),
		DownloadsStarted:   m.started.Load(),
		DownloadsCompleted: m.completed.Load(),
		DownloadsFailed:    m.failed.Load(),
		DownloadsActive:    m.active.Load(),
		ItemsFailed:        m.items.Load(),
		BytesSent:          m.bytes.Load(),
		WaitersConnected:   m.waiters.Load(),
		LastUpdated:        time.Now(),
		UptimeSeconds:      int64(time.Since(m.startTime).Seconds()),
	}
}
