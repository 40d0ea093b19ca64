package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DataShades/fpx/internal/models"
)

var (
	// ErrNotFound is returned when a ticket or client does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a client name is already taken.
	ErrDuplicate = errors.New("record already exists")
)

// TicketStore persists tickets. DeleteTicket reports whether this call removed
// the row, so concurrent downloads of one ticket can tell who won.
type TicketStore interface {
	GetTicket(ctx context.Context, id string) (*models.Ticket, error)
	InsertTicket(ctx context.Context, t *models.Ticket) error
	DeleteTicket(ctx context.Context, id string) (bool, error)
	SetTicketAvailable(ctx context.Context, id string) error
	ListTickets(ctx context.Context, offset, limit int) ([]models.Ticket, int64, error)
	DeleteTicketsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteAllTickets(ctx context.Context) (int64, error)
}

// ClientStore persists API clients.
type ClientStore interface {
	FindClientByName(ctx context.Context, name string) (*models.Client, error)
	FindClientByID(ctx context.Context, id string) (*models.Client, error)
	InsertClient(ctx context.Context, c *models.Client) error
	DeleteClient(ctx context.Context, name string) (bool, error)
	UpdateClientID(ctx context.Context, name, id string) error
	ListClients(ctx context.Context) ([]models.Client, error)
}

// Store is the full persistence surface used by the server and the CLI.
type Store interface {
	TicketStore
	ClientStore
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Open picks a backend from the URL scheme: postgres://, sqlite://, redis://
// or memory://.
func Open(ctx context.Context, dbURL string) (Store, error) {
	scheme, rest, ok := strings.Cut(dbURL, "://")
	if !ok {
		return nil, fmt.Errorf("database url %q has no scheme", dbURL)
	}
	switch strings.ToLower(scheme) {
	case "postgres", "postgresql":
		return OpenPostgres(ctx, dbURL)
	case "sqlite", "sqlite3":
		return OpenSQLite(rest)
	case "redis", "rediss":
		return OpenRedis(ctx, dbURL)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported database scheme %q", scheme)
	}
}
