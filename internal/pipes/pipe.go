// Package pipes turns a ticket into a byte stream: a ZIP archive built on the
// fly for zip tickets, or the single origin body for stream tickets.
package pipes

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/DataShades/fpx/internal/apperr"
	"github.com/DataShades/fpx/internal/models"
	"github.com/DataShades/fpx/internal/transport"
)

var (
	ErrNotOpened = errors.New("pipe is not opened")
	ErrConsumed  = errors.New("pipe was already streamed")
	ErrClosed    = errors.New("pipe is closed")
)

// Metadata describes the produced stream.
type Metadata struct {
	ContentType string
	Filename    string
}

// Pipe has the lifecycle created -> opened -> streaming -> closed. Stream may
// run at most once and only after Open. Close is idempotent and valid in
// every state, including after a partially consumed Stream.
type Pipe interface {
	Open(ctx context.Context) (Metadata, error)
	Stream(ctx context.Context, w io.Writer) error
	Close() error
}

// Config is shared by all pipe variants.
type Config struct {
	Fetcher transport.Fetcher
	// BufferedStream selects BufferedMetadataStream for stream tickets.
	BufferedStream bool
	// ContentType, when set, is what stream pipes announce instead of the
	// origin's type.
	ContentType string
	// ZipMethod is "store" or "deflate".
	ZipMethod string
	Logger    *slog.Logger
	// ItemFailed is called for every archive entry that had to be skipped.
	ItemFailed func(item transport.Details, err error)
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c Config) zipMethod() uint16 {
	if strings.EqualFold(c.ZipMethod, "deflate") {
		return zip.Deflate
	}
	return zip.Store
}

// Select picks the variant for the ticket type.
func Select(t *models.Ticket, cfg Config) (Pipe, error) {
	switch t.Type {
	case models.TicketTypeZip:
		return NewArchive(t, cfg), nil
	case models.TicketTypeStream:
		if cfg.BufferedStream {
			return NewBufferedMetadataStream(t, cfg), nil
		}
		return NewDirectStream(t, cfg), nil
	default:
		return nil, apperr.NewUnsupportedTicketType(t.Type)
	}
}

type state int

const (
	stateCreated state = iota
	stateOpened
	stateStreaming
	stateClosed
)

// lifecycle enforces the state machine shared by the variants.
type lifecycle struct {
	state state
}

func (l *lifecycle) open() error {
	switch l.state {
	case stateCreated:
		l.state = stateOpened
		return nil
	case stateClosed:
		return ErrClosed
	default:
		return nil
	}
}

func (l *lifecycle) startStreaming() error {
	switch l.state {
	case stateOpened:
		l.state = stateStreaming
		return nil
	case stateCreated:
		return ErrNotOpened
	case stateStreaming:
		return ErrConsumed
	default:
		return ErrClosed
	}
}

// close reports whether this call did the transition.
func (l *lifecycle) close() bool {
	if l.state == stateClosed {
		return false
	}
	l.state = stateClosed
	return true
}

// clientError marks a failure writing to the consumer, as opposed to a
// failure reading from an origin.
type clientError struct{ err error }

func (e *clientError) Error() string { return e.err.Error() }
func (e *clientError) Unwrap() error { return e.err }

// flushWriter pushes every write through to the consumer.
type flushWriter struct {
	w io.Writer
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if err != nil {
		return n, &clientError{err: err}
	}
	if fl, ok := f.w.(http.Flusher); ok {
		fl.Flush()
	}
	return n, nil
}
