package pipes

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/DataShades/fpx/internal/models"
	"github.com/DataShades/fpx/internal/transport"
)

const (
	// ArchiveComment tags every produced archive.
	ArchiveComment = "Written by FPX"
	// DefaultArchiveName is used unless the ticket sets options.filename.
	DefaultArchiveName = "collection.zip"
)

// Archive streams a ZIP with one entry per item, in ticket order. Items that
// cannot be fetched are logged and left out.
type Archive struct {
	lifecycle
	ticket  *models.Ticket
	cfg     Config
	current *transport.Response
}

func NewArchive(t *models.Ticket, cfg Config) *Archive {
	return &Archive{ticket: t, cfg: cfg}
}

func (a *Archive) Open(context.Context) (Metadata, error) {
	if err := a.open(); err != nil {
		return Metadata{}, err
	}
	name := a.ticket.Options.String("filename")
	if name == "" {
		name = DefaultArchiveName
	}
	return Metadata{ContentType: "application/zip", Filename: name}, nil
}

// Stream compresses into an in-memory sink and hands the sink's contents to
// w after every chunk, so memory use is bounded by the chunk size.
func (a *Archive) Stream(ctx context.Context, w io.Writer) error {
	if err := a.startStreaming(); err != nil {
		return err
	}

	sink := &bytes.Buffer{}
	out := flushWriter{w: w}
	zw := zip.NewWriter(sink)
	drain := func() error {
		if err := zw.Flush(); err != nil {
			return err
		}
		if sink.Len() == 0 {
			return nil
		}
		_, err := out.Write(sink.Bytes())
		sink.Reset()
		return err
	}

	for i, item := range a.ticket.Items {
		if err := ctx.Err(); err != nil {
			return err
		}
		d, err := transport.Resolve(item)
		if err != nil {
			a.skip(transport.Details{URL: item.URL}, i, err)
			continue
		}
		err = a.addItem(ctx, zw, d, drain)
		var ce *clientError
		if errors.As(err, &ce) {
			return ce.err
		}
		if err != nil {
			a.skip(d, i, err)
		}
	}

	if err := zw.SetComment(ArchiveComment); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	if err := drain(); err != nil {
		var ce *clientError
		if errors.As(err, &ce) {
			return ce.err
		}
		return err
	}
	return nil
}

// addItem opens the entry only once the origin answered, so an item that
// fails to fetch leaves no trace in the archive.
func (a *Archive) addItem(ctx context.Context, zw *zip.Writer, d transport.Details, drain func() error) error {
	resp, err := a.cfg.Fetcher.Fetch(ctx, d)
	if err != nil {
		return err
	}
	a.current = resp
	defer func() {
		resp.Close()
		a.current = nil
	}()

	if resp.Name != "" {
		d.Name = resp.Name
	}

	entry, err := zw.CreateHeader(&zip.FileHeader{
		Name:     d.Entry(),
		Method:   a.cfg.zipMethod(),
		Modified: time.Now(),
	})
	if err != nil {
		return err
	}
	if err := drain(); err != nil {
		return err
	}

	_, err = resp.CopyTo(&entrySink{entry: entry, drain: drain})
	return err
}

func (a *Archive) skip(d transport.Details, index int, err error) {
	a.cfg.logger().Error("Failed to add item to archive",
		"ticket", a.ticket.ID,
		"index", index,
		"url", d.URL,
		"entry", d.Entry(),
		"error", err)
	if a.cfg.ItemFailed != nil {
		a.cfg.ItemFailed(d, err)
	}
}

func (a *Archive) Close() error {
	if !a.close() {
		return nil
	}
	if a.current != nil {
		return a.current.Close()
	}
	return nil
}

// entrySink feeds one chunk into the ZIP entry, then drains the encoder.
type entrySink struct {
	entry io.Writer
	drain func() error
}

func (s *entrySink) Write(p []byte) (int, error) {
	n, err := s.entry.Write(p)
	if err != nil {
		return n, err
	}
	return n, s.drain()
}
