package pipes

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"

	"github.com/DataShades/fpx/internal/models"
	"github.com/DataShades/fpx/internal/transport"
)

// DirectStream relays the single item of a stream ticket. Open does no I/O;
// its metadata is guessed from the item name and the origin's content type
// replaces the guess when w exposes response headers, unless Config pins it.
type DirectStream struct {
	lifecycle
	ticket *models.Ticket
	cfg    Config
	item   transport.Details
	resp   *transport.Response
}

func NewDirectStream(t *models.Ticket, cfg Config) *DirectStream {
	return &DirectStream{ticket: t, cfg: cfg}
}

func (s *DirectStream) Open(context.Context) (Metadata, error) {
	if err := s.open(); err != nil {
		return Metadata{}, err
	}
	item, err := singleItem(s.ticket)
	if err != nil {
		return Metadata{}, err
	}
	s.item = item
	contentType := s.cfg.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(item.Name))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return Metadata{ContentType: contentType, Filename: item.Name}, nil
}

func (s *DirectStream) Stream(ctx context.Context, w io.Writer) error {
	if s.item.URL == "" {
		return ErrNotOpened
	}
	if err := s.startStreaming(); err != nil {
		return err
	}
	resp, err := s.cfg.Fetcher.Fetch(ctx, s.item)
	if err != nil {
		return err
	}
	s.resp = resp
	if hw, ok := w.(interface{ Header() http.Header }); ok && resp.ContentType != "" && s.cfg.ContentType == "" {
		hw.Header().Set("Content-Type", resp.ContentType)
	}
	return relay(resp, s.item.URL, w)
}

func (s *DirectStream) Close() error {
	if !s.close() || s.resp == nil {
		return nil
	}
	return s.resp.Close()
}

// BufferedMetadataStream fetches during Open, so the content type and the
// name announced by the origin are known before any body byte is written.
type BufferedMetadataStream struct {
	lifecycle
	ticket *models.Ticket
	cfg    Config
	url    string
	resp   *transport.Response
}

func NewBufferedMetadataStream(t *models.Ticket, cfg Config) *BufferedMetadataStream {
	return &BufferedMetadataStream{ticket: t, cfg: cfg}
}

func (s *BufferedMetadataStream) Open(ctx context.Context) (Metadata, error) {
	if err := s.open(); err != nil {
		return Metadata{}, err
	}
	if s.resp == nil {
		item, err := singleItem(s.ticket)
		if err != nil {
			return Metadata{}, err
		}
		resp, err := s.cfg.Fetcher.Fetch(ctx, item)
		if err != nil {
			return Metadata{}, err
		}
		s.resp = resp
		s.url = item.URL
	}
	contentType := s.cfg.ContentType
	if contentType == "" {
		contentType = s.resp.ContentType
	}
	return Metadata{ContentType: contentType, Filename: s.resp.Name}, nil
}

func (s *BufferedMetadataStream) Stream(_ context.Context, w io.Writer) error {
	if s.resp == nil {
		return ErrNotOpened
	}
	if err := s.startStreaming(); err != nil {
		return err
	}
	return relay(s.resp, s.url, w)
}

func (s *BufferedMetadataStream) Close() error {
	if !s.close() || s.resp == nil {
		return nil
	}
	return s.resp.Close()
}

func singleItem(t *models.Ticket) (transport.Details, error) {
	if len(t.Items) != 1 {
		return transport.Details{}, errors.New("stream ticket must contain exactly one item")
	}
	return transport.Resolve(t.Items[0])
}

// relay copies the origin body to w. Write failures come back unwrapped;
// read failures are transport errors for url.
func relay(resp *transport.Response, url string, w io.Writer) error {
	_, err := resp.CopyTo(flushWriter{w: w})
	if err == nil {
		return nil
	}
	var ce *clientError
	if errors.As(err, &ce) {
		return ce.err
	}
	if errors.Is(err, transport.ErrTransport) {
		return err
	}
	return &transport.Error{URL: url, Err: err}
}
