package pipes

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataShades/fpx/internal/apperr"
	"github.com/DataShades/fpx/internal/models"
	"github.com/DataShades/fpx/internal/transport"
)

type origin struct {
	body        string
	contentType string
	name        string
	err         error
	// readErr fails the body after body has been read.
	readErr error
}

// fakeFetcher serves canned bodies and counts open responses.
type fakeFetcher struct {
	mu      sync.Mutex
	items   map[string]origin
	fetched []string
	open    int
}

func (f *fakeFetcher) Fetch(_ context.Context, d transport.Details) (*transport.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, d.URL)
	o, ok := f.items[d.URL]
	if !ok {
		return nil, &transport.URLNotAvailableError{URL: d.URL, StatusCode: http.StatusNotFound}
	}
	if o.err != nil {
		return nil, o.err
	}
	name := d.Name
	if o.name != "" && !d.NameExplicit {
		name = o.name
	}
	f.open++
	var r io.Reader = bytes.NewReader([]byte(o.body))
	if o.readErr != nil {
		r = io.MultiReader(r, iotest.ErrReader(o.readErr))
	}
	return &transport.Response{
		Body:        &trackedBody{Reader: r, f: f},
		ContentType: o.contentType,
		Name:        name,
		Size:        int64(len(o.body)),
		ChunkSize:   4,
	}, nil
}

func (f *fakeFetcher) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

type trackedBody struct {
	io.Reader
	f *fakeFetcher
}

func (b *trackedBody) Close() error {
	b.f.mu.Lock()
	b.f.open--
	b.f.mu.Unlock()
	return nil
}

func ticket(typ string, options models.Options, urls ...string) *models.Ticket {
	items := make(models.Items, len(urls))
	for i, u := range urls {
		items[i] = models.Item{URL: u}
	}
	return models.NewTicket(typ, items, options, true)
}

func readZip(t *testing.T, data []byte) (*zip.Reader, map[string]string) {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	contents := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		contents[f.Name] = string(b)
	}
	return zr, contents
}

func TestArchiveSkipsFailedItems(t *testing.T) {
	var mu sync.Mutex
	var failed []string

	// the second origin never answers within the fetch timeout
	mux := http.NewServeMux()
	mux.HandleFunc("/one.txt", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("first")) })
	mux.HandleFunc("/two.txt", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})
	mux.HandleFunc("/three.txt", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("third")) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fetcher := transport.NewNetHTTP(transport.Options{Timeout: 100 * time.Millisecond}, transport.DialerOptions{}, nil)
	tk := ticket(models.TicketTypeZip, nil, srv.URL+"/one.txt", srv.URL+"/two.txt", srv.URL+"/three.txt")
	pipe := NewArchive(tk, Config{
		Fetcher: fetcher,
		ItemFailed: func(d transport.Details, err error) {
			mu.Lock()
			failed = append(failed, d.Name)
			mu.Unlock()
		},
	})
	defer pipe.Close()

	meta, err := pipe.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Metadata{ContentType: "application/zip", Filename: DefaultArchiveName}, meta)

	var out bytes.Buffer
	require.NoError(t, pipe.Stream(context.Background(), &out))

	zr, contents := readZip(t, out.Bytes())
	assert.Equal(t, ArchiveComment, zr.Comment)
	require.Len(t, zr.File, 2)
	assert.Equal(t, "one.txt", zr.File[0].Name)
	assert.Equal(t, "three.txt", zr.File[1].Name)
	assert.Equal(t, "first", contents["one.txt"])
	assert.Equal(t, "third", contents["three.txt"])
	assert.Equal(t, []string{"two.txt"}, failed)
}

func TestArchiveEntriesFollowItemOrder(t *testing.T) {
	f := &fakeFetcher{items: map[string]origin{
		"http://x/c": {body: "ccc"},
		"http://x/a": {body: "a"},
		"http://x/b": {body: "bb", name: "real.bin"},
	}}
	tk := models.NewTicket(models.TicketTypeZip, models.Items{
		{URL: "http://x/c", Path: "nested/dir"},
		{URL: "http://x/a", Name: "renamed.txt"},
		{URL: "http://x/b"},
		{URL: "http://x/missing"},
	}, models.Options{"filename": "bundle.zip"}, true)

	pipe := NewArchive(tk, Config{Fetcher: f, ZipMethod: "deflate"})
	meta, err := pipe.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bundle.zip", meta.Filename)

	var out bytes.Buffer
	require.NoError(t, pipe.Stream(context.Background(), &out))
	require.NoError(t, pipe.Close())

	zr, contents := readZip(t, out.Bytes())
	names := make([]string, len(zr.File))
	for i, zf := range zr.File {
		names[i] = zf.Name
		assert.Equal(t, zip.Deflate, zf.Method)
	}
	assert.Equal(t, []string{"nested/dir/c", "renamed.txt", "real.bin"}, names)
	assert.Equal(t, "ccc", contents["nested/dir/c"])
	assert.Equal(t, "bb", contents["real.bin"])
	assert.Equal(t, 0, f.openCount())
}

func TestArchiveWithNoUsableItemsIsStillValid(t *testing.T) {
	f := &fakeFetcher{items: map[string]origin{}}
	pipe := NewArchive(ticket(models.TicketTypeZip, nil, "http://x/gone"), Config{Fetcher: f})
	_, err := pipe.Open(context.Background())
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, pipe.Stream(context.Background(), &out))
	zr, _ := readZip(t, out.Bytes())
	assert.Empty(t, zr.File)
	assert.Equal(t, ArchiveComment, zr.Comment)
}

type brokenClient struct{ written int }

func (b *brokenClient) Write(p []byte) (int, error) {
	if b.written > 0 {
		return 0, errors.New("broken pipe")
	}
	b.written += len(p)
	return len(p), nil
}

func TestArchiveStopsWhenClientGoesAway(t *testing.T) {
	f := &fakeFetcher{items: map[string]origin{
		"http://x/a": {body: "aaaaaaaaaaaaaaaa"},
		"http://x/b": {body: "bbbbbbbbbbbbbbbb"},
	}}
	pipe := NewArchive(ticket(models.TicketTypeZip, nil, "http://x/a", "http://x/b"), Config{Fetcher: f})
	_, err := pipe.Open(context.Background())
	require.NoError(t, err)

	err = pipe.Stream(context.Background(), &brokenClient{})
	assert.EqualError(t, err, "broken pipe")
	assert.Equal(t, []string{"http://x/a"}, f.fetched)
	require.NoError(t, pipe.Close())
	assert.Equal(t, 0, f.openCount())
}

func TestLifecycle(t *testing.T) {
	f := &fakeFetcher{items: map[string]origin{"http://x/a": {body: "a"}}}
	pipes := map[string]func() Pipe{
		"archive":  func() Pipe { return NewArchive(ticket(models.TicketTypeZip, nil, "http://x/a"), Config{Fetcher: f}) },
		"direct":   func() Pipe { return NewDirectStream(ticket(models.TicketTypeStream, nil, "http://x/a"), Config{Fetcher: f}) },
		"buffered": func() Pipe { return NewBufferedMetadataStream(ticket(models.TicketTypeStream, nil, "http://x/a"), Config{Fetcher: f}) },
	}
	for name, build := range pipes {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			p := build()
			assert.ErrorIs(t, p.Stream(ctx, io.Discard), ErrNotOpened)

			p = build()
			_, err := p.Open(ctx)
			require.NoError(t, err)
			require.NoError(t, p.Stream(ctx, io.Discard))
			assert.ErrorIs(t, p.Stream(ctx, io.Discard), ErrConsumed)
			require.NoError(t, p.Close())
			require.NoError(t, p.Close())

			p = build()
			require.NoError(t, p.Close())
			_, err = p.Open(ctx)
			assert.ErrorIs(t, err, ErrClosed)
		})
	}
	assert.Equal(t, 0, f.openCount())
}

func TestBufferedStreamUsesOriginMetadata(t *testing.T) {
	f := &fakeFetcher{items: map[string]origin{
		"http://x/a.bin": {body: "payload", contentType: "text/csv", name: "real.csv"},
	}}
	p := NewBufferedMetadataStream(ticket(models.TicketTypeStream, nil, "http://x/a.bin"), Config{Fetcher: f})
	defer p.Close()

	meta, err := p.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Metadata{ContentType: "text/csv", Filename: "real.csv"}, meta)
	assert.Len(t, f.fetched, 1)

	var out bytes.Buffer
	require.NoError(t, p.Stream(context.Background(), &out))
	assert.Equal(t, "payload", out.String())
	assert.Len(t, f.fetched, 1)
}

func TestBufferedStreamOpenFailurePropagates(t *testing.T) {
	f := &fakeFetcher{items: map[string]origin{}}
	p := NewBufferedMetadataStream(ticket(models.TicketTypeStream, nil, "http://x/missing"), Config{Fetcher: f})
	_, err := p.Open(context.Background())
	var na *transport.URLNotAvailableError
	require.ErrorAs(t, err, &na)
	assert.ErrorIs(t, p.Stream(context.Background(), io.Discard), ErrNotOpened)
	assert.NoError(t, p.Close())
}

func TestDirectStreamDefersFetch(t *testing.T) {
	f := &fakeFetcher{items: map[string]origin{
		"http://x/report.pdf": {body: "%PDF", contentType: "application/x-origin"},
	}}
	p := NewDirectStream(ticket(models.TicketTypeStream, nil, "http://x/report.pdf"), Config{Fetcher: f})
	defer p.Close()

	meta, err := p.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", meta.ContentType)
	assert.Equal(t, "report.pdf", meta.Filename)
	assert.Empty(t, f.fetched)

	rec := httptest.NewRecorder()
	require.NoError(t, p.Stream(context.Background(), rec))
	assert.Equal(t, "%PDF", rec.Body.String())
	assert.Equal(t, "application/x-origin", rec.Header().Get("Content-Type"))
}

func TestDirectStreamFetchFailurePropagates(t *testing.T) {
	boom := &transport.Error{URL: "http://x/a", Err: errors.New("connection refused")}
	f := &fakeFetcher{items: map[string]origin{"http://x/a": {err: boom}}}
	p := NewDirectStream(ticket(models.TicketTypeStream, nil, "http://x/a"), Config{Fetcher: f})
	defer p.Close()

	_, err := p.Open(context.Background())
	require.NoError(t, err)
	err = p.Stream(context.Background(), io.Discard)
	assert.ErrorIs(t, err, transport.ErrTransport)
}

func TestSelect(t *testing.T) {
	cfg := Config{Fetcher: &fakeFetcher{}}

	p, err := Select(ticket(models.TicketTypeZip, nil), cfg)
	require.NoError(t, err)
	assert.IsType(t, &Archive{}, p)

	p, err = Select(ticket(models.TicketTypeStream, nil, "http://x/a"), cfg)
	require.NoError(t, err)
	assert.IsType(t, &DirectStream{}, p)

	cfg.BufferedStream = true
	p, err = Select(ticket(models.TicketTypeStream, nil, "http://x/a"), cfg)
	require.NoError(t, err)
	assert.IsType(t, &BufferedMetadataStream{}, p)

	_, err = Select(ticket("tarball", nil), cfg)
	assert.ErrorIs(t, err, apperr.Request)
}

func TestStreamContentTypeOverride(t *testing.T) {
	f := &fakeFetcher{items: map[string]origin{
		"http://x/page": {body: "<p>", contentType: "application/octet-stream"},
	}}
	for _, buffered := range []bool{false, true} {
		cfg := Config{Fetcher: f, BufferedStream: buffered, ContentType: "text/html"}
		p, err := Select(ticket(models.TicketTypeStream, nil, "http://x/page"), cfg)
		require.NoError(t, err)

		meta, err := p.Open(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "text/html", meta.ContentType, "buffered=%v", buffered)

		rec := httptest.NewRecorder()
		rec.Header().Set("Content-Type", meta.ContentType)
		require.NoError(t, p.Stream(context.Background(), rec))
		assert.Equal(t, "text/html", rec.Header().Get("Content-Type"), "buffered=%v", buffered)
		assert.Equal(t, "<p>", rec.Body.String())
		require.NoError(t, p.Close())
	}
	assert.Equal(t, 0, f.openCount())
}

func TestStreamReadFailureIsTransportError(t *testing.T) {
	reset := errors.New("connection reset by peer")
	f := &fakeFetcher{items: map[string]origin{
		"http://x/a": {readErr: reset},
	}}
	for _, buffered := range []bool{false, true} {
		p, err := Select(ticket(models.TicketTypeStream, nil, "http://x/a"), Config{Fetcher: f, BufferedStream: buffered})
		require.NoError(t, err)
		_, err = p.Open(context.Background())
		require.NoError(t, err)

		var out bytes.Buffer
		err = p.Stream(context.Background(), &out)
		assert.ErrorIs(t, err, transport.ErrTransport, "buffered=%v", buffered)
		assert.ErrorIs(t, err, reset, "buffered=%v", buffered)
		var te *transport.Error
		require.ErrorAs(t, err, &te)
		assert.Equal(t, "http://x/a", te.URL)
		assert.Zero(t, out.Len())
		require.NoError(t, p.Close())
	}
}
