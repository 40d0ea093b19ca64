// Package transport fetches ticket items from their origins.
//
// Every backend satisfies Fetcher and returns the body as a stream, so the
// pipes never need to know which HTTP client or storage SDK served a file.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"regexp"
	"sync"
	"time"
)

const (
	// DefaultChunkSize bounds every read from an origin body.
	DefaultChunkSize = 1 << 20
	// DefaultTimeout is the ceiling for a whole fetch, body included.
	DefaultTimeout = 24 * time.Hour
)

// ErrTransport matches every fetch failure via errors.Is.
var ErrTransport = errors.New("transport error")

// Error is a network-level fetch failure.
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrTransport }

// URLNotAvailableError means the origin answered with a non-2xx status.
type URLNotAvailableError struct {
	URL        string
	StatusCode int
}

func (e *URLNotAvailableError) Error() string {
	return fmt.Sprintf("url %s is not available: status %d", e.URL, e.StatusCode)
}

func (e *URLNotAvailableError) Is(target error) bool { return target == ErrTransport }

// Options are shared by all backends.
type Options struct {
	ChunkSize int
	Timeout   time.Duration
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// Fetcher performs one GET for an item.
type Fetcher interface {
	Fetch(ctx context.Context, item Details) (*Response, error)
}

// Response is an open origin body plus what we learned about it. Close must
// be called on every path; it releases the connection and the fetch timer.
type Response struct {
	Body        io.ReadCloser
	ContentType string
	Name        string
	// Size is -1 when the origin did not announce a length.
	Size      int64
	ChunkSize int

	closeOnce sync.Once
	closeErr  error
	release   func()
}

// CopyTo writes the body to w one chunk at a time.
func (r *Response) CopyTo(w io.Writer) (int64, error) {
	buf := make([]byte, r.chunkSize())
	var written int64
	for {
		n, err := r.Body.Read(buf)
		if n > 0 {
			m, werr := w.Write(buf[:n])
			written += int64(m)
			if werr != nil {
				return written, werr
			}
		}
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
}

func (r *Response) chunkSize() int {
	if r.ChunkSize > 0 {
		return r.ChunkSize
	}
	return DefaultChunkSize
}

// Close is idempotent.
func (r *Response) Close() error {
	r.closeOnce.Do(func() {
		if r.Body != nil {
			r.closeErr = r.Body.Close()
		}
		if r.release != nil {
			r.release()
		}
	})
	return r.closeErr
}

var dispositionPattern = regexp.MustCompile(`filename="([^"]+)"`)

// NameFromDisposition extracts the filename from a content-disposition value.
func NameFromDisposition(value string) string {
	if value == "" {
		return ""
	}
	if m := dispositionPattern.FindStringSubmatch(value); m != nil {
		return SanitizeName(m[1])
	}
	if _, params, err := mime.ParseMediaType(value); err == nil {
		return SanitizeName(params["filename"])
	}
	return ""
}

// newResponse applies the shared naming rules: an explicit item name wins,
// then content-disposition, then the name derived from the URL.
func newResponse(item Details, header http.Header, body io.ReadCloser, size int64, opts Options, release func()) *Response {
	name := item.Name
	if !item.NameExplicit {
		if fromHeader := NameFromDisposition(header.Get("Content-Disposition")); fromHeader != "" {
			name = fromHeader
		}
	}
	contentType := header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &Response{
		Body:        body,
		ContentType: contentType,
		Name:        name,
		Size:        size,
		ChunkSize:   opts.ChunkSize,
		release:     release,
	}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
