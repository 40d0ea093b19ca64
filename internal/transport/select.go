package transport

import (
	"context"
	"net/url"
	"strings"

	"github.com/rs/dnscache"

	"github.com/DataShades/fpx/internal/apperr"
	"github.com/DataShades/fpx/internal/config"
	"github.com/DataShades/fpx/internal/utils"
)

// Backend names accepted by FPX_TRANSPORT.
const (
	BackendNetHTTP = "nethttp"
	BackendResty   = "resty"
)

// Rule routes URLs accepted by Match to Fetcher.
type Rule struct {
	Name    string
	Match   func(*url.URL) bool
	Fetcher Fetcher
}

// Selector is itself a Fetcher: each item goes to the first matching rule,
// or to the default backend.
type Selector struct {
	rules    []Rule
	fallback Fetcher
}

func NewSelector(fallback Fetcher, rules ...Rule) *Selector {
	return &Selector{rules: rules, fallback: fallback}
}

// For returns the backend that serves rawURL.
func (s *Selector) For(rawURL string) Fetcher {
	u, err := url.Parse(rawURL)
	if err != nil {
		return s.fallback
	}
	for _, r := range s.rules {
		if r.Match(u) {
			return r.Fetcher
		}
	}
	return s.fallback
}

func (s *Selector) Fetch(ctx context.Context, item Details) (*Response, error) {
	return s.For(item.URL).Fetch(ctx, item)
}

// NewBackend builds a named HTTP backend. Unknown names are config errors.
func NewBackend(name string, opts Options, dial DialerOptions, resolver *dnscache.Resolver) (Fetcher, error) {
	switch strings.ToLower(name) {
	case BackendNetHTTP, "":
		return NewNetHTTP(opts, dial, resolver), nil
	case BackendResty:
		return NewResty(opts, dial, resolver), nil
	default:
		return nil, apperr.NewConfig("unsupported transport %q", name)
	}
}

// New wires the configured HTTP backend plus the S3 blob backend.
func New(ctx context.Context, cfg config.Config, resolver *dnscache.Resolver) (*Selector, error) {
	opts := Options{ChunkSize: cfg.ChunkSize, Timeout: cfg.FetchTimeout}
	dial := DialerOptions{
		Timeouts:     utils.TimeoutsFromConfig(cfg),
		BlockPrivate: cfg.BlockPrivateAddresses,
	}

	fallback, err := NewBackend(cfg.Transport, opts, dial, resolver)
	if err != nil {
		return nil, err
	}

	client, err := NewS3Client(ctx, cfg.S3)
	if err != nil {
		return nil, apperr.NewConfig("s3 backend: %v", err)
	}
	blob := NewS3Blob(client, opts, utils.DefaultRetryConfig(), cfg.S3.Hosts...)

	return NewSelector(fallback, Rule{Name: "s3", Match: blob.Match, Fetcher: blob}), nil
}
