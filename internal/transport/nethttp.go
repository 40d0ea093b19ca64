package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/dnscache"

	"github.com/DataShades/fpx/internal/utils"
)

// NetHTTP fetches with net/http over a caching DNS dialer.
type NetHTTP struct {
	client *http.Client
	opts   Options
}

// DialerOptions tune the outbound connections of the HTTP backends.
type DialerOptions struct {
	Timeouts     utils.TimeoutConfig
	BlockPrivate bool
}

// NewNetHTTP creates the net/http backend. resolver may be shared between
// backends; nil creates a private one.
func NewNetHTTP(opts Options, dial DialerOptions, resolver *dnscache.Resolver) *NetHTTP {
	return &NetHTTP{
		client: &http.Client{Transport: newHTTPTransport(dial, resolver)},
		opts:   opts.withDefaults(),
	}
}

func newHTTPTransport(dial DialerOptions, resolver *dnscache.Resolver) *http.Transport {
	if resolver == nil {
		resolver = &dnscache.Resolver{}
	}
	dialTimeout := dial.Timeouts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 30 * time.Second
	}
	dialer := &net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}

	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			var lastErr error
			for _, ip := range ips {
				if dial.BlockPrivate {
					if err := utils.CheckAddress(net.ParseIP(ip)); err != nil {
						lastErr = fmt.Errorf("%s: %w", host, err)
						continue
					}
				}
				conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
				if err == nil {
					return conn, nil
				}
				lastErr = err
			}
			if lastErr == nil {
				lastErr = fmt.Errorf("no addresses for %s", host)
			}
			return nil, lastErr
		},
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: dial.Timeouts.HeaderTimeout,
		ExpectContinueTimeout: time.Second,
	}
}

func (n *NetHTTP) Fetch(ctx context.Context, item Details) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, n.opts.Timeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.URL, nil)
	if err != nil {
		cancel()
		return nil, &Error{URL: item.URL, Err: err}
	}
	for k, v := range item.Headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		cancel()
		return nil, &Error{URL: item.URL, Err: err}
	}
	if !isSuccess(resp.StatusCode) {
		resp.Body.Close()
		cancel()
		return nil, &URLNotAvailableError{URL: item.URL, StatusCode: resp.StatusCode}
	}

	return newResponse(item, resp.Header, resp.Body, resp.ContentLength, n.opts, cancel), nil
}
