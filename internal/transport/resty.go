package transport

import (
	"context"

	"github.com/go-resty/resty/v2"
	"github.com/rs/dnscache"
)

// Resty fetches with go-resty. Responses are left unparsed so the body can
// be streamed.
type Resty struct {
	client *resty.Client
	opts   Options
}

func NewResty(opts Options, dial DialerOptions, resolver *dnscache.Resolver) *Resty {
	client := resty.New().
		SetTransport(newHTTPTransport(dial, resolver)).
		SetDoNotParseResponse(true).
		SetRetryCount(0)
	return &Resty{client: client, opts: opts.withDefaults()}
}

func (r *Resty) Fetch(ctx context.Context, item Details) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)

	resp, err := r.client.R().
		SetContext(ctx).
		SetHeaders(item.Headers).
		Get(item.URL)
	if err != nil {
		if resp != nil && resp.RawBody() != nil {
			resp.RawBody().Close()
		}
		cancel()
		return nil, &Error{URL: item.URL, Err: err}
	}

	body := resp.RawBody()
	if !isSuccess(resp.StatusCode()) {
		if body != nil {
			body.Close()
		}
		cancel()
		return nil, &URLNotAvailableError{URL: item.URL, StatusCode: resp.StatusCode()}
	}

	size := int64(-1)
	if resp.RawResponse != nil {
		size = resp.RawResponse.ContentLength
	}
	return newResponse(item, resp.Header(), body, size, r.opts, cancel), nil
}
