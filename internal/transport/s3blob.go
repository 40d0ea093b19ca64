package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	fpxconfig "github.com/DataShades/fpx/internal/config"
	"github.com/DataShades/fpx/internal/utils"
)

// ObjectGetter is the slice of the S3 API the blob backend needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Blob reads objects straight from S3 (or a compatible service). A body
// that breaks mid-read is reopened from the current offset with a range
// request until the retry budget is spent.
type S3Blob struct {
	client ObjectGetter
	opts   Options
	retry  utils.RetryConfig
	hosts  map[string]bool
}

// NewS3Client builds an S3 client from static or default credentials.
func NewS3Client(ctx context.Context, cfg fpxconfig.S3Config) (*s3.Client, error) {
	var awsConfig aws.Config
	var err error

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsConfig, err = config.LoadDefaultConfig(ctx,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				"",
			)),
			config.WithRegion(cfg.Region),
		)
	} else {
		// environment, shared config, IAM role
		awsConfig, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	}), nil
}

// NewS3Blob wraps client. Extra hosts are served path-style (/bucket/key).
func NewS3Blob(client ObjectGetter, opts Options, retry utils.RetryConfig, extraHosts ...string) *S3Blob {
	hosts := make(map[string]bool, len(extraHosts))
	for _, h := range extraHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hosts[h] = true
		}
	}
	return &S3Blob{client: client, opts: opts.withDefaults(), retry: retry, hosts: hosts}
}

// amazonHost matches bucket.s3.amazonaws.com, s3.region.amazonaws.com,
// bucket.s3-region.amazonaws.com and friends.
var amazonHost = regexp.MustCompile(`^(?:(.+)\.)?s3(?:[.-][a-z0-9-]+)?(?:\.dualstack)?(?:\.[a-z0-9-]+)?\.amazonaws\.com$`)

// Match reports whether the URL points at an object this backend can read.
func (b *S3Blob) Match(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	return b.hosts[host] || amazonHost.MatchString(host)
}

// Locate splits an object URL into bucket and key.
func (b *S3Blob) Locate(u *url.URL) (bucket, key string, err error) {
	host := strings.ToLower(u.Hostname())
	p := strings.TrimPrefix(u.Path, "/")
	if !b.hosts[host] {
		if m := amazonHost.FindStringSubmatch(host); m != nil && m[1] != "" {
			bucket, key = m[1], p
		}
	}
	if bucket == "" {
		bucket, key, _ = strings.Cut(p, "/")
	}
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("cannot locate bucket and key in %s", u.Redacted())
	}
	return bucket, key, nil
}

func (b *S3Blob) Fetch(ctx context.Context, item Details) (*Response, error) {
	u, err := url.Parse(item.URL)
	if err != nil {
		return nil, &Error{URL: item.URL, Err: err}
	}
	bucket, key, err := b.Locate(u)
	if err != nil {
		return nil, &URLNotAvailableError{URL: item.URL, StatusCode: http.StatusNotFound}
	}

	ctx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	body := &resumableBody{
		ctx:    ctx,
		blob:   b,
		url:    item.URL,
		bucket: bucket,
		key:    key,
	}

	var out *s3.GetObjectOutput
	err = utils.Retry(ctx, b.retry, func(attempt int) error {
		var err error
		out, err = body.open(0)
		if err != nil {
			slog.Warn("Blob open failed", "url", item.URL, "attempt", attempt, "error", err)
		}
		return err
	})
	if err != nil {
		cancel()
		return nil, blobError(item.URL, err)
	}
	body.current = out.Body
	body.attempts = 1

	header := http.Header{}
	if out.ContentType != nil {
		header.Set("Content-Type", *out.ContentType)
	}
	if out.ContentDisposition != nil {
		header.Set("Content-Disposition", *out.ContentDisposition)
	}
	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return newResponse(item, header, body, size, b.opts, cancel), nil
}

// resumableBody reopens the object at the current offset when a read fails.
type resumableBody struct {
	ctx      context.Context
	blob     *S3Blob
	url      string
	bucket   string
	key      string
	current  io.ReadCloser
	offset   int64
	attempts int
}

func (r *resumableBody) open(offset int64) (*s3.GetObjectOutput, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.key),
	}
	if offset > 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
	}
	out, err := r.blob.client.GetObject(r.ctx, input)
	if err != nil {
		if status := blobStatus(err); status == http.StatusNotFound || status == http.StatusForbidden {
			return nil, utils.Permanent(err)
		}
		return nil, err
	}
	return out, nil
}

func (r *resumableBody) Read(p []byte) (int, error) {
	for {
		if r.current == nil {
			out, err := r.open(r.offset)
			if err != nil {
				if r.ctx.Err() != nil {
					return 0, &Error{URL: r.url, Err: r.ctx.Err()}
				}
				if !r.retryable(err) {
					return 0, exhausted(r.url, err)
				}
				continue
			}
			r.current = out.Body
		}

		n, err := r.current.Read(p)
		r.offset += int64(n)
		if err == nil || err == io.EOF {
			return n, err
		}

		if r.ctx.Err() != nil {
			return n, &Error{URL: r.url, Err: r.ctx.Err()}
		}
		slog.Warn("Blob read interrupted, resuming", "url", r.url, "offset", r.offset, "attempt", r.attempts, "error", err)
		r.current.Close()
		r.current = nil
		if !r.retryable(err) {
			return n, exhausted(r.url, err)
		}
		if n > 0 {
			return n, nil
		}
	}
}

// retryable spends one attempt and waits out the backoff.
func (r *resumableBody) retryable(err error) bool {
	if blobStatus(err) != 0 || r.attempts >= r.blob.retry.MaxRetries {
		return false
	}
	if utils.Sleep(r.ctx, r.blob.retry.Backoff(r.attempts)) != nil {
		return false
	}
	r.attempts++
	return true
}

func (r *resumableBody) Close() error {
	if r.current != nil {
		err := r.current.Close()
		r.current = nil
		return err
	}
	return nil
}

// blobStatus extracts 403/404 from S3 API errors; 0 for anything else.
func blobStatus(err error) int {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return http.StatusNotFound
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch", "AllAccessDisabled":
			return http.StatusForbidden
		}
	}
	var statusErr interface{ HTTPStatusCode() int }
	if errors.As(err, &statusErr) {
		switch code := statusErr.HTTPStatusCode(); code {
		case http.StatusNotFound, http.StatusForbidden:
			return code
		}
	}
	return 0
}

func blobError(rawURL string, err error) error {
	if status := blobStatus(err); status != 0 {
		return &URLNotAvailableError{URL: rawURL, StatusCode: status}
	}
	if errors.Is(err, utils.ErrRetriesExhausted) {
		return &URLNotAvailableError{URL: rawURL, StatusCode: http.StatusInternalServerError}
	}
	return &Error{URL: rawURL, Err: err}
}

// exhausted is the error once a body can no longer be resumed.
func exhausted(rawURL string, err error) error {
	if status := blobStatus(err); status != 0 {
		return &URLNotAvailableError{URL: rawURL, StatusCode: status}
	}
	return &URLNotAvailableError{URL: rawURL, StatusCode: http.StatusInternalServerError}
}
