package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "assetsync/internal/errors"
)

const defaultUserAgent = "assetsync/1.0 (Go downloader)"

// HTTPClient represents the subset of http.Client methods required by the transport.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPTransport fetches assets with ranged GET requests.
type HTTPTransport struct {
	client    HTTPClient
	userAgent string
}

// HTTPOption customises an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(t *HTTPTransport) { t.userAgent = ua }
}

// NewHTTPTransport wraps client. A nil client gets DefaultHTTPClient(30s).
func NewHTTPTransport(client HTTPClient, opts ...HTTPOption) *HTTPTransport {
	if client == nil {
		client = DefaultHTTPClient(30 * time.Second)
	}
	t := &HTTPTransport{client: client, userAgent: defaultUserAgent}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// DefaultHTTPClient returns a client tuned for many concurrent large
// downloads. There is no overall request timeout; stalled bodies are caught by
// the copier's per-chunk deadline, and headerTimeout bounds the wait for a response.
func DefaultHTTPClient(headerTimeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   32,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: headerTimeout,
			ExpectContinueTimeout: 1 * time.Second,
			DisableCompression:    true,
		},
	}
}

// Fetch implements Transport. A 206 reply is returned as-is; a 200 reply to a
// ranged request is advanced to offset by discarding the leading bytes as
// the body is read.
func (t *HTTPTransport) Fetch(ctx context.Context, url string, offset int64) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.ConfigError(apperrors.CodeConfigGeneric, "failed to create download request", err).
			WithModule(module).WithOperation("Fetch").WithField("url", url)
	}
	req.Header.Set("User-Agent", t.userAgent)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.TransferError(apperrors.CodeTransferConnectionFailed, "download request failed", err).
			WithModule(module).WithOperation("Fetch").WithField("url", url)
	}

	switch {
	case resp.StatusCode == http.StatusPartialContent && offset > 0:
		if start, ok := contentRangeStart(resp.Header.Get("Content-Range")); ok && start != offset {
			resp.Body.Close()
			return nil, apperrors.TransferError(apperrors.CodeTransferHTTPStatus, "server returned a different range", nil).
				WithModule(module).WithOperation("Fetch").
				WithFields(apperrors.Metadata{"url": url, "offset": offset, "range_start": start})
		}
		return resp.Body, nil

	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent:
		if offset > 0 {
			return &skipReader{body: resp.Body, skip: offset}, nil
		}
		return resp.Body, nil

	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && offset > 0:
		// Everything up to offset has already been received.
		resp.Body.Close()
		return emptyBody(), nil
	}

	resp.Body.Close()
	return nil, apperrors.TransferError(apperrors.CodeTransferHTTPStatus,
		fmt.Sprintf("unexpected HTTP status %d", resp.StatusCode), nil).
		WithModule(module).WithOperation("Fetch").
		WithFields(apperrors.Metadata{"url": url, "status": resp.StatusCode})
}

// skipReader discards the first skip bytes of a body that ignored the Range
// header. Each Read discards at most one buffer and returns no data, so the
// caller's per-read deadline covers the skip one chunk at a time.
type skipReader struct {
	body io.ReadCloser
	skip int64
}

func (r *skipReader) Read(p []byte) (int, error) {
	if r.skip <= 0 {
		return r.body.Read(p)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if int64(len(p)) > r.skip {
		p = p[:r.skip]
	}
	n, err := r.body.Read(p)
	r.skip -= int64(n)
	if err == io.EOF && r.skip > 0 {
		return 0, io.ErrUnexpectedEOF
	}
	return 0, err
}

func (r *skipReader) Close() error {
	return r.body.Close()
}

// contentRangeStart parses the first byte position of "bytes a-b/c".
func contentRangeStart(h string) (int64, bool) {
	h = strings.TrimSpace(h)
	if !strings.HasPrefix(h, "bytes ") {
		return 0, false
	}
	spec := strings.TrimPrefix(h, "bytes ")
	dash := strings.IndexByte(spec, '-')
	if dash <= 0 {
		return 0, false
	}
	start, err := strconv.ParseInt(spec[:dash], 10, 64)
	if err != nil {
		return 0, false
	}
	return start, true
}
