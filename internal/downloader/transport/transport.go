// Package transport opens remote assets as byte streams starting at an offset.
package transport

import (
	"context"
	"io"
	"net/url"
	"sort"
	"strings"

	apperrors "assetsync/internal/errors"
)

const module = "downloader.transport"

// Transport opens the object at url positioned at offset. Failures that
// retrying cannot fix are returned as non-recoverable AppErrors.
type Transport interface {
	Fetch(ctx context.Context, url string, offset int64) (io.ReadCloser, error)
}

// Router dispatches to a Transport by URL scheme.
type Router struct {
	routes map[string]Transport
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{routes: make(map[string]Transport)}
}

// Handle registers t for the given schemes.
func (r *Router) Handle(t Transport, schemes ...string) *Router {
	for _, s := range schemes {
		r.routes[strings.ToLower(s)] = t
	}
	return r
}

// Fetch implements Transport.
func (r *Router) Fetch(ctx context.Context, rawURL string, offset int64) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, apperrors.ConfigError(apperrors.CodeConfigGeneric, "invalid asset url", err).
			WithModule(module).WithField("url", rawURL)
	}
	t, ok := r.routes[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, apperrors.ConfigError(apperrors.CodeConfigGeneric, "no transport for url scheme", nil).
			WithModule(module).
			WithFields(apperrors.Metadata{"url": rawURL, "scheme": u.Scheme})
	}
	return t.Fetch(ctx, rawURL, offset)
}

// Schemes lists the registered schemes in sorted order.
func (r *Router) Schemes() []string {
	out := make([]string, 0, len(r.routes))
	for s := range r.routes {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func emptyBody() io.ReadCloser {
	return io.NopCloser(strings.NewReader(""))
}
