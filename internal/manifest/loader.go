package manifest

import (
	"context"
	"io"
	"sync"
	"time"

	apperrors "assetsync/internal/errors"
)

// DefaultCacheTTL is how long a fetched manifest is reused before it is
// requested again.
const DefaultCacheTTL = 10 * time.Minute

// Source retrieves documents by URL. transport.Transport satisfies it.
type Source interface {
	Fetch(ctx context.Context, url string, offset int64) (io.ReadCloser, error)
}

// Loader fetches and caches the manifest published at a URL.
type Loader struct {
	source Source
	url    string
	ttl    time.Duration
	now    func() time.Time

	mu        sync.Mutex
	cached    *Manifest
	fetchedAt time.Time
}

// LoaderOption customises a Loader.
type LoaderOption func(*Loader)

// WithTTL overrides DefaultCacheTTL. A non-positive TTL disables caching.
func WithTTL(ttl time.Duration) LoaderOption {
	return func(l *Loader) { l.ttl = ttl }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) LoaderOption {
	return func(l *Loader) { l.now = now }
}

// NewLoader returns a Loader for the manifest at url.
func NewLoader(source Source, url string, opts ...LoaderOption) *Loader {
	l := &Loader{
		source: source,
		url:    url,
		ttl:    DefaultCacheTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the cached manifest while it is fresh and fetches it otherwise.
func (l *Loader) Load(ctx context.Context) (*Manifest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cached != nil && l.ttl > 0 && l.now().Sub(l.fetchedAt) < l.ttl {
		return l.cached, nil
	}

	body, err := l.source.Fetch(ctx, l.url, 0)
	if err != nil {
		if appErr, ok := apperrors.As(err); ok {
			return nil, appErr.WithField(apperrors.FieldPhase, string(apperrors.PhaseManifest)).WithField("url", l.url)
		}
		return nil, apperrors.ManifestError(apperrors.CodeManifestDecode, "failed to fetch manifest", err).WithField("url", l.url)
	}
	defer body.Close()

	m, err := Decode(body)
	if err != nil {
		return nil, err
	}
	l.cached = m
	l.fetchedAt = l.now()
	return m, nil
}

// Invalidate drops the cached manifest so the next Load fetches again.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cached = nil
}
