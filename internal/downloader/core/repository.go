// Package core implements the sync engine: integrity verification, the diff
// between a manifest and a content root, and the bounded parallel fetcher.
package core

import (
	"context"
	stdErrors "errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"assetsync/internal/downloader/transfer"
	"assetsync/internal/downloader/transport"
	apperrors "assetsync/internal/errors"
	"assetsync/internal/logger"
	"assetsync/internal/manifest"
	"assetsync/internal/system"
)

const module = "downloader.core"

// FreeSpaceFunc fails when path cannot hold required more bytes.
type FreeSpaceFunc func(path string, required int64) error

// Repository runs verify and fetch operations for a given configuration.
type Repository struct {
	cfg       *DownloadConfig
	log       logger.Logger
	transport transport.Transport
	fs        FileSystem
	metrics   Metrics
	verifier  *Verifier
	copier    *transfer.Copier
	freeSpace FreeSpaceFunc
}

// RepositoryOption customises Repository construction.
type RepositoryOption func(*Repository)

// WithTransport overrides the transport assets are fetched through.
func WithTransport(t transport.Transport) RepositoryOption {
	return func(r *Repository) {
		r.transport = t
	}
}

// WithFileSystem overrides the filesystem implementation.
func WithFileSystem(fs FileSystem) RepositoryOption {
	return func(r *Repository) {
		r.fs = fs
	}
}

// WithMetrics registers a metrics sink.
func WithMetrics(m Metrics) RepositoryOption {
	return func(r *Repository) {
		r.metrics = m
	}
}

// WithFreeSpaceFunc replaces the free-space pre-flight check.
func WithFreeSpaceFunc(fn FreeSpaceFunc) RepositoryOption {
	return func(r *Repository) {
		r.freeSpace = fn
	}
}

// NewRepository constructs a Repository using the provided configuration, logger and options.
// Without WithTransport, http, https and file URLs are supported.
func NewRepository(cfg *DownloadConfig, log logger.Logger, opts ...RepositoryOption) (*Repository, error) {
	if cfg == nil {
		return nil, apperrors.ConfigError(apperrors.CodeConfigGeneric, "download configuration must not be nil", nil).
			WithModule(module).
			WithOperation("NewRepository")
	}
	if log == nil {
		return nil, apperrors.SystemError(apperrors.CodeSystemGeneric, "logger must not be nil", nil).
			WithModule(module).
			WithOperation("NewRepository")
	}

	copyCfg := *cfg
	copyCfg.BaseURL = strings.TrimRight(strings.TrimSpace(copyCfg.BaseURL), "/")
	applyDefaults(&copyCfg)

	repo := &Repository{
		cfg:       &copyCfg,
		log:       log.With(logger.String("module", module)),
		fs:        OSFileSystem{},
		metrics:   noopMetrics{},
		freeSpace: system.EnsureFreeSpace,
	}

	for _, opt := range opts {
		opt(repo)
	}

	if repo.transport == nil {
		repo.transport = DefaultTransport(&copyCfg)
	}
	if repo.fs == nil {
		repo.fs = OSFileSystem{}
	}
	if repo.metrics == nil {
		repo.metrics = noopMetrics{}
	}

	repo.verifier = NewVerifier(repo.log, repo.metrics)
	repo.copier = transfer.NewCopier(copyCfg.TransferOptions(),
		transfer.WithLogger(repo.log),
		transfer.WithRetryHook(func(transfer.State, error) {
			repo.metrics.TransferRetry()
		}),
	)

	return repo, nil
}

// DefaultTransport routes http(s) through a range-capable HTTP client and
// file URLs to the local filesystem.
func DefaultTransport(cfg *DownloadConfig) *transport.Router {
	var httpOpts []transport.HTTPOption
	if cfg.UserAgent != "" {
		httpOpts = append(httpOpts, transport.WithUserAgent(cfg.UserAgent))
	}
	return transport.NewRouter().
		Handle(transport.NewHTTPTransport(transport.DefaultHTTPClient(cfg.Timeout), httpOpts...), "http", "https").
		Handle(transport.FileTransport{}, "file")
}

// Config returns the effective configuration.
func (r *Repository) Config() DownloadConfig {
	return *r.cfg
}

// Verifier returns the repository's checksum verifier.
func (r *Repository) Verifier() *Verifier {
	return r.verifier
}

// DownloadedSize sums the sizes of assets whose file under root already has
// the declared length. Contents are not hashed.
func (r *Repository) DownloadedSize(root string, assets []manifest.Entry) (int64, error) {
	var total int64
	for _, e := range assets {
		path, err := assetPath(root, e)
		if err != nil {
			return 0, err
		}
		info, err := r.fs.Stat(path)
		if err != nil {
			if stdErrors.Is(err, os.ErrNotExist) {
				continue
			}
			return 0, apperrors.IOError(apperrors.CodeIOGeneric, "failed to inspect local file", err).
				WithModule(module).
				WithOperation("DownloadedSize").
				WithField(apperrors.FieldAsset, e.Path)
		}
		if !info.IsDir() && info.Size() == e.Size {
			total += e.Size
		}
	}
	return total, nil
}

// assetPath joins root with the normalized entry path and rejects results
// that leave root.
func assetPath(root string, e manifest.Entry) (string, error) {
	if err := manifest.ValidateEntry(e); err != nil {
		return "", err
	}
	rel := filepath.FromSlash(e.Normalized())
	full := filepath.Join(root, rel)
	back, err := filepath.Rel(root, full)
	if err != nil || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", apperrors.ManifestError(apperrors.CodeManifestInvalidEntry, "asset path escapes the content root", err).
			WithField(apperrors.FieldAsset, e.Path)
	}
	return full, nil
}

// localLength returns the size of the file at path, or -1 when it does not exist.
func (r *Repository) localLength(path string) (int64, error) {
	info, err := r.fs.Stat(path)
	if err != nil {
		if stdErrors.Is(err, os.ErrNotExist) {
			return -1, nil
		}
		return 0, err
	}
	if info.IsDir() {
		return 0, apperrors.IOError(apperrors.CodeIOGeneric, "asset path is a directory", nil).
			WithField("path", path)
	}
	return info.Size(), nil
}

// assetError attaches asset and phase to err. Cancellation of ctx passes
// through untouched so callers can match context.Canceled.
func assetError(ctx context.Context, err error, e manifest.Entry, phase apperrors.Phase, operation string) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && stdErrors.Is(err, ctxErr) {
		return err
	}
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.IOError(apperrors.CodeIOGeneric, "asset operation failed", err)
	}
	if appErr.Module == "" {
		appErr.WithModule(module)
	}
	if appErr.Operation == "" {
		appErr.WithOperation(operation)
	}
	return appErr.WithAsset(e.Path, phase)
}

func closeQuietly(c io.Closer) {
	_ = c.Close()
}
