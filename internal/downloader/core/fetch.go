package core

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	apperrors "assetsync/internal/errors"
	"assetsync/internal/logger"
	"assetsync/internal/manifest"
)

// SyncRequest describes one fetch operation.
type SyncRequest struct {
	Root   string
	Assets []manifest.Entry
	// BaseURL is the download root; asset paths are appended to it.
	BaseURL  string
	Progress *InstallProgress
	// Overwrite truncates every asset and downloads it without checking
	// the existing content first.
	Overwrite  bool
	OnProgress ProgressFunc
	OnStage    StageFunc
}

// Sync makes every asset of req present and verified under req.Root.
//
// Assets are processed concurrently, at most Concurrency at a time. The
// first failure cancels the remaining work and is returned naming the asset
// and phase. Files that are already correct are left untouched unless
// Overwrite is set.
func (r *Repository) Sync(ctx context.Context, req SyncRequest) error {
	if len(req.Assets) == 0 {
		return nil
	}
	for _, e := range req.Assets {
		if err := manifest.ValidateEntry(e); err != nil {
			return err.WithModule(module).WithOperation("Sync").WithAsset(e.Path, apperrors.PhaseFetch)
		}
	}

	progress := req.Progress
	if progress == nil {
		progress = &InstallProgress{}
	}
	progress.Reset(int64(len(req.Assets)), manifest.TotalSize(req.Assets))
	progress.SetStage(StageDownload)

	if r.cfg.FreeSpaceEnabled() && r.freeSpace != nil {
		if err := r.checkFreeSpace(req.Root, req.Assets); err != nil {
			return err
		}
	}

	r.log.InfoContext(ctx, "sync started",
		logger.String("root", req.Root),
		logger.Int("assets", len(req.Assets)),
		logger.Int64("total_bytes", manifest.TotalSize(req.Assets)),
		logger.Any("overwrite", req.Overwrite),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers())

	for _, e := range req.Assets {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := r.fetchAsset(gctx, req, progress, e); err != nil {
				r.metrics.AssetFetched(OutcomeFailed)
				return assetError(gctx, err, e, apperrors.PhaseFetch, "Sync")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.log.InfoContext(ctx, "sync complete", logger.Int("assets", len(req.Assets)))
	return nil
}

// checkFreeSpace requires room for the bytes still to be written.
func (r *Repository) checkFreeSpace(root string, assets []manifest.Entry) error {
	var required int64
	for _, e := range assets {
		path, err := assetPath(root, e)
		if err != nil {
			return err
		}
		length, err := r.localLength(path)
		if err != nil || length < 0 {
			length = 0
		}
		if e.Size > length {
			required += e.Size - length
		}
	}
	if err := r.freeSpace(root, required); err != nil {
		if appErr, ok := apperrors.As(err); ok {
			return appErr.WithOperation("Sync").WithField(apperrors.FieldPhase, string(apperrors.PhaseFetch))
		}
		return apperrors.IOError(apperrors.CodeIOInsufficientSpace, "free space check failed", err).
			WithModule(module).
			WithOperation("Sync").
			WithField(apperrors.FieldPhase, string(apperrors.PhaseFetch))
	}
	return nil
}

func (r *Repository) fetchAsset(ctx context.Context, req SyncRequest, progress *InstallProgress, e manifest.Entry) error {
	path, err := assetPath(req.Root, e)
	if err != nil {
		return err
	}
	if err := r.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.IOError(apperrors.CodeIOGeneric, "failed to create directory", err).
			WithField("path", filepath.Dir(path))
	}
	if err := clearReadOnly(r.fs, path); err != nil {
		return apperrors.IOError(apperrors.CodeIOGeneric, "failed to clear read-only attribute", err).
			WithField("path", path)
	}

	flag := os.O_RDWR | os.O_CREATE
	if req.Overwrite {
		// Read access is kept for post-download verification.
		flag = os.O_RDWR | os.O_CREATE | os.O_TRUNC
	}
	f, err := r.fs.OpenFile(path, flag, 0o644)
	if err != nil {
		return apperrors.IOError(apperrors.CodeIOGeneric, "failed to open local file", err).
			WithField("path", path)
	}
	defer closeQuietly(f)

	progress.CompleteAsset()
	progress.emit(req.OnProgress)
	if req.OnStage != nil {
		req.OnStage(StageDownload)
	}

	if !req.Overwrite {
		current, err := r.isCurrent(ctx, f, e, progress, req.OnProgress)
		if err != nil {
			return err
		}
		if current {
			r.metrics.AssetFetched(OutcomeSkipped)
			r.log.DebugContext(ctx, "asset up to date", logger.String("asset", e.Path))
			return nil
		}
	}

	if err := f.Truncate(0); err != nil {
		return apperrors.IOError(apperrors.CodeIOGeneric, "failed to truncate local file", err).
			WithField("path", path)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return apperrors.IOError(apperrors.CodeIOGeneric, "failed to rewind local file", err).
			WithField("path", path)
	}

	url := manifest.JoinURL(req.BaseURL, e.Path)
	open := func(ctx context.Context, offset int64) (io.ReadCloser, error) {
		return r.transport.Fetch(ctx, url, offset)
	}
	st, err := r.copier.Copy(ctx, open, f, func(n int64) {
		progress.AddTransferred(n)
		r.metrics.AddBytesDownloaded(n)
		progress.emit(req.OnProgress)
	})
	if err != nil {
		return err
	}
	if st.SourceOffset != e.Size {
		return apperrors.VerificationError("downloaded length differs from manifest", nil).
			WithFields(apperrors.Metadata{"expected": e.Size, "actual": st.SourceOffset})
	}

	if r.cfg.VerifyEnabled() {
		if err := r.postVerify(ctx, f, e); err != nil {
			return err
		}
	}
	if err := f.Sync(); err != nil {
		return apperrors.IOError(apperrors.CodeIOGeneric, "failed to flush local file", err).
			WithField("path", path)
	}

	r.metrics.AssetFetched(OutcomeDownloaded)
	r.log.DebugContext(ctx, "asset downloaded",
		logger.String("asset", e.Path),
		logger.Int64("bytes", st.SourceOffset),
		logger.Int("retries", st.RetriesUsed),
	)
	return nil
}

// isCurrent reports whether f already holds exactly the bytes of e. Hashed
// bytes count as transferred; the verifier rolls them back on mismatch.
func (r *Repository) isCurrent(ctx context.Context, f File, e manifest.Entry, progress *InstallProgress, onProgress ProgressFunc) (bool, error) {
	length, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return false, apperrors.IOError(apperrors.CodeIOGeneric, "failed to measure local file", err)
	}
	if length != e.Size {
		return false, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return false, apperrors.IOError(apperrors.CodeIOGeneric, "failed to rewind local file", err)
	}
	return r.verifier.Verify(ctx, f, e.Hash, func(n int64) {
		progress.AddTransferred(n)
		progress.emit(onProgress)
	})
}

// postVerify re-hashes a freshly written file. A mismatch is fatal.
func (r *Repository) postVerify(ctx context.Context, f File, e manifest.Entry) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return apperrors.IOError(apperrors.CodeIOGeneric, "failed to rewind local file", err)
	}
	ok, err := r.verifier.Verify(ctx, f, e.Hash, nil)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.VerificationError("downloaded asset failed verification", nil).
			WithField("expected_hash", e.Hash.String())
	}
	return nil
}
