package core

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	apperrors "assetsync/internal/errors"
	"assetsync/internal/logger"
	"assetsync/internal/manifest"
)

// FindMismatched returns the assets that are missing, have the wrong length
// or fail verification under root. Progress is reset for the verify stage;
// mismatched assets add their full size to TransferredBytes and hashed bytes
// accumulate in VerifiedBytes. onProgress may be called from several
// goroutines at once. The result keeps manifest order.
func (r *Repository) FindMismatched(ctx context.Context, root string, assets []manifest.Entry, progress *InstallProgress, onProgress ProgressFunc) ([]manifest.Entry, error) {
	if progress == nil {
		progress = &InstallProgress{}
	}
	progress.SetStage(StageVerify)
	progress.Reset(int64(len(assets)), manifest.TotalSize(assets))
	progress.emit(onProgress)

	r.log.DebugContext(ctx, "diffing content root",
		logger.String("root", root),
		logger.Int("assets", len(assets)),
	)

	var (
		mu         sync.Mutex
		mismatched []int
	)
	mark := func(i int) {
		progress.AddTransferred(assets[i].Size)
		mu.Lock()
		mismatched = append(mismatched, i)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers())

	for i := range assets {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			ok, err := r.checkAsset(gctx, root, assets[i], progress, onProgress)
			if err != nil {
				return assetError(gctx, err, assets[i], apperrors.PhaseDiff, "FindMismatched")
			}
			if !ok {
				mark(i)
			}
			progress.CompleteAsset()
			progress.emit(onProgress)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Ints(mismatched)
	out := make([]manifest.Entry, len(mismatched))
	for j, i := range mismatched {
		out[j] = assets[i]
	}

	r.log.InfoContext(ctx, "diff complete",
		logger.Int("assets", len(assets)),
		logger.Int("mismatched", len(out)),
	)
	return out, nil
}

// checkAsset reports whether the file for e is present and correct.
func (r *Repository) checkAsset(ctx context.Context, root string, e manifest.Entry, progress *InstallProgress, onProgress ProgressFunc) (bool, error) {
	path, err := assetPath(root, e)
	if err != nil {
		return false, err
	}
	length, err := r.localLength(path)
	if err != nil {
		return false, err
	}
	if length != e.Size {
		return false, nil
	}

	f, err := r.fs.Open(path)
	if err != nil {
		return false, err
	}
	defer closeQuietly(f)

	return r.verifier.Verify(ctx, f, e.Hash, func(n int64) {
		progress.AddVerified(n)
		progress.emit(onProgress)
	})
}
