// Package app wires the sync engine into the install, update, verify,
// status and history operations of the command line tool.
package app

import (
	"context"
	stdErrors "errors"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"assetsync/internal/data"
	"assetsync/internal/downloader/core"
	"assetsync/internal/downloader/transport"
	apperrors "assetsync/internal/errors"
	errlog "assetsync/internal/errors/logging"
	"assetsync/internal/logger"
	"assetsync/internal/manifest"
	"assetsync/internal/system"
	"assetsync/internal/ui"
)

const module = "app"

// Operation names recorded in run history and metrics.
const (
	OpInstall = "install"
	OpUpdate  = "update"
	OpVerify  = "verify"
)

// ErrDeclined is returned when the user declines a repair.
var ErrDeclined = errors.New("operation declined by user")

// Installer runs operations against one content root.
type Installer struct {
	opts      Options
	cfg       *core.DownloadConfig
	log       logger.Logger
	transport transport.Transport
	repo      *core.Repository
	loader    *manifest.Loader
	validator *EnvironmentValidator
	store     data.Repository
	metrics   core.Metrics
	console   *ui.Console
	confirm   ui.Confirmer

	progress   *core.InstallProgress
	onProgress core.ProgressFunc
	onStage    core.StageFunc
}

// Option customises an Installer.
type Option func(*Installer)

// WithStore records runs and snapshots in store.
func WithStore(store data.Repository) Option {
	return func(i *Installer) { i.store = store }
}

// WithMetrics reports engine and run metrics to m.
func WithMetrics(m core.Metrics) Option {
	return func(i *Installer) { i.metrics = m }
}

// WithConsole shows step spinners on console.
func WithConsole(c *ui.Console) Option {
	return func(i *Installer) { i.console = c }
}

// WithConfirmer asks before repairing assets during an update.
func WithConfirmer(c ui.Confirmer) Option {
	return func(i *Installer) { i.confirm = c }
}

// WithTransport replaces the transport built from the configuration.
func WithTransport(t transport.Transport) Option {
	return func(i *Installer) { i.transport = t }
}

// WithProgress registers progress and stage observers.
func WithProgress(onProgress core.ProgressFunc, onStage core.StageFunc) Option {
	return func(i *Installer) {
		i.onProgress = onProgress
		i.onStage = onStage
	}
}

// NewInstaller builds an Installer. Without WithTransport the transport is
// built by BuildTransport.
func NewInstaller(ctx context.Context, cfg *core.DownloadConfig, opts Options, log logger.Logger, options ...Option) (*Installer, error) {
	if cfg == nil {
		return nil, apperrors.ConfigError(apperrors.CodeConfigGeneric, "download configuration must not be nil", nil).
			WithModule(module).WithOperation("NewInstaller")
	}
	if opts.ManifestURL == "" {
		opts.ManifestURL = cfg.ManifestURL
	}
	if err := opts.Validate(); err != nil {
		if appErr, ok := apperrors.As(err); ok {
			return nil, appErr.WithModule(module).WithOperation("NewInstaller")
		}
		return nil, err
	}

	i := &Installer{
		opts:     opts,
		cfg:      cfg,
		log:      log,
		progress: &core.InstallProgress{},
	}
	for _, o := range options {
		o(i)
	}

	if i.transport == nil {
		router, err := BuildTransport(ctx, cfg, opts.ManifestURL, i.baseURLOverride())
		if err != nil {
			return nil, err
		}
		log.DebugContext(ctx, "transport ready", logger.Any("schemes", router.Schemes()))
		i.transport = router
	}

	repoOpts := []core.RepositoryOption{core.WithTransport(i.transport)}
	if i.metrics != nil {
		repoOpts = append(repoOpts, core.WithMetrics(i.metrics))
	}
	repo, err := core.NewRepository(cfg, log, repoOpts...)
	if err != nil {
		return nil, err
	}
	i.repo = repo

	ttl := cfg.ManifestCacheTTL
	if ttl == 0 {
		ttl = manifest.DefaultCacheTTL
	}
	i.loader = manifest.NewLoader(i.transport, opts.ManifestURL, manifest.WithTTL(ttl))
	i.validator = NewEnvironmentValidator(opts.Root, i.baseURLOverride(), transport.DefaultHTTPClient(cfg.Timeout), log)

	return i, nil
}

// BuildTransport routes http, https and file URLs, and s3 URLs when any of
// urls uses that scheme or an S3 region is configured.
func BuildTransport(ctx context.Context, cfg *core.DownloadConfig, urls ...string) (*transport.Router, error) {
	router := core.DefaultTransport(cfg)

	needS3 := cfg.S3.Region != "" || cfg.S3.Endpoint != ""
	for _, raw := range urls {
		if u, err := url.Parse(raw); err == nil && strings.EqualFold(u.Scheme, "s3") {
			needS3 = true
		}
	}
	if needS3 {
		s3t, err := transport.NewS3Transport(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		router.Handle(s3t, "s3")
	}
	return router, nil
}

// Repository exposes the underlying engine.
func (i *Installer) Repository() *core.Repository {
	return i.repo
}

// Progress returns the counters shared with observers.
func (i *Installer) Progress() *core.InstallProgress {
	return i.progress
}

// Install makes every manifest asset present and correct, downloading only
// what is missing or corrupt.
func (i *Installer) Install(ctx context.Context) error {
	var m *manifest.Manifest
	return i.run(ctx, OpInstall, func(ctx context.Context, res *data.RunResult) []InstallStep {
		return []InstallStep{
			i.loadStep(&m),
			i.validateStep(&m),
			{
				Name:      "Sync assets",
				Operation: "installer.sync",
				Category:  apperrors.ErrCategoryNetwork,
				Fn: func(ctx context.Context) error {
					i.progress.SetStep(1, 1)
					return i.repo.Sync(ctx, i.syncRequest(m, m.Assets, false))
				},
			},
			i.snapshotStep(&m),
		}
	})
}

// Update diffs the content root against the manifest (step 1 of 2) and then
// re-downloads every mismatched asset (step 2 of 2).
func (i *Installer) Update(ctx context.Context) error {
	var (
		m          *manifest.Manifest
		mismatched []manifest.Entry
	)
	return i.run(ctx, OpUpdate, func(ctx context.Context, res *data.RunResult) []InstallStep {
		return []InstallStep{
			i.loadStep(&m),
			i.validateStep(&m),
			{
				Name:      "Verify assets",
				Operation: "installer.diff",
				Category:  apperrors.ErrCategorySystem,
				Fn: func(ctx context.Context) error {
					i.progress.SetStep(1, 2)
					i.stage(core.StageVerify)
					var err error
					mismatched, err = i.repo.FindMismatched(ctx, i.opts.Root, m.Assets, i.progress, i.onProgress)
					res.MismatchedAssets = int64(len(mismatched))
					return err
				},
			},
			{
				Name:      "Download mismatched assets",
				Operation: "installer.sync",
				Category:  apperrors.ErrCategoryNetwork,
				Fn: func(ctx context.Context) error {
					i.progress.SetStep(2, 2)
					if len(mismatched) == 0 {
						i.log.InfoContext(ctx, "content root is up to date")
						return nil
					}
					if i.confirm != nil {
						ok, err := i.confirm.Confirm("Repair " + humanize.Comma(int64(len(mismatched))) +
							" assets (" + humanize.IBytes(uint64(manifest.TotalSize(mismatched))) + ")")
						if err != nil {
							return err
						}
						if !ok {
							return ErrDeclined
						}
					}
					return i.repo.Sync(ctx, i.syncRequest(m, mismatched, true))
				},
			},
			i.snapshotStep(&m),
		}
	})
}

// Verify reports the mismatched assets without changing anything.
func (i *Installer) Verify(ctx context.Context) ([]manifest.Entry, error) {
	var (
		m          *manifest.Manifest
		mismatched []manifest.Entry
	)
	err := i.run(ctx, OpVerify, func(ctx context.Context, res *data.RunResult) []InstallStep {
		return []InstallStep{
			i.loadStep(&m),
			{
				Name:      "Verify assets",
				Operation: "installer.diff",
				Category:  apperrors.ErrCategorySystem,
				Fn: func(ctx context.Context) error {
					i.progress.SetStep(1, 1)
					i.stage(core.StageVerify)
					var err error
					mismatched, err = i.repo.FindMismatched(ctx, i.opts.Root, m.Assets, i.progress, i.onProgress)
					res.MismatchedAssets = int64(len(mismatched))
					return err
				},
			},
		}
	})
	return mismatched, err
}

// Status summarises the content root without hashing any file.
func (i *Installer) Status(ctx context.Context) (ui.Status, error) {
	st := ui.Status{Root: i.opts.Root}

	m, err := i.loader.Load(ctx)
	if err != nil {
		return st, err
	}
	st.TotalAssets = len(m.Assets)
	st.TotalBytes = manifest.TotalSize(m.Assets)
	if st.DownloadedBytes, err = i.repo.DownloadedSize(i.opts.Root, m.Assets); err != nil {
		return st, err
	}

	if snap, err := manifest.ReadSnapshot(i.opts.Root); err == nil {
		st.SnapshotVersion = snap.Version
	} else if !stdErrors.Is(err, os.ErrNotExist) {
		i.log.WarnContext(ctx, "failed to read local snapshot", logger.Error(err))
	}

	if i.store != nil {
		last, err := i.store.LastRun(ctx, i.opts.Root)
		if err != nil {
			return st, err
		}
		st.LastRun = last
	}
	return st, nil
}

// History lists recorded runs, most recent first.
func (i *Installer) History(ctx context.Context, limit int) ([]data.Run, error) {
	if i.store == nil {
		return nil, nil
	}
	return i.store.ListRuns(ctx, limit)
}

type stepsFunc func(ctx context.Context, res *data.RunResult) []InstallStep

// run executes an operation: it emits the preparing stage, records the run,
// executes the steps and reports the outcome.
func (i *Installer) run(ctx context.Context, op string, build stepsFunc) (err error) {
	runID := uuid.NewString()
	ctx = logger.ContextWithTrace(ctx, logger.TraceContext{RunID: runID, Operation: op, Root: i.opts.Root})
	started := time.Now()

	i.progress.Reset(0, 0)
	i.progress.SetStep(0, 0)
	i.stage(core.StagePreparing)

	if i.store != nil {
		rec := &data.Run{
			ID:          runID,
			Operation:   op,
			Root:        i.opts.Root,
			ManifestURL: i.opts.ManifestURL,
			Host:        system.Detect().Hostname,
			StartedAt:   started,
		}
		if err := i.store.StartRun(ctx, rec); err != nil {
			i.log.WarnContext(ctx, "failed to record run", logger.Error(err))
		}
	}

	var res data.RunResult
	defer func() {
		snap := i.progress.Snapshot()
		res.TotalAssets = snap.TotalAssets
		res.TotalBytes = snap.TotalBytes
		res.TransferredBytes = snap.TransferredBytes
		res.Err = err

		if i.metrics != nil {
			i.metrics.ObserveRun(op, time.Since(started), err)
		}
		if i.store != nil {
			if ferr := i.store.FinishRun(context.WithoutCancel(ctx), runID, res); ferr != nil {
				i.log.WarnContext(ctx, "failed to finish run record", logger.Error(ferr))
			}
		}
		if err != nil {
			errlog.Error(ctx, i.log, op+" failed", err)
			return
		}
		i.log.InfoContext(ctx, op+" complete",
			logger.Duration("elapsed", time.Since(started).Round(time.Millisecond)),
			logger.Int64("mismatched", res.MismatchedAssets),
		)
	}()

	pipeline := NewPipeline(i.console, i.log, build(ctx, &res), func(step InstallStep, err error) error {
		return wrapStepError(step, err)
	})
	return pipeline.Execute(ctx)
}

func (i *Installer) loadStep(m **manifest.Manifest) InstallStep {
	return InstallStep{
		Name:      "Load manifest",
		Operation: "installer.loadManifest",
		Category:  apperrors.ErrCategoryValidation,
		Spinner:   true,
		Fn: func(ctx context.Context) error {
			loaded, err := i.loader.Load(ctx)
			if err != nil {
				return err
			}
			if err := loaded.ValidateNonEmpty(); err != nil {
				return err
			}
			*m = loaded
			i.log.DebugContext(ctx, "manifest loaded",
				logger.Int("assets", len(loaded.Assets)),
				logger.Int64("total_bytes", manifest.TotalSize(loaded.Assets)),
			)
			return nil
		},
	}
}

func (i *Installer) validateStep(m **manifest.Manifest) InstallStep {
	return InstallStep{
		Name:      "Validate environment",
		Operation: "installer.validateEnvironment",
		Category:  apperrors.ErrCategorySystem,
		Spinner:   true,
		Fn: func(ctx context.Context) error {
			if i.opts.SkipValidation {
				return nil
			}
			present, err := i.repo.DownloadedSize(i.opts.Root, (*m).Assets)
			if err != nil {
				return err
			}
			return i.validator.Validate(ctx, manifest.TotalSize((*m).Assets)-present)
		},
	}
}

func (i *Installer) snapshotStep(m **manifest.Manifest) InstallStep {
	return InstallStep{
		Name:      "Write snapshot",
		Operation: "installer.writeSnapshot",
		Category:  apperrors.ErrCategorySystem,
		Spinner:   true,
		Fn: func(ctx context.Context) error {
			snap := manifest.NewSnapshot(*m, i.opts.Name, i.opts.Version, i.opts.Root)
			if err := manifest.WriteSnapshot(i.opts.Root, snap); err != nil {
				return apperrors.IOError(apperrors.CodeIOGeneric, "failed to write snapshot", err).
					WithField(apperrors.FieldPhase, string(apperrors.PhaseSnapshot))
			}
			if i.store != nil {
				return i.store.SaveSnapshot(ctx, i.opts.Root, snap)
			}
			return nil
		},
	}
}

func (i *Installer) syncRequest(m *manifest.Manifest, assets []manifest.Entry, overwrite bool) core.SyncRequest {
	return core.SyncRequest{
		Root:       i.opts.Root,
		Assets:     assets,
		BaseURL:    m.DownloadRoot(i.baseURL()),
		Progress:   i.progress,
		Overwrite:  overwrite,
		OnProgress: i.onProgress,
		OnStage:    i.onStage,
	}
}

func (i *Installer) stage(s core.Stage) {
	i.progress.SetStage(s)
	if i.onStage != nil {
		i.onStage(s)
	}
}

func (i *Installer) baseURLOverride() string {
	return strings.TrimRight(i.cfg.BaseURL, "/")
}

// baseURL is the configured base URL, or the directory the manifest is
// published in.
func (i *Installer) baseURL() string {
	if base := i.baseURLOverride(); base != "" {
		return base
	}
	u, err := url.Parse(i.opts.ManifestURL)
	if err != nil {
		return path.Dir(i.opts.ManifestURL)
	}
	u.Path = path.Dir(u.Path)
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimRight(u.String(), "/")
}
