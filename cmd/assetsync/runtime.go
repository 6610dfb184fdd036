package main

import (
	"context"
	stdErrors "errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"assetsync/internal/app"
	"assetsync/internal/data"
	"assetsync/internal/downloader/core"
	"assetsync/internal/logger"
	"assetsync/internal/metrics"
	"assetsync/internal/ui"
)

// runtime holds everything a command needs, built from the global flags.
type runtime struct {
	log       logger.Logger
	cfg       *core.DownloadConfig
	store     *data.SQLiteRepository
	recorder  *metrics.Recorder
	server    *http.Server
	console   *ui.Console
	printer   *ui.Printer
	renderer  *ui.ProgressRenderer
	installer *app.Installer
}

func loadConfig(c *cli.Context) (*core.DownloadConfig, error) {
	base, err := core.BaseConfig()
	if err != nil {
		return nil, err
	}
	configs := []*core.DownloadConfig{base, {UserAgent: "assetsync/" + appVersion}}

	if path := c.String("config"); path != "" {
		fileCfg, err := core.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		configs = append(configs, fileCfg)
	}

	configs = append(configs, &core.DownloadConfig{
		BaseURL:     c.String("base-url"),
		ManifestURL: c.String("manifest"),
		Concurrency: c.Int("concurrency"),
	})
	return core.MergeConfigs(configs...)
}

func newRuntime(c *cli.Context, extra ...app.Option) (*runtime, error) {
	log, err := logger.New(logger.Config{
		Level:  c.String("log-level"),
		Format: c.String("log-format"),
		Output: c.String("log-output"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to configure logging")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	root, err := filepath.Abs(c.String("root"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve content root")
	}

	rt := &runtime{
		log:      log,
		cfg:      cfg,
		recorder: metrics.New(),
		console:  ui.NewConsole(log, os.Stderr),
		printer:  ui.NewPrinter(os.Stdout),
		renderer: ui.NewProgressRenderer(os.Stderr),
	}

	options := []app.Option{
		app.WithMetrics(rt.recorder),
		app.WithConsole(rt.console),
		app.WithProgress(rt.renderer.Update, rt.renderer.Stage),
	}

	if !c.Bool("no-history") {
		dbPath := c.String("db")
		if dbPath == "" {
			dbPath = filepath.Join(root, ".assetsync", "history.db")
		}
		store, err := data.Open(c.Context, dbPath)
		if err != nil {
			return nil, err
		}
		rt.store = store
		options = append(options, app.WithStore(store))
	}

	options = append(options, extra...)

	if addr := c.String("metrics-addr"); addr != "" {
		rt.serveMetrics(addr)
	}

	rt.installer, err = app.NewInstaller(c.Context, cfg, app.Options{
		Root:           root,
		ManifestURL:    cfg.ManifestURL,
		Version:        appVersion,
		SkipValidation: c.Bool("skip-checks"),
	}, log, options...)
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) serveMetrics(addr string) {
	rt.server = &http.Server{
		Addr:              addr,
		Handler:           rt.recorder.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := rt.server.ListenAndServe(); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			rt.log.Warn("metrics endpoint stopped: %v", err)
		}
	}()
	rt.log.Debug("serving metrics on %s", addr)
}

// Close releases the history store and stops the metrics endpoint.
func (rt *runtime) Close() {
	if rt.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = rt.server.Shutdown(ctx)
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			rt.log.Warn("failed to close history database: %v", err)
		}
	}
	if zl, ok := rt.log.(*logger.ZapLogger); ok {
		_ = zl.Sync()
	}
}
