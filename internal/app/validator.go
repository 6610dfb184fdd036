package app

import (
	"context"
	stdErrors "errors"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	"assetsync/internal/downloader/transport"
	apperrors "assetsync/internal/errors"
	"assetsync/internal/logger"
	"assetsync/internal/system"
	"assetsync/internal/timesync"
)

type validation struct {
	name      string
	operation string
	category  apperrors.ErrorCategory
	fn        func(ctx context.Context) error
}

// EnvironmentValidator checks that a sync can run before any asset is touched.
type EnvironmentValidator struct {
	root      string
	baseURL   string
	client    transport.HTTPClient
	freeSpace func(path string) (uint64, error)
	logger    logger.Logger
}

// NewEnvironmentValidator constructs a validator for root and baseURL.
func NewEnvironmentValidator(root, baseURL string, client transport.HTTPClient, log logger.Logger) *EnvironmentValidator {
	return &EnvironmentValidator{
		root:      root,
		baseURL:   baseURL,
		client:    client,
		freeSpace: system.FreeSpace,
		logger:    log,
	}
}

// Validate runs the host, content root, disk space, network and clock checks.
// required is the number of bytes the operation may still write.
func (v *EnvironmentValidator) Validate(ctx context.Context, required int64) error {
	return v.runValidations(ctx, []validation{
		{"Host", "validator.validateHost", apperrors.ErrCategorySystem, v.validateHost},
		{"Content root", "validator.validateRoot", apperrors.ErrCategorySystem, v.validateRoot},
		{"Disk Space", "validator.validateDiskSpace", apperrors.ErrCategorySystem, func(ctx context.Context) error {
			return v.validateDiskSpace(ctx, required)
		}},
		{"Network", "validator.validateNetwork", apperrors.ErrCategoryNetwork, v.validateNetwork},
		{"Clock", "validator.validateClock", apperrors.ErrCategoryNetwork, v.validateClock},
	})
}

func (v *EnvironmentValidator) runValidations(ctx context.Context, checks []validation) error {
	for _, check := range checks {
		if err := check.fn(ctx); err != nil {
			if appErr, ok := apperrors.As(err); ok {
				return appErr
			}
			return v.wrapError(check.category, check.operation, check.name+" validation failed", err, nil)
		}
	}
	return nil
}

func (v *EnvironmentValidator) validateHost(ctx context.Context) error {
	info := system.Detect()
	v.logger.DebugContext(ctx, "detected host",
		logger.String("os", info.OS),
		logger.String("arch", info.Architecture),
		logger.String("virt", info.VirtType),
	)
	return nil
}

func (v *EnvironmentValidator) validateRoot(context.Context) error {
	if strings.TrimSpace(v.root) == "" {
		return v.wrapError(apperrors.ErrCategoryConfig, "validator.validateRoot", "content root is not set", nil, nil)
	}
	if info, err := os.Stat(v.root); err == nil && !info.IsDir() {
		return v.wrapError(apperrors.ErrCategoryValidation, "validator.validateRoot", "content root is not a directory", nil,
			apperrors.Metadata{"path": v.root})
	}
	if err := os.MkdirAll(v.root, 0o755); err != nil {
		return v.wrapError(apperrors.ErrCategorySystem, "validator.validateRoot", "failed to create content root", err,
			apperrors.Metadata{"path": v.root})
	}

	probe, err := os.CreateTemp(v.root, ".assetsync-probe-*")
	if err != nil {
		return v.wrapError(apperrors.ErrCategorySystem, "validator.validateRoot", "content root is not writable", err,
			apperrors.Metadata{"path": v.root})
	}
	probe.Close()
	return os.Remove(probe.Name())
}

func (v *EnvironmentValidator) validateDiskSpace(ctx context.Context, required int64) error {
	available, err := v.freeSpace(v.root)
	if stdErrors.Is(err, system.ErrUnsupported) {
		v.logger.DebugContext(ctx, "free space check unsupported on this platform")
		return nil
	}
	if err != nil {
		return v.wrapError(
			apperrors.ErrCategorySystem,
			"validator.validateDiskSpace",
			"failed to get disk space information",
			err,
			apperrors.Metadata{"path": v.root},
		)
	}

	if required > 0 && available < uint64(required) {
		return apperrors.IOError(apperrors.CodeIOInsufficientSpace, "insufficient disk space", nil).
			WithModule("environment-validator").
			WithOperation("validator.validateDiskSpace").
			WithFields(apperrors.Metadata{
				"path":            v.root,
				"required_bytes":  required,
				"available_bytes": available,
			})
	}

	v.logger.DebugContext(ctx, "disk space available",
		logger.String("available", humanize.IBytes(available)),
		logger.String("required", humanize.IBytes(uint64(max(required, 0)))),
	)
	return nil
}

// validateNetwork confirms an HTTP base URL answers at all. Any response,
// including an error status for the bare directory, counts as reachable.
func (v *EnvironmentValidator) validateNetwork(ctx context.Context) error {
	if !v.isHTTP() {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, v.baseURL, nil)
	if err != nil {
		return v.wrapError(apperrors.ErrCategoryNetwork, "validator.validateNetwork", "invalid base url", err,
			apperrors.Metadata{"url": v.baseURL})
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return v.wrapError(
			apperrors.ErrCategoryNetwork,
			"validator.validateNetwork",
			"failed to establish HTTP connection",
			err,
			apperrors.Metadata{"url": v.baseURL},
		)
	}
	resp.Body.Close()

	v.logger.DebugContext(ctx, "base url reachable",
		logger.String("url", v.baseURL),
		logger.Int("status", resp.StatusCode),
	)
	return nil
}

// validateClock warns when the local clock is far from the mirror's. Signed
// S3 requests fail outright past timesync.MaxSkew.
func (v *EnvironmentValidator) validateClock(ctx context.Context) error {
	if !v.isHTTP() {
		return nil
	}
	res, err := timesync.Measure(ctx, v.client, timesync.Options{Sources: []string{v.baseURL}})
	if err != nil {
		v.logger.DebugContext(ctx, "clock check skipped", logger.Error(err))
		return nil
	}
	if res.Exceeds(timesync.MaxSkew) {
		v.logger.WarnContext(ctx, "local clock differs from the mirror",
			logger.String("source", res.Source),
			logger.Duration("skew", res.Skew),
		)
	}
	return nil
}

func (v *EnvironmentValidator) isHTTP() bool {
	u, err := url.Parse(v.baseURL)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && v.client != nil
}

func (v *EnvironmentValidator) wrapError(category apperrors.ErrorCategory, operation, message string, err error, metadata apperrors.Metadata) *apperrors.AppError {
	if appErr, ok := apperrors.As(err); ok {
		if appErr.Module == "" {
			appErr.WithModule("environment-validator")
		}
		if operation != "" && appErr.Operation == "" {
			appErr.WithOperation(operation)
		}
		if metadata != nil {
			appErr.WithFields(metadata)
		}
		return appErr
	}

	appErr := apperrors.New(category, codeForCategory(category), message, err).
		WithModule("environment-validator").
		WithOperation(operation)
	if category == apperrors.ErrCategoryNetwork {
		appErr.WithRecoverable(true)
	}
	if metadata != nil {
		appErr.WithFields(metadata)
	}
	return appErr
}
