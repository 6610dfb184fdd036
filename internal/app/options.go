package app

import (
	"net/url"
	"strings"

	apperrors "assetsync/internal/errors"
)

// Options identifies the content root and the manifest it follows.
type Options struct {
	Root        string
	ManifestURL string
	// Name and Version label the snapshot written after a successful sync.
	Name    string
	Version string
	// SkipValidation disables the environment checks.
	SkipValidation bool
}

var supportedSchemes = map[string]struct{}{
	"http":  {},
	"https": {},
	"file":  {},
	"s3":    {},
}

// Validate trims the inputs and checks that the manifest URL uses a scheme
// a transport exists for.
func (o *Options) Validate() error {
	if o == nil {
		return apperrors.New(
			apperrors.ErrCategoryValidation,
			apperrors.CodeValidationGeneric,
			"options are required",
			nil,
		)
	}

	o.Root = strings.TrimSpace(o.Root)
	if o.Root == "" {
		return apperrors.New(
			apperrors.ErrCategoryConfig,
			apperrors.CodeConfigGeneric,
			"content root is required",
			nil,
		)
	}

	o.ManifestURL = strings.TrimSpace(o.ManifestURL)
	if o.ManifestURL == "" {
		return apperrors.New(
			apperrors.ErrCategoryConfig,
			apperrors.CodeConfigGeneric,
			"manifest url is required",
			nil,
		)
	}

	u, err := url.Parse(o.ManifestURL)
	if err != nil {
		return apperrors.New(
			apperrors.ErrCategoryConfig,
			apperrors.CodeConfigGeneric,
			"manifest url is malformed",
			err,
		).WithField("url", o.ManifestURL)
	}
	if _, ok := supportedSchemes[strings.ToLower(u.Scheme)]; !ok {
		return apperrors.New(
			apperrors.ErrCategoryConfig,
			apperrors.CodeConfigGeneric,
			"unsupported manifest url scheme",
			nil,
		).WithField("scheme", u.Scheme)
	}

	if o.Name == "" {
		o.Name = "assets"
	}
	return nil
}
