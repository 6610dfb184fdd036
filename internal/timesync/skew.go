// Package timesync measures how far the local clock is from the clock of a
// remote HTTP server, using the server's Date header.
package timesync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "assetsync/internal/errors"
)

// MaxSkew is the largest clock difference signed S3 requests tolerate.
const MaxSkew = 15 * time.Minute

// HTTPClient is the subset of *http.Client used here.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options controls how Measure queries its sources.
type Options struct {
	Sources []string
	Timeout time.Duration
	// Now replaces time.Now, for tests.
	Now func() time.Time
}

// Result captures the clock reading of the first source that answered.
type Result struct {
	Source      string
	NetworkTime time.Time
	// Skew is local time minus network time.
	Skew time.Duration
}

// Exceeds reports whether the absolute skew is larger than limit.
func (r *Result) Exceeds(limit time.Duration) bool {
	skew := r.Skew
	if skew < 0 {
		skew = -skew
	}
	return skew > limit
}

// Measure reads the Date header of each source in turn and returns the skew
// against the first one that provides it. Date headers have one second
// resolution, so skews below that are noise.
func Measure(ctx context.Context, client HTTPClient, opts Options) (*Result, error) {
	if len(opts.Sources) == 0 {
		return nil, newTimesyncError(apperrors.ErrCategoryConfig, "Measure", "no time sources configured", nil)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if client == nil {
		client = &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}

	var failures []string
	for _, source := range opts.Sources {
		reqCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		started := opts.Now()
		networkTime, err := fetchNetworkTime(reqCtx, client, source)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failures = append(failures, fmt.Sprintf("%s: %v", source, err))
			continue
		}

		// Compare against the midpoint of the request.
		finished := opts.Now()
		local := started.Add(finished.Sub(started) / 2)
		return &Result{
			Source:      source,
			NetworkTime: networkTime,
			Skew:        local.Sub(networkTime).Round(time.Second),
		}, nil
	}

	return nil, newTimesyncError(apperrors.ErrCategoryNetwork, "Measure", "failed to fetch network time from sources", nil).
		WithField("failures", strings.Join(failures, "; "))
}

func fetchNetworkTime(ctx context.Context, client HTTPClient, source string) (time.Time, error) {
	wrapErr := func(err error) error {
		return newTimesyncError(apperrors.ErrCategoryNetwork, "fetchNetworkTime", "failed to fetch time", err).
			WithField("source", source)
	}

	doRequest := func(method string) (string, error) {
		req, err := http.NewRequestWithContext(ctx, method, source, nil)
		if err != nil {
			return "", fmt.Errorf("build %s request: %w", method, err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("%s request: %w", method, err)
		}
		defer resp.Body.Close()

		if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10)); err != nil {
			return "", fmt.Errorf("drain %s response: %w", method, err)
		}

		return resp.Header.Get("Date"), nil
	}

	dateHeader, err := doRequest(http.MethodHead)
	if err != nil {
		return time.Time{}, wrapErr(err)
	}

	if dateHeader == "" {
		dateHeader, err = doRequest(http.MethodGet)
		if err != nil {
			return time.Time{}, wrapErr(err)
		}
	}

	if dateHeader == "" {
		return time.Time{}, newTimesyncError(apperrors.ErrCategoryNetwork, "fetchNetworkTime", "no Date header from source", nil).
			WithField("source", source)
	}

	parsed, err := http.ParseTime(dateHeader)
	if err != nil {
		return time.Time{}, newTimesyncError(apperrors.ErrCategoryNetwork, "fetchNetworkTime", "invalid Date header", err).
			WithField("source", source).
			WithField("date_header", dateHeader)
	}

	return parsed.UTC(), nil
}

var categoryToCode = map[apperrors.ErrorCategory]string{
	apperrors.ErrCategoryNetwork: apperrors.CodeNetworkGeneric,
	apperrors.ErrCategoryConfig:  apperrors.CodeConfigGeneric,
}

func newTimesyncError(category apperrors.ErrorCategory, operation, message string, err error) *apperrors.AppError {
	code, ok := categoryToCode[category]
	if !ok {
		code = apperrors.CodeSystemGeneric
	}

	return apperrors.New(category, code, message, err).
		WithModule("timesync").
		WithOperation(operation)
}
