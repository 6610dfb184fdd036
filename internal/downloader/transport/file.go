package transport

import (
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"

	apperrors "assetsync/internal/errors"
)

// FileTransport serves file:// URLs from a local mirror.
type FileTransport struct{}

// Fetch implements Transport.
func (FileTransport) Fetch(ctx context.Context, rawURL string, offset int64) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "file" {
		return nil, apperrors.ConfigError(apperrors.CodeConfigGeneric, "invalid file url", err).
			WithModule(module).WithField("url", rawURL)
	}

	f, err := os.Open(filepath.FromSlash(u.Path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.TransferError(apperrors.CodeTransferHTTPStatus, "mirror file not found", err).
				WithModule(module).WithField("url", rawURL)
		}
		return nil, apperrors.TransferError(apperrors.CodeTransferConnectionFailed, "failed to open mirror file", err).
			WithModule(module).WithField("url", rawURL)
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, apperrors.TransferError(apperrors.CodeTransferConnectionFailed, "failed to seek mirror file", err).
				WithModule(module).WithField("url", rawURL)
		}
	}
	return f, nil
}
