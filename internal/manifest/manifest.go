// Package manifest models the declarative list of files a content root must
// contain and the snapshot written after a successful sync.
package manifest

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/klauspost/compress/zstd"

	apperrors "assetsync/internal/errors"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Manifest is the remote description of a content root.
type Manifest struct {
	// RootSuffix is appended to the base URL to form the download root.
	RootSuffix string  `json:"source"`
	Assets     []Entry `json:"file"`
}

// Decode reads a JSON manifest, transparently handling gzip and zstd
// compressed documents. The result is validated before it is returned.
func Decode(r io.Reader) (*Manifest, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(len(zstdMagic))

	var src io.Reader = br
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, apperrors.ManifestError(apperrors.CodeManifestDecode, "failed to open gzip manifest", err)
		}
		defer gz.Close()
		src = gz
	case bytes.HasPrefix(head, zstdMagic):
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, apperrors.ManifestError(apperrors.CodeManifestDecode, "failed to open zstd manifest", err)
		}
		defer zr.Close()
		src = zr
	}

	var m Manifest
	if err := json.NewDecoder(src).Decode(&m); err != nil {
		return nil, apperrors.ManifestError(apperrors.CodeManifestDecode, "failed to decode manifest", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks every entry before any I/O is attempted: paths must be
// non-empty, unique and stay under the root; sizes must be non-negative.
func (m *Manifest) Validate() error {
	seen := make(map[string]struct{}, len(m.Assets))
	for i, e := range m.Assets {
		if err := ValidateEntry(e); err != nil {
			return err.WithField("index", i)
		}
		key := path.Clean(e.Normalized())
		if _, dup := seen[key]; dup {
			return apperrors.ManifestError(apperrors.CodeManifestInvalidEntry, "duplicate asset path", nil).
				WithField(apperrors.FieldAsset, e.Path).
				WithField("index", i)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// ValidateNonEmpty is Validate plus a requirement that at least one asset is listed.
func (m *Manifest) ValidateNonEmpty() error {
	if len(m.Assets) == 0 {
		return apperrors.ManifestError(apperrors.CodeManifestEmpty, "manifest lists no assets", nil)
	}
	return m.Validate()
}

// ValidateEntry applies the per-entry rules of Validate.
func ValidateEntry(e Entry) *apperrors.AppError {
	switch {
	case strings.TrimSpace(e.Path) == "" || e.Normalized() == "" || path.Clean(e.Normalized()) == ".":
		return apperrors.ManifestError(apperrors.CodeManifestInvalidEntry, "asset path is empty", nil).
			WithField(apperrors.FieldAsset, e.Path)
	case escapesRoot(e.Path):
		return apperrors.ManifestError(apperrors.CodeManifestInvalidEntry, "asset path escapes the content root", nil).
			WithField(apperrors.FieldAsset, e.Path)
	case e.Size < 0:
		return apperrors.ManifestError(apperrors.CodeManifestInvalidEntry, fmt.Sprintf("asset size %d is negative", e.Size), nil).
			WithField(apperrors.FieldAsset, e.Path)
	}
	return nil
}

// DownloadRoot joins base with the manifest's root suffix.
func (m *Manifest) DownloadRoot(base string) string {
	suffix := strings.Trim(strings.ReplaceAll(m.RootSuffix, `\`, "/"), "/")
	if suffix == "" {
		return strings.TrimRight(base, "/")
	}
	return strings.TrimRight(base, "/") + "/" + suffix
}

// TotalSize sums the declared sizes of assets.
func TotalSize(assets []Entry) int64 {
	var total int64
	for _, e := range assets {
		total += e.Size
	}
	return total
}

// JoinURL appends the normalized relative path rel to base, escaping each segment.
func JoinURL(base, rel string) string {
	segments := strings.Split(NormalizePath(rel), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segments, "/")
}
