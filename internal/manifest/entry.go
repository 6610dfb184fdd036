package manifest

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Entry declares one file the content root must hold.
type Entry struct {
	Path string
	Size int64
	Hash Hash
}

type wireEntry struct {
	Hash Hash            `json:"hash"`
	Path string          `json:"path"`
	Size json.RawMessage `json:"size"`
}

// UnmarshalJSON accepts size as either a number or a numeric string.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var w wireEntry
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var size int64
	if len(w.Size) > 0 && string(w.Size) != "null" {
		s, err := numericToken(w.Size)
		if err != nil {
			return errors.Wrapf(err, "size of %q", w.Path)
		}
		if size, err = strconv.ParseInt(s, 10, 64); err != nil {
			return errors.Wrapf(err, "size of %q", w.Path)
		}
	}
	*e = Entry{Path: w.Path, Size: size, Hash: w.Hash}
	return nil
}

func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Hash Hash   `json:"hash"`
		Path string `json:"path"`
		Size string `json:"size"`
	}{e.Hash, e.Path, strconv.FormatInt(e.Size, 10)})
}

// Normalized returns the entry path with backslashes turned into slashes and
// leading separators removed.
func (e Entry) Normalized() string {
	return NormalizePath(e.Path)
}

// NormalizePath applies the Entry.Normalized rules to p.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	return strings.TrimLeft(p, "/")
}

// escapesRoot reports whether raw, once normalized, could resolve outside
// the content root. Leading separators are stripped by normalization and are
// not an escape; parent segments and volume names are.
func escapesRoot(raw string) bool {
	p := NormalizePath(raw)
	if len(p) > 1 && p[1] == ':' {
		return true
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}
