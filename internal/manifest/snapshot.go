package manifest

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// SnapshotFileName is written at the content root after a successful sync.
const SnapshotFileName = "manifest.json"

// Snapshot is the local record of what the content root was last synced to.
type Snapshot struct {
	Basis     string         `json:"basis,omitempty"`
	Name      string         `json:"name,omitempty"`
	Version   string         `json:"version,omitempty"`
	Source    string         `json:"source,omitempty"`
	Files     []SnapshotFile `json:"files,omitempty"`
	Signature string         `json:"vc"`
}

// SnapshotFile is one entry of a Snapshot.
type SnapshotFile struct {
	Hash      string `json:"hash"`
	Path      string `json:"path"`
	Size      string `json:"size"`
	Signature string `json:"vc"`
}

// NewSnapshot records m under the given name, version and basis, signing
// the header and each entry.
func NewSnapshot(m *Manifest, name, version, basis string) *Snapshot {
	s := &Snapshot{
		Basis:   basis,
		Name:    name,
		Version: version,
		Source:  m.RootSuffix,
		Files:   make([]SnapshotFile, 0, len(m.Assets)),
	}
	for _, e := range m.Assets {
		f := SnapshotFile{
			Hash: e.Hash.String(),
			Path: e.Path,
			Size: strconv.FormatInt(e.Size, 10),
		}
		f.Signature = Signature(f.Path, f.Hash, f.Size)
		s.Files = append(s.Files, f)
	}
	s.Signature = Signature(name, version, basis)
	return s
}

// Signature is the base64 MD5 of parts joined by ";".
func Signature(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, ";")))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Verify reports whether every signature in s matches its fields.
func (s *Snapshot) Verify() bool {
	if s.Signature != Signature(s.Name, s.Version, s.Basis) {
		return false
	}
	for _, f := range s.Files {
		if f.Signature != Signature(f.Path, f.Hash, f.Size) {
			return false
		}
	}
	return true
}

// Manifest converts the snapshot back into a Manifest.
func (s *Snapshot) Manifest() (*Manifest, error) {
	m := &Manifest{RootSuffix: s.Source, Assets: make([]Entry, 0, len(s.Files))}
	for _, f := range s.Files {
		h, err := ParseHash(f.Hash)
		if err != nil {
			return nil, errors.Wrapf(err, "snapshot entry %s", f.Path)
		}
		size, err := strconv.ParseInt(f.Size, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "snapshot entry %s", f.Path)
		}
		m.Assets = append(m.Assets, Entry{Path: f.Path, Size: size, Hash: h})
	}
	return m, nil
}

// Marshal renders s as two-space indented JSON with a trailing newline.
func (s *Snapshot) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode snapshot")
	}
	return append(data, '\n'), nil
}

// WriteSnapshot writes s to root/manifest.json through a temporary file, so
// readers never observe a half-written snapshot.
func WriteSnapshot(root string, s *Snapshot) error {
	data, err := s.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", root)
	}

	target := filepath.Join(root, SnapshotFileName)
	if info, err := os.Stat(target); err == nil && info.Mode().Perm()&0o200 == 0 {
		_ = os.Chmod(target, info.Mode().Perm()|0o200)
	}

	tmp, err := os.CreateTemp(root, SnapshotFileName+".*")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary snapshot")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write snapshot")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close snapshot")
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return errors.Wrapf(err, "failed to move snapshot into %s", target)
	}
	return nil
}

// ReadSnapshot loads root/manifest.json. A missing file yields os.ErrNotExist.
func ReadSnapshot(root string) (*Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(root, SnapshotFileName))
	if err != nil {
		return nil, err
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, "failed to decode snapshot")
	}
	return &s, nil
}
