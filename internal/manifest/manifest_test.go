package manifest

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "assetsync/internal/errors"
)

const sampleManifest = `{
  "source": "/res/v2/",
  "file": [
    {"hash": "11400714819323198485", "path": "data\\a.bin", "size": "10"},
    {"hash": 42, "path": "/b.bin", "size": 0},
    {"hash": "7", "path": "c/d.bin", "size": 1024}
  ]
}`

func TestDecodePlainJSON(t *testing.T) {
	m, err := Decode(strings.NewReader(sampleManifest))
	require.NoError(t, err)

	require.Len(t, m.Assets, 3)
	assert.Equal(t, "/res/v2/", m.RootSuffix)
	assert.Equal(t, "data/a.bin", m.Assets[0].Normalized())
	assert.Equal(t, int64(10), m.Assets[0].Size)
	assert.Equal(t, uint64(11400714819323198485), m.Assets[0].Hash.Uint64())
	assert.Equal(t, "b.bin", m.Assets[1].Normalized())
	assert.Equal(t, HashFromUint64(42), m.Assets[1].Hash)
	assert.Equal(t, int64(1034), TotalSize(m.Assets))
}

func TestDecodeCompressed(t *testing.T) {
	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	_, err := w.Write([]byte(sampleManifest))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	m, err := Decode(&gz)
	require.NoError(t, err)
	assert.Len(t, m.Assets, 3)

	var zs bytes.Buffer
	zw, err := zstd.NewWriter(&zs)
	require.NoError(t, err)
	_, err = zw.Write([]byte(sampleManifest))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	m, err = Decode(&zs)
	require.NoError(t, err)
	assert.Len(t, m.Assets, 3)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"file": [`))
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeManifestDecode))

	_, err = Decode(strings.NewReader(`{"file": [{"hash": "x", "path": "a", "size": 1}]}`))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeManifestDecode))
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name  string
		entry Entry
	}{
		{"empty path", Entry{Path: "", Size: 1}},
		{"only separators", Entry{Path: "//", Size: 1}},
		{"root itself", Entry{Path: "./", Size: 1}},
		{"parent segment", Entry{Path: "a/../../etc/passwd", Size: 1}},
		{"backslash parent", Entry{Path: `..\x`, Size: 1}},
		{"volume", Entry{Path: `C:\x`, Size: 1}},
		{"negative size", Entry{Path: "a", Size: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := &Manifest{Assets: []Entry{tc.entry}}
			err := m.Validate()
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.CodeManifestInvalidEntry))
		})
	}

	dup := &Manifest{Assets: []Entry{{Path: "a/b"}, {Path: `a\b`}}}
	assert.True(t, apperrors.HasCode(dup.Validate(), apperrors.CodeManifestInvalidEntry))

	for _, alias := range []string{"a//b", "a/./b", "/a/b/"} {
		m := &Manifest{Assets: []Entry{{Path: "a/b"}, {Path: alias}}}
		err := m.Validate()
		require.Error(t, err, alias)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeManifestInvalidEntry), alias)
	}

	empty := &Manifest{}
	assert.NoError(t, empty.Validate())
	assert.True(t, apperrors.HasCode(empty.ValidateNonEmpty(), apperrors.CodeManifestEmpty))
}

func TestHashByteOrder(t *testing.T) {
	h := HashFromUint64(0x0102030405060708)
	assert.Equal(t, Hash{8, 7, 6, 5, 4, 3, 2, 1}, h)
	assert.Equal(t, Hash{1, 2, 3, 4, 5, 6, 7, 8}, h.Reversed())
	assert.Equal(t, "0807060504030201", h.Hex())
}

func TestDownloadRootAndJoinURL(t *testing.T) {
	m := &Manifest{RootSuffix: "/res/v2/"}
	assert.Equal(t, "https://cdn.example/res/v2", m.DownloadRoot("https://cdn.example/"))
	assert.Equal(t, "https://cdn.example", (&Manifest{}).DownloadRoot("https://cdn.example/"))

	assert.Equal(t, "https://cdn.example/res/a%20b/c.bin", JoinURL("https://cdn.example/res/", `\a b\c.bin`))
}

type countingSource struct {
	body  string
	calls int
	err   error
}

func (s *countingSource) Fetch(_ context.Context, _ string, _ int64) (io.ReadCloser, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return io.NopCloser(strings.NewReader(s.body)), nil
}

func TestLoaderCachesUntilTTL(t *testing.T) {
	src := &countingSource{body: sampleManifest}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLoader(src, "https://cdn.example/manifest.json", WithClock(func() time.Time { return now }))

	_, err := l.Load(context.Background())
	require.NoError(t, err)
	now = now.Add(9 * time.Minute)
	_, err = l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)

	now = now.Add(2 * time.Minute)
	_, err = l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)

	l.Invalidate()
	_, err = l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, src.calls)
}

func TestLoaderFetchFailure(t *testing.T) {
	l := NewLoader(&countingSource{err: errors.New("dial tcp: refused")}, "https://x/m.json")
	_, err := l.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "phase=manifest")
}

func TestSnapshotRoundTrip(t *testing.T) {
	root := t.TempDir()
	m, err := Decode(strings.NewReader(sampleManifest))
	require.NoError(t, err)

	snap := NewSnapshot(m, "hbr", "1.2.3", "/games/hbr")
	assert.True(t, snap.Verify())
	assert.Equal(t, Signature("hbr", "1.2.3", "/games/hbr"), snap.Signature)
	assert.Equal(t, Signature("data\\a.bin", "11400714819323198485", "10"), snap.Files[0].Signature)

	require.NoError(t, WriteSnapshot(root, snap))

	raw, err := os.ReadFile(filepath.Join(root, SnapshotFileName))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  \"basis\": \"/games/hbr\"")
	assert.Contains(t, string(raw), `"size": "1024"`)

	loaded, err := ReadSnapshot(root)
	require.NoError(t, err)
	assert.True(t, loaded.Verify())

	back, err := loaded.Manifest()
	require.NoError(t, err)
	assert.Equal(t, m.Assets, back.Assets)

	loaded.Files[0].Size = "11"
	assert.False(t, loaded.Verify())
}

func TestReadSnapshotMissing(t *testing.T) {
	_, err := ReadSnapshot(t.TempDir())
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
