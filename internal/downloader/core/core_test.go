package core

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "assetsync/internal/errors"
	"assetsync/internal/logger"
	"assetsync/internal/manifest"
)

const testBaseURL = "mem://assets/root"

// memTransport serves byte slices keyed by URL.
type memTransport struct {
	mu    sync.Mutex
	files map[string][]byte
	fail  map[string]error
	calls map[string]int
}

func newMemTransport() *memTransport {
	return &memTransport{
		files: make(map[string][]byte),
		fail:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (m *memTransport) serve(path string, data []byte) {
	m.files[manifest.JoinURL(testBaseURL, path)] = data
}

func (m *memTransport) failWith(path string, err error) {
	m.fail[manifest.JoinURL(testBaseURL, path)] = err
}

func (m *memTransport) callsFor(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[manifest.JoinURL(testBaseURL, path)]
}

func (m *memTransport) Fetch(_ context.Context, url string, offset int64) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[url]++
	if err, ok := m.fail[url]; ok {
		return nil, err
	}
	data, ok := m.files[url]
	if !ok {
		return nil, apperrors.TransferError(apperrors.CodeTransferHTTPStatus, "not found", nil).WithField("status", 404)
	}
	return io.NopCloser(bytes.NewReader(data[offset:])), nil
}

type countingMetrics struct {
	noopMetrics
	mu       sync.Mutex
	outcomes map[string]int
	retries  int
}

func (m *countingMetrics) AssetFetched(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[string]int)
	}
	m.outcomes[outcome]++
}

func (m *countingMetrics) TransferRetry() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries++
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	data := make([]byte, n)
	rand.New(rand.NewSource(int64(n))).Read(data)
	return data
}

func entryFor(t *testing.T, path string, data []byte) manifest.Entry {
	t.Helper()
	h, err := Checksum(bytes.NewReader(data))
	require.NoError(t, err)
	return manifest.Entry{Path: path, Size: int64(len(data)), Hash: h}
}

func writeFile(t *testing.T, root, rel string, data []byte) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func newTestRepo(t *testing.T, tr *memTransport, opts ...RepositoryOption) *Repository {
	t.Helper()
	retries := 2
	cfg := &DownloadConfig{
		Concurrency: 4,
		MaxRetries:  &retries,
		RetryDelay:  time.Millisecond,
		ReadTimeout: time.Second,
	}
	base := []RepositoryOption{
		WithTransport(tr),
		WithFreeSpaceFunc(func(string, int64) error { return nil }),
	}
	repo, err := NewRepository(cfg, logger.NewMockLogger(), append(base, opts...)...)
	require.NoError(t, err)
	return repo
}

func TestVerifierByteOrderTolerance(t *testing.T) {
	data := randomBytes(t, 300<<10)
	h, err := Checksum(bytes.NewReader(data))
	require.NoError(t, err)

	v := NewVerifier(logger.NewMockLogger(), nil)
	for _, expected := range []manifest.Hash{h, h.Reversed()} {
		var read int64
		ok, err := v.Verify(context.Background(), bytes.NewReader(data), expected, func(n int64) { read += n })
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(len(data)), read)
	}
}

func TestVerifierMismatchRollsBack(t *testing.T) {
	log := logger.NewMockLogger()
	v := NewVerifier(log, nil)

	var read int64
	var sawPositive bool
	ok, err := v.Verify(context.Background(), bytes.NewReader([]byte("corrupted")), manifest.HashFromUint64(42), func(n int64) {
		if n > 0 {
			sawPositive = true
		}
		read += n
	})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, sawPositive)
	assert.Zero(t, read)
	assert.True(t, log.HasEntry(logger.LevelError, "checksum mismatch"))
}

func TestVerifierReadErrorRollsBack(t *testing.T) {
	v := NewVerifier(logger.NewMockLogger(), nil)
	r := io.MultiReader(bytes.NewReader([]byte("partial data")), iotest.ErrReader(errors.New("disk gone")))

	var read int64
	ok, err := v.Verify(context.Background(), r, manifest.HashFromUint64(1), func(n int64) { read += n })
	require.Error(t, err)
	assert.False(t, ok)
	assert.Zero(t, read)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeIOGeneric))
}

func TestVerifierCancelled(t *testing.T) {
	v := NewVerifier(logger.NewMockLogger(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.Verify(ctx, bytes.NewReader([]byte("x")), manifest.Hash{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScenarioOneMissingAsset(t *testing.T) {
	root := t.TempDir()
	small := randomBytes(t, 10)
	large := randomBytes(t, 1024)
	assets := []manifest.Entry{
		entryFor(t, "a/small.bin", small),
		entryFor(t, "empty.bin", nil),
		entryFor(t, "b/large.bin", large),
	}
	writeFile(t, root, "a/small.bin", small)
	writeFile(t, root, "empty.bin", nil)

	tr := newMemTransport()
	tr.serve("b/large.bin", large)
	repo := newTestRepo(t, tr)
	ctx := context.Background()

	progress := &InstallProgress{}
	mismatched, err := repo.FindMismatched(ctx, root, assets, progress, nil)
	require.NoError(t, err)
	require.Len(t, mismatched, 1)
	assert.Equal(t, "b/large.bin", mismatched[0].Path)

	snap := progress.Snapshot()
	assert.Equal(t, int64(1024), snap.TransferredBytes)
	assert.Equal(t, int64(3), snap.CompletedAssets)
	assert.Equal(t, int64(1034), snap.TotalBytes)
	assert.Equal(t, int64(10), snap.VerifiedBytes)
	assert.Equal(t, StageVerify, snap.Stage)

	err = repo.Sync(ctx, SyncRequest{
		Root:      root,
		Assets:    mismatched,
		BaseURL:   testBaseURL,
		Progress:  progress,
		Overwrite: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, tr.callsFor("b/large.bin"))

	got, err := os.ReadFile(filepath.Join(root, "b", "large.bin"))
	require.NoError(t, err)
	assert.Len(t, got, 1024)

	f, err := os.Open(filepath.Join(root, "b", "large.bin"))
	require.NoError(t, err)
	defer f.Close()
	ok, err := repo.Verifier().Verify(ctx, f, assets[2].Hash, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	again, err := repo.FindMismatched(ctx, root, assets, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestFindMismatchedCorruptedContent(t *testing.T) {
	root := t.TempDir()
	good := randomBytes(t, 2048)
	bad := append([]byte(nil), good...)
	bad[100] ^= 0xff
	writeFile(t, root, "data.pak", bad)

	repo := newTestRepo(t, newMemTransport())
	progress := &InstallProgress{}
	mismatched, err := repo.FindMismatched(context.Background(), root, []manifest.Entry{entryFor(t, "data.pak", good)}, progress, nil)
	require.NoError(t, err)
	require.Len(t, mismatched, 1)

	snap := progress.Snapshot()
	assert.Equal(t, int64(2048), snap.TotalBytes)
	assert.Equal(t, int64(2048), snap.TransferredBytes)
	assert.Zero(t, snap.VerifiedBytes)
}

func TestFindMismatchedWrongLengthIsNotHashed(t *testing.T) {
	root := t.TempDir()
	data := randomBytes(t, 64)
	writeFile(t, root, "short.bin", data[:10])

	repo := newTestRepo(t, newMemTransport())
	progress := &InstallProgress{}
	mismatched, err := repo.FindMismatched(context.Background(), root, []manifest.Entry{entryFor(t, "short.bin", data)}, progress, nil)
	require.NoError(t, err)
	assert.Len(t, mismatched, 1)
	assert.Zero(t, progress.Snapshot().VerifiedBytes)
}

func TestFindMismatchedDirectoryInTheWay(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "asset.bin"), 0o755))

	repo := newTestRepo(t, newMemTransport())
	_, err := repo.FindMismatched(context.Background(), root, []manifest.Entry{{Path: "asset.bin", Size: 4}}, nil, nil)
	require.Error(t, err)

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "asset.bin", appErr.Asset())
	assert.Equal(t, string(apperrors.PhaseDiff), appErr.Metadata[apperrors.FieldPhase])
}

func TestSyncSkipsCurrentFiles(t *testing.T) {
	root := t.TempDir()
	data := randomBytes(t, 512)
	writeFile(t, root, "ok.bin", data)

	tr := newMemTransport()
	tr.serve("ok.bin", data)
	m := &countingMetrics{}
	repo := newTestRepo(t, tr, WithMetrics(m))

	progress := &InstallProgress{}
	err := repo.Sync(context.Background(), SyncRequest{
		Root:     root,
		Assets:   []manifest.Entry{entryFor(t, "ok.bin", data)},
		BaseURL:  testBaseURL,
		Progress: progress,
	})
	require.NoError(t, err)
	assert.Zero(t, tr.callsFor("ok.bin"))
	assert.Equal(t, 1, m.outcomes[OutcomeSkipped])
	assert.Equal(t, int64(512), progress.Snapshot().TransferredBytes)
}

func TestSyncOverwriteDownloadsAnyway(t *testing.T) {
	root := t.TempDir()
	data := randomBytes(t, 512)
	writeFile(t, root, "ok.bin", data)

	tr := newMemTransport()
	tr.serve("ok.bin", data)
	repo := newTestRepo(t, tr)

	err := repo.Sync(context.Background(), SyncRequest{
		Root:      root,
		Assets:    []manifest.Entry{entryFor(t, "ok.bin", data)},
		BaseURL:   testBaseURL,
		Overwrite: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, tr.callsFor("ok.bin"))
}

func TestSyncReplacesCorruptedAndClearsReadOnly(t *testing.T) {
	root := t.TempDir()
	data := randomBytes(t, 4096)
	corrupted := append([]byte(nil), data...)
	corrupted[0] ^= 0x01
	writeFile(t, root, "ro/file.bin", corrupted)
	require.NoError(t, os.Chmod(filepath.Join(root, "ro", "file.bin"), 0o444))

	tr := newMemTransport()
	tr.serve("ro/file.bin", data)
	repo := newTestRepo(t, tr)

	var mu sync.Mutex
	var stages []Stage
	progress := &InstallProgress{}
	err := repo.Sync(context.Background(), SyncRequest{
		Root:     root,
		Assets:   []manifest.Entry{entryFor(t, "ro/file.bin", data)},
		BaseURL:  testBaseURL,
		Progress: progress,
		OnStage: func(s Stage) {
			mu.Lock()
			stages = append(stages, s)
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(root, "ro", "file.bin"))
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, []Stage{StageDownload}, stages)
	assert.Equal(t, int64(4096), progress.Snapshot().TransferredBytes)
}

func TestSyncProgressMonotonic(t *testing.T) {
	root := t.TempDir()
	tr := newMemTransport()
	var assets []manifest.Entry
	for i, size := range []int{70 << 10, 1, 0, 200 << 10, 33} {
		data := randomBytes(t, size+i)
		path := filepath.ToSlash(filepath.Join("dir", string(rune('a'+i))+".bin"))
		tr.serve(path, data)
		assets = append(assets, entryFor(t, path, data))
	}
	// One present but corrupted file exercises the verifier rollback.
	corrupted := randomBytes(t, int(assets[0].Size))
	corrupted[7] ^= 0x80
	writeFile(t, root, assets[0].Path, corrupted)

	cfg := &DownloadConfig{Concurrency: 1, ChunkSize: 4096, RetryDelay: time.Millisecond}
	repo, err := NewRepository(cfg, logger.NewMockLogger(),
		WithTransport(tr),
		WithFreeSpaceFunc(func(string, int64) error { return nil }),
	)
	require.NoError(t, err)

	var mu sync.Mutex
	var snaps []Snapshot
	err = repo.Sync(context.Background(), SyncRequest{
		Root:    root,
		Assets:  assets,
		BaseURL: testBaseURL,
		OnProgress: func(s Snapshot) {
			mu.Lock()
			snaps = append(snaps, s)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, snaps)

	total := manifest.TotalSize(assets)
	for i, s := range snaps {
		assert.GreaterOrEqual(t, s.TransferredBytes, int64(0))
		assert.Equal(t, total, s.TotalBytes)
		if i > 0 {
			assert.GreaterOrEqual(t, s.CompletedAssets, snaps[i-1].CompletedAssets)
		}
	}
	last := snaps[len(snaps)-1]
	assert.Equal(t, int64(len(assets)), last.CompletedAssets)
	assert.Equal(t, total, last.TransferredBytes)
}

func TestSyncFailFastNamesAsset(t *testing.T) {
	root := t.TempDir()
	tr := newMemTransport()
	var assets []manifest.Entry
	for _, name := range []string{"A.bin", "B.bin", "C.bin"} {
		data := randomBytes(t, 128)
		tr.serve(name, data)
		assets = append(assets, entryFor(t, name, data))
	}
	tr.failWith("B.bin", errors.New("connection reset by peer"))

	m := &countingMetrics{}
	repo := newTestRepo(t, tr, WithMetrics(m))
	err := repo.Sync(context.Background(), SyncRequest{Root: root, Assets: assets, BaseURL: testBaseURL})
	require.Error(t, err)

	assert.True(t, apperrors.HasCode(err, apperrors.CodeTransferRetriesExhausted))
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "B.bin", appErr.Asset())
	assert.Equal(t, string(apperrors.PhaseFetch), appErr.Metadata[apperrors.FieldPhase])
	assert.Equal(t, 3, tr.callsFor("B.bin"))
	assert.Equal(t, 2, m.retries)
}

func TestSyncHTTPStatusIsNotRetried(t *testing.T) {
	repo := newTestRepo(t, newMemTransport())
	err := repo.Sync(context.Background(), SyncRequest{
		Root:    t.TempDir(),
		Assets:  []manifest.Entry{{Path: "missing.bin", Size: 5}},
		BaseURL: testBaseURL,
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTransferHTTPStatus))
	assert.False(t, apperrors.HasCode(err, apperrors.CodeTransferRetriesExhausted))
}

func TestSyncPostVerifyMismatchIsFatal(t *testing.T) {
	data := randomBytes(t, 256)
	tr := newMemTransport()
	tr.serve("x.bin", randomBytes(t, 255))

	repo := newTestRepo(t, tr)
	err := repo.Sync(context.Background(), SyncRequest{
		Root:    t.TempDir(),
		Assets:  []manifest.Entry{entryFor(t, "x.bin", data)},
		BaseURL: testBaseURL,
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeVerifyMismatch))
}

func TestSyncRejectsInvalidEntries(t *testing.T) {
	repo := newTestRepo(t, newMemTransport())
	root := t.TempDir()

	for _, e := range []manifest.Entry{{Path: "", Size: 1}, {Path: "../escape", Size: 1}, {Path: "neg", Size: -1}} {
		err := repo.Sync(context.Background(), SyncRequest{Root: root, Assets: []manifest.Entry{e}, BaseURL: testBaseURL})
		require.Error(t, err, e.Path)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeManifestInvalidEntry), e.Path)
	}
}

func TestSyncEmptyIsNoop(t *testing.T) {
	repo := newTestRepo(t, newMemTransport())
	assert.NoError(t, repo.Sync(context.Background(), SyncRequest{Root: t.TempDir()}))
}

func TestSyncInsufficientSpace(t *testing.T) {
	root := t.TempDir()
	tr := newMemTransport()
	var required int64
	repo := newTestRepo(t, tr, WithFreeSpaceFunc(func(_ string, n int64) error {
		required = n
		return apperrors.IOError(apperrors.CodeIOInsufficientSpace, "insufficient disk space", nil)
	}))

	data := randomBytes(t, 100)
	writeFile(t, root, "partial.bin", data[:40])
	err := repo.Sync(context.Background(), SyncRequest{
		Root:    root,
		Assets:  []manifest.Entry{entryFor(t, "partial.bin", data), entryFor(t, "new.bin", data)},
		BaseURL: testBaseURL,
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeIOInsufficientSpace))
	assert.Equal(t, int64(160), required)
	assert.NoFileExists(t, filepath.Join(root, "new.bin"))
}

func TestSyncCancelled(t *testing.T) {
	data := randomBytes(t, 64)
	tr := newMemTransport()
	tr.serve("a.bin", data)
	repo := newTestRepo(t, tr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := repo.Sync(ctx, SyncRequest{Root: t.TempDir(), Assets: []manifest.Entry{entryFor(t, "a.bin", data)}, BaseURL: testBaseURL})
	assert.ErrorIs(t, err, context.Canceled)
}

// stallingTransport delivers the first n bytes of data, then blocks until
// the request is cancelled. onStall runs once when the stall begins.
type stallingTransport struct {
	data    []byte
	n       int
	onStall func()
}

func (s *stallingTransport) Fetch(ctx context.Context, _ string, offset int64) (io.ReadCloser, error) {
	return &stallingBody{ctx: ctx, head: s.data[offset:s.n], onStall: s.onStall, closed: make(chan struct{})}, nil
}

type stallingBody struct {
	ctx     context.Context
	head    []byte
	onStall func()
	stalled sync.Once
	closed  chan struct{}
	close   sync.Once
}

func (b *stallingBody) Read(p []byte) (int, error) {
	if len(b.head) > 0 {
		n := copy(p, b.head)
		b.head = b.head[n:]
		return n, nil
	}
	b.stalled.Do(b.onStall)
	select {
	case <-b.ctx.Done():
		return 0, b.ctx.Err()
	case <-b.closed:
		return 0, io.ErrClosedPipe
	}
}

func (b *stallingBody) Close() error {
	b.close.Do(func() { close(b.closed) })
	return nil
}

func TestSyncCancelledMidTransferLeavesAssetIncomplete(t *testing.T) {
	root := t.TempDir()
	data := randomBytes(t, 4096)
	entry := entryFor(t, "partial.bin", data)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stall := &stallingTransport{data: data, n: 1000, onStall: cancel}
	repo := newTestRepo(t, newMemTransport(), WithTransport(stall))

	err := repo.Sync(ctx, SyncRequest{Root: root, Assets: []manifest.Entry{entry}, BaseURL: testBaseURL})
	require.ErrorIs(t, err, context.Canceled)

	info, err := os.Stat(filepath.Join(root, "partial.bin"))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), info.Size())
	assert.Less(t, info.Size(), entry.Size)

	mismatched, err := repo.FindMismatched(context.Background(), root, []manifest.Entry{entry}, nil, nil)
	require.NoError(t, err)
	require.Len(t, mismatched, 1)
	assert.Equal(t, "partial.bin", mismatched[0].Path)
}

func TestSyncShortBodyFailsWithoutPostVerify(t *testing.T) {
	data := randomBytes(t, 128)
	tr := newMemTransport()
	tr.serve("short.bin", data[:100])

	off := false
	retries := 0
	cfg := &DownloadConfig{
		Concurrency:         1,
		MaxRetries:          &retries,
		ReadTimeout:         time.Second,
		VerifyAfterDownload: &off,
	}
	repo, err := NewRepository(cfg, logger.NewMockLogger(),
		WithTransport(tr),
		WithFreeSpaceFunc(func(string, int64) error { return nil }),
	)
	require.NoError(t, err)

	err = repo.Sync(context.Background(), SyncRequest{
		Root:    t.TempDir(),
		Assets:  []manifest.Entry{entryFor(t, "short.bin", data)},
		BaseURL: testBaseURL,
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeVerifyMismatch))
}

func TestDownloadedSize(t *testing.T) {
	root := t.TempDir()
	a := randomBytes(t, 30)
	b := randomBytes(t, 50)
	writeFile(t, root, "a", a)
	writeFile(t, root, "b", b[:20])

	repo := newTestRepo(t, newMemTransport())
	size, err := repo.DownloadedSize(root, []manifest.Entry{entryFor(t, "a", a), entryFor(t, "b", b), entryFor(t, "c", a)})
	require.NoError(t, err)
	assert.Equal(t, int64(30), size)
}

func TestNewRepositoryRequiresConfigAndLogger(t *testing.T) {
	_, err := NewRepository(nil, logger.NewMockLogger())
	assert.True(t, apperrors.HasCategory(err, apperrors.ErrCategoryConfig))

	_, err = NewRepository(&DownloadConfig{}, nil)
	assert.Error(t, err)
}

func TestMergeConfigs(t *testing.T) {
	base, err := BaseConfig()
	require.NoError(t, err)

	user, err := ParseConfig([]byte("base_url: https://cdn.example.com/\nconcurrency: 3\nverify_after_download: false\ns3:\n  region: eu-west-1\n"))
	require.NoError(t, err)

	cfg, err := MergeConfigs(base, user)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/", cfg.BaseURL)
	assert.Equal(t, 3, cfg.Workers())
	assert.False(t, cfg.VerifyEnabled())
	assert.True(t, cfg.FreeSpaceEnabled())
	assert.Equal(t, "eu-west-1", cfg.S3.Region)
	assert.Equal(t, 5, cfg.Retries())
	assert.Equal(t, 10*time.Minute, cfg.ManifestCacheTTL)

	_, err = MergeConfigs()
	assert.Error(t, err)
}

func TestMergeConfigsZeroRetriesDisablesRetry(t *testing.T) {
	base, err := BaseConfig()
	require.NoError(t, err)
	user, err := ParseConfig([]byte("max_retries: 0\n"))
	require.NoError(t, err)

	cfg, err := MergeConfigs(base, user)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Retries())
	assert.Equal(t, 0, cfg.TransferOptions().MaxRetries)

	unset, err := MergeConfigs(&DownloadConfig{})
	require.NoError(t, err)
	assert.Equal(t, 5, unset.Retries())
}

func TestProgressPercent(t *testing.T) {
	var p InstallProgress
	p.Reset(2, 200)
	p.AddTransferred(50)
	assert.InDelta(t, 25.0, p.Snapshot().Percent(), 0.001)
	p.AddTransferred(-100)
	assert.Zero(t, p.Snapshot().Percent())
	assert.Zero(t, Snapshot{}.Percent())
}

func TestDefaultTransportUserAgent(t *testing.T) {
	agents := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	router := DefaultTransport(&DownloadConfig{UserAgent: "assetsync/test", Timeout: time.Second})
	body, err := router.Fetch(context.Background(), srv.URL+"/a.bin", 0)
	require.NoError(t, err)
	_, _ = io.ReadAll(body)
	body.Close()
	assert.Equal(t, "assetsync/test", <-agents)
	assert.Equal(t, []string{"file", "http", "https"}, router.Schemes())
}
