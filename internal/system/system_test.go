package system

import (
	"errors"
	"math"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "assetsync/internal/errors"
)

func TestFreeSpaceOfMissingPathUsesAncestor(t *testing.T) {
	dir := t.TempDir()
	free, err := FreeSpace(filepath.Join(dir, "not", "yet", "created"))
	if errors.Is(err, ErrUnsupported) {
		t.Skip("free space query unsupported")
	}
	require.NoError(t, err)
	assert.Greater(t, free, uint64(0))
}

func TestEnsureFreeSpace(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, EnsureFreeSpace(dir, 0))
	assert.NoError(t, EnsureFreeSpace(dir, 1))

	if _, err := FreeSpace(dir); errors.Is(err, ErrUnsupported) {
		t.Skip("free space query unsupported")
	}
	err := EnsureFreeSpace(dir, math.MaxInt64)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeIOInsufficientSpace))
}

func TestDetect(t *testing.T) {
	info := Detect()
	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, runtime.GOARCH, info.Architecture)
}
