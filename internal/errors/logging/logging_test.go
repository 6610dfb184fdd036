package logging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "assetsync/internal/errors"
	"assetsync/internal/logger"
)

func TestErrorExpandsAppError(t *testing.T) {
	mock := logger.NewMockLogger()
	err := apperrors.VerificationError("checksum mismatch", nil).WithAsset("a.bin", apperrors.PhaseDiff)

	Error(context.Background(), mock, "diff failed", err)

	entries := mock.GetEntries()
	require.Len(t, entries, 1)
	code, _ := entries[0].Field("error_code")
	assert.Equal(t, apperrors.CodeVerifyMismatch, code)
	asset, _ := entries[0].Field(apperrors.FieldAsset)
	assert.Equal(t, "a.bin", asset)
	phase, _ := entries[0].Field(apperrors.FieldPhase)
	assert.Equal(t, "diff", phase)
}

func TestErrorPlainError(t *testing.T) {
	mock := logger.NewMockLogger()
	Error(context.Background(), mock, "oops", errors.New("disk gone"))

	entries := mock.GetEntries()
	require.Len(t, entries, 1)
	v, ok := entries[0].Field("error")
	assert.True(t, ok)
	assert.Equal(t, "disk gone", v)
}

func TestFieldsSkipsReservedMetadata(t *testing.T) {
	appErr := apperrors.SystemError(apperrors.CodeSystemGeneric, "x", nil).WithField("error_code", "spoofed")
	var codes int
	for _, f := range Fields(appErr) {
		if f.Key == "error_code" {
			codes++
			assert.Equal(t, apperrors.CodeSystemGeneric, f.Value)
		}
	}
	assert.Equal(t, 1, codes)
}
