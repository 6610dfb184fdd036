package timesync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "assetsync/internal/errors"
)

func dateServer(t *testing.T, date string) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Date"] = []string{date}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestMeasureReportsSkew(t *testing.T) {
	remote := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	srv := dateServer(t, remote.Format(http.TimeFormat))

	local := remote.Add(20 * time.Minute)
	res, err := Measure(context.Background(), srv.Client(), Options{
		Sources: []string{srv.URL},
		Now:     func() time.Time { return local },
	})
	require.NoError(t, err)
	assert.Equal(t, srv.URL, res.Source)
	assert.Equal(t, 20*time.Minute, res.Skew)
	assert.True(t, res.Exceeds(MaxSkew))
}

func TestMeasureFallsBackToNextSource(t *testing.T) {
	bad := dateServer(t, "not a date")
	remote := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	good := dateServer(t, remote.Format(http.TimeFormat))

	res, err := Measure(context.Background(), nil, Options{
		Sources: []string{bad.URL, good.URL},
		Now:     func() time.Time { return remote.Add(-3 * time.Second) },
	})
	require.NoError(t, err)
	assert.Equal(t, good.URL, res.Source)
	assert.Equal(t, -3*time.Second, res.Skew)
	assert.False(t, res.Exceeds(MaxSkew))
}

func TestMeasureAllSourcesFail(t *testing.T) {
	srv := dateServer(t, "garbage")
	_, err := Measure(context.Background(), nil, Options{Sources: []string{srv.URL}})
	require.Error(t, err)
	assert.True(t, apperrors.HasCategory(err, apperrors.ErrCategoryNetwork))

	_, err = Measure(context.Background(), nil, Options{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConfigGeneric))
}
