package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetsync/internal/downloader/transfer"
	apperrors "assetsync/internal/errors"
)

var content = []byte("0123456789abcdefghijklmnopqrstuvwxyz")

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestHTTPTransportRangeRequests(t *testing.T) {
	var lastRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastRange = r.Header.Get("Range")
		http.ServeContent(w, r, "asset.bin", time.Time{}, bytes.NewReader(content))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.Client())

	body, err := tr.Fetch(context.Background(), srv.URL+"/asset.bin", 0)
	require.NoError(t, err)
	assert.Equal(t, string(content), readAll(t, body))
	assert.Empty(t, lastRange)

	body, err = tr.Fetch(context.Background(), srv.URL+"/asset.bin", 10)
	require.NoError(t, err)
	assert.Equal(t, string(content[10:]), readAll(t, body))
	assert.Equal(t, "bytes=10-", lastRange)

	body, err = tr.Fetch(context.Background(), srv.URL+"/asset.bin", int64(len(content)))
	require.NoError(t, err)
	assert.Empty(t, readAll(t, body))
}

func TestHTTPTransportSkipsWhenRangeIgnored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(content)
	}))
	defer srv.Close()

	body, err := NewHTTPTransport(srv.Client()).Fetch(context.Background(), srv.URL, 5)
	require.NoError(t, err)
	assert.Equal(t, string(content[5:]), readAll(t, body))
}

func TestHTTPTransportSlowSkipResumesWithinReadTimeout(t *testing.T) {
	const pieces, pieceSize = 64, 512
	payload := make([]byte, 0, pieces*pieceSize)
	for i := 0; i < pieces; i++ {
		payload = append(payload, bytes.Repeat([]byte{byte('a' + i%26)}, pieceSize)...)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for i := 0; i < pieces; i++ {
			if _, err := w.Write(payload[i*pieceSize : (i+1)*pieceSize]); err != nil {
				return
			}
			flusher.Flush()
			select {
			case <-r.Context().Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
	}))
	defer srv.Close()

	// Skipping the existing half takes ~320ms, well past one read timeout.
	path := filepath.Join(t.TempDir(), "asset.bin")
	require.NoError(t, os.WriteFile(path, payload[:len(payload)/2], 0o644))
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer f.Close()

	tr := NewHTTPTransport(srv.Client())
	copier := transfer.NewCopier(transfer.Options{
		MaxChunk:    4096,
		ReadTimeout: 150 * time.Millisecond,
		Resume:      true,
	})
	st, err := copier.Copy(context.Background(), func(ctx context.Context, offset int64) (io.ReadCloser, error) {
		return tr.Fetch(ctx, srv.URL, offset)
	}, f, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, st.RetriesUsed)
	assert.Equal(t, int64(len(payload)), st.SourceOffset)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestSkipReaderShortBody(t *testing.T) {
	r := &skipReader{body: io.NopCloser(strings.NewReader("abc")), skip: 10}
	_, err := io.ReadAll(r)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	r = &skipReader{body: io.NopCloser(strings.NewReader("abcdef")), skip: 6}
	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Empty(t, rest)
}

func TestHTTPTransportStatusIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewHTTPTransport(srv.Client()).Fetch(context.Background(), srv.URL+"/missing", 0)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTransferHTTPStatus))
	appErr, _ := apperrors.As(err)
	assert.False(t, appErr.Recoverable)
	assert.Equal(t, http.StatusNotFound, appErr.Metadata["status"])
}

func TestHTTPTransportConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPTransport(nil).Fetch(context.Background(), url, 0)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTransferConnectionFailed))
}

func TestContentRangeStart(t *testing.T) {
	start, ok := contentRangeStart("bytes 100-199/200")
	assert.True(t, ok)
	assert.Equal(t, int64(100), start)

	_, ok = contentRangeStart("items 1-2/3")
	assert.False(t, ok)
}

type fakeS3 struct {
	objects map[string][]byte
	inputs  []*s3.GetObjectInput
	err     error
}

type statusErr int

func (e statusErr) Error() string       { return "s3 status" }
func (e statusErr) HTTPStatusCode() int { return int(e) }

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, statusErr(http.StatusNotFound)
	}
	if r := aws.ToString(in.Range); r != "" {
		start, _ := contentRangeStart(strings.Replace(r, "=", " ", 1) + "/0")
		data = data[start:]
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3TransportFetch(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{"assets/res/v2/a b.bin": content}}
	tr := &S3Transport{client: fake}

	body, err := tr.Fetch(context.Background(), "s3://assets/res/v2/a%20b.bin", 4)
	require.NoError(t, err)
	assert.Equal(t, string(content[4:]), readAll(t, body))
	require.Len(t, fake.inputs, 1)
	assert.Equal(t, "res/v2/a b.bin", aws.ToString(fake.inputs[0].Key))
	assert.Equal(t, "bytes=4-", aws.ToString(fake.inputs[0].Range))

	_, err = tr.Fetch(context.Background(), "s3://assets/missing", 0)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTransferHTTPStatus))

	fake.err = statusErr(http.StatusServiceUnavailable)
	_, err = tr.Fetch(context.Background(), "s3://assets/res/v2/a%20b.bin", 0)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTransferConnectionFailed))

	fake.err = errors.New("connection reset")
	_, err = tr.Fetch(context.Background(), "s3://assets/x", 0)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTransferConnectionFailed))

	_, err = tr.Fetch(context.Background(), "s3://assets/", 0)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConfigGeneric))
}

func TestFileTransportAndRouter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bin"), content, 0o644))

	r := NewRouter().Handle(FileTransport{}, "file")

	body, err := r.Fetch(context.Background(), "file://"+filepath.ToSlash(dir)+"/a.bin", 30)
	require.NoError(t, err)
	assert.Equal(t, string(content[30:]), readAll(t, body))

	_, err = r.Fetch(context.Background(), "file://"+filepath.ToSlash(dir)+"/nope.bin", 0)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTransferHTTPStatus))

	_, err = r.Fetch(context.Background(), "ftp://host/a.bin", 0)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConfigGeneric))
	assert.ElementsMatch(t, []string{"file"}, r.Schemes())
}
