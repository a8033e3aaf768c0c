package r2s3

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClient_PutFileSignsPathStyleRequest(t *testing.T) {
	var gotMethod, gotPath, gotAuth, gotDate, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotMethod, gotPath, gotBody = r.Method, r.URL.Path, string(b)
		gotAuth, gotDate = r.Header.Get("Authorization"), r.Header.Get("x-amz-date")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New(Options{Endpoint: srv.URL, Bucket: "parks", AccessKey: "AK", SecretKey: "SK"})
	require.NoError(t, err)
	c.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }

	file := filepath.Join(t.TempDir(), "snap.zst")
	require.NoError(t, os.WriteFile(file, []byte("payload"), 0o644))
	require.NoError(t, c.PutFile(context.Background(), "/p1//snapshots/a b.zst", file))

	require.Equal(t, http.MethodPut, gotMethod)
	require.Equal(t, "/parks/p1/snapshots/a b.zst", gotPath)
	require.Equal(t, "20260304T050607Z", gotDate)
	require.Equal(t, "payload", gotBody)
	require.True(t, strings.HasPrefix(gotAuth, "AWS4-HMAC-SHA256 Credential=AK/20260304/auto/s3/aws4_request, SignedHeaders=host;x-amz-content-sha256;x-amz-date, Signature="), gotAuth)
}

func TestClient_StatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer srv.Close()
	c, err := New(Options{Endpoint: srv.URL, Bucket: "parks", AccessKey: "AK", SecretKey: "SK"})
	require.NoError(t, err)
	file := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	err = c.PutFile(context.Background(), "k", file)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusForbidden, se.Code)
	require.False(t, se.Retryable())

	_, err = New(Options{Endpoint: srv.URL})
	require.Error(t, err)
}

type fakeUploader struct {
	mu    sync.Mutex
	fails int
	keys  []string
}

func (f *fakeUploader) PutFile(_ context.Context, key, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return &StatusError{Code: http.StatusServiceUnavailable, Key: key}
	}
	f.keys = append(f.keys, key)
	return nil
}

func TestMirror_RetriesAndKeysByRelativePath(t *testing.T) {
	data := t.TempDir()
	file := filepath.Join(data, "parks", "p1", "snapshots", "0000000001.snap.zst")
	require.NoError(t, os.MkdirAll(filepath.Dir(file), 0o755))
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	up := &fakeUploader{fails: 2}
	m := NewMirror(up, data, "backup/", 1, 4)
	m.Enqueue(file)
	m.Enqueue(filepath.Join(t.TempDir(), "outside"))
	m.Close()

	require.Equal(t, []string{"backup/parks/p1/snapshots/0000000001.snap.zst"}, up.keys)
	st := m.Stats()
	require.Equal(t, uint64(1), st.Uploaded)
	require.Equal(t, uint64(1), st.Failed)
}
