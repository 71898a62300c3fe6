package netfs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	derrors "github.com/marmos91/dittonet/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fileServer is a tiny in-memory WebDAV-ish server.
type fileServer struct {
	mu    sync.Mutex
	files map[string]string
}

func (s *fileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		body, ok := s.files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, r.URL.Path, time.Time{}, strings.NewReader(body))
	case http.MethodPut:
		b, _ := io.ReadAll(r.Body)
		s.files[r.URL.Path] = string(b)
		w.WriteHeader(http.StatusCreated)
	case http.MethodDelete:
		if _, ok := s.files[r.URL.Path]; !ok {
			http.NotFound(w, r)
			return
		}
		delete(s.files, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newHTTPAdapter(t *testing.T, files map[string]string) (*Adapter, *fileServer, string) {
	t.Helper()
	fs := &fileServer{files: files}
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)

	cfg := testConfig()
	cfg.AttemptTimeout = 500 * time.Millisecond
	reg := NewRegistry()
	reg.Register("http", newHTTPProto(srv.Client(), time.Second))
	return New(cfg, reg, nil), fs, srv.URL
}

func TestHTTPRead(t *testing.T) {
	a, _, base := newHTTPAdapter(t, map[string]string{"/a.txt": "hello http"})
	ctx := context.Background()

	require.NoError(t, a.Open(ctx, "N:"+base+"/a.txt", openCmd(4)))

	buf := make([]byte, 5)
	n, err := a.Read(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	buf = make([]byte, 32)
	n, err = a.Read(ctx, buf)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, " http", string(buf[:n]))
	a.Close()
}

func TestHTTPNotFound(t *testing.T) {
	a, _, base := newHTTPAdapter(t, map[string]string{})

	err := a.Open(context.Background(), base+"/missing", openCmd(4))
	assert.ErrorIs(t, err, derrors.ErrNotFound)
}

func TestHTTPPutOnClose(t *testing.T) {
	a, fs, base := newHTTPAdapter(t, map[string]string{})
	ctx := context.Background()

	require.NoError(t, a.Open(ctx, base+"/up.txt", openCmd(8)))
	_, err := a.Write(ctx, []byte("part1,"))
	require.NoError(t, err)
	_, err = a.Write(ctx, []byte("part2"))
	require.NoError(t, err)

	fs.mu.Lock()
	_, uploaded := fs.files["/up.txt"]
	fs.mu.Unlock()
	assert.False(t, uploaded)

	a.Close()
	fs.mu.Lock()
	defer fs.mu.Unlock()
	assert.Equal(t, "part1,part2", fs.files["/up.txt"])
}

func TestHTTPSeekUsesRange(t *testing.T) {
	a, _, base := newHTTPAdapter(t, map[string]string{"/r.bin": "0123456789"})
	ctx := context.Background()

	require.NoError(t, a.Open(ctx, base+"/r.bin", openCmd(4)))
	require.NoError(t, a.Point(ctx, 6))

	buf := make([]byte, 4)
	n, err := a.Read(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, "6789", string(buf[:n]))
	a.Close()
}

func TestHTTPDelete(t *testing.T) {
	a, fs, base := newHTTPAdapter(t, map[string]string{"/d.txt": "x"})
	ctx := context.Background()

	require.NoError(t, a.Delete(ctx, base+"/d.txt", nil))
	assert.Empty(t, fs.files)

	assert.ErrorIs(t, a.Delete(ctx, base+"/d.txt", nil), derrors.ErrNotFound)
	assert.ErrorIs(t, a.Mkdir(ctx, base+"/dir", nil), derrors.ErrUnsupported)
}

func TestHTTPStalledBodyIsIOError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "10")
		_, _ = w.Write([]byte("abc"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := testConfig()
	cfg.MaxReadAttempts = 3
	reg := NewRegistry()
	reg.Register("http", newHTTPProto(srv.Client(), time.Second))
	a := New(cfg, reg, nil)
	ctx := context.Background()

	require.NoError(t, a.Open(ctx, srv.URL+"/slow", openCmd(4)))
	assert.Equal(t, uint16(10), a.Status().BytesWaiting)

	buf := make([]byte, 10)
	n, err := a.Read(ctx, buf)
	assert.Equal(t, 3, n)
	assert.ErrorIs(t, err, derrors.ErrIO)
	a.Close()
}
