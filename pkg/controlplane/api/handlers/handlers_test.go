package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/dittonet/pkg/device/netfs"
	"github.com/marmos91/dittonet/pkg/device/printer"
	derrors "github.com/marmos91/dittonet/pkg/errors"
	"github.com/marmos91/dittonet/pkg/lifecycle"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestSetFileContentType(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"index.html", "text/html"},
		{"style.css", "text/css"},
		{"logo.png", "image/png"},
		{"photo.jpg", "image/jpeg"},
		{"anim.gif", "image/gif"},
		{"print.svg", "image/svg+xml"},
		{"manual.pdf", "application/pdf"},
		{"favicon.ico", "image/x-icon"},
		{"notes.txt", "text/plain"},
		{"app.js", "text/javascript"},
		{"beep.wav", "audio/wav"},
		{"game.xex", "application/octet-stream"},
		{"disk.atr", "application/octet-stream"},
		{"tape.cas", "application/octet-stream"},
		{"printout.atascii", "application/octet-stream"},
		{"INDEX.HTML", "text/html"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			SetFileContentType(rec, tt.name)
			assert.Equal(t, tt.want, rec.Header().Get("Content-Type"))
		})
	}
}

func TestSetFileContentTypeUnknownSendsNone(t *testing.T) {
	for _, name := range []string{"data.xyz", "README"} {
		rec := httptest.NewRecorder()
		SetFileContentType(rec, name)
		rec.WriteHeader(http.StatusOK)
		_, _ = rec.Write([]byte("<html>sniff me</html>"))

		assert.Empty(t, rec.Result().Header.Get("Content-Type"), name)
	}
}

func TestMessageByKind(t *testing.T) {
	assert.Equal(t, MsgOpenFailed, Message(derrors.Open("x", nil)))
	assert.Equal(t, MsgOpenFailed, Message(derrors.E(derrors.KindNotFound, "x", nil)))
	assert.Equal(t, MsgOutOfMemory, Message(derrors.E(derrors.KindOutOfMemory, "x", nil)))
	assert.Equal(t, MsgBusy, Message(derrors.E(derrors.KindBusy, "x", nil)))
	assert.Equal(t, MsgBadRequest, Message(derrors.BadRequest("x", "bad")))
	assert.Equal(t, MsgUnsupported, Message(derrors.Unsupported("x")))
	assert.Equal(t, MsgUnexpected, Message(errors.New("/secret/path exploded")))
}

func TestRedirectOrResult(t *testing.T) {
	rec := httptest.NewRecorder()
	RedirectOrResult(rec, httptest.NewRequest(http.MethodGet, "/swap?redirect=1", nil), 0)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	for _, target := range []string{"/swap", "/swap?redirect=0", "/swap?redirect=yes"} {
		rec = httptest.NewRecorder()
		RedirectOrResult(rec, httptest.NewRequest(http.MethodGet, target, nil), 3)
		assert.Equal(t, http.StatusOK, rec.Code, target)
		assert.JSONEq(t, `{"result": 3}`, rec.Body.String(), target)
	}
}

// Files

func newFiles(t *testing.T, maxParse int64) (*FileHandler, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/index.html", []byte("<p><%FN_HOSTNAME%> <%UNKNOWN%></p>"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/restart.html", []byte("restarting"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/big.bin", bytes.Repeat([]byte{0xAA}, 2000), 0o644))
	require.NoError(t, fs.MkdirAll("/docs", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/docs/index.html", []byte("docs"), 0o644))

	parser := TagParser{"FN_HOSTNAME": func() string { return "atari800" }}
	return NewFileHandler(fs, parser, 64, maxParse), fs
}

func TestIndexIsParsed(t *testing.T) {
	h, _ := newFiles(t, 1024)

	rec := get(t, h.Index, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<p>atari800 <%UNKNOWN%></p>", rec.Body.String())
	assert.Equal(t, "text/html", rec.Header().Get("Content-Type"))
	assert.Equal(t, "27", rec.Header().Get("Content-Length"))
}

func TestParsedPageTooLarge(t *testing.T) {
	h, fs := newFiles(t, 10)
	require.NoError(t, afero.WriteFile(fs, "/index.html", bytes.Repeat([]byte("x"), 11), 0o644))

	rec := get(t, h.Index, "/")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, MsgOutOfMemory+"\n", rec.Body.String())
}

func TestFileStreamsVerbatim(t *testing.T) {
	h, _ := newFiles(t, 1024)

	rec := get(t, h.File, "/file?big.bin")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2000, rec.Body.Len())
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "2000", rec.Header().Get("Content-Length"))
}

func TestFileRequestErrors(t *testing.T) {
	h, _ := newFiles(t, 1024)

	rec := get(t, h.File, "/file")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, MsgBadFile+"\n", rec.Body.String())

	rec = get(t, h.File, "/file?"+strings.Repeat("a", 60))
	assert.Equal(t, MsgBadFile+"\n", rec.Body.String())

	rec = get(t, h.File, "/file?missing.html")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, MsgOpenFailed+"\n", rec.Body.String())
}

func TestFileCannotEscapeRoot(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/secret", []byte("s"), 0o644))
	require.NoError(t, fs.MkdirAll("/www", 0o755))
	h := NewFileHandler(afero.NewBasePathFs(fs, "/www"), nil, 64, 1024)

	rec := get(t, h.File, "/file?../secret")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatic(t *testing.T) {
	h, _ := newFiles(t, 1024)

	rec := get(t, h.Static, "/restart.html")
	assert.Equal(t, "restarting", rec.Body.String())

	rec = get(t, h.Static, "/docs/")
	assert.Equal(t, "docs", rec.Body.String())

	rec = get(t, h.Static, "/nope.css")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamChunksHonoursChunkSize(t *testing.T) {
	var sizes []int
	w := writerFunc(func(p []byte) (int, error) {
		sizes = append(sizes, len(p))
		return len(p), nil
	})

	n, err := StreamChunks(w, bytes.NewReader(make([]byte, 1100)), 512)
	require.NoError(t, err)
	assert.EqualValues(t, 1100, n)
	assert.Equal(t, []int{512, 512, 76}, sizes)
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

// Config

type fakeConfigurator struct {
	body []byte
	err  error
}

func (c *fakeConfigurator) ProcessConfigPost(_ context.Context, body []byte) error {
	c.body = body
	return c.err
}

func TestConfigPost(t *testing.T) {
	c := &fakeConfigurator{}
	h := NewConfigHandler(c, 64)

	rec := httptest.NewRecorder()
	h.Post(rec, httptest.NewRequest(http.MethodPost, "/config", strings.NewReader("hostname=atari")))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Equal(t, "hostname=atari", string(c.body))

	c.err = errors.New("bad form")
	rec = httptest.NewRecorder()
	h.Post(rec, httptest.NewRequest(http.MethodPost, "/config", strings.NewReader("x")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, MsgPostFailed+"\n", rec.Body.String())

	rec = httptest.NewRecorder()
	h.Post(rec, httptest.NewRequest(http.MethodPost, "/config", strings.NewReader(strings.Repeat("x", 65))))
	assert.Equal(t, MsgPostFailed+"\n", rec.Body.String())

	rec = get(t, h.Post, "/config")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, MsgBadConfig+"\n", rec.Body.String())
}

// Print

type clock struct{ t time.Time }

func (c *clock) now() time.Time           { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newPrinter(t *testing.T, paper string, c *clock) *printer.Printer {
	t.Helper()
	return printer.New(afero.NewMemMapFs(), paper, printer.WithClock(c.now))
}

func TestPrintStreamsAndResets(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	p := newPrinter(t, "ASCII", c)
	_, err := p.Write(context.Background(), append([]byte("HELLO"), printer.EOL))
	require.NoError(t, err)

	h := NewPrintHandler(p, 512, c.now)
	c.advance(3 * time.Second)

	rec := get(t, h.Print, "/print")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HELLO\n", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Equal(t, `inline; filename="printout.txt"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, 0, p.Lines())
	assert.Equal(t, c.t, h.Session().LastRequest)
}

func TestPrintAttachmentDisposition(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	h := NewPrintHandler(newPrinter(t, "RAW", c), 512, c.now)

	rec := get(t, h.Print, "/print")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="printout.bin"`, rec.Header().Get("Content-Disposition"))
}

func TestPrintBusyWindow(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	h := NewPrintHandler(newPrinter(t, "TRIM", c), 512, c.now)

	require.Equal(t, http.StatusOK, get(t, h.Print, "/print").Code)

	c.advance(PrinterBusyTime - time.Millisecond)
	rec := get(t, h.Print, "/print")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, MsgBusy+"\n", rec.Body.String())

	c.advance(time.Millisecond)
	assert.Equal(t, http.StatusOK, get(t, h.Print, "/print").Code)
}

func TestPrintBusyWhilePrinting(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	p := newPrinter(t, "TRIM", c)
	h := NewPrintHandler(p, 512, c.now)

	_, err := p.Write(context.Background(), []byte("LINE"))
	require.NoError(t, err)
	c.advance(time.Second)

	assert.Equal(t, MsgBusy+"\n", get(t, h.Print, "/print").Body.String())

	c.advance(time.Second)
	assert.Equal(t, http.StatusOK, get(t, h.Print, "/print").Code)
}

func TestPrintWithoutPrinter(t *testing.T) {
	h := NewPrintHandler(nil, 512, nil)
	rec := get(t, h.Print, "/print")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, MsgOpenFailed+"\n", rec.Body.String())
}

// Browse

type fakeBrowser struct {
	calls   int
	slot    int
	path    string
	entries []netfs.DirEntry
	file    string
	err     error
}

func (b *fakeBrowser) Browse(_ context.Context, slot int, p string) ([]netfs.DirEntry, io.ReadCloser, error) {
	b.calls++
	b.slot, b.path = slot, p
	if b.err != nil {
		return nil, nil, b.err
	}
	if b.file != "" {
		return nil, io.NopCloser(strings.NewReader(b.file)), nil
	}
	return b.entries, nil, nil
}

func TestParseBrowsePath(t *testing.T) {
	for n := 1; n <= 8; n++ {
		slot, rest, ok := ParseBrowsePath(fmt.Sprintf("/browse/host/%d/games/x.atr", n))
		require.True(t, ok, n)
		assert.Equal(t, n-1, slot)
		assert.Equal(t, "/games/x.atr", rest)

		slot, rest, ok = ParseBrowsePath(fmt.Sprintf("/browse/host/%d", n))
		require.True(t, ok)
		assert.Equal(t, n-1, slot)
		assert.Empty(t, rest)
	}

	for _, p := range []string{
		"/browse/host/0", "/browse/host/9", "/browse/host/a/x",
		"/browse/host/12", "/browse/host/", "/browse/other/1",
	} {
		_, _, ok := ParseBrowsePath(p)
		assert.False(t, ok, p)
	}
}

func TestBrowseRejectsBadSlotBeforeContactingHost(t *testing.T) {
	b := &fakeBrowser{}
	h := NewBrowseHandler(b, 512)

	for _, p := range []string{"/browse/host/0", "/browse/host/9", "/browse/host/x/y", "/browse/nothing"} {
		rec := get(t, h.Browse, p)
		assert.Equal(t, http.StatusBadRequest, rec.Code, p)
		assert.Equal(t, MsgBadHostSlot+"\n", rec.Body.String(), p)
	}
	assert.Zero(t, b.calls)
}

func TestBrowseListsDirectory(t *testing.T) {
	b := &fakeBrowser{entries: []netfs.DirEntry{
		{Name: "sub", IsDir: true},
		{Name: "pong.atr", Size: 92176},
	}}
	h := NewBrowseHandler(b, 512)

	rec := get(t, h.Browse, "/browse/host/2/games")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, b.slot)
	assert.Equal(t, "/games", b.path)

	body := rec.Body.String()
	assert.Contains(t, body, `href="/browse/host/2/games/sub"`)
	assert.Contains(t, body, `href="/browse/host/2/games/pong.atr"`)
	assert.Contains(t, body, "92176")
	assert.Contains(t, body, `href="/browse/host/2/"`)
}

func TestBrowseDownloadsFile(t *testing.T) {
	h := NewBrowseHandler(&fakeBrowser{file: "DATA"}, 512)

	rec := get(t, h.Browse, "/browse/host/1/games/pong.atr")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DATA", rec.Body.String())
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="pong.atr"`, rec.Header().Get("Content-Disposition"))
}

func TestBrowseErrorHidesDetail(t *testing.T) {
	h := NewBrowseHandler(&fakeBrowser{err: derrors.Open("tnfs.mount", errors.New("10.0.0.5 refused"))}, 512)

	rec := get(t, h.Browse, "/browse/host/1/")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, MsgOpenFailed+"\n", rec.Body.String())
}

// Device control

type fakeSlots struct {
	rotated, mounted int
	mountErr         error
}

func (s *fakeSlots) ImageRotate(context.Context) int { s.rotated++; return 2 }
func (s *fakeSlots) MountAll(context.Context) error  { s.mounted++; return s.mountErr }

type fakeRestarter struct {
	delay time.Duration
	mode  lifecycle.Mode
}

func (r *fakeRestarter) Schedule(d time.Duration, m lifecycle.Mode) { r.delay, r.mode = d, m }

func newDevice(t *testing.T) (*DeviceHandler, *fakeSlots, *fakeRestarter) {
	t.Helper()
	files, _ := newFiles(t, 1024)
	s, r := &fakeSlots{}, &fakeRestarter{}
	return NewDeviceHandler(s, r, files, 500*time.Millisecond), s, r
}

func TestSwapAndMount(t *testing.T) {
	h, s, _ := newDevice(t)

	rec := get(t, h.Swap, "/swap")
	assert.JSONEq(t, `{"result": 0}`, rec.Body.String())
	assert.Equal(t, 1, s.rotated)

	rec = get(t, h.Swap, "/swap?redirect=1")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, 2, s.rotated)

	rec = get(t, h.Mount, "/mount")
	assert.JSONEq(t, `{"result": 0}`, rec.Body.String())
	assert.Zero(t, s.mounted)

	rec = get(t, h.Mount, "/mount?mountall=1")
	assert.JSONEq(t, `{"result": 0}`, rec.Body.String())
	assert.Equal(t, 1, s.mounted)

	s.mountErr = derrors.Open("disk", nil)
	rec = get(t, h.Mount, "/mount?mountall=1")
	assert.JSONEq(t, `{"result": 1}`, rec.Body.String())

	rec = get(t, h.Mount, "/mount?mountall=1&redirect=1")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestRestartExit(t *testing.T) {
	h, _, r := newDevice(t)

	rec := get(t, h.Restart, "/restart?exit=1")
	assert.JSONEq(t, `{"result": 1}`, rec.Body.String())
	assert.Equal(t, lifecycle.ModeTerminal, r.mode)
	assert.Equal(t, 500*time.Millisecond, r.delay)
}

func TestRestartRespawn(t *testing.T) {
	h, _, r := newDevice(t)

	rec := get(t, h.Restart, "/restart?exit=0")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "restarting", rec.Body.String())
	assert.Equal(t, lifecycle.ModeRespawn, r.mode)
}

func TestTest(t *testing.T) {
	h, _, _ := newDevice(t)
	assert.JSONEq(t, `{"result": 1}`, get(t, h.Test, "/test").Body.String())
}
