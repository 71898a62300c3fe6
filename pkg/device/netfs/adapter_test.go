package netfs

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/marmos91/dittonet/pkg/device"
	derrors "github.com/marmos91/dittonet/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type readStep struct {
	data []byte
	err  error
}

// scriptedProto replays a fixed sequence of read results.
type scriptedProto struct {
	opened *ParsedURL
	steps  []readStep
	reads  int
	closed int
}

func (p *scriptedProto) Open(_ context.Context, u *ParsedURL, _ Mode) error {
	p.opened = u
	return nil
}

func (p *scriptedProto) Read(_ context.Context, buf []byte) (int, error) {
	p.reads++
	if len(p.steps) == 0 {
		return 0, context.DeadlineExceeded
	}
	s := p.steps[0]
	p.steps = p.steps[1:]
	return copy(buf, s.data), s.err
}

func (p *scriptedProto) Write(_ context.Context, buf []byte) (int, error) { return len(buf), nil }
func (p *scriptedProto) Close() error                                    { p.closed++; return nil }
func (p *scriptedProto) Available() int                                  { return -1 }
func (p *scriptedProto) EOF() bool                                       { return false }

func testConfig() Config {
	cfg := Config{DefaultScheme: "fake", AttemptTimeout: 10 * time.Millisecond}
	cfg.ApplyDefaults()
	return cfg
}

func newScripted(t *testing.T, steps ...readStep) (*Adapter, *scriptedProto) {
	t.Helper()
	proto := &scriptedProto{steps: steps}
	reg := NewRegistry()
	reg.Register("fake", func() Protocol { return proto })
	return New(testConfig(), reg, nil), proto
}

func newSD(t *testing.T) (*Adapter, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	reg := NewRegistry()
	reg.RegisterFS("sd", fs)
	cfg := testConfig()
	cfg.DefaultScheme = "sd"
	return New(cfg, reg, nil), fs
}

func openCmd(aux1 byte) *device.Command {
	return &device.Command{Op: device.OpOpen, Aux1: aux1}
}

func TestOpenUsesDefaultScheme(t *testing.T) {
	a, proto := newScripted(t)

	require.NoError(t, a.Open(context.Background(), "N:somehost/dir/file", openCmd(4)))
	require.NotNil(t, proto.opened)
	assert.Equal(t, "fake", proto.opened.Scheme)
	assert.Equal(t, "somehost", proto.opened.Host)
	assert.Equal(t, "/dir/file", proto.opened.Path)
}

func TestOpenClosesPreviousSession(t *testing.T) {
	a, proto := newScripted(t)
	ctx := context.Background()

	require.NoError(t, a.Open(ctx, "N:fake://h/a", openCmd(4)))
	require.NoError(t, a.Open(ctx, "N:fake://h/b", openCmd(4)))
	assert.Equal(t, 1, proto.closed)

	a.Close()
	a.Close()
	assert.Equal(t, 2, proto.closed)
}

func TestOpenUnknownScheme(t *testing.T) {
	a, _ := newScripted(t)

	err := a.Open(context.Background(), "N:gopher://h/x", openCmd(4))
	assert.ErrorIs(t, err, derrors.ErrBadRequest)
	assert.Equal(t, device.CodeBadDeviceSpec, a.Status().Error)
}

func TestReadRetriesPartialTransfers(t *testing.T) {
	a, proto := newScripted(t,
		readStep{data: []byte("ab")},
		readStep{err: context.DeadlineExceeded},
		readStep{data: []byte("cd")},
	)
	ctx := context.Background()
	require.NoError(t, a.Open(ctx, "fake://h/x", openCmd(4)))

	buf := make([]byte, 4)
	n, err := a.Read(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "abcd", string(buf))
	assert.Equal(t, 3, proto.reads)

	pos, err := a.Note(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), pos)
}

func TestReadGivesUpAfterMaxAttempts(t *testing.T) {
	a, proto := newScripted(t, readStep{data: []byte("x")})
	ctx := context.Background()
	require.NoError(t, a.Open(ctx, "fake://h/x", openCmd(4)))

	n, err := a.Read(ctx, make([]byte, 8))
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, err, derrors.ErrIO)
	assert.Equal(t, 1+a.cfg.MaxReadAttempts, proto.reads)
	assert.Equal(t, device.CodeTimeout, a.Status().Error)
}

func TestReadWithoutSession(t *testing.T) {
	a, _ := newScripted(t)

	_, err := a.Read(context.Background(), make([]byte, 4))
	assert.ErrorIs(t, err, derrors.ErrIO)
}

func TestReadEOFAndStatus(t *testing.T) {
	a, fs := newSD(t)
	require.NoError(t, afero.WriteFile(fs, "/hello.txt", []byte("hello world"), 0o644))
	ctx := context.Background()

	require.NoError(t, a.Open(ctx, "N:sd://hello.txt", openCmd(4)))
	st := a.Status()
	assert.True(t, st.Connected)
	assert.Equal(t, uint16(11), st.BytesWaiting)

	buf := make([]byte, 5)
	n, err := a.Read(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, uint16(6), a.Status().BytesWaiting)

	buf = make([]byte, 16)
	n, err = a.Read(ctx, buf)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 6, n)
	assert.Equal(t, " world", string(buf[:n]))

	st = a.Status()
	assert.Equal(t, device.CodeEOF, st.Error)
	assert.Zero(t, st.BytesWaiting)
}

func TestDirectoryMode(t *testing.T) {
	a, fs := newSD(t)
	require.NoError(t, afero.WriteFile(fs, "/games/b.atr", []byte("abc"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/games/A.xex", []byte("12345"), 0o644))
	require.NoError(t, fs.MkdirAll("/games/sub", 0o755))
	ctx := context.Background()

	require.NoError(t, a.Open(ctx, "sd://games/", openCmd(6)))

	buf := make([]byte, 256)
	n, err := a.Read(ctx, buf)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "sub/\nA.xex 5\nb.atr 3\n", string(buf[:n]))
}

func TestSpecialListsDirectory(t *testing.T) {
	a, fs := newSD(t)
	require.NoError(t, afero.WriteFile(fs, "/games/a.atr", []byte("abc"), 0o644))
	ctx := context.Background()

	require.NoError(t, a.Open(ctx, "sd://games/a.atr", openCmd(4)))

	buf := make([]byte, 64)
	n, err := a.Special(ctx, buf, &device.Command{Op: device.OpSpecial, Code: SpecialListDir})
	require.NoError(t, err)
	assert.Equal(t, "a.atr 3\n", string(buf[:n]))

	_, err = a.Special(ctx, buf, &device.Command{Op: device.OpSpecial, Code: 0x42})
	assert.ErrorIs(t, err, derrors.ErrUnsupported)
}

func TestWriteMode(t *testing.T) {
	a, fs := newSD(t)
	ctx := context.Background()

	require.NoError(t, a.Open(ctx, "sd://out.txt", openCmd(8)))
	n, err := a.Write(ctx, []byte("PRINT"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	a.Close()

	data, err := afero.ReadFile(fs, "/out.txt")
	require.NoError(t, err)
	assert.Equal(t, "PRINT", string(data))

	require.NoError(t, a.Open(ctx, "sd://out.txt", openCmd(9)))
	_, err = a.Write(ctx, []byte("ED"))
	require.NoError(t, err)
	a.Close()

	data, err = afero.ReadFile(fs, "/out.txt")
	require.NoError(t, err)
	assert.Equal(t, "PRINTED", string(data))
}

func TestWriteRejectedWhenReadOnly(t *testing.T) {
	a, fs := newSD(t)
	require.NoError(t, afero.WriteFile(fs, "/a.txt", []byte("x"), 0o644))
	ctx := context.Background()

	require.NoError(t, a.Open(ctx, "sd://a.txt", openCmd(4)))
	_, err := a.Write(ctx, []byte("y"))
	assert.ErrorIs(t, err, derrors.ErrBadRequest)
}

func TestOpenMissingFile(t *testing.T) {
	a, _ := newSD(t)

	err := a.Open(context.Background(), "sd://nope.txt", openCmd(4))
	assert.ErrorIs(t, err, derrors.ErrNotFound)
	assert.Equal(t, device.CodeNotFound, a.Status().Error)
}

func TestExtendedOperations(t *testing.T) {
	a, fs := newSD(t)
	require.NoError(t, afero.WriteFile(fs, "/dir/a.txt", []byte("x"), 0o644))
	ctx := context.Background()

	require.NoError(t, a.Rename(ctx, "N:sd://dir/a.txt,b.txt", nil))
	ok, _ := afero.Exists(fs, "/dir/b.txt")
	assert.True(t, ok)

	require.NoError(t, a.Delete(ctx, "N:sd://dir/b.txt", nil))
	ok, _ = afero.Exists(fs, "/dir/b.txt")
	assert.False(t, ok)

	require.NoError(t, a.Mkdir(ctx, "N:sd://dir/new", nil))
	ok, _ = afero.DirExists(fs, "/dir/new")
	assert.True(t, ok)

	require.NoError(t, a.Rmdir(ctx, "N:sd://dir/new", nil))
	ok, _ = afero.DirExists(fs, "/dir/new")
	assert.False(t, ok)

	assert.ErrorIs(t, a.Rename(ctx, "N:sd://dir/x", nil), derrors.ErrBadRequest)
}

func TestExtendedOperationsUnsupported(t *testing.T) {
	a, _ := newScripted(t)
	ctx := context.Background()

	assert.ErrorIs(t, a.Delete(ctx, "fake://h/x", nil), derrors.ErrUnsupported)
	assert.ErrorIs(t, a.Mkdir(ctx, "fake://h/x", nil), derrors.ErrUnsupported)
	assert.Equal(t, device.CodeNotImplemented, a.Status().Error)

	require.NoError(t, a.Open(ctx, "fake://h/x", openCmd(4)))
	assert.ErrorIs(t, a.Point(ctx, 10), derrors.ErrUnsupported)

	err := a.Open(ctx, "fake://h/", openCmd(6))
	assert.ErrorIs(t, err, derrors.ErrUnsupported)
}

func TestPointSeeks(t *testing.T) {
	a, fs := newSD(t)
	require.NoError(t, afero.WriteFile(fs, "/f.bin", []byte("0123456789"), 0o644))
	ctx := context.Background()

	require.NoError(t, a.Open(ctx, "sd://f.bin", openCmd(4)))
	require.NoError(t, a.Point(ctx, 7))

	buf := make([]byte, 3)
	n, err := a.Read(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, "789", string(buf[:n]))

	pos, err := a.Note(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(10), pos)
}

func TestFormatListing(t *testing.T) {
	out := FormatListing([]DirEntry{
		{Name: "zed.txt", Size: 1},
		{Name: "Docs", IsDir: true},
		{Name: "alpha.bin", Size: 300},
	})
	assert.Equal(t, "Docs/\nalpha.bin 300\nzed.txt 1\n", string(out))
}

type recordingMetrics struct {
	ops   []string
	bytes map[string]int
}

func (m *recordingMetrics) ObserveOperation(scheme, op string, _ time.Duration, _ error) {
	m.ops = append(m.ops, scheme+"."+op)
}

func (m *recordingMetrics) RecordBytes(scheme, direction string, n int) {
	if m.bytes == nil {
		m.bytes = map[string]int{}
	}
	m.bytes[scheme+"."+direction] += n
}

func TestMetricsRecorded(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/a", []byte("abc"), 0o644))
	reg := NewRegistry()
	reg.RegisterFS("sd", fs)
	m := &recordingMetrics{}
	a := New(testConfig(), reg, m)
	ctx := context.Background()

	require.NoError(t, a.Open(ctx, "sd://a", openCmd(4)))
	_, _ = a.Read(ctx, make([]byte, 3))
	a.Close()

	assert.Equal(t, []string{"sd.open", "sd.close"}, m.ops)
	assert.Equal(t, 3, m.bytes["sd.read"])
}

func TestBrowse(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/games/sub", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/games/pong.atr", []byte("PONG"), 0o644))
	reg := NewRegistry()
	reg.RegisterFS("sd", fs)
	cfg := testConfig()

	entries, rc, err := Browse(context.Background(), cfg, reg, "sd:///games/")
	require.NoError(t, err)
	assert.Nil(t, rc)
	assert.Len(t, entries, 2)

	entries, rc, err = Browse(context.Background(), cfg, reg, "sd:///games/pong.atr")
	require.NoError(t, err)
	assert.Nil(t, entries)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "PONG", string(data))
	require.NoError(t, rc.Close())

	_, _, err = Browse(context.Background(), cfg, reg, "sd:///missing.atr")
	assert.ErrorIs(t, err, derrors.ErrNotFound)
}
