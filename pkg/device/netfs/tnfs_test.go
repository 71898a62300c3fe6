package netfs

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	derrors "github.com/marmos91/dittonet/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tnfsServer is a single-file, single-directory TNFS responder.
type tnfsServer struct {
	conn *net.UDPConn

	mu       sync.Mutex
	files    map[string][]byte
	pos      int
	openName string
	dirList  []string
	unlinked []string
	dropNext int
	requests map[byte]int

	// With replay set the server behaves like a real one: a retransmit of
	// the last request gets the cached reply, and lose[cmd] replies are
	// discarded after the request has run.
	replay    bool
	lastReq   []byte
	lastReply []byte
	lose      map[byte]int
}

func startTNFS(t *testing.T, files map[string][]byte) (*tnfsServer, int) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	s := &tnfsServer{conn: conn, files: files, requests: map[byte]int{}}
	go s.serve()
	t.Cleanup(func() { _ = conn.Close() })
	return s, conn.LocalAddr().(*net.UDPAddr).Port
}

func (s *tnfsServer) serve() {
	buf := make([]byte, 1024)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		if n < 4 {
			continue
		}
		reply := s.handle(buf[:n])
		if reply != nil {
			_, _ = s.conn.WriteToUDP(reply, addr)
		}
	}
}

func (s *tnfsServer) handle(req []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd := req[3]
	s.requests[cmd]++
	if s.dropNext > 0 {
		s.dropNext--
		return nil
	}

	if !s.replay {
		return s.execute(req)
	}
	var reply []byte
	if s.lastReq != nil && string(req[2:]) == string(s.lastReq[2:]) {
		reply = s.lastReply
	} else {
		reply = s.execute(req)
		s.lastReq = append([]byte(nil), req...)
		s.lastReply = reply
	}
	if s.lose[cmd] > 0 {
		s.lose[cmd]--
		return nil
	}
	return reply
}

func (s *tnfsServer) execute(req []byte) []byte {
	cmd := req[3]
	out := []byte{0x34, 0x12, req[2], cmd}
	data := req[4:]
	cstr := func(b []byte) string { name, _, _ := strings.Cut(string(b), "\x00"); return name }

	switch cmd {
	case tnfsMount:
		return append(out, tnfsOK, 0x02, 0x01, 0xE8, 0x03)
	case tnfsUmount, tnfsClose, tnfsCloseDir:
		return append(out, tnfsOK)
	case tnfsOpen:
		name := cstr(data[4:])
		if _, ok := s.files[name]; !ok {
			return append(out, tnfsENOENT)
		}
		s.openName, s.pos = name, 0
		return append(out, tnfsOK, 7)
	case tnfsStat:
		name := cstr(data)
		st := make([]byte, 22)
		if b, ok := s.files[name]; ok {
			binary.LittleEndian.PutUint16(st, 0o100644)
			binary.LittleEndian.PutUint32(st[6:], uint32(len(b)))
		} else {
			binary.LittleEndian.PutUint16(st, 0o040755)
		}
		return append(append(out, tnfsOK), st...)
	case tnfsRead:
		want := int(binary.LittleEndian.Uint16(data[1:]))
		b := s.files[s.openName]
		if s.pos >= len(b) {
			return append(out, tnfsEOF)
		}
		chunk := b[s.pos:min(s.pos+want, len(b))]
		s.pos += len(chunk)
		out = append(out, tnfsOK, 0, 0)
		binary.LittleEndian.PutUint16(out[5:], uint16(len(chunk)))
		return append(out, chunk...)
	case tnfsLseek:
		s.pos = int(binary.LittleEndian.Uint32(data[2:]))
		return append(out, tnfsOK)
	case tnfsOpenDir:
		s.dirList = []string{".", "..", "sub"}
		for name := range s.files {
			s.dirList = append(s.dirList, strings.TrimPrefix(name, "/"))
		}
		return append(out, tnfsOK, 1)
	case tnfsReadDir:
		if len(s.dirList) == 0 {
			return append(out, tnfsEOF)
		}
		name := s.dirList[0]
		s.dirList = s.dirList[1:]
		return append(append(out, tnfsOK), appendCString(nil, name)...)
	case tnfsUnlink:
		s.unlinked = append(s.unlinked, cstr(data))
		return append(out, tnfsOK)
	default:
		return append(out, tnfsENOTSUP)
	}
}

func newTNFSAdapter(port int) *Adapter {
	cfg := testConfig()
	cfg.DefaultScheme = "tnfs"
	cfg.TNFSPort = port
	cfg.AttemptTimeout = time.Second
	reg := NewRegistry()
	reg.Register("tnfs", newTNFSProto(port))
	return New(cfg, reg, nil)
}

func TestTNFSOpenReadEOF(t *testing.T) {
	srv, port := startTNFS(t, map[string][]byte{"/game.atr": []byte("TNFS DATA")})
	a := newTNFSAdapter(port)
	ctx := context.Background()

	require.NoError(t, a.Open(ctx, "N:127.0.0.1/game.atr", openCmd(4)))
	assert.Equal(t, uint16(9), a.Status().BytesWaiting)

	buf := make([]byte, 4)
	n, err := a.Read(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, "TNFS", string(buf[:n]))

	buf = make([]byte, 16)
	n, err = a.Read(ctx, buf)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, " DATA", string(buf[:n]))

	a.Close()
	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Equal(t, 1, srv.requests[tnfsClose])
	assert.Equal(t, 1, srv.requests[tnfsUmount])
}

func TestTNFSRetransmitsLostRequests(t *testing.T) {
	srv, port := startTNFS(t, map[string][]byte{"/a": []byte("xyz")})
	srv.dropNext = 1
	a := newTNFSAdapter(port)

	require.NoError(t, a.Open(context.Background(), "tnfs://127.0.0.1/a", openCmd(4)))
	srv.mu.Lock()
	assert.Equal(t, 2, srv.requests[tnfsMount])
	srv.mu.Unlock()
	a.Close()
}

func TestTNFSRetryAfterLostReadReplyKeepsPosition(t *testing.T) {
	data := make([]byte, 1024)
	for i := 512; i < len(data); i++ {
		data[i] = 0x80
	}
	srv, port := startTNFS(t, map[string][]byte{"/f.bin": data})

	cfg := testConfig()
	cfg.TNFSPort = port
	cfg.AttemptTimeout = 150 * time.Millisecond
	cfg.MaxReadAttempts = 10
	reg := NewRegistry()
	reg.Register("tnfs", newTNFSProto(port))
	a := New(cfg, reg, nil)
	ctx := context.Background()

	require.NoError(t, a.Open(ctx, "tnfs://127.0.0.1/f.bin", openCmd(4)))

	srv.mu.Lock()
	srv.replay = true
	srv.lose = map[byte]int{tnfsRead: 3}
	srv.mu.Unlock()

	buf := make([]byte, 512)
	n, err := a.Read(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, 512, n)
	assert.Equal(t, make([]byte, 512), buf, "first block must come from offset 0")

	n, err = a.Read(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, 512, n)
	assert.Equal(t, data[512:], buf)

	n, err = a.Read(ctx, buf)
	assert.ErrorIs(t, err, io.EOF)
	assert.Zero(t, n)
	a.Close()
}

func TestTNFSOpenMissing(t *testing.T) {
	_, port := startTNFS(t, map[string][]byte{})
	a := newTNFSAdapter(port)

	err := a.Open(context.Background(), "tnfs://127.0.0.1/none", openCmd(4))
	assert.ErrorIs(t, err, derrors.ErrNotFound)
}

func TestTNFSSeek(t *testing.T) {
	_, port := startTNFS(t, map[string][]byte{"/f": []byte("0123456789")})
	a := newTNFSAdapter(port)
	ctx := context.Background()

	require.NoError(t, a.Open(ctx, "tnfs://127.0.0.1/f", openCmd(4)))
	require.NoError(t, a.Point(ctx, 8))

	buf := make([]byte, 2)
	n, err := a.Read(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, "89", string(buf[:n]))
	a.Close()
}

func TestTNFSDirectoryAndDelete(t *testing.T) {
	srv, port := startTNFS(t, map[string][]byte{"/a.atr": []byte("abc")})
	a := newTNFSAdapter(port)
	ctx := context.Background()

	require.NoError(t, a.Open(ctx, "tnfs://127.0.0.1/", openCmd(6)))
	buf := make([]byte, 64)
	n, _ := a.Read(ctx, buf)
	assert.Equal(t, "sub/\na.atr 3\n", string(buf[:n]))
	a.Close()

	require.NoError(t, a.Delete(ctx, "tnfs://127.0.0.1/a.atr", nil))
	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Equal(t, []string{"/a.atr"}, srv.unlinked)
}
