package netfs

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	derrors "github.com/marmos91/dittonet/pkg/errors"
)

// TNFS command codes.
const (
	tnfsMount    = 0x00
	tnfsUmount   = 0x01
	tnfsOpenDir  = 0x10
	tnfsReadDir  = 0x11
	tnfsCloseDir = 0x12
	tnfsMkdir    = 0x13
	tnfsRmdir    = 0x14
	tnfsRead     = 0x21
	tnfsWrite    = 0x22
	tnfsClose    = 0x23
	tnfsStat     = 0x24
	tnfsLseek    = 0x25
	tnfsUnlink   = 0x26
	tnfsRename   = 0x28
	tnfsOpen     = 0x29
)

// TNFS status codes.
const (
	tnfsOK      = 0x00
	tnfsEPERM   = 0x01
	tnfsENOENT  = 0x02
	tnfsEAGAIN  = 0x0B
	tnfsEACCES  = 0x0D
	tnfsEEXIST  = 0x11
	tnfsENOTDIR = 0x14
	tnfsEISDIR  = 0x15
	tnfsEOF     = 0x21
	tnfsENOTSUP = 0x5F
)

// Open flags.
const (
	tnfsORdonly = 0x0001
	tnfsOWronly = 0x0002
	tnfsORdwr   = 0x0003
	tnfsOAppend = 0x0008
	tnfsOCreat  = 0x0100
	tnfsOTrunc  = 0x0200
)

const (
	tnfsVersion   = 0x0102
	tnfsMaxIO     = 512
	tnfsMaxPacket = 532
	tnfsRetry     = 100 * time.Millisecond
)

// tnfsError is a non-zero TNFS status.
type tnfsError byte

func (e tnfsError) Error() string { return fmt.Sprintf("tnfs status 0x%02X", byte(e)) }

// tnfsConn is one mounted TNFS session. Requests are retransmitted every
// tnfsRetry until a reply with the matching sequence number arrives or
// ctx ends.
//
// A request left unanswered when ctx ends stays pending. The next call with
// the same command and payload resends it under the same sequence number,
// so the server replays its cached reply instead of running a READ or
// WRITE twice.
type tnfsConn struct {
	udp     net.Conn
	connID  uint16
	seq     byte
	pending []byte
	buf     [tnfsMaxPacket]byte
}

func dialTNFS(ctx context.Context, addr, root, user, pass string) (*tnfsConn, error) {
	var d net.Dialer
	udp, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, err
	}
	c := &tnfsConn{udp: udp}

	req := binary.LittleEndian.AppendUint16(nil, tnfsVersion)
	req = appendCString(req, root)
	req = appendCString(req, user)
	req = appendCString(req, pass)

	if _, err := c.call(ctx, tnfsMount, req); err != nil {
		_ = udp.Close()
		return nil, err
	}
	return c, nil
}

func appendCString(b []byte, s string) []byte {
	return append(append(b, s...), 0)
}

// call sends cmd with payload and returns the reply data after the status
// byte. A non-zero status is returned as tnfsError.
func (c *tnfsConn) call(ctx context.Context, cmd byte, payload []byte) ([]byte, error) {
	pkt := c.request(cmd, payload)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := c.udp.Write(pkt); err != nil {
			c.pending = nil
			return nil, err
		}

		deadline := time.Now().Add(tnfsRetry)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		_ = c.udp.SetReadDeadline(deadline)

		for {
			n, err := c.udp.Read(c.buf[:])
			if err != nil {
				var ne net.Error
				if errors.As(err, &ne) && ne.Timeout() {
					break
				}
				c.pending = nil
				return nil, err
			}
			if n < 5 || c.buf[2] != c.seq || c.buf[3] != cmd {
				continue
			}
			c.pending = nil
			if cmd == tnfsMount {
				c.connID = binary.LittleEndian.Uint16(c.buf[:2])
			}
			if status := c.buf[4]; status != tnfsOK {
				return nil, tnfsError(status)
			}
			return append([]byte(nil), c.buf[5:n]...), nil
		}
	}
}

// request returns the packet for cmd. It reuses the pending packet when it
// carries the same command and payload, else it takes a new sequence number.
func (c *tnfsConn) request(cmd byte, payload []byte) []byte {
	if p := c.pending; p != nil && p[3] == cmd && bytes.Equal(p[4:], payload) {
		binary.LittleEndian.PutUint16(p, c.connID)
		return p
	}

	c.seq++
	pkt := make([]byte, 4, 4+len(payload))
	binary.LittleEndian.PutUint16(pkt, c.connID)
	pkt[2] = c.seq
	pkt[3] = cmd
	pkt = append(pkt, payload...)
	c.pending = pkt
	return pkt
}

func (c *tnfsConn) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 4*tnfsRetry)
	defer cancel()
	_, _ = c.call(ctx, tnfsUmount, nil)
	return c.udp.Close()
}

func (c *tnfsConn) pathCall(ctx context.Context, cmd byte, p string) ([]byte, error) {
	return c.call(ctx, cmd, appendCString(nil, p))
}

// tnfsProto serves tnfs://host[:port]/path targets.
type tnfsProto struct {
	port int

	conn *tnfsConn
	fd   byte
	open bool
	size int64
	pos  int64
}

func newTNFSProto(port int) Factory {
	return func() Protocol { return &tnfsProto{port: port} }
}

func (p *tnfsProto) mount(ctx context.Context, u *ParsedURL) error {
	c, err := dialTNFS(ctx, u.HostPort(p.port), "/", u.User, u.Password)
	if err != nil {
		return tnfsToError(derrors.KindOpen, "tnfs.mount", err)
	}
	p.conn = c
	return nil
}

func (p *tnfsProto) Open(ctx context.Context, u *ParsedURL, mode Mode) error {
	if err := p.mount(ctx, u); err != nil {
		return err
	}

	var flags uint16 = tnfsORdonly
	switch {
	case mode.Has(ModeAppend):
		flags = tnfsOWronly | tnfsOCreat | tnfsOAppend
	case mode.Has(ModeRead) && mode.Has(ModeWrite):
		flags = tnfsORdwr | tnfsOCreat
	case mode.Has(ModeWrite):
		flags = tnfsOWronly | tnfsOCreat | tnfsOTrunc
	}

	req := binary.LittleEndian.AppendUint16(nil, flags)
	req = binary.LittleEndian.AppendUint16(req, 0o644)
	req = appendCString(req, u.Path)

	reply, err := p.conn.call(ctx, tnfsOpen, req)
	if err != nil {
		_ = p.conn.close()
		p.conn = nil
		return tnfsToError(derrors.KindOpen, "tnfs.open", err)
	}
	if len(reply) < 1 {
		_ = p.conn.close()
		p.conn = nil
		return derrors.Open("tnfs.open", io.ErrUnexpectedEOF)
	}
	p.fd = reply[0]
	p.open = true
	p.size = -1

	if st, err := p.conn.pathCall(ctx, tnfsStat, u.Path); err == nil && len(st) >= 10 {
		p.size = int64(binary.LittleEndian.Uint32(st[6:10]))
	}
	if mode.Has(ModeAppend) && p.size > 0 {
		p.pos = p.size
	}
	return nil
}

func (p *tnfsProto) Read(ctx context.Context, buf []byte) (int, error) {
	if !p.open {
		return 0, errNoSession
	}
	if p.size >= 0 && p.pos >= p.size {
		return 0, io.EOF
	}
	want := len(buf)
	if want > tnfsMaxIO {
		want = tnfsMaxIO
	}

	req := []byte{p.fd, 0, 0}
	binary.LittleEndian.PutUint16(req[1:], uint16(want))
	reply, err := p.conn.call(ctx, tnfsRead, req)
	if err != nil {
		var te tnfsError
		if errors.As(err, &te) && te == tnfsEOF {
			p.size = p.pos
			return 0, io.EOF
		}
		return 0, err
	}
	if len(reply) < 2 {
		return 0, io.ErrUnexpectedEOF
	}
	n := int(binary.LittleEndian.Uint16(reply))
	n = copy(buf, reply[2:2+min(n, len(reply)-2)])
	p.pos += int64(n)
	return n, nil
}

func (p *tnfsProto) Write(ctx context.Context, buf []byte) (int, error) {
	if !p.open {
		return 0, errNoSession
	}
	total := 0
	for total < len(buf) {
		chunk := buf[total:]
		if len(chunk) > tnfsMaxIO {
			chunk = chunk[:tnfsMaxIO]
		}
		req := make([]byte, 3, 3+len(chunk))
		req[0] = p.fd
		binary.LittleEndian.PutUint16(req[1:], uint16(len(chunk)))
		req = append(req, chunk...)

		reply, err := p.conn.call(ctx, tnfsWrite, req)
		if err != nil {
			return total, tnfsToError(derrors.KindIO, "tnfs.write", err)
		}
		n := len(chunk)
		if len(reply) >= 2 {
			n = int(binary.LittleEndian.Uint16(reply))
		}
		total += n
		p.pos += int64(n)
		if n == 0 {
			return total, derrors.IO("tnfs.write", io.ErrShortWrite)
		}
	}
	if p.size >= 0 && p.pos > p.size {
		p.size = p.pos
	}
	return total, nil
}

func (p *tnfsProto) Close() error {
	if p.conn == nil {
		return nil
	}
	var err error
	if p.open {
		ctx, cancel := context.WithTimeout(context.Background(), 4*tnfsRetry)
		_, err = p.conn.call(ctx, tnfsClose, []byte{p.fd})
		cancel()
		p.open = false
	}
	_ = p.conn.close()
	p.conn = nil
	return err
}

func (p *tnfsProto) Available() int {
	if !p.open || p.size < 0 {
		return -1
	}
	if p.pos >= p.size {
		return 0
	}
	return int(p.size - p.pos)
}

func (p *tnfsProto) EOF() bool {
	return p.open && p.size >= 0 && p.pos >= p.size
}

func (p *tnfsProto) Seek(ctx context.Context, pos int64) error {
	if !p.open {
		return errNoSession
	}
	req := []byte{p.fd, 0, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(req[2:], uint32(pos))
	if _, err := p.conn.call(ctx, tnfsLseek, req); err != nil {
		return tnfsToError(derrors.KindIO, "tnfs.seek", err)
	}
	p.pos = pos
	return nil
}

func (p *tnfsProto) ReadDir(ctx context.Context, u *ParsedURL) ([]DirEntry, error) {
	var out []DirEntry
	err := p.oneShot(ctx, u, func(c *tnfsConn) error {
		reply, err := c.pathCall(ctx, tnfsOpenDir, strings.TrimSuffix(u.Path, "/")+"/")
		if err != nil {
			return err
		}
		if len(reply) < 1 {
			return io.ErrUnexpectedEOF
		}
		handle := reply[0]
		defer func() { _, _ = c.call(ctx, tnfsCloseDir, []byte{handle}) }()

		dir := strings.TrimSuffix(u.Path, "/") + "/"
		for {
			reply, err := c.call(ctx, tnfsReadDir, []byte{handle})
			var te tnfsError
			if errors.As(err, &te) && te == tnfsEOF {
				return nil
			}
			if err != nil {
				return err
			}
			name, _, _ := strings.Cut(string(reply), "\x00")
			if name == "" || name == "." || name == ".." {
				continue
			}

			e := DirEntry{Name: name}
			if st, err := c.pathCall(ctx, tnfsStat, dir+name); err == nil && len(st) >= 22 {
				mode := binary.LittleEndian.Uint16(st)
				e.IsDir = mode&0o170000 == 0o040000
				e.Size = int64(binary.LittleEndian.Uint32(st[6:10]))
				e.ModTime = time.Unix(int64(binary.LittleEndian.Uint32(st[14:18])), 0)
			}
			out = append(out, e)
		}
	})
	return out, err
}

func (p *tnfsProto) Remove(ctx context.Context, u *ParsedURL) error {
	return p.oneShot(ctx, u, func(c *tnfsConn) error {
		_, err := c.pathCall(ctx, tnfsUnlink, u.Path)
		return err
	})
}

func (p *tnfsProto) Rename(ctx context.Context, from, to *ParsedURL) error {
	return p.oneShot(ctx, from, func(c *tnfsConn) error {
		_, err := c.call(ctx, tnfsRename, appendCString(appendCString(nil, from.Path), to.Path))
		return err
	})
}

func (p *tnfsProto) Mkdir(ctx context.Context, u *ParsedURL) error {
	return p.oneShot(ctx, u, func(c *tnfsConn) error {
		_, err := c.pathCall(ctx, tnfsMkdir, u.Path)
		return err
	})
}

func (p *tnfsProto) Rmdir(ctx context.Context, u *ParsedURL) error {
	return p.oneShot(ctx, u, func(c *tnfsConn) error {
		_, err := c.pathCall(ctx, tnfsRmdir, u.Path)
		return err
	})
}

func (p *tnfsProto) oneShot(ctx context.Context, u *ParsedURL, fn func(*tnfsConn) error) error {
	if err := p.mount(ctx, u); err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	if err := fn(p.conn); err != nil {
		return tnfsToError(derrors.KindIO, "tnfs.command", err)
	}
	return nil
}

// tnfsToError classifies a TNFS status. Transport failures get kind k.
func tnfsToError(k derrors.Kind, op string, err error) error {
	var te tnfsError
	if !errors.As(err, &te) {
		return derrors.E(k, op, err)
	}
	switch te {
	case tnfsENOENT:
		return derrors.E(derrors.KindNotFound, op, err)
	case tnfsEPERM, tnfsEACCES, tnfsEEXIST, tnfsENOTDIR, tnfsEISDIR:
		return derrors.Open(op, err)
	case tnfsEAGAIN:
		return derrors.E(derrors.KindBusy, op, err)
	case tnfsENOTSUP:
		return derrors.Unsupported(op)
	case tnfsEOF:
		return io.EOF
	default:
		return derrors.IO(op, err)
	}
}
