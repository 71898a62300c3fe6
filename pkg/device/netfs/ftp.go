package netfs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/textproto"
	"time"

	"github.com/jlaffaye/ftp"
	derrors "github.com/marmos91/dittonet/pkg/errors"
)

const ftpPort = 21

// ftpProto retrieves files over a passive data connection and stores
// writes with a single STOR (or APPE) on Close.
type ftpProto struct {
	cfg     FTPConfig
	timeout time.Duration

	conn  *ftp.ServerConn
	u     *ParsedURL
	mode  Mode
	body  *stream
	wbuf  bytes.Buffer
	dirty bool
}

func newFTPProto(cfg FTPConfig, timeout time.Duration) Factory {
	return func() Protocol { return &ftpProto{cfg: cfg, timeout: timeout} }
}

// dial connects and logs in. URL credentials win over configured ones,
// and with neither the anonymous login is used.
func (p *ftpProto) dial(ctx context.Context, u *ParsedURL) (*ftp.ServerConn, error) {
	c, err := ftp.Dial(u.HostPort(ftpPort), ftp.DialWithContext(ctx), ftp.DialWithTimeout(p.timeout))
	if err != nil {
		return nil, derrors.Open("ftp.dial", err)
	}

	user, pass := u.User, u.Password
	if user == "" {
		user, pass = p.cfg.User, p.cfg.Password
	}
	if user == "" {
		user, pass = "anonymous", "anonymous"
	}
	if err := c.Login(user, pass); err != nil {
		_ = c.Quit()
		return nil, derrors.Open("ftp.login", err)
	}
	return c, nil
}

func (p *ftpProto) Open(ctx context.Context, u *ParsedURL, mode Mode) error {
	c, err := p.dial(ctx, u)
	if err != nil {
		return err
	}
	p.conn = c
	p.u = u
	p.mode = mode

	if mode.Has(ModeWrite) && !mode.Has(ModeRead) {
		p.dirty = true
		return nil
	}
	return p.retr(0)
}

func (p *ftpProto) retr(offset int64) error {
	size, err := p.conn.FileSize(p.u.Path)
	if err != nil {
		size = -1
	}

	resp, err := p.conn.RetrFrom(p.u.Path, uint64(offset))
	if err != nil {
		return ftpError("ftp.retr", err)
	}
	if size >= 0 {
		size -= offset
		if size < 0 {
			size = 0
		}
	}
	p.body = newStream(resp, size)
	return nil
}

func (p *ftpProto) Read(ctx context.Context, buf []byte) (int, error) {
	if p.body == nil {
		return 0, derrors.BadRequest("ftp.read", "opened write-only")
	}
	return p.body.Read(ctx, buf)
}

func (p *ftpProto) Write(_ context.Context, buf []byte) (int, error) {
	if !p.mode.Has(ModeWrite) {
		return 0, derrors.BadRequest("ftp.write", "opened read-only")
	}
	p.dirty = true
	return p.wbuf.Write(buf)
}

func (p *ftpProto) Close() error {
	if p.conn == nil {
		return nil
	}

	var err error
	if p.body != nil {
		_ = p.body.Close()
		p.body = nil
	}
	if p.dirty {
		r := bytes.NewReader(p.wbuf.Bytes())
		if p.mode.Has(ModeAppend) {
			err = p.conn.Append(p.u.Path, r)
		} else {
			err = p.conn.Stor(p.u.Path, r)
		}
		if err != nil {
			err = derrors.IO("ftp.stor", err)
		}
		p.dirty = false
		p.wbuf.Reset()
	}

	_ = p.conn.Quit()
	p.conn = nil
	return err
}

func (p *ftpProto) Available() int {
	if p.body == nil {
		return 0
	}
	return p.body.Available()
}

func (p *ftpProto) EOF() bool {
	return p.body != nil && p.body.EOF()
}

// Seek aborts the running transfer and restarts it with REST.
func (p *ftpProto) Seek(_ context.Context, pos int64) error {
	if p.body == nil {
		return derrors.Unsupported("ftp.seek")
	}
	_ = p.body.Close()
	p.body = nil
	return p.retr(pos)
}

func (p *ftpProto) ReadDir(ctx context.Context, u *ParsedURL) ([]DirEntry, error) {
	var out []DirEntry
	err := p.oneShot(ctx, u, func(c *ftp.ServerConn) error {
		entries, err := c.List(u.Path)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.Name == "." || e.Name == ".." {
				continue
			}
			out = append(out, DirEntry{
				Name:    e.Name,
				Size:    int64(e.Size),
				IsDir:   e.Type == ftp.EntryTypeFolder,
				ModTime: e.Time,
			})
		}
		return nil
	})
	return out, err
}

func (p *ftpProto) Remove(ctx context.Context, u *ParsedURL) error {
	return p.oneShot(ctx, u, func(c *ftp.ServerConn) error { return c.Delete(u.Path) })
}

func (p *ftpProto) Rename(ctx context.Context, from, to *ParsedURL) error {
	return p.oneShot(ctx, from, func(c *ftp.ServerConn) error { return c.Rename(from.Path, to.Path) })
}

func (p *ftpProto) Mkdir(ctx context.Context, u *ParsedURL) error {
	return p.oneShot(ctx, u, func(c *ftp.ServerConn) error { return c.MakeDir(u.Path) })
}

func (p *ftpProto) Rmdir(ctx context.Context, u *ParsedURL) error {
	return p.oneShot(ctx, u, func(c *ftp.ServerConn) error { return c.RemoveDir(u.Path) })
}

func (p *ftpProto) oneShot(ctx context.Context, u *ParsedURL, fn func(*ftp.ServerConn) error) error {
	c, err := p.dial(ctx, u)
	if err != nil {
		return err
	}
	defer func() { _ = c.Quit() }()

	if err := fn(c); err != nil {
		return ftpError("ftp.command", err)
	}
	return nil
}

// ftpError maps 550 replies (no such file, permission denied) to
// not-found, everything else to an I/O failure.
func ftpError(op string, err error) error {
	var te *textproto.Error
	if errors.As(err, &te) && te.Code == ftp.StatusFileUnavailable {
		return derrors.E(derrors.KindNotFound, op, err)
	}
	if errors.Is(err, io.EOF) {
		return derrors.IO(op, io.ErrUnexpectedEOF)
	}
	return derrors.IO(op, err)
}
