package netfs

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net"
	"os"
	"strings"
	"time"

	"github.com/hirochachacha/go-smb2"
	derrors "github.com/marmos91/dittonet/pkg/errors"
)

const smbPort = 445

// smbProto serves smb://host/share/path targets. Reads are pumped from
// the remote file in the background; writes go straight to the file.
type smbProto struct {
	cfg     SMBConfig
	timeout time.Duration

	conn    net.Conn
	session *smb2.Session
	share   *smb2.Share
	file    *smb2.File
	name    string
	mode    Mode
	body    *stream
}

func newSMBProto(cfg SMBConfig, timeout time.Duration) Factory {
	return func() Protocol { return &smbProto{cfg: cfg, timeout: timeout} }
}

// splitShare separates the share name from the path inside it and
// converts the path to SMB separators.
func splitShare(u *ParsedURL) (share, name string, err error) {
	p := strings.TrimPrefix(u.Path, "/")
	share, name, _ = strings.Cut(p, "/")
	if share == "" {
		return "", "", derrors.BadRequest("smb.open", "missing share name")
	}
	name = strings.TrimSuffix(name, "/")
	return share, strings.ReplaceAll(name, "/", `\`), nil
}

// mount dials host and mounts the share named by u.
func (p *smbProto) mount(ctx context.Context, u *ParsedURL) (string, error) {
	shareName, name, err := splitShare(u)
	if err != nil {
		return "", err
	}

	dialer := net.Dialer{Timeout: p.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", u.HostPort(smbPort))
	if err != nil {
		return "", derrors.Open("smb.dial", err)
	}

	user, pass, domain := u.User, u.Password, p.cfg.Domain
	if user == "" {
		user, pass = p.cfg.User, p.cfg.Password
	}
	if user == "" {
		user = "guest"
	}

	d := &smb2.Dialer{Initiator: &smb2.NTLMInitiator{User: user, Password: pass, Domain: domain}}
	s, err := d.DialContext(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return "", derrors.Open("smb.session", err)
	}

	share, err := s.Mount(shareName)
	if err != nil {
		_ = s.Logoff()
		_ = conn.Close()
		return "", derrors.Open("smb.mount", err)
	}

	p.conn, p.session, p.share = conn, s, share
	return name, nil
}

func (p *smbProto) Open(ctx context.Context, u *ParsedURL, mode Mode) error {
	name, err := p.mount(ctx, u)
	if err != nil {
		return err
	}
	p.name = name
	p.mode = mode
	return p.openFile(0)
}

func (p *smbProto) openFile(offset int64) error {
	flag := os.O_RDONLY
	switch {
	case p.mode.Has(ModeAppend):
		flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	case p.mode.Has(ModeRead) && p.mode.Has(ModeWrite):
		flag = os.O_RDWR | os.O_CREATE
	case p.mode.Has(ModeWrite):
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}

	f, err := p.share.OpenFile(p.name, flag, 0o644)
	if err != nil {
		return mapFSError("smb.open", err)
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			_ = f.Close()
			return derrors.IO("smb.seek", err)
		}
	}

	p.file = f
	if p.mode.Has(ModeWrite) {
		return nil
	}

	size := int64(-1)
	if info, err := f.Stat(); err == nil {
		size = info.Size() - offset
		if size < 0 {
			size = 0
		}
	}
	p.body = newStream(f, size)
	return nil
}

func (p *smbProto) Read(ctx context.Context, buf []byte) (int, error) {
	if p.body == nil {
		return 0, derrors.BadRequest("smb.read", "opened for writing")
	}
	return p.body.Read(ctx, buf)
}

func (p *smbProto) Write(_ context.Context, buf []byte) (int, error) {
	if p.file == nil || !p.mode.Has(ModeWrite) {
		return 0, derrors.BadRequest("smb.write", "opened read-only")
	}
	return p.file.Write(buf)
}

func (p *smbProto) closeFile() error {
	if p.body != nil {
		err := p.body.Close()
		p.body, p.file = nil, nil
		return err
	}
	if p.file != nil {
		err := p.file.Close()
		p.file = nil
		return err
	}
	return nil
}

func (p *smbProto) Close() error {
	err := p.closeFile()
	if p.share != nil {
		_ = p.share.Umount()
		p.share = nil
	}
	if p.session != nil {
		_ = p.session.Logoff()
		p.session = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
	if errors.Is(err, fs.ErrClosed) {
		return nil
	}
	return err
}

func (p *smbProto) Available() int {
	if p.body == nil {
		return 0
	}
	return p.body.Available()
}

func (p *smbProto) EOF() bool {
	return p.body != nil && p.body.EOF()
}

func (p *smbProto) Seek(_ context.Context, pos int64) error {
	if p.share == nil {
		return derrors.IO("smb.seek", errNoSession)
	}
	if p.body == nil && p.file != nil {
		if _, err := p.file.Seek(pos, io.SeekStart); err != nil {
			return derrors.IO("smb.seek", err)
		}
		return nil
	}
	_ = p.closeFile()
	return p.openFile(pos)
}

func (p *smbProto) ReadDir(ctx context.Context, u *ParsedURL) ([]DirEntry, error) {
	var out []DirEntry
	err := p.oneShot(ctx, u, func(s *smb2.Share, name string) error {
		infos, err := s.ReadDir(name)
		if err != nil {
			return err
		}
		for _, fi := range infos {
			out = append(out, DirEntry{Name: fi.Name(), Size: fi.Size(), IsDir: fi.IsDir(), ModTime: fi.ModTime()})
		}
		return nil
	})
	return out, err
}

func (p *smbProto) Remove(ctx context.Context, u *ParsedURL) error {
	return p.oneShot(ctx, u, func(s *smb2.Share, name string) error { return s.Remove(name) })
}

func (p *smbProto) Rename(ctx context.Context, from, to *ParsedURL) error {
	_, newName, err := splitShare(to)
	if err != nil {
		return err
	}
	return p.oneShot(ctx, from, func(s *smb2.Share, name string) error { return s.Rename(name, newName) })
}

func (p *smbProto) Mkdir(ctx context.Context, u *ParsedURL) error {
	return p.oneShot(ctx, u, func(s *smb2.Share, name string) error { return s.Mkdir(name, 0o755) })
}

func (p *smbProto) Rmdir(ctx context.Context, u *ParsedURL) error {
	return p.oneShot(ctx, u, func(s *smb2.Share, name string) error { return s.Remove(name) })
}

func (p *smbProto) oneShot(ctx context.Context, u *ParsedURL, fn func(*smb2.Share, string) error) error {
	name, err := p.mount(ctx, u)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	if err := fn(p.share.WithContext(ctx), name); err != nil {
		return mapFSError("smb.command", err)
	}
	return nil
}
