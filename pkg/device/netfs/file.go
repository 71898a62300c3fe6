package netfs

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"

	derrors "github.com/marmos91/dittonet/pkg/errors"
	"github.com/spf13/afero"
)

// fileProto serves file:// and sd:// targets from local storage. Parse
// folds a URL host into the path, so sd://games/a.atr and
// file:///games/a.atr name the same file.
type fileProto struct {
	fs   afero.Fs
	f    afero.File
	size int64
	pos  int64
}

func newFileProto(fsys afero.Fs) Factory {
	return func() Protocol { return &fileProto{fs: fsys} }
}

func fsPath(u *ParsedURL) string {
	return path.Clean("/" + u.Path)
}

func (p *fileProto) Open(_ context.Context, u *ParsedURL, mode Mode) error {
	if p.fs == nil {
		return derrors.Open("file.open", errors.New("no storage mounted"))
	}

	flag := os.O_RDONLY
	switch {
	case mode.Has(ModeAppend):
		flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	case mode.Has(ModeRead) && mode.Has(ModeWrite):
		flag = os.O_RDWR | os.O_CREATE
	case mode.Has(ModeWrite):
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}

	name := fsPath(u)
	f, err := p.fs.OpenFile(name, flag, 0o644)
	if err != nil {
		return mapFSError("file.open", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return derrors.Open("file.open", err)
	}
	if info.IsDir() {
		_ = f.Close()
		return derrors.Open("file.open", errors.New("is a directory"))
	}

	p.f = f
	p.size = info.Size()
	p.pos = 0
	if mode.Has(ModeAppend) {
		p.pos = p.size
	}
	return nil
}

func (p *fileProto) Read(_ context.Context, buf []byte) (int, error) {
	if p.f == nil {
		return 0, io.ErrClosedPipe
	}
	n, err := p.f.Read(buf)
	p.pos += int64(n)
	return n, err
}

func (p *fileProto) Write(_ context.Context, buf []byte) (int, error) {
	if p.f == nil {
		return 0, io.ErrClosedPipe
	}
	n, err := p.f.Write(buf)
	p.pos += int64(n)
	if p.pos > p.size {
		p.size = p.pos
	}
	return n, err
}

func (p *fileProto) Close() error {
	if p.f == nil {
		return nil
	}
	err := p.f.Close()
	p.f = nil
	return err
}

func (p *fileProto) Available() int {
	if p.f == nil || p.pos >= p.size {
		return 0
	}
	return int(p.size - p.pos)
}

func (p *fileProto) EOF() bool {
	return p.f != nil && p.pos >= p.size
}

func (p *fileProto) Seek(_ context.Context, pos int64) error {
	if p.f == nil {
		return io.ErrClosedPipe
	}
	off, err := p.f.Seek(pos, io.SeekStart)
	if err != nil {
		return err
	}
	p.pos = off
	return nil
}

func (p *fileProto) ReadDir(_ context.Context, u *ParsedURL) ([]DirEntry, error) {
	if p.fs == nil {
		return nil, derrors.Open("file.list", errors.New("no storage mounted"))
	}
	infos, err := afero.ReadDir(p.fs, fsPath(u))
	if err != nil {
		return nil, mapFSError("file.list", err)
	}

	out := make([]DirEntry, 0, len(infos))
	for _, fi := range infos {
		out = append(out, DirEntry{Name: fi.Name(), Size: fi.Size(), IsDir: fi.IsDir(), ModTime: fi.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (p *fileProto) Remove(_ context.Context, u *ParsedURL) error {
	return mapFSError("file.delete", p.fs.Remove(fsPath(u)))
}

func (p *fileProto) Rename(_ context.Context, from, to *ParsedURL) error {
	return mapFSError("file.rename", p.fs.Rename(fsPath(from), fsPath(to)))
}

func (p *fileProto) Mkdir(_ context.Context, u *ParsedURL) error {
	return mapFSError("file.mkdir", p.fs.Mkdir(fsPath(u), 0o755))
}

func (p *fileProto) Rmdir(_ context.Context, u *ParsedURL) error {
	return mapFSError("file.rmdir", p.fs.Remove(fsPath(u)))
}

func mapFSError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return derrors.E(derrors.KindNotFound, op, err)
	case errors.Is(err, fs.ErrPermission), errors.Is(err, fs.ErrExist):
		return derrors.Open(op, err)
	default:
		return derrors.IO(op, err)
	}
}
