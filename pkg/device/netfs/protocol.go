package netfs

import (
	"context"
	"time"
)

// Mode is the open mode decoded from aux1 of an OPEN command.
type Mode uint8

const (
	ModeRead Mode = 1 << iota
	ModeWrite
	ModeAppend
	ModeDirectory
)

// Legacy aux1 open flags.
const (
	aux1Read      = 0x04
	aux1Write     = 0x08
	aux1Append    = 0x09
	aux1Directory = 0x06
)

// ModeFromAux1 decodes the legacy open mode. 6 is a directory listing,
// 9 an append, and bits 4 and 8 select read and write.
func ModeFromAux1(aux1 byte) Mode {
	switch aux1 {
	case aux1Directory:
		return ModeDirectory | ModeRead
	case aux1Append:
		return ModeWrite | ModeAppend
	}

	var m Mode
	if aux1&aux1Read != 0 {
		m |= ModeRead
	}
	if aux1&aux1Write != 0 {
		m |= ModeWrite
	}
	if m == 0 {
		m = ModeRead
	}
	return m
}

func (m Mode) Has(f Mode) bool { return m&f != 0 }

func (m Mode) String() string {
	switch {
	case m.Has(ModeDirectory):
		return "dir"
	case m.Has(ModeAppend):
		return "append"
	case m.Has(ModeRead) && m.Has(ModeWrite):
		return "rw"
	case m.Has(ModeWrite):
		return "write"
	default:
		return "read"
	}
}

// Protocol is one network session behind the N: device. A Protocol value
// serves a single open..close sequence; the adapter creates a fresh one
// from its Factory on every open.
//
// Read must honour ctx: when nothing arrives before the deadline it returns
// 0 and the context error so the adapter can retry without blocking the
// bus. Read returns io.EOF once the remote data is exhausted.
type Protocol interface {
	Open(ctx context.Context, u *ParsedURL, mode Mode) error
	Read(ctx context.Context, buf []byte) (int, error)
	Write(ctx context.Context, buf []byte) (int, error)
	Close() error

	// Available reports bytes known to be waiting, or -1 when unknown.
	Available() int

	// EOF reports whether every remote byte has been consumed.
	EOF() bool
}

// Factory creates an unopened Protocol.
type Factory func() Protocol

// DirEntry is one line of a directory listing.
type DirEntry struct {
	Name    string
	Size    int64
	IsDir   bool
	ModTime time.Time
}

// Optional capabilities. Extended device operations report Unsupported
// for protocols that do not implement them.

type DirLister interface {
	ReadDir(ctx context.Context, u *ParsedURL) ([]DirEntry, error)
}

type Remover interface {
	Remove(ctx context.Context, u *ParsedURL) error
}

type Renamer interface {
	Rename(ctx context.Context, from, to *ParsedURL) error
}

type DirMaker interface {
	Mkdir(ctx context.Context, u *ParsedURL) error
}

type DirRemover interface {
	Rmdir(ctx context.Context, u *ParsedURL) error
}

// Seeker repositions an open session.
type Seeker interface {
	Seek(ctx context.Context, pos int64) error
}
