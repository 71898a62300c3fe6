package disk

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	derrors "github.com/marmos91/dittonet/pkg/errors"
	"github.com/spf13/afero"
)

// ATR header layout.
const (
	HeaderLen = 16
	atrMagic  = 0x0296
)

var (
	errNotATR   = errors.New("not an ATR image")
	errReadOnly = errors.New("image is write protected")
	errRange    = errors.New("sector out of range")
)

// Image is the random-access storage behind a mounted disk.
type Image interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
}

// Opener resolves a target into an image. writable asks for a read-write
// image; openers that cannot provide one fail with a KindOpen error.
type Opener func(ctx context.Context, target string, writable bool) (Image, error)

// Header is the decoded 16-byte ATR header.
type Header struct {
	SectorSize uint16
	// DataSize is the image payload in bytes, excluding the header.
	DataSize uint32
}

// ParseHeader decodes an ATR header.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen || binary.LittleEndian.Uint16(b) != atrMagic {
		return Header{}, errNotATR
	}
	paragraphs := uint32(binary.LittleEndian.Uint16(b[2:])) | uint32(b[6])<<16
	h := Header{
		SectorSize: binary.LittleEndian.Uint16(b[4:]),
		DataSize:   paragraphs * 16,
	}
	if h.SectorSize != 128 && h.SectorSize != 256 {
		return Header{}, fmt.Errorf("%w: sector size %d", errNotATR, h.SectorSize)
	}
	return h, nil
}

// Bytes encodes h as an ATR header.
func (h Header) Bytes() []byte {
	b := make([]byte, HeaderLen)
	binary.LittleEndian.PutUint16(b, atrMagic)
	paragraphs := h.DataSize / 16
	binary.LittleEndian.PutUint16(b[2:], uint16(paragraphs))
	binary.LittleEndian.PutUint16(b[4:], h.SectorSize)
	b[6] = byte(paragraphs >> 16)
	return b
}

// Sectors is the number of sectors the image holds. The first three
// sectors are always 128 bytes.
func (h Header) Sectors() uint32 {
	if h.SectorSize == 128 {
		return h.DataSize / 128
	}
	if h.DataSize <= 3*128 {
		return h.DataSize / 128
	}
	return 3 + (h.DataSize-3*128)/uint32(h.SectorSize)
}

// SectorOffset returns the data offset and length of 1-based sector n.
func (h Header) SectorOffset(n uint32) (int64, int, error) {
	if n == 0 || n > h.Sectors() {
		return 0, 0, errRange
	}
	if h.SectorSize == 128 || n <= 3 {
		return int64(n-1) * 128, 128, nil
	}
	return 3*128 + int64(n-4)*int64(h.SectorSize), int(h.SectorSize), nil
}

// FSOpener opens images from a filesystem.
func FSOpener(fsys afero.Fs) Opener {
	return func(_ context.Context, target string, writable bool) (Image, error) {
		flag := os.O_RDONLY
		if writable {
			flag = os.O_RDWR
		}
		f, err := fsys.OpenFile(target, flag, 0)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, derrors.E(derrors.KindNotFound, "disk.open", err)
			}
			return nil, derrors.Open("disk.open", err)
		}
		return f, nil
	}
}

// MemImage is a read-only image held in memory, used for images fetched
// from network hosts.
type MemImage struct {
	r *bytes.Reader
}

func NewMemImage(b []byte) *MemImage { return &MemImage{r: bytes.NewReader(b)} }

func (m *MemImage) ReadAt(p []byte, off int64) (int, error) { return m.r.ReadAt(p, off) }

func (m *MemImage) WriteAt([]byte, int64) (int, error) { return 0, errReadOnly }

func (m *MemImage) Close() error { return nil }
