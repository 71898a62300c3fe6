// Package disk emulates a floppy drive backed by an ATR disk image.
//
// A drive without a mounted image reports itself disabled, so the bus
// treats it as absent the way a real empty drive is silent.
package disk

import (
	"context"
	"errors"
	"io"

	"github.com/marmos91/dittonet/internal/logger"
	"github.com/marmos91/dittonet/pkg/device"
	derrors "github.com/marmos91/dittonet/pkg/errors"
)

// legacySectorSize is the unit bus codecs use to express sector positions.
const legacySectorSize = 128

var errNoImage = errors.New("no image mounted")

// Mounted is an image detached from a drive, ready to be attached to
// another one.
type Mounted struct {
	img      Image
	hdr      Header
	Target   string
	Writable bool
}

// Disk is a device.Adapter serving sectors of a mounted ATR image.
type Disk struct {
	device.Unsupported

	opener  Opener
	m       *Mounted
	sector  uint32
	lastErr byte
}

// New creates an empty drive that mounts images through opener.
func New(opener Opener) *Disk {
	return &Disk{opener: opener, sector: 1, lastErr: device.CodeSuccess}
}

func (d *Disk) Name() string { return "disk" }

// Enabled reports whether an image is mounted.
func (d *Disk) Enabled() bool { return d.m != nil }

// Target is the mounted image's location, empty when the drive is empty.
func (d *Disk) Target() string {
	if d.m == nil {
		return ""
	}
	return d.m.Target
}

// Header returns the mounted image's header.
func (d *Disk) Header() (Header, bool) {
	if d.m == nil {
		return Header{}, false
	}
	return d.m.hdr, true
}

// Mount opens target and attaches it, replacing any mounted image.
func (d *Disk) Mount(ctx context.Context, target string, writable bool) error {
	img, err := d.opener(ctx, target, writable)
	if err != nil {
		return d.fail(err)
	}

	raw := make([]byte, HeaderLen)
	if _, err := img.ReadAt(raw, 0); err != nil && !errors.Is(err, io.EOF) {
		_ = img.Close()
		return d.fail(derrors.Open("disk.mount", err))
	}
	hdr, err := ParseHeader(raw)
	if err != nil {
		_ = img.Close()
		return d.fail(derrors.Open("disk.mount", err))
	}

	d.Attach(&Mounted{img: img, hdr: hdr, Target: target, Writable: writable})
	logger.Info("Disk image mounted", logger.KeyPath, target, "sectors", hdr.Sectors(), "sector_size", hdr.SectorSize, logger.KeyMode, modeName(writable))
	return nil
}

// Attach mounts an already opened image, closing the current one.
func (d *Disk) Attach(m *Mounted) {
	d.Close()
	d.m = m
	d.sector = 1
	d.lastErr = device.CodeSuccess
}

// Detach removes the mounted image without closing it.
func (d *Disk) Detach() *Mounted {
	m := d.m
	d.m = nil
	d.sector = 1
	return m
}

// Open mounts target; aux1 bit 0x08 requests write access.
func (d *Disk) Open(ctx context.Context, target string, cmd *device.Command) error {
	writable := cmd != nil && cmd.Aux1&0x08 != 0
	return d.Mount(ctx, target, writable)
}

// Read returns the current sector and advances to the next one.
func (d *Disk) Read(_ context.Context, buf []byte) (int, error) {
	off, n, err := d.locate("disk.read", len(buf))
	if err != nil {
		return 0, d.fail(err)
	}

	got, err := d.m.img.ReadAt(buf[:n], HeaderLen+off)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, d.fail(derrors.IO("disk.read", err))
	}
	clear(buf[got:n])

	d.sector++
	d.lastErr = device.CodeSuccess
	return n, nil
}

// Write stores buf into the current sector and advances.
func (d *Disk) Write(_ context.Context, buf []byte) (int, error) {
	off, n, err := d.locate("disk.write", len(buf))
	if err != nil {
		return 0, d.fail(err)
	}
	if !d.m.Writable {
		return 0, d.fail(derrors.IO("disk.write", errReadOnly))
	}

	if _, err := d.m.img.WriteAt(buf[:n], HeaderLen+off); err != nil {
		return 0, d.fail(derrors.IO("disk.write", err))
	}

	d.sector++
	d.lastErr = device.CodeSuccess
	return n, nil
}

func (d *Disk) locate(op string, want int) (int64, int, error) {
	if d.m == nil {
		return 0, 0, derrors.Open(op, errNoImage)
	}
	off, size, err := d.m.hdr.SectorOffset(d.sector)
	if err != nil {
		return 0, 0, derrors.E(derrors.KindBadRequest, op, err)
	}
	return off, min(size, want), nil
}

// Status reports the sector size as bytes waiting.
func (d *Disk) Status() device.Status {
	if d.m == nil {
		return device.ErrorStatus(d.lastErr)
	}
	return device.Status{BytesWaiting: d.m.hdr.SectorSize, Connected: true, Error: d.lastErr}
}

// Close unmounts and closes the image.
func (d *Disk) Close() {
	m := d.Detach()
	if m == nil {
		return
	}
	if err := m.img.Close(); err != nil {
		logger.Warn("Failed to close disk image", logger.KeyPath, m.Target, logger.KeyError, err)
	}
}

// Note reports the current sector in bus position units.
func (d *Disk) Note(context.Context) (uint32, error) {
	if d.m == nil {
		return 0, derrors.Open("disk.note", errNoImage)
	}
	return (d.sector - 1) * legacySectorSize, nil
}

// Point selects the sector at pos, expressed in 128-byte units as the bus
// codecs compute it.
func (d *Disk) Point(_ context.Context, pos uint32) error {
	if d.m == nil {
		return d.fail(derrors.Open("disk.point", errNoImage))
	}
	sector := pos/legacySectorSize + 1
	if sector > d.m.hdr.Sectors() {
		return d.fail(derrors.E(derrors.KindBadRequest, "disk.point", errRange))
	}
	d.sector = sector
	return nil
}

func (d *Disk) fail(err error) error {
	d.lastErr = device.CodeFor(err)
	return err
}

func modeName(writable bool) string {
	if writable {
		return "rw"
	}
	return "r"
}
