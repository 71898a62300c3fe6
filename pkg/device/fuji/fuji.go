// Package fuji implements the control device that manages host slots and
// disk slots, mounts images onto the emulated drives and rotates them.
package fuji

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/dittonet/internal/logger"
	"github.com/marmos91/dittonet/internal/telemetry"
	"github.com/marmos91/dittonet/pkg/device"
	"github.com/marmos91/dittonet/pkg/device/disk"
	derrors "github.com/marmos91/dittonet/pkg/errors"
	"github.com/marmos91/dittonet/pkg/store/slots"
)

// Control command bytes.
const (
	CmdReset      byte = 0xFF
	CmdMountImage byte = 0xF9
	CmdMountHost  byte = 0xF8
	CmdReadHosts  byte = 0xF4
	CmdWriteHosts byte = 0xF3
	CmdReadDisks  byte = 0xF2
	CmdWriteDisks byte = 0xF1
	CmdUnmount    byte = 0xE9
	CmdMountAll   byte = 0xD7
)

const (
	hostEntryLen = 32
	diskNameLen  = 36
	diskEntryLen = 2 + diskNameLen
)

// Fuji is the control device. It owns the drives it mounts images on; the
// runtime registers those drives on the bus separately.
type Fuji struct {
	device.Unsupported

	state   *slots.State
	drives  [slots.Count]*disk.Disk
	store   slots.Store
	reset   func()
	lastErr byte
}

// Option configures a Fuji device.
type Option func(*Fuji)

// WithStore persists slot changes.
func WithStore(s slots.Store) Option {
	return func(f *Fuji) { f.store = s }
}

// WithReset installs the handler for the reset command.
func WithReset(fn func()) Option {
	return func(f *Fuji) { f.reset = fn }
}

// New creates the control device and its drives, all empty.
func New(opener disk.Opener, opts ...Option) *Fuji {
	f := &Fuji{state: slots.NewState(), lastErr: device.CodeSuccess}
	for i := range f.drives {
		f.drives[i] = disk.New(opener)
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *Fuji) Name() string { return "fuji" }

// Drive returns drive i (0 is D1:).
func (f *Fuji) Drive(i int) *disk.Disk { return f.drives[i] }

// Hosts returns a copy of the host slots.
func (f *Fuji) Hosts() [slots.Count]string { return f.state.Hosts }

// Disks returns a copy of the disk slots.
func (f *Fuji) Disks() [slots.Count]slots.Disk { return f.state.Disks }

// Load restores the slot table from the store. When nothing was saved,
// defaults is used and persisted.
func (f *Fuji) Load(ctx context.Context, defaults *slots.State) error {
	if f.store == nil {
		f.state = defaults
		return nil
	}
	st, err := f.store.Load(ctx)
	if errors.Is(err, slots.ErrEmpty) {
		f.state = defaults
		return f.save(ctx)
	}
	if err != nil {
		return fmt.Errorf("load slots: %w", err)
	}
	f.state = st
	return nil
}

func (f *Fuji) save(ctx context.Context) error {
	if f.store == nil {
		return nil
	}
	if err := f.store.Save(ctx, f.state); err != nil {
		logger.WarnCtx(ctx, "Failed to persist slots", logger.KeyError, err)
		return derrors.IO("fuji.save", err)
	}
	return nil
}

func checkSlot(op string, i int) error {
	if i < 0 || i >= slots.Count {
		return derrors.BadRequest(op, "slot %d out of range", i)
	}
	return nil
}

// SetHost stores url in host slot i.
func (f *Fuji) SetHost(ctx context.Context, i int, url string) error {
	if err := checkSlot("fuji.set_host", i); err != nil {
		return err
	}
	f.state.Hosts[i] = url
	return f.save(ctx)
}

// SetDisk stores d in disk slot i without mounting it.
func (f *Fuji) SetDisk(ctx context.Context, i int, d slots.Disk) error {
	if err := checkSlot("fuji.set_disk", i); err != nil {
		return err
	}
	f.state.Disks[i] = d
	return f.save(ctx)
}

// Target resolves disk slot i into the URL its image lives at.
func (f *Fuji) Target(i int) (string, error) {
	if err := checkSlot("fuji.target", i); err != nil {
		return "", err
	}
	d := f.state.Disks[i]
	if d.Empty() {
		return "", derrors.BadRequest("fuji.target", "disk slot %d is empty", i)
	}
	if int(d.Host) >= slots.Count || f.state.Hosts[d.Host] == "" {
		return "", derrors.BadRequest("fuji.target", "host slot %d is empty", d.Host)
	}
	return JoinTarget(f.state.Hosts[d.Host], d.Path), nil
}

// Mount mounts the image configured in disk slot i on drive i.
func (f *Fuji) Mount(ctx context.Context, i int) error {
	target, err := f.Target(i)
	if err != nil {
		return err
	}
	writable := f.state.Disks[i].Mode == slots.ModeWrite
	if err := f.drives[i].Mount(ctx, target, writable); err != nil {
		logger.WarnCtx(ctx, "Mount failed", "disk_slot", i, logger.KeyPath, target, logger.KeyError, err)
		return err
	}
	return nil
}

// Unmount ejects drive i and clears disk slot i.
func (f *Fuji) Unmount(ctx context.Context, i int) error {
	if err := checkSlot("fuji.unmount", i); err != nil {
		return err
	}
	f.drives[i].Close()
	f.state.Disks[i] = slots.Disk{Host: slots.NoHost, Mode: slots.ModeRead}
	return f.save(ctx)
}

// MountAll mounts every configured disk slot. It keeps going after a
// failure and returns all failures joined.
func (f *Fuji) MountAll(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanMountAll)
	defer span.End()

	var errs []error
	mounted := 0
	for i, d := range f.state.Disks {
		if d.Empty() {
			continue
		}
		if err := f.Mount(ctx, i); err != nil {
			errs = append(errs, err)
			continue
		}
		mounted++
	}
	telemetry.SetAttributes(ctx, telemetry.Count(mounted))

	err := errors.Join(errs...)
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	logger.InfoCtx(ctx, "Mount all finished", "mounted", mounted, "failed", len(errs))
	return err
}

// ImageRotate rotates the images of the leading run of occupied drives by
// one, so that drive order [a b c] becomes [c a b]. It returns how many
// drives took part; fewer than two is a no-op.
func (f *Fuji) ImageRotate(ctx context.Context) int {
	n := 0
	for n < slots.Count && f.drives[n].Enabled() {
		n++
	}
	if n < 2 {
		return 0
	}

	mounted := make([]*disk.Mounted, n)
	for i := 0; i < n; i++ {
		mounted[i] = f.drives[i].Detach()
	}
	lastDisk := f.state.Disks[n-1]
	for i := n - 1; i > 0; i-- {
		f.drives[i].Attach(mounted[i-1])
		f.state.Disks[i] = f.state.Disks[i-1]
	}
	f.drives[0].Attach(mounted[n-1])
	f.state.Disks[0] = lastDisk

	_ = f.save(ctx)
	logger.InfoCtx(ctx, "Rotated disk images", "drives", n)
	return n
}

// Open is accepted and ignored; the control device has no session.
func (f *Fuji) Open(context.Context, string, *device.Command) error { return nil }

func (f *Fuji) Read(context.Context, []byte) (int, error) {
	return 0, derrors.Unsupported("fuji.read")
}

func (f *Fuji) Write(context.Context, []byte) (int, error) {
	return 0, derrors.Unsupported("fuji.write")
}

func (f *Fuji) Status() device.Status {
	return device.Status{Connected: true, Error: f.lastErr}
}

func (f *Fuji) Close() {}

// Special executes a control command.
func (f *Fuji) Special(ctx context.Context, buf []byte, cmd *device.Command) (int, error) {
	n, err := f.special(ctx, buf, cmd)
	f.lastErr = device.CodeFor(err)
	return n, err
}

func (f *Fuji) special(ctx context.Context, buf []byte, cmd *device.Command) (int, error) {
	switch cmd.Code {
	case CmdReadHosts:
		return f.encodeHosts(buf), nil

	case CmdWriteHosts:
		for i := 0; i < slots.Count; i++ {
			f.state.Hosts[i] = field(cmd.Payload, i*hostEntryLen, hostEntryLen)
		}
		return 0, f.save(ctx)

	case CmdReadDisks:
		return f.encodeDisks(buf), nil

	case CmdWriteDisks:
		for i := 0; i < slots.Count; i++ {
			base := i * diskEntryLen
			if base+2 > len(cmd.Payload) {
				break
			}
			f.state.Disks[i] = slots.Disk{
				Host: cmd.Payload[base],
				Mode: slots.Mode(cmd.Payload[base+1]),
				Path: field(cmd.Payload, base+2, diskNameLen),
			}
		}
		return 0, f.save(ctx)

	case CmdMountHost:
		i := int(cmd.Aux1)
		if err := checkSlot("fuji.mount_host", i); err != nil {
			return 0, err
		}
		if f.state.Hosts[i] == "" {
			return 0, derrors.BadRequest("fuji.mount_host", "host slot %d is empty", i)
		}
		return 0, nil

	case CmdMountImage:
		i := int(cmd.Aux1)
		if err := checkSlot("fuji.mount_image", i); err != nil {
			return 0, err
		}
		if cmd.Aux2 != 0 {
			f.state.Disks[i].Mode = slots.Mode(cmd.Aux2)
		}
		if err := f.Mount(ctx, i); err != nil {
			return 0, err
		}
		return 0, f.save(ctx)

	case CmdUnmount:
		return 0, f.Unmount(ctx, int(cmd.Aux1))

	case CmdMountAll:
		return 0, f.MountAll(ctx)

	case CmdReset:
		if f.reset == nil {
			return 0, derrors.Unsupported("fuji.reset")
		}
		f.reset()
		return 0, nil

	default:
		return 0, derrors.Unsupported(fmt.Sprintf("fuji.0x%02X", cmd.Code))
	}
}

func (f *Fuji) encodeHosts(buf []byte) int {
	out := make([]byte, slots.Count*hostEntryLen)
	for i, h := range f.state.Hosts {
		copy(out[i*hostEntryLen:(i+1)*hostEntryLen-1], h)
	}
	return copy(buf, out)
}

func (f *Fuji) encodeDisks(buf []byte) int {
	out := make([]byte, slots.Count*diskEntryLen)
	for i, d := range f.state.Disks {
		base := i * diskEntryLen
		out[base] = d.Host
		out[base+1] = byte(d.Mode)
		copy(out[base+2:base+diskEntryLen-1], d.Path)
	}
	return copy(buf, out)
}

// field reads a NUL-terminated string from a fixed-width record.
func field(b []byte, off, width int) string {
	if off >= len(b) {
		return ""
	}
	end := min(off+width, len(b))
	s := b[off:end]
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return string(s)
}
