// Package device defines the contract every emulated peripheral implements so
// the bus engine can dispatch command frames without knowing the concrete
// device type.
package device

import (
	"context"

	derrors "github.com/marmos91/dittonet/pkg/errors"
)

// Adapter is the uniform device contract.
//
// Lifecycle:
//  1. Open binds the adapter to a target (URL, image path, printer job).
//  2. Read, Write, Status and Special operate on the open session.
//  3. Close releases the session. Close is idempotent.
//
// Extended operations (Delete, Rename, Mkdir, Rmdir, Note, Point) act on a
// target independently of any open session. Adapters that do not support
// them embed Unsupported, which reports derrors.ErrUnsupported.
//
// Thread safety:
// Adapters are driven from the scheduler goroutine only and need no
// internal locking unless they also serve the control plane.
type Adapter interface {
	// Name is a short constant identifier used in logs and metrics
	// (e.g. "netfs", "printer", "disk").
	Name() string

	// Open establishes a session with target. Any previous session is
	// closed first. Returns a KindOpen error when the target is unreachable
	// or cannot be created.
	Open(ctx context.Context, target string, cmd *Command) error

	// Read fills up to len(buf) bytes and returns the count. At end of data
	// it returns the short count together with io.EOF. Transfer failures
	// return a KindIO error.
	Read(ctx context.Context, buf []byte) (int, error)

	// Write transfers up to len(buf) bytes and returns the count.
	Write(ctx context.Context, buf []byte) (int, error)

	// Status never fails. Unavailable data yields an error record.
	Status() Status

	// Close releases the session. Errors are logged, never returned.
	Close()

	// Special handles a device-specific command. The adapter may fill buf
	// and returns how many bytes it produced.
	Special(ctx context.Context, buf []byte, cmd *Command) (int, error)

	Delete(ctx context.Context, target string, cmd *Command) error
	Rename(ctx context.Context, target string, cmd *Command) error
	Mkdir(ctx context.Context, target string, cmd *Command) error
	Rmdir(ctx context.Context, target string, cmd *Command) error

	// Note reports the current position of the open session.
	Note(ctx context.Context) (uint32, error)

	// Point moves the open session to pos.
	Point(ctx context.Context, pos uint32) error
}

// Unsupported provides the default "not implemented" behaviour for the
// optional operations. Embed it and override what the device supports.
type Unsupported struct{}

func (Unsupported) Special(context.Context, []byte, *Command) (int, error) {
	return 0, derrors.Unsupported("special")
}

func (Unsupported) Delete(context.Context, string, *Command) error {
	return derrors.Unsupported("delete")
}

func (Unsupported) Rename(context.Context, string, *Command) error {
	return derrors.Unsupported("rename")
}

func (Unsupported) Mkdir(context.Context, string, *Command) error {
	return derrors.Unsupported("mkdir")
}

func (Unsupported) Rmdir(context.Context, string, *Command) error {
	return derrors.Unsupported("rmdir")
}

func (Unsupported) Note(context.Context) (uint32, error) {
	return 0, derrors.Unsupported("note")
}

func (Unsupported) Point(context.Context, uint32) error {
	return derrors.Unsupported("point")
}

// Toggler is implemented by adapters that can be switched off without being
// removed from a bus. A disabled device is treated as absent.
type Toggler interface {
	Enabled() bool
}
