// Package errors defines the error kinds shared by device adapters, the bus
// engine and the control plane.
//
// A Kind is what a legacy host or a browser ultimately sees: the bus codec
// turns it into a status byte and the control plane into a fixed HTTP 400
// message. Detailed causes stay in the wrapped error and only reach the log.
//
// This is a leaf package with no internal dependencies.
package errors

import (
	stderrors "errors"
	"fmt"
	"io"
)

// Kind classifies a failure.
type Kind int

const (
	// KindNone is the zero Kind; KindOf returns it for nil errors.
	KindNone Kind = iota

	// KindOpen means a target could not be reached or created.
	KindOpen

	// KindIO means a transfer failed or timed out after retries.
	KindIO

	// KindEOF means no more data is available.
	KindEOF

	// KindOutOfMemory means a resource exceeded its configured limit.
	KindOutOfMemory

	// KindUnsupported means the adapter does not implement the operation.
	KindUnsupported

	// KindBusy means the resource is temporarily unavailable.
	KindBusy

	// KindBadRequest means the caller supplied malformed input.
	KindBadRequest

	// KindNotFound means the named resource does not exist.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindOpen:
		return "Open"
	case KindIO:
		return "IO"
	case KindEOF:
		return "EOF"
	case KindOutOfMemory:
		return "OutOfMemory"
	case KindUnsupported:
		return "Unsupported"
	case KindBusy:
		return "Busy"
	case KindBadRequest:
		return "BadRequest"
	case KindNotFound:
		return "NotFound"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Error is a classified error. Op names the failing operation (e.g.
// "netfs.open") and Err carries the cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// Sentinel values for errors.Is checks.
var (
	ErrOpen        = &Error{Kind: KindOpen}
	ErrIO          = &Error{Kind: KindIO}
	ErrOutOfMemory = &Error{Kind: KindOutOfMemory}
	ErrUnsupported = &Error{Kind: KindUnsupported}
	ErrBusy        = &Error{Kind: KindBusy}
	ErrBadRequest  = &Error{Kind: KindBadRequest}
	ErrNotFound    = &Error{Kind: KindNotFound}
)

// E builds a classified error.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Open wraps err as a KindOpen failure of op.
func Open(op string, err error) error {
	return E(KindOpen, op, err)
}

// IO wraps err as a KindIO failure of op.
func IO(op string, err error) error {
	return E(KindIO, op, err)
}

// Unsupported reports op as not implemented.
func Unsupported(op string) error {
	return E(KindUnsupported, op, nil)
}

// BadRequest reports malformed input with a formatted reason.
func BadRequest(op, format string, args ...any) error {
	return E(KindBadRequest, op, fmt.Errorf(format, args...))
}

// KindOf returns the kind of the first classified error in err's chain.
// io.EOF maps to KindEOF and unclassified errors to KindIO.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	if stderrors.Is(err, io.EOF) {
		return KindEOF
	}
	return KindIO
}

// Is reports whether err is classified with kind k.
func Is(err error, k Kind) bool {
	return KindOf(err) == k
}
