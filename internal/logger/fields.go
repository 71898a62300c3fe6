package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys. Use these in every log statement so logs can be
// queried across the bus, device and control plane layers.
const (
	// Tracing
	KeyTraceID   = "trace_id"
	KeySpanID    = "span_id"
	KeyRequestID = "request_id"

	// Bus & devices
	KeyBus      = "bus"
	KeyDevice   = "device"
	KeySlot     = "slot"
	KeyCommand  = "command"
	KeyAux      = "aux"
	KeyResult   = "result"
	KeyState    = "state"
	KeyChecksum = "checksum"

	// Network filesystem
	KeyScheme = "scheme"
	KeyHost   = "host"
	KeyURL    = "url"
	KeyPath   = "path"
	KeyBucket = "bucket"

	// I/O
	KeySize         = "size"
	KeyOffset       = "offset"
	KeyBytesRead    = "bytes_read"
	KeyBytesWritten = "bytes_written"
	KeyEOF          = "eof"
	KeyAttempt      = "attempt"

	// Control plane
	KeyClientIP = "client_ip"
	KeyMethod   = "method"
	KeyRoute    = "route"
	KeyStatus   = "status"

	// Lifecycle
	KeyExitCode = "exit_code"
	KeyMode     = "mode"
	KeyDelay    = "delay"
	KeySignal   = "signal"
	KeyTask     = "task"

	// Common
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyCode       = "code"
)

// Slot returns an attribute for a bus slot.
func Slot(slot uint8) slog.Attr {
	return slog.Int(KeySlot, int(slot))
}

// SlotHex formats a slot as its bus device id (e.g. 0x31).
func SlotHex(slot uint8) slog.Attr {
	return slog.String(KeySlot, fmt.Sprintf("0x%02X", slot))
}

// Command returns an attribute for a command mnemonic.
func Command(cmd string) slog.Attr {
	return slog.String(KeyCommand, cmd)
}

// Device returns an attribute for a device name.
func Device(name string) slog.Attr {
	return slog.String(KeyDevice, name)
}

func Scheme(s string) slog.Attr {
	return slog.String(KeyScheme, s)
}

func Host(h string) slog.Attr {
	return slog.String(KeyHost, h)
}

func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

func Size(n int64) slog.Attr {
	return slog.Int64(KeySize, n)
}

func BytesRead(n int) slog.Attr {
	return slog.Int(KeyBytesRead, n)
}

func BytesWritten(n int) slog.Attr {
	return slog.Int(KeyBytesWritten, n)
}

func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// ExitCode returns an attribute for a process exit status.
func ExitCode(code int) slog.Attr {
	return slog.Int(KeyExitCode, code)
}

// DurationMs returns an attribute for a duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns an attribute for err. A nil error yields an empty attribute,
// which handlers drop.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
