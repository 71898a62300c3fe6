package device

import (
	"encoding/binary"

	derrors "github.com/marmos91/dittonet/pkg/errors"
)

// Legacy per-device error codes reported in the status record and in the
// SIO error byte.
const (
	CodeSuccess        byte = 1
	CodeTimeout        byte = 138
	CodeEOF            byte = 136
	CodeGeneral        byte = 144
	CodeNotImplemented byte = 146
	CodeBadDeviceSpec  byte = 165
	CodeNotFound       byte = 170
	CodeBusy           byte = 200
	CodeNoMemory       byte = 201
)

// StatusLen is the size of the encoded status record.
const StatusLen = 4

// Status is the fixed 4-byte record returned by a STATUS command:
// bytes waiting (little-endian 16-bit), connected flag, last error code.
type Status struct {
	BytesWaiting uint16
	Connected    bool
	Error        byte
}

// Bytes encodes s in wire order.
func (s Status) Bytes() []byte {
	b := make([]byte, StatusLen)
	binary.LittleEndian.PutUint16(b, s.BytesWaiting)
	if s.Connected {
		b[2] = 1
	}
	b[3] = s.Error
	return b
}

// DecodeStatus parses a 4-byte status record.
func DecodeStatus(b []byte) (Status, bool) {
	if len(b) < StatusLen {
		return Status{}, false
	}
	return Status{
		BytesWaiting: binary.LittleEndian.Uint16(b),
		Connected:    b[2] != 0,
		Error:        b[3],
	}, true
}

// ErrorStatus is the record reported when no status is available.
func ErrorStatus(code byte) Status {
	return Status{Error: code}
}

// CodeFor maps an error to the legacy error code a host understands.
func CodeFor(err error) byte {
	switch derrors.KindOf(err) {
	case derrors.KindNone:
		return CodeSuccess
	case derrors.KindEOF:
		return CodeEOF
	case derrors.KindOpen, derrors.KindNotFound:
		return CodeNotFound
	case derrors.KindUnsupported:
		return CodeNotImplemented
	case derrors.KindBadRequest:
		return CodeBadDeviceSpec
	case derrors.KindBusy:
		return CodeBusy
	case derrors.KindOutOfMemory:
		return CodeNoMemory
	case derrors.KindIO:
		return CodeTimeout
	default:
		return CodeGeneral
	}
}
