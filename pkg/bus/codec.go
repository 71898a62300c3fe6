package bus

import (
	"errors"
	"fmt"
	"io"

	"github.com/marmos91/dittonet/pkg/device"
)

// ErrNoData is returned by a Port when nothing arrived within its read
// timeout.
var ErrNoData = errors.New("bus: no data within timeout")

// Port is the byte channel to the host. Reads block for at most the port's
// read timeout; Buffered, Peek and Discard never block.
type Port interface {
	io.ReadWriter

	// Buffered reports how many bytes can be read without waiting.
	Buffered() int

	// Peek returns the next n buffered bytes without consuming them. It
	// fails when fewer than n bytes are buffered.
	Peek(n int) ([]byte, error)

	// Discard drops up to n buffered bytes.
	Discard(n int) (int, error)
}

// Result is the outcome of one dispatch as the host sees it.
type Result uint8

const (
	// ResultComplete acknowledges a successful operation.
	ResultComplete Result = iota
	// ResultError reports a failed operation. Response.Code carries the
	// legacy error code.
	ResultError
	// ResultNak rejects a malformed frame or data frame.
	ResultNak
	// ResultAbsent means no device answers the addressed slot.
	ResultAbsent
)

func (r Result) String() string {
	switch r {
	case ResultComplete:
		return "complete"
	case ResultError:
		return "error"
	case ResultNak:
		return "nak"
	case ResultAbsent:
		return "absent"
	default:
		return fmt.Sprintf("result(%d)", uint8(r))
	}
}

// Response is what the engine hands back to the codec after a dispatch.
type Response struct {
	Result Result

	// Data is sent to the host for read-style commands. Codecs pad or
	// truncate it to Command.Length.
	Data []byte

	// Code is the legacy error code (device.CodeSuccess on success).
	Code byte
}

// Direction tells a codec which way the data frame of a command flows.
type Direction uint8

const (
	// DirNone commands carry no data frame.
	DirNone Direction = iota
	// DirToDevice commands are followed by a data frame from the host.
	DirToDevice
	// DirToHost commands are answered with a data frame.
	DirToHost
)

// Codec frames commands and responses for one legacy bus.
//
// The engine drives a codec through one command cycle:
//
//	ReadFrame -> Acknowledge -> ReadPayload (DirToDevice only) -> WriteResponse
type Codec interface {
	// Name identifies the bus ("sio", "rs232").
	Name() string

	// ReadFrame decodes the next command frame. It returns nil, nil when
	// no complete frame is buffered yet. Frames with a bad checksum are
	// dropped and reported as nil, nil after resynchronising.
	ReadFrame(p Port) (*device.Command, error)

	// Direction reports how the data of cmd flows. cmd.Length holds the
	// frame size.
	Direction(cmd *device.Command) Direction

	// Acknowledge accepts (ok) or rejects the command frame.
	Acknowledge(p Port, ok bool) error

	// ReadPayload reads and verifies the data frame of a DirToDevice
	// command.
	ReadPayload(p Port, cmd *device.Command) ([]byte, error)

	// WriteResponse sends the outcome and, for DirToHost commands, the
	// data frame.
	WriteResponse(p Port, cmd *device.Command, resp Response) error
}

// FitFrame returns data padded with zeros or truncated to n bytes.
func FitFrame(data []byte, n int) []byte {
	out := make([]byte, n)
	copy(out, data)
	return out
}
