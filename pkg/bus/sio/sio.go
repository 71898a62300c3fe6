// Package sio frames commands for the Atari SIO bus.
//
// A command frame is five bytes: device ID, command, aux1, aux2 and a
// checksum. The peripheral answers ACK or NAK, exchanges an optional data
// frame (data bytes followed by a checksum) and finishes with COMPLETE or
// ERROR. Devices that do not exist stay silent.
package sio

import (
	"errors"
	"fmt"
	"io"

	"github.com/marmos91/dittonet/internal/logger"
	"github.com/marmos91/dittonet/pkg/bus"
	"github.com/marmos91/dittonet/pkg/device"
)

// Response bytes.
const (
	Ack      byte = 'A'
	Nak      byte = 'N'
	Complete byte = 'C'
	Error    byte = 'E'
)

// Device IDs.
const (
	DiskFirst    device.Slot = 0x31
	DiskLast     device.Slot = 0x38
	Printer      device.Slot = 0x40
	Modem        device.Slot = 0x50
	Fuji         device.Slot = 0x70
	NetworkFirst device.Slot = 0x71
	NetworkLast  device.Slot = 0x78
)

// FrameLen is the size of a command frame including its checksum.
const FrameLen = 5

const (
	sectorSize   = 128
	devspecLen   = 256
	printLineLen = 40
)

// ErrChecksum reports a data frame whose checksum does not match.
var ErrChecksum = errors.New("sio: checksum mismatch")

// Checksum is the 8-bit sum with end-around carry used by every SIO frame.
func Checksum(b []byte) byte {
	var chk uint
	for _, c := range b {
		chk = ((chk + uint(c)) >> 8) + ((chk + uint(c)) & 0xFF)
	}
	return byte(chk)
}

// Codec implements bus.Codec for SIO.
type Codec struct{}

func New() *Codec {
	return &Codec{}
}

func (c *Codec) Name() string { return "sio" }

// ReadFrame decodes a buffered command frame. On a checksum mismatch one
// byte is dropped so the decoder can resynchronise on the next frame.
func (c *Codec) ReadFrame(p bus.Port) (*device.Command, error) {
	if p.Buffered() < FrameLen {
		return nil, nil
	}
	frame, err := p.Peek(FrameLen)
	if err != nil {
		return nil, nil
	}

	if Checksum(frame[:4]) != frame[4] {
		logger.Debug("SIO command frame checksum mismatch", logger.KeyChecksum, frame[4])
		_, _ = p.Discard(1)
		return nil, nil
	}
	_, _ = p.Discard(FrameLen)

	cmd := &device.Command{
		Slot: device.Slot(frame[0]),
		Code: frame[1],
		Aux1: frame[2],
		Aux2: frame[3],
	}
	Decode(cmd)
	return cmd, nil
}

func (c *Codec) Direction(cmd *device.Command) bus.Direction {
	return DirectionOf(cmd)
}

func (c *Codec) Acknowledge(p bus.Port, ok bool) error {
	b := Ack
	if !ok {
		b = Nak
	}
	_, err := p.Write([]byte{b})
	return err
}

// ReadPayload reads cmd.Length data bytes plus checksum and answers ACK on
// success.
func (c *Codec) ReadPayload(p bus.Port, cmd *device.Command) ([]byte, error) {
	buf := make([]byte, cmd.Length+1)
	if _, err := io.ReadFull(p, buf); err != nil {
		return nil, fmt.Errorf("sio: read data frame: %w", err)
	}
	data, chk := buf[:cmd.Length], buf[cmd.Length]
	if Checksum(data) != chk {
		return nil, ErrChecksum
	}
	if err := c.Acknowledge(p, true); err != nil {
		return nil, err
	}
	return data, nil
}

// WriteResponse sends COMPLETE or ERROR, then the data frame of read-style
// commands. An absent device produces no bytes at all.
func (c *Codec) WriteResponse(p bus.Port, cmd *device.Command, resp bus.Response) error {
	var out []byte

	switch resp.Result {
	case bus.ResultAbsent:
		return nil
	case bus.ResultNak:
		out = []byte{Nak}
	case bus.ResultComplete:
		out = []byte{Complete}
	default:
		out = []byte{Error}
	}

	if resp.Result != bus.ResultNak && DirectionOf(cmd) == bus.DirToHost && cmd.Length > 0 {
		data := bus.FitFrame(resp.Data, cmd.Length)
		out = append(out, data...)
		out = append(out, Checksum(data))
	}

	_, err := p.Write(out)
	return err
}

// Decode fills Op, Length and positioning from the device family. The
// rs232 bus shares the device IDs and command bytes.
func Decode(cmd *device.Command) {
	switch {
	case cmd.Slot >= NetworkFirst && cmd.Slot <= NetworkLast:
		decodeNetwork(cmd)
	case cmd.Slot >= DiskFirst && cmd.Slot <= DiskLast:
		decodeDisk(cmd)
	case cmd.Slot == Printer:
		decodePrinter(cmd)
	case cmd.Slot == Fuji:
		decodeFuji(cmd)
	default:
		cmd.Op = device.OpUnknown
	}
}

func decodeNetwork(cmd *device.Command) {
	switch cmd.Code {
	case 'O':
		cmd.Op, cmd.Length = device.OpOpen, devspecLen
	case 'C':
		cmd.Op = device.OpClose
	case 'R':
		cmd.Op, cmd.Length = device.OpRead, int(cmd.Aux12())
	case 'W':
		cmd.Op, cmd.Length = device.OpWrite, int(cmd.Aux12())
	case 'S':
		cmd.Op, cmd.Length = device.OpStatus, device.StatusLen
	case 0x20:
		cmd.Op, cmd.Length = device.OpRename, devspecLen
	case 0x21:
		cmd.Op, cmd.Length = device.OpDelete, devspecLen
	case 0x25:
		cmd.Op, cmd.Length = device.OpPoint, 3
	case 0x26:
		cmd.Op, cmd.Length = device.OpNote, 3
	case 0x2A:
		cmd.Op, cmd.Length = device.OpMkdir, devspecLen
	case 0x2B:
		cmd.Op, cmd.Length = device.OpRmdir, devspecLen
	default:
		cmd.Op, cmd.Length = device.OpSpecial, devspecLen
	}
}

func decodeDisk(cmd *device.Command) {
	switch cmd.Code {
	case 'R':
		cmd.Op, cmd.Length = device.OpRead, sectorSize
		positionSector(cmd)
	case 'W', 'P':
		cmd.Op, cmd.Length = device.OpWrite, sectorSize
		positionSector(cmd)
	case 'S':
		cmd.Op, cmd.Length = device.OpStatus, device.StatusLen
	default:
		cmd.Op = device.OpSpecial
	}
}

// positionSector converts the 1-based sector number in aux1/aux2 into a
// byte offset into the image data.
func positionSector(cmd *device.Command) {
	sector := uint32(cmd.Aux12())
	if sector == 0 {
		sector = 1
	}
	cmd.Positioned = true
	cmd.Position = (sector - 1) * sectorSize
}

func decodePrinter(cmd *device.Command) {
	switch cmd.Code {
	case 'W':
		cmd.Op, cmd.Length = device.OpWrite, printLineLen
	case 'S':
		cmd.Op, cmd.Length = device.OpStatus, device.StatusLen
	default:
		cmd.Op = device.OpUnknown
	}
}

// Fuji control commands. Those listed with a length exchange a data frame.
var fujiFrames = map[byte]struct {
	length int
	dir    bus.Direction
}{
	0xF4: {256, bus.DirToHost},   // read host slots
	0xF3: {256, bus.DirToDevice}, // write host slots
	0xF2: {304, bus.DirToHost},   // read device slots
	0xF1: {304, bus.DirToDevice}, // write device slots
}

func decodeFuji(cmd *device.Command) {
	cmd.Op = device.OpSpecial
	if f, ok := fujiFrames[cmd.Code]; ok {
		cmd.Length = f.length
	}
}

// DirectionOf reports how the data frame of a decoded command flows.
func DirectionOf(cmd *device.Command) bus.Direction {
	switch cmd.Op {
	case device.OpRead, device.OpStatus, device.OpNote:
		return bus.DirToHost
	case device.OpOpen, device.OpWrite, device.OpDelete, device.OpRename,
		device.OpMkdir, device.OpRmdir, device.OpPoint:
		return bus.DirToDevice
	case device.OpSpecial:
		if cmd.Slot == Fuji {
			if f, ok := fujiFrames[cmd.Code]; ok {
				return f.dir
			}
			return bus.DirNone
		}
		if cmd.Length > 0 {
			return bus.DirToHost
		}
	}
	return bus.DirNone
}
