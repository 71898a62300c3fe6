// Package rs232 frames commands for the RS-232 variant of the bus. It uses
// the SIO device IDs and command bytes with a wider command frame: four
// aux bytes, so sector numbers and seek positions travel in the frame
// itself.
package rs232

import (
	"fmt"
	"io"

	"github.com/marmos91/dittonet/internal/logger"
	"github.com/marmos91/dittonet/pkg/bus"
	"github.com/marmos91/dittonet/pkg/bus/sio"
	"github.com/marmos91/dittonet/pkg/device"
)

// FrameLen is device, command, aux1..aux4 and checksum.
const FrameLen = 7

const sectorSize = 128

// Codec implements bus.Codec for RS-232.
type Codec struct{}

func New() *Codec {
	return &Codec{}
}

func (c *Codec) Name() string { return "rs232" }

func (c *Codec) ReadFrame(p bus.Port) (*device.Command, error) {
	if p.Buffered() < FrameLen {
		return nil, nil
	}
	frame, err := p.Peek(FrameLen)
	if err != nil {
		return nil, nil
	}
	if sio.Checksum(frame[:6]) != frame[6] {
		logger.Debug("RS232 command frame checksum mismatch", logger.KeyChecksum, frame[6])
		_, _ = p.Discard(1)
		return nil, nil
	}
	_, _ = p.Discard(FrameLen)

	cmd := &device.Command{
		Slot: device.Slot(frame[0]),
		Code: frame[1],
		Aux1: frame[2],
		Aux2: frame[3],
		Aux3: frame[4],
		Aux4: frame[5],
	}
	sio.Decode(cmd)
	widen(cmd)
	return cmd, nil
}

// widen adjusts commands whose parameters fit in the four aux bytes.
func widen(cmd *device.Command) {
	switch cmd.Op {
	case device.OpPoint:
		// Position is in aux1..aux4; no data frame follows.
		cmd.Length = 0
	case device.OpNote:
		cmd.Length = 4
	case device.OpRead, device.OpWrite:
		if cmd.Positioned {
			sector := cmd.Aux32()
			if sector == 0 {
				sector = 1
			}
			cmd.Position = (sector - 1) * sectorSize
		}
	}
}

func (c *Codec) Direction(cmd *device.Command) bus.Direction {
	if cmd.Op == device.OpPoint {
		return bus.DirNone
	}
	return sio.DirectionOf(cmd)
}

func (c *Codec) Acknowledge(p bus.Port, ok bool) error {
	b := sio.Ack
	if !ok {
		b = sio.Nak
	}
	_, err := p.Write([]byte{b})
	return err
}

func (c *Codec) ReadPayload(p bus.Port, cmd *device.Command) ([]byte, error) {
	buf := make([]byte, cmd.Length+1)
	if _, err := io.ReadFull(p, buf); err != nil {
		return nil, fmt.Errorf("rs232: read data frame: %w", err)
	}
	data, chk := buf[:cmd.Length], buf[cmd.Length]
	if sio.Checksum(data) != chk {
		return nil, sio.ErrChecksum
	}
	if err := c.Acknowledge(p, true); err != nil {
		return nil, err
	}
	return data, nil
}

// WriteResponse answers like SIO, except that an ERROR carries the legacy
// error code so the host does not need a follow-up STATUS.
func (c *Codec) WriteResponse(p bus.Port, cmd *device.Command, resp bus.Response) error {
	var out []byte

	switch resp.Result {
	case bus.ResultAbsent:
		return nil
	case bus.ResultNak:
		_, err := p.Write([]byte{sio.Nak})
		return err
	case bus.ResultComplete:
		out = []byte{sio.Complete}
	default:
		out = []byte{sio.Error, resp.Code}
	}

	if c.Direction(cmd) == bus.DirToHost && cmd.Length > 0 {
		data := bus.FitFrame(resp.Data, cmd.Length)
		out = append(out, data...)
		out = append(out, sio.Checksum(data))
	}

	_, err := p.Write(out)
	return err
}
