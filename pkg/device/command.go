package device

import "fmt"

// Slot is a device address on a bus, e.g. 0x31 for D1: on SIO.
type Slot uint8

func (s Slot) String() string {
	return fmt.Sprintf("0x%02X", uint8(s))
}

// Op is a generic device operation decoded from a bus command byte.
type Op uint8

const (
	OpUnknown Op = iota
	OpOpen
	OpClose
	OpRead
	OpWrite
	OpStatus
	OpSpecial
	OpDelete
	OpRename
	OpMkdir
	OpRmdir
	OpNote
	OpPoint
)

var opNames = [...]string{
	OpUnknown: "UNKNOWN",
	OpOpen:    "OPEN",
	OpClose:   "CLOSE",
	OpRead:    "READ",
	OpWrite:   "WRITE",
	OpStatus:  "STATUS",
	OpSpecial: "SPECIAL",
	OpDelete:  "DELETE",
	OpRename:  "RENAME",
	OpMkdir:   "MKDIR",
	OpRmdir:   "RMDIR",
	OpNote:    "NOTE",
	OpPoint:   "POINT",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("OP(%d)", uint8(o))
}

// Command is one decoded bus command frame. The engine owns it for the
// duration of a single dispatch; adapters must not retain it or Payload.
type Command struct {
	Slot Slot
	Op   Op
	// Code is the raw command byte as it appeared on the wire.
	Code byte
	Aux1 byte
	Aux2 byte
	Aux3 byte
	Aux4 byte
	// Payload holds the data frame that followed the command, if any.
	Payload []byte

	// Length is the number of data bytes exchanged with the host: expected
	// back for read-style commands, carried in Payload for write-style ones.
	Length int

	// Positioned commands carry an absolute byte position (a disk sector
	// offset) that the engine applies with Point before the transfer.
	Positioned bool
	Position   uint32
}

// Aux12 returns Aux1 and Aux2 as a little-endian 16-bit value.
func (c *Command) Aux12() uint16 {
	return uint16(c.Aux1) | uint16(c.Aux2)<<8
}

// Aux32 returns the four aux bytes as a little-endian 32-bit value.
func (c *Command) Aux32() uint32 {
	return uint32(c.Aux1) | uint32(c.Aux2)<<8 | uint32(c.Aux3)<<16 | uint32(c.Aux4)<<24
}

func (c *Command) String() string {
	return fmt.Sprintf("%s slot=%s code=0x%02X aux=%02X,%02X", c.Op, c.Slot, c.Code, c.Aux1, c.Aux2)
}
