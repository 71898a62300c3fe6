// Package slots persists the Fuji host and disk slot table so mounts
// survive a respawn.
package slots

import (
	"context"
	"errors"
	"strings"
)

// Count is the number of host slots and of disk slots.
const Count = 8

// NoHost marks a disk slot that references no host.
const NoHost uint8 = 0xFF

// ErrEmpty is returned by Load when nothing has been saved yet.
var ErrEmpty = errors.New("slots: no saved state")

// Mode is the access mode of a disk slot, encoded as the bus expects it.
type Mode uint8

const (
	ModeRead  Mode = 1
	ModeWrite Mode = 2
)

// ParseMode maps "r"/"w" to a Mode. Anything else is read-only.
func ParseMode(s string) Mode {
	if strings.EqualFold(s, "w") {
		return ModeWrite
	}
	return ModeRead
}

func (m Mode) String() string {
	if m == ModeWrite {
		return "w"
	}
	return "r"
}

// Disk is one disk slot: an image path on a host slot.
type Disk struct {
	Host uint8  `cbor:"1,keyasint"`
	Mode Mode   `cbor:"2,keyasint"`
	Path string `cbor:"3,keyasint"`
}

// Empty reports whether the slot holds no image.
func (d Disk) Empty() bool { return d.Host == NoHost || d.Path == "" }

// State is the whole slot table.
type State struct {
	Hosts [Count]string
	Disks [Count]Disk
}

// NewState returns a table with every slot empty.
func NewState() *State {
	s := &State{}
	for i := range s.Disks {
		s.Disks[i] = Disk{Host: NoHost, Mode: ModeRead}
	}
	return s
}

// Store loads and saves slot tables.
type Store interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, s *State) error
	Close() error
}
