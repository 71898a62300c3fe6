// Package bufpool recycles the byte slices used to move data between the
// bus, network filesystems and the admin page.
//
// Three size classes cover the traffic the device sees:
//   - Frame (1KB): bus reads and single sector payloads
//   - Chunk (4KB): network file reads and admin page streaming
//   - Bulk (64KB): directory listings and large transfers
//
// Larger requests are allocated directly and never pooled. All functions
// are safe for concurrent use.
//
//	buf := bufpool.Get(size)
//	defer bufpool.Put(buf)
package bufpool

import "sync"

const (
	FrameSize = 1 << 10
	ChunkSize = 4 << 10
	BulkSize  = 64 << 10
)

// Pool hands out buffers from three size classes.
type Pool struct {
	classes [3]class
}

type class struct {
	size int
	pool sync.Pool
}

// Config overrides the size classes. Zero fields keep the defaults.
type Config struct {
	FrameSize int
	ChunkSize int
	BulkSize  int
}

// NewPool creates a pool. Sizes must be increasing.
func NewPool(cfg Config) *Pool {
	sizes := [3]int{cfg.FrameSize, cfg.ChunkSize, cfg.BulkSize}
	defaults := [3]int{FrameSize, ChunkSize, BulkSize}

	p := &Pool{}
	for i := range p.classes {
		size := sizes[i]
		if size <= 0 {
			size = defaults[i]
		}
		c := &p.classes[i]
		c.size = size
		c.pool.New = func() any {
			buf := make([]byte, size)
			return &buf
		}
	}
	return p
}

// Get returns a slice of length size. Its capacity may be larger.
// Return it with Put when done.
func (p *Pool) Get(size int) []byte {
	for i := range p.classes {
		c := &p.classes[i]
		if size <= c.size {
			buf := *c.pool.Get().(*[]byte)
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// Put returns buf to its class. Buffers that did not come from Get are
// dropped.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}
	for i := range p.classes {
		c := &p.classes[i]
		if cap(buf) == c.size {
			full := buf[:c.size]
			c.pool.Put(&full)
			return
		}
	}
}

var global = NewPool(Config{})

// Get takes a buffer from the shared pool.
func Get(size int) []byte { return global.Get(size) }

// Put returns a buffer to the shared pool.
func Put(buf []byte) { global.Put(buf) }
