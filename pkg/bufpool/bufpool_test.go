package bufpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPicksSmallestClass(t *testing.T) {
	tests := []struct {
		name string
		size int
		cap  int
	}{
		{"Empty", 0, FrameSize},
		{"Sector", 128, FrameSize},
		{"ExactFrame", FrameSize, FrameSize},
		{"Chunk", FrameSize + 1, ChunkSize},
		{"Bulk", 10 << 10, BulkSize},
		{"Oversized", BulkSize + 1, BulkSize + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := Get(tt.size)
			defer Put(buf)

			assert.Len(t, buf, tt.size)
			assert.Equal(t, tt.cap, cap(buf))
		})
	}
}

func TestPutRecyclesBuffer(t *testing.T) {
	p := NewPool(Config{FrameSize: 16, ChunkSize: 32, BulkSize: 64})

	buf := p.Get(10)
	require.Equal(t, 16, cap(buf))
	buf[0] = 0xAA
	p.Put(buf)

	// sync.Pool may drop entries, so only the length contract is checked.
	again := p.Get(16)
	assert.Len(t, again, 16)
	assert.Equal(t, 16, cap(again))
}

func TestPutIgnoresForeignBuffers(t *testing.T) {
	p := NewPool(Config{})
	assert.NotPanics(t, func() {
		p.Put(nil)
		p.Put(make([]byte, 100))
		p.Put(make([]byte, BulkSize*2))
	})
}

func TestConcurrentUse(t *testing.T) {
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				buf := Get((i*j)%BulkSize + 1)
				buf[0] = byte(j)
				Put(buf)
			}
		}()
	}
	wg.Wait()
}
