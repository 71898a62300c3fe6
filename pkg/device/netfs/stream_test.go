package netfs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// endlessSource yields zero bytes forever and counts what was pulled.
type endlessSource struct {
	pulled atomic.Int64
	closed atomic.Bool
}

func (e *endlessSource) Read(p []byte) (int, error) {
	clear(p)
	e.pulled.Add(int64(len(p)))
	return len(p), nil
}

func (e *endlessSource) Close() error {
	e.closed.Store(true)
	return nil
}

func TestStreamStopsPullingAtHighWater(t *testing.T) {
	src := &endlessSource{}
	s := newStream(src, -1)

	require.Eventually(t, func() bool {
		return src.pulled.Load() >= streamHighWater
	}, time.Second, time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	limit := int64(streamHighWater + 4096)
	assert.LessOrEqual(t, src.pulled.Load(), limit)

	// Draining makes room and the pump resumes.
	buf := make([]byte, 8192)
	ctx := context.Background()
	for range 4 {
		_, err := s.Read(ctx, buf)
		require.NoError(t, err)
	}
	before := src.pulled.Load()
	require.Eventually(t, func() bool {
		return src.pulled.Load() > before
	}, time.Second, time.Millisecond)
	assert.LessOrEqual(t, src.pulled.Load(), limit+int64(4*len(buf)))

	require.NoError(t, s.Close())
	assert.True(t, src.closed.Load())
}
