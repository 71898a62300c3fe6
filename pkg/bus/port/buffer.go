// Package port provides byte channels between a legacy host and the bus
// engine: a TCP listener for emulator bridges and an in-memory loopback.
package port

import (
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittonet/pkg/bus"
)

// inbound is a goroutine-safe receive buffer. Producers append with feed;
// the engine consumes through Read, Peek and Discard.
type inbound struct {
	mu      sync.Mutex
	buf     []byte
	notify  chan struct{}
	timeout time.Duration
	closed  bool
}

func newInbound(timeout time.Duration) *inbound {
	return &inbound{
		notify:  make(chan struct{}, 1),
		timeout: timeout,
	}
}

func (in *inbound) feed(p []byte) {
	in.mu.Lock()
	in.buf = append(in.buf, p...)
	in.mu.Unlock()

	select {
	case in.notify <- struct{}{}:
	default:
	}
}

// Read waits up to the read timeout for at least one byte.
func (in *inbound) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	deadline := time.NewTimer(in.timeout)
	defer deadline.Stop()

	for {
		in.mu.Lock()
		if len(in.buf) > 0 {
			n := copy(p, in.buf)
			in.buf = in.buf[n:]
			in.mu.Unlock()
			return n, nil
		}
		closed := in.closed
		in.mu.Unlock()

		if closed {
			return 0, bus.ErrNoData
		}

		select {
		case <-in.notify:
		case <-deadline.C:
			return 0, bus.ErrNoData
		}
	}
}

func (in *inbound) Buffered() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.buf)
}

func (in *inbound) Peek(n int) ([]byte, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if len(in.buf) < n {
		return nil, fmt.Errorf("port: %d bytes buffered, %d requested", len(in.buf), n)
	}
	out := make([]byte, n)
	copy(out, in.buf)
	return out, nil
}

func (in *inbound) Discard(n int) (int, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if n > len(in.buf) {
		n = len(in.buf)
	}
	in.buf = in.buf[n:]
	return n, nil
}

func (in *inbound) reset() {
	in.mu.Lock()
	in.buf = nil
	in.mu.Unlock()
}

func (in *inbound) close() {
	in.mu.Lock()
	in.closed = true
	in.mu.Unlock()

	select {
	case in.notify <- struct{}{}:
	default:
	}
}
