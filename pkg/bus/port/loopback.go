package port

import (
	"bytes"
	"sync"
	"time"
)

// Loopback is an in-memory Port. Tests (and the host side of a simulated
// bus) push bytes with HostWrite and collect replies with TakeOutput.
type Loopback struct {
	*inbound

	mu  sync.Mutex
	out bytes.Buffer
}

// NewLoopback creates a loopback port whose reads give up after timeout.
func NewLoopback(timeout time.Duration) *Loopback {
	return &Loopback{inbound: newInbound(timeout)}
}

// HostWrite queues bytes as if the host had sent them.
func (l *Loopback) HostWrite(p []byte) {
	l.feed(p)
}

// Write records bytes sent to the host.
func (l *Loopback) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Write(p)
}

// TakeOutput returns and clears everything written to the host so far.
func (l *Loopback) TakeOutput() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := append([]byte(nil), l.out.Bytes()...)
	l.out.Reset()
	return out
}
