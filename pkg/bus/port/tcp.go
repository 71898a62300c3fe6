package port

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/marmos91/dittonet/internal/logger"
	"github.com/marmos91/dittonet/pkg/bufpool"
)

// TCP accepts one emulator bridge connection at a time. A background
// goroutine copies received bytes into the inbound buffer so the engine
// never blocks on the socket.
//
// A new connection replaces the previous one and discards any partial
// frame left in the buffer.
type TCP struct {
	*inbound

	ln net.Listener

	mu   sync.Mutex
	conn net.Conn

	done chan struct{}
	wg   sync.WaitGroup
}

// ListenTCP listens on addr. Reads wait at most readTimeout.
func ListenTCP(addr string, readTimeout time.Duration) (*TCP, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bus port: listen %s: %w", addr, err)
	}

	t := &TCP{
		inbound: newInbound(readTimeout),
		ln:      ln,
		done:    make(chan struct{}),
	}

	t.wg.Add(1)
	go t.acceptLoop()

	logger.Info("Bus port listening", "address", ln.Addr().String())
	return t, nil
}

// Addr returns the listening address.
func (t *TCP) Addr() net.Addr {
	return t.ln.Addr()
}

// Connected reports whether a bridge is attached.
func (t *TCP) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

func (t *TCP) acceptLoop() {
	defer t.wg.Done()

	for {
		conn, err := t.ln.Accept()
		if err != nil {
			select {
			case <-t.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Warn("Bus port accept failed", logger.Err(err))
			continue
		}

		t.mu.Lock()
		if t.conn != nil {
			_ = t.conn.Close()
		}
		t.conn = conn
		t.mu.Unlock()
		t.inbound.reset()

		logger.Info("Bus host connected", logger.KeyClientIP, conn.RemoteAddr().String())

		t.wg.Add(1)
		go t.readLoop(conn)
	}
}

func (t *TCP) readLoop(conn net.Conn) {
	defer t.wg.Done()

	buf := bufpool.Get(bufpool.FrameSize)
	defer bufpool.Put(buf)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			t.feed(buf[:n])
		}
		if err != nil {
			t.mu.Lock()
			if t.conn == conn {
				t.conn = nil
				logger.Info("Bus host disconnected", logger.KeyClientIP, conn.RemoteAddr().String())
			}
			t.mu.Unlock()
			return
		}
	}
}

// Write sends bytes to the connected bridge. Without a bridge the bytes are
// dropped, as they would be on an unplugged cable.
func (t *TCP) Write(p []byte) (int, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return len(p), nil
	}
	return conn.Write(p)
}

// Close stops accepting, drops the bridge and waits for the reader
// goroutines to exit.
func (t *TCP) Close() error {
	select {
	case <-t.done:
		return nil
	default:
		close(t.done)
	}

	err := t.ln.Close()

	t.mu.Lock()
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
	t.mu.Unlock()

	t.inbound.close()
	t.wg.Wait()
	return err
}
