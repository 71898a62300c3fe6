package netfs

import (
	"context"
	"io"
	"sync"

	"github.com/marmos91/dittonet/pkg/bufpool"
)

// stream turns a blocking io.ReadCloser (an HTTP body, an FTP data
// connection, an S3 object) into a context-aware reader. A goroutine
// copies the source into a buffer; Read takes whatever has arrived and
// waits no longer than the caller's deadline. The pump stops pulling while
// streamHighWater bytes are buffered.
type stream struct {
	src io.ReadCloser

	mu     sync.Mutex
	buf    []byte
	err    error
	notify chan struct{}
	space  chan struct{}
	closed chan struct{}
	once   sync.Once
	done   chan struct{}

	// remaining is the number of bytes the source has yet to deliver, or
	// -1 when the length is unknown.
	remaining int64
}

const streamHighWater = bufpool.BulkSize

// newStream starts pumping src. size is the total length if known, else -1.
func newStream(src io.ReadCloser, size int64) *stream {
	s := &stream{
		src:       src,
		notify:    make(chan struct{}, 1),
		space:     make(chan struct{}, 1),
		closed:    make(chan struct{}),
		done:      make(chan struct{}),
		remaining: size,
	}
	go s.pump()
	return s
}

func (s *stream) pump() {
	defer close(s.done)

	chunk := bufpool.Get(bufpool.ChunkSize)
	defer bufpool.Put(chunk)
	for {
		if !s.waitForSpace() {
			return
		}
		n, err := s.src.Read(chunk)

		s.mu.Lock()
		if n > 0 {
			s.buf = append(s.buf, chunk[:n]...)
			if s.remaining > 0 {
				s.remaining -= int64(n)
			}
		}
		if err != nil {
			s.err = err
		}
		s.mu.Unlock()

		select {
		case s.notify <- struct{}{}:
		default:
		}

		if err != nil {
			return
		}
	}
}

// waitForSpace blocks while the buffer is at the high-water mark. It
// returns false once the stream is closed.
func (s *stream) waitForSpace() bool {
	for {
		s.mu.Lock()
		full := len(s.buf) >= streamHighWater
		s.mu.Unlock()
		if !full {
			return true
		}
		select {
		case <-s.space:
		case <-s.closed:
			return false
		}
	}
}

// Read copies buffered bytes into p. With nothing buffered it waits for
// the pump or for ctx, whichever comes first. Once the source is drained
// it returns the source's terminal error (io.EOF on a clean end).
func (s *stream) Read(ctx context.Context, p []byte) (int, error) {
	for {
		s.mu.Lock()
		if len(s.buf) > 0 {
			n := copy(p, s.buf)
			s.buf = s.buf[n:]
			s.mu.Unlock()
			select {
			case s.space <- struct{}{}:
			default:
			}
			return n, nil
		}
		err := s.err
		s.mu.Unlock()

		if err != nil {
			return 0, err
		}

		select {
		case <-s.notify:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// Available is the number of bytes buffered plus those known to be still
// in flight, or just the buffered count when the length is unknown.
func (s *stream) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(s.buf))
	if s.remaining > 0 {
		n += s.remaining
	}
	if s.err != nil || s.remaining >= 0 {
		return int(n)
	}
	if n == 0 {
		return -1
	}
	return int(n)
}

// EOF reports whether the source ended cleanly and the buffer is drained.
func (s *stream) EOF() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf) == 0 && s.err == io.EOF
}

// Close closes the source and waits for the pump to stop.
func (s *stream) Close() error {
	s.once.Do(func() { close(s.closed) })
	err := s.src.Close()
	<-s.done
	return err
}
