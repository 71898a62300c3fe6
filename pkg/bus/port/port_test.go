package port

import (
	"net"
	"testing"
	"time"

	"github.com/marmos91/dittonet/pkg/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopbackPeekDiscard(t *testing.T) {
	lb := NewLoopback(10 * time.Millisecond)
	lb.HostWrite([]byte{1, 2, 3})

	_, err := lb.Peek(4)
	assert.Error(t, err)

	b, err := lb.Peek(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, b)
	assert.Equal(t, 3, lb.Buffered())

	n, _ := lb.Discard(5)
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, lb.Buffered())
}

func TestLoopbackReadTimesOut(t *testing.T) {
	lb := NewLoopback(10 * time.Millisecond)

	start := time.Now()
	_, err := lb.Read(make([]byte, 1))
	assert.ErrorIs(t, err, bus.ErrNoData)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestLoopbackReadWakesOnData(t *testing.T) {
	lb := NewLoopback(time.Second)

	go func() {
		time.Sleep(10 * time.Millisecond)
		lb.HostWrite([]byte{42})
	}()

	buf := make([]byte, 1)
	n, err := lb.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, byte(42), buf[0])
}

func TestTCPRoundTrip(t *testing.T) {
	p, err := ListenTCP("127.0.0.1:0", 200*time.Millisecond)
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	conn, err := net.Dial("tcp", p.Addr().String())
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return p.Buffered() == 4 }, time.Second, 5*time.Millisecond)
	assert.True(t, p.Connected())

	_, err = p.Write([]byte("pong"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, err = conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(buf))
}

func TestTCPWriteWithoutBridgeIsDropped(t *testing.T) {
	p, err := ListenTCP("127.0.0.1:0", 10*time.Millisecond)
	require.NoError(t, err)

	n, err := p.Write([]byte{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, p.Close())
	assert.NoError(t, p.Close())
}
