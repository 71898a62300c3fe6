package disk

import (
	"bytes"
	"context"
	"testing"

	"github.com/marmos91/dittonet/pkg/device"
	derrors "github.com/marmos91/dittonet/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeATR builds an image whose sector n is filled with byte n.
func makeATR(sectorSize uint16, sectors int) []byte {
	var data []byte
	for n := 1; n <= sectors; n++ {
		size := int(sectorSize)
		if n <= 3 {
			size = 128
		}
		data = append(data, bytes.Repeat([]byte{byte(n)}, size)...)
	}
	h := Header{SectorSize: sectorSize, DataSize: uint32(len(data))}
	return append(h.Bytes(), data...)
}

func newDrive(t *testing.T, files map[string][]byte) (*Disk, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, b := range files {
		require.NoError(t, afero.WriteFile(fs, name, b, 0o644))
	}
	return New(FSOpener(fs)), fs
}

func TestHeaderRoundTrip(t *testing.T) {
	h, err := ParseHeader(makeATR(128, 720)[:HeaderLen])
	require.NoError(t, err)
	assert.Equal(t, uint16(128), h.SectorSize)
	assert.Equal(t, uint32(720), h.Sectors())

	_, err = ParseHeader([]byte("not an image at all"))
	assert.ErrorIs(t, err, errNotATR)
}

func TestDoubleDensityOffsets(t *testing.T) {
	h := Header{SectorSize: 256, DataSize: 3*128 + 2*256}
	assert.Equal(t, uint32(5), h.Sectors())

	off, n, err := h.SectorOffset(3)
	require.NoError(t, err)
	assert.Equal(t, int64(256), off)
	assert.Equal(t, 128, n)

	off, n, err = h.SectorOffset(5)
	require.NoError(t, err)
	assert.Equal(t, int64(3*128+256), off)
	assert.Equal(t, 256, n)

	_, _, err = h.SectorOffset(6)
	assert.ErrorIs(t, err, errRange)
}

func TestEmptyDriveIsDisabled(t *testing.T) {
	d, _ := newDrive(t, nil)
	assert.False(t, d.Enabled())
	assert.False(t, d.Status().Connected)

	_, err := d.Read(context.Background(), make([]byte, 128))
	assert.ErrorIs(t, err, derrors.ErrOpen)
}

func TestMountAndReadSectors(t *testing.T) {
	d, _ := newDrive(t, map[string][]byte{"/game.atr": makeATR(128, 10)})
	ctx := context.Background()

	require.NoError(t, d.Mount(ctx, "/game.atr", false))
	assert.True(t, d.Enabled())
	assert.Equal(t, "/game.atr", d.Target())

	buf := make([]byte, 128)
	require.NoError(t, d.Point(ctx, 4*128))
	n, err := d.Read(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, 128, n)
	assert.Equal(t, byte(5), buf[0])

	n, err = d.Read(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, 128, n)
	assert.Equal(t, byte(6), buf[127])

	pos, err := d.Note(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(6*128), pos)

	st := d.Status()
	assert.True(t, st.Connected)
	assert.Equal(t, device.CodeSuccess, st.Error)
}

func TestPointOutOfRange(t *testing.T) {
	d, _ := newDrive(t, map[string][]byte{"/a.atr": makeATR(128, 2)})
	ctx := context.Background()
	require.NoError(t, d.Mount(ctx, "/a.atr", false))

	err := d.Point(ctx, 2*128)
	assert.ErrorIs(t, err, derrors.ErrBadRequest)
	assert.Equal(t, device.CodeBadDeviceSpec, d.Status().Error)
}

func TestWriteProtection(t *testing.T) {
	d, fs := newDrive(t, map[string][]byte{"/a.atr": makeATR(128, 4)})
	ctx := context.Background()

	require.NoError(t, d.Mount(ctx, "/a.atr", false))
	_, err := d.Write(ctx, bytes.Repeat([]byte{0xEE}, 128))
	assert.ErrorIs(t, err, derrors.ErrIO)

	require.NoError(t, d.Open(ctx, "/a.atr", &device.Command{Aux1: 0x08}))
	require.NoError(t, d.Point(ctx, 128))
	n, err := d.Write(ctx, bytes.Repeat([]byte{0xEE}, 128))
	require.NoError(t, err)
	assert.Equal(t, 128, n)
	d.Close()

	b, err := afero.ReadFile(fs, "/a.atr")
	require.NoError(t, err)
	assert.Equal(t, byte(0xEE), b[HeaderLen+128])
	assert.Equal(t, byte(3), b[HeaderLen+256])
}

func TestMountFailures(t *testing.T) {
	d, _ := newDrive(t, map[string][]byte{"/bad.atr": []byte("garbage data here")})
	ctx := context.Background()

	assert.ErrorIs(t, d.Mount(ctx, "/missing.atr", false), derrors.ErrNotFound)
	assert.ErrorIs(t, d.Mount(ctx, "/bad.atr", false), derrors.ErrOpen)
	assert.False(t, d.Enabled())
}

func TestAttachDetachMovesImages(t *testing.T) {
	a, fs := newDrive(t, map[string][]byte{"/a.atr": makeATR(128, 3)})
	b := New(FSOpener(fs))
	ctx := context.Background()

	require.NoError(t, a.Mount(ctx, "/a.atr", false))
	m := a.Detach()
	require.NotNil(t, m)
	assert.False(t, a.Enabled())

	b.Attach(m)
	assert.Equal(t, "/a.atr", b.Target())
	buf := make([]byte, 128)
	_, err := b.Read(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, byte(1), buf[0])
}

func TestMemImageIsReadOnly(t *testing.T) {
	img := NewMemImage(makeATR(128, 1))
	d := New(func(context.Context, string, bool) (Image, error) { return img, nil })
	ctx := context.Background()

	require.NoError(t, d.Mount(ctx, "tnfs://host/a.atr", true))
	_, err := d.Write(ctx, make([]byte, 128))
	assert.ErrorIs(t, err, derrors.ErrIO)
}
