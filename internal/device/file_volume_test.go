package device_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubifsck/ubifsck/internal/device"
)

func openTestVolume(t *testing.T) *device.FileVolume {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.bin")
	v, err := device.OpenFileVolume(path, 8, 4096, 512, 2048, true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func TestNewVolumeAllLebsUnmapped(t *testing.T) {
	v := openTestVolume(t)
	for i := 0; i < v.LebCount(); i++ {
		mapped, err := v.IsMapped(i)
		require.NoError(t, err)
		assert.False(t, mapped)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	v := openTestVolume(t)
	buf := make([]byte, 512)
	for i := range buf {
		buf[i] = byte(i)
	}
	require.NoError(t, v.LebWrite(2, 0, buf))

	got, err := v.LebRead(2, 0, 512)
	require.NoError(t, err)
	assert.Equal(t, buf, got)

	mapped, err := v.IsMapped(2)
	require.NoError(t, err)
	assert.True(t, mapped)
}

func TestLebChangeReplacesWholeLeb(t *testing.T) {
	v := openTestVolume(t)
	require.NoError(t, v.LebWrite(0, 0, make([]byte, 512)))

	require.NoError(t, v.LebChange(0, []byte("hello")))
	got, err := v.LebRead(0, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	rest, err := v.LebRead(0, 5, 10)
	require.NoError(t, err)
	for _, b := range rest {
		assert.Equal(t, byte(0xFF), b)
	}
}

func TestLebUnmapClearsContent(t *testing.T) {
	v := openTestVolume(t)
	data := make([]byte, 512)
	for i := range data {
		data[i] = byte(i + 1)
	}
	require.NoError(t, v.LebWrite(1, 0, data))
	require.NoError(t, v.LebUnmap(1))

	mapped, err := v.IsMapped(1)
	require.NoError(t, err)
	assert.False(t, mapped)

	got, err := v.LebRead(1, 0, 512)
	require.NoError(t, err)
	for _, b := range got {
		assert.Equal(t, byte(0xFF), b)
	}
}

func TestWriteRejectsUnalignedOffset(t *testing.T) {
	v := openTestVolume(t)
	err := v.LebWrite(0, 1, make([]byte, 512))
	assert.Error(t, err)
}

func TestOutOfRangeLeb(t *testing.T) {
	v := openTestVolume(t)
	_, err := v.LebRead(99, 0, 1)
	assert.Error(t, err)
	var rangeErr *device.ErrOutOfRange
	assert.ErrorAs(t, err, &rangeErr)
}
