package orientation

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silverstrand/metacore/bytesio"
	"github.com/silverstrand/metacore/tiff"
)

func buildJPEGWithOrientation(t *testing.T, order bytesio.Order, value uint16) []byte {
	t.Helper()
	s := tiff.NewOutputSet(order)
	root := s.RootDirectory()
	f, err := tiff.NewOutputField(tiff.TagOrientation, tiff.TypeShort, 1, []uint16{value}, order)
	require.NoError(t, err)
	require.NoError(t, root.SetField(f))

	tiffBytes, err := tiff.Write(s)
	require.NoError(t, err)

	payload := append([]byte("Exif\x00\x00"), tiffBytes...)
	l := len(payload) + 2
	buf := []byte{0xff, 0xd8, 0xff, 0xe1, byte(l >> 8), byte(l)}
	buf = append(buf, payload...)
	buf = append(buf, 0xff, 0xda, 0x00, 0x02, 0xff, 0xd9)
	return buf
}

func TestPatchInPlaceLittleEndian(t *testing.T) {
	buf := buildJPEGWithOrientation(t, binary.LittleEndian, 1)
	ok, err := PatchInPlace(buf, 6)
	require.NoError(t, err)
	require.True(t, ok)

	c, err := readBackOrientation(t, buf)
	require.NoError(t, err)
	assert.Equal(t, uint16(6), c)
}

func TestPatchInPlaceBigEndian(t *testing.T) {
	buf := buildJPEGWithOrientation(t, binary.BigEndian, 1)
	ok, err := PatchInPlace(buf, 8)
	require.NoError(t, err)
	require.True(t, ok)

	c, err := readBackOrientation(t, buf)
	require.NoError(t, err)
	assert.Equal(t, uint16(8), c)
}

func TestPatchInPlaceNoExif(t *testing.T) {
	buf := []byte{0xff, 0xd8, 0xff, 0xda, 0x00, 0x02, 0xff, 0xd9}
	ok, err := PatchInPlace(buf, 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func readBackOrientation(t *testing.T, buf []byte) (uint16, error) {
	t.Helper()
	const exifPrefixLen = 6
	idx := -1
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == 0xff && buf[i+1] == 0xe1 {
			idx = i
			break
		}
	}
	require.NotEqual(t, -1, idx)
	tiffStart := idx + 4 + exifPrefixLen
	contents, err := tiff.Read(buf[tiffStart:])
	if err != nil {
		return 0, err
	}
	f := contents.RootDirectory().FieldByTag(tiff.TagOrientation)
	require.NotNil(t, f)
	v, err := f.Decode()
	require.NoError(t, err)
	return v.([]uint16)[0], nil
}
