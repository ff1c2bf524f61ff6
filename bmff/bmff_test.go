package bmff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func box(boxType string, payload []byte) []byte {
	size := 8 + len(payload)
	out := make([]byte, 4)
	out[0] = byte(size >> 24)
	out[1] = byte(size >> 16)
	out[2] = byte(size >> 8)
	out[3] = byte(size)
	out = append(out, boxType...)
	out = append(out, payload...)
	return out
}

func TestParseTopLevelBoxes(t *testing.T) {
	ftyp := box("ftyp", []byte("isomiso2"))
	exif := box("Exif", append([]byte{0, 0, 0, 0}, []byte("II*\x00")...))
	mdat := box("mdat", []byte("pixeldata"))

	buf := append(append(append([]byte{}, ftyp...), exif...), mdat...)

	tree, err := Parse(buf)
	require.NoError(t, err)
	require.Len(t, tree.Boxes, 3)
	assert.Equal(t, "ftyp", tree.Boxes[0].Type)
	assert.Equal(t, "Exif", tree.Boxes[1].Type)
	assert.Equal(t, "mdat", tree.Boxes[2].Type)

	got, err := ExifTIFFBytes(tree.Boxes[1])
	require.NoError(t, err)
	assert.Equal(t, []byte("II*\x00"), got)
}

func TestStopAfterMetaBox(t *testing.T) {
	metaContent := append([]byte{0, 0, 0, 0}, box("hdlr", []byte("pict"))...)
	meta := box("meta", metaContent)
	mdat := box("mdat", make([]byte, 1000))

	buf := append(append([]byte{}, meta...), mdat...)

	tree, err := Parse(buf, StopAfterMetaBox())
	require.NoError(t, err)
	require.Len(t, tree.Boxes, 1)
	assert.Equal(t, "meta", tree.Boxes[0].Type)
	assert.NotEmpty(t, tree.Remainder)
}

func TestMetaOrderingBeforeAndAfterMdat(t *testing.T) {
	metaContent := append([]byte{0, 0, 0, 0}, box("hdlr", []byte("pict"))...)
	meta := box("meta", metaContent)
	mdat := box("mdat", []byte("data"))

	before := append(append([]byte{}, meta...), mdat...)
	after := append(append([]byte{}, mdat...), meta...)

	for _, buf := range [][]byte{before, after} {
		tree, err := Parse(buf)
		require.NoError(t, err)
		require.True(t, tree.HasBox("meta"))
		require.True(t, tree.HasBox("hdlr"))
	}
}

func TestReplacePayloadRecomputesLength(t *testing.T) {
	exif := box("Exif", append([]byte{0, 0, 0, 0}, []byte("short")...))
	buf := append([]byte{}, exif...)

	tree, err := Parse(buf)
	require.NoError(t, err)

	b := tree.Find("Exif")
	require.NotNil(t, b)
	require.NoError(t, tree.ReplacePayload(b, append([]byte{0, 0, 0, 0}, []byte("a much longer replacement payload")...)))

	out := tree.Serialize()
	reparsed, err := Parse(out)
	require.NoError(t, err)
	got, err := ExifTIFFBytes(reparsed.Find("Exif"))
	require.NoError(t, err)
	assert.Equal(t, []byte("a much longer replacement payload"), got)
}

func TestReplacePayloadRejectsWhenIlocPresentAndSizeChanges(t *testing.T) {
	metaContent := append([]byte{0, 0, 0, 0}, box("iloc", []byte("entry"))...)
	metaContent = append(metaContent, box("Exif", append([]byte{0, 0, 0, 0}, []byte("old")...))...)
	meta := box("meta", metaContent)

	tree, err := Parse(meta)
	require.NoError(t, err)

	b := tree.Find("Exif")
	require.NotNil(t, b)
	err = tree.ReplacePayload(b, append([]byte{0, 0, 0, 0}, []byte("much longer now")...))
	assert.ErrorIs(t, err, ErrIlocOffsetShift)
}

func TestReplacePayloadSameLengthAllowedWithIloc(t *testing.T) {
	metaContent := append([]byte{0, 0, 0, 0}, box("iloc", []byte("entry"))...)
	metaContent = append(metaContent, box("Exif", append([]byte{0, 0, 0, 0}, []byte("abc")...))...)
	meta := box("meta", metaContent)

	tree, err := Parse(meta)
	require.NoError(t, err)

	b := tree.Find("Exif")
	require.NoError(t, tree.ReplacePayload(b, append([]byte{0, 0, 0, 0}, []byte("xyz")...)))
}
