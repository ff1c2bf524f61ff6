package metacore

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silverstrand/metacore/coordinator"
	"github.com/silverstrand/metacore/jpegseg"
	"github.com/silverstrand/metacore/tiff"
)

func minimalJPEG(segments ...[]byte) []byte {
	buf := []byte{0xff, 0xd8}
	for _, s := range segments {
		buf = append(buf, s...)
	}
	buf = append(buf, 0xff, 0xda, 0x00, 0x04, 0x00, 0x00, 0xff, 0xd9)
	return buf
}

func app1Segment(payload []byte) []byte {
	l := len(payload) + 2
	return append([]byte{0xff, 0xe1, byte(l >> 8), byte(l)}, payload...)
}

func jpegWithOrientation(t *testing.T, value uint16) []byte {
	t.Helper()
	s := tiff.NewOutputSet(binary.LittleEndian)
	root := s.RootDirectory()
	f, err := tiff.NewOutputField(tiff.TagOrientation, tiff.TypeShort, 1, []uint16{value}, binary.LittleEndian)
	require.NoError(t, err)
	require.NoError(t, root.SetField(f))
	tiffBytes, err := tiff.Write(s)
	require.NoError(t, err)
	return minimalJPEG(app1Segment(append([]byte("Exif\x00\x00"), tiffBytes...)))
}

func TestDetectContainerJPEG(t *testing.T) {
	assert.Equal(t, ContainerJPEG, DetectContainer([]byte{0xff, 0xd8, 0xff, 0xe0}))
}

func TestDetectContainerTIFFBothByteOrders(t *testing.T) {
	assert.Equal(t, ContainerTIFF, DetectContainer([]byte{0x49, 0x49, 0x2a, 0x00}))
	assert.Equal(t, ContainerTIFF, DetectContainer([]byte{0x4d, 0x4d, 0x00, 0x2a}))
}

func TestDetectContainerBMFF(t *testing.T) {
	buf := []byte{0, 0, 0, 24, 'f', 't', 'y', 'p', 'h', 'e', 'i', 'c'}
	assert.Equal(t, ContainerBMFF, DetectContainer(buf))
}

func TestDetectContainerJPEGXLCodestream(t *testing.T) {
	assert.Equal(t, ContainerJPEGXLCodestream, DetectContainer([]byte{0xff, 0x0a}))
}

func TestDetectContainerRAF(t *testing.T) {
	buf := append([]byte("FUJIFILMCCD-RAW"), make([]byte, 10)...)
	assert.Equal(t, ContainerRAF, DetectContainer(buf))
}

func TestDetectContainerUnknown(t *testing.T) {
	assert.Equal(t, ContainerUnknown, DetectContainer([]byte{0x00, 0x01, 0x02, 0x03}))
}

func TestParseJPEGExtractsEXIF(t *testing.T) {
	buf := jpegWithOrientation(t, 1)
	md, err := Parse(buf)
	require.NoError(t, err)
	require.NotNil(t, md.TIFF)
	f := md.TIFF.RootDirectory().FieldByTag(tiff.TagOrientation)
	require.NotNil(t, f)
	v, err := f.Decode()
	require.NoError(t, err)
	assert.Equal(t, []uint16{1}, v)
}

func TestUpdateOrientationUsesFastPath(t *testing.T) {
	buf := jpegWithOrientation(t, 1)
	out, err := Update(buf, coordinator.MetadataUpdate{Kind: coordinator.Orientation, OrientationValue: 6}, coordinator.UnitTestZone())
	require.NoError(t, err)

	md, err := Parse(out)
	require.NoError(t, err)
	f := md.TIFF.RootDirectory().FieldByTag(tiff.TagOrientation)
	require.NotNil(t, f)
	v, err := f.Decode()
	require.NoError(t, err)
	assert.Equal(t, []uint16{6}, v)
}

func TestUpdateKeywordsOnBareJPEGInsertsXMPAndIPTCOnly(t *testing.T) {
	buf := minimalJPEG()
	out, err := Update(buf, coordinator.MetadataUpdate{Kind: coordinator.Keywords, KeywordSet: []string{"b", "a"}}, coordinator.UnitTestZone())
	require.NoError(t, err)

	stream, err := jpegseg.Parse(out)
	require.NoError(t, err)
	_, hasExif := stream.FindExif()
	assert.False(t, hasExif)

	xmlBytes, ok := stream.FindXMP()
	require.True(t, ok)
	assert.Contains(t, string(xmlBytes), "dc:subject")

	iptcBytes, ok := stream.FindIPTC()
	require.True(t, ok)
	assert.NotEmpty(t, iptcBytes)
}

func TestUpdateRejectsNonJPEGContainer(t *testing.T) {
	_, err := Update([]byte{0x49, 0x49, 0x2a, 0x00, 0, 0, 0, 0}, coordinator.MetadataUpdate{Kind: coordinator.Rating, RatingValue: 5}, coordinator.UnitTestZone())
	assert.Error(t, err)
}

func TestUpdateRatingOnBareJPEGSynthesizesDefaultOrientation(t *testing.T) {
	buf := minimalJPEG()
	out, err := Update(buf, coordinator.MetadataUpdate{Kind: coordinator.Rating, RatingValue: 4}, coordinator.UnitTestZone())
	require.NoError(t, err)

	md, err := Parse(out)
	require.NoError(t, err)
	require.NotNil(t, md.TIFF)
	f := md.TIFF.RootDirectory().FieldByTag(tiff.TagOrientation)
	require.NotNil(t, f)
	v, err := f.Decode()
	require.NoError(t, err)
	assert.Equal(t, []uint16{1}, v)
}

func TestUpdateKeywordsPreservesExistingOrientationField(t *testing.T) {
	buf := jpegWithOrientation(t, 6)
	out, err := Update(buf, coordinator.MetadataUpdate{Kind: coordinator.Keywords, KeywordSet: []string{"x"}}, coordinator.UnitTestZone())
	require.NoError(t, err)

	md, err := Parse(out)
	require.NoError(t, err)
	f := md.TIFF.RootDirectory().FieldByTag(tiff.TagOrientation)
	require.NotNil(t, f)
	v, err := f.Decode()
	require.NoError(t, err)
	assert.Equal(t, []uint16{6}, v)
}

func jpegWithNULPaddedCopyright(t *testing.T, copyright string) []byte {
	t.Helper()
	s := tiff.NewOutputSet(binary.LittleEndian)
	root := s.RootDirectory()
	f, err := tiff.NewOutputField(tiff.TagCopyright, tiff.TypeASCII, 0, copyright, binary.LittleEndian)
	require.NoError(t, err)
	require.NoError(t, root.SetField(f))
	tiffBytes, err := tiff.Write(s)
	require.NoError(t, err)
	return minimalJPEG(app1Segment(append([]byte("Exif\x00\x00"), tiffBytes...)))
}

func TestUpdateOmitsAllNULCopyrightField(t *testing.T) {
	buf := jpegWithNULPaddedCopyright(t, "\x00\x00\x00\x00\x00")
	out, err := Update(buf, coordinator.MetadataUpdate{Kind: coordinator.Rating, RatingValue: 2}, coordinator.UnitTestZone())
	require.NoError(t, err)

	md, err := Parse(out)
	require.NoError(t, err)
	require.NotNil(t, md.TIFF)
	assert.Nil(t, md.TIFF.RootDirectory().FieldByTag(tiff.TagCopyright))
}

func TestUpdateTrimsWhitespaceAndNULFromCopyrightField(t *testing.T) {
	buf := jpegWithNULPaddedCopyright(t, "  2026 Example Co. \x00\x00")
	out, err := Update(buf, coordinator.MetadataUpdate{Kind: coordinator.Rating, RatingValue: 2}, coordinator.UnitTestZone())
	require.NoError(t, err)

	md, err := Parse(out)
	require.NoError(t, err)
	f := md.TIFF.RootDirectory().FieldByTag(tiff.TagCopyright)
	require.NotNil(t, f)
	v, err := f.Decode()
	require.NoError(t, err)
	assert.Equal(t, "2026 Example Co.", v)
}
