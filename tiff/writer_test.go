package tiff

import (
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silverstrand/metacore/bytesio"
)

func TestWriteAndReadRoundTrip(t *testing.T) {
	s := NewOutputSet(bytesio.Order(binary.LittleEndian))
	root := s.RootDirectory()

	orientF, err := NewOutputField(TagOrientation, TypeShort, 1, []uint16{6}, s.Order)
	require.NoError(t, err)
	require.NoError(t, root.SetField(orientF))

	copyrightF, err := NewOutputField(TagCopyright, TypeASCII, 0, "2026 Example Co.", s.Order)
	require.NoError(t, err)
	require.NoError(t, root.SetField(copyrightF))

	exif, err := NewOutputDirectory(DirExifIFD)
	require.NoError(t, err)
	dateF, err := NewOutputField(TagDateTimeOrig, TypeASCII, 0, "2026:07:30 12:00:00", s.Order)
	require.NoError(t, err)
	require.NoError(t, exif.SetField(dateF))
	root.AddChild(exif)

	gps, err := NewOutputDirectory(DirGPSIFD)
	require.NoError(t, err)
	latRefF, err := NewOutputField(TagGPSLatitudeRef, TypeASCII, 0, "N", s.Order)
	require.NoError(t, err)
	require.NoError(t, gps.SetField(latRefF))
	root.AddChild(gps)

	buf, err := Write(s)
	require.NoError(t, err)

	c, err := Read(buf)
	require.NoError(t, err)

	rootDir := c.RootDirectory()
	require.NotNil(t, rootDir)

	orient := rootDir.FieldByTag(TagOrientation)
	require.NotNil(t, orient)
	v, err := orient.Decode()
	require.NoError(t, err)
	assert.Equal(t, []uint16{6}, v)

	cr := rootDir.FieldByTag(TagCopyright)
	require.NotNil(t, cr)
	vs, err := cr.Decode()
	require.NoError(t, err)
	assert.Equal(t, "2026 Example Co.", vs)

	exifDir := c.Directory(DirExifIFD)
	require.NotNil(t, exifDir)
	dt := exifDir.FieldByTag(TagDateTimeOrig)
	require.NotNil(t, dt)
	dv, err := dt.Decode()
	require.NoError(t, err)
	assert.Equal(t, "2026:07:30 12:00:00", dv)

	gpsDir := c.Directory(DirGPSIFD)
	require.NotNil(t, gpsDir)
	ref := gpsDir.FieldByTag(TagGPSLatitudeRef)
	require.NotNil(t, ref)
}

func TestWriteIsDeterministicAcrossRuns(t *testing.T) {
	build := func() *OutputSet {
		s := NewOutputSet(bytesio.Order(binary.LittleEndian))
		root := s.RootDirectory()
		f, _ := NewOutputField(TagOrientation, TypeShort, 1, []uint16{3}, s.Order)
		require.NoError(t, root.SetField(f))
		exif, _ := NewOutputDirectory(DirExifIFD)
		df, _ := NewOutputField(TagDateTimeOrig, TypeASCII, 0, "2026:01:01 00:00:00", s.Order)
		require.NoError(t, exif.SetField(df))
		root.AddChild(exif)
		return s
	}

	buf1, err := Write(build())
	require.NoError(t, err)
	buf2, err := Write(build())
	require.NoError(t, err)
	require.Equal(t, buf1, buf2)

	c1, err := Read(buf1)
	require.NoError(t, err)
	c2, err := Read(buf2)
	require.NoError(t, err)

	if diff := cmp.Diff(c1, c2, cmpopts.IgnoreFields(Field{}, "Order")); diff != "" {
		t.Errorf("repeated Write/Read of identical output sets diverged (-first +second):\n%s", diff)
	}
}

func TestWriteRejectsMakerNoteDirectory(t *testing.T) {
	_, err := NewOutputDirectory(DirCanonMkn)
	assert.ErrorIs(t, err, ErrUnsupportedDirectory)
}

func TestWriteFieldsSortedByTagAscending(t *testing.T) {
	s := NewOutputSet(bytesio.Order(binary.BigEndian))
	root := s.RootDirectory()

	f1, _ := NewOutputField(TagCopyright, TypeASCII, 0, "c", s.Order)
	f2, _ := NewOutputField(TagOrientation, TypeShort, 1, []uint16{1}, s.Order)
	require.NoError(t, root.SetField(f1))
	require.NoError(t, root.SetField(f2))

	buf, err := Write(s)
	require.NoError(t, err)

	c, err := Read(buf)
	require.NoError(t, err)
	rootDir := c.RootDirectory()
	require.Len(t, rootDir.Fields, 2)
	assert.Less(t, rootDir.Fields[0].Tag, rootDir.Fields[1].Tag)
}
