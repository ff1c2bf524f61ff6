package tiff

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildIFD appends a minimal II-order IFD at the current end of buf:
// entry count, the given entries (each pre-encoded to 12 bytes), and a
// next-directory offset. It returns the offset the IFD was written at.
func buildIFD(buf []byte, entries [][12]byte, next uint32) ([]byte, uint32) {
	off := uint32(len(buf))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(entries)))
	for _, e := range entries {
		buf = append(buf, e[:]...)
	}
	buf = binary.LittleEndian.AppendUint32(buf, next)
	return buf, off
}

func entry(tag uint16, ftype FieldType, count uint32, inline [4]byte) [12]byte {
	var e [12]byte
	binary.LittleEndian.PutUint16(e[0:2], tag)
	binary.LittleEndian.PutUint16(e[2:4], uint16(ftype))
	binary.LittleEndian.PutUint32(e[4:8], count)
	copy(e[8:12], inline[:])
	return e
}

func header(firstOffset uint32) []byte {
	buf := []byte{'I', 'I', 0x2a, 0x00, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(buf[4:8], firstOffset)
	return buf
}

// TestReadCyclicNextIFDOffsetTerminates forces IFD0's NextOffset to
// point back at itself; the visited-offset guard in walkChain must stop
// the walk without an infinite loop or an error (spec.md §8).
func TestReadCyclicNextIFDOffsetTerminates(t *testing.T) {
	buf := header(8)
	buf, ifd0Off := buildIFD(buf, nil, 0)
	binary.LittleEndian.PutUint32(buf[ifd0Off+2:ifd0Off+6], ifd0Off) // next points back at self

	c, err := Read(buf)
	require.NoError(t, err)
	assert.Len(t, c.Directories, 1)
}

// TestReadDanglingOffsetFieldIsRemoved exercises the
// resolveOffsetField/RemoveTag path: an ExifOffset field stored with a
// type that can't decode to offsets is dropped from the directory
// instead of failing the whole parse (spec.md §4.2 step 7).
func TestReadDanglingOffsetFieldIsRemoved(t *testing.T) {
	buf := header(8)
	badExifOffset := entry(TagExifOffset, TypeASCII, 4, [4]byte{'x', 'x', 'x', 'x'})
	buf, _ = buildIFD(buf, [][12]byte{badExifOffset}, 0)

	c, err := Read(buf)
	require.NoError(t, err)
	root := c.RootDirectory()
	require.NotNil(t, root)
	assert.Nil(t, root.FieldByTag(TagExifOffset))
}

// TestReadTagZeroSkippedExceptInGPSIFD exercises parseDirectory's tag-0
// special case: a zero tag id is dropped everywhere except inside the
// GPS IFD, where it is the legitimate GPSVersionID field (spec.md §4.2
// step 4, §8).
func TestReadTagZeroSkippedExceptInGPSIFD(t *testing.T) {
	buf := header(8)

	zeroTag := entry(0x0000, TypeShort, 1, [4]byte{5, 0, 0, 0})
	gpsInfoEntry := entry(TagGPSInfo, TypeLong, 1, [4]byte{0, 0, 0, 0}) // patched below
	buf, ifd0Off := buildIFD(buf, [][12]byte{zeroTag, gpsInfoEntry}, 0)

	gpsVersion := entry(TagGPSVersionID, TypeByte, 4, [4]byte{2, 3, 0, 0})
	buf, gpsOff := buildIFD(buf, [][12]byte{gpsVersion}, 0)

	// Patch the GPSInfo entry's inline value (second entry, offset field at
	// byte 8 of its 12-byte slot) now that the GPS IFD's offset is known.
	gpsInfoEntryPos := int(ifd0Off) + 2 + 12 // past count + first entry
	binary.LittleEndian.PutUint32(buf[gpsInfoEntryPos+8:gpsInfoEntryPos+12], gpsOff)

	c, err := Read(buf)
	require.NoError(t, err)

	root := c.RootDirectory()
	require.NotNil(t, root)
	assert.Nil(t, root.FieldByTag(0x0000), "tag 0 in IFD0 must be skipped")

	gpsDir := c.Directory(DirGPSIFD)
	require.NotNil(t, gpsDir)
	versionField := gpsDir.FieldByTag(TagGPSVersionID)
	require.NotNil(t, versionField, "tag 0 (GPSVersionID) inside the GPS IFD must be kept")
	v, err := versionField.Decode()
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 3, 0, 0}, v)
}

// TestReadIFD1ParseErrorIsTolerated confirms a parse failure while
// walking IFD1 is absorbed (logged, not returned), matching DESIGN.md's
// Open Question #3 decision that IFD1-only tolerance is intentional.
func TestReadIFD1ParseErrorIsTolerated(t *testing.T) {
	buf := header(8)
	// IFD0: no fields, NextOffset points one byte before EOF so reading
	// IFD1's 2-byte entry count fails with a truncation error.
	buf, _ = buildIFD(buf, nil, 0)
	danglingOffset := uint32(len(buf) - 1)
	binary.LittleEndian.PutUint32(buf[len(buf)-4:], danglingOffset)

	c, err := Read(buf)
	require.NoError(t, err)
	assert.Len(t, c.Directories, 1, "only IFD0 should have parsed; the broken IFD1 is dropped")
}

// TestReadDeeperChainParseErrorPropagates confirms the IFD1 tolerance
// does NOT extend to deeper chain links (IFD2+): a parse failure there
// fails the whole Read, per DESIGN.md's Open Question #3 decision.
func TestReadDeeperChainParseErrorPropagates(t *testing.T) {
	buf := header(8)
	buf, ifd0Off := buildIFD(buf, nil, 0)
	buf, ifd1Off := buildIFD(buf, nil, 0)
	binary.LittleEndian.PutUint32(buf[ifd0Off+2:ifd0Off+6], ifd1Off)

	// IFD1's NextOffset points one byte before EOF, breaking the IFD2 link.
	danglingOffset := uint32(len(buf) - 1)
	binary.LittleEndian.PutUint32(buf[len(buf)-4:], danglingOffset)

	_, err := Read(buf)
	assert.Error(t, err)
}
