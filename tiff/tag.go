package tiff

// DirType identifies the directory-type id space used throughout this
// package. Non-negative values are image directories (IFD0, IFD1, ...);
// negative values are semantic sub-directories (EXIF, GPS, Interop,
// maker-note trees). See spec.md §3 for the full id table.
type DirType int

const (
	DirUnknown  DirType = -1
	DirExifIFD  DirType = -2
	DirGPSIFD   DirType = -3
	DirInterop  DirType = -4
	DirCanonMkn DirType = -101
	DirNikonMkn DirType = -102

	DirRoot DirType = 0 // IFD0
	DirIFD1 DirType = 1 // thumbnail IFD
)

// ExifSubIFD returns the directory type used for the i-th (1-based)
// offset found in a SubIFDs field, per spec.md §4.2 step 6.
func ExifSubIFD(i int) DirType {
	switch i {
	case 1, 2, 3:
		return DirType(1 + i) // 2,3,4
	default:
		return DirSub
	}
}

// DirSub is used for SubIFDs offsets beyond the third.
const DirSub DirType = 4

// IsImageDirectory reports whether d identifies an image (non-negative)
// directory, as opposed to a semantic sub-directory.
func (d DirType) IsImageDirectory() bool { return d >= 0 }

// IsMakerNote reports whether d identifies an opaque maker-note
// sub-directory tree (id <= -100). The writer refuses to materialise
// output directories for these (spec.md §4.3).
func (d DirType) IsMakerNote() bool { return d <= -100 }

// TagInfo is the static metadata the tag catalog (C3) holds for each
// known TIFF/EXIF tag: its numeric id, display name, the directory it is
// expected in, its default field type, its expected element count (0
// means variable/unspecified), and whether the writer must synthesise it
// rather than accept a caller-supplied value.
type TagInfo struct {
	ID          uint16
	Name        string
	Dir         DirType
	DefaultType FieldType
	Count       uint32 // 0 = variable
	IsOffset    bool   // writer-synthesised offset-carrying tag
}

// Well-known offset-carrying tags (spec.md §3, §4.2 step 6, §4.3).
const (
	TagExifOffset                  uint16 = 0x8769
	TagGPSInfo                     uint16 = 0x8825
	TagInteropOffset                uint16 = 0xa005
	TagSubIFDs                     uint16 = 0x014a
	TagJPEGInterchangeFormat       uint16 = 0x0201
	TagJPEGInterchangeFormatLength uint16 = 0x0202
)

// Frequently referenced tags beyond the offset carriers.
const (
	TagOrientation     uint16 = 0x0112
	TagCopyright       uint16 = 0x8298
	TagArtist          uint16 = 0x013b
	TagUserComment     uint16 = 0x9286
	TagDateTimeOrig    uint16 = 0x9003
	TagGPSVersionID    uint16 = 0x0000 // valid only inside the GPS IFD
	TagGPSLatitudeRef  uint16 = 0x0001
	TagGPSLatitude     uint16 = 0x0002
	TagGPSLongitudeRef uint16 = 0x0003
	TagGPSLongitude    uint16 = 0x0004
)

// catalog maps a tag id to static TagInfo. It is intentionally small:
// only the tags this engine's reader, writer, update coordinator and fast
// path refer to carry entries with a Name; all other tags resolve through
// LookupTag's fallback to an entry with an empty Name, matching the
// permissive-unknown-tag policy spec.md §7 requires (entry-level errors
// are absorbed, not fatal).
var catalog = map[uint16]TagInfo{
	TagOrientation:                  {ID: TagOrientation, Name: "Orientation", Dir: DirRoot, DefaultType: TypeShort, Count: 1},
	TagCopyright:                    {ID: TagCopyright, Name: "Copyright", Dir: DirRoot, DefaultType: TypeASCII},
	TagArtist:                       {ID: TagArtist, Name: "Artist", Dir: DirRoot, DefaultType: TypeASCII},
	TagUserComment:                  {ID: TagUserComment, Name: "UserComment", Dir: DirExifIFD, DefaultType: TypeUndefined},
	TagDateTimeOrig:                 {ID: TagDateTimeOrig, Name: "DateTimeOriginal", Dir: DirExifIFD, DefaultType: TypeASCII, Count: 20},
	TagExifOffset:                   {ID: TagExifOffset, Name: "ExifOffset", Dir: DirRoot, DefaultType: TypeLong, Count: 1, IsOffset: true},
	TagGPSInfo:                      {ID: TagGPSInfo, Name: "GPSInfo", Dir: DirRoot, DefaultType: TypeLong, Count: 1, IsOffset: true},
	TagInteropOffset:                {ID: TagInteropOffset, Name: "InteropOffset", Dir: DirExifIFD, DefaultType: TypeLong, Count: 1, IsOffset: true},
	TagSubIFDs:                      {ID: TagSubIFDs, Name: "SubIFDs", Dir: DirRoot, DefaultType: TypeLong, IsOffset: true},
	TagJPEGInterchangeFormat:       {ID: TagJPEGInterchangeFormat, Name: "JPEGInterchangeFormat", Dir: DirIFD1, DefaultType: TypeLong, Count: 1, IsOffset: true},
	TagJPEGInterchangeFormatLength: {ID: TagJPEGInterchangeFormatLength, Name: "JPEGInterchangeFormatLength", Dir: DirIFD1, DefaultType: TypeLong, Count: 1},
	TagGPSVersionID:                {ID: TagGPSVersionID, Name: "GPSVersionID", Dir: DirGPSIFD, DefaultType: TypeByte, Count: 4},
	TagGPSLatitudeRef:              {ID: TagGPSLatitudeRef, Name: "GPSLatitudeRef", Dir: DirGPSIFD, DefaultType: TypeASCII, Count: 2},
	TagGPSLatitude:                 {ID: TagGPSLatitude, Name: "GPSLatitude", Dir: DirGPSIFD, DefaultType: TypeRational, Count: 3},
	TagGPSLongitudeRef:             {ID: TagGPSLongitudeRef, Name: "GPSLongitudeRef", Dir: DirGPSIFD, DefaultType: TypeASCII, Count: 2},
	TagGPSLongitude:                {ID: TagGPSLongitude, Name: "GPSLongitude", Dir: DirGPSIFD, DefaultType: TypeRational, Count: 3},
}

// offsetCarryingTags lists the tags inspected, in fixed order, by step 6
// of the TIFF reader algorithm (spec.md §4.2).
var offsetCarryingTags = []uint16{TagExifOffset, TagGPSInfo, TagInteropOffset, TagSubIFDs}

// LookupTag returns the static info for id, or a synthetic "unknown tag"
// entry with Name == "" when id is not in the catalog. Callers should
// treat a zero-value Name as "format generically" rather than an error:
// unknown tags are preserved verbatim by the reader and writer, they are
// simply opaque to tag-specific logic (spec.md §4.2 step 4, §9).
func LookupTag(id uint16) TagInfo {
	if info, ok := catalog[id]; ok {
		return info
	}
	return TagInfo{ID: id, DefaultType: TypeUndefined}
}

// IsOffsetCarrier reports whether id is one of the tags the writer
// synthesises and that callers must never materialise directly in an
// output directory (spec.md §3 TiffOutputDirectory invariant).
func IsOffsetCarrier(id uint16) bool {
	return LookupTag(id).IsOffset
}
