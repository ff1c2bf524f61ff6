package tiff

import (
	"github.com/pkg/errors"

	"github.com/silverstrand/metacore/bytesio"
)

// ErrUnsupportedDirectory is returned when a caller attempts to create an
// output directory from an in-memory maker-note sub-tree (spec.md §4.3
// writer-only contract).
var ErrUnsupportedDirectory = errors.New("tiff: unsupported directory for output (maker-note tree)")

// OutputField is the writer-side mirror of Field: a tag, field type,
// count, byte payload and a sort hint. See spec.md §3
// TiffOutputSet/Directory/Field.
type OutputField struct {
	Tag      uint16
	Type     FieldType
	Count    uint32
	Value    []byte // encoded payload; Count*Type.ElementSize() bytes
	SortHint int

	// blobOffset is filled in by the writer during Phase 2 layout when
	// Value doesn't fit inline; zero otherwise.
	blobOffset uint32
}

// NewOutputField builds an OutputField from a typed Go value, encoding it
// immediately in the given byte order so later layout/offset computation
// only ever deals with raw bytes. The stored Count is always derived from
// the encoded length, not the count argument: for ASCII in particular the
// caller rarely knows the NUL-terminated length in advance.
func NewOutputField(tag uint16, t FieldType, count uint32, value any, order bytesio.Order) (*OutputField, error) {
	raw, err := t.Encode(value, order)
	if err != nil {
		return nil, errors.Wrapf(err, "tiff: encoding tag %#04x", tag)
	}
	size := t.ElementSize()
	actual := count
	if size > 0 {
		actual = uint32(len(raw)) / size
	}
	return &OutputField{Tag: tag, Type: t, Count: actual, Value: raw}, nil
}

// OutputDirectory is the writer-side mirror of Directory: a directory
// type id plus an unordered bag of output fields (tag-id ascending order
// is applied at emit time by the writer, not stored here) and an
// optional embedded thumbnail payload.
type OutputDirectory struct {
	Type      DirType
	Fields    []*OutputField
	Thumbnail []byte

	// children holds nested output directories addressed via offset
	// fields the writer itself synthesises (EXIF, GPS, Interop, and
	// any creator-supplied SubIFDs entries). Keyed by directory type.
	children map[DirType]*OutputDirectory
	childOrd []DirType // creation order, used for SubIFDs numbering
}

// NewOutputDirectory creates an output directory of the given type. It
// fails with ErrUnsupportedDirectory for maker-note tree types (id <=
// -100): the writer never materialises those (spec.md §4.3).
func NewOutputDirectory(t DirType) (*OutputDirectory, error) {
	if t.IsMakerNote() {
		return nil, errors.Wrapf(ErrUnsupportedDirectory, "dir type %d", int(t))
	}
	return &OutputDirectory{Type: t, children: make(map[DirType]*OutputDirectory)}, nil
}

// SetField inserts or replaces the field for tag, enforcing the
// "at most one field per tag id" invariant (spec.md §3). Offset-carrying
// tags are rejected: the writer synthesises those itself.
func (d *OutputDirectory) SetField(f *OutputField) error {
	if IsOffsetCarrier(f.Tag) {
		return errors.Errorf("tiff: tag %#04x is writer-synthesised and must not be set directly", f.Tag)
	}
	for i, existing := range d.Fields {
		if existing.Tag == f.Tag {
			d.Fields[i] = f
			return nil
		}
	}
	d.Fields = append(d.Fields, f)
	return nil
}

// RemoveField drops the field for tag, if present.
func (d *OutputDirectory) RemoveField(tag uint16) {
	out := d.Fields[:0]
	for _, f := range d.Fields {
		if f.Tag != tag {
			out = append(out, f)
		}
	}
	d.Fields = out
}

// FieldByTag returns the field for tag, or nil.
func (d *OutputDirectory) FieldByTag(tag uint16) *OutputField {
	for _, f := range d.Fields {
		if f.Tag == tag {
			return f
		}
	}
	return nil
}

// AddChild attaches a nested output directory (EXIF/GPS/Interop/SubIFDs)
// addressed by an offset the writer will synthesise during layout.
func (d *OutputDirectory) AddChild(child *OutputDirectory) {
	if d.children == nil {
		d.children = make(map[DirType]*OutputDirectory)
	}
	if _, exists := d.children[child.Type]; !exists {
		d.childOrd = append(d.childOrd, child.Type)
	}
	d.children[child.Type] = child
}

// Child returns the nested output directory of the given type, or nil.
func (d *OutputDirectory) Child(t DirType) *OutputDirectory {
	return d.children[t]
}

// Children returns nested output directories in creation order.
func (d *OutputDirectory) Children() []*OutputDirectory {
	out := make([]*OutputDirectory, 0, len(d.childOrd))
	for _, t := range d.childOrd {
		out = append(out, d.children[t])
	}
	return out
}

// OutputSet is the root writer-side container: an ordered list of
// top-level image directories (IFD0, IFD1, ...), each of which may carry
// EXIF/GPS/Interop/SubIFDs children. See spec.md §3.
type OutputSet struct {
	Order       bytesio.Order
	Directories []*OutputDirectory // IFD0, IFD1, IFD2, ... in chain order
}

// NewOutputSet creates an empty output set with the given byte order.
func NewOutputSet(order bytesio.Order) *OutputSet {
	return &OutputSet{Order: order}
}

// RootDirectory returns the IFD0 output directory, creating one (with a
// default Orientation=1 field, per spec.md §4.3) if none exists yet.
func (s *OutputSet) RootDirectory() *OutputDirectory {
	for _, d := range s.Directories {
		if d.Type == DirRoot {
			return d
		}
	}
	root, _ := NewOutputDirectory(DirRoot)
	if f, err := NewOutputField(TagOrientation, TypeShort, 1, []uint16{1}, s.Order); err == nil {
		_ = root.SetField(f)
	}
	s.Directories = append([]*OutputDirectory{root}, s.Directories...)
	return root
}

// AddImageDirectory appends a top-level image directory (e.g. IFD1) to
// the chain.
func (s *OutputSet) AddImageDirectory(d *OutputDirectory) {
	s.Directories = append(s.Directories, d)
}
