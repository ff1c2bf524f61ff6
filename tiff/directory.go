package tiff

import "github.com/silverstrand/metacore/bytesio"

// Header is the 8-byte TIFF header: byte order, the fixed version number
// (42), and the offset of the first IFD. See spec.md §3, §6.
type Header struct {
	Order          bytesio.Order
	Version        uint16
	OffsetToFirst  uint32
}

// Field is a single parsed TIFF/IFD entry together with its raw value
// bytes and its original position, the component C2/C3-driven leaf of the
// reader's (C4) output tree. See spec.md §3 TiffField.
type Field struct {
	Tag        uint16
	Dir        DirType
	Type       FieldType
	Count      uint32
	Raw        []byte // always len == Count*Type.ElementSize()
	InlineWord [4]byte
	Order      bytesio.Order

	// EntryIndex is the sort hint: the field's original position within
	// its directory, preserved purely as a stable tie-breaker and for
	// debugging (spec.md §3, §9 — tag-id order wins at emit time).
	EntryIndex int
}

// Decode decodes Raw into a typed Go value using Type and Order.
func (f *Field) Decode() (any, error) {
	return f.Type.Decode(f.Raw, f.Count, f.Order)
}

// Directory is a single parsed IFD: its type id, ordered fields, its
// start offset, the offset of the next directory in the chain (0 =
// terminal), and an optional embedded JPEG thumbnail. See spec.md §3
// TiffDirectory.
type Directory struct {
	Type       DirType
	Fields     []*Field
	Offset     uint32
	NextOffset uint32
	Order      bytesio.Order

	// Thumbnail holds the raw bytes of an embedded JPEG thumbnail when
	// this directory carries JPEGInterchangeFormat(+Length) tags
	// (spec.md §4.2 step 10).
	Thumbnail []byte
}

// FieldByTag returns the field with the given tag id, or nil. Directory
// invariant: at most one field per tag id (spec.md §3).
func (d *Directory) FieldByTag(tag uint16) *Field {
	for _, f := range d.Fields {
		if f.Tag == tag {
			return f
		}
	}
	return nil
}

// RemoveTag drops the field with the given tag id, if present. Used by
// the reader to remove a dangling offset field when its sub-directory
// recursion fails (spec.md §4.2 step 7).
func (d *Directory) RemoveTag(tag uint16) {
	out := d.Fields[:0]
	for _, f := range d.Fields {
		if f.Tag != tag {
			out = append(out, f)
		}
	}
	d.Fields = out
}

// Contents is the full result of parsing a TIFF stream: the header plus
// every directory discovered by the depth-first walk (spec.md §3
// TiffContents).
type Contents struct {
	Header      Header
	Directories []*Directory
}

// DirectoriesOfType returns every parsed directory with the given type
// id, in discovery order. Multiple directories can share a type id (for
// example several chained image IFDs all look like DirRoot+n).
func (c *Contents) DirectoriesOfType(t DirType) []*Directory {
	var out []*Directory
	for _, d := range c.Directories {
		if d.Type == t {
			out = append(out, d)
		}
	}
	return out
}

// RootDirectory returns the first IFD0 directory, or nil if none was
// parsed (should not happen for any Contents produced by Read, which
// fails with ErrNoDirectories otherwise).
func (c *Contents) RootDirectory() *Directory {
	for _, d := range c.Directories {
		if d.Type == DirRoot {
			return d
		}
	}
	return nil
}

// Directory finds the first directory of type t, or nil.
func (c *Contents) Directory(t DirType) *Directory {
	for _, d := range c.Directories {
		if d.Type == t {
			return d
		}
	}
	return nil
}
