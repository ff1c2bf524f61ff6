package tiff

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/silverstrand/metacore/bytesio"
)

const (
	headerSize  = 8
	entryHeader = 2 // entry count
	entryFooter = 4 // next-directory offset
)

// isSubIFDChildType reports whether t is one of the sub-directory types
// that get folded into a single SubIFDs array field on their parent
// (spec.md §4.2 step 6, §4.3).
func isSubIFDChildType(t DirType) bool {
	return t == DirType(2) || t == DirType(3) || t == DirType(4) || t == DirSub
}

// layoutNode is one directory placed during the writer's two-phase
// layout (spec.md §4.3).
type layoutNode struct {
	dir        *OutputDirectory
	offset     uint32
	fieldCount int
	parent     *layoutNode // nil for top-level image directories
}

// Write serialises s into a self-consistent TIFF stream, per the
// two-phase layout algorithm of spec.md §4.3: Phase 1 assigns tentative
// directory offsets in canonical order (IFD0, EXIF, GPS, Interop,
// sub-IFDs, then the remaining top-level image directories), Phase 2
// resolves offset-carrying fields and external value blobs, after which
// the stream is emitted.
func Write(s *OutputSet) ([]byte, error) {
	if s.Order == nil {
		return nil, errors.New("tiff: output set has no byte order")
	}
	order := s.Order

	nodes, err := planLayout(s)
	if err != nil {
		return nil, err
	}

	blobs, thumbOffset, totalSize, err := resolveOffsets(nodes, order)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, totalSize)

	if isLittleEndian(order) {
		buf[0], buf[1] = 'I', 'I'
	} else {
		buf[0], buf[1] = 'M', 'M'
	}
	order.PutUint16(buf[2:4], 42)
	var firstOffset uint32
	if len(nodes) > 0 {
		firstOffset = nodes[0].offset
	}
	order.PutUint32(buf[4:8], firstOffset)

	for idx, n := range nodes {
		var nextOffset uint32
		if n.parent == nil {
			if nxt := nextTopLevel(nodes, idx); nxt != nil {
				nextOffset = nxt.offset
			}
		}
		emitDirectory(buf, n, nextOffset, order)
	}

	for _, b := range blobs {
		copy(buf[b.offset:], b.data)
	}
	if thumbOffset > 0 {
		if owner := findThumbnailOwner(nodes); owner != nil {
			copy(buf[thumbOffset:], owner.dir.Thumbnail)
		}
	}

	return buf, nil
}

func isLittleEndian(order bytesio.Order) bool {
	probe := []byte{0x01, 0x00}
	return order.Uint16(probe) == 1
}

// planLayout builds the canonical directory traversal order (Phase 1,
// spec.md §4.3) and computes each directory's field count, including the
// offset-carrier and thumbnail fields the writer itself will synthesise.
func planLayout(s *OutputSet) ([]*layoutNode, error) {
	var nodes []*layoutNode

	addChildGroups := func(parent *layoutNode) {
		dir := parent.dir
		if exif := dir.Child(DirExifIFD); exif != nil {
			exifNode := &layoutNode{dir: exif, parent: parent}
			nodes = append(nodes, exifNode)
			if gps := dir.Child(DirGPSIFD); gps != nil {
				nodes = append(nodes, &layoutNode{dir: gps, parent: parent})
			}
			if interop := exif.Child(DirInterop); interop != nil {
				nodes = append(nodes, &layoutNode{dir: interop, parent: exifNode})
			}
		} else if gps := dir.Child(DirGPSIFD); gps != nil {
			nodes = append(nodes, &layoutNode{dir: gps, parent: parent})
		}
		for _, child := range dir.Children() {
			if isSubIFDChildType(child.Type) {
				nodes = append(nodes, &layoutNode{dir: child, parent: parent})
			}
		}
	}

	for i, top := range s.Directories {
		if top.Type.IsMakerNote() {
			return nil, errors.Wrapf(ErrUnsupportedDirectory, "top-level dir type %d", int(top.Type))
		}
		n := &layoutNode{dir: top}
		nodes = append(nodes, n)
		if i == 0 {
			addChildGroups(n)
		}
	}

	for _, n := range nodes {
		n.fieldCount = len(n.dir.Fields) + syntheticFieldCount(n.dir)
	}

	offset := uint32(headerSize)
	for _, n := range nodes {
		n.offset = offset
		offset += uint32(entryHeader+entryFooter) + uint32(n.fieldCount)*entrySize
	}

	return nodes, nil
}

// syntheticFieldCount returns how many extra fields the writer will add
// to dir beyond its caller-supplied Fields: one per EXIF/GPS/Interop
// child, one SubIFDs field if any sub-IFD children exist, and two
// (JPEGInterchangeFormat + Length) if dir carries a thumbnail.
func syntheticFieldCount(dir *OutputDirectory) int {
	n := 0
	if dir.Child(DirExifIFD) != nil {
		n++
	}
	if dir.Child(DirGPSIFD) != nil {
		n++
	}
	if dir.Child(DirInterop) != nil {
		n++
	}
	subCount := 0
	for _, c := range dir.Children() {
		if isSubIFDChildType(c.Type) {
			subCount++
		}
	}
	if subCount > 0 {
		n++
	}
	if dir.Thumbnail != nil {
		n += 2
	}
	return n
}

type blob struct {
	offset uint32
	data   []byte
}

// resolveOffsets is Phase 2 of spec.md §4.3: it synthesises the
// offset-carrying fields now that every directory's address is known,
// places external value blobs and the thumbnail payload after the
// directory blocks, and returns the total stream size.
func resolveOffsets(nodes []*layoutNode, order bytesio.Order) ([]blob, uint32, uint32, error) {
	offset := uint32(headerSize)
	for _, n := range nodes {
		offset += uint32(entryHeader+entryFooter) + uint32(n.fieldCount)*entrySize
	}

	var blobs []blob
	var thumbOffset uint32

	for _, n := range nodes {
		dir := n.dir

		if exif := dir.Child(DirExifIFD); exif != nil {
			f, err := NewOutputField(TagExifOffset, TypeLong, 1, []uint32{findNode(nodes, exif).offset}, order)
			if err != nil {
				return nil, 0, 0, err
			}
			dir.Fields = append(dir.Fields, f)
		}
		if gps := dir.Child(DirGPSIFD); gps != nil {
			f, err := NewOutputField(TagGPSInfo, TypeLong, 1, []uint32{findNode(nodes, gps).offset}, order)
			if err != nil {
				return nil, 0, 0, err
			}
			dir.Fields = append(dir.Fields, f)
		}
		if interop := dir.Child(DirInterop); interop != nil {
			f, err := NewOutputField(TagInteropOffset, TypeLong, 1, []uint32{findNode(nodes, interop).offset}, order)
			if err != nil {
				return nil, 0, 0, err
			}
			dir.Fields = append(dir.Fields, f)
		}

		var subOffsets []uint32
		for _, c := range dir.Children() {
			if isSubIFDChildType(c.Type) {
				subOffsets = append(subOffsets, findNode(nodes, c).offset)
			}
		}
		if len(subOffsets) > 0 {
			f, err := NewOutputField(TagSubIFDs, TypeLong, uint32(len(subOffsets)), subOffsets, order)
			if err != nil {
				return nil, 0, 0, err
			}
			dir.Fields = append(dir.Fields, f)
		}

		if dir.Thumbnail != nil {
			thumbOffset = offset
			lenF, err := NewOutputField(TagJPEGInterchangeFormatLength, TypeLong, 1, []uint32{uint32(len(dir.Thumbnail))}, order)
			if err != nil {
				return nil, 0, 0, err
			}
			offF, err := NewOutputField(TagJPEGInterchangeFormat, TypeLong, 1, []uint32{offset}, order)
			if err != nil {
				return nil, 0, 0, err
			}
			dir.Fields = append(dir.Fields, offF, lenF)
			offset += uint32(len(dir.Thumbnail))
		}

		for _, f := range dir.Fields {
			if IsOffsetCarrier(f.Tag) {
				continue // already resolved to a directory address above
			}
			if uint32(len(f.Value)) > 4 {
				blobs = append(blobs, blob{offset: offset, data: f.Value})
				f.blobOffset = offset
				offset += uint32(len(f.Value))
				if offset%2 == 1 {
					offset++ // keep blobs word-aligned
				}
			}
		}
	}

	return blobs, thumbOffset, offset, nil
}

func findNode(nodes []*layoutNode, dir *OutputDirectory) *layoutNode {
	for _, n := range nodes {
		if n.dir == dir {
			return n
		}
	}
	return nil
}

func nextTopLevel(nodes []*layoutNode, idx int) *layoutNode {
	for i := idx + 1; i < len(nodes); i++ {
		if nodes[i].parent == nil {
			return nodes[i]
		}
	}
	return nil
}

func findThumbnailOwner(nodes []*layoutNode) *layoutNode {
	for _, n := range nodes {
		if n.dir.Thumbnail != nil {
			return n
		}
	}
	return nil
}

func emitDirectory(buf []byte, n *layoutNode, nextOffset uint32, order bytesio.Order) {
	fields := append([]*OutputField(nil), n.dir.Fields...)
	sort.SliceStable(fields, func(i, j int) bool {
		if fields[i].Tag != fields[j].Tag {
			return fields[i].Tag < fields[j].Tag
		}
		return fields[i].SortHint < fields[j].SortHint // stable tie-breaker only, spec.md §9
	})

	pos := int(n.offset)
	order.PutUint16(buf[pos:pos+2], uint16(len(fields)))
	pos += 2

	for _, f := range fields {
		order.PutUint16(buf[pos:pos+2], f.Tag)
		order.PutUint16(buf[pos+2:pos+4], uint16(f.Type))
		order.PutUint32(buf[pos+4:pos+8], f.Count)

		if len(f.Value) <= 4 {
			copy(buf[pos+8:pos+12], f.Value)
		} else {
			order.PutUint32(buf[pos+8:pos+12], f.blobOffset)
		}
		pos += entrySize
	}

	order.PutUint32(buf[pos:pos+4], nextOffset)
}
