// Package bmff reads and surgically rewrites the ISO Base Media File
// Format box tree shared by HEIC/AVIF and the JPEG XL container, per
// spec.md §4.5. It never interprets pixel or codestream payloads
// (mdat, jxlc, jxlp, ...): those are kept as opaque byte ranges.
package bmff

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrNotBMFF is returned when the buffer doesn't open with a
// recognisable box (smallest valid box is 8 bytes: size + type).
var ErrNotBMFF = errors.New("bmff: not a valid box stream")

// ErrTruncated is returned when a box's declared size runs past the
// end of the buffer.
var ErrTruncated = errors.New("bmff: truncated box")

// ErrIlocOffsetShift is returned by ReplacePayload when a box's size
// changes while a meta/iloc box is present anywhere in the tree: iloc
// entries reference absolute file offsets into mdat, and this engine
// does not rewrite those (spec.md §4.5).
var ErrIlocOffsetShift = errors.New("bmff: update would invalidate iloc offsets")

// containerTypes are box types whose payload is itself a sequence of
// boxes. "meta" is a full box (4 bytes of version+flags precede its
// children); the rest are plain containers.
var containerTypes = map[string]bool{
	"meta": true,
	"moov": true,
	"trak": true,
	"mdia": true,
	"minf": true,
	"stbl": true,
	"udta": true,
	"iprp": true,
	"ipco": true,
}

var fullBoxContainerTypes = map[string]bool{
	"meta": true,
}

// Box is one ISO-BMFF box: its 4-character type, its raw payload (for
// leaf boxes) or nil (for container boxes, whose content lives in
// Children), and enough positional bookkeeping to rewrite lengths after
// an edit.
type Box struct {
	Type     string
	Payload  []byte // leaf boxes only
	Children []*Box // container boxes only
	Is64     bool    // original box used the 64-bit large_size form
	FullBox  bool    // "meta"-style: 4 bytes of version+flags before content
	VersionFlags [4]byte
}

// Tree is a fully parsed box stream plus whatever unparsed tail
// remained (used when stopAfterMetaBox truncates the scan).
type Tree struct {
	Boxes      []*Box
	Remainder  []byte // unparsed trailing bytes, non-empty only if scanning stopped early
}

// ParseOption configures Parse.
type ParseOption func(*parseConfig)

type parseConfig struct {
	stopAfterMetaBox bool
}

// StopAfterMetaBox halts the top-level scan as soon as a "meta" box has
// been read, leaving everything from that point on (typically "mdat")
// in Tree.Remainder untouched. iPhone HEIC files place meta before
// mdat, so this avoids reading a large pixel payload when only metadata
// is wanted; Samsung orders them the other way, so callers that need
// metadata regardless of position should not set this option.
func StopAfterMetaBox() ParseOption {
	return func(c *parseConfig) { c.stopAfterMetaBox = true }
}

// Parse reads buf as a top-level sequence of boxes.
func Parse(buf []byte, opts ...ParseOption) (*Tree, error) {
	cfg := &parseConfig{}
	for _, o := range opts {
		o(cfg)
	}

	if len(buf) < 8 {
		return nil, ErrNotBMFF
	}

	t := &Tree{}
	pos := 0
	for pos < len(buf) {
		box, consumed, err := parseBox(buf[pos:])
		if err != nil {
			return nil, err
		}
		t.Boxes = append(t.Boxes, box)
		pos += consumed

		if cfg.stopAfterMetaBox && box.Type == "meta" {
			t.Remainder = append([]byte(nil), buf[pos:]...)
			return t, nil
		}
	}
	return t, nil
}

// parseBox reads one box (and, recursively, its children) starting at
// buf[0], and returns how many bytes it consumed.
func parseBox(buf []byte) (*Box, int, error) {
	if len(buf) < 8 {
		return nil, 0, errors.Wrap(ErrTruncated, "box header")
	}
	size32 := binary.BigEndian.Uint32(buf[0:4])
	boxType := string(buf[4:8])

	headerLen := 8
	is64 := false
	var size uint64
	switch size32 {
	case 0:
		size = uint64(len(buf)) // extends to end of stream; only valid for the final box
	case 1:
		if len(buf) < 16 {
			return nil, 0, errors.Wrap(ErrTruncated, "64-bit box header")
		}
		size = binary.BigEndian.Uint64(buf[8:16])
		headerLen = 16
		is64 = true
	default:
		size = uint64(size32)
	}
	if size < uint64(headerLen) || size > uint64(len(buf)) {
		return nil, 0, errors.Wrapf(ErrTruncated, "box %q declares size %d", boxType, size)
	}

	box := &Box{Type: boxType, Is64: is64}
	content := buf[headerLen:size]

	if containerTypes[boxType] {
		box.FullBox = fullBoxContainerTypes[boxType]
		if box.FullBox {
			if len(content) < 4 {
				return nil, 0, errors.Wrapf(ErrTruncated, "full box %q", boxType)
			}
			copy(box.VersionFlags[:], content[:4])
			content = content[4:]
		}
		pos := 0
		for pos < len(content) {
			child, consumed, err := parseBox(content[pos:])
			if err != nil {
				return nil, 0, err
			}
			box.Children = append(box.Children, child)
			pos += consumed
		}
	} else {
		box.Payload = append([]byte(nil), content...)
	}

	return box, int(size), nil
}

// Find returns the first box of the given type found by a depth-first
// search of the tree, or nil.
func (t *Tree) Find(boxType string) *Box {
	for _, b := range t.Boxes {
		if found := b.find(boxType); found != nil {
			return found
		}
	}
	return nil
}

func (b *Box) find(boxType string) *Box {
	if b.Type == boxType {
		return b
	}
	for _, c := range b.Children {
		if found := c.find(boxType); found != nil {
			return found
		}
	}
	return nil
}

// HasBox reports whether any box of the given type exists anywhere in
// the tree.
func (t *Tree) HasBox(boxType string) bool {
	return t.Find(boxType) != nil
}

// ReplacePayload replaces box's leaf payload with newPayload. box must
// be a leaf (non-container) box found in t. If t contains a meta/iloc
// box and newPayload's length differs from the current payload's
// length, the replacement is refused with ErrIlocOffsetShift: iloc
// entries address mdat by absolute file offset, and any size change
// upstream of mdat would invalidate them (spec.md §4.5).
func (t *Tree) ReplacePayload(box *Box, newPayload []byte) error {
	if len(box.Children) > 0 {
		return errors.New("bmff: cannot replace payload of a container box")
	}
	if len(newPayload) != len(box.Payload) && t.HasBox("iloc") {
		return ErrIlocOffsetShift
	}
	box.Payload = newPayload
	return nil
}

// Serialize re-emits the full box stream, recomputing every box's
// length field (and 64-bit form) from its current content.
func (t *Tree) Serialize() []byte {
	var out []byte
	for _, b := range t.Boxes {
		out = append(out, b.encode()...)
	}
	out = append(out, t.Remainder...)
	return out
}

func (b *Box) encode() []byte {
	var content []byte
	if len(b.Children) > 0 {
		if b.FullBox {
			content = append(content, b.VersionFlags[:]...)
		}
		for _, c := range b.Children {
			content = append(content, c.encode()...)
		}
	} else {
		content = b.Payload
	}

	total := 8 + len(content)
	use64 := b.Is64 || total > 0xffffffff
	if use64 {
		total += 8
	}

	var header []byte
	if use64 {
		header = make([]byte, 16)
		binary.BigEndian.PutUint32(header[0:4], 1)
		copy(header[4:8], b.Type)
		binary.BigEndian.PutUint64(header[8:16], uint64(total))
	} else {
		header = make([]byte, 8)
		binary.BigEndian.PutUint32(header[0:4], uint32(total))
		copy(header[4:8], b.Type)
	}
	return append(header, content...)
}

// ExifTIFFBytes strips the JPEG XL Exif box's 4-byte header (1-byte
// version, 3-byte flags) and returns the embedded TIFF stream.
func ExifTIFFBytes(box *Box) ([]byte, error) {
	if len(box.Payload) < 4 {
		return nil, errors.New("bmff: Exif box too short for header")
	}
	return box.Payload[4:], nil
}

// NewExifBox wraps tiffBytes in a JPEG XL "Exif" box with a zeroed
// version/flags header.
func NewExifBox(tiffBytes []byte) *Box {
	payload := make([]byte, 4+len(tiffBytes))
	copy(payload[4:], tiffBytes)
	return &Box{Type: "Exif", Payload: payload}
}

// NewXMLBox wraps xml in an "xml " box (JPEG XL / ISO-BMFF XMP carrier).
func NewXMLBox(xml []byte) *Box {
	return &Box{Type: "xml ", Payload: append([]byte(nil), xml...)}
}
