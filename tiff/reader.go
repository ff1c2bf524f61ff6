package tiff

import (
	"encoding/binary"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/silverstrand/metacore/bytesio"
)

const entrySize = 12 // tag(2) + type(2) + count(4) + value/offset(4)

// ReadOption configures the TIFF reader. This generalizes the teacher's
// (jrm-1535/exif) global Control{Unknown, Warn, ParsDbg, SrlzDbg} struct
// into an injectable functional-options set with no shared mutable state
// (spec.md §5, §9).
type ReadOption func(*readConfig)

type readConfig struct {
	logger *slog.Logger
}

// WithLogger attaches a logger used to report absorbed, non-fatal parse
// errors (spec.md §7 propagation policy: entry/sub-directory errors are
// absorbed locally, not returned).
func WithLogger(l *slog.Logger) ReadOption {
	return func(c *readConfig) { c.logger = l }
}

func newReadConfig(opts []ReadOption) *readConfig {
	c := &readConfig{logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Read parses a full TIFF stream (the bytes following any "Exif\0\0"
// prefix) into a Contents tree, per the algorithm in spec.md §4.2.
func Read(buf []byte, opts ...ReadOption) (*Contents, error) {
	cfg := newReadConfig(opts)
	r := bytesio.NewRandomAccess(buf)

	header, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	c := &Contents{Header: header}
	visited := make(map[uint32]bool)

	if err := walkChain(r, header.OffsetToFirst, DirRoot, header.Order, visited, c, cfg); err != nil {
		return nil, err
	}

	if len(c.Directories) == 0 {
		return nil, ErrNoDirectories
	}
	return c, nil
}

func readHeader(r *bytesio.RandomAccess) (Header, error) {
	b0, err := r.ReadBytesAt(0, 2)
	if err != nil {
		return Header{}, errors.Wrap(ErrTruncatedInput, "reading byte-order marker")
	}
	var order bytesio.Order
	switch {
	case b0[0] == 'I' && b0[1] == 'I':
		order = binary.LittleEndian
	case b0[0] == 'M' && b0[1] == 'M':
		order = binary.BigEndian
	default:
		return Header{}, errors.Wrapf(ErrInvalidByteOrder, "got %q", b0)
	}

	version, err := r.Uint16At(2, order)
	if err != nil {
		return Header{}, errors.Wrap(ErrTruncatedInput, "reading version")
	}
	if version != 42 {
		return Header{}, errors.Wrapf(ErrInvalidByteOrder, "unsupported version %d", version)
	}

	offset, err := r.Uint32At(4, order)
	if err != nil {
		return Header{}, errors.Wrap(ErrTruncatedInput, "reading first IFD offset")
	}

	return Header{Order: order, Version: version, OffsetToFirst: offset}, nil
}

// walkChain follows the next-directory chain starting at offset,
// recursing into sub-directories for each directory visited. Chaining to
// dirType+1 is only followed for non-negative (image) directory types,
// per the Open Question resolution in spec.md §9.
func walkChain(r *bytesio.RandomAccess, offset uint32, dirType DirType, order bytesio.Order, visited map[uint32]bool, c *Contents, cfg *readConfig) error {
	for offset != 0 {
		if visited[offset] {
			return nil // cycle: stop without error (spec.md §8 cyclic offsets)
		}
		visited[offset] = true

		if int(offset) >= r.GetLength() {
			return nil // truncate forest at this point, not a hard failure
		}

		dir, err := parseDirectory(r, offset, dirType, order, visited, c, cfg)
		if err != nil {
			if dirType == DirIFD1 {
				cfg.logger.Warn("tiff: dropping thumbnail IFD after parse error", "error", err)
				return nil
			}
			return err
		}
		if dir == nil {
			return nil
		}
		c.Directories = append(c.Directories, dir)

		if !dirType.IsImageDirectory() {
			return nil // semantic sub-directories never chain
		}
		offset = dir.NextOffset
		dirType = dirType + 1
	}
	return nil
}

func parseDirectory(r *bytesio.RandomAccess, offset uint32, dirType DirType, order bytesio.Order, visited map[uint32]bool, c *Contents, cfg *readConfig) (*Directory, error) {
	count, err := r.Uint16At(int(offset), order)
	if err != nil {
		return nil, errors.Wrap(ErrTruncatedInput, "reading entry count")
	}

	dir := &Directory{Type: dirType, Offset: offset, Order: order}

	pos := int(offset) + 2
	for i := 0; i < int(count); i++ {
		entry, err := r.ReadBytesAt(pos, entrySize)
		if err != nil {
			break // truncated directory: keep what was parsed so far
		}
		pos += entrySize

		tag := order.Uint16(entry[0:2])
		if tag == 0 && dirType != DirGPSIFD {
			continue // tag 0 skipped, except GPSVersionID inside the GPS IFD
		}

		ftype := FieldType(order.Uint16(entry[2:4]))
		fcount := order.Uint32(entry[4:8])
		var inlineWord [4]byte
		copy(inlineWord[:], entry[8:12])

		if !ftype.Known() {
			cfg.logger.Debug("tiff: skipping entry with unknown field type", "tag", tag, "type", ftype)
			continue
		}

		length := fcount * ftype.ElementSize()
		var raw []byte
		if length <= 4 {
			raw = append([]byte(nil), inlineWord[:length]...)
		} else {
			valOffset := order.Uint32(inlineWord[:])
			raw, err = r.ReadBytesAt(int(valOffset), int(length))
			if err != nil {
				cfg.logger.Debug("tiff: skipping entry with out-of-range offset", "tag", tag, "offset", valOffset, "length", length)
				continue
			}
		}

		dir.Fields = append(dir.Fields, &Field{
			Tag: tag, Dir: dirType, Type: ftype, Count: fcount,
			Raw: raw, InlineWord: inlineWord, Order: order, EntryIndex: i,
		})
	}

	next, err := r.Uint32At(pos, order)
	if err == nil {
		dir.NextOffset = next
	}

	if err := readThumbnail(r, dir); err != nil {
		cfg.logger.Debug("tiff: thumbnail read failed, dropping", "error", err)
	}

	for _, tag := range offsetCarryingTags {
		if err := resolveOffsetField(r, dir, tag, order, visited, c, cfg); err != nil {
			dir.RemoveTag(tag) // spec.md §4.2 step 7: dangling offset fields are removed
		}
	}

	return dir, nil
}

func readThumbnail(r *bytesio.RandomAccess, dir *Directory) error {
	offF := dir.FieldByTag(TagJPEGInterchangeFormat)
	lenF := dir.FieldByTag(TagJPEGInterchangeFormatLength)
	if offF == nil || lenF == nil {
		return nil
	}
	offVal, err := offF.Decode()
	if err != nil {
		return err
	}
	lenVal, err := lenF.Decode()
	if err != nil {
		return err
	}
	off, ok1 := offVal.([]uint32)
	ln, ok2 := lenVal.([]uint32)
	if !ok1 || !ok2 || len(off) == 0 || len(ln) == 0 {
		return errors.New("tiff: malformed thumbnail descriptor")
	}

	start := int(off[0])
	size := int(ln[0])
	if start > r.GetLength() {
		return errors.New("tiff: thumbnail offset beyond stream")
	}
	if start+size > r.GetLength() {
		size = r.GetLength() - start // clip to end of stream, per spec.md §4.2 step 10
	}
	thumb, err := r.ReadBytesAt(start, size)
	if err != nil {
		return err
	}
	dir.Thumbnail = thumb
	return nil
}

// LocateIFD0InlineValueOffset scans only IFD0's entries (no recursion
// into sub-IFDs, no thumbnail handling) looking for tag, and returns the
// absolute byte offset of its 4-byte value-or-offset slot together with
// the stream's byte order. It fails if the field doesn't exist or its
// value doesn't fit inline (length > 4 bytes) — the orientation fast
// path (spec.md §4.5) only ever patches an inline SHORT.
func LocateIFD0InlineValueOffset(buf []byte, tag uint16) (offset uint32, order bytesio.Order, err error) {
	r := bytesio.NewRandomAccess(buf)
	header, err := readHeader(r)
	if err != nil {
		return 0, nil, err
	}
	order = header.Order

	count, err := r.Uint16At(int(header.OffsetToFirst), order)
	if err != nil {
		return 0, nil, errors.Wrap(ErrTruncatedInput, "reading IFD0 entry count")
	}

	pos := int(header.OffsetToFirst) + 2
	for i := 0; i < int(count); i++ {
		entry, err := r.ReadBytesAt(pos, entrySize)
		if err != nil {
			break
		}
		entryPos := pos
		pos += entrySize

		entryTag := order.Uint16(entry[0:2])
		if entryTag != tag {
			continue
		}
		ftype := FieldType(order.Uint16(entry[2:4]))
		fcount := order.Uint32(entry[4:8])
		if !ftype.Known() {
			return 0, nil, errors.New("tiff: orientation field has unknown type")
		}
		length := fcount * ftype.ElementSize()
		if length > 4 {
			return 0, nil, errors.New("tiff: orientation field value is not inline")
		}
		return uint32(entryPos + 8), order, nil
	}
	return 0, nil, &MissingRequiredFieldError{Name: LookupTag(tag).Name}
}

func resolveOffsetField(r *bytesio.RandomAccess, dir *Directory, tag uint16, order bytesio.Order, visited map[uint32]bool, c *Contents, cfg *readConfig) error {
	f := dir.FieldByTag(tag)
	if f == nil {
		return nil
	}
	val, err := f.Decode()
	if err != nil {
		return err
	}
	offsets, ok := val.([]uint32)
	if !ok {
		return errors.New("tiff: offset field has unexpected type")
	}

	for i, off := range offsets {
		var childType DirType
		switch tag {
		case TagExifOffset:
			childType = DirExifIFD
		case TagGPSInfo:
			childType = DirGPSIFD
		case TagInteropOffset:
			childType = DirInterop
		case TagSubIFDs:
			childType = ExifSubIFD(i + 1)
		}
		if err := walkChain(r, off, childType, order, visited, c, cfg); err != nil {
			return err
		}
	}
	return nil
}
