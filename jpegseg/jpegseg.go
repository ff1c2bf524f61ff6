// Package jpegseg parses and rewrites the marker-segment envelope of a
// JPEG stream without touching the compressed image data. It follows the
// segment-scanning rules of tajtiattila/metadata's jpeg.Scanner (marker
// padding, chunk-length semantics, stop-at-SOS), adapted here to work
// over an in-memory buffer rather than an io.Reader, to match the rest
// of this engine's whole-buffer TIFF/BMFF readers.
package jpegseg

import (
	"github.com/pkg/errors"

	"github.com/silverstrand/metacore/bytesio"
)

const (
	markerSOI  = 0xd8
	markerEOI  = 0xd9
	markerSOS  = 0xda
	markerAPP0 = 0xe0
	markerAPP1 = 0xe1
	markerAPP2 = 0xe2
	markerAPP13 = 0xed
)

var (
	// ErrNotJPEG is returned when the buffer doesn't start with the
	// FFD8 start-of-image marker.
	ErrNotJPEG = errors.New("jpegseg: missing start of image marker")

	// ErrTruncated is returned when a marker segment's declared length
	// runs past the end of the buffer.
	ErrTruncated = errors.New("jpegseg: truncated segment")

	// ErrExifTooLarge is returned when an EXIF payload would no longer
	// fit in a single APP1 segment (max 65533 content bytes, since the
	// 2-byte length field counts itself).
	ErrExifTooLarge = errors.New("jpegseg: exif payload too large for one APP1 segment")
)

const maxSegmentPayload = 65533

// exifPrefix, xmpPrefix and photoshopPrefix identify which APPn segment
// carries which metadata dialect, per spec.md §4.4/§4.6.
var (
	exifPrefix      = []byte("Exif\x00\x00")
	xmpPrefix       = []byte("http://ns.adobe.com/xap/1.0/\x00")
	photoshopPrefix = []byte("Photoshop 3.0\x00")
	iptcResourceID  = []byte{0x04, 0x04} // 8BIM resource id for IPTC-NAA record
	eightBIM        = []byte("8BIM")
)

// Segment is one marker segment: its marker byte (0xE0-0xEF for APPn,
// 0xFE for COM, etc.) and its payload (everything after the 2-byte
// length field).
type Segment struct {
	Marker  byte
	Payload []byte

	// PayloadOffset is the absolute offset of Payload's first byte
	// within the buffer Parse was given. It lets callers (notably the
	// orientation fast path) locate bytes for an in-place patch without
	// re-scanning the stream.
	PayloadOffset int
}

// Stream is a parsed JPEG marker-segment envelope: every segment up to
// (not including) SOS, plus the SOS segment onward preserved byte for
// byte (spec.md §4.4: "preserve entropy-coded data and EOI unchanged").
type Stream struct {
	Segments []*Segment
	Scan     []byte // SOS marker, its header, entropy data, and EOI
}

// Parse scans buf into a Stream. It does not interpret APPn payloads;
// callers use the Exif/XMP/IPTC helpers below for that.
func Parse(buf []byte) (*Stream, error) {
	if len(buf) < 2 || buf[0] != 0xff || buf[1] != markerSOI {
		return nil, ErrNotJPEG
	}
	r := bytesio.NewSequential(buf[2:])
	s := &Stream{}

	for {
		marker, ok, err := nextMarker(r)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.New("jpegseg: stream ended before SOS")
		}
		if marker == markerSOS {
			// Scan covers the marker itself through the rest of buf,
			// entropy data and EOI preserved verbatim (spec.md §4.4).
			// r.Position() is relative to buf[2:] and already sits right
			// after the consumed "FF DA" marker bytes, which happens to
			// equal the marker's absolute start offset in buf.
			start := r.Position()
			s.Scan = append([]byte(nil), buf[start:]...)
			return s, nil
		}

		afterMarker := r.Position()
		payload, err := readSegmentPayload(r, marker)
		if err != nil {
			return nil, err
		}
		payloadOffset := 2 + afterMarker + 2 // skip SOI, marker bytes already consumed, then the length field
		if payload == nil {
			payloadOffset = 0
		}
		s.Segments = append(s.Segments, &Segment{Marker: marker, Payload: payload, PayloadOffset: payloadOffset})
	}
}

// nextMarker reads fill bytes (0xFF 0xFF, per JPEG Annex B) until it
// finds a genuine FFxx marker and returns xx, or ok=false at EOF.
func nextMarker(r *bytesio.Sequential) (byte, bool, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, false, nil
		}
		if b != 0xff {
			return 0, false, errors.New("jpegseg: expected marker, found stray byte")
		}
		m, err := r.ReadByte()
		if err != nil {
			return 0, false, nil
		}
		if m == 0xff {
			// fill byte; put the second 0xff back by re-reading loop
			for m == 0xff {
				m, err = r.ReadByte()
				if err != nil {
					return 0, false, nil
				}
			}
		}
		if m == 0x00 {
			continue // stuffed data byte, not a marker: keep scanning
		}
		return m, true, nil
	}
}

// readSegmentPayload reads the 2-byte big-endian length field (which
// counts itself) and returns the remaining payload bytes.
func readSegmentPayload(r *bytesio.Sequential, marker byte) ([]byte, error) {
	if marker >= 0xd0 && marker <= 0xd9 {
		return nil, nil // no-payload markers (RST0-7, SOI, EOI)
	}
	lenBytes, err := r.ReadN(2)
	if err != nil {
		return nil, errors.Wrap(ErrTruncated, "reading segment length")
	}
	length := int(lenBytes[0])<<8 + int(lenBytes[1])
	if length < 2 {
		return nil, errors.Wrap(ErrTruncated, "invalid segment length")
	}
	payload, err := r.ReadN(length - 2)
	if err != nil {
		return nil, errors.Wrapf(ErrTruncated, "reading %#02x segment payload", marker)
	}
	return payload, nil
}

// Serialize re-emits the stream: SOI, every segment with a freshly
// computed length prefix, then the preserved Scan bytes.
func (s *Stream) Serialize() []byte {
	total := 2 + len(s.Scan)
	for _, seg := range s.Segments {
		total += 2 + 2 + len(seg.Payload)
	}
	buf := make([]byte, 0, total)
	buf = append(buf, 0xff, markerSOI)
	for _, seg := range s.Segments {
		buf = append(buf, 0xff, seg.Marker)
		l := len(seg.Payload) + 2
		buf = append(buf, byte(l>>8), byte(l))
		buf = append(buf, seg.Payload...)
	}
	buf = append(buf, s.Scan...)
	return buf
}

// FindExif returns the raw TIFF bytes (after the "Exif\0\0" prefix) of
// the first APP1 segment carrying EXIF, or ok=false if none exists.
func (s *Stream) FindExif() (tiffBytes []byte, ok bool) {
	for _, seg := range s.Segments {
		if seg.Marker == markerAPP1 && hasPrefix(seg.Payload, exifPrefix) {
			return seg.Payload[len(exifPrefix):], true
		}
	}
	return nil, false
}

// SetExif replaces the existing EXIF APP1 segment's TIFF payload, or
// inserts a new APP1 EXIF segment immediately after any leading APP0
// (JFIF) segment, or at the very front otherwise.
func (s *Stream) SetExif(tiffBytes []byte) error {
	if len(tiffBytes) > maxSegmentPayload-len(exifPrefix) {
		return ErrExifTooLarge
	}
	payload := append(append([]byte(nil), exifPrefix...), tiffBytes...)

	for _, seg := range s.Segments {
		if seg.Marker == markerAPP1 && hasPrefix(seg.Payload, exifPrefix) {
			seg.Payload = payload
			return nil
		}
	}
	s.insertAfterLeadingAPP0(&Segment{Marker: markerAPP1, Payload: payload})
	return nil
}

// RemoveExif drops the EXIF APP1 segment, if present.
func (s *Stream) RemoveExif() {
	s.removeWhere(func(seg *Segment) bool {
		return seg.Marker == markerAPP1 && hasPrefix(seg.Payload, exifPrefix)
	})
}

// FindXMP returns the raw XML bytes of the XMP APP1 segment, if present.
func (s *Stream) FindXMP() (xml []byte, ok bool) {
	for _, seg := range s.Segments {
		if seg.Marker == markerAPP1 && hasPrefix(seg.Payload, xmpPrefix) {
			return seg.Payload[len(xmpPrefix):], true
		}
	}
	return nil, false
}

// SetXMP replaces or inserts the XMP APP1 segment. XMP conventionally
// follows the EXIF APP1 segment if one exists (spec.md §4.4).
func (s *Stream) SetXMP(xml []byte) error {
	payload := append(append([]byte(nil), xmpPrefix...), xml...)
	if len(payload) > maxSegmentPayload {
		return errors.New("jpegseg: xmp payload too large for one APP1 segment")
	}

	for _, seg := range s.Segments {
		if seg.Marker == markerAPP1 && hasPrefix(seg.Payload, xmpPrefix) {
			seg.Payload = payload
			return nil
		}
	}

	newSeg := &Segment{Marker: markerAPP1, Payload: payload}
	for i, seg := range s.Segments {
		if seg.Marker == markerAPP1 && hasPrefix(seg.Payload, exifPrefix) {
			s.insertAt(i+1, newSeg)
			return nil
		}
	}
	s.insertAfterLeadingAPP0(newSeg)
	return nil
}

// RemoveXMP drops the XMP APP1 segment, if present.
func (s *Stream) RemoveXMP() {
	s.removeWhere(func(seg *Segment) bool {
		return seg.Marker == markerAPP1 && hasPrefix(seg.Payload, xmpPrefix)
	})
}

// FindIPTC returns the raw IPTC-NAA (2:xx record) byte stream embedded
// in the Photoshop APP13 Image Resource Block, if present.
func (s *Stream) FindIPTC() (iptcBlock []byte, ok bool) {
	for _, seg := range s.Segments {
		if seg.Marker != markerAPP13 || !hasPrefix(seg.Payload, photoshopPrefix) {
			continue
		}
		if block, ok := findIPTCResource(seg.Payload[len(photoshopPrefix):]); ok {
			return block, true
		}
	}
	return nil, false
}

// SetIPTC replaces or inserts the Photoshop APP13 segment's IPTC-NAA
// image resource block (8BIM resource 0x0404), preserving any other
// 8BIM resources already present.
func (s *Stream) SetIPTC(iptcBlock []byte) error {
	for _, seg := range s.Segments {
		if seg.Marker == markerAPP13 && hasPrefix(seg.Payload, photoshopPrefix) {
			irb := seg.Payload[len(photoshopPrefix):]
			newIRB := replaceIPTCResource(irb, iptcBlock)
			seg.Payload = append(append([]byte(nil), photoshopPrefix...), newIRB...)
			return nil
		}
	}

	irb := encodeIPTCResource(iptcBlock)
	payload := append(append([]byte(nil), photoshopPrefix...), irb...)
	if len(payload) > maxSegmentPayload {
		return errors.New("jpegseg: iptc payload too large for one APP13 segment")
	}
	s.insertAfterLeadingAPP0(&Segment{Marker: markerAPP13, Payload: payload})
	return nil
}

// RemoveIPTC drops the Photoshop APP13 segment entirely, if present.
func (s *Stream) RemoveIPTC() {
	s.removeWhere(func(seg *Segment) bool {
		return seg.Marker == markerAPP13 && hasPrefix(seg.Payload, photoshopPrefix)
	})
}

func (s *Stream) insertAfterLeadingAPP0(seg *Segment) {
	if len(s.Segments) > 0 && s.Segments[0].Marker == markerAPP0 {
		s.insertAt(1, seg)
		return
	}
	s.insertAt(0, seg)
}

func (s *Stream) insertAt(i int, seg *Segment) {
	s.Segments = append(s.Segments, nil)
	copy(s.Segments[i+1:], s.Segments[i:])
	s.Segments[i] = seg
}

func (s *Stream) removeWhere(match func(*Segment) bool) {
	out := s.Segments[:0]
	for _, seg := range s.Segments {
		if !match(seg) {
			out = append(out, seg)
		}
	}
	s.Segments = out
}

func hasPrefix(b, prefix []byte) bool {
	return len(b) >= len(prefix) && string(b[:len(prefix)]) == string(prefix)
}

// findIPTCResource walks a Photoshop Image Resource Block looking for
// the 8BIM 0x0404 (IPTC-NAA) resource and returns its data.
func findIPTCResource(irb []byte) ([]byte, bool) {
	pos := 0
	for pos+4 <= len(irb) {
		if string(irb[pos:pos+4]) != "8BIM" {
			break
		}
		if pos+8 > len(irb) {
			break
		}
		resID := irb[pos+4 : pos+6]
		nameLen := int(irb[pos+6])
		nameEnd := pos + 7 + nameLen
		if nameLen%2 == 0 {
			nameEnd++ // name padded to even length including the length byte
		}
		if nameEnd+4 > len(irb) {
			break
		}
		size := int(irb[nameEnd])<<24 | int(irb[nameEnd+1])<<16 | int(irb[nameEnd+2])<<8 | int(irb[nameEnd+3])
		dataStart := nameEnd + 4
		dataEnd := dataStart + size
		if dataEnd > len(irb) {
			break
		}
		if string(resID) == string(iptcResourceID) {
			return irb[dataStart:dataEnd], true
		}
		pos = dataEnd
		if pos%2 == 1 {
			pos++
		}
	}
	return nil, false
}

// replaceIPTCResource rewrites the 0x0404 resource inside irb, or
// appends one if absent, leaving other resources untouched.
func replaceIPTCResource(irb, iptcBlock []byte) []byte {
	var out []byte
	pos := 0
	replaced := false
	for pos+4 <= len(irb) && string(irb[pos:pos+4]) == "8BIM" {
		if pos+8 > len(irb) {
			break
		}
		resID := irb[pos+4 : pos+6]
		nameLen := int(irb[pos+6])
		nameEnd := pos + 7 + nameLen
		if nameLen%2 == 0 {
			nameEnd++
		}
		if nameEnd+4 > len(irb) {
			break
		}
		size := int(irb[nameEnd])<<24 | int(irb[nameEnd+1])<<16 | int(irb[nameEnd+2])<<8 | int(irb[nameEnd+3])
		dataStart := nameEnd + 4
		dataEnd := dataStart + size
		if dataEnd > len(irb) {
			break
		}
		next := dataEnd
		if next%2 == 1 {
			next++
		}
		if string(resID) == string(iptcResourceID) {
			out = append(out, encodeIPTCResource(iptcBlock)...)
			replaced = true
		} else {
			out = append(out, irb[pos:min(next, len(irb))]...)
		}
		pos = next
	}
	if !replaced {
		out = append(out, encodeIPTCResource(iptcBlock)...)
	}
	return out
}

func encodeIPTCResource(iptcBlock []byte) []byte {
	out := append([]byte(nil), eightBIM...)
	out = append(out, iptcResourceID...)
	out = append(out, 0x00, 0x00) // zero-length Pascal name, padded to even
	size := len(iptcBlock)
	out = append(out, byte(size>>24), byte(size>>16), byte(size>>8), byte(size))
	out = append(out, iptcBlock...)
	if size%2 == 1 {
		out = append(out, 0x00)
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
