// Package orientation implements the lossless-orientation fast path
// (spec.md §4.5): patching a JPEG's EXIF Orientation tag in place,
// without re-encoding the TIFF directory tree, whenever the value
// already lives inline in IFD0.
package orientation

import (
	"github.com/silverstrand/metacore/jpegseg"
	"github.com/silverstrand/metacore/tiff"
)

// PatchInPlace attempts to rewrite the Orientation value of a JPEG image
// directly inside buf, without touching anything else (no directory
// relayout, no segment resizing). It returns ok=false, nil whenever the
// fast path doesn't apply — no EXIF segment, no Orientation field, or
// (degenerately) a non-inline value — so the caller can fall back to the
// full TIFF read/update/write path.
func PatchInPlace(buf []byte, value uint16) (ok bool, err error) {
	stream, err := jpegseg.Parse(buf)
	if err != nil {
		return false, err
	}

	var exifSeg *jpegseg.Segment
	for _, seg := range stream.Segments {
		if seg.Marker == 0xe1 && len(seg.Payload) >= 6 && string(seg.Payload[:6]) == "Exif\x00\x00" {
			exifSeg = seg
			break
		}
	}
	if exifSeg == nil {
		return false, nil
	}

	tiffStart := exifSeg.PayloadOffset + 6 // past "Exif\x00\x00"
	tiffBytes := buf[tiffStart:]

	offset, order, err := tiff.LocateIFD0InlineValueOffset(tiffBytes, tiff.TagOrientation)
	if err != nil {
		return false, nil //nolint:nilerr // any lookup failure just means the fast path doesn't apply
	}

	abs := tiffStart + int(offset)
	if abs+2 > len(buf) {
		return false, nil
	}

	word := [2]byte{}
	order.PutUint16(word[:], value)
	buf[abs] = word[0]
	buf[abs+1] = word[1]
	return true, nil
}
