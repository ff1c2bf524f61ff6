// Package metacore ties the dialect-specific readers and writers
// (tiff, jpegseg, bmff, orientation, gpsconv, iptc, xmp) together behind
// one read/update surface over a raw image byte buffer, per spec.md §2's
// data-flow description and §6's container detection rules.
package metacore

import (
	"bytes"
	"encoding/binary"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/pkg/errors"

	"github.com/silverstrand/metacore/bmff"
	"github.com/silverstrand/metacore/bytesio"
	"github.com/silverstrand/metacore/coordinator"
	"github.com/silverstrand/metacore/iptc"
	"github.com/silverstrand/metacore/jpegseg"
	"github.com/silverstrand/metacore/orientation"
	"github.com/silverstrand/metacore/tiff"
	"github.com/silverstrand/metacore/xmp"
)

// Container identifies which envelope format a byte buffer was
// recognised as, per spec.md §6's magic-number table.
type Container int

const (
	ContainerUnknown Container = iota
	ContainerJPEG
	ContainerTIFF
	ContainerBMFF
	ContainerJPEGXLCodestream
	ContainerRAF
)

// ErrUnrecognizedContainer is returned by Parse when no magic number
// matches (DetectContainer itself reports that case as ContainerUnknown).
var ErrUnrecognizedContainer = errors.New("metacore: unrecognized container format")

// DetectContainer classifies buf by its leading magic number (spec.md
// §6). RAF additionally requires scanning for an embedded JPEG, so
// ContainerRAF callers should locate it via RAFEmbeddedJPEGOffset.
func DetectContainer(buf []byte) Container {
	switch {
	case len(buf) >= 3 && buf[0] == 0xff && buf[1] == 0xd8 && buf[2] == 0xff:
		return ContainerJPEG
	case len(buf) >= 4 && bytes.Equal(buf[:4], []byte{0x49, 0x49, 0x2a, 0x00}):
		return ContainerTIFF
	case len(buf) >= 4 && bytes.Equal(buf[:4], []byte{0x4d, 0x4d, 0x00, 0x2a}):
		return ContainerTIFF
	case len(buf) >= 2 && buf[0] == 0xff && buf[1] == 0x0a:
		return ContainerJPEGXLCodestream
	case len(buf) >= 15 && string(buf[:15]) == "FUJIFILMCCD-RAW":
		return ContainerRAF
	case len(buf) >= 12 && bytes.Equal(buf[4:8], []byte("ftyp")):
		return ContainerBMFF
	default:
		return ContainerUnknown
	}
}

// RAFEmbeddedJPEGOffset scans a RAF buffer for the byte-aligned FF D8
// start of its embedded JPEG, per spec.md §6.
func RAFEmbeddedJPEGOffset(buf []byte) (int, bool) {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == 0xff && buf[i+1] == 0xd8 {
			return i, true
		}
	}
	return 0, false
}

// ImageMetadata is the unified, dialect-agnostic record a Parse call
// produces: the decoded EXIF/TIFF tree, the XMP document and the IPTC
// IIM block, whichever of the three the source actually carried.
type ImageMetadata struct {
	Container Container

	TIFF *tiff.Contents
	XMP  *xmp.Doc
	IPTC *iptc.Block
}

// Option configures Parse/Update.
type Option func(*config)

type config struct {
	logger *slog.Logger
}

// WithLogger overrides the default tint-backed logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

func newConfig(opts []Option) *config {
	c := &config{logger: defaultLogger()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// defaultLogger renders colorized, leveled log/slog output via
// lmittmann/tint, matching the level/handler-options shape used
// elsewhere in this engine's ambient logging stack.
func defaultLogger() *slog.Logger {
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelInfo}))
}

// Parse reads raw image bytes into a unified ImageMetadata record,
// dispatching on the container's magic number (spec.md §2, §6).
func Parse(buf []byte, opts ...Option) (*ImageMetadata, error) {
	cfg := newConfig(opts)

	container := DetectContainer(buf)
	switch container {
	case ContainerJPEG:
		return parseJPEG(buf, container, cfg)
	case ContainerTIFF:
		contents, err := tiff.Read(buf, tiff.WithLogger(cfg.logger))
		if err != nil {
			return nil, err
		}
		return &ImageMetadata{Container: container, TIFF: contents}, nil
	case ContainerBMFF:
		return parseBMFF(buf, container, cfg)
	case ContainerRAF:
		offset, ok := RAFEmbeddedJPEGOffset(buf)
		if !ok {
			return &ImageMetadata{Container: container}, nil
		}
		md, err := parseJPEG(buf[offset:], container, cfg)
		return md, err
	default:
		return nil, ErrUnrecognizedContainer
	}
}

func parseJPEG(buf []byte, container Container, cfg *config) (*ImageMetadata, error) {
	stream, err := jpegseg.Parse(buf)
	if err != nil {
		return nil, err
	}
	md := &ImageMetadata{Container: container}

	if tiffBytes, ok := stream.FindExif(); ok {
		contents, err := tiff.Read(tiffBytes, tiff.WithLogger(cfg.logger))
		if err != nil {
			cfg.logger.Warn("metacore: failed to parse embedded EXIF", "error", err)
		} else {
			md.TIFF = contents
		}
	}
	if xmlBytes, ok := stream.FindXMP(); ok {
		doc, err := xmp.ParseFromString(string(xmlBytes))
		if err != nil {
			cfg.logger.Warn("metacore: failed to parse embedded XMP", "error", err)
		} else {
			md.XMP = doc
		}
	}
	if iptcBytes, ok := stream.FindIPTC(); ok {
		block, err := iptc.Parse(iptcBytes)
		if err != nil {
			cfg.logger.Warn("metacore: failed to parse embedded IPTC", "error", err)
		} else {
			md.IPTC = block
		}
	}
	return md, nil
}

func parseBMFF(buf []byte, container Container, cfg *config) (*ImageMetadata, error) {
	tree, err := bmff.Parse(buf)
	if err != nil {
		return nil, err
	}
	md := &ImageMetadata{Container: container}

	if exifBox := tree.Find("Exif"); exifBox != nil {
		tiffBytes, err := bmff.ExifTIFFBytes(exifBox)
		if err != nil {
			cfg.logger.Warn("metacore: malformed Exif box", "error", err)
		} else if contents, err := tiff.Read(tiffBytes, tiff.WithLogger(cfg.logger)); err != nil {
			cfg.logger.Warn("metacore: failed to parse Exif box TIFF stream", "error", err)
		} else {
			md.TIFF = contents
		}
	}
	if xmlBox := tree.Find("xml "); xmlBox != nil {
		doc, err := xmp.ParseFromString(string(xmlBox.Payload))
		if err != nil {
			cfg.logger.Warn("metacore: failed to parse xml box", "error", err)
		} else {
			md.XMP = doc
		}
	}
	return md, nil
}

// Update applies u to buf's metadata via the fixed-order coordinator
// (XMP → EXIF → IPTC), then splices the rewritten dialect payloads back
// into the container envelope (spec.md §2, §4.6), returning new bytes.
// When u is an Orientation update and the orientation fast path applies,
// buf itself is patched in place and returned instead. Only the JPEG
// envelope is supported here;
// BMFF splicing is available directly via the bmff package for callers
// working with HEIC/AVIF/JXL containers.
func Update(buf []byte, u coordinator.MetadataUpdate, zone coordinator.ZoneProvider, opts ...Option) ([]byte, error) {
	cfg := newConfig(opts)

	if u.Kind == coordinator.Orientation {
		if ok, err := tryOrientationFastPath(buf, u); err != nil {
			return nil, err
		} else if ok {
			return buf, nil
		}
	}

	container := DetectContainer(buf)
	if container != ContainerJPEG {
		return nil, errors.Errorf("metacore: Update only supports JPEG containers directly, got container %d", container)
	}

	stream, err := jpegseg.Parse(buf)
	if err != nil {
		return nil, err
	}

	doc := xmp.Empty()
	if xmlBytes, ok := stream.FindXMP(); ok {
		if parsed, err := xmp.ParseFromString(string(xmlBytes)); err == nil {
			doc = parsed
		}
	}

	var order bytesio.Order = binary.LittleEndian
	root, err := tiff.NewOutputDirectory(tiff.DirRoot)
	if err != nil {
		return nil, err
	}
	hadExif := false
	if tiffBytes, ok := stream.FindExif(); ok {
		hadExif = true
		if contents, err := tiff.Read(tiffBytes, tiff.WithLogger(cfg.logger)); err == nil {
			order = contents.Header.Order
			buildOutputDirectory(contents.RootDirectory(), root, order)
			for _, childType := range []tiff.DirType{tiff.DirExifIFD, tiff.DirGPSIFD} {
				if childDir := contents.Directory(childType); childDir != nil {
					childOut, _ := tiff.NewOutputDirectory(childType)
					buildOutputDirectory(childDir, childOut, order)
					root.AddChild(childOut)
				}
			}
		}
	}
	ensureDefaultOrientation(root, order)
	touchesExif := u.Kind == coordinator.Orientation || u.Kind == coordinator.TakenDate || u.Kind == coordinator.GpsCoordinates

	block := &iptc.Block{}
	if iptcBytes, ok := stream.FindIPTC(); ok {
		if parsed, err := iptc.Parse(iptcBytes); err == nil {
			block = parsed
		}
	}

	c := coordinator.New(zone)
	if err := c.Apply(doc, root, order, block, u); err != nil {
		return nil, err
	}

	xmlOut := []byte(doc.Serialize(xmp.SerializeOptions{WritePacketWrapper: false}))
	if err := stream.SetXMP(xmlOut); err != nil {
		return nil, err
	}

	if hadExif || touchesExif {
		outSet := tiff.NewOutputSet(order)
		outSet.Directories = append(outSet.Directories, root)
		tiffOut, err := tiff.Write(outSet)
		if err != nil {
			return nil, err
		}
		if err := stream.SetExif(tiffOut); err != nil {
			return nil, err
		}
	}

	if len(block.Records) > 0 {
		if err := stream.SetIPTC(block.Serialize()); err != nil {
			return nil, err
		}
	}

	return stream.Serialize(), nil
}

func tryOrientationFastPath(buf []byte, u coordinator.MetadataUpdate) (bool, error) {
	return orientation.PatchInPlace(buf, u.OrientationValue)
}

// buildOutputDirectory copies every non-offset-carrying field from a
// parsed read-side Directory into a fresh write-side OutputDirectory,
// preserving any metadata the current update doesn't touch (spec.md
// §2's "non-goal: preserve bit-for-bit identity of unrelated fields" —
// semantic preservation, not byte identity). Copyright/Artist/
// UserComment are trimmed of NUL padding and surrounding whitespace and
// omitted entirely when that leaves nothing (spec.md §4.3 writer-only
// contract).
func buildOutputDirectory(src *tiff.Directory, dst *tiff.OutputDirectory, order bytesio.Order) {
	for _, f := range src.Fields {
		if tiff.IsOffsetCarrier(f.Tag) {
			continue
		}
		value, err := f.Decode()
		if err != nil {
			continue
		}
		if isTrimmedTextualTag(f.Tag) {
			var s string
			switch v := value.(type) {
			case string:
				s = v
			case []byte:
				s = string(v)
			}
			s = trimTextualTagValue(s)
			if s == "" {
				continue
			}
			if f.Type == tiff.TypeASCII {
				value = s
			} else {
				value = []byte(s)
			}
		}
		out, err := tiff.NewOutputField(f.Tag, f.Type, f.Count, value, order)
		if err != nil {
			continue
		}
		_ = dst.SetField(out)
	}
}

// isTrimmedTextualTag reports whether tag is one of the textual fields
// subject to NUL/whitespace trimming and omit-if-empty on write.
func isTrimmedTextualTag(tag uint16) bool {
	switch tag {
	case tiff.TagCopyright, tiff.TagArtist, tiff.TagUserComment:
		return true
	default:
		return false
	}
}

// trimTextualTagValue strips NUL padding and surrounding whitespace from
// a decoded ASCII tag value.
func trimTextualTagValue(s string) string {
	return strings.TrimSpace(strings.Trim(s, "\x00"))
}

// ensureDefaultOrientation synthesises IFD0's Orientation=1 (STANDARD)
// field when the directory being written doesn't already carry one, so
// a future update always has an in-place field to patch via the
// orientation fast path (spec.md §4.3).
func ensureDefaultOrientation(root *tiff.OutputDirectory, order bytesio.Order) {
	if root.FieldByTag(tiff.TagOrientation) != nil {
		return
	}
	f, err := tiff.NewOutputField(tiff.TagOrientation, tiff.TypeShort, 1, []uint16{1}, order)
	if err != nil {
		return
	}
	_ = root.SetField(f)
}
