// Package coordinator implements the update coordinator (spec.md §4.6):
// given a typed metadata update, it dispatches to the XMP, EXIF and IPTC
// sub-updaters in the fixed order XMP → EXIF → IPTC, so that later
// writers always see bytes already carrying earlier dialects' edits.
package coordinator

import (
	"math"
	"time"

	"github.com/silverstrand/metacore/bytesio"
	"github.com/silverstrand/metacore/gpsconv"
	"github.com/silverstrand/metacore/iptc"
	"github.com/silverstrand/metacore/tiff"
	"github.com/silverstrand/metacore/xmp"
)

// Kind identifies which field of a MetadataUpdate is populated.
type Kind int

const (
	Orientation Kind = iota
	TakenDate
	GpsCoordinates
	Rating
	Keywords
	Persons
)

// MetadataUpdate is a single typed update request. Exactly the fields
// relevant to Kind are read; the rest are ignored.
type MetadataUpdate struct {
	Kind Kind

	OrientationValue uint16 // 1..8

	// TakenDateMs is milliseconds since epoch; nil means "delete the
	// taken-date field" rather than "leave it unset".
	TakenDateMs *int64

	// Lat/Lon are nil together to mean "delete GPS coordinates".
	Lat *float64
	Lon *float64

	RatingValue int

	KeywordSet []string
	PersonSet  []string
}

// Clock supplies the current time. Coordinator does not use it: TakenDate
// conversion takes its instant from the update and its zone from the
// ZoneProvider.
type Clock interface {
	Now() time.Time
}

// ZoneProvider supplies the local time zone used to render TakenDate as
// ISO-8601 local time. Production code should use the system zone; unit
// tests fix it to GMT+02:00 (spec.md §4.6, §9 - this replaces the
// source's global underUnitTesting flag with an injected collaborator).
type ZoneProvider interface {
	Location() *time.Location
}

// FixedZone is a ZoneProvider returning a constant *time.Location.
type FixedZone struct {
	Loc *time.Location
}

func (z FixedZone) Location() *time.Location { return z.Loc }

// UnitTestZone is the fixed GMT+02:00 zone spec.md's fixture scenarios
// are computed against.
func UnitTestZone() ZoneProvider {
	return FixedZone{Loc: time.FixedZone("GMT+02:00", 2*60*60)}
}

// SystemZone is a ZoneProvider returning the process's local zone.
type SystemZone struct{}

func (SystemZone) Location() *time.Location { return time.Local }

// Coordinator dispatches updates across dialects in the fixed order the
// spec requires.
type Coordinator struct {
	Zone ZoneProvider
}

// New builds a Coordinator bound to the given zone provider.
func New(zone ZoneProvider) *Coordinator {
	return &Coordinator{Zone: zone}
}

// ApplyXMP projects u onto doc, per the XMP projection table (spec.md
// §4.6). XMP is authoritative for rating/persons/keywords and is always
// touched regardless of which update variant is given.
func (c *Coordinator) ApplyXMP(doc *xmp.Doc, u MetadataUpdate) {
	switch u.Kind {
	case Orientation:
		doc.SetOrientation(int(u.OrientationValue))
	case TakenDate:
		if u.TakenDateMs == nil {
			doc.DeleteDateTimeOriginal()
			return
		}
		doc.SetDateTimeOriginal(c.isoLocal(*u.TakenDateMs))
	case GpsCoordinates:
		if u.Lat == nil || u.Lon == nil {
			doc.DeleteGPSCoordinates()
			return
		}
		doc.SetGPSCoordinates(gpsconv.LatitudeDDM(*u.Lat), gpsconv.LongitudeDDM(*u.Lon))
	case Rating:
		doc.SetRating(u.RatingValue)
	case Keywords:
		doc.SetKeywords(u.KeywordSet)
	case Persons:
		doc.SetPersonsInImage(u.PersonSet)
	}
}

func (c *Coordinator) isoLocal(ms int64) string {
	loc := time.UTC
	if c.Zone != nil {
		loc = c.Zone.Location()
	}
	return time.UnixMilli(ms).In(loc).Format("2006-01-02T15:04:05.000")
}

// ApplyEXIF projects u onto the IFD0 output directory. The EXIF
// projection handles only Orientation, TakenDate and GpsCoordinates
// (spec.md §4.6); Rating/Keywords/Persons are no-ops here, since EXIF
// carries no equivalent fields this engine writes.
func (c *Coordinator) ApplyEXIF(root *tiff.OutputDirectory, order bytesio.Order) func(u MetadataUpdate) error {
	return func(u MetadataUpdate) error {
		switch u.Kind {
		case Orientation:
			f, err := tiff.NewOutputField(tiff.TagOrientation, tiff.TypeShort, 1, []uint16{u.OrientationValue}, order)
			if err != nil {
				return err
			}
			return root.SetField(f)
		case TakenDate:
			exif := root.Child(tiff.DirExifIFD)
			if exif == nil {
				exif, _ = tiff.NewOutputDirectory(tiff.DirExifIFD)
				root.AddChild(exif)
			}
			if u.TakenDateMs == nil {
				exif.RemoveField(tiff.TagDateTimeOrig)
				return nil
			}
			loc := time.UTC
			if c.Zone != nil {
				loc = c.Zone.Location()
			}
			s := time.UnixMilli(*u.TakenDateMs).In(loc).Format("2006:01:02 15:04:05")
			f, err := tiff.NewOutputField(tiff.TagDateTimeOrig, tiff.TypeASCII, 0, s, order)
			if err != nil {
				return err
			}
			return exif.SetField(f)
		case GpsCoordinates:
			gps := root.Child(tiff.DirGPSIFD)
			if u.Lat == nil || u.Lon == nil {
				if gps != nil {
					gps.RemoveField(tiff.TagGPSLatitudeRef)
					gps.RemoveField(tiff.TagGPSLatitude)
					gps.RemoveField(tiff.TagGPSLongitudeRef)
					gps.RemoveField(tiff.TagGPSLongitude)
				}
				return nil
			}
			if gps == nil {
				gps, _ = tiff.NewOutputDirectory(tiff.DirGPSIFD)
				root.AddChild(gps)
			}
			return setGPSFields(gps, *u.Lat, *u.Lon, order)
		}
		return nil
	}
}

func setGPSFields(gps *tiff.OutputDirectory, lat, lon float64, order bytesio.Order) error {
	latRef, latRationals := toRationalDDM(lat, 'N', 'S')
	lonRef, lonRationals := toRationalDDM(lon, 'E', 'W')

	fields := []struct {
		tag   uint16
		ftype tiff.FieldType
		count uint32
		value any
	}{
		{tiff.TagGPSLatitudeRef, tiff.TypeASCII, 0, latRef},
		{tiff.TagGPSLatitude, tiff.TypeRational, 3, latRationals},
		{tiff.TagGPSLongitudeRef, tiff.TypeASCII, 0, lonRef},
		{tiff.TagGPSLongitude, tiff.TypeRational, 3, lonRationals},
	}
	for _, fd := range fields {
		f, err := tiff.NewOutputField(fd.tag, fd.ftype, fd.count, fd.value, order)
		if err != nil {
			return err
		}
		if err := gps.SetField(f); err != nil {
			return err
		}
	}
	return nil
}

// toRationalDDM converts a signed decimal-degree value into the EXIF
// GPS triplet (degrees, minutes, seconds as rationals) plus a hemisphere
// reference string, mirroring gpsconv's DDM rendering but in the
// rational form GPSLatitude/GPSLongitude require instead of a string.
func toRationalDDM(value float64, positiveLetter, negativeLetter byte) (string, []tiff.Rational) {
	letter := positiveLetter
	if value < 0 {
		letter = negativeLetter
	}
	abs := math.Abs(value)
	degrees := math.Floor(abs)
	minutesFull := (abs - degrees) * 60
	minutes := math.Floor(minutesFull)
	seconds := (minutesFull - minutes) * 60

	return string(letter), []tiff.Rational{
		{Numerator: uint32(degrees), Denominator: 1},
		{Numerator: uint32(minutes), Denominator: 1},
		{Numerator: uint32(math.Round(seconds * 1000)), Denominator: 1000},
	}
}

// ApplyIPTC projects u onto block. IPTC mirrors keywords only (spec.md
// §4.6); every other update variant is a no-op.
func (c *Coordinator) ApplyIPTC(block *iptc.Block, u MetadataUpdate) {
	if u.Kind != Keywords {
		return
	}
	block.SetKeywords(u.KeywordSet)
}

// Apply runs all three sub-updaters in the fixed order XMP → EXIF →
// IPTC against the given in-memory dialect trees. Callers own
// serializing doc/root/block back into container bytes afterwards.
func (c *Coordinator) Apply(doc *xmp.Doc, root *tiff.OutputDirectory, order bytesio.Order, block *iptc.Block, u MetadataUpdate) error {
	c.ApplyXMP(doc, u)
	if err := c.ApplyEXIF(root, order)(u); err != nil {
		return err
	}
	c.ApplyIPTC(block, u)
	return nil
}
