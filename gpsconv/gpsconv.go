// Package gpsconv converts decimal-degree GPS coordinates to and from
// the Degrees/Decimal-Minutes string form used by XMP and EXIF
// (spec.md §6). The conversion is plain float64 arithmetic;
// github.com/golang/geo's s2.LatLng is used only by ValidateLatLng for
// the range check.
package gpsconv

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/golang/geo/s2"
	"github.com/pkg/errors"
)

// ErrInvalidDDM is returned when a DDM string doesn't parse.
var ErrInvalidDDM = errors.New("gpsconv: invalid degrees/decimal-minutes string")

// ToDDM renders a decimal-degree value as "dd,mm.mmmm" + a hemisphere
// letter, e.g. 53.219391 -> "53,13.1635N" for latitude,
// 8.239661 -> "8,14.3797E" for longitude. Degrees are the integer floor
// of the absolute value; minutes are the fractional remainder × 60,
// rendered with four decimal places (spec.md §6).
func ToDDM(value float64, positiveLetter, negativeLetter byte) string {
	letter := positiveLetter
	if value < 0 {
		letter = negativeLetter
	}
	abs := math.Abs(value)
	degrees := math.Floor(abs)
	minutes := (abs - degrees) * 60

	return fmt.Sprintf("%d,%07.4f%c", int(degrees), minutes, letter)
}

// LatitudeDDM renders a latitude, hemisphere N/S.
func LatitudeDDM(lat float64) string { return ToDDM(lat, 'N', 'S') }

// LongitudeDDM renders a longitude, hemisphere E/W.
func LongitudeDDM(lon float64) string { return ToDDM(lon, 'E', 'W') }

// ParseDDM parses a "dd,mm.mmmm[N|S|E|W]" string back into a signed
// decimal-degree value.
func ParseDDM(s string) (float64, error) {
	if len(s) < 2 {
		return 0, ErrInvalidDDM
	}
	letter := s[len(s)-1]
	body := s[:len(s)-1]

	parts := strings.SplitN(body, ",", 2)
	if len(parts) != 2 {
		return 0, errors.Wrapf(ErrInvalidDDM, "%q", s)
	}
	degrees, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidDDM, "%q", s)
	}
	minutes, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidDDM, "%q", s)
	}

	value := float64(degrees) + minutes/60
	switch letter {
	case 'S', 'W':
		value = -value
	case 'N', 'E':
		// positive, no change
	default:
		return 0, errors.Wrapf(ErrInvalidDDM, "unknown hemisphere letter %q", letter)
	}
	return value, nil
}

// ValidateLatLng confirms lat/lon are within the valid WGS84 ranges,
// using s2.LatLng's own validity check rather than reimplementing the
// range test.
func ValidateLatLng(lat, lon float64) bool {
	ll := s2.LatLngFromDegrees(lat, lon)
	return ll.IsValid()
}
