package tiff

import (
	"math"

	"github.com/pkg/errors"

	"github.com/silverstrand/metacore/bytesio"
)

// FieldType enumerates the TIFF field type codes (6.0 spec plus the
// Supplement 1 IFD type), each carrying its on-disk element size and
// typed decode/encode behavior. This is the component C2 field-type
// catalog: a tagged variant modeled as a small integer enum with methods,
// following the teacher's (jrm-1535/exif) per-type get/put helpers,
// generalized so callers never need a type switch of their own.
type FieldType uint16

const (
	TypeByte      FieldType = 1
	TypeASCII     FieldType = 2
	TypeShort     FieldType = 3
	TypeLong      FieldType = 4
	TypeRational  FieldType = 5
	TypeSByte     FieldType = 6
	TypeUndefined FieldType = 7
	TypeSShort    FieldType = 8
	TypeSLong     FieldType = 9
	TypeSRational FieldType = 10
	TypeFloat     FieldType = 11
	TypeDouble    FieldType = 12
	TypeIFD       FieldType = 13
)

// ErrUnknownFieldType is returned for field type codes outside the known
// catalog.
var ErrUnknownFieldType = errors.New("tiff: unknown field type")

var elementSizes = map[FieldType]uint32{
	TypeByte:      1,
	TypeASCII:     1,
	TypeShort:     2,
	TypeLong:      4,
	TypeRational:  8,
	TypeSByte:     1,
	TypeUndefined: 1,
	TypeSShort:    2,
	TypeSLong:     4,
	TypeSRational: 8,
	TypeFloat:     4,
	TypeDouble:    8,
	TypeIFD:       4,
}

var typeNames = map[FieldType]string{
	TypeByte:      "BYTE",
	TypeASCII:     "ASCII",
	TypeShort:     "SHORT",
	TypeLong:      "LONG",
	TypeRational:  "RATIONAL",
	TypeSByte:     "SBYTE",
	TypeUndefined: "UNDEFINED",
	TypeSShort:    "SSHORT",
	TypeSLong:     "SLONG",
	TypeSRational: "SRATIONAL",
	TypeFloat:     "FLOAT",
	TypeDouble:    "DOUBLE",
	TypeIFD:       "IFD",
}

// Rational is an unsigned numerator/denominator pair, as used by
// RATIONAL fields.
type Rational struct {
	Numerator, Denominator uint32
}

// SRational is a signed numerator/denominator pair, as used by SRATIONAL
// fields.
type SRational struct {
	Numerator, Denominator int32
}

// Name returns the textual TIFF type name, or "" for unknown codes.
func (t FieldType) Name() string { return typeNames[t] }

// Known reports whether t is a recognised field type code.
func (t FieldType) Known() bool {
	_, ok := elementSizes[t]
	return ok
}

// ElementSize returns the on-disk size in bytes of a single value of type
// t, or 0 if t is not a known type.
func (t FieldType) ElementSize() uint32 { return elementSizes[t] }

// Decode interprets raw (exactly count*ElementSize() bytes) as count
// values of type t in the given byte order, returning a typed Go slice
// (or string, for ASCII).
func (t FieldType) Decode(raw []byte, count uint32, order bytesio.Order) (any, error) {
	if !t.Known() {
		return nil, errors.Wrapf(ErrUnknownFieldType, "code %d", uint16(t))
	}
	size := t.ElementSize()
	if uint32(len(raw)) != count*size {
		return nil, errors.Errorf("tiff: decode length mismatch: have %d want %d", len(raw), count*size)
	}

	switch t {
	case TypeByte, TypeUndefined:
		out := make([]byte, count)
		copy(out, raw)
		return out, nil
	case TypeASCII:
		return decodeASCII(raw), nil
	case TypeSByte:
		out := make([]int8, count)
		for i := range out {
			out[i] = int8(raw[i])
		}
		return out, nil
	case TypeShort:
		out := make([]uint16, count)
		for i := range out {
			out[i] = order.Uint16(raw[i*2:])
		}
		return out, nil
	case TypeSShort:
		out := make([]int16, count)
		for i := range out {
			out[i] = int16(order.Uint16(raw[i*2:]))
		}
		return out, nil
	case TypeLong, TypeIFD:
		out := make([]uint32, count)
		for i := range out {
			out[i] = order.Uint32(raw[i*4:])
		}
		return out, nil
	case TypeSLong:
		out := make([]int32, count)
		for i := range out {
			out[i] = int32(order.Uint32(raw[i*4:]))
		}
		return out, nil
	case TypeFloat:
		out := make([]float32, count)
		for i := range out {
			out[i] = math.Float32frombits(order.Uint32(raw[i*4:]))
		}
		return out, nil
	case TypeDouble:
		out := make([]float64, count)
		for i := range out {
			out[i] = math.Float64frombits(order.Uint64(raw[i*8:]))
		}
		return out, nil
	case TypeRational:
		out := make([]Rational, count)
		for i := range out {
			off := i * 8
			out[i] = Rational{
				Numerator:   order.Uint32(raw[off:]),
				Denominator: order.Uint32(raw[off+4:]),
			}
		}
		return out, nil
	case TypeSRational:
		out := make([]SRational, count)
		for i := range out {
			off := i * 8
			out[i] = SRational{
				Numerator:   int32(order.Uint32(raw[off:])),
				Denominator: int32(order.Uint32(raw[off+4:])),
			}
		}
		return out, nil
	}
	return nil, errors.Wrapf(ErrUnknownFieldType, "code %d", uint16(t))
}

// Encode is the inverse of Decode: it renders a typed Go value back into
// its on-disk byte representation in the given byte order.
func (t FieldType) Encode(value any, order bytesio.Order) ([]byte, error) {
	if !t.Known() {
		return nil, errors.Wrapf(ErrUnknownFieldType, "code %d", uint16(t))
	}
	switch t {
	case TypeByte, TypeUndefined:
		v, ok := value.([]byte)
		if !ok {
			return nil, errors.Errorf("tiff: %s expects []byte", t.Name())
		}
		out := make([]byte, len(v))
		copy(out, v)
		return out, nil
	case TypeASCII:
		s, ok := value.(string)
		if !ok {
			return nil, errors.Errorf("tiff: ASCII expects string")
		}
		return encodeASCII(s), nil
	case TypeSByte:
		v, ok := value.([]int8)
		if !ok {
			return nil, errors.Errorf("tiff: SBYTE expects []int8")
		}
		out := make([]byte, len(v))
		for i, b := range v {
			out[i] = byte(b)
		}
		return out, nil
	case TypeShort:
		v, ok := value.([]uint16)
		if !ok {
			return nil, errors.Errorf("tiff: SHORT expects []uint16")
		}
		out := make([]byte, len(v)*2)
		for i, x := range v {
			order.PutUint16(out[i*2:], x)
		}
		return out, nil
	case TypeSShort:
		v, ok := value.([]int16)
		if !ok {
			return nil, errors.Errorf("tiff: SSHORT expects []int16")
		}
		out := make([]byte, len(v)*2)
		for i, x := range v {
			order.PutUint16(out[i*2:], uint16(x))
		}
		return out, nil
	case TypeLong, TypeIFD:
		v, ok := value.([]uint32)
		if !ok {
			return nil, errors.Errorf("tiff: %s expects []uint32", t.Name())
		}
		out := make([]byte, len(v)*4)
		for i, x := range v {
			order.PutUint32(out[i*4:], x)
		}
		return out, nil
	case TypeSLong:
		v, ok := value.([]int32)
		if !ok {
			return nil, errors.Errorf("tiff: SLONG expects []int32")
		}
		out := make([]byte, len(v)*4)
		for i, x := range v {
			order.PutUint32(out[i*4:], uint32(x))
		}
		return out, nil
	case TypeFloat:
		v, ok := value.([]float32)
		if !ok {
			return nil, errors.Errorf("tiff: FLOAT expects []float32")
		}
		out := make([]byte, len(v)*4)
		for i, x := range v {
			order.PutUint32(out[i*4:], math.Float32bits(x))
		}
		return out, nil
	case TypeDouble:
		v, ok := value.([]float64)
		if !ok {
			return nil, errors.Errorf("tiff: DOUBLE expects []float64")
		}
		out := make([]byte, len(v)*8)
		for i, x := range v {
			order.PutUint64(out[i*8:], math.Float64bits(x))
		}
		return out, nil
	case TypeRational:
		v, ok := value.([]Rational)
		if !ok {
			return nil, errors.Errorf("tiff: RATIONAL expects []Rational")
		}
		out := make([]byte, len(v)*8)
		for i, r := range v {
			order.PutUint32(out[i*8:], r.Numerator)
			order.PutUint32(out[i*8+4:], r.Denominator)
		}
		return out, nil
	case TypeSRational:
		v, ok := value.([]SRational)
		if !ok {
			return nil, errors.Errorf("tiff: SRATIONAL expects []SRational")
		}
		out := make([]byte, len(v)*8)
		for i, r := range v {
			order.PutUint32(out[i*8:], uint32(r.Numerator))
			order.PutUint32(out[i*8+4:], uint32(r.Denominator))
		}
		return out, nil
	}
	return nil, errors.Wrapf(ErrUnknownFieldType, "code %d", uint16(t))
}

func decodeASCII(raw []byte) string {
	n := len(raw)
	for n > 0 && raw[n-1] == 0 {
		n--
	}
	return string(raw[:n])
}

func encodeASCII(s string) []byte {
	out := make([]byte, len(s)+1)
	copy(out, s)
	return out
}
