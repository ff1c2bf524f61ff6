package tiff

import "github.com/pkg/errors"

// Sentinel read errors (spec.md §7 ImageReadError variants). They are
// wrapped with github.com/pkg/errors so context can be attached with
// errors.Wrap/Wrapf while remaining matchable via errors.Is.
var (
	ErrInvalidByteOrder = errors.New("tiff: invalid byte order marker")
	ErrTruncatedInput   = errors.New("tiff: truncated input")
	ErrNoDirectories    = errors.New("tiff: no directories found")
)

// MissingRequiredFieldError reports that a directory lacked a field the
// caller required (spec.md §7 MissingRequiredField(name)).
type MissingRequiredFieldError struct {
	Name string
}

func (e *MissingRequiredFieldError) Error() string {
	return "tiff: missing required field " + e.Name
}

// FieldTypeMismatchError reports a field whose on-disk type didn't match
// what the caller expected (spec.md §7 FieldTypeMismatch).
type FieldTypeMismatchError struct {
	Name             string
	Expected, Actual FieldType
}

func (e *FieldTypeMismatchError) Error() string {
	return "tiff: field " + e.Name + " type mismatch: expected " + e.Expected.Name() + " got " + e.Actual.Name()
}

// FieldCountMismatchError reports a field whose element count didn't
// match what the caller expected (spec.md §7 FieldCountMismatch).
type FieldCountMismatchError struct {
	Name string
}

func (e *FieldCountMismatchError) Error() string {
	return "tiff: field " + e.Name + " count mismatch"
}

// Sentinel write errors (spec.md §7 ImageWriteError variants).
var (
	ErrExifTooLarge = errors.New("tiff: exif payload exceeds maximum segment size")
)

// InvalidValueError wraps a writer-side validation failure with a reason
// (spec.md §7 InvalidValue(reason)).
type InvalidValueError struct {
	Reason string
}

func (e *InvalidValueError) Error() string {
	return "tiff: invalid value: " + e.Reason
}
