package iso8211

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package matches one of these
// with errors.Is.
var (
	// ErrOpenFailed: file missing, unreadable, or the DDR leader is not ISO 8211.
	ErrOpenFailed = errors.New("iso8211: open failed")

	// ErrFormat: directory or field area violates the ISO 8211 grammar.
	ErrFormat = errors.New("iso8211: format error")

	// ErrRange: field, subfield or occurrence index beyond what the data holds.
	ErrRange = errors.New("iso8211: index out of range")

	// ErrWriteFailed: the underlying file write did not complete.
	ErrWriteFailed = errors.New("iso8211: write failed")

	ErrFieldNotFound    = errors.New("iso8211: field not found")
	ErrSubfieldNotFound = errors.New("iso8211: subfield not found")
	ErrDuplicateTag     = errors.New("iso8211: duplicate field tag")

	// ErrLayoutChanged is returned when a record written after a reused
	// ('R') leader no longer matches the directory of that leader.
	ErrLayoutChanged = errors.New("iso8211: record layout changed after reused leader")

	ErrReadOnly = errors.New("iso8211: module is read-only")
	ErrClosed   = errors.New("iso8211: module is closed")
)

// FormatError describes a decode failure at a known place in the file.
type FormatError struct {
	Tag    string // field tag, if known
	Offset int64  // file offset of the record leader, -1 if unknown
	Reason string
}

func (e *FormatError) Error() string {
	switch {
	case e.Tag != "" && e.Offset >= 0:
		return fmt.Sprintf("iso8211: field %q in record at offset %d: %s", e.Tag, e.Offset, e.Reason)
	case e.Tag != "":
		return fmt.Sprintf("iso8211: field %q: %s", e.Tag, e.Reason)
	case e.Offset >= 0:
		return fmt.Sprintf("iso8211: record at offset %d: %s", e.Offset, e.Reason)
	default:
		return "iso8211: " + e.Reason
	}
}

// Is reports FormatError as ErrFormat.
func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

// RangeError indicates an occurrence or subfield request past the end of a field.
type RangeError struct {
	Tag      string
	Subfield string
	Index    int
	Limit    int // number of available items, -1 if not countable
}

func (e *RangeError) Error() string {
	what := e.Tag
	if e.Subfield != "" {
		what = e.Tag + "." + e.Subfield
	}
	if e.Limit >= 0 {
		return fmt.Sprintf("iso8211: %s index %d out of range (have %d)", what, e.Index, e.Limit)
	}
	return fmt.Sprintf("iso8211: %s index %d out of range", what, e.Index)
}

// Is reports RangeError as ErrRange.
func (e *RangeError) Is(target error) bool {
	return target == ErrRange
}

func formatErrorf(tag string, offset int64, format string, args ...any) error {
	return &FormatError{Tag: tag, Offset: offset, Reason: fmt.Sprintf(format, args...)}
}
