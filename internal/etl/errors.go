package etl

import (
	"errors"
	"fmt"
)

// ErrTableNotFound is wrapped by MetadataReadError when the catalog has no
// such table.
var ErrTableNotFound = errors.New("table not found")

// MetadataReadError reports a failed schema query. Fatal to the job.
type MetadataReadError struct {
	Table string
	Cause error
}

func (e *MetadataReadError) Error() string {
	return fmt.Sprintf("read schema of table %q: %v", e.Table, e.Cause)
}

func (e *MetadataReadError) Unwrap() error { return e.Cause }

// UnsupportedTypeError reports a column whose declared type has no codec.
// Raised while building codecs, before any record is encoded.
type UnsupportedTypeError struct {
	Table        string
	Column       string
	DeclaredType string
	Cause        error
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("table %q column %q: unsupported type %q: %v", e.Table, e.Column, e.DeclaredType, e.Cause)
}

func (e *UnsupportedTypeError) Unwrap() error { return e.Cause }

// DuplicateColumnError reports a schema that names the same column twice.
// Raised while building codecs, before any record is encoded.
type DuplicateColumnError struct {
	Table  string
	Column string
}

func (e *DuplicateColumnError) Error() string {
	return fmt.Sprintf("table %q: duplicate column %q", e.Table, e.Column)
}

// MissingCodecError reports a schema column with no codec in the table the
// encoder was given. It means codecs were built for a different schema.
type MissingCodecError struct {
	Table  string
	Column string
}

func (e *MissingCodecError) Error() string {
	return fmt.Sprintf("table %q: no codec for column %q", e.Table, e.Column)
}

// EncodingError reports a value that could not be converted. Only the
// current record is lost; the caller decides whether the job goes on.
type EncodingError struct {
	Table  string
	Column string
	Type   Type
	Cause  error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encode table %q column %q (%s): %v", e.Table, e.Column, e.Type, e.Cause)
}

func (e *EncodingError) Unwrap() error { return e.Cause }

// IOError reports a failed write of an export artifact. Fatal to the job.
type IOError struct {
	Path  string
	Op    string
	Cause error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Cause)
}

func (e *IOError) Unwrap() error { return e.Cause }
