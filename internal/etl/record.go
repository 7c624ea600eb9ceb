package etl

import (
	"database/sql"
	"strings"
	"time"
)

// ── Record ─────────────────────────────────────────────────
// Common intermediate data format.
// Sources expose typed Rows, the Encoder turns each Row into a Record,
// sinks write the CSV rendering of Records.

// Column describes a single column of an exported table, as reported by
// the catalog.
type Column struct {
	Name         string `json:"name"`
	DeclaredType string `json:"type"`
}

// Schema is the ordered column list of one table. Built once per export
// job and never mutated afterwards.
type Schema struct {
	Table   string   `json:"table"`
	Columns []Column `json:"columns"`
}

// ColumnNames returns an ordered list of column names.
func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Row is the read capability the encoder needs from a source row.
// Getters fail when the column is unknown or holds a different type.
// Array getters use the database/sql null types so that individual
// elements can be null; BytesArray marks null elements with a nil slice.
type Row interface {
	IsNull(column string) bool

	Bool(column string) (bool, error)
	Int64(column string) (int64, error)
	Float64(column string) (float64, error)
	String(column string) (string, error)
	Bytes(column string) ([]byte, error)
	Date(column string) (time.Time, error)
	Timestamp(column string) (time.Time, error)

	BoolArray(column string) ([]sql.NullBool, error)
	Int64Array(column string) ([]sql.NullInt64, error)
	Float64Array(column string) ([]sql.NullFloat64, error)
	StringArray(column string) ([]sql.NullString, error)
	BytesArray(column string) ([][]byte, error)
	DateArray(column string) ([]sql.NullTime, error)
	TimestampArray(column string) ([]sql.NullTime, error)
}

// Field is one encoded cell. Null fields carry no text.
type Field struct {
	Text string
	Null bool
}

// NullField is the null marker.
var NullField = Field{Null: true}

// Text returns a non-null field.
func Text(s string) Field { return Field{Text: s} }

// Record is one encoded row, field i belonging to schema column i.
type Record []Field

// CSV renders the record as a single CSV line without a record separator.
// Non-null fields are always quoted, embedded quotes doubled; null fields
// are left empty and unquoted.
func (r Record) CSV() string {
	var b strings.Builder
	r.AppendCSV(&b)
	return b.String()
}

// AppendCSV writes the CSV rendering of r to b.
func (r Record) AppendCSV(b *strings.Builder) {
	for i, f := range r {
		if i > 0 {
			b.WriteByte(',')
		}
		if f.Null {
			continue
		}
		b.WriteByte('"')
		if strings.IndexByte(f.Text, '"') < 0 {
			b.WriteString(f.Text)
		} else {
			b.WriteString(strings.ReplaceAll(f.Text, `"`, `""`))
		}
		b.WriteByte('"')
	}
}
