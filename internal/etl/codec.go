package etl

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ── Codecs ─────────────────────────────────────────────────
// A Codec turns one cell of a Row into its canonical text. Codecs are
// chosen by type tag once per schema and are pure: the same cell always
// yields the same text, on any goroutine.

// Codec encodes the named column of row.
type Codec func(row Row, column string) (Field, error)

// TimestampLayout is the canonical instant format: UTC, nine fractional
// digits, Z suffix.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

// DateLayout is the canonical calendar date format.
const DateLayout = "2006-01-02"

// Codecs is the immutable column → codec table for one schema.
type Codecs struct {
	table  string
	order  []string
	codecs map[string]Codec
	types  map[string]Type
}

// BuildCodecs selects a codec for every column of schema. It fails with
// *UnsupportedTypeError on the first column whose declared type is outside
// the supported set, or *DuplicateColumnError when a name repeats; no
// partial table is returned.
func BuildCodecs(schema *Schema) (*Codecs, error) {
	cs := &Codecs{
		table:  schema.Table,
		order:  make([]string, 0, len(schema.Columns)),
		codecs: make(map[string]Codec, len(schema.Columns)),
		types:  make(map[string]Type, len(schema.Columns)),
	}
	for _, col := range schema.Columns {
		if _, dup := cs.codecs[col.Name]; dup {
			return nil, &DuplicateColumnError{Table: schema.Table, Column: col.Name}
		}
		typ, err := ParseType(col.DeclaredType)
		if err != nil {
			return nil, &UnsupportedTypeError{Table: schema.Table, Column: col.Name, DeclaredType: col.DeclaredType, Cause: err}
		}
		c, err := codecFor(typ)
		if err != nil {
			return nil, &UnsupportedTypeError{Table: schema.Table, Column: col.Name, DeclaredType: col.DeclaredType, Cause: err}
		}
		cs.order = append(cs.order, col.Name)
		cs.codecs[col.Name] = NullSafe(c)
		cs.types[col.Name] = typ
	}
	return cs, nil
}

// Lookup returns the codec for column.
func (cs *Codecs) Lookup(column string) (Codec, bool) {
	c, ok := cs.codecs[column]
	return c, ok
}

// Type returns the parsed type of column.
func (cs *Codecs) Type(column string) (Type, bool) {
	t, ok := cs.types[column]
	return t, ok
}

// Columns returns the column names in schema order.
func (cs *Codecs) Columns() []string {
	out := make([]string, len(cs.order))
	copy(out, cs.order)
	return out
}

// Len returns the number of codecs.
func (cs *Codecs) Len() int { return len(cs.order) }

// NullSafe wraps c so that null cells yield the null marker without c
// being called.
func NullSafe(c Codec) Codec {
	return func(row Row, column string) (Field, error) {
		if row.IsNull(column) {
			return NullField, nil
		}
		return c(row, column)
	}
}

func codecFor(t Type) (Codec, error) {
	switch t.Kind {
	case KindBool:
		return encodeBool, nil
	case KindInt64:
		return encodeInt64, nil
	case KindFloat64:
		return encodeFloat64, nil
	case KindString:
		return encodeString, nil
	case KindBytes:
		return encodeBytes, nil
	case KindDate:
		return encodeDate, nil
	case KindTimestamp:
		return encodeTimestamp, nil
	case KindArray:
		return arrayCodec(t.Elem)
	default:
		return nil, fmt.Errorf("no codec for %s", t)
	}
}

func encodeBool(row Row, column string) (Field, error) {
	v, err := row.Bool(column)
	if err != nil {
		return Field{}, err
	}
	return Text(strconv.FormatBool(v)), nil
}

func encodeInt64(row Row, column string) (Field, error) {
	v, err := row.Int64(column)
	if err != nil {
		return Field{}, err
	}
	return Text(strconv.FormatInt(v, 10)), nil
}

func encodeFloat64(row Row, column string) (Field, error) {
	v, err := row.Float64(column)
	if err != nil {
		return Field{}, err
	}
	return Text(FormatFloat(v)), nil
}

func encodeString(row Row, column string) (Field, error) {
	v, err := row.String(column)
	if err != nil {
		return Field{}, err
	}
	return Text(v), nil
}

func encodeBytes(row Row, column string) (Field, error) {
	v, err := row.Bytes(column)
	if err != nil {
		return Field{}, err
	}
	return Text(FormatBytes(v)), nil
}

func encodeDate(row Row, column string) (Field, error) {
	v, err := row.Date(column)
	if err != nil {
		return Field{}, err
	}
	return Text(FormatDate(v)), nil
}

func encodeTimestamp(row Row, column string) (Field, error) {
	v, err := row.Timestamp(column)
	if err != nil {
		return Field{}, err
	}
	return Text(FormatTimestamp(v)), nil
}

// FormatFloat renders f as the shortest decimal that parses back to f.
// Plain notation is used when 1e-6 <= |f| < 1e21, exponent notation
// otherwise, with the exponent written without leading zeros (1e-7, 1e+21).
// This is the number formatting of ECMAScript and of encoding/json, so
// scalar and array columns agree. Non-finite values are written as NaN,
// Infinity and -Infinity.
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return string(appendFloat(nil, f))
}

func appendFloat(b []byte, f float64) []byte {
	abs := math.Abs(f)
	format := byte('f')
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	b = strconv.AppendFloat(b, f, format, -1, 64)
	if format == 'e' {
		// clean up e-09 to e-9
		n := len(b)
		if n >= 4 && b[n-4] == 'e' && b[n-3] == '-' && b[n-2] == '0' {
			b[n-2] = b[n-1]
			b = b[:n-1]
		}
	}
	return b
}

// FormatBytes renders b as padded standard base64.
func FormatBytes(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

// FormatDate renders the calendar date of t, in t's own location.
func FormatDate(t time.Time) string { return t.Format(DateLayout) }

// FormatTimestamp renders t as a UTC instant.
func FormatTimestamp(t time.Time) string { return t.UTC().Format(TimestampLayout) }
