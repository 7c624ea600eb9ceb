package dbclient

import (
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"tablexport/internal/etl"
)

// ── Row scanning ───────────────────────────────────────────
// Every column gets a scan target that holds the driver value as is;
// conversion to the tagged Go type happens in the getters. The targets
// of one scanned row are owned by that row alone, so rows can be handed
// to encoder workers as soon as they are scanned.

// cell is a typed scan target.
type cell interface {
	sql.Scanner
	null() bool
}

// rowLayout is shared by all rows of one scan and never mutated.
type rowLayout struct {
	index  map[string]int
	types  []etl.Type
	native bool
}

func newRowLayout(schema *etl.Schema, nativeArrays bool) (*rowLayout, error) {
	l := &rowLayout{
		index:  make(map[string]int, len(schema.Columns)),
		types:  make([]etl.Type, len(schema.Columns)),
		native: nativeArrays,
	}
	for i, col := range schema.Columns {
		t, err := etl.ParseType(col.DeclaredType)
		if err != nil {
			return nil, &etl.UnsupportedTypeError{Table: schema.Table, Column: col.Name, DeclaredType: col.DeclaredType, Cause: err}
		}
		l.index[col.Name] = i
		l.types[i] = t
	}
	return l, nil
}

func (l *rowLayout) newRow() *sqlRow {
	cells := make([]cell, len(l.types))
	for i, t := range l.types {
		cells[i] = newCell(t, l.native)
	}
	return &sqlRow{layout: l, cells: cells}
}

func newCell(t etl.Type, native bool) cell {
	if t.Kind != etl.KindArray {
		return &scalarCell{}
	}
	switch t.Elem {
	case etl.KindBool:
		return &arrayCell[boolElem]{native: native}
	case etl.KindInt64:
		return &arrayCell[int64Elem]{native: native}
	case etl.KindFloat64:
		return &arrayCell[float64Elem]{native: native}
	case etl.KindString:
		return &arrayCell[stringElem]{native: native}
	case etl.KindBytes:
		return &arrayCell[bytesElem]{native: native}
	default:
		return &arrayCell[nullTime]{native: native}
	}
}

// sqlRow implements etl.Row over one scanned result row.
type sqlRow struct {
	layout *rowLayout
	cells  []cell
}

func (r *sqlRow) dest() []any {
	if len(r.cells) == 0 {
		var discard any
		return []any{&discard}
	}
	d := make([]any, len(r.cells))
	for i, c := range r.cells {
		d[i] = c
	}
	return d
}

func (r *sqlRow) cell(column string) (cell, error) {
	i, ok := r.layout.index[column]
	if !ok {
		return nil, fmt.Errorf("no column %q", column)
	}
	c := r.cells[i]
	if c.null() {
		return nil, fmt.Errorf("column %q is null", column)
	}
	return c, nil
}

func (r *sqlRow) IsNull(column string) bool {
	i, ok := r.layout.index[column]
	return ok && r.cells[i].null()
}

func cellAs[T cell](r *sqlRow, column string) (T, error) {
	var zero T
	c, err := r.cell(column)
	if err != nil {
		return zero, err
	}
	t, ok := c.(T)
	if !ok {
		return zero, fmt.Errorf("column %q has type %s", column, r.layout.types[r.layout.index[column]])
	}
	return t, nil
}

// convert runs dest.Scan over the raw value of a scalar column whose tag
// is want. A value the driver handed back in an unconvertible form fails
// here, inside the codec, and costs only the current record.
func (r *sqlRow) convert(column string, want etl.Kind, dest sql.Scanner) error {
	c, err := cellAs[*scalarCell](r, column)
	if err != nil {
		return err
	}
	if got := r.layout.types[r.layout.index[column]]; got.Kind != want {
		return fmt.Errorf("column %q has type %s", column, got)
	}
	if err := dest.Scan(c.src); err != nil {
		return fmt.Errorf("column %q: %w", column, err)
	}
	return nil
}

func (r *sqlRow) Bool(column string) (bool, error) {
	var v sql.NullBool
	if err := r.convert(column, etl.KindBool, &v); err != nil {
		return false, err
	}
	return v.Bool, nil
}

func (r *sqlRow) Int64(column string) (int64, error) {
	var v sql.NullInt64
	if err := r.convert(column, etl.KindInt64, &v); err != nil {
		return 0, err
	}
	return v.Int64, nil
}

func (r *sqlRow) Float64(column string) (float64, error) {
	var v sql.NullFloat64
	if err := r.convert(column, etl.KindFloat64, &v); err != nil {
		return 0, err
	}
	return v.Float64, nil
}

func (r *sqlRow) String(column string) (string, error) {
	var v sql.NullString
	if err := r.convert(column, etl.KindString, &v); err != nil {
		return "", err
	}
	return v.String, nil
}

func (r *sqlRow) Bytes(column string) ([]byte, error) {
	var v nullBytes
	if err := r.convert(column, etl.KindBytes, &v); err != nil {
		return nil, err
	}
	return v.b, nil
}

func (r *sqlRow) Date(column string) (time.Time, error) {
	var v nullTime
	if err := r.convert(column, etl.KindDate, &v); err != nil {
		return time.Time{}, err
	}
	return v.Time, nil
}

func (r *sqlRow) Timestamp(column string) (time.Time, error) {
	var v nullTime
	if err := r.convert(column, etl.KindTimestamp, &v); err != nil {
		return time.Time{}, err
	}
	return v.Time, nil
}

func arrayAs[E any, T any](r *sqlRow, column string, conv func(E) T) ([]T, error) {
	c, err := cellAs[*arrayCell[E]](r, column)
	if err != nil {
		return nil, err
	}
	if err := c.decode(); err != nil {
		return nil, err
	}
	out := make([]T, len(c.elems))
	for i, e := range c.elems {
		out[i] = conv(e)
	}
	return out, nil
}

func (r *sqlRow) BoolArray(column string) ([]sql.NullBool, error) {
	return arrayAs(r, column, func(e boolElem) sql.NullBool { return e.NullBool })
}

func (r *sqlRow) Int64Array(column string) ([]sql.NullInt64, error) {
	return arrayAs(r, column, func(e int64Elem) sql.NullInt64 { return e.NullInt64 })
}

func (r *sqlRow) Float64Array(column string) ([]sql.NullFloat64, error) {
	return arrayAs(r, column, func(e float64Elem) sql.NullFloat64 { return e.NullFloat64 })
}

func (r *sqlRow) StringArray(column string) ([]sql.NullString, error) {
	return arrayAs(r, column, func(e stringElem) sql.NullString { return e.NullString })
}

func (r *sqlRow) BytesArray(column string) ([][]byte, error) {
	return arrayAs(r, column, func(e bytesElem) []byte { return e.b })
}

func (r *sqlRow) DateArray(column string) ([]sql.NullTime, error) {
	return arrayAs(r, column, func(e nullTime) sql.NullTime { return e.NullTime })
}

func (r *sqlRow) TimestampArray(column string) ([]sql.NullTime, error) {
	return r.DateArray(column)
}

// ── Scalar cells ───────────────────────────────────────────

// scalarCell keeps the driver value as scanned. Byte slices are copied;
// drivers reuse them between rows.
type scalarCell struct {
	src any
}

func (c *scalarCell) Scan(src any) error {
	if b, ok := src.([]byte); ok {
		src = append([]byte{}, b...)
	}
	c.src = src
	return nil
}

func (c *scalarCell) null() bool { return c.src == nil }

// nullBytes accepts binary or text values.
type nullBytes struct {
	b     []byte
	valid bool
}

func (c *nullBytes) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		c.b, c.valid = nil, false
	case []byte:
		c.b, c.valid = append([]byte{}, v...), true
	case string:
		c.b, c.valid = []byte(v), true
	default:
		return fmt.Errorf("cannot scan %T into bytes", src)
	}
	return nil
}

func (c *nullBytes) null() bool { return !c.valid }

// timeLayouts are tried in order for drivers that hand back text.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a date or timestamp", s)
}

// nullTime accepts time.Time values as well as text and unix seconds,
// which is what SQLite hands back for undeclared formats.
type nullTime struct{ sql.NullTime }

func (c *nullTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		c.NullTime = sql.NullTime{}
	case time.Time:
		c.NullTime = sql.NullTime{Time: v, Valid: true}
	case int64:
		c.NullTime = sql.NullTime{Time: time.Unix(v, 0).UTC(), Valid: true}
	case []byte:
		return c.scanText(string(v))
	case string:
		return c.scanText(v)
	default:
		return fmt.Errorf("cannot scan %T into time", src)
	}
	return nil
}

func (c *nullTime) scanText(s string) error {
	t, err := parseTime(s)
	if err != nil {
		return err
	}
	c.NullTime = sql.NullTime{Time: t, Valid: true}
	return nil
}

func (c *nullTime) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		c.NullTime = sql.NullTime{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return c.scanText(s)
}

func (c *nullTime) null() bool { return !c.Valid }

// ── Array cells ────────────────────────────────────────────
// Postgres hands arrays over in its own text format, decoded with
// pq.GenericArray. Other drivers have no array type; array columns there
// hold JSON array text. Decoding is deferred to the getter so a malformed
// array fails the record, not the scan.

type arrayCell[E any] struct {
	native bool
	raw    []byte
	valid  bool

	decoded bool
	elems   []E
}

func (c *arrayCell[E]) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		c.raw, c.valid = nil, false
	case []byte:
		c.raw, c.valid = append([]byte{}, v...), true
	case string:
		c.raw, c.valid = []byte(v), true
	default:
		return fmt.Errorf("cannot scan %T into array", src)
	}
	c.decoded, c.elems = false, nil
	return nil
}

func (c *arrayCell[E]) null() bool { return !c.valid }

func (c *arrayCell[E]) decode() error {
	if c.decoded {
		return nil
	}
	var elems []E
	if c.native {
		if err := (pq.GenericArray{A: &elems}).Scan(c.raw); err != nil {
			return fmt.Errorf("decode array: %w", err)
		}
	} else if err := json.Unmarshal(c.raw, &elems); err != nil {
		return fmt.Errorf("decode JSON array: %w", err)
	}
	c.elems, c.decoded = elems, true
	return nil
}

// Element types scan from the Postgres array format and unmarshal from
// JSON; both decode null elements.

type boolElem struct{ sql.NullBool }

func (e *boolElem) UnmarshalJSON(b []byte) error {
	return unmarshalNullable(b, &e.Bool, &e.Valid)
}

type int64Elem struct{ sql.NullInt64 }

func (e *int64Elem) UnmarshalJSON(b []byte) error {
	return unmarshalNullable(b, &e.Int64, &e.Valid)
}

type float64Elem struct{ sql.NullFloat64 }

func (e *float64Elem) UnmarshalJSON(b []byte) error {
	return unmarshalNullable(b, &e.Float64, &e.Valid)
}

type stringElem struct{ sql.NullString }

func (e *stringElem) UnmarshalJSON(b []byte) error {
	return unmarshalNullable(b, &e.String, &e.Valid)
}

func unmarshalNullable(b []byte, v any, valid *bool) error {
	if string(b) == "null" {
		*valid = false
		return nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return err
	}
	*valid = true
	return nil
}

// bytesElem decodes Postgres bytea hex text (\x...) or a base64 JSON string.
type bytesElem struct {
	b []byte
}

func (e *bytesElem) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case nil:
		e.b = nil
		return nil
	case []byte:
		s = string(v)
	case string:
		s = v
	default:
		return fmt.Errorf("cannot scan %T into bytea", src)
	}
	if !strings.HasPrefix(s, `\x`) {
		e.b = []byte(s)
		return nil
	}
	b, err := hex.DecodeString(s[2:])
	if err != nil {
		return fmt.Errorf("decode bytea: %w", err)
	}
	e.b = b
	return nil
}

func (e *bytesElem) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		e.b = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	dec, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return err
	}
	if dec == nil {
		dec = []byte{}
	}
	e.b = dec
	return nil
}
