package etl

import (
	"database/sql"
	"fmt"
	"time"
)

// Value is a tagged in-memory cell. A null Value never exposes a payload.
type Value struct {
	Type Type
	Null bool
	v    any
}

func BoolValue(b bool) Value { return Value{Type: Type{Kind: KindBool}, v: b} }
func Int64Value(i int64) Value { return Value{Type: Type{Kind: KindInt64}, v: i} }
func Float64Value(f float64) Value { return Value{Type: Type{Kind: KindFloat64}, v: f} }
func StringValue(s string) Value { return Value{Type: Type{Kind: KindString}, v: s} }
func BytesValue(b []byte) Value { return Value{Type: Type{Kind: KindBytes}, v: b} }
func DateValue(t time.Time) Value { return Value{Type: Type{Kind: KindDate}, v: t} }
func TimestampValue(t time.Time) Value { return Value{Type: Type{Kind: KindTimestamp}, v: t} }

// NullValue returns a null cell of type t.
func NullValue(t Type) Value { return Value{Type: t, Null: true} }

func arrayValue(elem Kind, v any) Value {
	return Value{Type: Type{Kind: KindArray, Elem: elem}, v: v}
}

func BoolArrayValue(e []sql.NullBool) Value { return arrayValue(KindBool, e) }
func Int64ArrayValue(e []sql.NullInt64) Value { return arrayValue(KindInt64, e) }
func Float64ArrayValue(e []sql.NullFloat64) Value { return arrayValue(KindFloat64, e) }
func StringArrayValue(e []sql.NullString) Value { return arrayValue(KindString, e) }
func BytesArrayValue(e [][]byte) Value { return arrayValue(KindBytes, e) }
func DateArrayValue(e []sql.NullTime) Value { return arrayValue(KindDate, e) }
func TimestampArrayValue(e []sql.NullTime) Value { return arrayValue(KindTimestamp, e) }

// Strings builds a string array with no null elements.
func Strings(ss ...string) []sql.NullString {
	out := make([]sql.NullString, len(ss))
	for i, s := range ss {
		out[i] = sql.NullString{String: s, Valid: true}
	}
	return out
}

// ValueRow is a Row backed by a map of Values. Missing columns read as errors.
type ValueRow map[string]Value

func (r ValueRow) IsNull(column string) bool {
	v, ok := r[column]
	return ok && v.Null
}

func (r ValueRow) get(column string, want Type) (any, error) {
	v, ok := r[column]
	if !ok {
		return nil, fmt.Errorf("no column %q", column)
	}
	if v.Null {
		return nil, fmt.Errorf("column %q is null", column)
	}
	if v.Type != want {
		return nil, fmt.Errorf("column %q holds %s, not %s", column, v.Type, want)
	}
	return v.v, nil
}

func (r ValueRow) Bool(c string) (bool, error) {
	v, err := r.get(c, Type{Kind: KindBool})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (r ValueRow) Int64(c string) (int64, error) {
	v, err := r.get(c, Type{Kind: KindInt64})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (r ValueRow) Float64(c string) (float64, error) {
	v, err := r.get(c, Type{Kind: KindFloat64})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

func (r ValueRow) String(c string) (string, error) {
	v, err := r.get(c, Type{Kind: KindString})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r ValueRow) Bytes(c string) ([]byte, error) {
	v, err := r.get(c, Type{Kind: KindBytes})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (r ValueRow) Date(c string) (time.Time, error) {
	v, err := r.get(c, Type{Kind: KindDate})
	if err != nil {
		return time.Time{}, err
	}
	return v.(time.Time), nil
}

func (r ValueRow) Timestamp(c string) (time.Time, error) {
	v, err := r.get(c, Type{Kind: KindTimestamp})
	if err != nil {
		return time.Time{}, err
	}
	return v.(time.Time), nil
}

func (r ValueRow) BoolArray(c string) ([]sql.NullBool, error) {
	v, err := r.get(c, Type{Kind: KindArray, Elem: KindBool})
	if err != nil {
		return nil, err
	}
	return v.([]sql.NullBool), nil
}

func (r ValueRow) Int64Array(c string) ([]sql.NullInt64, error) {
	v, err := r.get(c, Type{Kind: KindArray, Elem: KindInt64})
	if err != nil {
		return nil, err
	}
	return v.([]sql.NullInt64), nil
}

func (r ValueRow) Float64Array(c string) ([]sql.NullFloat64, error) {
	v, err := r.get(c, Type{Kind: KindArray, Elem: KindFloat64})
	if err != nil {
		return nil, err
	}
	return v.([]sql.NullFloat64), nil
}

func (r ValueRow) StringArray(c string) ([]sql.NullString, error) {
	v, err := r.get(c, Type{Kind: KindArray, Elem: KindString})
	if err != nil {
		return nil, err
	}
	return v.([]sql.NullString), nil
}

func (r ValueRow) BytesArray(c string) ([][]byte, error) {
	v, err := r.get(c, Type{Kind: KindArray, Elem: KindBytes})
	if err != nil {
		return nil, err
	}
	return v.([][]byte), nil
}

func (r ValueRow) DateArray(c string) ([]sql.NullTime, error) {
	v, err := r.get(c, Type{Kind: KindArray, Elem: KindDate})
	if err != nil {
		return nil, err
	}
	return v.([]sql.NullTime), nil
}

func (r ValueRow) TimestampArray(c string) ([]sql.NullTime, error) {
	v, err := r.get(c, Type{Kind: KindArray, Elem: KindTimestamp})
	if err != nil {
		return nil, err
	}
	return v.([]sql.NullTime), nil
}
