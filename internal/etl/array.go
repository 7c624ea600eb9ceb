package etl

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Array columns are written as a JSON array literal. Elements reuse the
// scalar rules: booleans and numbers become JSON literals, everything else
// a JSON string of its canonical text. A null element is written as JSON
// null.

func arrayCodec(elem Kind) (Codec, error) {
	var collect func(Row, string) ([]any, error)
	switch elem {
	case KindBool:
		collect = func(row Row, column string) ([]any, error) {
			vs, err := row.BoolArray(column)
			if err != nil {
				return nil, err
			}
			out := make([]any, len(vs))
			for i, v := range vs {
				if v.Valid {
					out[i] = v.Bool
				}
			}
			return out, nil
		}
	case KindInt64:
		collect = func(row Row, column string) ([]any, error) {
			vs, err := row.Int64Array(column)
			if err != nil {
				return nil, err
			}
			out := make([]any, len(vs))
			for i, v := range vs {
				if v.Valid {
					out[i] = v.Int64
				}
			}
			return out, nil
		}
	case KindFloat64:
		collect = func(row Row, column string) ([]any, error) {
			vs, err := row.Float64Array(column)
			if err != nil {
				return nil, err
			}
			out := make([]any, len(vs))
			for i, v := range vs {
				if v.Valid {
					out[i] = v.Float64
				}
			}
			return out, nil
		}
	case KindString:
		collect = func(row Row, column string) ([]any, error) {
			vs, err := row.StringArray(column)
			if err != nil {
				return nil, err
			}
			out := make([]any, len(vs))
			for i, v := range vs {
				if v.Valid {
					out[i] = v.String
				}
			}
			return out, nil
		}
	case KindBytes:
		collect = func(row Row, column string) ([]any, error) {
			vs, err := row.BytesArray(column)
			if err != nil {
				return nil, err
			}
			out := make([]any, len(vs))
			for i, v := range vs {
				if v != nil {
					out[i] = FormatBytes(v)
				}
			}
			return out, nil
		}
	case KindDate:
		collect = func(row Row, column string) ([]any, error) {
			vs, err := row.DateArray(column)
			if err != nil {
				return nil, err
			}
			out := make([]any, len(vs))
			for i, v := range vs {
				if v.Valid {
					out[i] = FormatDate(v.Time)
				}
			}
			return out, nil
		}
	case KindTimestamp:
		collect = func(row Row, column string) ([]any, error) {
			vs, err := row.TimestampArray(column)
			if err != nil {
				return nil, err
			}
			out := make([]any, len(vs))
			for i, v := range vs {
				if v.Valid {
					out[i] = FormatTimestamp(v.Time)
				}
			}
			return out, nil
		}
	default:
		return nil, fmt.Errorf("no array codec for element type %s", elem)
	}

	return func(row Row, column string) (Field, error) {
		elems, err := collect(row, column)
		if err != nil {
			return Field{}, err
		}
		s, err := marshalArray(elems)
		if err != nil {
			return Field{}, err
		}
		return Text(s), nil
	}, nil
}

// marshalArray writes elems as compact JSON without HTML escaping.
// Non-finite floats have no JSON form and fail here.
func marshalArray(elems []any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(elems); err != nil {
		return "", err
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}
