package etl

import (
	"database/sql"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func schemaOf(table string, cols ...string) *Schema {
	s := &Schema{Table: table, Columns: []Column{}}
	for i := 0; i+1 < len(cols); i += 2 {
		s.Columns = append(s.Columns, Column{Name: cols[i], DeclaredType: cols[i+1]})
	}
	return s
}

func encoderFor(t *testing.T, schema *Schema) *Encoder {
	t.Helper()
	codecs, err := BuildCodecs(schema)
	require.NoError(t, err)
	return NewEncoder(schema, codecs)
}

func TestEncodeCSV_Example(t *testing.T) {
	enc := encoderFor(t, schemaOf("t", "id", "INT64", "name", "STRING", "tags", "ARRAY<STRING>"))

	line, err := enc.EncodeCSV(ValueRow{
		"id":   Int64Value(7),
		"name": NullValue(Type{Kind: KindString}),
		"tags": StringArrayValue(Strings("a", "b")),
	})
	require.NoError(t, err)
	assert.Equal(t, `"7",,"[""a"",""b""]"`, line)
}

func TestScalarCodecs(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 45, 123456789, time.FixedZone("X", 2*3600))

	tests := []struct {
		name string
		decl string
		val  Value
		want string
	}{
		{"bool true", "BOOL", BoolValue(true), "true"},
		{"bool false", "BOOL", BoolValue(false), "false"},
		{"int", "INT64", Int64Value(-42), "-42"},
		{"int max", "INT64", Int64Value(math.MaxInt64), "9223372036854775807"},
		{"float", "FLOAT64", Float64Value(0.5), "0.5"},
		{"string", "STRING", StringValue("héllo, world"), "héllo, world"},
		{"empty string", "STRING", StringValue(""), ""},
		{"bytes", "BYTES", BytesValue([]byte("test")), "dGVzdA=="},
		{"empty bytes", "BYTES", BytesValue([]byte{}), ""},
		{"date", "DATE", DateValue(time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC)), "1999-12-31"},
		{"timestamp", "TIMESTAMP", TimestampValue(ts), "2024-03-01T10:30:45.123456789Z"},
		{"timestamp whole second", "TIMESTAMP", TimestampValue(time.Unix(0, 0)), "1970-01-01T00:00:00.000000000Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := encoderFor(t, schemaOf("t", "c", tt.decl))
			rec, err := enc.Encode(ValueRow{"c": tt.val})
			require.NoError(t, err)
			require.Len(t, rec, 1)
			assert.Equal(t, Text(tt.want), rec[0])
		})
	}
}

func TestEmptyStringIsNotNull(t *testing.T) {
	enc := encoderFor(t, schemaOf("t", "a", "STRING", "b", "STRING"))
	line, err := enc.EncodeCSV(ValueRow{
		"a": StringValue(""),
		"b": NullValue(Type{Kind: KindString}),
	})
	require.NoError(t, err)
	assert.Equal(t, `"",`, line)
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{1, "1"},
		{-2.5, "-2.5"},
		{0.1, "0.1"},
		{1.0 / 3, "0.3333333333333333"},
		{123456789, "123456789"},
		{1e20, "100000000000000000000"},
		{1e21, "1e+21"},
		{1.5e300, "1.5e+300"},
		{1e-6, "0.000001"},
		{1e-7, "1e-7"},
		{-1.25e-10, "-1.25e-10"},
		{math.NaN(), "NaN"},
		{math.Inf(1), "Infinity"},
		{math.Inf(-1), "-Infinity"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatFloat(tt.in), "FormatFloat(%v)", tt.in)
	}
}

func TestArrayCodecs(t *testing.T) {
	day := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		decl string
		val  Value
		want string
	}{
		{"bools", "ARRAY<BOOL>", BoolArrayValue([]sql.NullBool{{Bool: true, Valid: true}, {Bool: false, Valid: true}}), `[true,false]`},
		{"strings", "ARRAY<STRING>", StringArrayValue(Strings("test", "foo")), `["test","foo"]`},
		{"ints with null", "ARRAY<INT64>", Int64ArrayValue([]sql.NullInt64{{Int64: 1, Valid: true}, {}, {Int64: 3, Valid: true}}), `[1,null,3]`},
		{"floats", "ARRAY<FLOAT64>", Float64ArrayValue([]sql.NullFloat64{{Float64: 0.5, Valid: true}, {Float64: 1e21, Valid: true}}), `[0.5,1e+21]`},
		{"bytes", "ARRAY<BYTES>", BytesArrayValue([][]byte{[]byte("test"), nil}), `["dGVzdA==",null]`},
		{"dates", "ARRAY<DATE>", DateArrayValue([]sql.NullTime{{Time: day, Valid: true}}), `["2020-01-02"]`},
		{"timestamps", "ARRAY<TIMESTAMP>", TimestampArrayValue([]sql.NullTime{{Time: day, Valid: true}}), `["2020-01-02T00:00:00.000000000Z"]`},
		{"empty", "ARRAY<STRING>", StringArrayValue(Strings()), `[]`},
		{"no html escaping", "ARRAY<STRING>", StringArrayValue(Strings("<a&b>")), `["<a&b>"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := encoderFor(t, schemaOf("t", "c", tt.decl))
			rec, err := enc.Encode(ValueRow{"c": tt.val})
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec[0].Text)
			assert.False(t, rec[0].Null)
		})
	}
}

func TestArrayCodec_NonFiniteFails(t *testing.T) {
	enc := encoderFor(t, schemaOf("t", "c", "ARRAY<FLOAT64>"))
	_, err := enc.Encode(ValueRow{
		"c": Float64ArrayValue([]sql.NullFloat64{{Float64: math.NaN(), Valid: true}}),
	})
	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, "c", encErr.Column)
	assert.Equal(t, "ARRAY<FLOAT64>", encErr.Type.String())
}

// countingRow records getter calls and fails every one of them.
type countingRow struct {
	ValueRow
	calls int
}

var errGetterCalled = errors.New("getter called")

func (r *countingRow) hit() error {
	r.calls++
	return errGetterCalled
}

func (r *countingRow) Bool(string) (bool, error) { return false, r.hit() }
func (r *countingRow) Int64(string) (int64, error) { return 0, r.hit() }
func (r *countingRow) Float64(string) (float64, error) { return 0, r.hit() }
func (r *countingRow) String(string) (string, error) { return "", r.hit() }
func (r *countingRow) Bytes(string) ([]byte, error) { return nil, r.hit() }
func (r *countingRow) Date(string) (time.Time, error) { return time.Time{}, r.hit() }
func (r *countingRow) Timestamp(string) (time.Time, error) { return time.Time{}, r.hit() }
func (r *countingRow) BoolArray(string) ([]sql.NullBool, error) { return nil, r.hit() }
func (r *countingRow) Int64Array(string) ([]sql.NullInt64, error) { return nil, r.hit() }
func (r *countingRow) Float64Array(string) ([]sql.NullFloat64, error) { return nil, r.hit() }
func (r *countingRow) StringArray(string) ([]sql.NullString, error) { return nil, r.hit() }
func (r *countingRow) BytesArray(string) ([][]byte, error) { return nil, r.hit() }
func (r *countingRow) DateArray(string) ([]sql.NullTime, error) { return nil, r.hit() }
func (r *countingRow) TimestampArray(string) ([]sql.NullTime, error) { return nil, r.hit() }

func TestNullSafe_SkipsGetter(t *testing.T) {
	declared := []string{
		"BOOL", "INT64", "FLOAT64", "STRING", "BYTES", "DATE", "TIMESTAMP",
		"ARRAY<BOOL>", "ARRAY<INT64>", "ARRAY<FLOAT64>", "ARRAY<STRING>",
		"ARRAY<BYTES>", "ARRAY<DATE>", "ARRAY<TIMESTAMP>",
	}
	for _, d := range declared {
		t.Run(d, func(t *testing.T) {
			typ, err := ParseType(d)
			require.NoError(t, err)
			codecs, err := BuildCodecs(schemaOf("t", "c", d))
			require.NoError(t, err)
			codec, ok := codecs.Lookup("c")
			require.True(t, ok)

			row := &countingRow{ValueRow: ValueRow{"c": NullValue(typ)}}
			f, err := codec(row, "c")
			require.NoError(t, err)
			assert.Equal(t, NullField, f)
			assert.Zero(t, row.calls)

			// The same codec reaches the getter once the cell is not null.
			row = &countingRow{ValueRow: ValueRow{"c": {Type: typ}}}
			_, err = codec(row, "c")
			assert.ErrorIs(t, err, errGetterCalled)
			assert.Equal(t, 1, row.calls)
		})
	}
}

func TestNullArrayIsNullField(t *testing.T) {
	enc := encoderFor(t, schemaOf("t", "c", "ARRAY<INT64>"))
	rec, err := enc.Encode(ValueRow{"c": NullValue(Type{Kind: KindArray, Elem: KindInt64})})
	require.NoError(t, err)
	assert.True(t, rec[0].Null)
}

func TestBuildCodecs(t *testing.T) {
	t.Run("zero columns", func(t *testing.T) {
		schema := schemaOf("empty")
		codecs, err := BuildCodecs(schema)
		require.NoError(t, err)
		assert.Zero(t, codecs.Len())

		line, err := NewEncoder(schema, codecs).EncodeCSV(ValueRow{})
		require.NoError(t, err)
		assert.Equal(t, "", line)
	})

	t.Run("unsupported type", func(t *testing.T) {
		_, err := BuildCodecs(schemaOf("t", "ok", "INT64", "shape", "GEOMETRY"))
		var unsupported *UnsupportedTypeError
		require.ErrorAs(t, err, &unsupported)
		assert.Equal(t, "shape", unsupported.Column)
		assert.Equal(t, "GEOMETRY", unsupported.DeclaredType)
	})

	t.Run("duplicate column", func(t *testing.T) {
		_, err := BuildCodecs(schemaOf("t", "a", "INT64", "a", "STRING"))
		var dup *DuplicateColumnError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "t", dup.Table)
		assert.Equal(t, "a", dup.Column)
	})

	t.Run("order and types", func(t *testing.T) {
		codecs, err := BuildCodecs(schemaOf("t", "b", "TEXT", "a", "_int4"))
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "a"}, codecs.Columns())
		typ, ok := codecs.Type("a")
		require.True(t, ok)
		assert.Equal(t, Type{Kind: KindArray, Elem: KindInt64}, typ)
	})
}

func TestEncode_Idempotent(t *testing.T) {
	enc := encoderFor(t, schemaOf("t", "f", "FLOAT64", "s", "STRING", "ts", "TIMESTAMP"))
	a, b := 0.1, 0.2
	row := ValueRow{
		"f":  Float64Value(a + b),
		"s":  StringValue(`say "hi"`),
		"ts": TimestampValue(time.Date(2021, 6, 1, 8, 0, 0, 5, time.UTC)),
	}
	first, err := enc.EncodeCSV(row)
	require.NoError(t, err)
	for range 10 {
		again, err := enc.EncodeCSV(row)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, `"0.30000000000000004","say ""hi""","2021-06-01T08:00:00.000000005Z"`, first)
}

func TestEncode_Errors(t *testing.T) {
	schema := schemaOf("t", "a", "INT64", "b", "STRING")

	t.Run("missing codec", func(t *testing.T) {
		codecs, err := BuildCodecs(schemaOf("t", "a", "INT64"))
		require.NoError(t, err)
		_, err = NewEncoder(schema, codecs).Encode(ValueRow{"a": Int64Value(1), "b": StringValue("x")})
		var missing *MissingCodecError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, "b", missing.Column)
	})

	t.Run("type mismatch", func(t *testing.T) {
		rec, err := encoderFor(t, schema).Encode(ValueRow{"a": StringValue("1"), "b": StringValue("x")})
		assert.Nil(t, rec)
		var encErr *EncodingError
		require.ErrorAs(t, err, &encErr)
		assert.Equal(t, "a", encErr.Column)
	})

	t.Run("unknown column", func(t *testing.T) {
		_, err := encoderFor(t, schema).Encode(ValueRow{"a": Int64Value(1)})
		var encErr *EncodingError
		require.ErrorAs(t, err, &encErr)
		assert.Equal(t, "b", encErr.Column)
	})
}

func TestRecordCSV(t *testing.T) {
	rec := Record{Text(`a"b`), NullField, Text(""), Text("x,y\nz")}
	assert.Equal(t, "\"a\"\"b\",,\"\",\"x,y\nz\"", rec.CSV())
	assert.Equal(t, "", Record{}.CSV())
	assert.Equal(t, ",", Record{NullField, NullField}.CSV())
}
