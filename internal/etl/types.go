package etl

import (
	"fmt"
	"regexp"
	"strings"
)

// ── Type tags ──────────────────────────────────────────────
// The closed set of column types the exporter can encode.
// Anything the catalog reports outside this set is rejected when
// codecs are built, never while rows are being encoded.

// Kind is a scalar type tag, or KindArray for array columns.
type Kind int

const (
	KindInvalid Kind = iota
	KindBool
	KindInt64
	KindFloat64
	KindString
	KindBytes
	KindDate
	KindTimestamp
	KindArray
)

var kindNames = [...]string{
	KindInvalid:   "INVALID",
	KindBool:      "BOOL",
	KindInt64:     "INT64",
	KindFloat64:   "FLOAT64",
	KindString:    "STRING",
	KindBytes:     "BYTES",
	KindDate:      "DATE",
	KindTimestamp: "TIMESTAMP",
	KindArray:     "ARRAY",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Type is a parsed column type. Elem is only set when Kind is KindArray.
type Type struct {
	Kind Kind
	Elem Kind
}

// String returns the canonical tag, e.g. "INT64" or "ARRAY<STRING>".
func (t Type) String() string {
	if t.Kind == KindArray {
		return "ARRAY<" + t.Elem.String() + ">"
	}
	return t.Kind.String()
}

// IsArray reports whether t is an array type.
func (t Type) IsArray() bool { return t.Kind == KindArray }

// scalarNames maps normalized declared type names to scalar kinds.
// Lengths and precisions are stripped before lookup.
var scalarNames = map[string]Kind{
	// booleans
	"BOOL":    KindBool,
	"BOOLEAN": KindBool,

	// integers
	"INT64":     KindInt64,
	"INT":       KindInt64,
	"INTEGER":   KindInt64,
	"BIGINT":    KindInt64,
	"SMALLINT":  KindInt64,
	"MEDIUMINT": KindInt64,
	"TINYINT":   KindInt64,
	"INT2":      KindInt64,
	"INT4":      KindInt64,
	"INT8":      KindInt64,
	"SERIAL":    KindInt64,
	"BIGSERIAL": KindInt64,

	// floats
	"FLOAT64":          KindFloat64,
	"FLOAT":            KindFloat64,
	"FLOAT4":           KindFloat64,
	"FLOAT8":           KindFloat64,
	"DOUBLE":           KindFloat64,
	"DOUBLE PRECISION": KindFloat64,
	"REAL":             KindFloat64,

	// strings
	"STRING":            KindString,
	"TEXT":              KindString,
	"VARCHAR":           KindString,
	"CHAR":              KindString,
	"CHARACTER":         KindString,
	"CHARACTER VARYING": KindString,
	"NVARCHAR":          KindString,
	"NCHAR":             KindString,
	"CLOB":              KindString,
	"TINYTEXT":          KindString,
	"MEDIUMTEXT":        KindString,
	"LONGTEXT":          KindString,
	"UUID":              KindString,
	"BPCHAR":            KindString,

	// bytes
	"BYTES":      KindBytes,
	"BYTEA":      KindBytes,
	"BLOB":       KindBytes,
	"BINARY":     KindBytes,
	"VARBINARY":  KindBytes,
	"TINYBLOB":   KindBytes,
	"MEDIUMBLOB": KindBytes,
	"LONGBLOB":   KindBytes,

	// dates and instants
	"DATE":                        KindDate,
	"TIMESTAMP":                   KindTimestamp,
	"TIMESTAMPTZ":                 KindTimestamp,
	"DATETIME":                    KindTimestamp,
	"TIMESTAMP WITH TIME ZONE":    KindTimestamp,
	"TIMESTAMP WITHOUT TIME ZONE": KindTimestamp,
}

// postgres udt names for the element types of array columns (_int8, _text, ...).
var udtElemNames = map[string]Kind{
	"_BOOL":        KindBool,
	"_INT2":        KindInt64,
	"_INT4":        KindInt64,
	"_INT8":        KindInt64,
	"_FLOAT4":      KindFloat64,
	"_FLOAT8":      KindFloat64,
	"_TEXT":        KindString,
	"_VARCHAR":     KindString,
	"_BPCHAR":      KindString,
	"_UUID":        KindString,
	"_BYTEA":       KindBytes,
	"_DATE":        KindDate,
	"_TIMESTAMP":   KindTimestamp,
	"_TIMESTAMPTZ": KindTimestamp,
}

var (
	sizeSuffix = regexp.MustCompile(`\s*\(\s*[0-9A-Z, ]*\)`)
	spaces     = regexp.MustCompile(`\s+`)
)

// ParseType maps a declared catalog type to a Type. It returns an error
// naming the declared type when it falls outside the supported set,
// including arrays of arrays.
func ParseType(declared string) (Type, error) {
	d := strings.ToUpper(strings.TrimSpace(declared))
	d = spaces.ReplaceAllString(d, " ")
	if d == "" {
		return Type{}, fmt.Errorf("empty type")
	}

	// ARRAY<T>
	if strings.HasPrefix(d, "ARRAY<") && strings.HasSuffix(d, ">") {
		return parseArray(d[len("ARRAY<"):len(d)-1], declared)
	}
	// T[]
	if strings.HasSuffix(d, "[]") {
		return parseArray(strings.TrimSuffix(d, "[]"), declared)
	}
	// _T (postgres udt)
	if k, ok := udtElemNames[d]; ok {
		return Type{Kind: KindArray, Elem: k}, nil
	}

	// MySQL reports booleans as tinyint(1).
	if strings.HasPrefix(d, "TINYINT(1)") {
		return Type{Kind: KindBool}, nil
	}

	k, err := parseScalar(d)
	if err != nil {
		return Type{}, fmt.Errorf("%q: %w", declared, err)
	}
	return Type{Kind: k}, nil
}

func parseArray(elem, declared string) (Type, error) {
	elem = strings.TrimSpace(elem)
	if strings.HasPrefix(elem, "ARRAY<") || strings.HasSuffix(elem, "[]") {
		return Type{}, fmt.Errorf("%q: nested arrays are not supported", declared)
	}
	k, err := parseScalar(elem)
	if err != nil {
		return Type{}, fmt.Errorf("%q: element: %w", declared, err)
	}
	return Type{Kind: KindArray, Elem: k}, nil
}

func parseScalar(d string) (Kind, error) {
	d = sizeSuffix.ReplaceAllString(d, "")
	d = strings.TrimSpace(d)
	if k, ok := scalarNames[d]; ok {
		return k, nil
	}
	// MySQL appends attributes after the base type.
	if base, attr, ok := strings.Cut(d, " "); ok && attr == "UNSIGNED" && base != "BIGINT" {
		if k, ok := scalarNames[base]; ok && k == KindInt64 {
			return k, nil
		}
	}
	return KindInvalid, fmt.Errorf("unsupported type %s", d)
}
