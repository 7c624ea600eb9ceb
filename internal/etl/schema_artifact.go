package etl

import (
	"bytes"
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// SchemaArtifact renders schema as a compact JSON object mapping column
// name to declared type, keys in schema order. Type names such as
// ARRAY<STRING> are written as is, without HTML escaping.
func SchemaArtifact(schema *Schema) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	buf.WriteByte('{')
	for i, c := range schema.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := enc.Encode(c.Name); err != nil {
			return nil, fmt.Errorf("marshal schema: %w", err)
		}
		trimNewline(&buf)
		buf.WriteByte(':')
		if err := enc.Encode(c.DeclaredType); err != nil {
			return nil, fmt.Errorf("marshal schema: %w", err)
		}
		trimNewline(&buf)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// json.Encoder terminates every value with a newline.
func trimNewline(buf *bytes.Buffer) {
	buf.Truncate(buf.Len() - 1)
}

// ParseSchemaArtifact reads an artifact written by SchemaArtifact back into
// a Schema for table, preserving key order.
func ParseSchemaArtifact(table string, data []byte) (*Schema, error) {
	om := orderedmap.New[string, string]()
	if err := json.Unmarshal(data, om); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	schema := &Schema{Table: table, Columns: make([]Column, 0, om.Len())}
	for pair := om.Oldest(); pair != nil; pair = pair.Next() {
		schema.Columns = append(schema.Columns, Column{Name: pair.Key, DeclaredType: pair.Value})
	}
	return schema, nil
}
