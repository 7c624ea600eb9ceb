package etl

// Encoder turns Rows of one schema into Records. It holds only immutable
// state and is safe for concurrent use.
type Encoder struct {
	schema *Schema
	codecs *Codecs
}

// NewEncoder binds a schema to the codecs built for it.
func NewEncoder(schema *Schema, codecs *Codecs) *Encoder {
	return &Encoder{schema: schema, codecs: codecs}
}

// Schema returns the schema the encoder was built for.
func (e *Encoder) Schema() *Schema { return e.schema }

// Encode converts row into a Record with one field per schema column, in
// schema order. A codec failure is returned as *EncodingError and no
// partial record is produced.
func (e *Encoder) Encode(row Row) (Record, error) {
	rec := make(Record, len(e.schema.Columns))
	for i, col := range e.schema.Columns {
		codec, ok := e.codecs.Lookup(col.Name)
		if !ok {
			return nil, &MissingCodecError{Table: e.schema.Table, Column: col.Name}
		}
		f, err := codec(row, col.Name)
		if err != nil {
			typ, _ := e.codecs.Type(col.Name)
			return nil, &EncodingError{Table: e.schema.Table, Column: col.Name, Type: typ, Cause: err}
		}
		rec[i] = f
	}
	return rec, nil
}

// EncodeCSV encodes row and renders it as one CSV line without separator.
func (e *Encoder) EncodeCSV(row Row) (string, error) {
	rec, err := e.Encode(row)
	if err != nil {
		return "", err
	}
	return rec.CSV(), nil
}
