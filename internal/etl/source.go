package etl

import "context"

// ── Source ──────────────────────────────────────────────────
// A Source is a typed table reader. dbclient connectors implement it
// for each supported database driver.
//
// Pattern: discover → read, as in the Airbyte connector protocol.

// Source reads a table's schema and rows.
type Source interface {
	// ReadSchema returns the table's columns in ordinal order, read inside
	// one read-only snapshot. Failures are *MetadataReadError.
	ReadSchema(ctx context.Context, table string) (*Schema, error)

	// ReadRows calls fn for every row of schema.Table, columns selected in
	// schema order. Each Row passed to fn is independent and may be kept
	// or handed to another goroutine. Iteration stops at the first error
	// returned by fn.
	ReadRows(ctx context.Context, schema *Schema, fn func(Row) error) error
}
