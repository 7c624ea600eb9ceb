package dbclient

import (
	"database/sql"
	"strings"
)

// dialect holds the catalog queries and quoting rules of one driver.
type dialect struct {
	driverName string

	// snapshot is used for every catalog and table read.
	snapshot sql.TxOptions

	// tableExists returns one row when the table exists.
	tableExists string
	// columns returns (name, declared type) ordered by ordinal position.
	columns string
	// tables lists user tables.
	tables string

	quote func(ident string) string

	// nativeArrays is set when array columns arrive in the driver's own
	// array text format rather than as JSON text.
	nativeArrays bool
}

func quoteWith(q string) func(string) string {
	return func(ident string) string {
		return q + strings.ReplaceAll(ident, q, q+q) + q
	}
}

var postgresDialect = &dialect{
	driverName: "postgres",
	snapshot:   sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true},
	tableExists: `SELECT 1 FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = $1`,
	columns: `SELECT column_name,
		CASE WHEN data_type IN ('ARRAY', 'USER-DEFINED') THEN udt_name ELSE data_type END
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position ASC`,
	tables: `SELECT table_name FROM information_schema.tables
		WHERE table_schema = current_schema() ORDER BY table_name`,
	quote:        quoteWith(`"`),
	nativeArrays: true,
}

var mysqlDialect = &dialect{
	driverName: "mysql",
	snapshot:   sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true},
	tableExists: `SELECT 1 FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?`,
	columns: `SELECT COLUMN_NAME, COLUMN_TYPE FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION ASC`,
	tables: `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = DATABASE() ORDER BY TABLE_NAME`,
	quote: quoteWith("`"),
}

// SQLite has no isolation levels to pick from; a read transaction already
// sees one snapshot.
var sqliteDialect = &dialect{
	driverName:  "sqlite",
	snapshot:    sql.TxOptions{ReadOnly: true},
	tableExists: `SELECT 1 FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?`,
	columns:     `SELECT name, type FROM pragma_table_info(?) ORDER BY cid ASC`,
	tables: `SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`,
	quote: quoteWith(`"`),
}
