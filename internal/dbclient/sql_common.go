package dbclient

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tablexport/internal/etl"
)

// sqlConnector is the shared implementation for MySQL, Postgres, and SQLite.
type sqlConnector struct {
	dialect *dialect
	db      *sql.DB
}

// newSQLConnector creates a generic SQL connector.
func newSQLConnector(d *dialect, dsn string) (*sqlConnector, error) {
	db, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.driverName, err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)

	return &sqlConnector{dialect: d, db: db}, nil
}

func (c *sqlConnector) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.db.PingContext(ctx)
}

// inSnapshot runs fn inside a read-only transaction that is always rolled
// back when fn returns, whatever the outcome.
func (c *sqlConnector) inSnapshot(ctx context.Context, fn func(tx *sql.Tx) error) error {
	opts := c.dialect.snapshot
	tx, err := c.db.BeginTx(ctx, &opts)
	if err != nil {
		return fmt.Errorf("begin read-only tx: %w", err)
	}
	defer tx.Rollback()
	return fn(tx)
}

// ReadSchema reads the table's columns in ordinal order.
func (c *sqlConnector) ReadSchema(ctx context.Context, table string) (*etl.Schema, error) {
	schema := &etl.Schema{Table: table, Columns: []etl.Column{}}

	err := c.inSnapshot(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, c.dialect.tableExists, table).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return etl.ErrTableNotFound
		}
		if err != nil {
			return fmt.Errorf("table lookup: %w", err)
		}

		rows, err := tx.QueryContext(ctx, c.dialect.columns, table)
		if err != nil {
			return fmt.Errorf("columns query: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var col etl.Column
			if err := rows.Scan(&col.Name, &col.DeclaredType); err != nil {
				return fmt.Errorf("scan column: %w", err)
			}
			schema.Columns = append(schema.Columns, col)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, &etl.MetadataReadError{Table: table, Cause: err}
	}
	return schema, nil
}

// selectQuery builds the table scan for schema. A table without columns
// still yields one (empty) row per table row.
func (c *sqlConnector) selectQuery(schema *etl.Schema) string {
	if len(schema.Columns) == 0 {
		return "SELECT 1 FROM " + c.dialect.quote(schema.Table)
	}
	cols := make([]string, len(schema.Columns))
	for i, col := range schema.Columns {
		cols[i] = c.dialect.quote(col.Name)
	}
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), c.dialect.quote(schema.Table))
}

// ReadRows streams every row of schema.Table inside a read-only transaction.
func (c *sqlConnector) ReadRows(ctx context.Context, schema *etl.Schema, fn func(etl.Row) error) error {
	layout, err := newRowLayout(schema, c.dialect.nativeArrays)
	if err != nil {
		return err
	}

	return c.inSnapshot(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, c.selectQuery(schema))
		if err != nil {
			return fmt.Errorf("query %s: %w", schema.Table, err)
		}
		defer rows.Close()

		for rows.Next() {
			row := layout.newRow()
			if err := rows.Scan(row.dest()...); err != nil {
				return fmt.Errorf("scan row: %w", err)
			}
			if err := fn(row); err != nil {
				return err
			}
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate: %w", err)
		}
		return nil
	})
}

// ListTables lists the user tables of the connected database.
func (c *sqlConnector) ListTables(ctx context.Context) ([]TableInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	rows, err := c.db.QueryContext(ctx, c.dialect.tables)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []TableInfo
	for rows.Next() {
		var t TableInfo
		if err := rows.Scan(&t.Name); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (c *sqlConnector) Close() error {
	return c.db.Close()
}
