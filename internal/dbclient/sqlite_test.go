package dbclient

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablexport/internal/domain"
	"tablexport/internal/etl"
)

func newSQLiteSource(t *testing.T, stmts ...string) Connector {
	t.Helper()
	path := filepath.Join(t.TempDir(), "src.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err, s)
	}
	require.NoError(t, db.Close())

	c, err := NewConnector(&domain.DatabaseConnection{
		Name:   "src",
		Driver: domain.DatabaseDriverSQLite,
		Host:   path,
	}, "")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSQLite_ReadSchema(t *testing.T) {
	c := newSQLiteSource(t,
		`CREATE TABLE people (zid INTEGER, name TEXT, born DATE, seen TIMESTAMP, photo BLOB, score REAL)`,
	)
	ctx := context.Background()
	require.NoError(t, c.TestConnection(ctx))

	schema, err := c.ReadSchema(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, "people", schema.Table)
	assert.Equal(t, []etl.Column{
		{Name: "zid", DeclaredType: "INTEGER"},
		{Name: "name", DeclaredType: "TEXT"},
		{Name: "born", DeclaredType: "DATE"},
		{Name: "seen", DeclaredType: "TIMESTAMP"},
		{Name: "photo", DeclaredType: "BLOB"},
		{Name: "score", DeclaredType: "REAL"},
	}, schema.Columns)
}

func TestSQLite_ReadSchema_MissingTable(t *testing.T) {
	c := newSQLiteSource(t, `CREATE TABLE present (id INTEGER)`)

	_, err := c.ReadSchema(context.Background(), "absent")
	var metaErr *etl.MetadataReadError
	require.ErrorAs(t, err, &metaErr)
	assert.Equal(t, "absent", metaErr.Table)
	assert.ErrorIs(t, err, etl.ErrTableNotFound)
}

func TestSQLite_ListTables(t *testing.T) {
	c := newSQLiteSource(t,
		`CREATE TABLE b (id INTEGER)`,
		`CREATE TABLE a (id INTEGER)`,
	)
	tables, err := c.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []TableInfo{{Name: "a"}, {Name: "b"}}, tables)
}

func TestSQLite_ExportRows(t *testing.T) {
	c := newSQLiteSource(t,
		`CREATE TABLE people (id INTEGER, name TEXT, born DATE, seen TIMESTAMP, photo BLOB, score REAL, vip BOOLEAN)`,
		`INSERT INTO people VALUES
			(1, 'ada', '1815-12-10', '2024-01-02 03:04:05.5', X'CAFE', 99.5, 1),
			(2, NULL, NULL, NULL, NULL, NULL, NULL),
			(3, 'x"y', '2000-02-29', '2000-02-29T23:59:59', X'', 1e-7, 0)`,
	)
	ctx := context.Background()
	schema, err := c.ReadSchema(ctx, "people")
	require.NoError(t, err)
	codecs, err := etl.BuildCodecs(schema)
	require.NoError(t, err)
	enc := etl.NewEncoder(schema, codecs)

	var lines []string
	err = c.ReadRows(ctx, schema, func(r etl.Row) error {
		line, err := enc.EncodeCSV(r)
		if err != nil {
			return err
		}
		lines = append(lines, line)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		`"1","ada","1815-12-10","2024-01-02T03:04:05.500000000Z","yv4=","99.5","true"`,
		`"2",,,,,,`,
		`"3","x""y","2000-02-29","2000-02-29T23:59:59.000000000Z","","1e-7","false"`,
	}, lines)
}

func TestSQLite_RowsAreIndependent(t *testing.T) {
	c := newSQLiteSource(t,
		`CREATE TABLE blobs (b BLOB)`,
		`INSERT INTO blobs VALUES (X'01'), (X'02'), (X'03')`,
	)
	ctx := context.Background()
	schema, err := c.ReadSchema(ctx, "blobs")
	require.NoError(t, err)

	var rows []etl.Row
	require.NoError(t, c.ReadRows(ctx, schema, func(r etl.Row) error {
		rows = append(rows, r)
		return nil
	}))
	require.Len(t, rows, 3)
	for i, r := range rows {
		b, err := r.Bytes("b")
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i + 1)}, b)
	}
}

func TestSQLite_UnsupportedTypeFailsBeforeScan(t *testing.T) {
	c := newSQLiteSource(t,
		`CREATE TABLE shapes (id INTEGER, geom GEOMETRY)`,
		`INSERT INTO shapes VALUES (1, 'POINT(0 0)')`,
	)
	ctx := context.Background()
	schema, err := c.ReadSchema(ctx, "shapes")
	require.NoError(t, err)

	called := false
	err = c.ReadRows(ctx, schema, func(etl.Row) error {
		called = true
		return nil
	})
	var unsupported *etl.UnsupportedTypeError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "geom", unsupported.Column)
	assert.False(t, called)
}

func TestSQLite_Engine(t *testing.T) {
	c := newSQLiteSource(t,
		`CREATE TABLE t (id INTEGER, at TIMESTAMP)`,
		`INSERT INTO t VALUES (1, 1700000000)`,
	)
	lines, _, err := (&etl.Engine{Source: c}).Preview(context.Background(), "t", 10)
	require.NoError(t, err)
	want := time.Unix(1700000000, 0).UTC().Format(etl.TimestampLayout)
	assert.Equal(t, []string{`"1","` + want + `"`}, lines)
}

func TestSQLite_UnconvertibleValueFailsOnlyItsRecord(t *testing.T) {
	c := newSQLiteSource(t,
		`CREATE TABLE t (id INTEGER, name TEXT)`,
		`INSERT INTO t VALUES (1, 'a'), ('abc', 'b'), (3, 'c')`,
	)
	fs := afero.NewMemMapFs()
	eng := &etl.Engine{Source: c, Sink: &etl.FileSink{Fs: fs, Prefix: "/out/t/"}}

	result, err := eng.Run(context.Background(), etl.ExportRequest{Table: "t", Workers: 1, OnError: etl.OnErrorSkip})
	require.NoError(t, err)
	assert.EqualValues(t, 3, result.RowsRead)
	assert.EqualValues(t, 2, result.RowsWritten)
	assert.EqualValues(t, 1, result.RowsSkipped)

	data, err := afero.ReadFile(fs, "/out/t/00000-of-00001.csv")
	require.NoError(t, err)
	assert.Equal(t, "\"1\",\"a\"\n\"3\",\"c\"\n", string(data))

	_, err = eng.Run(context.Background(), etl.ExportRequest{Table: "t", Workers: 1})
	var encErr *etl.EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, "t", encErr.Table)
	assert.Equal(t, "id", encErr.Column)
}
