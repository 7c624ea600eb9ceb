package cli

import (
	"bytes"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

// setup writes a config pointing at a SQLite source with one table and
// returns its path plus the directory exports should land in.
func setup(t *testing.T) (cfgPath, outDir string) {
	t.Helper()
	dir := t.TempDir()

	src := filepath.Join(dir, "source.db")
	db, err := sql.Open("sqlite", src)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE orders (id INTEGER, item TEXT, qty INTEGER)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO orders VALUES (1, 'pen', 3), (2, NULL, 1)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	outDir = filepath.Join(dir, "out")
	cfgPath = filepath.Join(dir, "tablexport.yaml")
	body := fmt.Sprintf(`
state_path: %s
export:
  workers: 1
  output_dir: %s
logging:
  level: warn
connections:
  - name: local
    driver: sqlite
    host: %s
`, filepath.Join(dir, "state.db"), outDir, src)
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))
	return cfgPath, outDir
}

func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestSchemaCommand(t *testing.T) {
	cfg, _ := setup(t)

	out, err := run(t, cfg, "schema", "local", "orders")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"INTEGER","item":"TEXT","qty":"INTEGER"}`+"\n", out)
}

func TestSchemaCommand_MissingTable(t *testing.T) {
	cfg, _ := setup(t)

	_, err := run(t, cfg, "schema", "local", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestTablesAndPreview(t *testing.T) {
	cfg, _ := setup(t)

	out, err := run(t, cfg, "tables", "local")
	require.NoError(t, err)
	assert.Equal(t, "orders\n", out)

	out, err = run(t, cfg, "preview", "local", "orders", "--rows", "1")
	require.NoError(t, err)
	assert.Equal(t, `"1","pen","3"`+"\n", out)
}

func TestExportCommand(t *testing.T) {
	cfg, outDir := setup(t)
	prefix := filepath.Join(outDir, "orders-")

	out, err := run(t, cfg, "export", "local", "orders", "--output", prefix)
	require.NoError(t, err)
	assert.Contains(t, out, "2 rows written")

	schema, err := os.ReadFile(prefix + "schema")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"INTEGER","item":"TEXT","qty":"INTEGER"}`, string(schema))

	shard, err := os.ReadFile(prefix + "00000-of-00001.csv")
	require.NoError(t, err)
	assert.Equal(t, "\"1\",\"pen\",\"3\"\n\"2\",,\"1\"", strings.TrimSuffix(string(shard), "\n"))
}

func TestExportCommand_DefaultPrefix(t *testing.T) {
	cfg, outDir := setup(t)

	_, err := run(t, cfg, "export", "local", "orders")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(outDir, "orders", "schema"))
	assert.FileExists(t, filepath.Join(outDir, "orders", "00000-of-00001.csv"))
}

func TestExportCommand_BadPolicy(t *testing.T) {
	cfg, _ := setup(t)

	_, err := run(t, cfg, "export", "local", "orders", "--on-error", "retry")
	assert.ErrorContains(t, err, "on_error")
}

func TestJobsLifecycle(t *testing.T) {
	cfg, outDir := setup(t)

	out, err := run(t, cfg, "jobs", "add", "nightly",
		"--connection", "local", "--table", "orders", "--schedule", "0 2 * * *")
	require.NoError(t, err)
	assert.Contains(t, out, "created job nightly")

	out, err = run(t, cfg, "jobs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "nightly")
	assert.Contains(t, out, "schedule 0 2 * * *")

	out, err = run(t, cfg, "jobs", "run", "nightly")
	require.NoError(t, err)
	assert.Contains(t, out, "2 rows written")
	assert.FileExists(t, filepath.Join(outDir, "orders", "schema"))

	out, err = run(t, cfg, "jobs", "logs", "nightly")
	require.NoError(t, err)
	assert.Contains(t, out, "success")

	out, err = run(t, cfg, "jobs", "delete", "nightly")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted job nightly")

	_, err = run(t, cfg, "jobs", "run", "nightly")
	assert.Error(t, err)
}

func TestJobsAdd_ConflictingTriggers(t *testing.T) {
	cfg, _ := setup(t)

	_, err := run(t, cfg, "jobs", "add", "x", "--connection", "local", "--table", "orders",
		"--schedule", "* * * * *", "--watch", "/tmp/trigger")
	assert.ErrorContains(t, err, "mutually exclusive")
}

func TestLogLevelFlag(t *testing.T) {
	cfg, _ := setup(t)

	_, err := run(t, cfg, "--log-level", "loud", "tables", "local")
	assert.Error(t, err)
}

func TestInspectCommand(t *testing.T) {
	cfg, outDir := setup(t)
	prefix := filepath.Join(outDir, "orders") + string(filepath.Separator)

	_, err := run(t, cfg, "export", "local", "orders", "--output", prefix, "--workers", "2")
	require.NoError(t, err)

	out, err := run(t, cfg, "inspect", prefix)
	require.NoError(t, err)
	assert.Contains(t, out, "item    TEXT")
	assert.Contains(t, out, "00000-of-00002.csv")
	assert.Contains(t, out, "00001-of-00002.csv")
}
