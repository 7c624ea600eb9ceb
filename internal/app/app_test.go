package app

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"tablexport/internal/config"
	"tablexport/internal/domain"
	"tablexport/internal/service"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	source := filepath.Join(dir, "source.db")
	db, err := sql.Open("sqlite", source)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE kv (k TEXT, v INTEGER); INSERT INTO kv VALUES ('a', 1), ('b', 2)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	cfg := &config.Config{StatePath: filepath.Join(dir, "state.db")}
	cfg.Connections = []domain.DatabaseConnection{
		{Name: "local", Driver: domain.DatabaseDriverSQLite, Host: source},
	}
	return New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestApp_ExportAndMetrics(t *testing.T) {
	a := newTestApp(t)
	require.NoError(t, a.Startup(false))
	defer a.Shutdown(context.Background())

	prefix := filepath.Join(t.TempDir(), "kv") + "/"
	result, err := a.Exports().Export(context.Background(), service.ExportInput{
		Connection:   "local",
		Table:        "kv",
		OutputPrefix: prefix,
		Workers:      1,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, result.RowsWritten)

	rec := httptest.NewRecorder()
	a.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "tablexport_rows_encoded_total")
	assert.Contains(t, body, "go_goroutines")
}

func TestApp_StartupWithoutState(t *testing.T) {
	a := newTestApp(t)
	require.NoError(t, a.Startup(false))
	defer a.Shutdown(context.Background())

	_, err := a.Exports().ListJobs()
	assert.ErrorIs(t, err, service.ErrNoJobStore)
}

func TestApp_ServeStopsOnCancel(t *testing.T) {
	a := newTestApp(t)
	require.NoError(t, a.Startup(true))

	_, err := a.Exports().CreateJob(context.Background(), service.JobInput{
		Name:          "hourly",
		Connection:    "local",
		Table:         "kv",
		OutputPrefix:  t.TempDir() + "/",
		TriggerType:   service.TriggerSchedule,
		TriggerConfig: "0 * * * *",
		Enabled:       true,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, a.Serve(ctx))

	a.Shutdown(context.Background())
	a.Shutdown(context.Background())
}
