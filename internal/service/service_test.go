package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablexport/internal/service"
)

// ─────────────────────────────────────────────────────────────
// RunningJobsGuard tests
// ─────────────────────────────────────────────────────────────

func TestRunningGuard_TryLock(t *testing.T) {
	var g service.ExportedRunningGuard

	require.True(t, g.TryLock("job-1"), "first TryLock")
	assert.False(t, g.TryLock("job-1"), "second TryLock for same job")
	require.True(t, g.TryLock("job-2"), "TryLock for different job")
	assert.Equal(t, []string{"job-1", "job-2"}, g.Running())
	g.Unlock("job-1")
	g.Unlock("job-2")

	require.True(t, g.TryLock("job-1"), "TryLock after unlock")
	g.Unlock("job-1")
}

func TestRunningGuard_WaitAll(t *testing.T) {
	var g service.ExportedRunningGuard
	require.True(t, g.TryLock("job-a"))

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		g.WaitAll(ctx)
		close(done)
	}()

	go func() {
		time.Sleep(20 * time.Millisecond)
		g.Unlock("job-a")
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("WaitAll timed out")
	}
}

// ─────────────────────────────────────────────────────────────
// Emitter tests
// ─────────────────────────────────────────────────────────────

func TestMockEmitter_RecordsEvents(t *testing.T) {
	m := &service.MockEmitter{}
	ctx := context.Background()

	m.Emit(ctx, "test:event", map[string]string{"foo": "bar"})
	m.Emit(ctx, "test:event2", nil)

	events := m.Snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, "test:event", events[0].Event)
	assert.Equal(t, "test:event2", events[1].Event)
}

func TestLogEmitter_NilLogger(t *testing.T) {
	e := &service.LogEmitter{}
	assert.NotPanics(t, func() {
		e.Emit(context.Background(), service.EventExportCompleted, "job-1")
	})
}
