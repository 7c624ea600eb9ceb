package service

import (
	"context"
	"log/slog"
	"sync"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter: decouples services from whoever listens
// ─────────────────────────────────────────────────────────────

// EventEmitter publishes service events such as finished exports.
// Services receive this interface instead of a concrete transport,
// which makes them independently testable with a mock emitter.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// LogEmitter writes every event to a structured logger.
type LogEmitter struct {
	Logger *slog.Logger
}

func (e *LogEmitter) Emit(ctx context.Context, event string, data any) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "event", "event", event, "data", data)
}

// MockEmitter is a test-friendly EventEmitter that records all calls.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// Snapshot returns a copy of the recorded events.
func (m *MockEmitter) Snapshot() []EmittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EmittedEvent(nil), m.Events...)
}
