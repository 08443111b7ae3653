package service

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// ─────────────────────────────────────────────────────────────
// Notifier: decouples services from whoever listens for run events
// ─────────────────────────────────────────────────────────────

// Run events published by ModelService.
const (
	EventRunStarted   = "model:run-started"
	EventRunCompleted = "model:run-completed"
)

// Notifier receives service events. The CLI logs them; an embedding
// application may forward them elsewhere.
type Notifier interface {
	Notify(ctx context.Context, event string, data any)
}

// LogNotifier writes every event to a zap logger.
type LogNotifier struct {
	Log *zap.Logger
}

func (n LogNotifier) Notify(_ context.Context, event string, data any) {
	if n.Log == nil {
		return
	}
	n.Log.Info("event", zap.String("event", event), zap.Any("data", data))
}

// MockNotifier is a test-friendly Notifier that records all calls.
type MockNotifier struct {
	mu     sync.Mutex
	Events []NotifiedEvent
}

// NotifiedEvent holds a single recorded notification for test assertions.
type NotifiedEvent struct {
	Event string
	Data  any
}

func (m *MockNotifier) Notify(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, NotifiedEvent{Event: event, Data: data})
}

// Names returns the recorded event names in order.
func (m *MockNotifier) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Events))
	for i, e := range m.Events {
		out[i] = e.Event
	}
	return out
}
