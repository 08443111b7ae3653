package mcpserver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"docmodel/internal/service"
	"docmodel/internal/storage"
)

const (
	EventApprovalRequired  = "mcp:approval-required"
	EventApprovalDismissed = "mcp:approval-dismissed"
)

// PendingAction represents a destructive operation awaiting user approval.
type PendingAction struct {
	ID          string `json:"id"`
	Tool        string `json:"tool"`
	Description string `json:"description"`
	CreatedAt   string `json:"createdAt"`
	Metadata    string `json:"metadata"`
}

// actionResult is sent through the channel when user approves/rejects.
type actionResult struct {
	approved bool
}

// ApprovalQueue manages human-in-the-loop approval for destructive MCP tool calls.
// It supports three modes:
//   - auto: every request is approved (approval disabled)
//   - in-process: channels, with the request announced through a Notifier
//   - store-based (stdio server): pending actions are written to SQLite and
//     polled until `docmodel approvals` resolves them
type ApprovalQueue struct {
	mu       sync.Mutex
	pending  map[string]chan actionResult
	notifier service.Notifier
	timeout  time.Duration
	poll     time.Duration
	auto     bool

	store *storage.ApprovalStore
}

func NewApprovalQueue(notifier service.Notifier) *ApprovalQueue {
	return &ApprovalQueue{
		pending:  make(map[string]chan actionResult),
		notifier: notifier,
		timeout:  120 * time.Second,
		poll:     500 * time.Millisecond,
	}
}

// AutoApprove returns a queue that approves every request.
func AutoApprove() *ApprovalQueue {
	q := NewApprovalQueue(nil)
	q.auto = true
	return q
}

// SetStore enables store-based approval for the standalone server.
func (q *ApprovalQueue) SetStore(store *storage.ApprovalStore) {
	q.store = store
}

func (q *ApprovalQueue) SetTimeout(d time.Duration) {
	q.timeout = d
}

// Request blocks until the action is approved, rejected, times out or ctx
// ends. metadata is optional JSON with extra context.
func (q *ApprovalQueue) Request(ctx context.Context, tool, description string, metadata ...string) (bool, error) {
	if q == nil || q.auto {
		return true, nil
	}
	id := uuid.New().String()
	meta := "{}"
	if len(metadata) > 0 && metadata[0] != "" {
		meta = metadata[0]
	}

	if q.store != nil {
		return q.requestViaStore(ctx, id, tool, description, meta)
	}
	return q.requestViaChannel(ctx, id, tool, description, meta)
}

func (q *ApprovalQueue) requestViaStore(ctx context.Context, id, tool, description, metadata string) (bool, error) {
	err := q.store.Create(&storage.Approval{ID: id, Tool: tool, Description: description, Metadata: metadata})
	if err != nil {
		return false, fmt.Errorf("insert approval: %w", err)
	}
	defer q.store.Delete(id)

	deadline := time.Now().Add(q.timeout)
	ticker := time.NewTicker(q.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if time.Now().After(deadline) {
				return false, fmt.Errorf("action timed out after %s: %s", q.timeout, tool)
			}
			status, err := q.store.Status(id)
			if err != nil {
				continue
			}
			switch status {
			case storage.ApprovalApproved:
				return true, nil
			case storage.ApprovalRejected:
				return false, fmt.Errorf("action rejected by user: %s", tool)
			}
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

func (q *ApprovalQueue) requestViaChannel(ctx context.Context, id, tool, description, metadata string) (bool, error) {
	ch := make(chan actionResult, 1)

	q.mu.Lock()
	q.pending[id] = ch
	q.mu.Unlock()
	defer q.cleanup(id)

	q.notify(ctx, EventApprovalRequired, PendingAction{
		ID:          id,
		Tool:        tool,
		Description: description,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		Metadata:    metadata,
	})

	select {
	case result := <-ch:
		if !result.approved {
			return false, fmt.Errorf("action rejected by user: %s", tool)
		}
		return true, nil
	case <-time.After(q.timeout):
		q.notify(ctx, EventApprovalDismissed, map[string]string{"id": id})
		return false, fmt.Errorf("action timed out after %s: %s", q.timeout, tool)
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (q *ApprovalQueue) notify(ctx context.Context, event string, data any) {
	if q.notifier != nil {
		q.notifier.Notify(ctx, event, data)
	}
}

// Approve marks a pending action as approved (in-process mode).
func (q *ApprovalQueue) Approve(actionID string) {
	q.resolve(actionID, true)
}

// Reject marks a pending action as rejected (in-process mode).
func (q *ApprovalQueue) Reject(actionID string) {
	q.resolve(actionID, false)
}

func (q *ApprovalQueue) resolve(actionID string, approved bool) {
	q.mu.Lock()
	ch, ok := q.pending[actionID]
	q.mu.Unlock()
	if ok {
		select {
		case ch <- actionResult{approved: approved}:
		default:
		}
	}
}

func (q *ApprovalQueue) cleanup(id string) {
	q.mu.Lock()
	delete(q.pending, id)
	q.mu.Unlock()
}
