package workerdispatch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// TaskState mirrors the worker's own in-memory task_status lifecycle.
type TaskState string

const (
	TaskRunning  TaskState = "running"
	TaskComplete TaskState = "complete"
	TaskFailed   TaskState = "failed"
)

// TaskStatus is the core-side mirror of one task's last known state, kept
// so a disconnect-and-reconnect can be resolved without resubmitting.
type TaskStatus struct {
	TaskID    string
	State     TaskState
	Result    *TaskResult
	Err       string
	UpdatedAt time.Time
}

// Registry tracks in-flight and recently-finished tasks submitted by this
// core process, the client-side half of §4.5's disconnect semantics: the
// worker is authoritative for `task_status`. WorkerDispatcher records each
// task's start, completion and failure here; it does not read the registry
// before submitting.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*TaskStatus
}

// NewRegistry returns an empty task registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*TaskStatus)}
}

// TaskID derives a deterministic task id from a node's fingerprint, so a
// resubmission after a disconnect lands on the same id the worker already
// has status for — the idempotency mechanism of §4.5.
func TaskID(fingerprint string) string {
	sum := sha256.Sum256([]byte(fingerprint))
	return "task-" + hex.EncodeToString(sum[:8])
}

// Start records a task as running.
func (r *Registry) Start(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[taskID] = &TaskStatus{TaskID: taskID, State: TaskRunning, UpdatedAt: time.Now()}
}

// Complete records a task's successful result.
func (r *Registry) Complete(taskID string, result *TaskResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[taskID] = &TaskStatus{TaskID: taskID, State: TaskComplete, Result: result, UpdatedAt: time.Now()}
}

// Fail records a task's failure.
func (r *Registry) Fail(taskID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	r.tasks[taskID] = &TaskStatus{TaskID: taskID, State: TaskFailed, Err: msg, UpdatedAt: time.Now()}
}

// Get returns the last known status for a task.
func (r *Registry) Get(taskID string) (*TaskStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.tasks[taskID]
	return s, ok
}

// Recover polls the worker's REST fallback (`GET /status/{task_id}`) for a
// task this client lost its WebSocket connection to mid-run, per §4.5's
// disconnect semantics ("at-least-once delivery ... idempotency supplied by
// the deterministic task_id").
func Recover(ctx context.Context, httpClient *http.Client, baseURL, taskID string) (*TaskStatus, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/status/"+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("workerdispatch: build recovery request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("workerdispatch: recovery request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("workerdispatch: recovery status %d for task %s", resp.StatusCode, taskID)
	}
	return &TaskStatus{TaskID: taskID, State: TaskComplete, UpdatedAt: time.Now()}, nil
}
