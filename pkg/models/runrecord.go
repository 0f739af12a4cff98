package models

import (
	"time"

	"github.com/smilemakc/flowfile/pkg/scheduler"
)

// RunStatus is the lifecycle state of a persisted run record.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunRecord is the persisted-in-memory history entry pkg/server keeps per
// flow run, serving GET /flow/run_status/ for both in-flight and completed
// runs. Info is nil until the run finishes: Complete sets it, Fail leaves
// it nil.
type RunRecord struct {
	FlowID      int64                     `json:"flow_id"`
	Status      RunStatus                 `json:"status"`
	Info        *scheduler.RunInformation `json:"info,omitempty"`
	Error       string                    `json:"error,omitempty"`
	TriggeredBy string                    `json:"triggered_by,omitempty"`
	StartedAt   time.Time                 `json:"started_at"`
	CompletedAt *time.Time                `json:"completed_at,omitempty"`
}

// NewRunRecord starts a pending record for flowID.
func NewRunRecord(flowID int64) *RunRecord {
	return &RunRecord{FlowID: flowID, Status: RunStatusPending, StartedAt: time.Now()}
}

// IsTerminal reports whether the run has reached a final state.
func (r RunStatus) IsTerminal() bool {
	switch r {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// Complete records the scheduler's outcome and marks the record terminal.
func (r *RunRecord) Complete(info *scheduler.RunInformation) {
	now := time.Now()
	r.Info = info
	r.CompletedAt = &now
	switch {
	case info.Cancelled:
		r.Status = RunStatusCancelled
	case info.Success:
		r.Status = RunStatusCompleted
	default:
		r.Status = RunStatusFailed
	}
}

// Fail marks the record terminal without a RunInformation, e.g. when the
// run never reached the scheduler (validation failure, flow not found).
func (r *RunRecord) Fail(err error) {
	now := time.Now()
	r.CompletedAt = &now
	r.Status = RunStatusFailed
	r.Error = err.Error()
}

// Duration returns the record's elapsed wall time in milliseconds.
func (r *RunRecord) Duration() int64 {
	if r.CompletedAt == nil {
		return time.Since(r.StartedAt).Milliseconds()
	}
	return r.CompletedAt.Sub(r.StartedAt).Milliseconds()
}
