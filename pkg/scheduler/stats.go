package scheduler

import (
	"time"

	"github.com/smilemakc/flowfile/pkg/graph"
)

// NodeResult is the run-statistics record kept for one executed (or
// skipped) node, per §4.4's "Run statistics".
type NodeResult struct {
	NodeID       int64
	Kind         graph.Kind
	StartTS      time.Time
	EndTS        time.Time
	Success      bool
	Error        string
	WasCached    bool
	UpstreamHash string
	State        graph.State
}

// RunInformation is the scheduler's return value for one run, per §4.4 and
// the `POST /flow/run/` response body described in §6.
type RunInformation struct {
	FlowID         int64
	Success        bool
	Cancelled      bool
	NodesCompleted int
	NodeResults    []NodeResult
}
