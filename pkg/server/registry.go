package server

import (
	"sync"

	"github.com/smilemakc/flowfile/pkg/graph"
	"github.com/smilemakc/flowfile/pkg/models"
	"github.com/smilemakc/flowfile/pkg/scheduler"
)

// flowEntry is what the registry keeps per loaded flow: the live graph, its
// display name, and the bookkeeping for whichever run is in flight or most
// recently finished. Per spec §1's non-goal "persisting flow definitions",
// this is a plain in-memory value, never written to disk or a database —
// the design notes' "pass a Registry value explicitly; avoid global mutable
// state" strategy, scoped to one *FlowRegistry per server instance.
type flowEntry struct {
	name   string
	graph  *graph.FlowGraph
	record *models.RunRecord
	cancel *scheduler.CancelToken
}

// FlowRegistry is the server's in-memory table of loaded flows, guarded by
// a single RWMutex since flow counts are small and operations are short.
type FlowRegistry struct {
	mu     sync.RWMutex
	nextID int64
	flows  map[int64]*flowEntry
}

// NewFlowRegistry returns an empty registry.
func NewFlowRegistry() *FlowRegistry {
	return &FlowRegistry{flows: make(map[int64]*flowEntry)}
}

// Put registers g under its own FlowID, overwriting any prior graph and
// run history for that id — reloading a flow file starts it fresh.
func (reg *FlowRegistry) Put(name string, g *graph.FlowGraph) int64 {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.flows[g.FlowID] = &flowEntry{name: name, graph: g}
	if g.FlowID >= reg.nextID {
		reg.nextID = g.FlowID + 1
	}
	return g.FlowID
}

// NextID reserves an id for a flow file that does not carry its own, e.g.
// one freshly authored by a UI client.
func (reg *FlowRegistry) NextID() int64 {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.nextID++
	return reg.nextID
}

// Graph returns the live graph for flowID.
func (reg *FlowRegistry) Graph(flowID int64) (*graph.FlowGraph, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	e, ok := reg.flows[flowID]
	if !ok {
		return nil, false
	}
	return e.graph, true
}

// Name returns the display name for flowID.
func (reg *FlowRegistry) Name(flowID int64) (string, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	e, ok := reg.flows[flowID]
	if !ok {
		return "", false
	}
	return e.name, true
}

// StartRun creates a pending RunRecord and cancel token for flowID,
// replacing whatever the previous run left behind, and returns both.
func (reg *FlowRegistry) StartRun(flowID int64) (*models.RunRecord, *scheduler.CancelToken, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	e, ok := reg.flows[flowID]
	if !ok {
		return nil, nil, false
	}
	e.record = models.NewRunRecord(flowID)
	e.record.Status = models.RunStatusRunning
	e.cancel = scheduler.NewCancelToken()
	return e.record, e.cancel, true
}

// RunStatus returns the most recent run record for flowID.
func (reg *FlowRegistry) RunStatus(flowID int64) (*models.RunRecord, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	e, ok := reg.flows[flowID]
	if !ok || e.record == nil {
		return nil, false
	}
	return e.record, true
}

// Cancel signals the in-flight run for flowID, if any. Returns false if
// the flow is unknown or has no active run.
func (reg *FlowRegistry) Cancel(flowID int64) bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	e, ok := reg.flows[flowID]
	if !ok || e.cancel == nil {
		return false
	}
	e.cancel.Cancel()
	return true
}
