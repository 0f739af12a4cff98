// Package scheduler implements the dependency-aware concurrent runner (C4):
// a bounded worker pool pulling eligible nodes off a pending-count graph
// produced by pkg/planner, dispatching each to the right backend, and
// reporting run statistics.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/smilemakc/flowfile/pkg/fingerprint"
	"github.com/smilemakc/flowfile/pkg/graph"
	"github.com/smilemakc/flowfile/pkg/planner"
)

// Runner owns the shared state (fingerprint cache, keyed lock, dispatch
// backends, retry policy) used to execute any number of runs. One Runner
// typically backs one flow; independent flows use independent Runners so
// there is no shared global pool at the flow level (§5).
type Runner struct {
	Dispatchers Dispatchers
	Cache       *fingerprint.Cache
	Mutex       *fingerprint.Mutex
	RetryPolicy *RetryPolicy
	Conditions  *ConditionEvaluator
}

// NewRunner builds a Runner with a no-retry policy; set RetryPolicy
// afterward to enable retries.
func NewRunner(dispatchers Dispatchers, cache *fingerprint.Cache, mutex *fingerprint.Mutex) *Runner {
	return &Runner{
		Dispatchers: dispatchers,
		Cache:       cache,
		Mutex:       mutex,
		RetryPolicy: NoRetryPolicy(),
		Conditions:  NewConditionEvaluator(),
	}
}

// runState is the mutable bookkeeping for one in-flight run, guarded by mu.
type runState struct {
	mu           sync.Mutex
	pendingCount map[int64]int
	successors   map[int64][]int64
	nodeByID     map[int64]*graph.Node
	results      map[int64]*NodeResult
	remaining    int
}

// Run executes plan against g until every in-plan node completes, fails, or
// is skipped, or until ctx/runDeadline/token fires. It holds the graph's run
// lock for its duration (BeginRun/EndRun), rejecting concurrent runs of the
// same flow.
func (r *Runner) Run(ctx context.Context, g *graph.FlowGraph, plan *planner.ExecutionPlan, token *CancelToken, runDeadline time.Duration) (*RunInformation, error) {
	if !g.BeginRun() {
		return nil, fmt.Errorf("scheduler: a run is already in progress for flow %d", g.FlowID)
	}
	defer g.EndRun()

	if runDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runDeadline)
		defer cancel()
	}
	if token == nil {
		token = NewCancelToken()
	}
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			token.Cancel()
		case <-token.Done():
		case <-stop:
		}
	}()

	nodeByID := make(map[int64]*graph.Node, len(plan.DepGraph.PendingCount))
	for _, n := range g.Nodes() {
		nodeByID[n.ID] = n
	}

	st := &runState{
		pendingCount: make(map[int64]int, len(plan.DepGraph.PendingCount)),
		successors:   plan.DepGraph.Successors,
		nodeByID:     nodeByID,
		results:      make(map[int64]*NodeResult, len(plan.DepGraph.PendingCount)),
		remaining:    len(plan.DepGraph.PendingCount),
	}
	for id, c := range plan.DepGraph.PendingCount {
		st.pendingCount[id] = c
	}

	poolSize := g.Settings.MaxParallelWorkers
	if poolSize <= 0 {
		poolSize = 4
	}

	total := len(plan.DepGraph.PendingCount)
	readyCh := make(chan int64, total+1)
	for _, id := range plan.DepGraph.InitialReady {
		readyCh <- id
	}
	if total == 0 {
		close(readyCh)
	}

	var wg sync.WaitGroup
	for i := 0; i < poolSize; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for nodeID := range readyCh {
				r.executeAndAdvance(ctx, g, st, nodeID, token, readyCh)
			}
		}()
	}
	wg.Wait()

	// plan.SkipNodes never entered the dep graph at all (§3's is_correct=false
	// nodes and their descendants), so they have no st.results entry yet; §7
	// requires the run summary to enumerate every node's outcome regardless.
	for id := range plan.SkipNodes {
		if _, done := st.results[id]; done {
			continue
		}
		n := nodeByID[id]
		reason := "upstream_broken"
		var kind graph.Kind
		if n != nil {
			kind = n.Kind
			if !n.IsCorrect {
				reason = "settings_invalid"
			}
			n.State = graph.StateSkipped
		}
		st.results[id] = &NodeResult{NodeID: id, Kind: kind, State: graph.StateSkipped, Error: reason}
	}

	ids := make([]int64, 0, len(st.results))
	for id := range st.results {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	info := &RunInformation{FlowID: g.FlowID, Success: true, Cancelled: token.Cancelled()}
	for _, id := range ids {
		res := *st.results[id]
		info.NodeResults = append(info.NodeResults, res)
		if res.Success {
			info.NodesCompleted++
		} else if res.State == graph.StateFailed {
			info.Success = false
		}
	}
	return info, nil
}

// executeAndAdvance runs one node to completion, then — holding st.mu for
// the whole bookkeeping step — records its result, cascades SKIPPED
// (upstream_failed) to its pending descendants on failure, or decrements
// pending_count and enqueues newly-ready successors on success. Closing
// readyCh only when remaining hits zero under the same lock is what makes
// this race-free: no node can still be in flight when remaining reaches 0.
func (r *Runner) executeAndAdvance(ctx context.Context, g *graph.FlowGraph, st *runState, nodeID int64, token *CancelToken, readyCh chan int64) {
	node := st.nodeByID[nodeID]
	result := r.executeNode(ctx, g, st, node, token)

	st.mu.Lock()
	defer st.mu.Unlock()

	st.results[nodeID] = result
	st.remaining--

	if !result.Success {
		for _, descID := range collectPendingDescendants(st, nodeID) {
			st.results[descID] = &NodeResult{
				NodeID: descID,
				Kind:   st.nodeByID[descID].Kind,
				State:  graph.StateSkipped,
				Error:  "upstream_failed",
			}
			st.nodeByID[descID].State = graph.StateSkipped
			st.remaining--
		}
	} else {
		for _, succ := range st.successors[nodeID] {
			if _, done := st.results[succ]; done {
				continue
			}
			st.pendingCount[succ]--
			if st.pendingCount[succ] == 0 {
				readyCh <- succ
			}
		}
	}

	if st.remaining == 0 {
		close(readyCh)
	}
}

// collectPendingDescendants walks st.successors from id and returns every
// reachable node not yet present in st.results. Must be called with st.mu
// held.
func collectPendingDescendants(st *runState, id int64) []int64 {
	var out []int64
	visited := map[int64]bool{}
	var walk func(int64)
	walk = func(cur int64) {
		for _, succ := range st.successors[cur] {
			if visited[succ] {
				continue
			}
			visited[succ] = true
			if _, done := st.results[succ]; !done {
				out = append(out, succ)
			}
			walk(succ)
		}
	}
	walk(id)
	return out
}

// executeNode implements §4.4's six-step single-node execution.
func (r *Runner) executeNode(ctx context.Context, g *graph.FlowGraph, st *runState, node *graph.Node, token *CancelToken) *NodeResult {
	start := time.Now()
	res := &NodeResult{NodeID: node.ID, Kind: node.Kind, StartTS: start, UpstreamHash: node.Fingerprint}

	// Checked before dispatch, per the cancellation contract in §4.4/§5.
	if token.Cancelled() || ctx.Err() != nil {
		res.EndTS = time.Now()
		res.State = graph.StateSkipped
		res.Error = "cancelled"
		node.State = graph.StateSkipped
		return res
	}

	fp := node.Fingerprint

	// Step 1: cache check.
	if entry, ok := r.lookupCache(g.FlowID, fp); ok {
		return r.sealResult(res, node, entry, true)
	}

	// Step 2: acquire FingerprintMutex[fp(N)]; re-check after acquiring in
	// case another task sealed it while we waited.
	release := r.Mutex.Lock(fp)
	defer release()

	if entry, ok := r.lookupCache(g.FlowID, fp); ok {
		return r.sealResult(res, node, entry, true)
	}

	// Step 3: gather input results.
	preds := node.Inputs.All()
	inputs := make([]Input, 0, len(preds))
	for _, pred := range preds {
		predNode := st.nodeByID[pred]
		entry, _ := r.lookupCache(g.FlowID, predNode.Fingerprint)
		inputs = append(inputs, Input{NodeID: pred, Fingerprint: predNode.Fingerprint, Result: entry})
	}

	// Optional conditional guard: settings["when"] skips dispatch (and, via
	// the normal failure cascade, every pending descendant) without failing
	// the run, the same non-fatal treatment as an optional node's timeout.
	if cond, ok := node.Settings["when"].(string); ok && cond != "" && r.Conditions != nil {
		pass, cerr := r.Conditions.Evaluate(cond, inputs)
		if cerr != nil {
			res.State = graph.StateFailed
			res.Error = cerr.Error()
			node.State = graph.StateFailed
			node.LastError = cerr.Error()
			return res
		}
		if !pass {
			res.State = graph.StateSkipped
			res.Error = "condition_false"
			node.State = graph.StateSkipped
			return res
		}
	}

	// Step 4: dispatch, with retry and optional per-node timeout.
	node.State = graph.StateRunning
	dispatcher := r.Dispatchers.Route(node, g.Settings)
	if dispatcher == nil {
		dispatcher = unhealthyDispatcher{fmt.Errorf("scheduler: no dispatcher configured for node kind %s", node.Kind)}
	}

	execCtx := ctx
	if d := nodeTimeout(node); d > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	policy := r.RetryPolicy
	if policy == nil {
		policy = NoRetryPolicy()
	}

	var out fingerprint.Entry
	err := policy.Execute(execCtx, func() error {
		var derr error
		out, derr = dispatcher.Dispatch(execCtx, node, inputs)
		return derr
	})

	res.EndTS = time.Now()

	if err != nil {
		timedOut := execCtx.Err() == context.DeadlineExceeded
		// §4.4: on expiry the node is cancelled; the run continues only if
		// the node is both non-caching and optional, otherwise it fails.
		if timedOut && !node.CacheResults && isOptional(node) {
			res.State = graph.StateSkipped
			res.Error = "timeout"
			node.State = graph.StateSkipped
			return res
		}
		res.State = graph.StateFailed
		res.Error = err.Error()
		node.State = graph.StateFailed
		node.LastError = err.Error()
		return res
	}

	// Steps 5/6: seal the cache entry and transition to DONE.
	entry := out
	r.Cache.PutMemory(g.FlowID, fp, &entry)
	return r.sealResult(res, node, out, false)
}

func (r *Runner) sealResult(res *NodeResult, node *graph.Node, entry fingerprint.Entry, cached bool) *NodeResult {
	res.EndTS = time.Now()
	res.Success = true
	res.WasCached = cached
	res.State = graph.StateDone
	node.State = graph.StateDone
	if entry.FilePath != "" {
		node.ResultRef = entry.FilePath
	} else if entry.ExternalRef != "" {
		node.ResultRef = entry.ExternalRef
	}
	return res
}

func (r *Runner) lookupCache(flowID int64, fp string) (fingerprint.Entry, bool) {
	if fp == "" {
		return fingerprint.Entry{}, false
	}
	if e, ok := r.Cache.GetMemory(flowID, fp); ok {
		return *e, true
	}
	if r.Cache.HasDisk(flowID, fp) {
		return fingerprint.Entry{Kind: fingerprint.ResultMaterialisedTable, FilePath: r.Cache.DiskPath(flowID, fp)}, true
	}
	return fingerprint.Entry{}, false
}

// nodeTimeout reads an optional per-node deadline from settings["timeout_seconds"].
func nodeTimeout(n *graph.Node) time.Duration {
	v, ok := n.Settings["timeout_seconds"]
	if !ok {
		return 0
	}
	switch t := v.(type) {
	case float64:
		if t > 0 {
			return time.Duration(t * float64(time.Second))
		}
	case int:
		if t > 0 {
			return time.Duration(t) * time.Second
		}
	}
	return 0
}

// isOptional reads settings["optional"], defaulting to false.
func isOptional(n *graph.Node) bool {
	v, ok := n.Settings["optional"]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}
