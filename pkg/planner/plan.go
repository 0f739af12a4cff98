// Package planner computes a pure, side-effect-free ExecutionPlan from a
// flow graph: the skip set, the topologically layered stages, and the
// dependency graph the scheduler consumes (C3).
package planner

import (
	"errors"
	"sort"

	"github.com/smilemakc/flowfile/pkg/graph"
)

// ErrCycleDetected mirrors graph.ErrCycleDetected but is raised when a
// cycle surfaces during staging, which should be unreachable if the graph
// invariants were enforced at mutation time — its presence here is a
// defensive check against a violated invariant.
var ErrCycleDetected = errors.New("cycle detected during staging")

// Stage is an ordered list of node ids with zero unresolved deps once all
// prior stages complete.
type Stage []int64

// DepGraph is the dependency-aware structure consumed by the scheduler.
type DepGraph struct {
	PendingCount map[int64]int
	Successors   map[int64][]int64
	InitialReady []int64
}

// ExecutionPlan is the planner's complete, immutable output for one run.
type ExecutionPlan struct {
	SkipNodes map[int64]bool
	Stages    []Stage
	DepGraph  DepGraph
}

// Build computes the plan for g, restricted to nodes reachable from
// flowStarts. An empty flowStarts defaults to every zero-in-degree node.
// Build has no side effects and runs in O(V+E).
func Build(g *graph.FlowGraph, flowStarts []int64) (*ExecutionPlan, error) {
	nodes := g.Nodes()
	nodeByID := make(map[int64]*graph.Node, len(nodes))
	for _, n := range nodes {
		nodeByID[n.ID] = n
	}

	successors := make(map[int64][]int64, len(nodes))
	predecessors := make(map[int64][]int64, len(nodes))
	for _, n := range nodes {
		for _, pred := range n.Inputs.All() {
			successors[pred] = append(successors[pred], n.ID)
			predecessors[n.ID] = append(predecessors[n.ID], pred)
		}
	}

	skip := computeSkipSet(nodes, successors)

	roots := flowStarts
	if len(roots) == 0 {
		for _, n := range nodes {
			if len(predecessors[n.ID]) == 0 {
				roots = append(roots, n.ID)
			}
		}
	}

	inPlan := reachable(roots, successors, skip)

	stages, depGraph, err := stageKahn(inPlan, predecessors, successors)
	if err != nil {
		return nil, err
	}

	return &ExecutionPlan{
		SkipNodes: skip,
		Stages:    stages,
		DepGraph:  depGraph,
	}, nil
}

// computeSkipSet marks every is_correct=false node as skipped and
// transitively propagates skip to all descendants.
func computeSkipSet(nodes []*graph.Node, successors map[int64][]int64) map[int64]bool {
	skip := make(map[int64]bool)
	var queue []int64
	for _, n := range nodes {
		if !n.IsCorrect {
			skip[n.ID] = true
			queue = append(queue, n.ID)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, succ := range successors[id] {
			if !skip[succ] {
				skip[succ] = true
				queue = append(queue, succ)
			}
		}
	}
	return skip
}

// reachable returns the set of non-skipped node ids reachable from roots.
func reachable(roots []int64, successors map[int64][]int64, skip map[int64]bool) map[int64]bool {
	in := make(map[int64]bool)
	var walk func(int64)
	walk = func(id int64) {
		if skip[id] || in[id] {
			return
		}
		in[id] = true
		for _, succ := range successors[id] {
			walk(succ)
		}
	}
	for _, r := range roots {
		walk(r)
	}
	return in
}

// stageKahn lays nodes into stages by Kahn's algorithm, in-degrees computed
// over edges restricted to the in-plan set.
func stageKahn(inPlan map[int64]bool, predecessors, successors map[int64][]int64) ([]Stage, DepGraph, error) {
	inDegree := make(map[int64]int, len(inPlan))
	for id := range inPlan {
		count := 0
		for _, p := range predecessors[id] {
			if inPlan[p] {
				count++
			}
		}
		inDegree[id] = count
	}

	filteredSuccessors := make(map[int64][]int64, len(inPlan))
	for id := range inPlan {
		for _, s := range successors[id] {
			if inPlan[s] {
				filteredSuccessors[id] = append(filteredSuccessors[id], s)
			}
		}
	}

	pendingCount := make(map[int64]int, len(inDegree))
	for id, d := range inDegree {
		pendingCount[id] = d
	}

	var stages []Stage
	var initialReady []int64
	remaining := len(inPlan)
	working := make(map[int64]int, len(inDegree))
	for k, v := range inDegree {
		working[k] = v
	}

	processed := 0
	for processed < remaining {
		var stage Stage
		for id, d := range working {
			if d == 0 {
				stage = append(stage, id)
			}
		}
		if len(stage) == 0 {
			return nil, DepGraph{}, ErrCycleDetected
		}
		sort.Slice(stage, func(i, j int) bool { return stage[i] < stage[j] })

		if len(stages) == 0 {
			initialReady = append(initialReady, stage...)
		}

		for _, id := range stage {
			delete(working, id)
			processed++
			for _, succ := range filteredSuccessors[id] {
				working[succ]--
			}
		}
		stages = append(stages, stage)
	}

	return stages, DepGraph{
		PendingCount: pendingCount,
		Successors:   filteredSuccessors,
		InitialReady: initialReady,
	}, nil
}
