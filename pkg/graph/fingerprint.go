package graph

import (
	"fmt"
	"sort"

	"github.com/smilemakc/flowfile/pkg/fingerprint"
)

// RecomputeFingerprints walks g in topological order and assigns
// fp(N) = SHA256(kind ‖ canonical_bytes(settings) ‖ sorted(fp(i) for i in
// inputs(N))) to every node's Fingerprint field, per §4.2. A run must call
// this before pkg/scheduler.Runner.Run: the scheduler reads node.Fingerprint
// as an already-sealed value and never computes it itself. Root nodes (no
// inputs) fingerprint over an empty input list.
func (g *FlowGraph) RecomputeFingerprints() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	order, err := g.topologicalOrderLocked()
	if err != nil {
		return err
	}

	for _, id := range order {
		n := g.nodes[id]
		preds := n.Inputs.All()
		inputFPs := make([]string, len(preds))
		for i, p := range preds {
			pn := g.nodes[p]
			if pn == nil {
				return fmt.Errorf("graph: fingerprint node %d: missing predecessor %d", id, p)
			}
			inputFPs[i] = pn.Fingerprint
		}

		fp, err := fingerprint.Compute(string(n.Kind), n.Settings, inputFPs)
		if err != nil {
			return fmt.Errorf("graph: fingerprint node %d: %w", id, err)
		}
		n.Fingerprint = fp
	}
	return nil
}

// topologicalOrderLocked returns every node id in an order where each node
// follows all of its predecessors. Requires g.mu already held.
func (g *FlowGraph) topologicalOrderLocked() ([]int64, error) {
	indegree := make(map[int64]int, len(g.nodes))
	for id, n := range g.nodes {
		indegree[id] = len(n.Inputs.All())
	}

	var queue []int64
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Slice(queue, func(i, j int) bool { return queue[i] < queue[j] })

	order := make([]int64, 0, len(g.nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		n := g.nodes[id]
		var ready []int64
		for succ := range n.Outputs {
			indegree[succ]--
			if indegree[succ] == 0 {
				ready = append(ready, succ)
			}
		}
		sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
		queue = append(queue, ready...)
	}

	if len(order) != len(g.nodes) {
		return nil, ErrCycleDetected
	}
	return order, nil
}
