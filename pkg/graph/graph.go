package graph

import (
	"sort"
	"sync"
)

// FlowGraph owns a flow's node map, edge multiset and settings. Mutations
// are serialised by an internal mutex. BeginRun/EndRun mark a run in
// progress so that a second concurrent run is refused; the mutation
// methods do not consult that mark and are not rejected during a run.
type FlowGraph struct {
	mu       sync.RWMutex
	FlowID   int64
	CacheDir string
	Settings FlowSettings

	nodes   map[int64]*Node
	edges   []Edge
	nextID  int64
	running bool
}

// New creates an empty flow graph.
func New(flowID int64, cacheDir string, settings FlowSettings) *FlowGraph {
	return &FlowGraph{
		FlowID:   flowID,
		CacheDir: cacheDir,
		Settings: settings,
		nodes:    make(map[int64]*Node),
	}
}

// AddNode inserts a promise. State = IDLE, fingerprint empty, is_correct
// false until settings are supplied.
func (g *FlowGraph) AddNode(p NodePromise) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := p.ID
	if id == 0 {
		g.nextID++
		id = g.nextID
	} else if id > g.nextID {
		g.nextID = id
	}
	if _, exists := g.nodes[id]; exists {
		return 0, &ValidationError{Field: "id", Reason: "node id already exists"}
	}

	g.nodes[id] = &Node{
		ID:          id,
		Kind:        p.Kind,
		Settings:    map[string]interface{}{},
		Outputs:     map[int64]struct{}{},
		State:       StateIdle,
		Description: p.Description,
		PositionX:   p.PositionX,
		PositionY:   p.PositionY,
	}
	return id, nil
}

// SetNodeSettings validates settings structurally; on success it assigns
// them, recomputes the fingerprint (via the caller-supplied hasher since
// fingerprinting is owned by pkg/fingerprint) and invalidates descendants.
// The invalidate callback is called once per node id that must have its
// cache entries pruned (N and every transitive descendant).
func (g *FlowGraph) SetNodeSettings(nodeID int64, settings map[string]interface{}, invalidate func(nodeID int64)) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[nodeID]
	if !ok {
		return ErrNodeNotFound
	}

	if errs := Validate(node.Kind, settings); len(errs) > 0 {
		node.IsCorrect = false
		for succ := range node.Outputs {
			g.propagateCorrectnessLocked(succ)
		}
		return errs
	}

	node.Settings = settings
	g.recomputeCorrectnessLocked(node)

	for _, id := range g.descendantsLocked(nodeID, true) {
		if invalidate != nil {
			invalidate(id)
		}
	}
	g.propagateCorrectnessLocked(nodeID)
	return nil
}

// Connect adds an edge, rejecting cycles, slot conflicts and shape
// mismatches. On success it invalidates downstream fingerprints via the
// supplied callback.
func (g *FlowGraph) Connect(fromID, toID int64, slot Slot, invalidate func(nodeID int64)) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	from, ok := g.nodes[fromID]
	if !ok {
		return ErrNodeNotFound
	}
	to, ok := g.nodes[toID]
	if !ok {
		return ErrNodeNotFound
	}

	shape := Shape(to.Kind)
	switch slot {
	case SlotMain:
		if !shape.Main {
			return ErrShapeMismatch
		}
		for _, m := range to.Inputs.Main {
			if m == fromID {
				return ErrSlotOccupied
			}
		}
	case SlotLeft:
		if !shape.Left {
			return ErrShapeMismatch
		}
		if to.Inputs.Left != nil {
			return ErrSlotOccupied
		}
	case SlotRight:
		if !shape.Right {
			return ErrShapeMismatch
		}
		if to.Inputs.Right != nil {
			return ErrSlotOccupied
		}
	default:
		return ErrShapeMismatch
	}

	if g.wouldCreateCycleLocked(fromID, toID) {
		return ErrCycleDetected
	}

	switch slot {
	case SlotMain:
		to.Inputs.Main = append(to.Inputs.Main, fromID)
	case SlotLeft:
		id := fromID
		to.Inputs.Left = &id
	case SlotRight:
		id := fromID
		to.Inputs.Right = &id
	}
	from.Outputs[toID] = struct{}{}
	g.edges = append(g.edges, Edge{From: fromID, To: toID, Slot: slot})

	g.propagateCorrectnessLocked(toID)
	for _, id := range g.descendantsLocked(toID, true) {
		if invalidate != nil {
			invalidate(id)
		}
	}
	return nil
}

// Disconnect removes an edge, symmetric to Connect.
func (g *FlowGraph) Disconnect(fromID, toID int64, slot Slot, invalidate func(nodeID int64)) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	to, ok := g.nodes[toID]
	if !ok {
		return ErrNodeNotFound
	}
	from, ok := g.nodes[fromID]
	if !ok {
		return ErrNodeNotFound
	}

	found := false
	switch slot {
	case SlotMain:
		for i, m := range to.Inputs.Main {
			if m == fromID {
				to.Inputs.Main = append(to.Inputs.Main[:i], to.Inputs.Main[i+1:]...)
				found = true
				break
			}
		}
	case SlotLeft:
		if to.Inputs.Left != nil && *to.Inputs.Left == fromID {
			to.Inputs.Left = nil
			found = true
		}
	case SlotRight:
		if to.Inputs.Right != nil && *to.Inputs.Right == fromID {
			to.Inputs.Right = nil
			found = true
		}
	}
	if !found {
		return ErrEdgeNotFound
	}

	delete(from.Outputs, toID)
	for i, e := range g.edges {
		if e.From == fromID && e.To == toID && e.Slot == slot {
			g.edges = append(g.edges[:i], g.edges[i+1:]...)
			break
		}
	}

	g.propagateCorrectnessLocked(toID)
	for _, id := range g.descendantsLocked(toID, true) {
		if invalidate != nil {
			invalidate(id)
		}
	}
	return nil
}

// DeleteNode removes all incident edges and the node itself; downstream
// nodes that now have a missing input become is_correct = false.
func (g *FlowGraph) DeleteNode(nodeID int64, invalidate func(nodeID int64)) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[nodeID]
	if !ok {
		return ErrNodeNotFound
	}

	descendants := g.descendantsLocked(nodeID, false)

	for succID := range node.Outputs {
		succ := g.nodes[succID]
		if succ == nil {
			continue
		}
		filtered := succ.Inputs.Main[:0]
		for _, m := range succ.Inputs.Main {
			if m != nodeID {
				filtered = append(filtered, m)
			}
		}
		succ.Inputs.Main = filtered
		if succ.Inputs.Left != nil && *succ.Inputs.Left == nodeID {
			succ.Inputs.Left = nil
		}
		if succ.Inputs.Right != nil && *succ.Inputs.Right == nodeID {
			succ.Inputs.Right = nil
		}
	}
	for _, pred := range node.Inputs.All() {
		if p := g.nodes[pred]; p != nil {
			delete(p.Outputs, nodeID)
		}
	}

	remaining := g.edges[:0]
	for _, e := range g.edges {
		if e.From != nodeID && e.To != nodeID {
			remaining = append(remaining, e)
		}
	}
	g.edges = remaining
	delete(g.nodes, nodeID)

	for _, id := range descendants {
		g.propagateCorrectnessLocked(id)
		if invalidate != nil {
			invalidate(id)
		}
	}
	return nil
}

// Nodes returns a snapshot slice of all nodes, unordered.
func (g *FlowGraph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	return out
}

// Edges returns a snapshot slice of all edges.
func (g *FlowGraph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Node returns a single node by id.
func (g *FlowGraph) Node(id int64) (*Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	return n, nil
}

// TopologicalRoots returns nodes with no predecessors.
func (g *FlowGraph) TopologicalRoots() []int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var roots []int64
	for id, n := range g.nodes {
		if len(n.Inputs.All()) == 0 {
			roots = append(roots, id)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })
	return roots
}

// LeadsTo returns the set of node ids reachable from id, inclusive.
func (g *FlowGraph) LeadsTo(id int64) []int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.descendantsLocked(id, true)
}

// BeginRun marks a run in progress and reports false if one already is;
// EndRun clears the mark. Only BeginRun consults it: AddNode, Connect and
// the other mutations still succeed while a run is in progress.
func (g *FlowGraph) BeginRun() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return false
	}
	g.running = true
	return true
}

func (g *FlowGraph) EndRun() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.running = false
}

// descendantsLocked returns all transitive descendants of id. If
// includeSelf is true, id itself is included first.
func (g *FlowGraph) descendantsLocked(id int64, includeSelf bool) []int64 {
	visited := map[int64]bool{}
	var order []int64
	var walk func(int64)
	walk = func(cur int64) {
		n := g.nodes[cur]
		if n == nil {
			return
		}
		for succ := range n.Outputs {
			if !visited[succ] {
				visited[succ] = true
				order = append(order, succ)
				walk(succ)
			}
		}
	}
	if includeSelf {
		order = append(order, id)
	}
	walk(id)
	return order
}

func (g *FlowGraph) wouldCreateCycleLocked(fromID, toID int64) bool {
	if fromID == toID {
		return true
	}
	visited := map[int64]bool{}
	var walk func(int64) bool
	walk = func(cur int64) bool {
		if cur == fromID {
			return true
		}
		if visited[cur] {
			return false
		}
		visited[cur] = true
		n := g.nodes[cur]
		if n == nil {
			return false
		}
		for succ := range n.Outputs {
			if walk(succ) {
				return true
			}
		}
		return false
	}
	return walk(toID)
}

// recomputeCorrectnessLocked sets is_correct for a single node: every input
// slot its kind declares must be connected (at least one MAIN input), settings
// must pass kind validation, and every direct input must itself be is_correct.
func (g *FlowGraph) recomputeCorrectnessLocked(n *Node) {
	shape := Shape(n.Kind)
	if (shape.Main && len(n.Inputs.Main) == 0) || (shape.Left && n.Inputs.Left == nil) || (shape.Right && n.Inputs.Right == nil) {
		n.IsCorrect = false
		return
	}
	for _, pred := range n.Inputs.All() {
		p := g.nodes[pred]
		if p == nil || !p.IsCorrect {
			n.IsCorrect = false
			return
		}
	}
	n.IsCorrect = len(Validate(n.Kind, n.Settings)) == 0
}

// propagateCorrectnessLocked recomputes is_correct for a node and cascades
// to descendants whose correctness could change as a result.
func (g *FlowGraph) propagateCorrectnessLocked(id int64) {
	n := g.nodes[id]
	if n == nil {
		return
	}
	g.recomputeCorrectnessLocked(n)
	for succ := range n.Outputs {
		g.propagateCorrectnessLocked(succ)
	}
}
