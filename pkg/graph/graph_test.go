package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func settingsFor(k Kind) map[string]interface{} {
	switch k {
	case KindManualInput:
		return map[string]interface{}{"data": []interface{}{}}
	case KindFilter:
		return map[string]interface{}{"filter_expression": "a > 1"}
	case KindFormula:
		return map[string]interface{}{"formula": "b = a * 2"}
	default:
		return map[string]interface{}{}
	}
}

func newLinearChain(t *testing.T) (*FlowGraph, int64, int64, int64) {
	t.Helper()
	g := New(1, "/tmp/cache", DefaultFlowSettings())

	a, err := g.AddNode(NodePromise{Kind: KindManualInput})
	require.NoError(t, err)
	b, err := g.AddNode(NodePromise{Kind: KindFilter})
	require.NoError(t, err)
	c, err := g.AddNode(NodePromise{Kind: KindFormula})
	require.NoError(t, err)

	require.NoError(t, g.SetNodeSettings(a, settingsFor(KindManualInput), nil))
	require.NoError(t, g.SetNodeSettings(b, settingsFor(KindFilter), nil))
	require.NoError(t, g.SetNodeSettings(c, settingsFor(KindFormula), nil))

	require.NoError(t, g.Connect(a, b, SlotMain, nil))
	require.NoError(t, g.Connect(b, c, SlotMain, nil))

	return g, a, b, c
}

func TestFlowGraph_AddNode_AssignsIDAndDefaults(t *testing.T) {
	g := New(1, "/tmp/cache", DefaultFlowSettings())
	id, err := g.AddNode(NodePromise{Kind: KindFilter})
	require.NoError(t, err)

	node, err := g.Node(id)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, node.State)
	assert.False(t, node.IsCorrect)
	assert.Empty(t, node.Fingerprint)
}

func TestFlowGraph_SetNodeSettings_ValidatesAndPropagates(t *testing.T) {
	g, a, b, c := newLinearChain(t)

	nodeA, _ := g.Node(a)
	nodeB, _ := g.Node(b)
	nodeC, _ := g.Node(c)
	assert.True(t, nodeA.IsCorrect)
	assert.True(t, nodeB.IsCorrect)
	assert.True(t, nodeC.IsCorrect)

	err := g.SetNodeSettings(b, map[string]interface{}{}, nil)
	require.Error(t, err)

	nodeB, _ = g.Node(b)
	nodeC, _ = g.Node(c)
	assert.False(t, nodeB.IsCorrect)
	assert.False(t, nodeC.IsCorrect, "descendants of an incorrect node must also become incorrect")
}

func TestFlowGraph_Connect_RejectsCycle(t *testing.T) {
	g, a, b, c := newLinearChain(t)

	err := g.Connect(c, a, SlotMain, nil)
	assert.ErrorIs(t, err, ErrCycleDetected)
	assert.Len(t, g.Edges(), 2, "graph is unchanged after a failed mutation")
}

func TestFlowGraph_Connect_RejectsSlotConflict(t *testing.T) {
	g, a, b, _ := newLinearChain(t)

	other, err := g.AddNode(NodePromise{Kind: KindManualInput})
	require.NoError(t, err)
	require.NoError(t, g.SetNodeSettings(other, settingsFor(KindManualInput), nil))

	err = g.Connect(other, b, SlotMain, nil)
	require.NoError(t, err, "MAIN accepts multiple inputs")

	join, err := g.AddNode(NodePromise{Kind: KindJoin})
	require.NoError(t, err)
	require.NoError(t, g.Connect(a, join, SlotLeft, nil))
	err = g.Connect(b, join, SlotLeft, nil)
	assert.ErrorIs(t, err, ErrSlotOccupied)
}

func TestFlowGraph_Connect_RejectsShapeMismatch(t *testing.T) {
	g, a, _, c := newLinearChain(t)
	err := g.Connect(a, c, SlotLeft, nil)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestFlowGraph_DeleteNode_DetachesEdgesAndInvalidatesDescendants(t *testing.T) {
	g, _, b, c := newLinearChain(t)

	var invalidated []int64
	require.NoError(t, g.DeleteNode(b, func(id int64) { invalidated = append(invalidated, id) }))

	_, err := g.Node(b)
	assert.ErrorIs(t, err, ErrNodeNotFound)

	nodeC, _ := g.Node(c)
	assert.False(t, nodeC.IsCorrect, "c lost its only input")
	assert.Contains(t, invalidated, c)
}

func TestFlowGraph_TopologicalRootsAndLeadsTo(t *testing.T) {
	g, a, b, c := newLinearChain(t)

	roots := g.TopologicalRoots()
	assert.Equal(t, []int64{a}, roots)

	reachable := g.LeadsTo(a)
	assert.ElementsMatch(t, []int64{a, b, c}, reachable)
}

func TestFlowGraph_EmptyGraph(t *testing.T) {
	g := New(1, "/tmp/cache", DefaultFlowSettings())
	assert.Empty(t, g.Nodes())
	assert.Empty(t, g.Edges())
	assert.Empty(t, g.TopologicalRoots())
}
