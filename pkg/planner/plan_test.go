package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/flowfile/pkg/graph"
)

func buildDiamond(t *testing.T) (*graph.FlowGraph, int64, int64, int64, int64) {
	t.Helper()
	g := graph.New(1, t.TempDir(), graph.DefaultFlowSettings())

	a, err := g.AddNode(graph.NodePromise{Kind: graph.KindManualInput})
	require.NoError(t, err)
	b, err := g.AddNode(graph.NodePromise{Kind: graph.KindFilter})
	require.NoError(t, err)
	c, err := g.AddNode(graph.NodePromise{Kind: graph.KindFilter})
	require.NoError(t, err)
	d, err := g.AddNode(graph.NodePromise{Kind: graph.KindUnion})
	require.NoError(t, err)

	require.NoError(t, g.SetNodeSettings(a, map[string]interface{}{"data": []interface{}{}}, nil))
	require.NoError(t, g.SetNodeSettings(b, map[string]interface{}{"filter_expression": "x"}, nil))
	require.NoError(t, g.SetNodeSettings(c, map[string]interface{}{"filter_expression": "y"}, nil))
	require.NoError(t, g.SetNodeSettings(d, map[string]interface{}{}, nil))

	require.NoError(t, g.Connect(a, b, graph.SlotMain, nil))
	require.NoError(t, g.Connect(a, c, graph.SlotMain, nil))
	require.NoError(t, g.Connect(b, d, graph.SlotMain, nil))
	require.NoError(t, g.Connect(c, d, graph.SlotMain, nil))

	return g, a, b, c, d
}

func TestBuild_DiamondStagesRespectDependencies(t *testing.T) {
	g, a, b, c, d := buildDiamond(t)
	plan, err := Build(g, nil)
	require.NoError(t, err)

	require.Len(t, plan.Stages, 3)
	assert.Equal(t, Stage{a}, plan.Stages[0])
	assert.ElementsMatch(t, []int64{b, c}, plan.Stages[1])
	assert.Equal(t, Stage{d}, plan.Stages[2])

	assert.Equal(t, 0, plan.DepGraph.PendingCount[a])
	assert.Equal(t, 1, plan.DepGraph.PendingCount[b])
	assert.Equal(t, 2, plan.DepGraph.PendingCount[d])
	assert.ElementsMatch(t, []int64{a}, plan.DepGraph.InitialReady)
}

func TestBuild_StageOrderingInvariant(t *testing.T) {
	g, _, _, _, _ := buildDiamond(t)
	plan, err := Build(g, nil)
	require.NoError(t, err)

	depth := make(map[int64]int)
	for i, stage := range plan.Stages {
		for _, id := range stage {
			depth[id] = i
		}
	}
	for id, preds := range invert(plan.DepGraph.Successors) {
		for _, p := range preds {
			assert.LessOrEqual(t, depth[p], depth[id]-1, "every predecessor must be in an earlier stage")
		}
	}
}

func invert(successors map[int64][]int64) map[int64][]int64 {
	preds := make(map[int64][]int64)
	for from, tos := range successors {
		for _, to := range tos {
			preds[to] = append(preds[to], from)
		}
	}
	return preds
}

func TestBuild_SkipSetPropagatesToDescendants(t *testing.T) {
	g := graph.New(1, t.TempDir(), graph.DefaultFlowSettings())
	a, _ := g.AddNode(graph.NodePromise{Kind: graph.KindManualInput})
	b, _ := g.AddNode(graph.NodePromise{Kind: graph.KindFilter})
	require.NoError(t, g.SetNodeSettings(a, map[string]interface{}{"data": []interface{}{}}, nil))
	// b is left with no settings, so it is_correct=false.
	require.NoError(t, g.Connect(a, b, graph.SlotMain, nil))

	plan, err := Build(g, nil)
	require.NoError(t, err)

	assert.True(t, plan.SkipNodes[b])
	require.Len(t, plan.Stages, 1)
	assert.Equal(t, Stage{a}, plan.Stages[0], "a still runs; b is excluded as skipped")
}

func TestBuild_EmptyGraph(t *testing.T) {
	g := graph.New(1, t.TempDir(), graph.DefaultFlowSettings())
	plan, err := Build(g, nil)
	require.NoError(t, err)
	assert.Empty(t, plan.Stages)
}

func TestBuild_SingleIsolatedIncorrectNode(t *testing.T) {
	g := graph.New(1, t.TempDir(), graph.DefaultFlowSettings())
	id, _ := g.AddNode(graph.NodePromise{Kind: graph.KindFilter})

	plan, err := Build(g, nil)
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{id: true}, plan.SkipNodes)
	assert.Empty(t, plan.Stages)
}
