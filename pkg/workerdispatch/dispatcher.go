package workerdispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/smilemakc/flowfile/pkg/fingerprint"
	"github.com/smilemakc/flowfile/pkg/graph"
	"github.com/smilemakc/flowfile/pkg/scheduler"
)

// WorkerDispatcher adapts Client to scheduler.Dispatcher, so the runner can
// route heavy operations and materialisation requests to the worker pool
// without knowing anything about the WebSocket protocol underneath.
type WorkerDispatcher struct {
	Client   *Client
	URL      string
	Registry *Registry
}

// NewWorkerDispatcher wires a Client against a fixed worker endpoint.
func NewWorkerDispatcher(url string) *WorkerDispatcher {
	return &WorkerDispatcher{Client: NewClient(), URL: url, Registry: NewRegistry()}
}

// Dispatch implements scheduler.Dispatcher.
func (w *WorkerDispatcher) Dispatch(ctx context.Context, node *graph.Node, inputs []scheduler.Input) (fingerprint.Entry, error) {
	taskID := TaskID(node.Fingerprint)
	op := operationFor(node)

	plan, err := composePlan(node, inputs)
	if err != nil {
		return fingerprint.Entry{}, fmt.Errorf("workerdispatch: compose plan for node %d: %w", node.ID, err)
	}

	w.Registry.Start(taskID)

	req := SubmitRequest{
		TaskID:    taskID,
		Operation: op,
		NodeID:    node.ID,
		Plan:      [][]byte{plan},
		Kwargs:    node.Settings,
	}
	if op == OpFuzzyMatch && len(inputs) == 2 {
		leftPlan, _ := json.Marshal(inputs[0])
		rightPlan, _ := json.Marshal(inputs[1])
		req.Plan = [][]byte{leftPlan, rightPlan}
	}

	result, err := w.Client.Submit(ctx, w.URL, req)
	if err != nil {
		w.Registry.Fail(taskID, err)
		return fingerprint.Entry{}, err
	}
	w.Registry.Complete(taskID, result)

	entry := fingerprint.Entry{Kind: fingerprint.ResultMaterialisedTable, FilePath: result.FileRef}
	if result.ResultType != "polars" {
		entry.Kind = fingerprint.ResultExternalRef
		entry.ExternalRef = result.FileRef
	}
	return entry, nil
}

// operationFor maps a node kind to the worker operation that realises it,
// per the normative list in §4.5.
func operationFor(node *graph.Node) Operation {
	switch node.Kind {
	case graph.KindFuzzyMatch:
		return OpFuzzyMatch
	case graph.KindOutput:
		return OpWriteOutput
	default:
		return OpStore
	}
}

// composePlan serialises the node's settings and resolved input
// fingerprints into the opaque bytes the worker receives as the binary
// plan frame. The concrete lazy-plan representation belongs to the
// dataframe engine the worker wraps, out of this core's scope; this JSON
// envelope is the wire-stable stand-in the core controls end to end.
func composePlan(node *graph.Node, inputs []scheduler.Input) ([]byte, error) {
	type lazyPlan struct {
		Kind     graph.Kind             `json:"kind"`
		Settings map[string]interface{} `json:"settings"`
		Inputs   []scheduler.Input      `json:"inputs"`
	}
	return json.Marshal(lazyPlan{Kind: node.Kind, Settings: node.Settings, Inputs: inputs})
}
