package executor

import (
	"context"
	"fmt"

	"github.com/smilemakc/flowfile/pkg/fingerprint"
	"github.com/smilemakc/flowfile/pkg/graph"
	"github.com/smilemakc/flowfile/pkg/scheduler"
)

// Plan is the in-process lazy representation a builtin composer produces:
// one node's operation wrapped around its resolved inputs, deferred until
// something downstream forces materialisation (pkg/workerdispatch, a
// terminal output node, or an explicit cache_results=true). It mirrors the
// JSON envelope pkg/workerdispatch serialises onto the wire, kept here as a
// plain Go value since nothing crosses a process boundary.
type Plan struct {
	Kind     graph.Kind             `json:"kind"`
	Settings map[string]interface{} `json:"settings"`
	Inputs   []interface{}          `json:"inputs"`
}

// LazyDispatcher adapts a Manager of per-kind Executors to scheduler.Dispatcher.
// It is the scheduler's Lazy backend (pkg/scheduler.Dispatchers.Lazy): nodes
// that graph.RequiresKernel and graph.RequiresWorker both say no to compose
// here, in-process, without materialising anything.
type LazyDispatcher struct {
	Manager Manager
}

// NewLazyDispatcher wires mgr, typically a *Registry pre-populated via
// builtin.RegisterBuiltins, as the scheduler's in-process composer.
func NewLazyDispatcher(mgr Manager) *LazyDispatcher {
	return &LazyDispatcher{Manager: mgr}
}

// Dispatch implements scheduler.Dispatcher.
func (d *LazyDispatcher) Dispatch(ctx context.Context, node *graph.Node, inputs []scheduler.Input) (fingerprint.Entry, error) {
	ex, err := d.Manager.Get(string(node.Kind))
	if err != nil {
		return fingerprint.Entry{}, fmt.Errorf("executor: dispatch node %d (%s): %w", node.ID, node.Kind, err)
	}
	if err := ex.Validate(node.Settings); err != nil {
		return fingerprint.Entry{}, fmt.Errorf("executor: validate node %d (%s): %w", node.ID, node.Kind, err)
	}

	plan, err := ex.Execute(ctx, node.Settings, lazyInputs(inputs))
	if err != nil {
		return fingerprint.Entry{}, fmt.Errorf("executor: compose node %d (%s): %w", node.ID, node.Kind, err)
	}

	return fingerprint.Entry{Kind: fingerprint.ResultLazyPlan, LazyPlan: plan}, nil
}

// lazyInputs extracts each predecessor's lazy plan, or a reference to its
// materialised location, in dispatch order. A composer never sees the
// sealed fingerprint.Entry wrapper, only the payload it composes over.
func lazyInputs(inputs []scheduler.Input) []interface{} {
	out := make([]interface{}, len(inputs))
	for i, in := range inputs {
		switch in.Result.Kind {
		case fingerprint.ResultLazyPlan:
			out[i] = in.Result.LazyPlan
		case fingerprint.ResultMaterialisedTable:
			out[i] = in.Result.FilePath
		default:
			out[i] = in.Result.ExternalRef
		}
	}
	return out
}
