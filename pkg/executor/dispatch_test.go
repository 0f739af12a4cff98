package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/smilemakc/flowfile/pkg/fingerprint"
	"github.com/smilemakc/flowfile/pkg/graph"
	"github.com/smilemakc/flowfile/pkg/scheduler"
)

func TestLazyDispatcher_Dispatch_ComposesOverInputs(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register("select", &ExecutorFunc{
		ExecuteFn: func(ctx context.Context, config map[string]any, input any) (any, error) {
			return Plan{Kind: graph.KindSelect, Settings: config, Inputs: input.([]interface{})}, nil
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	d := NewLazyDispatcher(reg)
	node := &graph.Node{ID: 2, Kind: graph.KindSelect, Settings: map[string]interface{}{"columns": []string{"a"}}}
	inputs := []scheduler.Input{
		{NodeID: 1, Result: fingerprint.Entry{Kind: fingerprint.ResultLazyPlan, LazyPlan: "upstream"}},
	}

	entry, err := d.Dispatch(context.Background(), node, inputs)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if entry.Kind != fingerprint.ResultLazyPlan {
		t.Fatalf("entry.Kind = %v, want ResultLazyPlan", entry.Kind)
	}
	plan, ok := entry.LazyPlan.(Plan)
	if !ok {
		t.Fatalf("LazyPlan = %T, want Plan", entry.LazyPlan)
	}
	if len(plan.Inputs) != 1 || plan.Inputs[0] != "upstream" {
		t.Fatalf("plan.Inputs = %+v", plan.Inputs)
	}
}

func TestLazyDispatcher_Dispatch_UnknownKindErrors(t *testing.T) {
	d := NewLazyDispatcher(NewRegistry())
	node := &graph.Node{ID: 1, Kind: graph.KindSelect}
	if _, err := d.Dispatch(context.Background(), node, nil); err == nil {
		t.Fatal("expected error dispatching an unregistered kind")
	}
}

func TestLazyDispatcher_Dispatch_ValidationFailureErrors(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register("filter", &ExecutorFunc{
		ExecuteFn:  func(ctx context.Context, config map[string]any, input any) (any, error) { return nil, nil },
		ValidateFn: func(config map[string]any) error { return errors.New("required field missing: filter_expression") },
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	d := NewLazyDispatcher(reg)
	node := &graph.Node{ID: 1, Kind: graph.KindFilter}
	if _, err := d.Dispatch(context.Background(), node, nil); err == nil {
		t.Fatal("expected validation error to propagate")
	}
}
