package builtin

import (
	"context"
	"fmt"

	"github.com/smilemakc/flowfile/pkg/executor"
	"github.com/smilemakc/flowfile/pkg/graph"
)

// validJoinHows is graph.Validate's join check without "cross": a join node
// with how=cross passes graph validation and is rejected by this composer.
// The separate cross_join kind is routed to the worker pool, never to this
// in-process composer.
var validJoinHows = map[string]bool{
	"inner": true, "left": true, "right": true,
	"outer": true, "semi": true, "anti": true,
}

// JoinExecutor composes a LEFT/RIGHT join. cross_join never reaches this
// executor: graph.RequiresWorker routes it to the worker pool before the
// scheduler consults Dispatchers.Lazy.
type JoinExecutor struct {
	*executor.BaseExecutor
}

// NewJoinExecutor creates a join executor.
func NewJoinExecutor() *JoinExecutor {
	return &JoinExecutor{BaseExecutor: executor.NewBaseExecutor("join")}
}

// Execute composes the join over its LEFT and RIGHT resolved inputs.
func (e *JoinExecutor) Execute(ctx context.Context, config map[string]any, input any) (any, error) {
	inputs, _ := input.([]interface{})
	return executor.Plan{Kind: graph.KindJoin, Settings: config, Inputs: inputs}, nil
}

// Validate requires how and on, and that how is a supported join type.
func (e *JoinExecutor) Validate(config map[string]any) error {
	how, err := e.GetString(config, "how")
	if err != nil {
		return fmt.Errorf("required field missing: how")
	}
	if !validJoinHows[how] {
		return fmt.Errorf("unsupported join how %q", how)
	}
	if _, ok := config["on"]; !ok {
		return fmt.Errorf("required field missing: on")
	}
	return nil
}
