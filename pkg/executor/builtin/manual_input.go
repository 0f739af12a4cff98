package builtin

import (
	"context"
	"fmt"

	"github.com/smilemakc/flowfile/pkg/executor"
	"github.com/smilemakc/flowfile/pkg/graph"
)

// ManualInputExecutor composes a source node whose rows are given literally
// in its settings rather than read from a file or database.
type ManualInputExecutor struct {
	*executor.BaseExecutor
}

// NewManualInputExecutor creates a manual_input executor.
func NewManualInputExecutor() *ManualInputExecutor {
	return &ManualInputExecutor{BaseExecutor: executor.NewBaseExecutor("manual_input")}
}

// Execute returns a plan wrapping the literal data; there is nothing to
// compose over since manual_input has no inputs.
func (e *ManualInputExecutor) Execute(ctx context.Context, config map[string]any, input any) (any, error) {
	return executor.Plan{Kind: graph.KindManualInput, Settings: config}, nil
}

// Validate requires the literal "data" payload.
func (e *ManualInputExecutor) Validate(config map[string]any) error {
	if _, ok := config["data"]; !ok {
		return fmt.Errorf("required field missing: data")
	}
	return nil
}
