package builtin

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/smilemakc/flowfile/pkg/executor"
	"github.com/smilemakc/flowfile/pkg/graph"
)

// FilterExecutor composes a row-filter over its single MAIN input.
type FilterExecutor struct {
	*executor.BaseExecutor
}

// NewFilterExecutor creates a filter executor.
func NewFilterExecutor() *FilterExecutor {
	return &FilterExecutor{BaseExecutor: executor.NewBaseExecutor("filter")}
}

// Execute composes the filter over its single resolved input.
func (e *FilterExecutor) Execute(ctx context.Context, config map[string]any, input any) (any, error) {
	inputs, _ := input.([]interface{})
	return executor.Plan{Kind: graph.KindFilter, Settings: config, Inputs: inputs}, nil
}

// Validate requires filter_expression and checks it compiles as an
// expr-lang predicate over a row environment, the same engine
// pkg/scheduler uses for `when` guards.
func (e *FilterExecutor) Validate(config map[string]any) error {
	exprStr, err := e.GetString(config, "filter_expression")
	if err != nil {
		return fmt.Errorf("required field missing: filter_expression")
	}
	if _, err := expr.Compile(exprStr, expr.Env(map[string]any{"row": map[string]any{}})); err != nil {
		return fmt.Errorf("filter_expression does not compile: %w", err)
	}
	return nil
}

// FormulaExecutor composes a derived-column transform over its single MAIN
// input.
type FormulaExecutor struct {
	*executor.BaseExecutor
}

// NewFormulaExecutor creates a formula executor.
func NewFormulaExecutor() *FormulaExecutor {
	return &FormulaExecutor{BaseExecutor: executor.NewBaseExecutor("formula")}
}

// Execute composes the formula over its single resolved input.
func (e *FormulaExecutor) Execute(ctx context.Context, config map[string]any, input any) (any, error) {
	inputs, _ := input.([]interface{})
	return executor.Plan{Kind: graph.KindFormula, Settings: config, Inputs: inputs}, nil
}

// Validate requires formula and checks it compiles.
func (e *FormulaExecutor) Validate(config map[string]any) error {
	exprStr, err := e.GetString(config, "formula")
	if err != nil {
		return fmt.Errorf("required field missing: formula")
	}
	if _, err := expr.Compile(exprStr, expr.Env(map[string]any{"row": map[string]any{}})); err != nil {
		return fmt.Errorf("formula does not compile: %w", err)
	}
	return nil
}
