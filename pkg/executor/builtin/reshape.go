package builtin

import (
	"context"

	"github.com/smilemakc/flowfile/pkg/executor"
	"github.com/smilemakc/flowfile/pkg/graph"
)

// reshapeExecutor is the common shape shared by the single-input,
// schema-reshaping node kinds below: select, sort, pivot, unpivot,
// record_id, union and cache all compose over one MAIN input list and
// differ only in their kind tag and required settings fields.
type reshapeExecutor struct {
	*executor.BaseExecutor
	kind     graph.Kind
	required []string
}

func newReshapeExecutor(kind graph.Kind, required ...string) *reshapeExecutor {
	return &reshapeExecutor{
		BaseExecutor: executor.NewBaseExecutor(string(kind)),
		kind:         kind,
		required:     required,
	}
}

func (e *reshapeExecutor) Execute(ctx context.Context, config map[string]any, input any) (any, error) {
	inputs, _ := input.([]interface{})
	return executor.Plan{Kind: e.kind, Settings: config, Inputs: inputs}, nil
}

func (e *reshapeExecutor) Validate(config map[string]any) error {
	return e.ValidateRequired(config, e.required...)
}

// SelectExecutor composes a column-projection transform.
type SelectExecutor struct{ *reshapeExecutor }

// NewSelectExecutor creates a select executor.
func NewSelectExecutor() *SelectExecutor {
	return &SelectExecutor{newReshapeExecutor(graph.KindSelect, "columns")}
}

// SortExecutor composes a row-ordering transform.
type SortExecutor struct{ *reshapeExecutor }

// NewSortExecutor creates a sort executor.
func NewSortExecutor() *SortExecutor {
	return &SortExecutor{newReshapeExecutor(graph.KindSort, "columns")}
}

// PivotExecutor composes a long-to-wide reshape.
type PivotExecutor struct{ *reshapeExecutor }

// NewPivotExecutor creates a pivot executor.
func NewPivotExecutor() *PivotExecutor {
	return &PivotExecutor{newReshapeExecutor(graph.KindPivot, "index_columns")}
}

// UnpivotExecutor composes a wide-to-long reshape.
type UnpivotExecutor struct{ *reshapeExecutor }

// NewUnpivotExecutor creates an unpivot executor.
func NewUnpivotExecutor() *UnpivotExecutor {
	return &UnpivotExecutor{newReshapeExecutor(graph.KindUnpivot, "value_columns")}
}

// RecordIDExecutor composes a row-numbering transform; it takes no
// required settings.
type RecordIDExecutor struct{ *reshapeExecutor }

// NewRecordIDExecutor creates a record_id executor.
func NewRecordIDExecutor() *RecordIDExecutor {
	return &RecordIDExecutor{newReshapeExecutor(graph.KindRecordID)}
}

// UnionExecutor composes a row-concatenation over its MAIN inputs.
type UnionExecutor struct{ *reshapeExecutor }

// NewUnionExecutor creates a union executor.
func NewUnionExecutor() *UnionExecutor {
	return &UnionExecutor{newReshapeExecutor(graph.KindUnion)}
}

// CacheExecutor composes a pass-through marker forcing the scheduler's
// fingerprint cache to keep this node's result materialised across runs.
type CacheExecutor struct{ *reshapeExecutor }

// NewCacheExecutor creates a cache executor.
func NewCacheExecutor() *CacheExecutor {
	return &CacheExecutor{newReshapeExecutor(graph.KindCache)}
}
