// Package builtin provides the in-process composers for every node kind
// dispatched lazily rather than to the worker pool or kernel.
package builtin

import "github.com/smilemakc/flowfile/pkg/executor"

// RegisterBuiltins registers an executor for every lazily-composable node
// kind with manager. Heavy kinds (cross_join, fuzzy_match, group_by, read,
// database_read, output) and python_script are never registered here: the
// scheduler's Dispatchers.Route sends those to the worker pool or kernel
// before Dispatchers.Lazy is ever consulted.
func RegisterBuiltins(manager executor.Manager) error {
	executors := map[string]executor.Executor{
		"manual_input": NewManualInputExecutor(),
		"filter":       NewFilterExecutor(),
		"formula":      NewFormulaExecutor(),
		"select":       NewSelectExecutor(),
		"sort":         NewSortExecutor(),
		"pivot":        NewPivotExecutor(),
		"unpivot":      NewUnpivotExecutor(),
		"record_id":    NewRecordIDExecutor(),
		"union":        NewUnionExecutor(),
		"cache":        NewCacheExecutor(),
		"join":         NewJoinExecutor(),
	}

	for name, ex := range executors {
		if err := manager.Register(name, ex); err != nil {
			return err
		}
	}

	return nil
}

// MustRegisterBuiltins registers all built-in executors and panics on
// error; used by process bootstrap code where a registration failure means
// a programming error, not a runtime condition to recover from.
func MustRegisterBuiltins(manager executor.Manager) {
	if err := RegisterBuiltins(manager); err != nil {
		panic("executor/builtin: failed to register builtins: " + err.Error())
	}
}
