package scheduler

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// conditionCache is a thread-safe LRU of compiled expr-lang programs, so a
// `when` guard re-evaluated on every run of a flow is compiled once.
type conditionCache struct {
	capacity int
	entries  map[string]*list.Element
	lru      *list.List
	mu       sync.RWMutex
}

type conditionCacheEntry struct {
	key     string
	program *vm.Program
}

func newConditionCache(capacity int) *conditionCache {
	if capacity <= 0 {
		capacity = 100
	}
	return &conditionCache{capacity: capacity, entries: make(map[string]*list.Element), lru: list.New()}
}

func (c *conditionCache) get(condition string) (*vm.Program, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[condition]; ok {
		c.lru.MoveToFront(el)
		return el.Value.(*conditionCacheEntry).program, true
	}
	return nil, false
}

func (c *conditionCache) put(condition string, program *vm.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[condition]; ok {
		c.lru.MoveToFront(el)
		el.Value.(*conditionCacheEntry).program = program
		return
	}
	el := c.lru.PushFront(&conditionCacheEntry{key: condition, program: program})
	c.entries[condition] = el
	if c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		if oldest != nil {
			c.lru.Remove(oldest)
			delete(c.entries, oldest.Value.(*conditionCacheEntry).key)
		}
	}
}

func (c *conditionCache) compileAndCache(condition string, env interface{}) (*vm.Program, error) {
	if program, ok := c.get(condition); ok {
		return program, nil
	}
	program, err := expr.Compile(condition, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, err
	}
	c.put(condition, program)
	return program, nil
}

// ConditionEvaluator evaluates a node's optional settings["when"] guard
// against its gathered inputs before dispatch: a supplemented feature
// (conditional branches) not present in the distilled node-kind list but
// natural for an ETL DAG engine, expressed the way edge conditions already
// were in the corpus.
type ConditionEvaluator struct {
	cache *conditionCache
}

// NewConditionEvaluator returns an evaluator with a 100-entry compiled
// program cache.
func NewConditionEvaluator() *ConditionEvaluator {
	return &ConditionEvaluator{cache: newConditionCache(100)}
}

// Evaluate compiles (or reuses) condition and runs it against inputs,
// exposed to the expression as `output`. A non-bool result is an error.
func (e *ConditionEvaluator) Evaluate(condition string, inputs []Input) (bool, error) {
	if condition == "" {
		return true, nil
	}
	env := map[string]interface{}{"output": inputs}
	program, err := e.cache.compileAndCache(condition, env)
	if err != nil {
		return false, fmt.Errorf("compile condition: %w", err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate condition: %w", err)
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("condition must return boolean, got %T", result)
	}
	return b, nil
}
