package tools

import (
	"context"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/jperaza/planwave/pkg/schema"
)

// ExprTool evaluates expr-lang expressions over a data map. It covers the
// local-computation side of plans: arithmetic, array operations (filter,
// map, sum, min, max), string operations, nil coalescing and optional
// chaining. Thread-safe: compiled *vm.Program objects are cached and reused
// across goroutines.
type ExprTool struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewExprTool creates an expr evaluation tool with an empty program cache.
func NewExprTool() *ExprTool {
	return &ExprTool{cache: make(map[string]*vm.Program)}
}

func (t *ExprTool) Name() string { return "expr.eval" }

func (t *ExprTool) Schema() ToolSchema {
	return ToolSchema{
		Description: "Evaluate an expr-lang expression against the provided data map",
		InputSchema: []byte(`{
  "type": "object",
  "properties": {
    "expression": {"type": "string", "minLength": 1},
    "data": {"type": "object"}
  },
  "required": ["expression"]
}`),
	}
}

// Invoke compiles (or retrieves from cache) the expression and runs it with
// the "data" argument as the environment.
func (t *ExprTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	expression := stringParam(args, "expression", "")
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "expr.eval requires non-empty 'expression' string argument")
	}

	env := map[string]any{}
	if data, ok := args["data"].(map[string]any); ok {
		env = data
	}

	prg, err := t.getOrCompile(expression, env)
	if err != nil {
		return nil, err
	}

	out, err := vm.Run(prg, env)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"expr evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	return map[string]any{"result": out}, nil
}

// getOrCompile returns a cached compiled program or compiles and caches a new one.
func (t *ExprTool) getOrCompile(expression string, env map[string]any) (*vm.Program, error) {
	t.mu.RLock()
	if prg, ok := t.cache[expression]; ok {
		t.mu.RUnlock()
		return prg, nil
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	// Double-check after acquiring write lock.
	if prg, ok := t.cache[expression]; ok {
		return prg, nil
	}

	prg, err := expr.Compile(expression,
		expr.Env(env),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"expr compile error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	t.cache[expression] = prg
	return prg, nil
}

var _ Tool = (*ExprTool)(nil)
