package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/jperaza/planwave/pkg/schema"
)

// CELTool evaluates Common Expression Language expressions, mainly for
// boolean guards over previously produced outputs. The environment exposes
// a single top-level variable:
//
//	input: map(string, dyn) — the "input" argument of the invocation
//
// Thread-safe: compiled programs are cached and reused across goroutines.
type CELTool struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCELTool creates a CEL evaluation tool with a sandboxed environment.
func NewCELTool() (*CELTool, error) {
	env, err := cel.NewEnv(
		cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &CELTool{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

func (t *CELTool) Name() string { return "cel.eval" }

func (t *CELTool) Schema() ToolSchema {
	return ToolSchema{
		Description: "Evaluate a CEL expression with the provided input map bound to 'input'",
		InputSchema: []byte(`{
  "type": "object",
  "properties": {
    "expression": {"type": "string", "minLength": 1},
    "input": {"type": "object"}
  },
  "required": ["expression"]
}`),
	}
}

// Invoke compiles (or retrieves from cache) the expression and evaluates it.
func (t *CELTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	expression := stringParam(args, "expression", "")
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "cel.eval requires non-empty 'expression' string argument")
	}

	prg, err := t.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	input, _ := args["input"].(map[string]any)
	if input == nil {
		input = map[string]any{}
	}

	out, _, err := prg.Eval(map[string]any{"input": input})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"CEL evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	return out.Value(), nil
}

// getOrCompile returns a cached compiled program or compiles and caches a new one.
func (t *CELTool) getOrCompile(expression string) (cel.Program, error) {
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

	ast, issues := t.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL compile error in %q: %s", expression, issues.Err().Error()).
			WithCause(issues.Err()).
			WithDetails(map[string]any{"expression": expression})
	}

	prg, err := t.env.Program(ast)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL program error for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	t.cache[expression] = prg
	return prg, nil
}

var _ Tool = (*CELTool)(nil)
