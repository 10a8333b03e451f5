package tools

import (
	"context"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/jperaza/planwave/pkg/schema"
)

// JQTool reshapes step outputs with jq expressions: filtering, projection,
// aggregation. Thread-safe: compiled *gojq.Code objects are cached and
// reused across goroutines.
type JQTool struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewJQTool creates a jq transform tool with an empty program cache.
func NewJQTool() *JQTool {
	return &JQTool{cache: make(map[string]*gojq.Code)}
}

func (t *JQTool) Name() string { return "jq" }

func (t *JQTool) Schema() ToolSchema {
	return ToolSchema{
		Description: "Apply a jq expression to the provided input value",
		InputSchema: []byte(`{
  "type": "object",
  "properties": {
    "expression": {"type": "string", "minLength": 1},
    "input": {}
  },
  "required": ["expression"]
}`),
	}
}

// Invoke compiles (or retrieves from cache) the jq expression and runs it
// against the "input" argument.
//
// jq expressions can produce multiple outputs. With exactly one output it is
// returned directly; with several they are collected into a slice.
func (t *JQTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	expression := stringParam(args, "expression", "")
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "jq requires non-empty 'expression' string argument")
	}

	code, err := t.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	iter := code.RunWithContext(ctx, normalizeForJQ(args["input"]))

	var results []any
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := val.(error); isErr {
			return nil, schema.NewErrorf(schema.ErrCodeExecution,
				"jq evaluation failed for %q: %s", expression, err.Error()).
				WithCause(err).
				WithDetails(map[string]any{"expression": expression})
		}
		results = append(results, val)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// getOrCompile returns a cached compiled code or compiles and caches a new one.
func (t *JQTool) getOrCompile(expression string) (*gojq.Code, error) {
	t.mu.RLock()
	if code, ok := t.cache[expression]; ok {
		t.mu.RUnlock()
		return code, nil
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	// Double-check after acquiring write lock.
	if code, ok := t.cache[expression]; ok {
		return code, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq parse error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	code, err := gojq.Compile(query,
		// Sandbox: empty env blocks $ENV and env access.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq compile error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	t.cache[expression] = code
	return code, nil
}

// normalizeForJQ converts Go native types to jq-compatible types.
// jq uses float64 for all numbers; plan literals decode as int64.
func normalizeForJQ(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = normalizeForJQ(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = normalizeForJQ(inner)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case int32:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}

var _ Tool = (*JQTool)(nil)
