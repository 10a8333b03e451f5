package tools

import (
	"context"
	"encoding/json"
)

// Tool is an external, named callable representing one unit of domain work
// a plan step invokes. Implementations must be safe for concurrent use:
// independent steps of one wave may invoke the same tool simultaneously.
type Tool interface {
	Name() string
	Schema() ToolSchema
	Invoke(ctx context.Context, args map[string]any) (any, error)
}

// Registry is the lookup contract the execution engine consumes.
type Registry interface {
	Get(name string) (Tool, error)
	Has(name string) bool
	List() []ToolInfo
}

// ToolSchema describes the input contract of a tool.
type ToolSchema struct {
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
	Description string          `json:"description,omitempty"`
}

// ToolInfo is a summary of a registered tool for listing.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Func adapts a plain function into a Tool. Handy for tests and for
// callers wiring domain tools without a full type.
type Func struct {
	ToolName    string
	Description string
	Fn          func(ctx context.Context, args map[string]any) (any, error)
}

func (f *Func) Name() string { return f.ToolName }

func (f *Func) Schema() ToolSchema {
	return ToolSchema{Description: f.Description}
}

func (f *Func) Invoke(ctx context.Context, args map[string]any) (any, error) {
	return f.Fn(ctx, args)
}

// Param helpers shared by the builtin tools.

func stringParam(m map[string]any, key, defaultVal string) string {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	s, ok := v.(string)
	if !ok {
		return defaultVal
	}
	return s
}

func boolParam(m map[string]any, key string, defaultVal bool) bool {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	b, ok := v.(bool)
	if !ok {
		return defaultVal
	}
	return b
}

func intParam(m map[string]any, key string, defaultVal int) int {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return defaultVal
		}
		return int(i)
	default:
		return defaultVal
	}
}
