package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jperaza/planwave/pkg/schema"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := NewRegistry()

	tool := &Func{ToolName: "echo", Description: "echo args", Fn: func(ctx context.Context, args map[string]any) (any, error) {
		return args, nil
	}}
	require.NoError(t, reg.Register(tool))

	got, err := reg.Get("echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", got.Name())
	assert.True(t, reg.Has("echo"))
	assert.Equal(t, 1, reg.Count())
}

func TestRegistryDuplicateAndMissing(t *testing.T) {
	reg := NewRegistry()
	tool := &Func{ToolName: "dup", Fn: func(ctx context.Context, args map[string]any) (any, error) { return nil, nil }}

	require.NoError(t, reg.Register(tool))
	err := reg.Register(tool)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeConflict, err.(*schema.EngineError).Code)

	_, err = reg.Get("absent")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeToolNotFound, err.(*schema.EngineError).Code)
	assert.False(t, reg.Has("absent"))
}

func TestRegistryListSorted(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		n := name
		require.NoError(t, reg.Register(&Func{ToolName: n, Fn: func(ctx context.Context, args map[string]any) (any, error) { return nil, nil }}))
	}

	infos := reg.List()
	require.Len(t, infos, 3)
	assert.Equal(t, "alpha", infos[0].Name)
	assert.Equal(t, "mid", infos[1].Name)
	assert.Equal(t, "zeta", infos[2].Name)
}

func TestRegisterBuiltins(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, RegisterBuiltins(reg, HTTPConfig{}))

	for _, name := range []string{"expr.eval", "jq", "cel.eval", "http.request"} {
		assert.True(t, reg.Has(name), "builtin %s missing", name)
	}
}

func TestExprToolEvaluate(t *testing.T) {
	tool := NewExprTool()

	out, err := tool.Invoke(context.Background(), map[string]any{
		"expression": "sum(values) / len(values)",
		"data":       map[string]any{"values": []any{2, 4, 6}},
	})
	require.NoError(t, err)
	m := out.(map[string]any)
	assert.EqualValues(t, 4, m["result"])
}

func TestExprToolCachesPrograms(t *testing.T) {
	tool := NewExprTool()
	args := map[string]any{"expression": "a + b", "data": map[string]any{"a": 1, "b": 2}}

	for i := 0; i < 3; i++ {
		_, err := tool.Invoke(context.Background(), args)
		require.NoError(t, err)
	}
	assert.Len(t, tool.cache, 1)
}

func TestExprToolErrors(t *testing.T) {
	tool := NewExprTool()

	_, err := tool.Invoke(context.Background(), map[string]any{"data": map[string]any{}})
	require.Error(t, err, "missing expression")

	_, err = tool.Invoke(context.Background(), map[string]any{"expression": "1 +"})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, err.(*schema.EngineError).Code)
}

func TestJQToolSingleResult(t *testing.T) {
	tool := NewJQTool()

	out, err := tool.Invoke(context.Background(), map[string]any{
		"expression": ".molecules | map(.weight) | add",
		"input": map[string]any{
			"molecules": []any{
				map[string]any{"weight": 46.07},
				map[string]any{"weight": 18.02},
			},
		},
	})
	require.NoError(t, err)
	assert.InDelta(t, 64.09, out.(float64), 0.001)
}

func TestJQToolMultipleResults(t *testing.T) {
	tool := NewJQTool()

	out, err := tool.Invoke(context.Background(), map[string]any{
		"expression": ".[]",
		"input":      []any{1, 2, 3},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 2.0, 3.0}, out)
}

func TestJQToolNormalizesInts(t *testing.T) {
	tool := NewJQTool()

	// int64 input (the plan decoder produces int64) must not break jq.
	out, err := tool.Invoke(context.Background(), map[string]any{
		"expression": ". + 1",
		"input":      int64(41),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 42, out)
}

func TestJQToolBlocksEnvAccess(t *testing.T) {
	t.Setenv("PLANWAVE_SECRET", "leak-me")
	tool := NewJQTool()

	out, err := tool.Invoke(context.Background(), map[string]any{
		"expression": "$ENV.PLANWAVE_SECRET",
		"input":      nil,
	})
	require.NoError(t, err)
	assert.Nil(t, out, "environment must not be visible to jq programs")
}

func TestJQToolParseError(t *testing.T) {
	tool := NewJQTool()
	_, err := tool.Invoke(context.Background(), map[string]any{"expression": ".[unclosed"})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, err.(*schema.EngineError).Code)
}

func TestCELToolEvaluate(t *testing.T) {
	tool, err := NewCELTool()
	require.NoError(t, err)

	out, err := tool.Invoke(context.Background(), map[string]any{
		"expression": "input.weight > 40.0 && input.name == 'ethanol'",
		"input":      map[string]any{"weight": 46.07, "name": "ethanol"},
	})
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestCELToolCompileError(t *testing.T) {
	tool, err := NewCELTool()
	require.NoError(t, err)

	_, err = tool.Invoke(context.Background(), map[string]any{"expression": "input..bad"})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, err.(*schema.EngineError).Code)
}

func TestHTTPToolJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"smiles": "CCO", "weight": 46.07}`))
	}))
	defer srv.Close()

	tool := NewHTTPTool(HTTPConfig{})
	out, err := tool.Invoke(context.Background(), map[string]any{"url": srv.URL})
	require.NoError(t, err)

	m := out.(map[string]any)
	assert.Equal(t, 200, m["status_code"])
	body := m["body"].(map[string]any)
	assert.Equal(t, "CCO", body["smiles"])
}

func TestHTTPToolPostsJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "token-123", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	tool := NewHTTPTool(HTTPConfig{})
	out, err := tool.Invoke(context.Background(), map[string]any{
		"url":     srv.URL,
		"method":  "post",
		"body":    map[string]any{"query": "ethanol"},
		"headers": map[string]any{"Authorization": "token-123"},
	})
	require.NoError(t, err)
	assert.Equal(t, 201, out.(map[string]any)["status_code"])
}

func TestHTTPToolFailOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not here", http.StatusNotFound)
	}))
	defer srv.Close()

	tool := NewHTTPTool(HTTPConfig{})

	// Default: error statuses are data, not failures.
	out, err := tool.Invoke(context.Background(), map[string]any{"url": srv.URL})
	require.NoError(t, err)
	assert.Equal(t, 404, out.(map[string]any)["status_code"])

	// Opt-in: fail the step instead.
	_, err = tool.Invoke(context.Background(), map[string]any{
		"url":                  srv.URL,
		"fail_on_error_status": true,
	})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeExecution, err.(*schema.EngineError).Code)
}

func TestHTTPToolRequiresURL(t *testing.T) {
	tool := NewHTTPTool(HTTPConfig{})
	_, err := tool.Invoke(context.Background(), map[string]any{})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, err.(*schema.EngineError).Code)
}

func TestHTTPToolCapsResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		for i := 0; i < 1024; i++ {
			_, _ = w.Write(make([]byte, 1024))
		}
	}))
	defer srv.Close()

	tool := NewHTTPTool(HTTPConfig{MaxResponseBody: 2048})
	out, err := tool.Invoke(context.Background(), map[string]any{"url": srv.URL})
	require.NoError(t, err)

	body := out.(map[string]any)["body"].(string)
	assert.Len(t, body, 2048)
}
