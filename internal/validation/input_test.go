package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jperaza/planwave/pkg/schema"
)

func TestValidateInputNoSchemaPasses(t *testing.T) {
	v := NewInputValidator()
	assert.NoError(t, v.ValidateInput(map[string]any{"anything": true}, nil))
}

func TestValidateInputEnforcesSchema(t *testing.T) {
	v := NewInputValidator()
	toolSchema := []byte(`{
		"type": "object",
		"properties": {
			"smiles": {"type": "string", "minLength": 1}
		},
		"required": ["smiles"]
	}`)

	assert.NoError(t, v.ValidateInput(map[string]any{"smiles": "CCO"}, toolSchema))

	err := v.ValidateInput(map[string]any{}, toolSchema)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, err.(*schema.EngineError).Code)

	err = v.ValidateInput(map[string]any{"smiles": 42}, toolSchema)
	require.Error(t, err)
}

func TestValidateInputCachesCompiledSchemas(t *testing.T) {
	v := NewInputValidator()
	toolSchema := []byte(`{"type": "object"}`)

	for i := 0; i < 3; i++ {
		require.NoError(t, v.ValidateInput(map[string]any{"n": i}, toolSchema))
	}
	assert.Len(t, v.cache, 1)
}

func TestValidateInputRejectsBrokenSchema(t *testing.T) {
	v := NewInputValidator()
	err := v.ValidateInput(map[string]any{}, []byte(`{"type": `))
	require.Error(t, err)
}
