// Package validation checks incoming plan documents before they reach the
// engine. Shape errors are caught here with JSON Schema; dependency-graph
// defects (cycles, unknown step ids) are the scheduler's job.
package validation

import (
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/jperaza/planwave/pkg/schema"
)

// planSchemaJSON is the JSON Schema for QueryPlan documents. Embedded as a
// constant to avoid filesystem dependencies.
const planSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://planwave.dev/schemas/plan.json",
  "type": "object",
  "required": ["steps"],
  "properties": {
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/step" }
    },
    "intent": { "type": "string" },
    "cacheable": { "type": "boolean" }
  },
  "additionalProperties": false,
  "$defs": {
    "step": {
      "type": "object",
      "required": ["step_id", "tool_name"],
      "properties": {
        "step_id": {
          "anyOf": [
            { "type": "string", "minLength": 1 },
            { "type": "integer" }
          ]
        },
        "tool_name": {
          "type": "string",
          "minLength": 1
        },
        "args": { "type": "object" },
        "depends_on": {
          "type": "array",
          "items": {
            "anyOf": [
              { "type": "string", "minLength": 1 },
              { "type": "integer" }
            ]
          }
        },
        "output_name": {
          "type": "string",
          "pattern": "^[A-Za-z_][A-Za-z0-9_]*$"
        }
      },
      "additionalProperties": false
    }
  }
}`

// PlanValidator validates raw plan documents against the plan JSON Schema.
// Safe for concurrent use.
type PlanValidator struct {
	planSchema *jsonschema.Schema
}

var (
	defaultValidator *PlanValidator
	defaultOnce      sync.Once
	defaultErr       error
)

// NewPlanValidator creates a PlanValidator with the plan schema pre-compiled.
func NewPlanValidator() (*PlanValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(planSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal plan schema: %w", err)
	}
	if err := c.AddResource("https://planwave.dev/schemas/plan.json", doc); err != nil {
		return nil, fmt.Errorf("add plan schema resource: %w", err)
	}

	compiled, err := c.Compile("https://planwave.dev/schemas/plan.json")
	if err != nil {
		return nil, fmt.Errorf("compile plan schema: %w", err)
	}

	return &PlanValidator{planSchema: compiled}, nil
}

// Default returns a shared PlanValidator, compiling the schema on first use.
func Default() (*PlanValidator, error) {
	defaultOnce.Do(func() {
		defaultValidator, defaultErr = NewPlanValidator()
	})
	return defaultValidator, defaultErr
}

// ValidateRaw validates raw plan JSON against the plan schema.
func (v *PlanValidator) ValidateRaw(raw []byte) error {
	if len(raw) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "plan document is empty")
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "plan is not valid JSON").WithCause(err)
	}

	if err := v.planSchema.Validate(doc); err != nil {
		return toEngineError(err)
	}
	return nil
}

// ValidatePlan runs the schema validation over a raw document and then the
// structural checks JSON Schema cannot express, via QueryPlan.Validate.
func (v *PlanValidator) ValidatePlan(raw []byte, plan *schema.QueryPlan) error {
	if err := v.ValidateRaw(raw); err != nil {
		return err
	}
	return plan.Validate()
}

// toEngineError converts a jsonschema.ValidationError into an EngineError
// with one message per leaf violation.
func toEngineError(err error) *schema.EngineError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("plan validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf messages
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
