package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// QueryPlan is an immutable, ordered sequence of tool-invocation steps with
// declared dependency edges and named outputs. Plans are built once by an
// external planner and never mutated by the engine.
type QueryPlan struct {
	Steps     []PlanStep `json:"steps"`
	Intent    string     `json:"intent,omitempty"`
	Cacheable bool       `json:"cacheable,omitempty"`
}

// PlanStep describes a single tool invocation within a plan.
type PlanStep struct {
	ID         string     `json:"step_id"`
	Tool       string     `json:"tool_name"`
	Args       []NamedArg `json:"args,omitempty"`
	DependsOn  []string   `json:"depends_on,omitempty"`
	OutputName string     `json:"output_name,omitempty"`
}

// NamedArg is one entry of a step's ordered argument mapping.
type NamedArg struct {
	Name  string
	Value Argument
}

// Argument is a tagged union: either a literal value passed to the tool
// unchanged, or a reference to another step's named output. References are
// constructed once at plan build time, so execution never parses strings.
type Argument struct {
	Literal any
	Ref     *Reference
}

// Reference names another step's output and an optional dotted field path
// into that output's structure.
type Reference struct {
	OutputName string   `json:"output_name"`
	FieldPath  []string `json:"field_path,omitempty"`
}

// IsRef reports whether the argument is a variable reference.
func (a Argument) IsRef() bool { return a.Ref != nil }

// String returns the source form of the argument for logging.
func (a Argument) String() string {
	if a.Ref != nil {
		if len(a.Ref.FieldPath) == 0 {
			return "$" + a.Ref.OutputName
		}
		return "$" + a.Ref.OutputName + "." + strings.Join(a.Ref.FieldPath, ".")
	}
	return fmt.Sprintf("%v", a.Literal)
}

// ParseArgument classifies a raw argument value. Strings of the shape
// "$name" or "$name.field.path" become references; everything else is a
// literal and passes through unchanged.
//
// Bracket indexing ("$x.items[0].smiles") is not a supported reference form:
// such a string still parses as a reference, but the bracketed segment will
// never match a field at resolution time and the step fails with a
// resolution error. Matches the behavior of planners that emit it anyway.
func ParseArgument(raw any) Argument {
	s, ok := raw.(string)
	if !ok || len(s) < 2 || s[0] != '$' {
		return Argument{Literal: raw}
	}

	segments := strings.Split(s[1:], ".")
	if !isOutputName(segments[0]) {
		return Argument{Literal: raw}
	}
	for _, seg := range segments[1:] {
		if seg == "" {
			return Argument{Literal: raw}
		}
	}

	ref := &Reference{OutputName: segments[0]}
	if len(segments) > 1 {
		ref.FieldPath = segments[1:]
	}
	return Argument{Ref: ref}
}

// isOutputName reports whether s is a valid output name: a letter or
// underscore followed by letters, digits, or underscores.
func isOutputName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// MarshalJSON renders the argument back into its source form: references as
// "$name.path" strings, literals as themselves.
func (a Argument) MarshalJSON() ([]byte, error) {
	if a.Ref != nil {
		return json.Marshal(a.String())
	}
	return json.Marshal(a.Literal)
}

// UnmarshalJSON classifies the raw JSON value via ParseArgument.
func (a *Argument) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = ParseArgument(raw)
	return nil
}

// planStepJSON mirrors PlanStep for (un)marshalling; args is a JSON object
// whose key order is significant, so it is decoded with a token stream.
type planStepJSON struct {
	ID         json.RawMessage `json:"step_id"`
	Tool       string          `json:"tool_name"`
	Args       json.RawMessage `json:"args,omitempty"`
	DependsOn  []json.RawMessage `json:"depends_on,omitempty"`
	OutputName string          `json:"output_name,omitempty"`
}

// UnmarshalJSON decodes a step, preserving argument order and accepting both
// integer and string step ids (planners disagree on which they emit).
func (ps *PlanStep) UnmarshalJSON(data []byte) error {
	var raw planStepJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	id, err := decodeStepID(raw.ID)
	if err != nil {
		return err
	}
	ps.ID = id
	ps.Tool = raw.Tool
	ps.OutputName = raw.OutputName

	ps.DependsOn = nil
	for _, dep := range raw.DependsOn {
		depID, err := decodeStepID(dep)
		if err != nil {
			return err
		}
		ps.DependsOn = append(ps.DependsOn, depID)
	}

	ps.Args, err = decodeOrderedArgs(raw.Args)
	return err
}

// MarshalJSON renders the step with args as a JSON object in declared order.
func (ps PlanStep) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"step_id":`)
	idJSON, err := json.Marshal(ps.ID)
	if err != nil {
		return nil, err
	}
	buf.Write(idJSON)
	buf.WriteString(`,"tool_name":`)
	toolJSON, _ := json.Marshal(ps.Tool)
	buf.Write(toolJSON)

	if len(ps.Args) > 0 {
		buf.WriteString(`,"args":{`)
		for i, arg := range ps.Args {
			if i > 0 {
				buf.WriteByte(',')
			}
			nameJSON, _ := json.Marshal(arg.Name)
			buf.Write(nameJSON)
			buf.WriteByte(':')
			valJSON, err := json.Marshal(arg.Value)
			if err != nil {
				return nil, err
			}
			buf.Write(valJSON)
		}
		buf.WriteByte('}')
	}

	if len(ps.DependsOn) > 0 {
		buf.WriteString(`,"depends_on":`)
		depsJSON, _ := json.Marshal(ps.DependsOn)
		buf.Write(depsJSON)
	}
	if ps.OutputName != "" {
		buf.WriteString(`,"output_name":`)
		outJSON, _ := json.Marshal(ps.OutputName)
		buf.Write(outJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// decodeStepID accepts "3", 3, or "fetch" and canonicalizes to a string.
func decodeStepID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", NewError(ErrCodeValidation, "step_id is required")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", NewErrorf(ErrCodeValidation, "invalid step_id: %s", string(raw))
}

// decodeOrderedArgs walks the args object token by token so the declared
// parameter order survives the round trip (encoding/json maps do not).
func decodeOrderedArgs(raw json.RawMessage) ([]NamedArg, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, NewError(ErrCodeValidation, "args must be a JSON object")
	}

	var args []NamedArg
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name := keyTok.(string)

		var val any
		if err := dec.Decode(&val); err != nil {
			return nil, err
		}
		args = append(args, NamedArg{Name: name, Value: ParseArgument(normalizeNumbers(val))})
	}

	// Consume closing brace.
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return args, nil
}

// normalizeNumbers converts json.Number values (from UseNumber decoding)
// into int64 where exact, float64 otherwise, recursively.
func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		for k, inner := range val {
			val[k] = normalizeNumbers(inner)
		}
		return val
	case []any:
		for i, inner := range val {
			val[i] = normalizeNumbers(inner)
		}
		return val
	default:
		return v
	}
}

// Validate checks the structural invariants JSON decoding cannot enforce:
// at least one step, unique step ids, non-empty tool names, no
// self-dependency. Cycle and dangling-dependency detection happens at
// scheduling time, before any tool is invoked.
func (p *QueryPlan) Validate() error {
	if len(p.Steps) == 0 {
		return NewError(ErrCodeValidation, "plan has no steps")
	}

	seen := make(map[string]struct{}, len(p.Steps))
	for i, step := range p.Steps {
		if step.ID == "" {
			return NewErrorf(ErrCodeValidation, "step at index %d has empty step_id", i)
		}
		if _, exists := seen[step.ID]; exists {
			return NewErrorf(ErrCodeValidation, "duplicate step_id: %s", step.ID)
		}
		seen[step.ID] = struct{}{}

		if step.Tool == "" {
			return NewErrorf(ErrCodeValidation, "step %s has no tool_name", step.ID)
		}
		for _, dep := range step.DependsOn {
			if dep == step.ID {
				return NewErrorf(ErrCodeCycleDetected, "step %s depends on itself", step.ID)
			}
		}
	}
	return nil
}

// Step returns the step with the given id, or nil.
func (p *QueryPlan) Step(id string) *PlanStep {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}
