// Package resolver turns plan arguments into concrete values against a
// per-run execution context. Resolution is pure: safe to call concurrently
// for different steps of the same wave, because no step ever references an
// output produced in its own wave.
package resolver

import (
	"reflect"
	"strings"

	"github.com/jperaza/planwave/pkg/schema"
)

// Resolve materializes a single argument. Literals pass through unchanged.
// A reference looks up its output name in the context, then walks each
// field segment in order; a missing name or segment is a resolution error.
func Resolve(arg schema.Argument, ctx *Context) (any, error) {
	if !arg.IsRef() {
		return arg.Literal, nil
	}

	ref := arg.Ref
	root, ok := ctx.Get(ref.OutputName)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeResolution,
			"output %q not found; available: [%s]",
			ref.OutputName, strings.Join(ctx.Names(), ", ")).
			WithDetails(map[string]any{"reference": arg.String(), "available_outputs": ctx.Names()})
	}

	if len(ref.FieldPath) == 0 {
		return root, nil
	}
	return traversePath(root, ref.FieldPath, arg.String())
}

// ResolveArgs materializes every argument of a step, in declared order.
// The first failing argument aborts resolution.
func ResolveArgs(args []schema.NamedArg, ctx *Context) (map[string]any, error) {
	resolved := make(map[string]any, len(args))
	for _, arg := range args {
		val, err := Resolve(arg.Value, ctx)
		if err != nil {
			if ee, ok := err.(*schema.EngineError); ok {
				return nil, schema.NewErrorf(schema.ErrCodeResolution,
					"argument %q: %s", arg.Name, ee.Message).WithCause(ee).WithDetails(ee.Details)
			}
			return nil, err
		}
		resolved[arg.Name] = val
	}
	return resolved, nil
}

// traversePath navigates into nested values using the field path. Maps are
// accessed by key, structs by exported field name or json tag.
func traversePath(root any, path []string, refSource string) (any, error) {
	current := root

	for _, seg := range path {
		val, ok := fieldAccess(current, seg)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeResolution,
				"field %q not found in %q; available: [%s]",
				seg, refSource, strings.Join(fieldNames(current), ", ")).
				WithDetails(map[string]any{"reference": refSource, "available_fields": fieldNames(current)})
		}
		current = val
	}
	return current, nil
}

// fieldAccess reads one segment from a map or struct value.
func fieldAccess(v any, seg string) (any, bool) {
	switch m := v.(type) {
	case map[string]any:
		val, ok := m[seg]
		return val, ok
	case map[string]string:
		val, ok := m[seg]
		return val, ok
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		if f.Name == seg || jsonTagName(f) == seg {
			return rv.Field(i).Interface(), true
		}
	}
	return nil, false
}

// fieldNames lists the accessible segments of a value for error messages.
func fieldNames(v any) []string {
	switch m := v.(type) {
	case map[string]any:
		return sortedKeys(m)
	case map[string]string:
		names := make([]string, 0, len(m))
		for k := range m {
			names = append(names, k)
		}
		return sortStrings(names)
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	rt := rv.Type()
	var names []string
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		if tag := jsonTagName(f); tag != "" {
			names = append(names, tag)
		} else {
			names = append(names, f.Name)
		}
	}
	return sortStrings(names)
}

func jsonTagName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" || tag == "-" {
		return ""
	}
	if idx := strings.IndexByte(tag, ','); idx >= 0 {
		tag = tag[:idx]
	}
	return tag
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return sortStrings(keys)
}

func sortStrings(s []string) []string {
	for i := 1; i < len(s); i++ {
		key := s[i]
		j := i - 1
		for j >= 0 && s[j] > key {
			s[j+1] = s[j]
			j--
		}
		s[j+1] = key
	}
	return s
}
