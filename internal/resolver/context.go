package resolver

import (
	"github.com/jperaza/planwave/pkg/schema"
)

// Context is the per-run, write-once mapping from a step's declared output
// name to the value it produced. One Context is created per execution and
// discarded with it; it is never shared across executions.
//
// No locking: writes happen only on the controller goroutine after a wave
// barrier, and steps running inside a wave only read keys finalized by
// strictly earlier waves.
type Context struct {
	values map[string]any
}

// NewContext creates an empty execution context.
func NewContext() *Context {
	return &Context{values: make(map[string]any)}
}

// Set records a step's output under its declared name. A name can be
// written exactly once; a second write is a conflict.
func (c *Context) Set(name string, value any) error {
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "output name is empty")
	}
	if _, exists := c.values[name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "output %q already written", name)
	}
	c.values[name] = value
	return nil
}

// Get returns the value stored under name.
func (c *Context) Get(name string) (any, bool) {
	v, ok := c.values[name]
	return v, ok
}

// Names returns the sorted output names currently in the context.
func (c *Context) Names() []string {
	names := make([]string, 0, len(c.values))
	for name := range c.values {
		names = append(names, name)
	}
	// Insertion sort: the context rarely holds more than a handful of keys.
	for i := 1; i < len(names); i++ {
		key := names[i]
		j := i - 1
		for j >= 0 && names[j] > key {
			names[j+1] = names[j]
			j--
		}
		names[j+1] = key
	}
	return names
}

// Len returns the number of outputs stored.
func (c *Context) Len() int { return len(c.values) }
