// Package engine schedules and executes query plans. A plan is leveled into
// waves of mutually independent steps; waves run in order with a hard barrier
// between them, and steps inside a wave run concurrently on a bounded pool.
package engine

import (
	"strings"

	"github.com/jperaza/planwave/pkg/schema"
)

// Waves is the leveled execution schedule of a plan. Wave k contains the
// steps whose dependencies are all satisfied by waves 0..k-1. Within a wave,
// steps keep their original plan order.
type Waves struct {
	// Groups holds step IDs, one slice per wave, in execution order.
	Groups [][]string

	// Level maps a step ID to the index of its wave.
	Level map[string]int
}

// WaveCount returns the number of waves.
func (w *Waves) WaveCount() int { return len(w.Groups) }

// MaxWidth returns the size of the largest wave.
func (w *Waves) MaxWidth() int {
	max := 0
	for _, g := range w.Groups {
		if len(g) > max {
			max = len(g)
		}
	}
	return max
}

// BuildWaves levels a plan into waves. It validates the plan, rejects
// dependencies on unknown steps, and detects cycles, all before any tool
// runs. Leveling is deterministic: the same plan always yields the same
// waves, and each wave preserves the plan's declared step order.
func BuildWaves(plan *schema.QueryPlan) (*Waves, error) {
	if plan == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "plan is nil")
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	known := make(map[string]struct{}, len(plan.Steps))
	for i := range plan.Steps {
		known[plan.Steps[i].ID] = struct{}{}
	}
	for i := range plan.Steps {
		step := &plan.Steps[i]
		for _, dep := range step.DependsOn {
			if _, ok := known[dep]; !ok {
				return nil, schema.NewErrorf(schema.ErrCodePlanning,
					"step %s depends on unknown step %s", step.ID, dep).
					WithStep(step.ID).
					WithDetails(map[string]any{"missing_dependency": dep})
			}
		}
	}

	waves := &Waves{Level: make(map[string]int, len(plan.Steps))}
	scheduled := make(map[string]struct{}, len(plan.Steps))

	for len(scheduled) < len(plan.Steps) {
		var wave []string

		// One pass in plan order: a step is ready when every dependency is
		// already in an earlier wave. Steps selected into the current wave do
		// not satisfy dependencies of later steps in the same pass.
		for i := range plan.Steps {
			step := &plan.Steps[i]
			if _, done := scheduled[step.ID]; done {
				continue
			}
			ready := true
			for _, dep := range step.DependsOn {
				if _, done := scheduled[dep]; !done {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, step.ID)
			}
		}

		if len(wave) == 0 {
			remaining := make([]string, 0, len(plan.Steps)-len(scheduled))
			for i := range plan.Steps {
				if _, done := scheduled[plan.Steps[i].ID]; !done {
					remaining = append(remaining, plan.Steps[i].ID)
				}
			}
			return nil, schema.NewErrorf(schema.ErrCodeCycleDetected,
				"plan contains a dependency cycle among steps: %s",
				strings.Join(remaining, ", ")).
				WithDetails(map[string]any{"unschedulable_steps": remaining})
		}

		for _, id := range wave {
			scheduled[id] = struct{}{}
			waves.Level[id] = len(waves.Groups)
		}
		waves.Groups = append(waves.Groups, wave)
	}

	return waves, nil
}
