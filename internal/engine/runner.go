package engine

import (
	"context"

	"github.com/jperaza/planwave/internal/resolver"
	"github.com/jperaza/planwave/pkg/schema"
)

// runWave executes one wave to completion and returns its results in wave
// order. The wave is a hard barrier: every step of the wave finishes, pass
// or fail, before runWave returns. A failing step never cancels its
// siblings.
func (e *Engine) runWave(ctx context.Context, plan *schema.QueryPlan, wave []string, execCtx *resolver.Context) []*schema.StepResult {
	// A one-step wave runs inline on the controller goroutine. Most plans
	// are dominated by serial sections; skipping the pool there keeps the
	// common case allocation-free.
	if len(wave) == 1 {
		step := plan.Step(wave[0])
		return []*schema.StepResult{e.exec.execute(ctx, step, execCtx, plan.Cacheable)}
	}

	size := e.maxWorkers
	if len(wave) < size {
		size = len(wave)
	}
	pool := NewWorkerPool(size)
	defer pool.Shutdown()

	results := make([]*schema.StepResult, len(wave))
	for i, id := range wave {
		i, step := i, plan.Step(id)
		submitErr := pool.Submit(ctx, func(ctx context.Context) error {
			res := e.exec.execute(ctx, step, execCtx, plan.Cacheable)
			results[i] = res
			if res.Status == schema.StepStatusFailed {
				return res.Error
			}
			return nil
		})
		if submitErr != nil {
			// Submission fails only on cancellation or shutdown; record the
			// step as failed rather than leaving a hole in the wave.
			results[i] = &schema.StepResult{
				StepID: step.ID,
				Status: schema.StepStatusFailed,
				Error: schema.NewErrorf(schema.ErrCodeCancelled,
					"step not started: %s", submitErr.Error()).WithStep(step.ID).WithCause(submitErr),
			}
		}
	}
	pool.Wait()

	return results
}
