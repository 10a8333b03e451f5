package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jperaza/planwave/internal/cache"
	"github.com/jperaza/planwave/internal/logging"
	"github.com/jperaza/planwave/internal/resolver"
	"github.com/jperaza/planwave/internal/tools"
	"github.com/jperaza/planwave/internal/validation"
	"github.com/jperaza/planwave/pkg/schema"
)

// DefaultMaxWorkers bounds per-wave concurrency when no option overrides it.
const DefaultMaxWorkers = 4

// Engine executes query plans. Safe for concurrent use: each Execute call
// owns its run state and shares only the registry and cache, both of which
// are concurrency-safe.
type Engine struct {
	exec       *stepExecutor
	maxWorkers int
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache enables result caching for plans marked cacheable.
func WithCache(c cache.Cache) Option {
	return func(e *Engine) { e.exec.cache = c }
}

// WithMaxWorkers sets the per-wave concurrency bound.
func WithMaxWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxWorkers = n
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
		e.exec.logger = l
	}
}

// New creates an Engine over the given tool registry.
func New(registry tools.Registry, opts ...Option) *Engine {
	e := &Engine{
		exec: &stepExecutor{
			registry: registry,
			inputs:   validation.NewInputValidator(),
			logger:   slog.Default(),
		},
		maxWorkers: DefaultMaxWorkers,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs a plan to completion or to its first failing wave.
//
// The plan is leveled into waves before any tool runs; planning defects
// (cycles, unknown dependencies, invalid shape) are returned as errors with
// no ExecutionResult. Once execution starts, step failures are captured in
// the result: the failing wave still runs to its barrier, later waves are
// skipped, and their steps stay pending. The returned error is nil even for
// failed runs; the run-level failure lives in result.Error.
func (e *Engine) Execute(ctx context.Context, plan *schema.QueryPlan) (*schema.ExecutionResult, error) {
	waves, err := BuildWaves(plan)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	started := time.Now().UTC()

	e.logger.InfoContext(ctx, "plan execution started",
		slog.Int("steps", len(plan.Steps)),
		slog.Int("waves", waves.WaveCount()),
		slog.Int("max_width", waves.MaxWidth()))

	result := &schema.ExecutionResult{
		RunID:     runID,
		Status:    schema.RunStatusRunning,
		StartedAt: started,
		Steps:     make([]*schema.StepResult, len(plan.Steps)),
		Parallel:  computeMetrics(waves),
	}

	// Results are reported in plan order regardless of completion order.
	// Pre-populate every slot as pending; steps of skipped waves keep it.
	indexOf := make(map[string]int, len(plan.Steps))
	for i := range plan.Steps {
		indexOf[plan.Steps[i].ID] = i
		result.Steps[i] = &schema.StepResult{
			StepID: plan.Steps[i].ID,
			Status: schema.StepStatusPending,
		}
	}

	execCtx := resolver.NewContext()
	var lastOutput *schema.StepResult

	for waveIdx, wave := range waves.Groups {
		waveResults := e.runWave(ctx, plan, wave, execCtx)

		// Post-barrier merge on the controller goroutine. The context is
		// written here and only here, so step goroutines never need a lock.
		var firstFailure *schema.StepResult
		for _, res := range waveResults {
			result.Steps[indexOf[res.StepID]] = res

			switch res.Status {
			case schema.StepStatusCompleted:
				result.StepsCompleted++
				lastOutput = res
				step := plan.Step(res.StepID)
				if step.OutputName != "" {
					if err := execCtx.Set(step.OutputName, res.Output); err != nil {
						// Duplicate output names slip past plan validation
						// only when two steps declare the same name.
						res.Status = schema.StepStatusFailed
						res.Error = asEngineError(err, schema.ErrCodeConflict).WithStep(res.StepID)
						res.Output = nil
						result.StepsCompleted--
						result.StepsFailed++
					}
				}
			case schema.StepStatusFailed:
				result.StepsFailed++
			}
		}

		// The run-level error is the failing step that appears first in the
		// plan, not the first to finish.
		for _, res := range waveResults {
			if res.Status != schema.StepStatusFailed {
				continue
			}
			if firstFailure == nil || indexOf[res.StepID] < indexOf[firstFailure.StepID] {
				firstFailure = res
			}
		}

		if firstFailure != nil {
			e.logger.WarnContext(ctx, "wave failed, halting plan",
				slog.Int("wave", waveIdx),
				slog.String("failed_step", firstFailure.StepID))
			result.Status = schema.RunStatusFailed
			result.Error = firstFailure.Error
			break
		}
	}

	completed := time.Now().UTC()
	result.CompletedAt = &completed
	result.TotalDurationMs = completed.Sub(started).Milliseconds()

	if result.Status != schema.RunStatusFailed {
		result.Status = schema.RunStatusCompleted
		if lastOutput != nil {
			result.FinalOutput = lastOutput.Output
		}
	}
	result.Parallel.RealizedSpeedupEst = realizedSpeedup(result.Steps, result.TotalDurationMs)

	e.logger.InfoContext(ctx, "plan execution finished",
		slog.String("status", string(result.Status)),
		slog.Int("completed", result.StepsCompleted),
		slog.Int("failed", result.StepsFailed),
		slog.Int64("duration_ms", result.TotalDurationMs))

	return result, nil
}
