package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jperaza/planwave/internal/cache"
	"github.com/jperaza/planwave/internal/logging"
	"github.com/jperaza/planwave/internal/resolver"
	"github.com/jperaza/planwave/internal/tools"
	"github.com/jperaza/planwave/internal/validation"
	"github.com/jperaza/planwave/pkg/schema"
)

// stepExecutor runs a single plan step: argument resolution, input-schema
// check, optional cache lookup, tool invocation, and result assembly.
// Failures at any stage become a failed StepResult; they never escape as
// panics or abort sibling steps.
type stepExecutor struct {
	registry tools.Registry
	cache    cache.Cache // nil = caching disabled
	inputs   *validation.InputValidator
	logger   *slog.Logger
}

// execute runs one step against the execution context. It always returns a
// StepResult; the result's Status tells success from failure.
func (se *stepExecutor) execute(ctx context.Context, step *schema.PlanStep, execCtx *resolver.Context, cacheable bool) *schema.StepResult {
	ctx = logging.WithStepID(ctx, step.ID)
	ctx = logging.WithToolName(ctx, step.Tool)

	started := time.Now().UTC()
	result := &schema.StepResult{
		StepID:    step.ID,
		Status:    schema.StepStatusRunning,
		StartedAt: &started,
	}

	fail := func(err *schema.EngineError) *schema.StepResult {
		completed := time.Now().UTC()
		result.Status = schema.StepStatusFailed
		result.Error = err.WithStep(step.ID)
		result.CompletedAt = &completed
		result.DurationMs = completed.Sub(started).Milliseconds()
		se.logger.ErrorContext(ctx, "step failed",
			slog.String("code", err.Code),
			slog.String("error", err.Message))
		return result
	}
	succeed := func(output any) *schema.StepResult {
		completed := time.Now().UTC()
		result.Status = schema.StepStatusCompleted
		result.Output = output
		result.CompletedAt = &completed
		result.DurationMs = completed.Sub(started).Milliseconds()
		return result
	}

	args, err := resolver.ResolveArgs(step.Args, execCtx)
	if err != nil {
		return fail(asEngineError(err, schema.ErrCodeResolution))
	}

	tool, err := se.registry.Get(step.Tool)
	if err != nil {
		return fail(asEngineError(err, schema.ErrCodeToolNotFound))
	}

	if err := se.inputs.ValidateInput(args, tool.Schema().InputSchema); err != nil {
		return fail(asEngineError(err, schema.ErrCodeValidation))
	}

	if cacheable && se.cache != nil {
		if cached, hit, cerr := se.cache.Get(ctx, step.Tool, args); cerr != nil {
			// A broken cache degrades to a miss; the step still runs.
			se.logger.WarnContext(ctx, "cache lookup failed", slog.String("error", cerr.Error()))
		} else if hit {
			se.logger.DebugContext(ctx, "cache hit")
			return succeed(cached)
		}
	}

	se.logger.DebugContext(ctx, "invoking tool")
	output, err := se.invoke(ctx, tool, args)
	if err != nil {
		return fail(asEngineError(err, schema.ErrCodeToolExecution))
	}

	if cacheable && se.cache != nil {
		if cerr := se.cache.Set(ctx, step.Tool, args, output); cerr != nil {
			se.logger.WarnContext(ctx, "cache store failed", slog.String("error", cerr.Error()))
		}
	}

	return succeed(output)
}

// invoke calls the tool, converting a panic into a tool execution error so a
// misbehaving tool cannot take down the run.
func (se *stepExecutor) invoke(ctx context.Context, tool tools.Tool, args map[string]any) (output any, err error) {
	defer func() {
		if r := recover(); r != nil {
			output = nil
			err = schema.NewErrorf(schema.ErrCodeToolExecution,
				"tool %s panicked: %v", tool.Name(), r)
		}
	}()
	return tool.Invoke(ctx, args)
}

// asEngineError keeps structured errors intact and wraps everything else
// under the given default code.
func asEngineError(err error, defaultCode string) *schema.EngineError {
	if ee, ok := err.(*schema.EngineError); ok {
		return ee
	}
	return schema.NewError(defaultCode, fmt.Sprintf("%v", err)).WithCause(err)
}
