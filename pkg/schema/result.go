package schema

import "time"

// StepStatus is the lifecycle state of a single step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// RunStatus is the lifecycle state of a whole plan execution.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// StepResult summarizes the outcome of a single step. Created once by the
// step executor and never mutated after being appended to the result list.
type StepResult struct {
	StepID      string       `json:"step_id"`
	Status      StepStatus   `json:"status"`
	Output      any          `json:"output,omitempty"` // present iff completed
	Error       *EngineError `json:"error,omitempty"`  // present iff failed
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	DurationMs  int64        `json:"duration_ms"`
}

// ExecutionResult is the final outcome of one plan execution. Step results
// appear in original plan order, not completion order; steps in waves that
// never ran stay pending.
type ExecutionResult struct {
	RunID           string           `json:"run_id"`
	Status          RunStatus        `json:"status"`
	Steps           []*StepResult    `json:"step_results"`
	FinalOutput     any              `json:"final_output,omitempty"`
	Error           *EngineError     `json:"error,omitempty"`
	StepsCompleted  int              `json:"steps_completed"`
	StepsFailed     int              `json:"steps_failed"`
	TotalDurationMs int64            `json:"total_duration_ms"`
	StartedAt       time.Time        `json:"started_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
	Parallel        *ParallelMetrics `json:"parallel_metrics,omitempty"`
}

// ParallelMetrics describes how much concurrency the wave shape allowed.
// Speedup figures are idealized estimates, not measurements: no serial-only
// comparison run ever happens.
type ParallelMetrics struct {
	Speedup              float64 `json:"speedup"`
	StepsParallelized    int     `json:"steps_parallelized"`
	TotalSteps           int     `json:"total_steps"`
	ParallelGroups       int     `json:"parallel_groups"`
	ParallelizationRatio float64 `json:"parallelization_ratio"`
	RealizedSpeedupEst   float64 `json:"realized_speedup_estimate,omitempty"`
}
