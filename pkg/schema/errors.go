package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodePlanning      = "PLANNING_ERROR"
	ErrCodeCycleDetected = "CYCLE_DETECTED"
	ErrCodeToolNotFound  = "TOOL_NOT_FOUND"
	ErrCodeToolExecution = "TOOL_EXECUTION_ERROR"
	ErrCodeResolution    = "VAR_RESOLUTION_ERROR"
	ErrCodeExecution     = "EXECUTION_ERROR"
	ErrCodeCache         = "CACHE_ERROR"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeCancelled     = "CANCELLED"
)

// EngineError is the structured error type for all planwave operations.
type EngineError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	StepID  string         `json:"step_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *EngineError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("[%s] step %s: %s", e.Code, e.StepID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// NewError creates a new EngineError.
func NewError(code, message string) *EngineError {
	return &EngineError{Code: code, Message: message}
}

// NewErrorf creates a new EngineError with a formatted message.
func NewErrorf(code, format string, args ...any) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStep attaches a step ID to the error.
func (e *EngineError) WithStep(stepID string) *EngineError {
	e.StepID = stepID
	return e
}

// WithCause attaches an underlying cause.
func (e *EngineError) WithCause(err error) *EngineError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *EngineError) WithDetails(details map[string]any) *EngineError {
	e.Details = details
	return e
}

// IsPlanningError reports whether err is a pre-execution plan defect
// (cycle, dangling dependency, invalid plan shape). Planning errors are
// raised before any tool is invoked and are never wrapped into a StepResult.
func IsPlanningError(err error) bool {
	ee, ok := err.(*EngineError)
	if !ok {
		return false
	}
	return ee.Code == ErrCodePlanning || ee.Code == ErrCodeCycleDetected || ee.Code == ErrCodeValidation
}
