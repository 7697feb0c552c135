package flow

import "fmt"

// DuplicateStepError indicates an attempt to register a step ID twice.
type DuplicateStepError struct {
	ID StepID
}

func (e *DuplicateStepError) Error() string {
	return "duplicate step ID: " + string(e.ID)
}

// UnknownStepError indicates a step name that is not in the registry. It is
// surfaced at plan-resolution time, before any step executes.
type UnknownStepError struct {
	ID StepID
}

func (e *UnknownStepError) Error() string {
	return "unknown step: " + string(e.ID)
}

// EmptyPlanError indicates that plan resolution produced no runnable steps.
// The run never starts; callers should treat it as a request-validation
// failure.
type EmptyPlanError struct {
	// Dropped lists the requested names that were discarded because they
	// were not registered.
	Dropped []string
}

func (e *EmptyPlanError) Error() string {
	if len(e.Dropped) > 0 {
		return fmt.Sprintf("workflow resolves to an empty plan (dropped unregistered steps: %v)", e.Dropped)
	}
	return "workflow resolves to an empty plan"
}

// EngineError represents a configuration or wiring fault in the engine
// itself, as opposed to a failure inside a step.
type EngineError struct {
	Message string
	Code    string
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}
