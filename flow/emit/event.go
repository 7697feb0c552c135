package emit

// Event kinds carried in Event.Msg.
const (
	MsgRunStart  = "run_start"
	MsgStepStart = "step_start"
	MsgStepEnd   = "step_end"
	MsgStepError = "step_error"
	MsgRunEnd    = "run_end"
)

// Event is a single observability record emitted during a workflow run.
//
// Events mark run start/completion, step execution, and step failures. They
// can be logged, traced, buffered for inspection, or discarded.
type Event struct {
	// RunID identifies the workflow execution that emitted this event.
	RunID string

	// Step is the sequential position in the run (1-indexed). Zero for
	// run-level events such as run_start and run_end.
	Step int

	// StepID names the step that emitted this event. Empty for run-level
	// events.
	StepID string

	// Msg is the event kind: "run_start", "step_start", "step_end",
	// "step_error", "run_end".
	Msg string

	// Meta carries additional structured data. Common keys: "duration_ms",
	// "error", "tokens", "plan".
	Meta map[string]any
}
