package flow

import (
	"context"
	"fmt"
)

// errorMarker suffixes the trace entry of a failed step.
const errorMarker = "[ERROR]"

// tracked decorates a registered step so every invocation yields a uniform
// delta and keeps the engine-owned control fields consistent, whatever the
// underlying handler does.
//
// On success the delta carries the handler's fields plus an appended-copy
// trace entry and the advanced index. On failure the raw error never reaches
// the engine's caller: it is converted into state (trace entry with the
// error marker, Error message naming the step, SkipRemaining) so the run
// terminates cleanly and still returns a well-formed result.
//
// The wrapper never mutates the input state; it returns copy-based deltas
// only, preserving single-writer discipline per invocation.
type tracked struct {
	id   StepID
	step Step
}

// run executes the wrapped step and returns the delta to apply plus whether
// the step failed.
func (t tracked) run(ctx context.Context, state State) (State, bool) {
	trace := make([]string, len(state.ExecutionTrace), len(state.ExecutionTrace)+1)
	copy(trace, state.ExecutionTrace)

	delta, err := t.step.Run(ctx, state)
	if err != nil {
		return State{
			ExecutionTrace:   append(trace, string(t.id)+errorMarker),
			Error:            fmt.Sprintf("step %s failed: %v", t.id, err),
			SkipRemaining:    true,
			CurrentStepIndex: state.CurrentStepIndex + 1,
		}, true
	}

	delta = clearControl(delta)
	delta.ExecutionTrace = append(trace, string(t.id))
	delta.CurrentStepIndex = state.CurrentStepIndex + 1
	return delta, false
}
