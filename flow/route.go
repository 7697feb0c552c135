package flow

import "log/slog"

// entryStep selects the step to execute when a run starts or resumes.
// An index past the end of the plan is clamped to the final step. A run
// with no plan at all falls back to the first step of the default flow,
// which is logged because it indicates the caller bypassed the resolver.
func entryStep(state State, fallback Plan) StepID {
	plan := state.Plan
	if len(plan) == 0 {
		slog.Warn("run started without a plan, falling back to default flow",
			"conversation_id", state.ConversationID)
		plan = fallback
		if len(plan) == 0 {
			return ""
		}
	}
	idx := state.CurrentStepIndex
	if idx < 0 {
		idx = 0
	}
	if idx >= len(plan) {
		idx = len(plan) - 1
	}
	return plan[idx]
}

// nextStep decides what follows the step that just ran. Checks are ordered
// fail fast: a skip request wins over everything, a recorded error stops the
// run even if skips were not requested, and exhaustion of the plan ends the
// run normally. Only when none of those hold does the program counter name
// the next step.
func nextStep(state State) (StepID, bool) {
	if state.SkipRemaining {
		return "", false
	}
	if state.Error != "" {
		return "", false
	}
	if state.CurrentStepIndex >= len(state.Plan) {
		return "", false
	}
	return state.Plan[state.CurrentStepIndex], true
}
