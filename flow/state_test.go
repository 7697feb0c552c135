package flow

import "testing"

func TestReduce(t *testing.T) {
	t.Run("overwrites scalars last writer wins", func(t *testing.T) {
		state := State{Transcript: "old", TokensUsed: 100, CostUSD: 0.5}
		state = Reduce(state, State{Transcript: "new", TokensUsed: 250, CostUSD: 0.9})

		if state.Transcript != "new" {
			t.Errorf("transcript = %q", state.Transcript)
		}
		if state.TokensUsed != 250 {
			t.Errorf("tokens = %d, want 250 (overwrite, not accumulate)", state.TokensUsed)
		}
		if state.CostUSD != 0.9 {
			t.Errorf("cost = %v, want 0.9", state.CostUSD)
		}
	})

	t.Run("zero values do not clobber", func(t *testing.T) {
		state := State{Transcript: "kept", TokensUsed: 42, PersistenceResult: "OK:1"}
		state = Reduce(state, State{EmailResult: "SENT"})

		if state.Transcript != "kept" {
			t.Errorf("transcript = %q", state.Transcript)
		}
		if state.TokensUsed != 42 {
			t.Errorf("tokens = %d", state.TokensUsed)
		}
		if state.PersistenceResult != "OK:1" {
			t.Errorf("persistence = %q", state.PersistenceResult)
		}
		if state.EmailResult != "SENT" {
			t.Errorf("email = %q", state.EmailResult)
		}
	})

	t.Run("ignores control fields", func(t *testing.T) {
		state := State{
			Plan:             Plan{StepEmail},
			CurrentStepIndex: 3,
			ExecutionTrace:   []string{"a", "b", "c"},
		}
		state = Reduce(state, State{
			Plan:             Plan{StepPersist},
			CurrentStepIndex: 99,
			ExecutionTrace:   []string{"x"},
			SkipRemaining:    true,
			Error:            "nope",
		})

		if len(state.Plan) != 1 || state.Plan[0] != StepEmail {
			t.Errorf("plan = %v", state.Plan)
		}
		if state.CurrentStepIndex != 3 {
			t.Errorf("index = %d", state.CurrentStepIndex)
		}
		if len(state.ExecutionTrace) != 3 {
			t.Errorf("trace = %v", state.ExecutionTrace)
		}
		if state.SkipRemaining || state.Error != "" {
			t.Errorf("control leaked: skip=%v error=%q", state.SkipRemaining, state.Error)
		}
	})

	t.Run("merges extra key by key", func(t *testing.T) {
		state := State{Extra: map[string]any{"a": 1, "b": 2}}
		state = Reduce(state, State{Extra: map[string]any{"b": 3, "c": 4}})

		if state.Extra["a"] != 1 || state.Extra["b"] != 3 || state.Extra["c"] != 4 {
			t.Errorf("extra = %v", state.Extra)
		}
	})

	t.Run("replaces maps wholesale", func(t *testing.T) {
		state := State{ClusterAnalysis: map[string]any{"old": true}}
		state = Reduce(state, State{ClusterAnalysis: map[string]any{"new": true}})

		if _, ok := state.ClusterAnalysis["old"]; ok {
			t.Error("stale analysis key survived")
		}
		if state.ClusterAnalysis["new"] != true {
			t.Errorf("analysis = %v", state.ClusterAnalysis)
		}
	})
}

func TestApplyControl(t *testing.T) {
	t.Run("index only moves forward", func(t *testing.T) {
		state := applyControl(State{CurrentStepIndex: 5}, State{CurrentStepIndex: 3})
		if state.CurrentStepIndex != 5 {
			t.Errorf("index = %d, want 5", state.CurrentStepIndex)
		}
		state = applyControl(state, State{CurrentStepIndex: 6})
		if state.CurrentStepIndex != 6 {
			t.Errorf("index = %d, want 6", state.CurrentStepIndex)
		}
	})

	t.Run("longer trace wins", func(t *testing.T) {
		state := applyControl(
			State{ExecutionTrace: []string{"a", "b"}},
			State{ExecutionTrace: []string{"a"}},
		)
		if len(state.ExecutionTrace) != 2 {
			t.Errorf("trace = %v", state.ExecutionTrace)
		}
	})

	t.Run("skip is sticky", func(t *testing.T) {
		state := applyControl(State{SkipRemaining: true}, State{})
		if !state.SkipRemaining {
			t.Error("skip was reset")
		}
	})

	t.Run("error overwrites", func(t *testing.T) {
		state := applyControl(State{Error: "first"}, State{Error: "second"})
		if state.Error != "second" {
			t.Errorf("error = %q", state.Error)
		}
	})
}

func TestClearControl(t *testing.T) {
	delta := clearControl(State{
		Plan:             Plan{StepEmail},
		CurrentStepIndex: 7,
		ExecutionTrace:   []string{"x"},
		SkipRemaining:    true,
		Error:            "boom",
		Transcript:       "survives",
	})

	if delta.Plan != nil || delta.CurrentStepIndex != 0 || delta.ExecutionTrace != nil ||
		delta.SkipRemaining || delta.Error != "" {
		t.Errorf("control fields not cleared: %+v", delta)
	}
	if delta.Transcript != "survives" {
		t.Errorf("domain field cleared: transcript = %q", delta.Transcript)
	}
}
