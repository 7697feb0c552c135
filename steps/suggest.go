package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/convoflow/flow"
)

// SuggestStep turns the analysis phases into an operator-facing suggestion
// report and an action plan for the next session. It is a pure
// transformation of state and never calls external services.
type SuggestStep struct {
	Deps Deps
}

// Run implements flow.Step. Without cluster analysis it still succeeds with
// placeholder output, so suggestion-only plans do not fail on thin state.
func (s *SuggestStep) Run(_ context.Context, state flow.State) (flow.State, error) {
	clusters := state.ClusterAnalysis
	if len(clusters) == 0 {
		return flow.State{
			Suggestions: map[string]any{"note": "analysis not available"},
			ActionPlan:  map[string]any{"note": "plan not generated"},
		}, nil
	}

	summary := map[string]any{
		"strengths":         []string{},
		"improvement_areas": []string{},
		"notable_events":    []string{},
	}
	advice := map[string]any{
		"alternative_strategies": []string{},
		"recommended_tools":      []string{},
		"specific_approaches":    []string{},
	}
	plan := map[string]any{
		"smart_goals":           []string{},
		"observation_checklist": []string{},
		"proposed_activities":   []string{},
	}

	var strengths, improvements, strategies, tools []string
	for name, raw := range clusters {
		data, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		score := asInt(data["score"])
		evidence, _ := data["evidence"].(string)
		label := strings.ReplaceAll(name, "_", " ")

		if score >= 3 {
			strengths = append(strengths, fmt.Sprintf("%s: %s", label, truncate(evidence, 100)))
			continue
		}
		improvements = append(improvements, fmt.Sprintf("%s (score: %d/4)", label, score))

		switch {
		case name == "functional_communication" && score <= 2:
			strategies = append(strategies,
				"Introduce visual communication supports (PECS, AAC boards)",
				"Use visual timers to structure activities",
				"Establish a structured request routine")
			tools = append(tools, "Augmentative communication apps (e.g. Proloquo2Go, ARASAAC)")
		case name == "personal_autonomy" && score <= 2:
			strategies = append(strategies,
				"Break tasks into smaller, manageable steps",
				"Use visual checklists for daily routines",
				"Introduce a token economy reinforcement system")
		}
	}
	summary["strengths"] = strengths
	summary["improvement_areas"] = improvements

	var events, goals, activities []string
	if patterns := state.PatternsInsights; patterns != nil {
		for _, corr := range firstN(asStrings(patterns["correlations"]), 2) {
			events = append(events, corr)
		}
		for _, signal := range firstN(asStrings(patterns["weak_signals"]), 2) {
			lower := strings.ToLower(signal)
			if strings.Contains(lower, "calculation") || strings.Contains(lower, "counting") {
				goals = append(goals, "Gradually increase calculation exercise complexity by 20%")
				activities = append(activities, "Structured calculation session with progressive difficulty (15 min)")
			}
			if strings.Contains(lower, "social") || strings.Contains(lower, "interaction") {
				goals = append(goals, "Complete at least 2 social interaction role-playing exercises")
				activities = append(activities, "Guided role-playing with visual support (10 min)")
			}
		}
	}
	summary["notable_events"] = events

	var approaches []string
	if state.InteractionAnalysis != nil {
		if _, ok := state.InteractionAnalysis["strategy_effectiveness"]; ok {
			approaches = append(approaches, "Keep the current strategies that have proven effective")
		}
	}
	advice["specific_approaches"] = approaches

	checklist := []string{
		"Number of spontaneous requests",
		"Time on task",
		"Frequency of problem behaviors",
		"Effectiveness of prompts used",
	}

	if len(strategies) == 0 {
		strategies = []string{"Continue the current approach while monitoring progress"}
	}
	if len(goals) == 0 {
		goals = []string{"Maintain the current performance level to consolidate learning"}
	}
	advice["alternative_strategies"] = strategies
	advice["recommended_tools"] = tools
	plan["smart_goals"] = goals
	plan["observation_checklist"] = checklist
	plan["proposed_activities"] = activities

	suggestions := map[string]any{
		"summary_report":    summary,
		"advice":            advice,
		"next_session_plan": plan,
	}
	return flow.State{Suggestions: suggestions, ActionPlan: plan}, nil
}

func asInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}

func asStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, fmt.Sprint(item))
	}
	return out
}

func firstN(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
