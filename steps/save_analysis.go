package steps

import (
	"context"
	"fmt"

	"github.com/dshills/convoflow/flow"
	"github.com/dshills/convoflow/store"
)

// SaveAnalysisStep writes the completed analysis to durable storage and
// marks the run COMPLETED.
type SaveAnalysisStep struct {
	Deps Deps
}

// Run implements flow.Step. Without an analysis store the step only marks
// completion, so development setups without a database still finish runs.
func (s *SaveAnalysisStep) Run(ctx context.Context, state flow.State) (flow.State, error) {
	s.Deps.logger().Info("saving analysis", "conversation_id", state.ConversationID)

	if s.Deps.Analyses != nil {
		rec := store.AnalysisRecord{
			ConversationID: state.ConversationID,
			TenantKey:      state.TenantKey,
			Analysis: map[string]any{
				"cluster_analysis":     state.ClusterAnalysis,
				"interaction_analysis": state.InteractionAnalysis,
				"patterns_insights":    state.PatternsInsights,
			},
			Suggestions: state.Suggestions,
			ActionPlan:  state.ActionPlan,
			TokensUsed:  state.TokensUsed,
			CostUSD:     state.CostUSD,
		}
		if err := s.Deps.Analyses.SaveAnalysis(ctx, rec); err != nil {
			return flow.State{}, fmt.Errorf("save analysis: %w", err)
		}
	}

	return flow.State{AnalysisSaved: true, FinalStatus: "COMPLETED"}, nil
}
