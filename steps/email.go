package steps

import (
	"context"

	"github.com/dshills/convoflow/flow"
)

// EmailStep sends a notification email through the platform notification
// API. The upstream platform has not shipped that API yet, so without a
// configured endpoint the step records NOT_IMPLEMENTED and succeeds.
type EmailStep struct {
	Deps Deps
}

// Run implements flow.Step.
func (s *EmailStep) Run(ctx context.Context, state flow.State) (flow.State, error) {
	if s.Deps.EmailEndpoint == "" || s.Deps.Client == nil {
		s.Deps.logger().Info("email step called but not implemented")
		return flow.State{EmailResult: "NOT_IMPLEMENTED"}, nil
	}

	payload := map[string]any{
		"conversationId": state.ConversationID,
		"tenantKey":      state.TenantKey,
		"userId":         state.UserID,
		"transcript":     state.Transcript,
		"finalStatus":    state.FinalStatus,
	}
	if err := s.Deps.Client.PostJSON(ctx, s.Deps.EmailEndpoint, payload, nil); err != nil {
		return flow.State{}, err
	}

	s.Deps.logger().Info("notification email sent", "conversation_id", state.ConversationID)
	return flow.State{EmailResult: "SENT"}, nil
}
