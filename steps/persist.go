package steps

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/convoflow/flow"
)

// PersistStep saves the reconstructed transcript through the internal
// persistence API.
type PersistStep struct {
	Deps Deps
}

// Run implements flow.Step. A missing conversation ID skips persistence
// rather than failing: not every workflow carries one. Persistence errors
// surface as an ERROR result, not a step failure, so downstream analysis can
// still run.
func (s *PersistStep) Run(ctx context.Context, state flow.State) (flow.State, error) {
	if state.ConversationID == "" {
		s.Deps.logger().Warn("conversation_id not set, skipping persistence")
		return flow.State{PersistenceResult: "SKIPPED"}, nil
	}
	if s.Deps.Client == nil {
		return flow.State{}, errors.New("internal API client is not configured")
	}

	result := s.Deps.Client.SaveConversation(ctx, state.ConversationID, state.Transcript, "workflow")
	s.Deps.logger().Info("persistence complete", "status", result.Status, "id", result.ID)

	return flow.State{PersistenceResult: fmt.Sprintf("%s:%s", result.Status, result.ID)}, nil
}
