package steps

import (
	"context"
	"errors"

	"github.com/dshills/convoflow/flow"
)

// ReconstructStep downloads the inbound and outbound call recordings and
// asks the audio reconstruction API for a merged transcript.
type ReconstructStep struct {
	Deps Deps
}

// Run implements flow.Step. It requires Location, Inbound, Outbound, and
// TenantKey on the state; anything less is a configuration error.
func (s *ReconstructStep) Run(ctx context.Context, state flow.State) (flow.State, error) {
	if s.Deps.Client == nil {
		return flow.State{}, errors.New("internal API client is not configured")
	}
	if state.Location == "" || state.Inbound == "" || state.Outbound == "" {
		return flow.State{}, errors.New("reconstruction requires location, inbound, and outbound")
	}
	if state.TenantKey == "" {
		return flow.State{}, errors.New("tenant_key is required")
	}

	resp, err := s.Deps.Client.Reconstruct(ctx, state.Location, state.Inbound, state.Outbound, state.TenantKey)
	if err != nil {
		return flow.State{}, err
	}

	s.Deps.logger().Info("conversation reconstructed",
		"conversation_id", state.ConversationID,
		"files", len(resp.Files),
		"tokens", resp.Usage.Tokens)

	return flow.State{
		Transcript: resp.ReconstructedTranscript,
		Reconstruction: map[string]any{
			"files":                   resp.Files,
			"reconstructedTranscript": resp.ReconstructedTranscript,
			"usage": map[string]any{
				"tokens":  resp.Usage.Tokens,
				"costUsd": resp.Usage.CostUSD,
			},
		},
		TokensUsed: resp.Usage.Tokens,
		CostUSD:    resp.Usage.CostUSD,
	}, nil
}
