package steps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/convoflow/flow"
	"github.com/dshills/convoflow/model"
)

// analysisSystemPrompt frames the model as a session analyst grounded in
// the tenant's knowledge base documents.
const analysisSystemPrompt = `You are an expert analyst of educational and
therapeutic support sessions. Base every rating, judgment, and suggestion
exclusively on the evaluation criteria, definitions, and tools described in
the reference documents provided. You may use general knowledge to enrich
language and structure, but never to introduce criteria of your own.`

// analysisPromptTemplate asks for the four analysis phases as a single JSON
// object. The phase keys are the contract the parser below depends on.
const analysisPromptTemplate = `Analyze the following session transcript.

%sTranscript:
%s

Produce a JSON object with exactly these top-level keys:

"cluster_analysis": For each of these observation clusters, an object with
"score" (1-4: critical, emerging, functional with support, autonomous) and
"evidence" (observed behavior supporting the score):
  1. functional_communication - effectiveness expressing needs, use of
     verbal language, gestures, or alternative supports
  2. personal_autonomy - management of daily activities
  3. play_participation - interaction in play activities, initiative shown
  4. socialization - seeking contact with adults or peers, response to
     interaction invitations
  5. dysregulation_management - crisis triggers, behavioral responses
  6. frustration_tolerance - reactions to refusals, errors, waiting
  7. spatial_temporal_planning - orientation in space and activity timing
  8. context_regulation - rule compliance, acceptance of adult guidance

"interaction_analysis": quality of the operator's communication,
effectiveness of the strategies used, operator's emotional state.

"patterns_insights": an object with "correlations" (significant
correlations observed), "weak_signals" (warning signs not acted upon), and
"emerging_interests" (interests usable as reinforcers).

"suggestions": summary report with strengths and improvement areas,
evidence-based alternative strategies, recommended tools and activities
from the reference documents, SMART goals for the next session, and a data
collection checklist.

Return ONLY the JSON object, no additional text.`

// AnalyzeStep runs the AI analysis of a reconstructed transcript and fans
// the result out into the per-phase state fields.
type AnalyzeStep struct {
	Deps Deps
}

// Run implements flow.Step.
func (s *AnalyzeStep) Run(ctx context.Context, state flow.State) (flow.State, error) {
	if s.Deps.Model == nil {
		return flow.State{}, errors.New("analysis model is not configured")
	}
	if state.Transcript == "" {
		return flow.State{}, errors.New("no transcript available for analysis")
	}

	var kb strings.Builder
	if len(state.KnowledgeBaseFiles) > 0 {
		kb.WriteString("Reference documents (knowledge base): ")
		kb.WriteString(strings.Join(state.KnowledgeBaseFiles, ", "))
		kb.WriteString("\n\n")
	}
	prompt := fmt.Sprintf(analysisPromptTemplate, kb.String(), state.Transcript)

	resp, err := s.Deps.Model.Complete(ctx, model.Request{
		System: analysisSystemPrompt,
		Prompt: prompt,
		JSON:   true,
	})
	if err != nil {
		return flow.State{}, fmt.Errorf("analysis call failed: %w", err)
	}

	phases, err := parseAnalysis(resp.Text)
	if err != nil {
		return flow.State{}, err
	}

	s.Deps.logger().Info("analysis complete",
		"conversation_id", state.ConversationID,
		"provider", resp.Provider,
		"tokens", resp.TokensUsed)

	return flow.State{
		ClusterAnalysis:     phases.Clusters,
		InteractionAnalysis: phases.Interaction,
		PatternsInsights:    phases.Patterns,
		SuggestionsPayload:  phases.Suggestions,
		TokensUsed:          resp.TokensUsed,
	}, nil
}

type analysisPhases struct {
	Clusters    map[string]any `json:"cluster_analysis"`
	Interaction map[string]any `json:"interaction_analysis"`
	Patterns    map[string]any `json:"patterns_insights"`
	Suggestions map[string]any `json:"suggestions"`
}

// parseAnalysis decodes the model output. Models occasionally wrap the JSON
// in prose or markdown fences, so a direct parse falls back to extracting
// the outermost object.
func parseAnalysis(text string) (analysisPhases, error) {
	var phases analysisPhases
	if err := json.Unmarshal([]byte(text), &phases); err == nil {
		return phases, nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || start >= end {
		return analysisPhases{}, errors.New("no JSON object found in analysis response")
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &phases); err != nil {
		return analysisPhases{}, fmt.Errorf("parse analysis response: %w", err)
	}
	return phases, nil
}
