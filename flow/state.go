// Package flow provides the dynamic workflow execution engine for convoflow.
package flow

// State is the shared record a workflow run operates on. It is the sole
// channel by which steps communicate with each other and with the router.
//
// The control fields (Plan, CurrentStepIndex, ExecutionTrace, SkipRemaining,
// Error) are owned by the engine: they are advanced by the tracked step
// wrapper and read by the router. Step handlers must never set them in a
// delta; Reduce ignores them and the wrapper strips them defensively.
//
// Everything else is domain payload owned by the step handlers. Handlers
// return partial States (deltas) that are merged shallowly into the current
// state, last writer wins.
type State struct {
	// Engine-owned control fields.
	Plan             Plan     `json:"plan,omitempty"`
	CurrentStepIndex int      `json:"current_step_index"`
	ExecutionTrace   []string `json:"execution_trace,omitempty"`
	SkipRemaining    bool     `json:"skip_remaining,omitempty"`
	Error            string   `json:"error,omitempty"`

	// Conversation identity and storage pointers.
	ConversationID     string   `json:"conversation_id,omitempty"`
	TenantKey          string   `json:"tenant_key,omitempty"`
	CoCode             string   `json:"co_code,omitempty"`
	OrgnCode           string   `json:"orgn_code,omitempty"`
	UserID             string   `json:"user_id,omitempty"`
	CallerID           string   `json:"caller_id,omitempty"`
	Scope              []string `json:"scope,omitempty"`
	Location           string   `json:"location,omitempty"`
	Inbound            string   `json:"inbound,omitempty"`
	Outbound           string   `json:"outbound,omitempty"`
	ProjectName        string   `json:"project_name,omitempty"`
	KnowledgeBaseFiles []string `json:"knowledge_base_files,omitempty"`

	// Reconstruction results.
	Transcript     string         `json:"transcript,omitempty"`
	Reconstruction map[string]any `json:"reconstruction,omitempty"`

	// Side-effect results.
	PersistenceResult string `json:"persistence_result,omitempty"`
	EmailResult       string `json:"email_result,omitempty"`

	// AI analysis phases.
	ClusterAnalysis     map[string]any `json:"cluster_analysis,omitempty"`
	InteractionAnalysis map[string]any `json:"interaction_analysis,omitempty"`
	PatternsInsights    map[string]any `json:"patterns_insights,omitempty"`
	SuggestionsPayload  map[string]any `json:"suggestions_payload,omitempty"`
	Suggestions         map[string]any `json:"suggestions,omitempty"`
	ActionPlan          map[string]any `json:"action_plan,omitempty"`

	// Usage metrics and completion markers.
	TokensUsed    int     `json:"tokens_used,omitempty"`
	CostUSD       float64 `json:"cost_usd,omitempty"`
	AnalysisSaved bool    `json:"analysis_saved,omitempty"`
	FinalStatus   string  `json:"final_status,omitempty"`

	// Extra carries arbitrary domain keys that have no dedicated field.
	// Merged key-by-key, last writer wins.
	Extra map[string]any `json:"extra,omitempty"`
}

// Reduce merges a step delta into the previous state. The merge is shallow:
// non-zero delta fields overwrite top-level keys, last writer wins, and Extra
// is merged key-by-key.
//
// Control fields are NOT merged here; only the engine applies them, via
// applyControl, after the tracked wrapper has produced them. A handler that
// sets a control field in its delta is silently ignored.
func Reduce(prev, delta State) State {
	if delta.ConversationID != "" {
		prev.ConversationID = delta.ConversationID
	}
	if delta.TenantKey != "" {
		prev.TenantKey = delta.TenantKey
	}
	if delta.CoCode != "" {
		prev.CoCode = delta.CoCode
	}
	if delta.OrgnCode != "" {
		prev.OrgnCode = delta.OrgnCode
	}
	if delta.UserID != "" {
		prev.UserID = delta.UserID
	}
	if delta.CallerID != "" {
		prev.CallerID = delta.CallerID
	}
	if len(delta.Scope) > 0 {
		prev.Scope = delta.Scope
	}
	if delta.Location != "" {
		prev.Location = delta.Location
	}
	if delta.Inbound != "" {
		prev.Inbound = delta.Inbound
	}
	if delta.Outbound != "" {
		prev.Outbound = delta.Outbound
	}
	if delta.ProjectName != "" {
		prev.ProjectName = delta.ProjectName
	}
	if len(delta.KnowledgeBaseFiles) > 0 {
		prev.KnowledgeBaseFiles = delta.KnowledgeBaseFiles
	}
	if delta.Transcript != "" {
		prev.Transcript = delta.Transcript
	}
	if delta.Reconstruction != nil {
		prev.Reconstruction = delta.Reconstruction
	}
	if delta.PersistenceResult != "" {
		prev.PersistenceResult = delta.PersistenceResult
	}
	if delta.EmailResult != "" {
		prev.EmailResult = delta.EmailResult
	}
	if delta.ClusterAnalysis != nil {
		prev.ClusterAnalysis = delta.ClusterAnalysis
	}
	if delta.InteractionAnalysis != nil {
		prev.InteractionAnalysis = delta.InteractionAnalysis
	}
	if delta.PatternsInsights != nil {
		prev.PatternsInsights = delta.PatternsInsights
	}
	if delta.SuggestionsPayload != nil {
		prev.SuggestionsPayload = delta.SuggestionsPayload
	}
	if delta.Suggestions != nil {
		prev.Suggestions = delta.Suggestions
	}
	if delta.ActionPlan != nil {
		prev.ActionPlan = delta.ActionPlan
	}
	if delta.TokensUsed > 0 {
		prev.TokensUsed = delta.TokensUsed
	}
	if delta.CostUSD > 0 {
		prev.CostUSD = delta.CostUSD
	}
	if delta.AnalysisSaved {
		prev.AnalysisSaved = true
	}
	if delta.FinalStatus != "" {
		prev.FinalStatus = delta.FinalStatus
	}
	if len(delta.Extra) > 0 {
		if prev.Extra == nil {
			prev.Extra = make(map[string]any, len(delta.Extra))
		}
		for k, v := range delta.Extra {
			prev.Extra[k] = v
		}
	}
	return prev
}

// applyControl merges the wrapper-produced control fields into the state.
// The index only moves forward and trace entries are only appended, so a
// stale delta can never rewind a run.
func applyControl(prev, delta State) State {
	if delta.CurrentStepIndex > prev.CurrentStepIndex {
		prev.CurrentStepIndex = delta.CurrentStepIndex
	}
	if len(delta.ExecutionTrace) > len(prev.ExecutionTrace) {
		prev.ExecutionTrace = delta.ExecutionTrace
	}
	if delta.SkipRemaining {
		prev.SkipRemaining = true
	}
	if delta.Error != "" {
		prev.Error = delta.Error
	}
	return prev
}

// clearControl zeroes the engine-owned fields of a handler delta. Handlers
// must not advance the program counter or touch the trace; this enforces it.
func clearControl(delta State) State {
	delta.Plan = nil
	delta.CurrentStepIndex = 0
	delta.ExecutionTrace = nil
	delta.SkipRemaining = false
	delta.Error = ""
	return delta
}
