package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dshills/convoflow/flow"
	"github.com/dshills/convoflow/store"
)

// runRequest is the POST /api/graph/run payload. Workflow accepts either a
// preset name ("full", "quick", ...) or an explicit step list
// (["reconstruct", "email"]); omitted it runs the default flow.
type runRequest struct {
	Workflow json.RawMessage `json:"workflow"`
	State    runState        `json:"state"`
}

// runState is the caller-supplied initial state. Fields like Transcript and
// ClusterAnalysis allow entering the flow midway with earlier results
// already in hand.
type runState struct {
	TenantKey          string         `json:"tenant_key"`
	ConversationID     string         `json:"conversationId"`
	CoCode             string         `json:"co_code"`
	OrgnCode           string         `json:"orgn_code"`
	UserID             string         `json:"user_id"`
	CallerID           string         `json:"caller_id"`
	Scope              []string       `json:"scope"`
	Location           string         `json:"location"`
	Inbound            string         `json:"inbound"`
	Outbound           string         `json:"outbound"`
	ProjectName        string         `json:"project_name"`
	KnowledgeBaseFiles []string       `json:"knowledge_base_files"`
	Transcript         string         `json:"transcript"`
	Reconstruction     map[string]any `json:"reconstruction"`
	ClusterAnalysis    map[string]any `json:"cluster_analysis"`
}

func (r runRequest) workflowRequest() (flow.Request, error) {
	if len(r.Workflow) == 0 {
		return flow.Request{}, nil
	}
	var preset string
	if err := json.Unmarshal(r.Workflow, &preset); err == nil {
		return flow.Request{Preset: preset}, nil
	}
	var steps []string
	if err := json.Unmarshal(r.Workflow, &steps); err == nil {
		return flow.Request{Steps: steps}, nil
	}
	return flow.Request{}, errors.New("workflow must be a preset name or a list of step names")
}

func (r runState) initialState(plan flow.Plan) flow.State {
	return flow.State{
		Plan:               plan,
		TenantKey:          r.TenantKey,
		ConversationID:     r.ConversationID,
		CoCode:             r.CoCode,
		OrgnCode:           r.OrgnCode,
		UserID:             r.UserID,
		CallerID:           r.CallerID,
		Scope:              r.Scope,
		Location:           r.Location,
		Inbound:            r.Inbound,
		Outbound:           r.Outbound,
		ProjectName:        r.ProjectName,
		KnowledgeBaseFiles: r.KnowledgeBaseFiles,
		Transcript:         r.Transcript,
		Reconstruction:     r.Reconstruction,
		ClusterAnalysis:    r.ClusterAnalysis,
	}
}

// stateResponse mirrors the response contract of the platform's graph
// controller.
func stateResponse(st flow.State) gin.H {
	return gin.H{
		"conversation_id":    st.ConversationID,
		"transcript":         st.Transcript,
		"persistence_result": st.PersistenceResult,
		"email_result":       st.EmailResult,
		"tokens_used":        st.TokensUsed,
		"cost_usd":           st.CostUSD,
		"analysis": gin.H{
			"clusters":    st.ClusterAnalysis,
			"interaction": st.InteractionAnalysis,
			"patterns":    st.PatternsInsights,
		},
		"suggestions":  st.Suggestions,
		"action_plan":  st.ActionPlan,
		"final_status": st.FinalStatus,
	}
}

// handleRun resolves the requested workflow and executes it synchronously.
// Plan resolution failures are client errors; a failing step is not, the
// run completes with success=false and the error recorded in the response.
func (s *Server) handleRun(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request: %v", err)})
		return
	}

	wfReq, err := req.workflowRequest()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	plan, dropped, err := s.resolver.Resolve(wfReq)
	if err != nil {
		var empty *flow.EmptyPlanError
		if errors.As(err, &empty) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":         "no valid steps in requested workflow",
				"dropped_steps": empty.Dropped,
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(dropped) > 0 {
		s.logger.Warn("dropped unknown workflow steps", "dropped", dropped)
	}

	runID := uuid.NewString()
	s.logger.Info("starting workflow", "run_id", runID, "plan", plan.Strings())

	result, err := s.engine.Run(c.Request.Context(), runID, req.State.initialState(plan))
	if err != nil {
		s.logger.Error("workflow engine fault", "run_id", runID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "run_id": runID})
		return
	}

	resp := gin.H{
		"success":           !result.Failed(),
		"run_id":            runID,
		"workflow_executed": plan.Strings(),
		"execution_trace":   result.State.ExecutionTrace,
		"state":             stateResponse(result.State),
	}
	if result.State.Error != "" {
		resp["error"] = result.State.Error
	}
	c.JSON(http.StatusOK, resp)
}

// handleWorkflows reports the available steps and preset workflows.
func (s *Server) handleWorkflows(c *gin.Context) {
	flows := s.resolver.Flows()

	presets := make(map[string][]string, len(flows.Presets))
	for name, plan := range flows.Presets {
		presets[name] = plan.Strings()
	}

	steps := make([]string, 0, s.registry.Len())
	for _, id := range s.registry.IDs() {
		steps = append(steps, string(id))
	}

	c.JSON(http.StatusOK, gin.H{
		"available_steps":  steps,
		"preset_workflows": presets,
		"default_flow":     flows.Default.Strings(),
		"usage_examples": gin.H{
			"full_flow": gin.H{
				"description": "Run the complete flow",
				"workflow":    "full",
			},
			"custom_flow": gin.H{
				"description": "Run selected steps in a custom order",
				"workflow":    []string{"reconstruct", "analyze", "persist"},
			},
			"single_step": gin.H{
				"description": "Run a single step",
				"workflow":    []string{"email"},
			},
		},
	})
}

// handleRunHistory returns the persisted step progression of a run.
func (s *Server) handleRunHistory(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "run persistence is not configured"})
		return
	}

	runID := c.Param("runID")
	records, err := s.runs.History(c.Request.Context(), runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found", "run_id": runID})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	steps := make([]gin.H, 0, len(records))
	for _, rec := range records {
		steps = append(steps, gin.H{
			"step":            rec.Step,
			"step_id":         rec.StepID,
			"execution_trace": rec.State.ExecutionTrace,
			"error":           rec.State.Error,
		})
	}
	c.JSON(http.StatusOK, gin.H{"run_id": runID, "steps": steps})
}
