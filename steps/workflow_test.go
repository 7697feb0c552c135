package steps

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dshills/convoflow/client"
	"github.com/dshills/convoflow/flow"
	"github.com/dshills/convoflow/model"
	"github.com/dshills/convoflow/store"
)

// newWorkflowEngine wires real step handlers against httptest backends and a
// mock model, the same shape as production wiring minus the network.
func newWorkflowEngine(t *testing.T, deps Deps) *flow.Engine {
	t.Helper()
	reg := flow.NewRegistry()
	if err := Register(reg, deps); err != nil {
		t.Fatalf("Register: %v", err)
	}
	eng, err := flow.New(reg, flow.DefaultFlows())
	if err != nil {
		t.Fatalf("flow.New: %v", err)
	}
	return eng
}

func TestWorkflow_QuickPreset(t *testing.T) {
	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("audio"))
	}))
	defer files.Close()
	audio := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(client.ReconstructionResponse{
			ReconstructedTranscript: "hello",
			Usage:                   client.Usage{Tokens: 100, CostUSD: 0.001},
		})
	}))
	defer audio.Close()
	persist := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(client.SaveResponse{ID: "1", Status: "OK"})
	}))
	defer persist.Close()

	deps := testDeps(t)
	deps.Client = testClient(t,
		client.WithBaseURL(persist.URL),
		client.WithFileServiceURL(files.URL),
		client.WithGoogleAPIURL(audio.URL),
		client.WithLogger(deps.Logger))
	eng := newWorkflowEngine(t, deps)

	result, err := eng.Run(context.Background(), "run-quick", flow.State{
		Plan:           flow.DefaultFlows().Presets["quick"],
		ConversationID: "conv-1",
		TenantKey:      "tenant-a",
		Location:       "loc-1",
		Inbound:        "in.wav",
		Outbound:       "out.wav",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Failed() {
		t.Fatalf("run failed: %s", result.State.Error)
	}
	if got := result.State.ExecutionTrace; len(got) != 2 || got[0] != "reconstruct" || got[1] != "persist" {
		t.Errorf("trace = %v", got)
	}
	if result.State.Transcript != "hello" {
		t.Errorf("transcript = %q", result.State.Transcript)
	}
	if result.State.PersistenceResult != "OK:1" {
		t.Errorf("persistence = %q", result.State.PersistenceResult)
	}
}

func TestWorkflow_FailingStepHaltsPlan(t *testing.T) {
	deps := testDeps(t)
	deps.Model = &model.MockModel{Responses: []string{analysisJSON}}
	deps.Analyses = store.NewMemStore[flow.State]()
	eng := newWorkflowEngine(t, deps)

	// Reconstruct fails immediately: no client is configured.
	result, err := eng.Run(context.Background(), "run-fail", flow.State{
		Plan:      flow.DefaultFlows().Presets["full"],
		TenantKey: "tenant-a",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !result.Failed() {
		t.Fatal("expected failed run")
	}
	trace := result.State.ExecutionTrace
	if len(trace) != 1 || trace[0] != "reconstruct[ERROR]" {
		t.Errorf("trace = %v", trace)
	}
	if !strings.Contains(result.State.Error, "reconstruct") {
		t.Errorf("error = %q", result.State.Error)
	}
	if result.State.FinalStatus == "COMPLETED" {
		t.Error("run completed despite step failure")
	}
}

func TestWorkflow_AnalysisOnly(t *testing.T) {
	mem := store.NewMemStore[flow.State]()
	deps := testDeps(t)
	deps.Model = &model.MockModel{Responses: []string{analysisJSON}, Tokens: 800}
	deps.Analyses = mem
	eng := newWorkflowEngine(t, deps)

	result, err := eng.Run(context.Background(), "run-analysis", flow.State{
		Plan:           flow.DefaultFlows().Presets["analysis_only"],
		ConversationID: "conv-9",
		Transcript:     "operator and child build a tower together",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Failed() {
		t.Fatalf("run failed: %s", result.State.Error)
	}
	if got := result.State.ExecutionTrace; len(got) != 3 || got[2] != "save_analysis" {
		t.Errorf("trace = %v", got)
	}
	if result.State.FinalStatus != "COMPLETED" || !result.State.AnalysisSaved {
		t.Errorf("state = status %q, saved %v", result.State.FinalStatus, result.State.AnalysisSaved)
	}
	if len(result.State.Suggestions) == 0 || len(result.State.ActionPlan) == 0 {
		t.Error("suggestion phase produced no output")
	}

	rec, err := mem.LatestAnalysis(context.Background(), "conv-9")
	if err != nil {
		t.Fatalf("LatestAnalysis: %v", err)
	}
	if rec.TokensUsed != 800 {
		t.Errorf("persisted tokens = %d", rec.TokensUsed)
	}
}
