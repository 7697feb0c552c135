package steps

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dshills/convoflow/client"
	"github.com/dshills/convoflow/flow"
	"github.com/dshills/convoflow/model"
	"github.com/dshills/convoflow/store"
)

func testDeps(t *testing.T) Deps {
	t.Helper()
	return Deps{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func testClient(t *testing.T, opts ...client.Option) *client.Client {
	t.Helper()
	c, err := client.New("test-key", opts...)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	return c
}

func TestRegister(t *testing.T) {
	reg := flow.NewRegistry()
	if err := Register(reg, testDeps(t)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if reg.Len() != len(flow.AllSteps()) {
		t.Errorf("registered %d steps, want %d", reg.Len(), len(flow.AllSteps()))
	}
	for _, id := range flow.AllSteps() {
		if !reg.Has(id) {
			t.Errorf("step %s not registered", id)
		}
	}
}

func TestPersistStep(t *testing.T) {
	t.Run("skips without conversation ID", func(t *testing.T) {
		step := &PersistStep{Deps: testDeps(t)}
		delta, err := step.Run(context.Background(), flow.State{})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if delta.PersistenceResult != "SKIPPED" {
			t.Errorf("result = %q", delta.PersistenceResult)
		}
	})

	t.Run("requires a client", func(t *testing.T) {
		step := &PersistStep{Deps: testDeps(t)}
		if _, err := step.Run(context.Background(), flow.State{ConversationID: "conv-1"}); err == nil {
			t.Fatal("expected error without client")
		}
	})

	t.Run("saves through the internal API", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(client.SaveResponse{ID: "1", Status: "OK"})
		}))
		defer srv.Close()

		deps := testDeps(t)
		deps.Client = testClient(t, client.WithBaseURL(srv.URL), client.WithLogger(deps.Logger))
		step := &PersistStep{Deps: deps}

		delta, err := step.Run(context.Background(), flow.State{ConversationID: "conv-1", Transcript: "hello"})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if delta.PersistenceResult != "OK:1" {
			t.Errorf("result = %q, want OK:1", delta.PersistenceResult)
		}
	})

	t.Run("persistence failure is a result not a step error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusBadGateway)
		}))
		defer srv.Close()

		deps := testDeps(t)
		deps.Client = testClient(t, client.WithBaseURL(srv.URL), client.WithLogger(deps.Logger))
		step := &PersistStep{Deps: deps}

		delta, err := step.Run(context.Background(), flow.State{ConversationID: "conv-1"})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if !strings.HasPrefix(delta.PersistenceResult, "ERROR") {
			t.Errorf("result = %q", delta.PersistenceResult)
		}
	})
}

func TestEmailStep(t *testing.T) {
	t.Run("not implemented without endpoint", func(t *testing.T) {
		step := &EmailStep{Deps: testDeps(t)}
		delta, err := step.Run(context.Background(), flow.State{})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if delta.EmailResult != "NOT_IMPLEMENTED" {
			t.Errorf("result = %q", delta.EmailResult)
		}
	})

	t.Run("posts the notification payload", func(t *testing.T) {
		var got map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("decode: %v", err)
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		deps := testDeps(t)
		deps.Client = testClient(t, client.WithLogger(deps.Logger))
		deps.EmailEndpoint = srv.URL
		step := &EmailStep{Deps: deps}

		delta, err := step.Run(context.Background(), flow.State{
			ConversationID: "conv-1",
			TenantKey:      "tenant-a",
			FinalStatus:    "COMPLETED",
		})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if delta.EmailResult != "SENT" {
			t.Errorf("result = %q", delta.EmailResult)
		}
		if got["conversationId"] != "conv-1" || got["tenantKey"] != "tenant-a" {
			t.Errorf("payload = %v", got)
		}
	})
}

func TestReconstructStep(t *testing.T) {
	t.Run("validates inputs", func(t *testing.T) {
		deps := testDeps(t)
		deps.Client = testClient(t, client.WithLogger(deps.Logger))
		step := &ReconstructStep{Deps: deps}

		if _, err := step.Run(context.Background(), flow.State{TenantKey: "t"}); err == nil {
			t.Error("expected error without audio file fields")
		}
		if _, err := step.Run(context.Background(), flow.State{
			Location: "loc", Inbound: "in.wav", Outbound: "out.wav",
		}); err == nil {
			t.Error("expected error without tenant key")
		}
	})

	t.Run("fans the reconstruction out into state", func(t *testing.T) {
		files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("audio"))
		}))
		defer files.Close()
		audio := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(client.ReconstructionResponse{
				Files:                   []string{"in.wav", "out.wav"},
				ReconstructedTranscript: "merged",
				Usage:                   client.Usage{Tokens: 42, CostUSD: 0.002},
			})
		}))
		defer audio.Close()

		deps := testDeps(t)
		deps.Client = testClient(t,
			client.WithFileServiceURL(files.URL),
			client.WithGoogleAPIURL(audio.URL),
			client.WithLogger(deps.Logger))
		step := &ReconstructStep{Deps: deps}

		delta, err := step.Run(context.Background(), flow.State{
			Location: "loc", Inbound: "in.wav", Outbound: "out.wav", TenantKey: "t",
		})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if delta.Transcript != "merged" {
			t.Errorf("transcript = %q", delta.Transcript)
		}
		if delta.TokensUsed != 42 || delta.CostUSD != 0.002 {
			t.Errorf("usage = %d tokens, %v USD", delta.TokensUsed, delta.CostUSD)
		}
		if delta.Reconstruction["reconstructedTranscript"] != "merged" {
			t.Errorf("reconstruction = %v", delta.Reconstruction)
		}
	})
}

const analysisJSON = `{
	"cluster_analysis": {
		"functional_communication": {"score": 2, "evidence": "points and vocalizes"},
		"socialization": {"score": 3, "evidence": "seeks adult contact during play"}
	},
	"interaction_analysis": {"strategy_effectiveness": "high"},
	"patterns_insights": {
		"correlations": ["calm after movement breaks"],
		"weak_signals": ["avoids counting games"]
	},
	"suggestions": {"summary": "steady progress"}
}`

func TestAnalyzeStep(t *testing.T) {
	t.Run("requires model and transcript", func(t *testing.T) {
		step := &AnalyzeStep{Deps: testDeps(t)}
		if _, err := step.Run(context.Background(), flow.State{Transcript: "hi"}); err == nil {
			t.Error("expected error without model")
		}

		deps := testDeps(t)
		deps.Model = &model.MockModel{Responses: []string{analysisJSON}}
		step = &AnalyzeStep{Deps: deps}
		if _, err := step.Run(context.Background(), flow.State{}); err == nil {
			t.Error("expected error without transcript")
		}
	})

	t.Run("fans phases out into state", func(t *testing.T) {
		mock := &model.MockModel{Responses: []string{analysisJSON}, Tokens: 500}
		deps := testDeps(t)
		deps.Model = mock
		step := &AnalyzeStep{Deps: deps}

		delta, err := step.Run(context.Background(), flow.State{
			Transcript:         "session transcript",
			KnowledgeBaseFiles: []string{"criteria.pdf"},
		})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if _, ok := delta.ClusterAnalysis["functional_communication"]; !ok {
			t.Errorf("clusters = %v", delta.ClusterAnalysis)
		}
		if delta.InteractionAnalysis["strategy_effectiveness"] != "high" {
			t.Errorf("interaction = %v", delta.InteractionAnalysis)
		}
		if delta.TokensUsed != 500 {
			t.Errorf("tokens = %d", delta.TokensUsed)
		}

		if len(mock.Calls) != 1 {
			t.Fatalf("model calls = %d", len(mock.Calls))
		}
		req := mock.Calls[0]
		if !req.JSON {
			t.Error("request did not ask for JSON mode")
		}
		if !strings.Contains(req.Prompt, "session transcript") {
			t.Error("prompt missing transcript")
		}
		if !strings.Contains(req.Prompt, "criteria.pdf") {
			t.Error("prompt missing knowledge base files")
		}
	})

	t.Run("tolerates markdown-fenced JSON", func(t *testing.T) {
		deps := testDeps(t)
		deps.Model = &model.MockModel{Responses: []string{"```json\n" + analysisJSON + "\n```"}}
		step := &AnalyzeStep{Deps: deps}

		delta, err := step.Run(context.Background(), flow.State{Transcript: "t"})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if len(delta.ClusterAnalysis) == 0 {
			t.Error("fenced JSON not parsed")
		}
	})

	t.Run("rejects non-JSON output", func(t *testing.T) {
		deps := testDeps(t)
		deps.Model = &model.MockModel{Responses: []string{"I cannot analyze this."}}
		step := &AnalyzeStep{Deps: deps}

		if _, err := step.Run(context.Background(), flow.State{Transcript: "t"}); err == nil {
			t.Fatal("expected parse error")
		}
	})
}

func TestSuggestStep(t *testing.T) {
	t.Run("placeholder without analysis", func(t *testing.T) {
		step := &SuggestStep{Deps: testDeps(t)}
		delta, err := step.Run(context.Background(), flow.State{})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if delta.Suggestions["note"] != "analysis not available" {
			t.Errorf("suggestions = %v", delta.Suggestions)
		}
		if delta.ActionPlan["note"] != "plan not generated" {
			t.Errorf("plan = %v", delta.ActionPlan)
		}
	})

	t.Run("builds report and plan from analysis", func(t *testing.T) {
		var phases struct {
			Clusters    map[string]any `json:"cluster_analysis"`
			Interaction map[string]any `json:"interaction_analysis"`
			Patterns    map[string]any `json:"patterns_insights"`
		}
		if err := json.Unmarshal([]byte(analysisJSON), &phases); err != nil {
			t.Fatalf("unmarshal fixture: %v", err)
		}

		step := &SuggestStep{Deps: testDeps(t)}
		delta, err := step.Run(context.Background(), flow.State{
			ClusterAnalysis:     phases.Clusters,
			InteractionAnalysis: phases.Interaction,
			PatternsInsights:    phases.Patterns,
		})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}

		summary, ok := delta.Suggestions["summary_report"].(map[string]any)
		if !ok {
			t.Fatalf("suggestions = %v", delta.Suggestions)
		}
		strengths, _ := summary["strengths"].([]string)
		if len(strengths) != 1 || !strings.HasPrefix(strengths[0], "socialization:") {
			t.Errorf("strengths = %v", strengths)
		}
		improvements, _ := summary["improvement_areas"].([]string)
		if len(improvements) != 1 || !strings.Contains(improvements[0], "score: 2/4") {
			t.Errorf("improvements = %v", improvements)
		}

		advice, _ := delta.Suggestions["advice"].(map[string]any)
		strategies, _ := advice["alternative_strategies"].([]string)
		if len(strategies) == 0 {
			t.Error("low communication score produced no strategies")
		}
		approaches, _ := advice["specific_approaches"].([]string)
		if len(approaches) != 1 {
			t.Errorf("approaches = %v", approaches)
		}

		goals, _ := delta.ActionPlan["smart_goals"].([]string)
		foundCounting := false
		for _, g := range goals {
			if strings.Contains(g, "calculation") {
				foundCounting = true
			}
		}
		if !foundCounting {
			t.Errorf("counting weak signal produced no goal: %v", goals)
		}
		checklist, _ := delta.ActionPlan["observation_checklist"].([]string)
		if len(checklist) != 4 {
			t.Errorf("checklist = %v", checklist)
		}
	})
}

func TestSaveAnalysisStep(t *testing.T) {
	t.Run("marks completion without a store", func(t *testing.T) {
		step := &SaveAnalysisStep{Deps: testDeps(t)}
		delta, err := step.Run(context.Background(), flow.State{})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if !delta.AnalysisSaved || delta.FinalStatus != "COMPLETED" {
			t.Errorf("delta = %+v", delta)
		}
	})

	t.Run("persists the analysis record", func(t *testing.T) {
		mem := store.NewMemStore[flow.State]()
		deps := testDeps(t)
		deps.Analyses = mem
		step := &SaveAnalysisStep{Deps: deps}

		_, err := step.Run(context.Background(), flow.State{
			ConversationID:  "conv-1",
			TenantKey:       "tenant-a",
			ClusterAnalysis: map[string]any{"socialization": map[string]any{"score": 3}},
			Suggestions:     map[string]any{"summary_report": map[string]any{}},
			TokensUsed:      500,
			CostUSD:         0.01,
		})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}

		rec, err := mem.LatestAnalysis(context.Background(), "conv-1")
		if err != nil {
			t.Fatalf("LatestAnalysis: %v", err)
		}
		if rec.TenantKey != "tenant-a" || rec.TokensUsed != 500 {
			t.Errorf("record = %+v", rec)
		}
		if _, ok := rec.Analysis["cluster_analysis"]; !ok {
			t.Errorf("analysis payload = %v", rec.Analysis)
		}
	})
}
