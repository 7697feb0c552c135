// Package steps implements the workflow step handlers: audio reconstruction,
// transcript persistence, email notification, AI analysis, suggestion
// generation, and analysis storage.
package steps

import (
	"log/slog"

	"github.com/dshills/convoflow/client"
	"github.com/dshills/convoflow/flow"
	"github.com/dshills/convoflow/model"
	"github.com/dshills/convoflow/store"
)

// Deps carries the external dependencies shared by the step handlers.
type Deps struct {
	// Client calls the internal platform APIs. Required by the
	// reconstruct, persist, and email steps.
	Client *client.Client

	// Model performs AI analysis. Required by the analyze step.
	Model model.ChatModel

	// Analyses persists completed analysis results. Optional: when nil the
	// save_analysis step only marks completion.
	Analyses store.AnalysisStore

	// EmailEndpoint is the notification API URL. Empty leaves the email
	// step unimplemented, mirroring the platform it integrates with.
	EmailEndpoint string

	// Logger for step diagnostics. Nil falls back to slog.Default.
	Logger *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Register registers all six step handlers on the registry.
func Register(reg *flow.Registry, deps Deps) error {
	handlers := map[flow.StepID]flow.Step{
		flow.StepReconstruct:  &ReconstructStep{Deps: deps},
		flow.StepPersist:      &PersistStep{Deps: deps},
		flow.StepEmail:        &EmailStep{Deps: deps},
		flow.StepAnalyze:      &AnalyzeStep{Deps: deps},
		flow.StepSuggest:      &SuggestStep{Deps: deps},
		flow.StepSaveAnalysis: &SaveAnalysisStep{Deps: deps},
	}
	for _, id := range flow.AllSteps() {
		if err := reg.Register(id, handlers[id]); err != nil {
			return err
		}
	}
	return nil
}
