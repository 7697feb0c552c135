package flow

// Plan is the resolved, ordered sequence of steps for one run. It may
// contain the same step more than once and is never mutated after a run
// starts.
type Plan []StepID

// Strings returns the plan as plain step names, for responses and traces.
func (p Plan) Strings() []string {
	out := make([]string, len(p))
	for i, id := range p {
		out[i] = string(id)
	}
	return out
}

// clone returns an independent copy so a caller cannot mutate a preset or
// default plan through an aliased slice.
func (p Plan) clone() Plan {
	if p == nil {
		return nil
	}
	out := make(Plan, len(p))
	copy(out, p)
	return out
}

// Flows is the process-wide, read-only plan configuration: the default plan
// used when a request names no workflow, and the preset table. Construct it
// once at start-up and share it; it is never mutated afterwards.
type Flows struct {
	Default Plan
	Presets map[string]Plan
}

// DefaultFlows returns the canonical flow configuration.
//
// The default plan runs email twice, once after persistence and once after
// the analysis is saved. The repeat is intentional (a first notification
// when the transcript lands, a second with the analysis attached) and must
// not be deduplicated; override Default in config to change it.
func DefaultFlows() Flows {
	return Flows{
		Default: Plan{
			StepReconstruct,
			StepPersist,
			StepEmail,
			StepAnalyze,
			StepSuggest,
			StepSaveAnalysis,
			StepEmail,
		},
		Presets: map[string]Plan{
			"full":                 {StepReconstruct, StepPersist, StepEmail, StepAnalyze, StepSuggest, StepSaveAnalysis},
			"quick":                {StepReconstruct, StepPersist},
			"analysis_only":        {StepAnalyze, StepSuggest, StepSaveAnalysis},
			"no_email":             {StepReconstruct, StepPersist, StepAnalyze, StepSuggest, StepSaveAnalysis},
			"with_email":           {StepReconstruct, StepPersist, StepEmail},
			"analysis_and_suggest": {StepAnalyze, StepSuggest},
			"reconstruct_only":     {StepReconstruct},
			"persist_only":         {StepPersist},
			"email_only":           {StepEmail},
			"analyze_only":         {StepAnalyze},
			"suggest_only":         {StepSuggest},
			"save_analysis_only":   {StepSaveAnalysis},
		},
	}
}

// Request is a parsed workflow request. At most one of Preset and Steps is
// set; both empty means "run the default plan".
type Request struct {
	// Preset holds a single workflow name: either a preset key or, when it
	// matches no preset, the name of a single step to run on its own.
	Preset string

	// Steps holds an explicit ordered list of step names.
	Steps []string
}

// Resolver turns workflow requests into concrete plans, validated against
// the step registry.
type Resolver struct {
	flows    Flows
	registry *Registry
}

// NewResolver creates a resolver over the given flow configuration and
// registry.
func NewResolver(flows Flows, registry *Registry) *Resolver {
	return &Resolver{flows: flows, registry: registry}
}

// Flows returns the resolver's flow configuration, for introspection.
func (r *Resolver) Flows() Flows {
	return r.flows
}

// Resolve produces the ordered plan for a request.
//
// Resolution rules:
//   - empty request: the configured default plan
//   - preset name: that preset's plan
//   - any other single name: a one-step plan of that name
//   - explicit list: the registered names in request order
//
// Names that are not registered are dropped; the dropped names are returned
// so the caller can log or report them. A resolution whose every step was
// dropped fails with EmptyPlanError. For a fixed registry and flow
// configuration, resolution is pure and deterministic.
func (r *Resolver) Resolve(req Request) (Plan, []string, error) {
	var candidate Plan

	switch {
	case len(req.Steps) > 0:
		candidate = make(Plan, 0, len(req.Steps))
		for _, name := range req.Steps {
			candidate = append(candidate, StepID(name))
		}
	case req.Preset != "":
		if preset, ok := r.flows.Presets[req.Preset]; ok {
			candidate = preset.clone()
		} else {
			candidate = Plan{StepID(req.Preset)}
		}
	default:
		candidate = r.flows.Default.clone()
	}

	plan := make(Plan, 0, len(candidate))
	var dropped []string
	for _, id := range candidate {
		if r.registry.Has(id) {
			plan = append(plan, id)
		} else {
			dropped = append(dropped, string(id))
		}
	}

	if len(plan) == 0 {
		return nil, dropped, &EmptyPlanError{Dropped: dropped}
	}
	return plan, dropped, nil
}
