package flow

import (
	"context"
	"sort"
	"sync"
)

// StepID identifies a registered step. The set of step identifiers is a
// closed enumeration: internal code routes through these constants and gets
// compile-time typo detection, while externally supplied plans are still
// validated against the registry at resolution time.
type StepID string

// The canonical steps of the conversation pipeline.
const (
	StepReconstruct  StepID = "reconstruct"
	StepPersist      StepID = "persist"
	StepEmail        StepID = "email"
	StepAnalyze      StepID = "analyze"
	StepSuggest      StepID = "suggest"
	StepSaveAnalysis StepID = "save_analysis"
)

// AllSteps lists every canonical step in pipeline order.
func AllSteps() []StepID {
	return []StepID{
		StepReconstruct,
		StepPersist,
		StepEmail,
		StepAnalyze,
		StepSuggest,
		StepSaveAnalysis,
	}
}

// Step is a named unit of work executed against the shared state.
//
// A step receives the current state (a read-only view sufficient to compute
// its update) and returns a partial State to be merged shallowly into the
// run's state, or an error with a human-readable message. Steps must be
// idempotent with respect to re-invocation within one plan (a name may
// legally appear more than once) and must not set the engine-owned control
// fields in their delta.
type Step interface {
	Run(ctx context.Context, state State) (State, error)
}

// StepFunc adapts a plain function to the Step interface.
type StepFunc func(ctx context.Context, state State) (State, error)

// Run implements Step for StepFunc.
func (f StepFunc) Run(ctx context.Context, state State) (State, error) {
	return f(ctx, state)
}

// Registry maps step identifiers to their handlers. It is built once at
// process start and is read-only thereafter; the mutex only guards the
// construction phase.
type Registry struct {
	mu    sync.RWMutex
	steps map[StepID]Step
}

// NewRegistry creates an empty step registry.
func NewRegistry() *Registry {
	return &Registry{steps: make(map[StepID]Step)}
}

// Register adds a step under the given identifier.
//
// Returns a DuplicateStepError if the identifier is already registered and
// an EngineError if the identifier is empty or the step nil.
func (r *Registry) Register(id StepID, step Step) error {
	if id == "" {
		return &EngineError{Message: "step ID cannot be empty"}
	}
	if step == nil {
		return &EngineError{Message: "step cannot be nil"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.steps[id]; exists {
		return &DuplicateStepError{ID: id}
	}
	r.steps[id] = step
	return nil
}

// Resolve returns the handler registered under id, or an UnknownStepError.
func (r *Registry) Resolve(id StepID) (Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	step, ok := r.steps[id]
	if !ok {
		return nil, &UnknownStepError{ID: id}
	}
	return step, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id StepID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.steps[id]
	return ok
}

// IDs returns the registered step identifiers in sorted order, for plan
// validation and the introspection endpoint.
func (r *Registry) IDs() []StepID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]StepID, 0, len(r.steps))
	for id := range r.steps {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of registered steps.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.steps)
}
