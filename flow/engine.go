// Package flow implements the workflow execution core: step registry, plan
// resolution, and a program-counter driven engine that walks an ordered plan
// of steps over a shared conversation state.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dshills/convoflow/flow/emit"
	"github.com/dshills/convoflow/store"
)

// DefaultMaxSteps bounds a single run. Plans are short lists so anything
// near this limit indicates a routing fault, not a legitimate workflow.
const DefaultMaxSteps = 100

// Options configures engine behavior.
type Options struct {
	// Store persists state after every step. Nil disables persistence.
	Store store.Store[State]

	// Emitter receives execution events. Nil disables emission.
	Emitter emit.Emitter

	// Metrics records Prometheus metrics. Nil disables recording.
	Metrics *Metrics

	// Logger for engine diagnostics. Nil falls back to slog.Default.
	Logger *slog.Logger

	// MaxSteps caps executed steps per run. Zero means DefaultMaxSteps.
	MaxSteps int
}

// Option mutates engine Options.
type Option func(*Options)

// WithStore sets the persistence backend.
func WithStore(s store.Store[State]) Option {
	return func(o *Options) { o.Store = s }
}

// WithEmitter sets the event emitter.
func WithEmitter(e emit.Emitter) Option {
	return func(o *Options) { o.Emitter = e }
}

// WithMetrics sets the Prometheus metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(o *Options) { o.Metrics = m }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithMaxSteps overrides the per-run step cap.
func WithMaxSteps(n int) Option {
	return func(o *Options) { o.MaxSteps = n }
}

// Engine executes workflow plans. It is safe for concurrent use: each Run
// owns its state value and the registry and flows are read-only after New.
type Engine struct {
	registry *Registry
	flows    Flows
	opts     Options
}

// New creates an engine over a populated registry and flow table.
func New(registry *Registry, flows Flows, opts ...Option) (*Engine, error) {
	if registry == nil {
		return nil, &EngineError{Message: "registry is required", Code: "INVALID_CONFIG"}
	}
	if registry.Len() == 0 {
		return nil, &EngineError{Message: "registry has no steps", Code: "INVALID_CONFIG"}
	}
	if len(flows.Default) == 0 {
		return nil, &EngineError{Message: "default flow is empty", Code: "INVALID_CONFIG"}
	}

	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.MaxSteps <= 0 {
		o.MaxSteps = DefaultMaxSteps
	}

	return &Engine{registry: registry, flows: flows, opts: o}, nil
}

// Result is the outcome of a completed run.
type Result struct {
	RunID string
	State State
	// Steps is the number of step executions performed by this Run call.
	Steps int
}

// Failed reports whether the run ended with a step failure.
func (r Result) Failed() bool { return r.State.Error != "" }

// Run executes the plan carried by the initial state, starting at its
// current step index. A state without a plan runs the default flow. Step
// failures do not abort the run with an error: they are recorded in the
// returned state (Error, trace marker) and the run terminates early. Run
// itself returns an error only for engine faults: context cancellation,
// unknown step identifiers, persistence failures, or the step cap.
func (e *Engine) Run(ctx context.Context, runID string, initial State) (Result, error) {
	state := initial
	if state.CurrentStepIndex < 0 {
		state.CurrentStepIndex = 0
	}
	if len(state.Plan) == 0 {
		state.Plan = e.flows.Default.clone()
	}

	log := e.opts.Logger.With("run_id", runID)
	e.opts.Metrics.RunStarted()
	defer e.opts.Metrics.RunEnded()

	e.emit(emit.Event{RunID: runID, Step: state.CurrentStepIndex, Msg: emit.MsgRunStart,
		Meta: map[string]any{"plan": state.Plan.Strings()}})

	executed := 0
	current := entryStep(state, e.flows.Default)
	for {
		if executed >= e.opts.MaxSteps {
			return Result{RunID: runID, State: state, Steps: executed},
				&EngineError{Message: fmt.Sprintf("step cap %d exceeded", e.opts.MaxSteps), Code: "MAX_STEPS"}
		}
		select {
		case <-ctx.Done():
			return Result{RunID: runID, State: state, Steps: executed}, ctx.Err()
		default:
		}

		step, err := e.registry.Resolve(current)
		if err != nil {
			return Result{RunID: runID, State: state, Steps: executed}, err
		}

		idx := state.CurrentStepIndex
		e.emit(emit.Event{RunID: runID, Step: idx, StepID: string(current), Msg: emit.MsgStepStart})
		log.Debug("step start", "step", current, "index", idx)

		start := time.Now()
		delta, failed := tracked{id: current, step: step}.run(ctx, state)
		latency := time.Since(start)

		state = applyControl(Reduce(state, delta), delta)
		executed++

		if failed {
			e.opts.Metrics.RecordStep(current, StatusError, latency)
			e.emit(emit.Event{RunID: runID, Step: idx, StepID: string(current), Msg: emit.MsgStepError,
				Meta: map[string]any{"error": state.Error}})
			log.Error("step failed", "step", current, "error", state.Error, "latency_ms", latency.Milliseconds())
		} else {
			e.opts.Metrics.RecordStep(current, StatusSuccess, latency)
			e.emit(emit.Event{RunID: runID, Step: idx, StepID: string(current), Msg: emit.MsgStepEnd,
				Meta: map[string]any{"latency_ms": latency.Milliseconds()}})
			log.Debug("step end", "step", current, "latency_ms", latency.Milliseconds())
		}

		if e.opts.Store != nil {
			if err := e.opts.Store.SaveStep(ctx, runID, executed, string(current), state); err != nil {
				return Result{RunID: runID, State: state, Steps: executed},
					&EngineError{Message: fmt.Sprintf("persist step %d (%s): %v", executed, current, err), Code: "STORE_ERROR"}
			}
		}

		next, ok := nextStep(state)
		if !ok {
			break
		}
		current = next
	}

	outcome := OutcomeCompleted
	if state.Error != "" {
		outcome = OutcomeFailed
	}
	e.opts.Metrics.RecordRun(outcome)
	e.emit(emit.Event{RunID: runID, Step: state.CurrentStepIndex, Msg: emit.MsgRunEnd,
		Meta: map[string]any{"outcome": outcome, "trace": state.ExecutionTrace}})
	log.Info("run finished", "outcome", outcome, "steps", executed)

	return Result{RunID: runID, State: state, Steps: executed}, nil
}

// Resume loads the latest persisted state for runID and continues the run
// from its recorded step index. It requires a configured store.
func (e *Engine) Resume(ctx context.Context, runID string) (Result, error) {
	if e.opts.Store == nil {
		return Result{}, &EngineError{Message: "resume requires a store", Code: "INVALID_CONFIG"}
	}
	state, _, err := e.opts.Store.LoadLatest(ctx, runID)
	if err != nil {
		return Result{}, &EngineError{Message: fmt.Sprintf("load run %s: %v", runID, err), Code: "STORE_ERROR"}
	}
	return e.Run(ctx, runID, state)
}

func (e *Engine) emit(ev emit.Event) {
	if e.opts.Emitter != nil {
		e.opts.Emitter.Emit(ev)
	}
}
