// Package emit provides observability event emission for workflow runs.
package emit

// Emitter receives observability events from workflow execution.
//
// Implementations should be non-blocking, safe for concurrent use, and
// resilient: a misbehaving backend must never crash or stall a run. Emit
// should not panic; internal errors should be swallowed or logged.
type Emitter interface {
	// Emit sends an event to the configured backend.
	Emit(event Event)
}
