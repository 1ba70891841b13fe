package hooks

import (
	"context"
	"time"
)

// Event is the Observer callback shape from the external-interfaces
// contract: "a loose key/value shape used for progress UIs and tracing. It
// is informational; the core must function when no observer is attached."
//
// Type enumerates the event in a human-readable form (see the Type*
// constants below); Fields carries whatever payload is relevant to that
// type. Fields is an untyped map; consumers type-assert the values they need.
type Event struct {
	// Type identifies the kind of event; see the Type* constants.
	Type string

	// RunID identifies the top-level invocation this event belongs to.
	RunID string

	// At is when the event was produced.
	At time.Time

	// Fields carries the event's loose key/value payload.
	Fields map[string]any
}

// Stream Assembler / Event Loop callback event types.
const (
	TypeTextDelta         = "text_delta"
	TypeToolInputDelta     = "tool_input_delta"
	TypeReasoningDelta     = "reasoning_delta"
	TypeReasoningSignature = "reasoning_signature_delta"
	TypeCycleStart         = "cycle_start"
	TypeCycleEnd           = "cycle_end"
	TypeForceStop          = "force_stop"
	TypeToolStart          = "tool_start"
	TypeToolProgress       = "tool_progress"
	TypeToolEnd            = "tool_end"
)

// Graph Runner callback event types.
const (
	TypeGraphWaveStart = "graph_wave_start"
	TypeGraphNodeStart = "graph_node_start"
	TypeGraphNodeEnd   = "graph_node_end"
	TypeGraphDone      = "graph_done"
)

// Swarm Runner callback event types.
const (
	TypeSwarmNodeStart = "swarm_node_start"
	TypeSwarmNodeEnd   = "swarm_node_end"
	TypeSwarmHandoff   = "swarm_handoff"
	TypeSwarmDone      = "swarm_done"
)

// NewEvent builds an Event of the given type with the given fields,
// stamping At to now.
func NewEvent(typ, runID string, fields map[string]any) Event {
	if fields == nil {
		fields = map[string]any{}
	}
	return Event{Type: typ, RunID: runID, At: timeNow(), Fields: fields}
}

// timeNow is a seam so tests can substitute a fixed clock if ever needed;
// production code always uses the real wall clock.
var timeNow = time.Now

// Publish is a convenience for the common case of constructing and
// publishing an event in one call. It swallows a nil Bus so components can
// accept an optional observer without nil-checking at every call site.
func Publish(ctx context.Context, bus Bus, typ, runID string, fields map[string]any) {
	if bus == nil {
		return
	}
	_ = bus.Publish(ctx, NewEvent(typ, runID, fields))
}
