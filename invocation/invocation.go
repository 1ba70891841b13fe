// Package invocation defines the per-call ambient context threaded through
// the event loop, the tool executor, and the multi-agent orchestrators: the
// "invocation context" from the glossary — cancellation signal, cycle/trace
// ids, observer, shared kv state, and scratch request state.
package invocation

import (
	"context"
	"sync"

	"github.com/agentcore/agentcore/kvstore"
)

// State is the invocation context passed by pointer along a single cycle (or
// tool call); it holds a mutex and is not copied. It carries no behavior of
// its own beyond what Context, KV, and RequestState expose.
type State struct {
	// Ctx is cancelled to signal the current cycle or tool call should stop.
	// Components observe cancellation cooperatively; cancelling it never
	// forcibly terminates a goroutine.
	Ctx context.Context

	// RunID identifies the top-level invocation (agent run, graph run, or
	// swarm run) this state belongs to.
	RunID string

	// CycleID identifies the current event-loop cycle within RunID.
	CycleID string

	// ParentTraceID correlates this cycle's telemetry spans to its caller's.
	ParentTraceID string

	// KV is the shared key/value store backing InvocationContext's "shared
	// kv state". A swarm's per-node shared_context is not stored here.
	KV kvstore.Store

	mu           sync.Mutex
	requestState map[string]any
}

// NewState constructs a State with a fresh in-memory request-state map. KV
// defaults to nil; callers that need shared kv state must set it explicitly
// (for example, to a kvstore.InMem or kvstore.Redis instance).
func NewState(ctx context.Context, runID, cycleID, parentTraceID string, kv kvstore.Store) *State {
	return &State{
		Ctx:           ctx,
		RunID:         runID,
		CycleID:       cycleID,
		ParentTraceID: parentTraceID,
		KV:            kv,
		requestState:  make(map[string]any),
	}
}

// RequestState returns the opaque scratch map carried across event-loop
// cycles, a request_state dictionary opaque to the loop itself. Safe for
// concurrent access from parallel tool runners.
func (s *State) RequestState() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.requestState))
	for k, v := range s.requestState {
		out[k] = v
	}
	return out
}

// SetRequestState replaces an entry in the scratch map.
func (s *State) SetRequestState(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestState[key] = value
}

// Cancelled reports whether the invocation's context has been cancelled.
func (s *State) Cancelled() bool {
	select {
	case <-s.Ctx.Done():
		return true
	default:
		return false
	}
}

// WithCycle returns a new State scoped to cycleID. It shares s's KV store,
// but its request-state map is a snapshot copy of s's, so writes made
// through the returned State are not seen by s.
func (s *State) WithCycle(ctx context.Context, cycleID string) *State {
	s.mu.Lock()
	snapshot := make(map[string]any, len(s.requestState))
	for k, v := range s.requestState {
		snapshot[k] = v
	}
	s.mu.Unlock()
	return &State{
		Ctx:           ctx,
		RunID:         s.RunID,
		CycleID:       cycleID,
		ParentTraceID: s.ParentTraceID,
		KV:            s.KV,
		requestState:  snapshot,
	}
}
