package tools

import (
	"context"

	"github.com/agentcore/agentcore/invocation"
	"github.com/agentcore/agentcore/message"
)

// Event is one item in the lazy sequence of events a Runner forwards while a
// tool is in flight. Events are forwarded to the Observer as callback
// events; the terminal event of the sequence is always a Result.
type Event interface {
	isToolEvent()
}

// ProgressEvent carries an intermediate, tool-specific progress update. A
// tool may emit zero or more of these before its terminal Result.
type ProgressEvent struct {
	// Data is a loose key/value payload describing the progress update.
	Data map[string]any
}

// Result is the terminal event of a tool's event sequence: the ToolResult
// content block the Tool Executor folds into the bundling user message.
type Result struct {
	Block message.ToolResultBlock
}

func (ProgressEvent) isToolEvent() {}
func (Result) isToolEvent()        {}

// Runner executes one tool invocation. It returns a channel of Events ending
// in exactly one Result; intermediate ProgressEvents are optional. Runner
// implementations must respect ctx cancellation: once ctx is done they
// should stop promptly and still close the returned channel, either with a
// Result carrying status=error or without a Result at all (the Tool
// Executor synthesizes a cancellation Result for any tool_use that never
// produces one).
type Runner func(ctx context.Context, call message.ToolUseBlock, inv *invocation.State) <-chan Event

// Registration pairs a ToolSpec with the Runner that implements it.
type Registration struct {
	Spec   ToolSpec
	Runner Runner
}

// Registry resolves a tool name to its spec and runner. Implementations must
// be safe for concurrent use by the Tool Executor's parallel mode.
type Registry interface {
	Resolve(name string) (Registration, bool)
	Specs() []ToolSpec
}

// StaticRegistry is a Registry backed by an immutable map, built once at
// agent construction time per the "ToolSpec ... registered at agent
// construction; immutable thereafter" lifecycle.
type StaticRegistry struct {
	byName map[string]Registration
	order  []string
}

// NewStaticRegistry builds a StaticRegistry from regs, indexed by Spec.Name.
// Duplicate names are not rejected: the last registration under a name wins,
// and the name keeps the position of its first registration in Specs order.
func NewStaticRegistry(regs ...Registration) *StaticRegistry {
	r := &StaticRegistry{byName: make(map[string]Registration, len(regs))}
	for _, reg := range regs {
		name := string(reg.Spec.Name)
		if _, exists := r.byName[name]; !exists {
			r.order = append(r.order, name)
		}
		r.byName[name] = reg
	}
	return r
}

// Resolve implements Registry.
func (r *StaticRegistry) Resolve(name string) (Registration, bool) {
	reg, ok := r.byName[name]
	return reg, ok
}

// Specs implements Registry, returning specs in registration order.
func (r *StaticRegistry) Specs() []ToolSpec {
	out := make([]ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name].Spec)
	}
	return out
}

// WithTool returns a new StaticRegistry with reg added or replacing an
// existing entry of the same name, leaving the receiver untouched. It is
// used by the swarm runner to inject the handoff_to_agent tool into each
// participating agent's own registry without mutating the caller's.
func (r *StaticRegistry) WithTool(reg Registration) *StaticRegistry {
	next := NewStaticRegistry()
	for _, name := range r.order {
		next.byName[name] = r.byName[name]
		next.order = append(next.order, name)
	}
	name := string(reg.Spec.Name)
	if _, exists := next.byName[name]; !exists {
		next.order = append(next.order, name)
	}
	next.byName[name] = reg
	return next
}

// HasTool reports whether name is already registered.
func (r *StaticRegistry) HasTool(name string) bool {
	_, ok := r.byName[name]
	return ok
}
