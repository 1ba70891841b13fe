// Package graph implements the Graph Runner: a deterministic DAG of
// multiagent.Node participants, executed wavefront by wavefront with
// conditional edges gating which nodes become ready after each wave.
package graph

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentcore/agentcore/hooks"
	"github.com/agentcore/agentcore/message"
	"github.com/agentcore/agentcore/multiagent"
	"github.com/agentcore/agentcore/telemetry"
)

// Condition evaluates whether an edge is satisfied given the graph's
// current State. A nil Condition is always satisfied.
type Condition func(state *State) bool

// Edge is one directed, optionally conditional dependency between two
// nodes.
type Edge struct {
	From      string
	To        string
	Condition Condition
}

// nodeSpec is one participant in the graph: an id and the executor it runs.
// Edges are kept in the graph's edge set, not on the node.
type nodeSpec struct {
	id       string
	executor multiagent.Node
}

// Config is the closed configuration record for a Graph.
type Config struct {
	// Bus receives graph_wave_start/graph_node_start/graph_node_end/graph_done
	// callback events; nil is a valid no-op observer.
	Bus hooks.Bus

	Telemetry telemetry.Bundle
}

func (c Config) WithDefaults() Config {
	c.Telemetry = c.Telemetry.WithDefaults()
	return c
}

// State is the read-only (to edge conditions) view of a graph run shared
// with every Condition function.
type State struct {
	Task            []message.ContentBlock
	Status         multiagent.Status
	CompletedNodes map[string]bool
	FailedNodes    map[string]bool
	ExecutionOrder []string
	Results        map[string]multiagent.Result
	Accumulated    multiagent.MultiAgentResult
}

// Graph is a validated, immutable DAG of nodes and edges, ready to Invoke
// repeatedly.
type Graph struct {
	nodes       map[string]nodeSpec
	edges       []Edge
	entryPoints []string
	cfg         Config
}

// ValidationError is raised synchronously at Build time for a malformed
// graph (duplicate ids, duplicate executor instances, missing entry nodes).
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return "graph validation: " + e.Msg }

// CycleError is raised synchronously at Build time when the node/edge set
// is not acyclic.
type CycleError struct{ Cycle []string }

func (e *CycleError) Error() string {
	return "graph validation: cycle detected: " + strings.Join(e.Cycle, " -> ")
}

// Builder accumulates nodes and edges before Build validates and freezes
// them into a Graph.
type Builder struct {
	nodes       map[string]nodeSpec
	executors   map[multiagent.Node]string
	edges       []Edge
	entryPoints []string
	cfg         Config
}

// NewBuilder starts an empty graph builder.
func NewBuilder(cfg Config) *Builder {
	return &Builder{
		nodes:     make(map[string]nodeSpec),
		executors: make(map[multiagent.Node]string),
		cfg:       cfg.WithDefaults(),
	}
}

// AddNode registers executor under id. Returns an error immediately if id
// or the executor instance is already registered, rather than deferring the
// check to Build, since both are simple to detect at registration time.
func (b *Builder) AddNode(id string, executor multiagent.Node) error {
	if _, exists := b.nodes[id]; exists {
		return &ValidationError{Msg: fmt.Sprintf("duplicate node id %q", id)}
	}
	if owner, exists := b.executors[executor]; exists {
		return &ValidationError{Msg: fmt.Sprintf("executor already registered as node %q", owner)}
	}
	b.nodes[id] = nodeSpec{id: id, executor: executor}
	b.executors[executor] = id
	return nil
}

// AddEdge adds a directed edge, optionally conditional.
func (b *Builder) AddEdge(from, to string, condition Condition) {
	b.edges = append(b.edges, Edge{From: from, To: to, Condition: condition})
}

// SetEntryPoints declares the explicit entry nodes. If never called, Build
// auto-derives entry points as the nodes with zero incoming edges.
func (b *Builder) SetEntryPoints(ids ...string) {
	b.entryPoints = append([]string(nil), ids...)
}

// Build validates the accumulated nodes and edges and returns an immutable
// Graph, or a *ValidationError / *CycleError.
func (b *Builder) Build() (*Graph, error) {
	for _, e := range b.edges {
		if _, ok := b.nodes[e.From]; !ok {
			return nil, &ValidationError{Msg: fmt.Sprintf("edge references unknown node %q", e.From)}
		}
		if _, ok := b.nodes[e.To]; !ok {
			return nil, &ValidationError{Msg: fmt.Sprintf("edge references unknown node %q", e.To)}
		}
	}

	entryPoints := b.entryPoints
	if len(entryPoints) == 0 {
		entryPoints = deriveEntryPoints(b.nodes, b.edges)
	}
	if len(entryPoints) == 0 {
		return nil, &ValidationError{Msg: "no entry nodes declared and none can be derived (every node has an incoming edge)"}
	}
	for _, id := range entryPoints {
		if _, ok := b.nodes[id]; !ok {
			return nil, &ValidationError{Msg: fmt.Sprintf("entry point references unknown node %q", id)}
		}
	}

	if cycle := findCycle(b.nodes, b.edges); cycle != nil {
		return nil, &CycleError{Cycle: cycle}
	}

	return &Graph{
		nodes:       b.nodes,
		edges:       append([]Edge(nil), b.edges...),
		entryPoints: entryPoints,
		cfg:         b.cfg,
	}, nil
}

func deriveEntryPoints(nodes map[string]nodeSpec, edges []Edge) []string {
	hasIncoming := make(map[string]bool, len(nodes))
	for _, e := range edges {
		hasIncoming[e.To] = true
	}
	var entries []string
	for id := range nodes {
		if !hasIncoming[id] {
			entries = append(entries, id)
		}
	}
	return entries
}

// findCycle runs a 3-color DFS over nodes/edges and returns the back-edge
// path if one exists, or nil if the graph is acyclic.
func findCycle(nodes map[string]nodeSpec, edges []Edge) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	adjacency := make(map[string][]string, len(nodes))
	for _, e := range edges {
		adjacency[e.From] = append(adjacency[e.From], e.To)
	}
	color := make(map[string]int, len(nodes))
	var path []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		path = append(path, id)
		for _, next := range adjacency[id] {
			switch color[next] {
			case white:
				if visit(next) {
					return true
				}
			case gray:
				cycle = append(append([]string(nil), path...), next)
				return true
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return false
	}

	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	for _, id := range ids {
		if color[id] == white {
			if visit(id) {
				return cycle
			}
		}
	}
	return nil
}

// GraphResult extends multiagent.MultiAgentResult with the graph-specific
// bookkeeping a wavefront run accumulates: per-node completion order, which
// nodes completed or failed, and the entry points the run started from.
type GraphResult struct {
	multiagent.MultiAgentResult
	TotalNodes     int
	CompletedNodes []string
	FailedNodes    []string
	ExecutionOrder []string
	EntryPoints    []string
}

// Invoke runs the graph to completion: a level-synchronous wavefront that
// seeds ready := entry points, executes each wave's nodes concurrently, and
// recomputes readiness from newly completed nodes and their outgoing edge
// conditions.
func (g *Graph) Invoke(ctx context.Context, task []message.ContentBlock) (GraphResult, error) {
	start := time.Now()
	runID := runIDFor(g)
	tel := g.cfg.Telemetry

	ctx, span := tel.Tracer.Start(ctx, "graph.invoke")
	defer span.End()
	tel.Logger.Info(ctx, "graph run starting", "run_id", runID, "nodes", len(g.nodes))

	state := &State{
		Task:           task,
		Status:         multiagent.StatusExecuting,
		CompletedNodes: map[string]bool{},
		FailedNodes:    map[string]bool{},
		Results:        map[string]multiagent.Result{},
	}

	ready := append([]string(nil), g.entryPoints...)
	var failErr error

	for wave := 0; len(ready) > 0; wave++ {
		hooks.Publish(ctx, g.cfg.Bus, hooks.TypeGraphWaveStart, runID, map[string]any{"wave": ready})
		tel.Metrics.IncCounter("graph.wave", 1, "size", fmt.Sprint(len(ready)))
		waveCtx, waveSpan := tel.Tracer.Start(ctx, fmt.Sprintf("graph.wave[%d]", wave))

		group, gctx := errgroup.WithContext(waveCtx)
		waveResults := make([]multiagent.Result, len(ready))
		var completionMu sync.Mutex
		var completionOrder []string
		for i, id := range ready {
			i, id := i, g.nodes[id]
			group.Go(func() error {
				nodeCtx, nodeSpan := tel.Tracer.Start(gctx, "graph.node:"+id.id)
				defer nodeSpan.End()

				hooks.Publish(nodeCtx, g.cfg.Bus, hooks.TypeGraphNodeStart, runID, map[string]any{"node": id.id})
				input := composeInput(task, id.id, g.edges, state)
				result, err := id.executor.Invoke(nodeCtx, []message.Message{{Role: message.RoleUser, Content: input}})
				waveResults[i] = result

				completionMu.Lock()
				completionOrder = append(completionOrder, id.id)
				completionMu.Unlock()

				hooks.Publish(nodeCtx, g.cfg.Bus, hooks.TypeGraphNodeEnd, runID, map[string]any{"node": id.id, "status": string(result.Status)})
				if err != nil {
					nodeSpan.RecordError(err)
					return fmt.Errorf("node %q: %w", id.id, err)
				}
				return nil
			})
		}
		waveErr := group.Wait()
		waveSpan.End()

		for i, id := range ready {
			result := waveResults[i]
			state.Results[id] = result
			state.Accumulated = state.Accumulated.Accumulate(result)
			if result.Status == multiagent.StatusFailed {
				state.FailedNodes[id] = true
			} else {
				state.CompletedNodes[id] = true
			}
		}
		// ExecutionOrder records actual completion order within the wave, per
		// completionOrder recorded as each goroutine finished, not ready's
		// pre-wave order.
		state.ExecutionOrder = append(state.ExecutionOrder, completionOrder...)

		if waveErr != nil {
			failErr = waveErr
			break
		}

		ready = nextReady(g.nodes, g.edges, state)
	}

	status := multiagent.StatusCompleted
	if failErr != nil {
		status = multiagent.StatusFailed
	}

	completed := keys(state.CompletedNodes)
	failed := keys(state.FailedNodes)

	result := GraphResult{
		MultiAgentResult: multiagent.MultiAgentResult{
			Status:          status,
			Results:         state.Results,
			Usage:           state.Accumulated.Usage,
			Metrics:         state.Accumulated.Metrics,
			ExecutionTimeMs: multiagent.Elapsed(start),
		},
		TotalNodes:     len(g.nodes),
		CompletedNodes: completed,
		FailedNodes:    failed,
		ExecutionOrder: state.ExecutionOrder,
		EntryPoints:    g.entryPoints,
	}

	hooks.Publish(ctx, g.cfg.Bus, hooks.TypeGraphDone, runID, map[string]any{"status": string(status)})
	tel.Metrics.RecordTimer("graph.invoke", time.Since(start))

	if failErr != nil {
		span.RecordError(failErr)
		tel.Logger.Error(ctx, "graph run failed", "run_id", runID, "error", failErr)
		return result, failErr
	}
	tel.Logger.Info(ctx, "graph run completed", "run_id", runID, "status", string(status))
	return result, nil
}

// nextReady computes which not-yet-completed, not-yet-failed nodes have at
// least one incoming edge whose source is completed and whose condition
// evaluates true.
func nextReady(nodes map[string]nodeSpec, edges []Edge, state *State) []string {
	var ready []string
	for id := range nodes {
		if state.CompletedNodes[id] || state.FailedNodes[id] {
			continue
		}
		for _, e := range edges {
			if e.To != id || !state.CompletedNodes[e.From] {
				continue
			}
			if e.Condition == nil || e.Condition(state) {
				ready = append(ready, id)
				break
			}
		}
	}
	return ready
}

// composeInput builds the structured "Original Task / Inputs from previous
// nodes" message for nodeID from its satisfied incoming edges. A node with
// no satisfied dependency receives task verbatim.
func composeInput(task []message.ContentBlock, nodeID string, edges []Edge, state *State) []message.ContentBlock {
	var deps []string
	for _, e := range edges {
		if e.To != nodeID || !state.CompletedNodes[e.From] {
			continue
		}
		if e.Condition != nil && !e.Condition(state) {
			continue
		}
		deps = append(deps, e.From)
	}
	if len(deps) == 0 {
		return task
	}

	var b strings.Builder
	b.WriteString("Original Task:\n\n")
	for _, blk := range task {
		if t, ok := blk.(message.TextBlock); ok {
			b.WriteString(t.Text)
			b.WriteString("\n")
		}
	}
	b.WriteString("\nInputs from previous nodes:\n\n")
	for _, dep := range deps {
		result := state.Results[dep]
		b.WriteString(fmt.Sprintf("From %s:\n  - %s\n", dep, flatten(result)))
	}

	out := make([]message.ContentBlock, 0, len(task)+1)
	out = append(out, message.TextBlock{Text: b.String()})
	for _, blk := range task {
		if _, ok := blk.(message.TextBlock); !ok {
			out = append(out, blk)
		}
	}
	return out
}

func flatten(result multiagent.Result) string {
	if result.Agent != nil {
		for _, blk := range result.Agent.Message.Content {
			if t, ok := blk.(message.TextBlock); ok {
				return t.Text
			}
		}
	}
	if result.Nested != nil {
		return fmt.Sprintf("(nested run, status=%s)", result.Nested.Status)
	}
	if result.Err != nil {
		return "error: " + result.Err.Error()
	}
	return ""
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func runIDFor(g *Graph) string {
	return fmt.Sprintf("graph-%p", g)
}

// AsNode adapts Graph to multiagent.Node so a graph can be nested as a node
// executor inside another graph or a swarm: an executor is either an Agent
// or another multi-agent runner, nested graphs and swarms allowed.
func (g *Graph) AsNode() multiagent.Node { return graphNode{g} }

type graphNode struct{ graph *Graph }

// Invoke implements multiagent.Node by flattening conversation's content
// into the graph's task (all messages' content blocks concatenated) and
// wrapping the GraphResult as a nested MultiAgentResult, so a graph can be
// nested as a node executor inside another graph or a swarm.
func (n graphNode) Invoke(ctx context.Context, conversation []message.Message) (multiagent.Result, error) {
	var task []message.ContentBlock
	for _, msg := range conversation {
		task = append(task, msg.Content...)
	}

	result, err := n.graph.Invoke(ctx, task)
	nested := result.MultiAgentResult
	out := multiagent.Result{
		Status:          nested.Status,
		Nested:          &nested,
		ExecutionTimeMs: nested.ExecutionTimeMs,
		Usage:           nested.Usage,
		Metrics:         nested.Metrics,
		ExecutionCount:  len(result.ExecutionOrder),
	}
	if err != nil {
		out.Err = err
	}
	return out, err
}
