// Package swarm implements the Swarm Runner: a self-organizing sequence of
// agents that hand control off to one another through an injected
// coordination tool, rather than a fixed graph of edges.
package swarm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentcore/agentcore/eventloop"
	"github.com/agentcore/agentcore/hooks"
	"github.com/agentcore/agentcore/message"
	"github.com/agentcore/agentcore/multiagent"
	"github.com/agentcore/agentcore/tools"
)

// Participant is one named agent taking part in a swarm.
type Participant struct {
	Name        string
	Description string
	Agent       *eventloop.Agent
}

// Builder accumulates participants before Build validates them into a
// Swarm.
type Builder struct {
	participants []Participant
	cfg          Config
}

// NewBuilder starts an empty swarm builder with cfg's defaults applied.
func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg.WithDefaults()}
}

// AddAgent registers an agent under name. Fails synchronously if name is
// empty or already used, if the agent already has a tool reserved for swarm
// coordination, or if the agent carries a session store or lifecycle hooks
// (participants' only lifecycle is the swarm itself).
func (b *Builder) AddAgent(name, description string, agent *eventloop.Agent) error {
	if name == "" {
		return &ConfigError{Msg: "agent name must not be empty"}
	}
	for _, p := range b.participants {
		if p.Name == name {
			return &ConfigError{Msg: fmt.Sprintf("duplicate agent name %q", name)}
		}
	}
	if reg, ok := agent.Tools.(*tools.StaticRegistry); ok && reg.HasTool(handoffToolName) {
		return &ConfigError{Msg: fmt.Sprintf("agent %q already has a reserved tool %q", name, handoffToolName)}
	}
	if agent.Session != nil {
		return &ConfigError{Msg: fmt.Sprintf("agent %q carries a session store; swarm participants must not", name)}
	}
	if !agent.Lifecycle.IsZero() {
		return &ConfigError{Msg: fmt.Sprintf("agent %q carries lifecycle hooks; swarm participants must not", name)}
	}

	b.participants = append(b.participants, Participant{Name: name, Description: description, Agent: agent})
	return nil
}

// Build validates the accumulated participants (at least one, unique names
// already enforced by AddAgent) and returns an immutable Swarm with the
// handoff_to_agent tool injected into each participant's own registry.
func (b *Builder) Build() (*Swarm, error) {
	if len(b.participants) == 0 {
		return nil, &ConfigError{Msg: "a swarm requires at least one agent"}
	}

	sw := &Swarm{
		byName: make(map[string]Participant, len(b.participants)),
		order:  make([]string, 0, len(b.participants)),
		cfg:    b.cfg,
	}
	for _, p := range b.participants {
		reg, _ := p.Agent.Tools.(*tools.StaticRegistry)
		if reg == nil {
			reg = tools.NewStaticRegistry()
		}
		wired := *p.Agent
		wired.Tools = reg.WithTool(sw.handoffRegistration(p.Name))
		p.Agent = &wired

		sw.participants = append(sw.participants, p)
		sw.byName[p.Name] = p
		sw.order = append(sw.order, p.Name)
	}
	return sw, nil
}

// runState is the mutable per-invocation state a swarm run and its injected
// handoff tool share, reached through the context stashed by Invoke rather
// than through any field on Swarm so concurrent invocations stay isolated.
type runState struct {
	mu             sync.Mutex
	current        string
	status         multiagent.Status
	handoffMessage string
	sharedContext  map[string]map[string]any
	nodeHistory    []string
}

type swarmRunKey struct{}

func withRunState(ctx context.Context, rs *runState) context.Context {
	return context.WithValue(ctx, swarmRunKey{}, rs)
}

func runStateFrom(ctx context.Context) (*runState, bool) {
	rs, ok := ctx.Value(swarmRunKey{}).(*runState)
	return rs, ok
}

// Swarm is a validated, immutable set of named participants, ready to
// Invoke repeatedly (each Invoke call is independent and may run
// concurrently with another).
type Swarm struct {
	participants []Participant
	byName       map[string]Participant
	order        []string
	cfg          Config
}

// Result extends multiagent.MultiAgentResult with the swarm-specific
// bookkeeping a handoff run accumulates: which agents ran and in what
// order, and the per-agent shared context contributed along the way.
type Result struct {
	multiagent.MultiAgentResult
	NodeHistory   []string
	SharedContext map[string]map[string]any
}

// Invoke runs the swarm to completion: starting at the first registered
// participant, it loops invoking the current agent, applying any handoff it
// made, and evaluating stop conditions, until the current agent completes
// without handing off or a stop condition fires.
func (sw *Swarm) Invoke(ctx context.Context, task []message.ContentBlock) (Result, error) {
	cfg := sw.cfg
	tel := cfg.Telemetry
	runID := uuid.NewString()
	start := time.Now()
	deadline := start.Add(cfg.ExecutionTimeout)

	ctx, span := tel.Tracer.Start(ctx, "swarm.invoke")
	defer span.End()
	tel.Logger.Info(ctx, "swarm run starting", "run_id", runID, "entry_agent", sw.order[0])

	rs := &runState{
		current:       sw.order[0],
		status:        multiagent.StatusExecuting,
		sharedContext: map[string]map[string]any{},
	}

	results := map[string]multiagent.Result{}
	var accumulated multiagent.MultiAgentResult
	failReason := ""

	for {
		rs.mu.Lock()
		history := append([]string(nil), rs.nodeHistory...)
		current := rs.current
		rs.mu.Unlock()

		if reason := checkStopConditions(cfg, history, deadline); reason != "" {
			failReason = reason
			break
		}

		participant, ok := sw.byName[current]
		if !ok {
			failReason = fmt.Sprintf("unknown current agent %q", current)
			break
		}

		input := sw.composeInput(task, rs, history)

		nodeCtx, nodeSpan := tel.Tracer.Start(ctx, "swarm.node:"+current)
		hooks.Publish(nodeCtx, cfg.Bus, hooks.TypeSwarmNodeStart, runID, map[string]any{"agent": current})
		nodeResult := sw.invokeNode(nodeCtx, rs, participant, input, cfg.NodeTimeout)
		hooks.Publish(nodeCtx, cfg.Bus, hooks.TypeSwarmNodeEnd, runID, map[string]any{"agent": current, "status": string(nodeResult.Status)})
		tel.Metrics.IncCounter("swarm.node", 1, "agent", current, "status", string(nodeResult.Status))
		if nodeResult.Err != nil {
			nodeSpan.RecordError(nodeResult.Err)
		}
		nodeSpan.End()

		results[current] = nodeResult
		accumulated = accumulated.Accumulate(nodeResult)

		rs.mu.Lock()
		rs.nodeHistory = append(rs.nodeHistory, current)
		handedOff := rs.current != current
		next := rs.current
		rs.mu.Unlock()
		if handedOff {
			hooks.Publish(ctx, cfg.Bus, hooks.TypeSwarmHandoff, runID, map[string]any{"from": current, "to": next})
			tel.Logger.Info(ctx, "swarm handoff", "run_id", runID, "from", current, "to", next)
			tel.Metrics.IncCounter("swarm.handoff", 1, "from", current, "to", next)
		}

		if nodeResult.Status == multiagent.StatusFailed {
			failReason = "node failed"
			break
		}
		if !handedOff {
			break
		}
	}

	rs.mu.Lock()
	finalHistory := append([]string(nil), rs.nodeHistory...)
	finalShared := make(map[string]map[string]any, len(rs.sharedContext))
	for k, v := range rs.sharedContext {
		finalShared[k] = v
	}
	if failReason != "" {
		rs.status = multiagent.StatusFailed
	} else {
		rs.status = multiagent.StatusCompleted
	}
	status := rs.status
	rs.mu.Unlock()

	result := Result{
		SharedContext: finalShared,
		MultiAgentResult: multiagent.MultiAgentResult{
			Status:          status,
			Results:         results,
			Usage:           accumulated.Usage,
			Metrics:         accumulated.Metrics,
			ExecutionTimeMs: multiagent.Elapsed(start),
		},
		NodeHistory: finalHistory,
	}
	tel.Metrics.RecordTimer("swarm.invoke", time.Since(start))

	if failReason == "" {
		hooks.Publish(ctx, cfg.Bus, hooks.TypeSwarmDone, runID, map[string]any{"status": string(status)})
		tel.Logger.Info(ctx, "swarm run completed", "run_id", runID, "status", string(status), "handoffs", len(result.NodeHistory))
		return result, nil
	}

	terminated := &ErrTerminatedFailed{Reason: failReason}
	span.RecordError(terminated)
	tel.Logger.Error(ctx, "swarm run terminated", "run_id", runID, "reason", failReason)
	hooks.Publish(ctx, cfg.Bus, hooks.TypeSwarmDone, runID, map[string]any{
		"status":         string(status),
		"reason":         failReason,
		"public_message": hooks.PublicMessageFor(terminated),
	})
	return result, terminated
}

// invokeNode runs participant against input, abandoning (not cancelling)
// the invocation once nodeTimeout elapses: the underlying goroutine keeps
// running to completion, but Invoke's loop stops waiting on it and treats
// the node as failed. This matches the documented soft-wait semantics.
func (sw *Swarm) invokeNode(ctx context.Context, rs *runState, participant Participant, input []message.Message, nodeTimeout time.Duration) multiagent.Result {
	start := time.Now()
	done := make(chan multiagent.Result, 1)

	go func() {
		nodeCtx := withRunState(ctx, rs)
		result, err := participant.Agent.Invoke(nodeCtx, input)
		elapsed := multiagent.Elapsed(start)
		if err != nil {
			done <- multiagent.Result{Status: multiagent.StatusFailed, Err: err, ExecutionTimeMs: elapsed}
			return
		}
		done <- multiagent.Result{
			Status: multiagent.StatusCompleted,
			Agent: &multiagent.AgentOutcome{
				StopReason: result.StopReason,
				Message:    result.Message,
			},
			ExecutionTimeMs: elapsed,
			Usage:           result.Usage,
			Metrics:         result.Metrics,
			ExecutionCount:  1,
		}
	}()

	select {
	case result := <-done:
		return result
	case <-time.After(nodeTimeout):
		return multiagent.Result{Status: multiagent.StatusFailed, Err: ErrNodeTimeout, ExecutionTimeMs: multiagent.Elapsed(start)}
	}
}

// checkStopConditions evaluates every configured stop condition against
// history (the node history as of the start of this iteration) and
// deadline, returning a human-readable reason, or "" to continue.
func checkStopConditions(cfg Config, history []string, deadline time.Time) string {
	if len(history) >= cfg.MaxHandoffs {
		return "max handoffs reached"
	}
	if len(history) >= cfg.MaxIterations {
		return "max iterations reached"
	}
	if time.Now().After(deadline) {
		return "execution timeout exceeded"
	}
	if cfg.RepetitionWindow > 0 && cfg.RepetitionMinUnique > 0 && len(history) >= cfg.RepetitionWindow {
		window := history[len(history)-cfg.RepetitionWindow:]
		unique := map[string]bool{}
		for _, n := range window {
			unique[n] = true
		}
		if len(unique) < cfg.RepetitionMinUnique {
			return "Repetitive handoff"
		}
	}
	return ""
}

// composeInput builds the node input text from a consumed handoff message,
// the task (or a multi-modal placeholder), the agent history, shared
// context contributed so far, and the roster of other agents available
// for collaboration.
func (sw *Swarm) composeInput(task []message.ContentBlock, rs *runState, history []string) []message.Message {
	rs.mu.Lock()
	handoffMsg := rs.handoffMessage
	rs.handoffMessage = ""
	shared := make(map[string]map[string]any, len(rs.sharedContext))
	for k, v := range rs.sharedContext {
		shared[k] = v
	}
	rs.mu.Unlock()

	var b strings.Builder

	if handoffMsg != "" {
		b.WriteString("Handoff Message: " + handoffMsg + "\n")
	}

	taskText, multimodal := flattenTask(task)
	if multimodal {
		b.WriteString("User Request: Multi-modal task\n")
	} else {
		b.WriteString("User Request: " + taskText + "\n")
	}

	if len(history) > 0 {
		b.WriteString("Previous agents who worked on this: " + strings.Join(history, " → ") + "\n")
	}

	if len(shared) > 0 {
		b.WriteString("Shared knowledge from previous agents:\n")
		for _, name := range sw.order {
			ctxData, ok := shared[name]
			if !ok {
				continue
			}
			raw, _ := json.Marshal(ctxData)
			b.WriteString(fmt.Sprintf("• %s: %s\n", name, string(raw)))
		}
	}

	b.WriteString("Other agents available for collaboration:\n")
	for _, p := range sw.participants {
		b.WriteString(fmt.Sprintf("Agent name: %s. Agent description: %s\n", p.Name, p.Description))
	}

	b.WriteString("You have access to swarm coordination tools to hand off to another agent when appropriate. If you don't hand off, the swarm will consider the task complete.")

	content := []message.ContentBlock{message.TextBlock{Text: b.String()}}
	if multimodal {
		content = append(content, task...)
	}
	return []message.Message{{Role: message.RoleUser, Content: content}}
}

func flattenTask(task []message.ContentBlock) (string, bool) {
	if len(task) == 1 {
		if t, ok := task[0].(message.TextBlock); ok {
			return t.Text, false
		}
	}
	var texts []string
	multimodal := false
	for _, blk := range task {
		if t, ok := blk.(message.TextBlock); ok {
			texts = append(texts, t.Text)
		} else {
			multimodal = true
		}
	}
	return strings.Join(texts, "\n"), multimodal
}
