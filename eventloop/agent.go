// Package eventloop implements the Event Loop: one conversational turn's
// preflight, model invocation under retry, assistant-message bookkeeping,
// and bounded iterative recursion into tool dispatch.
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/agentcore/agentcore/hooks"
	"github.com/agentcore/agentcore/invocation"
	"github.com/agentcore/agentcore/kvstore"
	"github.com/agentcore/agentcore/message"
	"github.com/agentcore/agentcore/modelclient"
	"github.com/agentcore/agentcore/retry"
	"github.com/agentcore/agentcore/session"
	"github.com/agentcore/agentcore/streamassembler"
	"github.com/agentcore/agentcore/telemetry"
	"github.com/agentcore/agentcore/toolexec"
	"github.com/agentcore/agentcore/tools"
)

// Agent is the externally visible "Agent invoke" surface: a model, a tool
// registry, and a configuration closed over one event loop.
//
// Fields are exported and set directly after construction (a closed
// configuration record per field, not a keyword-argument bag); New applies
// documented defaults for the fields most callers should not need to think
// about.
type Agent struct {
	Model        modelclient.Client
	Tools        tools.Registry
	SystemPrompt string
	Config       Config

	// Bus receives callback events; nil is a valid no-op observer.
	Bus hooks.Bus

	// KV backs invocation.State's shared kv state; nil disables it.
	KV kvstore.Store

	Telemetry telemetry.Bundle

	// RateLimiter, when set, is waited on before every model call. It
	// exists to keep concurrent callers (a graph wave, a swarm's sequence
	// of agents, or several independent Agent.Invoke calls sharing one
	// provider) under a provider's request rate before they ever trigger
	// a Throttled error, rather than only reacting to one after the fact.
	RateLimiter *rate.Limiter

	// Session, when set, durably records this agent's session/run lifecycle
	// through Store; nil means no persistence is attached. Invoke itself
	// never reads or writes through Session — it is the caller's hook, not
	// part of the event loop's own state.
	Session session.Store

	// Lifecycle carries user-defined callbacks invoked around Invoke by a
	// caller that wants them; the event loop never calls them itself.
	// An agent carrying a non-zero Session or Lifecycle cannot join a swarm:
	// the swarm owns the only lifecycle governing its participants.
	Lifecycle session.Hooks
}

// New constructs an Agent with documented defaults: sequential tool
// execution, 3 retry attempts starting at 4s capped at 60s, a cycle depth
// limit of 50, and no-op telemetry/observer/kv.
func New(model modelclient.Client, registry tools.Registry, systemPrompt string) *Agent {
	return &Agent{
		Model:        model,
		Tools:        registry,
		SystemPrompt: systemPrompt,
		Config:       Config{}.WithDefaults(),
		Telemetry:    telemetry.NewNoopBundle(),
	}
}

// Result is the terminal outcome of an Invoke call.
type Result struct {
	StopReason   message.StopReason
	Message      message.Message
	Usage        message.Usage
	Metrics      message.Metrics
	RequestState map[string]any
}

// Invoke runs conversation through the event loop until the model stops
// requesting tools, the cycle depth limit is hit, or an error occurs. It
// returns a well-formed Result on every non-error path; conversation is not
// mutated (Invoke works on its own copy).
func (a *Agent) Invoke(ctx context.Context, conversation []message.Message) (Result, error) {
	cfg := a.Config.WithDefaults()
	tel := a.Telemetry.WithDefaults()
	runID := uuid.NewString()
	invokeStart := time.Now()

	ctx, span := tel.Tracer.Start(ctx, "eventloop.invoke")
	defer span.End()
	tel.Logger.Info(ctx, "agent invoke starting", "run_id", runID)

	conv := append([]message.Message(nil), conversation...)
	requestState := map[string]any{}
	var accUsage message.Usage
	var accMetrics message.Metrics

	for depth := 0; ; depth++ {
		if depth >= cfg.MaxCycleDepth {
			return Result{}, &Error{RequestState: requestState, Cause: errCycleLimit(depth)}
		}

		cycleID := uuid.NewString()
		hooks.Publish(ctx, a.Bus, hooks.TypeCycleStart, runID, map[string]any{"cycle_id": cycleID, "depth": depth})
		cycleCtx, cycleSpan := tel.Tracer.Start(ctx, fmt.Sprintf("eventloop.cycle[%d]", depth))

		conv = streamassembler.Preflight(conv)
		conv = cleanOrphans(conv)

		inv := invocation.NewState(cycleCtx, runID, cycleID, "", a.KV)
		for k, v := range requestState {
			inv.SetRequestState(k, v)
		}

		cycle, err := a.runOneCycle(cycleCtx, cfg, conv, inv, runID)
		if err != nil {
			cycleSpan.RecordError(err)
			cycleSpan.End()
			span.RecordError(err)
			return Result{}, a.classifyFailure(ctx, runID, requestState, err)
		}

		accUsage = accUsage.Add(cycle.Usage)
		accMetrics = accMetrics.Add(cycle.Metrics)
		conv = append(conv, cycle.Message)
		requestState = inv.RequestState()

		hooks.Publish(cycleCtx, a.Bus, hooks.TypeCycleEnd, runID, map[string]any{"cycle_id": cycleID, "stop_reason": string(cycle.StopReason)})
		cycleSpan.End()

		if cycle.StopReason != message.StopReasonToolUse {
			tel.Logger.Info(ctx, "agent invoke completed", "run_id", runID, "stop_reason", string(cycle.StopReason), "cycles", depth+1)
			tel.Metrics.RecordTimer("eventloop.invoke", time.Since(invokeStart))
			return Result{
				StopReason:   cycle.StopReason,
				Message:      cycle.Message,
				Usage:        accUsage,
				Metrics:      accMetrics,
				RequestState: requestState,
			}, nil
		}

		toolUses := message.ToolUses(cycle.Message)
		resultsMsg := toolexec.Run(ctx, toolexec.Config{Parallel: cfg.Parallel, Telemetry: a.Telemetry}, a.Tools, toolUses, inv, a.Bus, runID)
		conv = append(conv, resultsMsg)
	}
}

// AsyncResult is delivered on the channel InvokeAsync returns.
type AsyncResult struct {
	Result Result
	Err    error
}

// InvokeAsync is a thin non-blocking adapter over Invoke: it starts the
// blocking call on its own goroutine and delivers exactly one AsyncResult on
// the returned channel, which is always closed after that delivery.
func (a *Agent) InvokeAsync(ctx context.Context, conversation []message.Message) <-chan AsyncResult {
	out := make(chan AsyncResult, 1)
	go func() {
		defer close(out)
		result, err := a.Invoke(ctx, conversation)
		out <- AsyncResult{Result: result, Err: err}
	}()
	return out
}

// classifyFailure decides whether err propagates unchanged (ContextWindowExceeded,
// or a retry exhaustion the caller already anticipated) or is wrapped as an
// *Error after emitting the documented force_stop callback exactly once.
func (a *Agent) classifyFailure(ctx context.Context, runID string, requestState map[string]any, err error) error {
	if errors.Is(err, modelclient.ErrContextWindowExceeded) {
		return err
	}

	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		return err
	}

	hooks.Publish(ctx, a.Bus, hooks.TypeForceStop, runID, map[string]any{
		"reason":         err.Error(),
		"public_message": hooks.PublicMessageFor(err),
	})
	return &Error{RequestState: requestState, Cause: err}
}

func (a *Agent) runOneCycle(ctx context.Context, cfg Config, conv []message.Message, inv *invocation.State, runID string) (streamassembler.Result, error) {
	req := modelclient.Request{
		Messages:     conv,
		Tools:        toolDefinitions(a.Tools),
		SystemPrompt: a.SystemPrompt,
	}

	isThrottled := func(err error) bool { return errors.Is(err, modelclient.ErrThrottled) }

	var result streamassembler.Result
	err := retry.Do(ctx, cfg.retryConfig(), isThrottled, func(ctx context.Context, attempt int) error {
		if a.RateLimiter != nil {
			if err := a.RateLimiter.Wait(ctx); err != nil {
				return err
			}
		}
		stream, err := a.Model.Converse(ctx, req)
		if err != nil {
			return err
		}
		defer stream.Close()

		r, err := streamassembler.Assemble(ctx, a.Telemetry, stream, a.Bus, runID, conv)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

func toolDefinitions(registry tools.Registry) []message.ToolDefinition {
	if registry == nil {
		return nil
	}
	specs := registry.Specs()
	defs := make([]message.ToolDefinition, len(specs))
	for i, spec := range specs {
		defs[i] = message.ToolDefinition{
			Name:        string(spec.Name),
			Description: spec.Description,
			InputSchema: spec.InputSchema,
		}
	}
	return defs
}
