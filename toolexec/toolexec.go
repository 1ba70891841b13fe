// Package toolexec implements the Tool Executor: resolving tool_use blocks
// against a registry, running them (optionally concurrently), and collecting
// their tool_result blocks into a single bundling user message, preserving
// the original tool_use order regardless of completion order.
package toolexec

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agentcore/agentcore/hooks"
	"github.com/agentcore/agentcore/invocation"
	"github.com/agentcore/agentcore/message"
	"github.com/agentcore/agentcore/telemetry"
	"github.com/agentcore/agentcore/toolerrors"
	"github.com/agentcore/agentcore/tools"
)

// Config controls how a batch of tool calls is executed.
type Config struct {
	// Parallel runs all tool calls in the batch concurrently. When false,
	// calls run sequentially in order.
	Parallel bool

	Telemetry telemetry.Bundle
}

// WithDefaults returns cfg with documented defaults applied: sequential
// execution, matching the conservative default of running tools one at a
// time unless a caller opts into concurrency.
func (cfg Config) WithDefaults() Config {
	cfg.Telemetry = cfg.Telemetry.WithDefaults()
	return cfg
}

// Run resolves and executes every ToolUseBlock in calls against registry,
// returning one user Message whose Content is the ordered ToolResultBlocks
// (one per call, in the same order as calls). A tool name absent from
// registry, or a Runner that closes its channel without ever emitting a
// Result, is synthesized into a StatusError result rather than failing the
// batch: the model must always see a tool_result for every tool_use it
// requested.
//
// Intermediate ProgressEvents and terminal Results are forwarded to bus as
// tool_start/tool_progress/tool_end callback events.
func Run(ctx context.Context, cfg Config, registry tools.Registry, calls []message.ToolUseBlock, inv *invocation.State, bus hooks.Bus, runID string) message.Message {
	cfg = cfg.WithDefaults()
	tel := cfg.Telemetry
	ctx, span := tel.Tracer.Start(ctx, "toolexec.run")
	defer span.End()
	tel.Metrics.IncCounter("toolexec.batch", 1, "size", fmt.Sprint(len(calls)))

	results := make([]message.ToolResultBlock, len(calls))

	exec := func(i int) {
		results[i] = runOne(ctx, tel, registry, calls[i], inv, bus, runID)
	}

	if cfg.Parallel {
		var wg sync.WaitGroup
		wg.Add(len(calls))
		for i := range calls {
			go func(i int) {
				defer wg.Done()
				exec(i)
			}(i)
		}
		wg.Wait()
	} else {
		for i := range calls {
			exec(i)
		}
	}

	content := make([]message.ContentBlock, len(results))
	for i, r := range results {
		content[i] = r
	}
	return message.Message{Role: message.RoleUser, Content: content}
}

// runOne resolves and runs a single tool call, synthesizing an error result
// for an unknown tool, a cancelled context, or a Runner that never produces
// a terminal Result.
func runOne(ctx context.Context, tel telemetry.Bundle, registry tools.Registry, call message.ToolUseBlock, inv *invocation.State, bus hooks.Bus, runID string) message.ToolResultBlock {
	ctx, span := tel.Tracer.Start(ctx, "toolexec.call:"+call.Name)
	defer span.End()
	hooks.Publish(ctx, bus, hooks.TypeToolStart, runID, map[string]any{"tool_use_id": call.ID, "name": call.Name})

	reg, ok := registry.Resolve(call.Name)
	if !ok {
		err := toolerrors.Errorf("unknown tool: %s", call.Name)
		span.RecordError(err)
		return errorResult(ctx, bus, runID, call, err)
	}

	if ctx.Err() != nil {
		err := toolerrors.NewWithCause("cancelled before execution", ctx.Err())
		span.RecordError(err)
		return errorResult(ctx, bus, runID, call, err)
	}

	if err := validateInput(reg.Spec.InputSchema, call.Input); err != nil {
		toolErr := toolerrors.NewWithCause("input schema validation failed", err)
		span.RecordError(toolErr)
		return errorResult(ctx, bus, runID, call, toolErr)
	}

	events := reg.Runner(ctx, call, inv)
	for ev := range events {
		switch e := ev.(type) {
		case tools.ProgressEvent:
			hooks.Publish(ctx, bus, hooks.TypeToolProgress, runID, map[string]any{"tool_use_id": call.ID, "name": call.Name, "data": e.Data})
		case tools.Result:
			tel.Metrics.IncCounter("toolexec.call", 1, "name", call.Name, "status", string(e.Block.Status))
			hooks.Publish(ctx, bus, hooks.TypeToolEnd, runID, map[string]any{"tool_use_id": call.ID, "name": call.Name, "status": string(e.Block.Status)})
			return e.Block
		}
	}

	// Channel closed without a terminal Result: treat as a cancellation so
	// the model always sees a matching tool_result.
	err := toolerrors.Errorf("tool produced no result: %s", call.Name)
	span.RecordError(err)
	tel.Logger.Warn(ctx, "tool runner closed without a terminal result", "name", call.Name, "tool_use_id", call.ID)
	return errorResult(ctx, bus, runID, call, err)
}

// validateInput compiles schema (when non-empty) and validates input
// against it. A tool with no InputSchema accepts any input unchecked.
func validateInput(schema json.RawMessage, input json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}

	var schemaDoc any
	if err := json.Unmarshal(schema, &schemaDoc); err != nil {
		return fmt.Errorf("unmarshal schema: %w", err)
	}

	var inputDoc any
	if len(input) == 0 {
		inputDoc = map[string]any{}
	} else if err := json.Unmarshal(input, &inputDoc); err != nil {
		return fmt.Errorf("unmarshal input: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", schemaDoc); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	return compiled.Validate(inputDoc)
}

// errorResult synthesizes a tool_result for a failure the tool itself never
// reported. toolErr is carried both as a JSONResultContent (so the error
// chain survives an agent-as-tool hop intact) and as its flattened text,
// for callers that only read TextResultContent.
func errorResult(ctx context.Context, bus hooks.Bus, runID string, call message.ToolUseBlock, toolErr *toolerrors.ToolError) message.ToolResultBlock {
	hooks.Publish(ctx, bus, hooks.TypeToolEnd, runID, map[string]any{"tool_use_id": call.ID, "name": call.Name, "status": string(message.StatusError)})
	return message.ToolResultBlock{
		ToolUseID: call.ID,
		Status:    message.StatusError,
		Content: []message.ToolResultContent{
			message.TextResultContent{Text: toolErr.Error()},
			message.JSONResultContent{JSON: toolErr},
		},
	}
}
