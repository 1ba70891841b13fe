// Package streamassembler reconstructs a single assistant message, stop
// reason, usage, and metrics from a model's lazy event stream, while
// forwarding a parallel sequence of callback events to an observer.
package streamassembler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/agentcore/agentcore/hooks"
	"github.com/agentcore/agentcore/message"
	"github.com/agentcore/agentcore/modelclient"
	"github.com/agentcore/agentcore/telemetry"
)

// Result is the terminal outcome of assembling one model stream.
type Result struct {
	Message    message.Message
	StopReason message.StopReason
	Usage      message.Usage
	Metrics    message.Metrics
}

// state mirrors the contract's assembly state: "{message.role, content[],
// text, current_tool_use{id,name,input_string}, reasoning_text, signature}".
type state struct {
	role    message.Role
	content []message.ContentBlock

	textOpen      bool
	text          string
	reasoningOpen bool
	reasoningText string
	reasoningSig  string
	toolUse       *toolUseAccum

	sawAnyEvent bool
}

type toolUseAccum struct {
	id, name, inputString string
}

// Assemble drains stream, forwarding callback events to bus (bus may be
// nil), and returns the assembled Result. conversationSoFar, when non-nil,
// is the conversation excluding the in-progress assistant message; a
// RedactContentEvent with RedactUserContentMessage set rewrites the last
// user message in place.
//
// Any provider-level error surfaces unchanged; Assemble opens and closes its
// own "model_call" span around the full drain and records the error onto it
// before returning, so the caller does not need to manage one itself.
func Assemble(ctx context.Context, tel telemetry.Bundle, stream modelclient.Stream, bus hooks.Bus, runID string, conversationSoFar []message.Message) (Result, error) {
	tel = tel.WithDefaults()
	ctx, span := tel.Tracer.Start(ctx, "model_call")
	defer span.End()

	result, err := assemble(ctx, tel, stream, bus, runID, conversationSoFar)
	if err != nil {
		span.RecordError(err)
		tel.Logger.Error(ctx, "model call failed", "run_id", runID, "error", err)
		return result, err
	}
	tel.Metrics.IncCounter("model_call", 1, "stop_reason", string(result.StopReason))
	tel.Metrics.IncCounter("model_call.tokens", float64(result.Usage.InputTokens+result.Usage.OutputTokens))
	return result, nil
}

func assemble(ctx context.Context, tel telemetry.Bundle, stream modelclient.Stream, bus hooks.Bus, runID string, conversationSoFar []message.Message) (Result, error) {
	st := &state{}

	for {
		ev, err := stream.Recv(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, err
		}
		st.sawAnyEvent = true

		switch e := ev.(type) {
		case modelclient.MessageStartEvent:
			st.role = e.Role

		case modelclient.ContentBlockStartEvent:
			if e.ToolUse != nil {
				st.toolUse = &toolUseAccum{id: e.ToolUse.ID, name: e.ToolUse.Name}
			} else {
				st.textOpen = true
			}

		case modelclient.ContentBlockDeltaEvent:
			applyDelta(ctx, st, e, bus, runID)

		case modelclient.ContentBlockStopEvent:
			finalizeBlock(st)

		case modelclient.MessageStopEvent:
			result, err := drainMetadata(ctx, stream, e.StopReason, st)
			return result, err

		case modelclient.RedactContentEvent:
			applyRedaction(st, e, conversationSoFar)
		}
	}

	if !st.sawAnyEvent {
		return Result{}, modelclient.ErrEmptyStream
	}
	// Stream closed without a MessageStop/Metadata pair: treat as a
	// provider error rather than silently returning a partial message.
	return Result{}, modelclient.NewProviderError("incompleteStream", errors.New("stream closed before messageStop"))
}

func applyDelta(ctx context.Context, st *state, e modelclient.ContentBlockDeltaEvent, bus hooks.Bus, runID string) {
	switch {
	case e.ToolUseInputDelta != "" && st.toolUse != nil:
		st.toolUse.inputString += e.ToolUseInputDelta
		hooks.Publish(ctx, bus, hooks.TypeToolInputDelta, runID, map[string]any{
			"tool_use_id": st.toolUse.id, "name": st.toolUse.name, "delta": e.ToolUseInputDelta,
		})
	case e.Text != "":
		st.textOpen = true
		st.text += e.Text
		hooks.Publish(ctx, bus, hooks.TypeTextDelta, runID, map[string]any{"delta": e.Text})
	case e.ReasoningTextDelta != "":
		st.reasoningOpen = true
		st.reasoningText += e.ReasoningTextDelta
		hooks.Publish(ctx, bus, hooks.TypeReasoningDelta, runID, map[string]any{"delta": e.ReasoningTextDelta})
	case e.ReasoningSignatureDelta != "":
		st.reasoningOpen = true
		st.reasoningSig += e.ReasoningSignatureDelta
		hooks.Publish(ctx, bus, hooks.TypeReasoningSignature, runID, map[string]any{"delta": e.ReasoningSignatureDelta})
	}
}

// finalizeBlock closes whichever block is currently open, appending it to
// content. A JSON parse failure while finalizing a tool-use block's
// accumulated input string substitutes an empty object, per contract.
func finalizeBlock(st *state) {
	switch {
	case st.toolUse != nil:
		tu := st.toolUse
		input := json.RawMessage(tu.inputString)
		if len(input) == 0 || !json.Valid(input) {
			input = json.RawMessage(`{}`)
		}
		st.content = append(st.content, message.ToolUseBlock{ID: tu.id, Name: tu.name, Input: input})
		st.toolUse = nil
	case st.reasoningOpen:
		st.content = append(st.content, message.ReasoningBlock{Text: st.reasoningText, Signature: st.reasoningSig})
		st.reasoningText, st.reasoningSig, st.reasoningOpen = "", "", false
	case st.textOpen:
		st.content = append(st.content, message.TextBlock{Text: st.text})
		st.text, st.textOpen = "", false
	}
}

func applyRedaction(st *state, e modelclient.RedactContentEvent, conversation []message.Message) {
	if e.RedactAssistantContentMessage != nil {
		st.content = []message.ContentBlock{message.TextBlock{Text: *e.RedactAssistantContentMessage}}
		st.toolUse, st.text, st.textOpen, st.reasoningOpen = nil, "", false, false
		return
	}
	if e.RedactUserContentMessage != nil {
		for i := len(conversation) - 1; i >= 0; i-- {
			if conversation[i].Role == message.RoleUser {
				conversation[i].Content = []message.ContentBlock{message.TextBlock{Text: *e.RedactUserContentMessage}}
				break
			}
		}
	}
}

// drainMetadata reads the MetadataEvent that follows MessageStop and builds
// the terminal Result. Any block left open at MessageStop time is finalized
// first (a well-behaved provider always emits a matching ContentBlockStop,
// but the assembler does not trust that).
func drainMetadata(ctx context.Context, stream modelclient.Stream, stopReason message.StopReason, st *state) (Result, error) {
	finalizeBlock(st)

	result := Result{
		Message:    message.Message{Role: resolveRole(st.role), Content: st.content},
		StopReason: stopReason,
	}

	ev, err := stream.Recv(ctx)
	if errors.Is(err, io.EOF) {
		return result, nil
	}
	if err != nil {
		return Result{}, err
	}
	if meta, ok := ev.(modelclient.MetadataEvent); ok {
		result.Usage = meta.Usage
		result.Metrics = meta.Metrics
	}

	// Drain any trailing events (providers may emit nothing further, but the
	// assembler must not leave the stream mid-read for the caller).
	for {
		if _, err := stream.Recv(ctx); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return result, err
		}
	}
	return result, nil
}

func resolveRole(r message.Role) message.Role {
	if r == "" {
		return message.RoleAssistant
	}
	return r
}

// Preflight applies message hygiene to messages before they are sent to the
// model, per the documented rule: for each assistant message, if it
// contains any tool-use block, empty text blocks are removed; otherwise an
// empty text block is replaced with the literal text "[blank text]".
// Preflight returns a new slice; messages is never mutated in place, which
// makes the idempotence property trivial to verify (Preflight(Preflight(m))
// deep-equals Preflight(m)).
func Preflight(messages []message.Message) []message.Message {
	out := make([]message.Message, len(messages))
	for i, msg := range messages {
		out[i] = msg
		if msg.Role != message.RoleAssistant {
			continue
		}
		out[i].Content = preflightAssistantContent(msg.Content)
	}
	return out
}

func preflightAssistantContent(content []message.ContentBlock) []message.ContentBlock {
	hasToolUse := false
	for _, blk := range content {
		if _, ok := blk.(message.ToolUseBlock); ok {
			hasToolUse = true
			break
		}
	}

	out := make([]message.ContentBlock, 0, len(content))
	for _, blk := range content {
		text, isText := blk.(message.TextBlock)
		if !isText {
			out = append(out, blk)
			continue
		}
		trimmed := strings.TrimSpace(text.Text)
		switch {
		case hasToolUse && trimmed == "":
			// drop: empty text blocks are elided when a tool-use is present.
		case !hasToolUse && trimmed == "":
			out = append(out, message.TextBlock{Text: "[blank text]"})
		default:
			out = append(out, blk)
		}
	}
	return out
}
