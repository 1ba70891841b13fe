// Package message defines the provider-agnostic message and content-block
// types exchanged between the model, the tool executor, and the event loop.
// Messages are ordered and grouped into a conversation; content blocks
// preserve structure (text, reasoning, tool use/result) rather than
// flattening to plain strings.
package message

import "encoding/json"

// Role identifies the speaker for a message.
type Role string

const (
	// RoleSystem is the role for the system prompt message.
	RoleSystem Role = "system"

	// RoleUser is the role for user-authored and tool-result messages.
	RoleUser Role = "user"

	// RoleAssistant is the role for model-authored messages.
	RoleAssistant Role = "assistant"
)

// ContentBlock is a marker interface implemented by every message content
// block. Concrete implementations capture text, tool use/results, reasoning,
// media attachments, and cache checkpoints in strongly typed form.
//
// The set of implementations is closed; callers switch on concrete type
// rather than relying on an open interface.
type ContentBlock interface {
	isContentBlock()
}

type (
	// TextBlock is a plain text content block.
	TextBlock struct {
		// Text is the human-readable content for this block.
		Text string
	}

	// ToolUseBlock declares a tool invocation requested by the assistant.
	//
	// The Tool Executor turns these into concrete tool executions and
	// correlates results via ToolResultBlock.ToolUseID.
	ToolUseBlock struct {
		// ID uniquely identifies this tool call within the turn.
		ID string

		// Name is the tool identifier requested by the model.
		Name string

		// Input is the canonical JSON arguments object. A parse failure while
		// assembling this block from a stream defaults Input to an empty
		// JSON object ("{}"), never nil.
		Input json.RawMessage
	}

	// ToolResultStatus reports whether a tool invocation succeeded.
	ToolResultStatus string

	// ToolResultBlock carries the outcome of one tool invocation.
	//
	// Tool results are attached to a user message so the model can read them
	// on the next turn. Exactly one ToolResultBlock exists per ToolUseBlock
	// with a matching ID, or the ToolUseBlock was removed by orphan cleanup.
	ToolResultBlock struct {
		// ToolUseID correlates this result to a prior ToolUseBlock.
		ToolUseID string

		// Status reports success or failure of the underlying tool call.
		Status ToolResultStatus

		// Content is the ordered result payload. Most tools emit a single
		// TextResultContent; richer tools may emit JSON or media content.
		Content []ToolResultContent
	}

	// ReasoningBlock carries provider-issued reasoning ("thinking") content.
	//
	// Callers treat this as opaque, provider-specific content and surface it
	// according to their own UI policy.
	ReasoningBlock struct {
		// Text is the provider-visible reasoning text when available.
		Text string

		// Signature is the provider-issued signature for Text when present.
		// Providers that support verifying replayed reasoning content
		// populate this field; it is otherwise empty.
		Signature string
	}

	// ImageFormat identifies the on-wire encoding of an ImageBlock.
	ImageFormat string

	// ImageBlock carries image bytes attached to a message.
	ImageBlock struct {
		// Format identifies the encoding of Bytes (for example, "png").
		Format ImageFormat

		// Bytes contains the raw image bytes for the declared format.
		Bytes []byte
	}

	// DocumentFormat identifies the on-wire format of a DocumentBlock.
	DocumentFormat string

	// DocumentBlock carries document content attached to a message.
	DocumentBlock struct {
		// Name is a short neutral identifier for the document.
		Name string

		// Format identifies the document format/extension.
		Format DocumentFormat

		// Bytes carries the raw document bytes when provided as an upload.
		Bytes []byte
	}

	// VideoFormat identifies the on-wire format of a VideoBlock.
	VideoFormat string

	// VideoBlock carries video content attached to a message.
	VideoBlock struct {
		// Format identifies the encoding of Bytes (for example, "mp4").
		Format VideoFormat

		// Bytes contains the raw video bytes for the declared format.
		Bytes []byte
	}

	// CachePointBlock marks a prompt-cache boundary in a message. Provider
	// adapters translate this to provider-specific caching directives.
	// Providers that do not support caching ignore this block.
	CachePointBlock struct{}

	// ToolResultContent is a marker interface for the content carried inside
	// a ToolResultBlock. It is closed over text, JSON, image, and document
	// variants.
	ToolResultContent interface {
		isToolResultContent()
	}

	// TextResultContent is a plain text tool-result payload.
	TextResultContent struct {
		Text string
	}

	// JSONResultContent is a structured tool-result payload.
	JSONResultContent struct {
		JSON any
	}

	// ImageResultContent is an image tool-result payload.
	ImageResultContent struct {
		Format ImageFormat
		Bytes  []byte
	}

	// DocumentResultContent is a document tool-result payload.
	DocumentResultContent struct {
		Name   string
		Format DocumentFormat
		Bytes  []byte
	}

	// Message is a single conversation message.
	//
	// Messages are ordered and appended to a conversation; a Message is
	// never mutated once appended except by explicit redaction handling in
	// the Stream Assembler.
	Message struct {
		// Role identifies the speaker for this message.
		Role Role

		// Content is the ordered list of content blocks for the message.
		Content []ContentBlock
	}

	// ToolDefinition describes a tool exposed to the model for the duration
	// of a request.
	ToolDefinition struct {
		// Name is the tool identifier as seen by the model.
		Name string

		// Description is a concise summary presented to the model to decide
		// when to call the tool.
		Description string

		// InputSchema is a JSON Schema document describing the tool's input.
		InputSchema json.RawMessage
	}

	// StopReason records why a model call stopped generating.
	StopReason string

	// Usage tracks token counts for a model call or an accumulated run.
	Usage struct {
		InputTokens  int
		OutputTokens int
		TotalTokens  int
	}

	// Metrics tracks latency and other non-token measurements for a model
	// call or an accumulated run.
	Metrics struct {
		LatencyMs int64
	}
)

const (
	// StatusSuccess marks a tool result that completed without error.
	StatusSuccess ToolResultStatus = "success"

	// StatusError marks a tool result produced from a failure (an unknown
	// tool, a tool runner error, or a cancellation).
	StatusError ToolResultStatus = "error"
)

const (
	// StopReasonEndTurn indicates the model finished its turn normally.
	StopReasonEndTurn StopReason = "end_turn"

	// StopReasonToolUse indicates the model requested one or more tools.
	StopReasonToolUse StopReason = "tool_use"

	// StopReasonMaxTokens indicates generation stopped at the configured
	// token budget. Orchestrators treat this as a terminal, non-error stop.
	StopReasonMaxTokens StopReason = "max_tokens"

	// StopReasonStopSequence indicates a configured stop sequence matched.
	StopReasonStopSequence StopReason = "stop_sequence"

	// StopReasonContentFiltered indicates provider-side content filtering
	// truncated the response.
	StopReasonContentFiltered StopReason = "content_filtered"

	// StopReasonGuardrailIntervened indicates a provider guardrail
	// intervened and altered or stopped the response.
	StopReasonGuardrailIntervened StopReason = "guardrail_intervened"
)

func (TextBlock) isContentBlock()        {}
func (ToolUseBlock) isContentBlock()      {}
func (ToolResultBlock) isContentBlock()   {}
func (ReasoningBlock) isContentBlock()    {}
func (ImageBlock) isContentBlock()        {}
func (DocumentBlock) isContentBlock()     {}
func (VideoBlock) isContentBlock()        {}
func (CachePointBlock) isContentBlock()   {}

func (TextResultContent) isToolResultContent()     {}
func (JSONResultContent) isToolResultContent()     {}
func (ImageResultContent) isToolResultContent()    {}
func (DocumentResultContent) isToolResultContent() {}

// LastAssistant returns the last assistant message in conv, and whether one
// was found.
func LastAssistant(conv []Message) (Message, bool) {
	for i := len(conv) - 1; i >= 0; i-- {
		if conv[i].Role == RoleAssistant {
			return conv[i], true
		}
	}
	return Message{}, false
}

// ToolUses returns the ToolUseBlocks contained in msg, in order.
func ToolUses(msg Message) []ToolUseBlock {
	var out []ToolUseBlock
	for _, blk := range msg.Content {
		if tu, ok := blk.(ToolUseBlock); ok {
			out = append(out, tu)
		}
	}
	return out
}

// Add accumulates delta into u, returning the updated total.
func (u Usage) Add(delta Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + delta.InputTokens,
		OutputTokens: u.OutputTokens + delta.OutputTokens,
		TotalTokens:  u.TotalTokens + delta.TotalTokens,
	}
}

// Add accumulates delta into m, returning the updated total.
func (m Metrics) Add(delta Metrics) Metrics {
	return Metrics{LatencyMs: m.LatencyMs + delta.LatencyMs}
}
