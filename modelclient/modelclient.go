// Package modelclient declares the provider-agnostic model capability the
// event loop depends on: a request/response shape and the closed set of
// streaming event kinds the Stream Assembler consumes. No concrete provider
// wiring (Anthropic, OpenAI, Bedrock, ...) lives here; adapters outside this
// module translate their wire protocol into this shape.
package modelclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentcore/agentcore/message"
)

type (
	// Request captures the inputs to a single model call.
	Request struct {
		// Messages is the ordered conversation presented to the model.
		Messages []message.Message

		// Tools lists the tool definitions available to the model for this
		// call. Empty when the agent has no tools or tool use is disabled.
		Tools []message.ToolDefinition

		// SystemPrompt is the optional system prompt for the call. Rendering
		// prompts is out of scope for this module; callers supply the final
		// string.
		SystemPrompt string
	}

	// Client is the provider-agnostic model capability.
	//
	// Implementations translate Request into a provider call and adapt the
	// provider's wire events into the closed Event set below.
	Client interface {
		// Converse starts a model call and returns a Stream of events. The
		// returned Stream must eventually yield a MessageStopEvent followed
		// by a MetadataEvent, or an error; Converse itself may fail before
		// any event is produced (for example, on a request validation
		// failure).
		Converse(ctx context.Context, req Request) (Stream, error)
	}

	// Stream delivers the event sequence for one model call.
	Stream interface {
		// Recv returns the next event. It returns io.EOF once the stream is
		// exhausted after a terminal MessageStopEvent/MetadataEvent pair.
		Recv(ctx context.Context) (Event, error)

		// Close releases resources held by the stream. Safe to call more
		// than once.
		Close() error
	}

	// Event is a marker interface over the closed set of stream event kinds
	// a Model capability may emit. Consumers type-switch on the concrete
	// type.
	Event interface {
		isEvent()
	}

	// MessageStartEvent opens a new assistant message and sets its role.
	MessageStartEvent struct {
		Role message.Role
	}

	// ToolUseStart carries the identity of a tool-use block opened by a
	// ContentBlockStartEvent.
	ToolUseStart struct {
		ID   string
		Name string
	}

	// ContentBlockStartEvent opens a new content block. ToolUse is non-nil
	// when the block being opened is a tool-use block; otherwise the block
	// is a text or reasoning block whose content arrives via subsequent
	// ContentBlockDeltaEvents.
	ContentBlockStartEvent struct {
		ToolUse *ToolUseStart
	}

	// ContentBlockDeltaEvent appends to exactly one of the in-progress
	// block's fields. Exactly one field is non-empty per event.
	ContentBlockDeltaEvent struct {
		Text                    string
		ToolUseInputDelta       string
		ReasoningTextDelta      string
		ReasoningSignatureDelta string
	}

	// ContentBlockStopEvent finalizes the in-progress content block.
	ContentBlockStopEvent struct{}

	// MessageStopEvent records why the model stopped generating.
	MessageStopEvent struct {
		StopReason message.StopReason
	}

	// MetadataEvent carries usage and metrics for the call. It follows the
	// terminal MessageStopEvent.
	MetadataEvent struct {
		Usage   message.Usage
		Metrics message.Metrics
		Trace   map[string]any
	}

	// RedactContentEvent instructs the assembler to replace either the last
	// user message or the in-progress assistant content with a single text
	// block carrying the redaction message. At most one field is set.
	RedactContentEvent struct {
		RedactUserContentMessage      *string
		RedactAssistantContentMessage *string
	}
)

func (MessageStartEvent) isEvent()      {}
func (ContentBlockStartEvent) isEvent() {}
func (ContentBlockDeltaEvent) isEvent() {}
func (ContentBlockStopEvent) isEvent()  {}
func (MessageStopEvent) isEvent()       {}
func (MetadataEvent) isEvent()          {}
func (RedactContentEvent) isEvent()     {}

// Error kinds from the model-call taxonomy. Providers must surface
// throttling and context-window exhaustion as these sentinels (directly, or
// wrapped so errors.Is succeeds) so the event loop can apply the documented
// retry policy without inspecting provider-specific error types.
var (
	// ErrThrottled indicates the provider rejected the call due to rate
	// limiting. The event loop retries on this error up to MAX_ATTEMPTS.
	ErrThrottled = errors.New("modelclient: throttled")

	// ErrContextWindowExceeded indicates the request exceeded the model's
	// context window. Never retried by the event loop.
	ErrContextWindowExceeded = errors.New("modelclient: context window exceeded")

	// ErrProviderError is a catch-all for provider failures that are
	// neither throttling nor context-window exhaustion (stream errors,
	// service-unavailable, internal-server, and validation exceptions).
	// Wrap it with NewProviderError to preserve the underlying cause.
	ErrProviderError = errors.New("modelclient: provider error")
)

// providerError wraps ErrProviderError with an underlying cause so callers
// can both errors.Is(err, ErrProviderError) and inspect the original error.
type providerError struct {
	kind  string
	cause error
}

// NewProviderError builds a ProviderError for the given provider exception
// kind (for example, "modelStreamErrorException", "serviceUnavailableException",
// "internalServerException", "validationException").
func NewProviderError(kind string, cause error) error {
	return &providerError{kind: kind, cause: cause}
}

func (e *providerError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("modelclient: provider error (%s): %v", e.kind, e.cause)
	}
	return fmt.Sprintf("modelclient: provider error (%s)", e.kind)
}

func (e *providerError) Unwrap() []error {
	return []error{ErrProviderError, e.cause}
}

// ErrEmptyStream is returned by the Stream Assembler when a model stream
// yields no events at all before being exhausted. The source's retry loop
// inspects the stream's terminal state after iteration completes, leaving
// this case ambiguous; this realization treats it as a provider error.
var ErrEmptyStream = NewProviderError("emptyStream", errors.New("model stream produced no events"))
