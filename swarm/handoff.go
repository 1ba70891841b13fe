package swarm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentcore/agentcore/invocation"
	"github.com/agentcore/agentcore/message"
	"github.com/agentcore/agentcore/multiagent"
	"github.com/agentcore/agentcore/tools"
)

// handoffToolName is reserved: an agent joining a swarm must not already
// register a tool under this name.
const handoffToolName = "handoff_to_agent"

var handoffInputSchema = json.RawMessage(`{
	"type": "object",
	"required": ["agent_name", "message"],
	"properties": {
		"agent_name": {"type": "string"},
		"message": {"type": "string"},
		"context": {"type": "object"}
	}
}`)

type handoffInput struct {
	AgentName string         `json:"agent_name"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context"`
}

// handoffRegistration builds the tool_use registration injected into from's
// agent: calling it transfers swarm control to another named participant.
func (sw *Swarm) handoffRegistration(from string) tools.Registration {
	return tools.Registration{
		Spec: tools.ToolSpec{
			Name:        handoffToolName,
			Description: "Hand off the conversation to another agent participating in this swarm.",
			InputSchema: handoffInputSchema,
		},
		Runner: sw.handoffRunner(from),
	}
}

func (sw *Swarm) handoffRunner(from string) tools.Runner {
	return func(ctx context.Context, call message.ToolUseBlock, inv *invocation.State) <-chan tools.Event {
		out := make(chan tools.Event, 1)
		go func() {
			defer close(out)
			out <- tools.Result{Block: sw.handoff(ctx, from, call)}
		}()
		return out
	}
}

// handoff resolves the active run's state from ctx (stashed there by
// Invoke via withRunState, propagated unchanged through Agent.Invoke and
// toolexec.Run) so concurrent swarm invocations never share mutable state.
func (sw *Swarm) handoff(ctx context.Context, from string, call message.ToolUseBlock) message.ToolResultBlock {
	var in handoffInput
	if err := json.Unmarshal(call.Input, &in); err != nil {
		return handoffError(call.ID, "invalid handoff input: "+err.Error())
	}

	rs, ok := runStateFrom(ctx)
	if !ok {
		return handoffError(call.ID, "no active swarm run")
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.status != multiagent.StatusExecuting {
		return handoffOK(call.ID, "swarm is not executing; handoff ignored")
	}
	if _, exists := sw.byName[in.AgentName]; !exists {
		return handoffError(call.ID, "unknown agent: "+in.AgentName)
	}

	for k, v := range in.Context {
		if k == "" {
			return handoffError(call.ID, "shared context key must be non-empty")
		}
		if _, err := json.Marshal(v); err != nil {
			return handoffError(call.ID, fmt.Sprintf("shared context value for %q is not JSON-serializable: %v", k, err))
		}
	}
	if len(in.Context) > 0 {
		if rs.sharedContext[from] == nil {
			rs.sharedContext[from] = map[string]any{}
		}
		for k, v := range in.Context {
			rs.sharedContext[from][k] = v
		}
	}

	rs.current = in.AgentName
	rs.handoffMessage = in.Message
	return handoffOK(call.ID, "handed off to "+in.AgentName)
}

func handoffOK(toolUseID, text string) message.ToolResultBlock {
	return message.ToolResultBlock{
		ToolUseID: toolUseID,
		Status:    message.StatusSuccess,
		Content:   []message.ToolResultContent{message.TextResultContent{Text: text}},
	}
}

func handoffError(toolUseID, text string) message.ToolResultBlock {
	return message.ToolResultBlock{
		ToolUseID: toolUseID,
		Status:    message.StatusError,
		Content:   []message.ToolResultContent{message.TextResultContent{Text: text}},
	}
}
